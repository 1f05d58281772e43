// Package secretbox cifra secretos de configuración con AES-256-GCM.
//
// Formato: base64(nonce)|base64(ciphertext). En YAML o env se marcan con el
// prefijo "enc:" y config.Load los descifra con SECRETBOX_MASTER_KEY.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// EnvVar contiene la clave maestra (base64, hex o 32 bytes raw).
	EnvVar = "SECRETBOX_MASTER_KEY"
	// Prefix marca un valor cifrado.
	Prefix = "enc:"

	nonceSize = 12 // 96 bits, recomendado para GCM
	keyLength = 32 // AES-256
	sep       = "|"
)

var (
	ErrNoKey         = fmt.Errorf("secretbox: %s no seteada; genere una con: openssl rand -base64 32", EnvVar)
	ErrInvalidFormat = errors.New("secretbox: formato inválido, esperado base64(nonce)|base64(ciphertext)")
)

// Box cifra y descifra con una clave fija.
type Box struct {
	aead cipher.AEAD
}

// New acepta la clave en base64 (con o sin padding), hex o raw.
func New(key string) (*Box, error) {
	kb, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(kb)
	if err != nil {
		return nil, fmt.Errorf("secretbox: aes: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("secretbox: gcm: %w", err)
	}
	return &Box{aead: aead}, nil
}

// FromEnv construye un Box con SECRETBOX_MASTER_KEY.
func FromEnv() (*Box, error) {
	k := strings.TrimSpace(os.Getenv(EnvVar))
	if k == "" {
		return nil, ErrNoKey
	}
	return New(k)
}

func parseKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if b, err := base64.StdEncoding.DecodeString(key); err == nil && len(b) == keyLength {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(key); err == nil && len(b) == keyLength {
		return b, nil
	}
	if len(key) == 2*keyLength {
		if b, err := hex.DecodeString(key); err == nil {
			return b, nil
		}
	}
	if len(key) == keyLength {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("secretbox: clave inválida (requiere %d bytes)", keyLength)
}

func (b *Box) Encrypt(plain string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretbox: nonce: %w", err)
	}
	ct := b.aead.Seal(nil, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

func (b *Box) Decrypt(sealed string) (string, error) {
	nb64, cb64, ok := strings.Cut(strings.TrimSpace(sealed), sep)
	if !ok {
		return "", ErrInvalidFormat
	}
	nonce, err := base64.StdEncoding.DecodeString(nb64)
	if err != nil || len(nonce) != nonceSize {
		return "", ErrInvalidFormat
	}
	ct, err := base64.StdEncoding.DecodeString(cb64)
	if err != nil {
		return "", ErrInvalidFormat
	}
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("secretbox: decrypt: %w", err)
	}
	return string(pt), nil
}

// IsSealed indica si v lleva el prefijo de valor cifrado.
func IsSealed(v string) bool { return strings.HasPrefix(strings.TrimSpace(v), Prefix) }

// Open descifra v si lleva el prefijo; si no, lo retorna igual.
func (b *Box) Open(v string) (string, error) {
	if !IsSealed(v) {
		return v, nil
	}
	return b.Decrypt(strings.TrimPrefix(strings.TrimSpace(v), Prefix))
}

// Seal retorna "enc:" + Encrypt(plain).
func (b *Box) Seal(plain string) (string, error) {
	s, err := b.Encrypt(plain)
	if err != nil {
		return "", err
	}
	return Prefix + s, nil
}
