// Package jwt emite y valida access tokens HS256.
//
// El codec no hace I/O: la revocación es responsabilidad del caller
// (ver internal/revocation).
package jwt

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/dropDatabas3/accesscore/internal/domain/autherr"
)

// MinSecretLen es el largo mínimo del secreto configurado.
const MinSecretLen = 32

const keyInfo = "accesscore/access-token/hs256"

var (
	ErrSecretTooShort = fmt.Errorf("jwt: secret must be at least %d bytes", MinSecretLen)
	ErrInvalidTTL     = errors.New("jwt: access ttl must be positive")

	errUnsupportedAlg = errors.New("unsupported signing method")
)

// Subject es lo que se embebe en un access token.
type Subject struct {
	UserID   string
	Username string
	TenantID string
	Roles    []string
}

// Claims del access token. sub = username.
type Claims struct {
	UserID   string   `json:"uid"`
	TenantID string   `json:"tid,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwtv5.RegisteredClaims
}

// Username retorna el subject.
func (c *Claims) Username() string { return c.Subject }

// ExpiresAtTime retorna exp como time.Time (zero si falta).
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Codec firma y valida access tokens con una clave simétrica derivada del secreto.
type Codec struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwtv5.Parser
}

type Option func(*Codec)

// WithClock inyecta el reloj usado para iat/exp y para validar.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIssuer setea "iss" al emitir y lo exige al validar.
func WithIssuer(iss string) Option {
	return func(c *Codec) { c.issuer = strings.TrimSpace(iss) }
}

// NewCodec deriva la clave HS256 del secreto con HKDF-SHA256.
func NewCodec(secret string, ttl time.Duration, opts ...Option) (*Codec, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrSecretTooShort
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("jwt: derive key: %w", err)
	}
	c := &Codec{key: key, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(c)
	}

	popts := []jwtv5.ParserOption{
		jwtv5.WithTimeFunc(func() time.Time { return c.now() }),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithIssuedAt(),
	}
	if c.issuer != "" {
		popts = append(popts, jwtv5.WithIssuer(c.issuer))
	}
	c.parser = jwtv5.NewParser(popts...)
	return c, nil
}

// TTL retorna el TTL de los access tokens.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue firma un access token con exp = iat + TTL.
func (c *Codec) Issue(s Subject) (string, time.Time, error) {
	if strings.TrimSpace(s.Username) == "" || strings.TrimSpace(s.UserID) == "" {
		return "", time.Time{}, errors.New("jwt: subject requires user id and username")
	}
	now := c.now().UTC().Truncate(time.Second)
	exp := now.Add(c.ttl)

	claims := Claims{
		UserID:   s.UserID,
		TenantID: s.TenantID,
		Roles:    s.Roles,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   s.Username,
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(c.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, exp, nil
}

// Validate verifica firma, formato y tiempos. Nunca acepta en silencio:
// cualquier fallo es un *autherr.TokenError con su razón.
func (c *Codec) Validate(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &autherr.TokenError{Reason: autherr.ReasonMalformed, Err: autherr.ErrTokenMalformed}
	}
	claims := &Claims{}
	tok, err := c.parser.ParseWithClaims(token, claims, c.keyfunc)
	if err != nil {
		return nil, classify(err)
	}
	if !tok.Valid {
		return nil, &autherr.TokenError{Reason: autherr.ReasonSignature, Err: autherr.ErrTokenMalformed}
	}
	if claims.UserID == "" || claims.Subject == "" {
		return nil, &autherr.TokenError{Reason: autherr.ReasonClaims, Err: autherr.ErrTokenMalformed}
	}
	return claims, nil
}

func (c *Codec) keyfunc(t *jwtv5.Token) (any, error) {
	if t.Method == nil || t.Method.Alg() != jwtv5.SigningMethodHS256.Alg() {
		return nil, errUnsupportedAlg
	}
	return c.key, nil
}

func classify(err error) error {
	reason := autherr.ReasonClaims
	base := autherr.ErrTokenMalformed
	switch {
	case errors.Is(err, jwtv5.ErrTokenExpired):
		reason, base = autherr.ReasonExpired, autherr.ErrTokenExpired
	case errors.Is(err, errUnsupportedAlg), errors.Is(err, jwtv5.ErrTokenUnverifiable):
		reason = autherr.ReasonUnsupported
	case errors.Is(err, jwtv5.ErrTokenMalformed):
		reason = autherr.ReasonMalformed
	case errors.Is(err, jwtv5.ErrTokenSignatureInvalid):
		reason = autherr.ReasonSignature
	case errors.Is(err, jwtv5.ErrTokenNotValidYet), errors.Is(err, jwtv5.ErrTokenUsedBeforeIssued):
		reason = autherr.ReasonNotYetValid
	}
	return &autherr.TokenError{Reason: reason, Err: base}
}
