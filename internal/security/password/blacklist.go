package password

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var commonPasswords = []string{
	"password", "123456", "qwerty", "admin", "welcome",
	"password123", "abc123", "letmein", "monkey", "1234567890",
	"password1!", "p@ssw0rd", "qwerty123!", "welcome1!", "admin123!",
}

type Blacklist struct {
	mu   sync.RWMutex
	data map[string]struct{}
}

// NewBlacklist crea una blacklist con las palabras dadas.
func NewBlacklist(words ...string) *Blacklist {
	bl := &Blacklist{data: make(map[string]struct{}, len(words))}
	bl.Add(words...)
	return bl
}

// CommonPasswords retorna la blacklist embebida de passwords comunes.
func CommonPasswords() *Blacklist {
	return NewBlacklist(commonPasswords...)
}

// LoadBlacklist agrega a la lista embebida las entradas de path (una por
// línea, "#" comenta). path vacío retorna solo la lista embebida.
func LoadBlacklist(path string) (*Blacklist, error) {
	bl := CommonPasswords()
	if strings.TrimSpace(path) == "" {
		return bl, nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s != "" && !strings.HasPrefix(s, "#") {
			bl.Add(s)
		}
	}
	return bl, sc.Err()
}

func (b *Blacklist) Add(words ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			b.data[w] = struct{}{}
		}
	}
}

func (b *Blacklist) Contains(pwd string) bool {
	if b == nil {
		return false
	}
	p := strings.ToLower(strings.TrimSpace(pwd))
	b.mu.RLock()
	_, ok := b.data[p]
	b.mu.RUnlock()
	return ok
}
