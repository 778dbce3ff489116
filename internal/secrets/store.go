// Package secrets keeps per-user credentials in a 0600 file, sealed with a
// key derived from the user identity. Not a replacement for an OS keychain
// but keeps tokens out of the plain-text config.
package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const fileName = "secrets.json"

var ErrNotFound = errors.New("secrets: not found")

type secretFile struct {
	Salt   string            `json:"salt"`
	Values map[string]string `json:"values"` // name -> base64(nonce|ciphertext)
}

// Store is a directory holding one sealed secrets file.
type Store struct {
	dir  string
	user string
	mu   sync.Mutex
}

// New returns a store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir, user: os.Getenv("USER")}
}

// Default returns the store under the user's config directory.
func Default() (*Store, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return New(filepath.Join(dir, "navi")), nil
}

func (s *Store) Put(name, value string) error {
	if name = norm(name); name == "" {
		return fmt.Errorf("secret name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.load()
	if err != nil {
		return err
	}
	aead, err := s.aead(sf.Salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(value)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	sealed := aead.Seal(nonce, nonce, []byte(value), []byte(name))
	sf.Values[name] = base64.StdEncoding.EncodeToString(sealed)
	return s.save(sf)
}

func (s *Store) Get(name string) (string, error) {
	if name = norm(name); name == "" {
		return "", fmt.Errorf("secret name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.load()
	if err != nil {
		return "", err
	}
	enc, ok := sf.Values[name]
	if !ok {
		return "", ErrNotFound
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("decode secret %s: %w", name, err)
	}
	aead, err := s.aead(sf.Salt)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("secret %s: ciphertext too short", name)
	}
	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], []byte(name))
	if err != nil {
		return "", fmt.Errorf("open secret %s: %w", name, err)
	}
	return string(plain), nil
}

// Delete is a no-op for unknown names.
func (s *Store) Delete(name string) error {
	if name = norm(name); name == "" {
		return fmt.Errorf("secret name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := sf.Values[name]; !ok {
		return nil
	}
	delete(sf.Values, name)
	return s.save(sf)
}

func (s *Store) path() string { return filepath.Join(s.dir, fileName) }

func (s *Store) load() (secretFile, error) {
	sf := secretFile{Values: map[string]string{}}
	data, err := os.ReadFile(s.path())
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return sf, err
	default:
		if err := json.Unmarshal(data, &sf); err != nil {
			return sf, fmt.Errorf("parse %s: %w", s.path(), err)
		}
		if sf.Values == nil {
			sf.Values = map[string]string{}
		}
	}
	if sf.Salt == "" {
		salt := make([]byte, 16)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return sf, err
		}
		sf.Salt = base64.StdEncoding.EncodeToString(salt)
	}
	return sf, nil
}

func (s *Store) save(sf secretFile) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path())
}

// aead derives the file key from the user identity and the file's salt.
func (s *Store) aead(salt string) (cipher.AEAD, error) {
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	secret := []byte(fmt.Sprintf("navi-%s-%s", runtime.GOOS, s.user))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, rawSalt, []byte("navi secrets v1")), key); err != nil {
		return nil, err
	}
	return chacha20poly1305.NewX(key)
}

func norm(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}
