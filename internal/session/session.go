// Package session persists the signed-in passenger's identity and bearer
// token on the device. The session file is sealed with AES-GCM under a key
// derived from a device secret, and token expiry is read from the JWT claims
// without verifying the backend's signature (the device does not hold the
// signing key).
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrNoSession is returned when no session file exists
	ErrNoSession = errors.New("no saved session")

	// ErrSessionCorrupt is returned when the file fails to unseal
	ErrSessionCorrupt = errors.New("session file corrupt or key mismatch")
)

// Session is the persisted sign-in state.
type Session struct {
	// Token is the backend-issued bearer token
	Token string `json:"token"`

	// UserID identifies the passenger account
	UserID string `json:"userId"`

	// Name is the passenger's display name
	Name string `json:"name"`

	// Phone is the sign-in phone number
	Phone string `json:"phone"`

	// SavedAt is when the session was written
	SavedAt time.Time `json:"savedAt"`
}

// ExpiresAt extracts the token's expiry from its JWT claims. The signature
// is not checked; only the backend can verify it, the device just needs to
// know when to re-login. Tokens without an exp claim report a zero time.
func (s *Session) ExpiresAt() (time.Time, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(s.Token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// Expired reports whether the token has an expiry in the past. Unparseable
// tokens count as expired so the caller re-authenticates.
func (s *Session) Expired(now time.Time) bool {
	exp, err := s.ExpiresAt()
	if err != nil {
		return true
	}
	if exp.IsZero() {
		return false
	}
	return now.After(exp)
}

// Store reads and writes the encrypted session file.
type Store struct {
	path string
	key  []byte
}

// NewStore creates a session store. secret is the device-specific secret the
// sealing key derives from; the same secret must be supplied to read the
// file back.
func NewStore(path string, secret []byte) (*Store, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret must not be empty")
	}
	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, key: key}, nil
}

// deriveKey stretches the device secret into a 32-byte AES key with
// HKDF-SHA256.
func deriveKey(secret []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, secret, nil, []byte("session-key"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("failed to derive session key: %w", err)
	}
	return key, nil
}

// Save seals the session and writes it to disk.
func (st *Store) Save(s *Session) error {
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now()
	}
	plaintext, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	sealed, err := st.seal(plaintext)
	if err != nil {
		return err
	}

	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(st.path, sealed, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Load reads and unseals the session from disk.
func (st *Store) Load() (*Session, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	plaintext, err := st.unseal(data)
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(plaintext, &s); err != nil {
		return nil, ErrSessionCorrupt
	}
	return &s, nil
}

// Clear removes the session file. Missing files are not an error.
func (st *Store) Clear() error {
	if err := os.Remove(st.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// seal encrypts plaintext with AES-GCM, nonce prepended.
func (st *Store) seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(st.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// unseal reverses seal.
func (st *Store) unseal(sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(st.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, ErrSessionCorrupt
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrSessionCorrupt
	}
	return plaintext, nil
}
