package session

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signedToken builds an HS256 token with the given expiry for tests.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("backend-secret"))
	if err != nil {
		t.Fatalf("Failed to sign test token: %v", err)
	}
	return signed
}

// TestStoreRoundTrip tests saving and loading a session.
func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.bin")
	store, err := NewStore(path, []byte("device-secret"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	original := &Session{
		Token:  signedToken(t, time.Now().Add(time.Hour)),
		UserID: "user-1",
		Name:   "Rahim",
		Phone:  "01700000000",
	}
	if err := store.Save(original); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}
	if loaded.UserID != "user-1" || loaded.Name != "Rahim" || loaded.Phone != "01700000000" {
		t.Errorf("Session not preserved: %+v", loaded)
	}
	if loaded.Token != original.Token {
		t.Error("Token not preserved")
	}
	if loaded.SavedAt.IsZero() {
		t.Error("Expected SavedAt to be stamped on save")
	}
}

// TestStoreFileIsOpaque verifies the session never touches disk in the clear.
func TestStoreFileIsOpaque(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.bin")
	store, err := NewStore(path, []byte("device-secret"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Save(&Session{Token: "tok", Phone: "01700000000"}); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read raw file: %v", err)
	}
	if bytes.Contains(raw, []byte("01700000000")) || bytes.Contains(raw, []byte(`"token"`)) {
		t.Error("Session file contains plaintext fields")
	}
}

// TestStoreWrongSecret verifies a key mismatch reports corruption, not junk.
func TestStoreWrongSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.bin")
	store, err := NewStore(path, []byte("device-secret"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.Save(&Session{Token: "tok"}); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	other, err := NewStore(path, []byte("different-secret"))
	if err != nil {
		t.Fatalf("Failed to create second store: %v", err)
	}
	if _, err := other.Load(); !errors.Is(err, ErrSessionCorrupt) {
		t.Errorf("Expected ErrSessionCorrupt, got: %v", err)
	}
}

// TestStoreMissingFile verifies the no-session sentinel.
func TestStoreMissingFile(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "missing.bin"), []byte("secret"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession, got: %v", err)
	}
}

// TestStoreClear verifies Clear removes the file and is idempotent.
func TestStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.bin")
	store, err := NewStore(path, []byte("secret"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.Save(&Session{Token: "tok"}); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Failed to clear session: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected session file removed")
	}
	if err := store.Clear(); err != nil {
		t.Errorf("Expected idempotent clear, got: %v", err)
	}
}

// TestSessionExpiry tests expiry extraction from JWT claims.
func TestSessionExpiry(t *testing.T) {
	t.Run("Valid token with future expiry", func(t *testing.T) {
		exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
		s := &Session{Token: signedToken(t, exp)}

		got, err := s.ExpiresAt()
		if err != nil {
			t.Fatalf("Failed to read expiry: %v", err)
		}
		if !got.Equal(exp) {
			t.Errorf("Expected expiry %v, got %v", exp, got)
		}
		if s.Expired(time.Now()) {
			t.Error("Expected session not expired")
		}
	})

	t.Run("Expired token", func(t *testing.T) {
		s := &Session{Token: signedToken(t, time.Now().Add(-time.Minute))}
		if !s.Expired(time.Now()) {
			t.Error("Expected session expired")
		}
	})

	t.Run("Garbage token counts as expired", func(t *testing.T) {
		s := &Session{Token: "not-a-jwt"}
		if !s.Expired(time.Now()) {
			t.Error("Expected unparseable token to count as expired")
		}
	})
}

// TestNewStoreEmptySecret verifies the secret is mandatory.
func TestNewStoreEmptySecret(t *testing.T) {
	if _, err := NewStore("x", nil); err == nil {
		t.Error("Expected error for empty secret")
	}
}
