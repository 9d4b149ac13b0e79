// Package credentials provides secure credential storage for the airtime CLI.
package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testKeyProvider returns a fixed key without touching the system keyring.
type testKeyProvider struct {
	key []byte
}

func (p *testKeyProvider) GetKey() ([]byte, error)   { return p.key, nil }
func (p *testKeyProvider) ResetKey() ([]byte, error) { return p.key, nil }
func (p *testKeyProvider) Description() string       { return "test key" }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("AIRTIME_CONFIG_DIR", t.TempDir())

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	store, err := NewStoreWithKeyProvider(&testKeyProvider{key: key})
	if err != nil {
		t.Fatalf("NewStoreWithKeyProvider() error = %v", err)
	}
	return store
}

// TestSaveAndLoad verifies credentials round-trip through encryption.
func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	creds := &Credentials{
		RedisPassword: "s3cret-password",
		RedisAddress:  "cache.internal:6379",
	}

	if err := store.Save(creds); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.RedisPassword != "s3cret-password" {
		t.Errorf("RedisPassword = %v, want s3cret-password", loaded.RedisPassword)
	}
	if loaded.RedisAddress != "cache.internal:6379" {
		t.Errorf("RedisAddress = %v, want cache.internal:6379", loaded.RedisAddress)
	}
	if loaded.LastUpdated.IsZero() {
		t.Error("LastUpdated should be set on save")
	}
}

// TestPasswordEncryptedAtRest verifies the password never appears in
// plaintext in the credentials file.
func TestPasswordEncryptedAtRest(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(&Credentials{RedisPassword: "plaintext-marker"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	path, err := CredentialsPath()
	if err != nil {
		t.Fatalf("CredentialsPath() error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading credentials file: %v", err)
	}

	if strings.Contains(string(raw), "plaintext-marker") {
		t.Error("password stored in plaintext")
	}
}

// TestLoadMissing verifies the sentinel for absent credentials.
func TestLoadMissing(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Load(); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Load() error = %v, want ErrNoCredentials", err)
	}
}

// TestLoadWrongKey verifies decryption with the wrong key fails.
func TestLoadWrongKey(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(&Credentials{RedisPassword: "secret"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	otherKey := make([]byte, 32)
	for i := range otherKey {
		otherKey[i] = byte(255 - i)
	}
	other, err := NewStoreWithKeyProvider(&testKeyProvider{key: otherKey})
	if err != nil {
		t.Fatalf("NewStoreWithKeyProvider() error = %v", err)
	}

	if _, err := other.Load(); !errors.Is(err, ErrEncryptionFailed) {
		t.Errorf("Load() error = %v, want ErrEncryptionFailed", err)
	}
}

// TestDelete verifies deletion is idempotent.
func TestDelete(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(&Credentials{RedisPassword: "secret"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !store.Exists() {
		t.Fatal("Exists() = false after Save")
	}

	if err := store.Delete(); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.Exists() {
		t.Error("Exists() = true after Delete")
	}

	// Deleting again is a no-op.
	if err := store.Delete(); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

// TestGetRedisPassword verifies env override and stored fallback.
func TestGetRedisPassword(t *testing.T) {
	store := newTestStore(t)

	t.Run("empty when nothing stored", func(t *testing.T) {
		password, err := store.GetRedisPassword()
		if err != nil {
			t.Fatalf("GetRedisPassword() error = %v", err)
		}
		if password != "" {
			t.Errorf("GetRedisPassword() = %v, want empty", password)
		}
	})

	t.Run("from store", func(t *testing.T) {
		if err := store.Save(&Credentials{RedisPassword: "stored"}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		password, err := store.GetRedisPassword()
		if err != nil {
			t.Fatalf("GetRedisPassword() error = %v", err)
		}
		if password != "stored" {
			t.Errorf("GetRedisPassword() = %v, want stored", password)
		}
	})

	t.Run("env wins", func(t *testing.T) {
		t.Setenv("AIRTIME_REDIS_PASSWORD", "from-env")
		password, err := store.GetRedisPassword()
		if err != nil {
			t.Fatalf("GetRedisPassword() error = %v", err)
		}
		if password != "from-env" {
			t.Errorf("GetRedisPassword() = %v, want from-env", password)
		}
	})
}

// TestMaskCredential verifies credential masking for display.
func TestMaskCredential(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"short", "abc", "***"},
		{"exactly 8", "12345678", "********"},
		{"long", "supersecretvalue", "supe********alue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskCredential(tt.in); got != tt.want {
				t.Errorf("MaskCredential(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestCredentialsDir verifies directory resolution.
func TestCredentialsDir(t *testing.T) {
	t.Setenv("AIRTIME_CONFIG_DIR", "/tmp/airtime-creds")
	dir, err := CredentialsDir()
	if err != nil {
		t.Fatalf("CredentialsDir() error = %v", err)
	}
	if dir != "/tmp/airtime-creds" {
		t.Errorf("CredentialsDir() = %v, want /tmp/airtime-creds", dir)
	}

	path, err := CredentialsPath()
	if err != nil {
		t.Fatalf("CredentialsPath() error = %v", err)
	}
	if path != filepath.Join("/tmp/airtime-creds", DefaultCredentialsFile) {
		t.Errorf("CredentialsPath() = %v", path)
	}
}
