// Package credentials provides secure credential storage for the airtime CLI.
package credentials

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

// TestEnvKeyProvider verifies reading the encryption key from the environment.
func TestEnvKeyProvider(t *testing.T) {
	key := make([]byte, keyLength)
	for i := range key {
		key[i] = byte(i * 3)
	}

	t.Run("valid key", func(t *testing.T) {
		t.Setenv("AIRTIME_TEST_KEY", hex.EncodeToString(key))
		provider := NewEnvKeyProvider("AIRTIME_TEST_KEY")

		got, err := provider.GetKey()
		if err != nil {
			t.Fatalf("GetKey() error = %v", err)
		}
		if !bytes.Equal(got, key) {
			t.Error("GetKey() returned wrong key")
		}
	})

	t.Run("unset variable", func(t *testing.T) {
		provider := NewEnvKeyProvider("AIRTIME_UNSET_KEY")
		if _, err := provider.GetKey(); err == nil {
			t.Error("GetKey() expected error for unset variable")
		}
	})

	t.Run("invalid hex", func(t *testing.T) {
		t.Setenv("AIRTIME_TEST_KEY", "not-hex")
		provider := NewEnvKeyProvider("AIRTIME_TEST_KEY")
		if _, err := provider.GetKey(); err == nil {
			t.Error("GetKey() expected error for invalid hex")
		}
	})

	t.Run("wrong length", func(t *testing.T) {
		t.Setenv("AIRTIME_TEST_KEY", "abcd")
		provider := NewEnvKeyProvider("AIRTIME_TEST_KEY")
		if _, err := provider.GetKey(); err == nil {
			t.Error("GetKey() expected error for short key")
		}
	})

	t.Run("reset unsupported", func(t *testing.T) {
		provider := NewEnvKeyProvider("AIRTIME_TEST_KEY")
		if _, err := provider.ResetKey(); err == nil {
			t.Error("ResetKey() expected error")
		}
	})
}

// TestPassphraseKeyProvider verifies Argon2id key derivation.
func TestPassphraseKeyProvider(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}

	t.Run("deterministic for same inputs", func(t *testing.T) {
		p1 := NewPassphraseKeyProvider("correct horse battery", salt)
		p2 := NewPassphraseKeyProvider("correct horse battery", salt)

		k1, err := p1.GetKey()
		if err != nil {
			t.Fatalf("GetKey() error = %v", err)
		}
		k2, err := p2.GetKey()
		if err != nil {
			t.Fatalf("GetKey() error = %v", err)
		}

		if len(k1) != keyLength {
			t.Errorf("key length = %d, want %d", len(k1), keyLength)
		}
		if !bytes.Equal(k1, k2) {
			t.Error("same passphrase and salt produced different keys")
		}
	})

	t.Run("different passphrase different key", func(t *testing.T) {
		k1, err := NewPassphraseKeyProvider("passphrase-one", salt).GetKey()
		if err != nil {
			t.Fatalf("GetKey() error = %v", err)
		}
		k2, err := NewPassphraseKeyProvider("passphrase-two", salt).GetKey()
		if err != nil {
			t.Fatalf("GetKey() error = %v", err)
		}
		if bytes.Equal(k1, k2) {
			t.Error("different passphrases produced the same key")
		}
	})

	t.Run("different salt different key", func(t *testing.T) {
		otherSalt, err := GenerateSalt()
		if err != nil {
			t.Fatalf("GenerateSalt() error = %v", err)
		}
		k1, err := NewPassphraseKeyProvider("passphrase", salt).GetKey()
		if err != nil {
			t.Fatalf("GetKey() error = %v", err)
		}
		k2, err := NewPassphraseKeyProvider("passphrase", otherSalt).GetKey()
		if err != nil {
			t.Fatalf("GetKey() error = %v", err)
		}
		if bytes.Equal(k1, k2) {
			t.Error("different salts produced the same key")
		}
	})

	t.Run("missing passphrase", func(t *testing.T) {
		if _, err := NewPassphraseKeyProvider("", salt).GetKey(); err == nil {
			t.Error("GetKey() expected error for empty passphrase")
		}
	})

	t.Run("missing salt", func(t *testing.T) {
		if _, err := NewPassphraseKeyProvider("passphrase", nil).GetKey(); err == nil {
			t.Error("GetKey() expected error for missing salt")
		}
	})
}

// TestGenerateSalt verifies salt generation.
func TestGenerateSalt(t *testing.T) {
	s1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	if len(s1) != 16 {
		t.Errorf("salt length = %d, want 16", len(s1))
	}

	s2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	if bytes.Equal(s1, s2) {
		t.Error("two salts should not be identical")
	}
}

// TestGetDefaultKeyProviderEnvPriority verifies the env key wins over the keyring.
func TestGetDefaultKeyProviderEnvPriority(t *testing.T) {
	key := make([]byte, keyLength)
	t.Setenv("AIRTIME_ENCRYPTION_KEY", hex.EncodeToString(key))

	provider, err := GetDefaultKeyProvider()
	if err != nil {
		t.Fatalf("GetDefaultKeyProvider() error = %v", err)
	}
	if _, ok := provider.(*EnvKeyProvider); !ok {
		t.Errorf("provider = %T, want *EnvKeyProvider", provider)
	}
}

// TestGetDefaultKeyProviderPassphrase verifies the passphrase path: a salt
// file appears beside the credentials on first use, and subsequent runs
// derive the same key from it.
func TestGetDefaultKeyProviderPassphrase(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AIRTIME_CONFIG_DIR", dir)
	t.Setenv("AIRTIME_ENCRYPTION_KEY", "")
	t.Setenv("AIRTIME_ENCRYPTION_PASSPHRASE", "correct horse battery staple")

	provider, err := GetDefaultKeyProvider()
	if err != nil {
		t.Fatalf("GetDefaultKeyProvider() error = %v", err)
	}
	if _, ok := provider.(*PassphraseKeyProvider); !ok {
		t.Fatalf("provider = %T, want *PassphraseKeyProvider", provider)
	}

	key1, err := provider.GetKey()
	if err != nil {
		t.Fatalf("GetKey() error = %v", err)
	}
	if len(key1) != keyLength {
		t.Errorf("key length = %d, want %d", len(key1), keyLength)
	}

	if _, err := os.Stat(filepath.Join(dir, saltFile)); err != nil {
		t.Errorf("expected salt file beside credentials: %v", err)
	}

	// A second lookup reuses the stored salt, so the keys match.
	provider2, err := GetDefaultKeyProvider()
	if err != nil {
		t.Fatalf("GetDefaultKeyProvider() second call error = %v", err)
	}
	key2, err := provider2.GetKey()
	if err != nil {
		t.Fatalf("GetKey() second call error = %v", err)
	}
	if !bytes.Equal(key1, key2) {
		t.Error("expected the same derived key across runs")
	}
}

func TestGetDefaultKeyProviderCorruptSalt(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AIRTIME_CONFIG_DIR", dir)
	t.Setenv("AIRTIME_ENCRYPTION_KEY", "")
	t.Setenv("AIRTIME_ENCRYPTION_PASSPHRASE", "hunter2hunter2")

	if err := os.WriteFile(filepath.Join(dir, saltFile), []byte("not hex!\n"), 0o600); err != nil {
		t.Fatalf("writing salt file: %v", err)
	}

	if _, err := GetDefaultKeyProvider(); err == nil {
		t.Fatal("expected error for corrupt salt file")
	}
}
