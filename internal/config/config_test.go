package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	dir := t.TempDir()

	store, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cfg, err := store.Config()
	if err != nil {
		t.Fatalf("Config() error = %v", err)
	}

	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want localhost", cfg.Database.Host)
	}
	if cfg.Security.LockoutThreshold != 5 {
		t.Errorf("Security.LockoutThreshold = %d, want 5", cfg.Security.LockoutThreshold)
	}
	if cfg.Security.GraceIntervalSec != 45 {
		t.Errorf("Security.GraceIntervalSec = %d, want 45", cfg.Security.GraceIntervalSec)
	}
}

func TestLoad_MasterSecretPersistedAndReused(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, ".consultease_key")

	if _, err := Load(dir); err != nil {
		t.Fatalf("first Load() error = %v", err)
	}
	first, err := os.ReadFile(keyFile)
	if err != nil {
		t.Fatalf("expected master secret file to exist: %v", err)
	}

	if _, err := Load(dir); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	second, err := os.ReadFile(keyFile)
	if err != nil {
		t.Fatalf("reading master secret second time: %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("master secret changed across loads, want stable")
	}
}

func TestLoad_PlainFileFallback(t *testing.T) {
	dir := t.TempDir()
	plain := `{"database": {"host": "db.internal", "port": 6543}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(plain), 0o600); err != nil {
		t.Fatalf("writing plain config: %v", err)
	}

	store, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg, err := store.Config()
	if err != nil {
		t.Fatalf("Config() error = %v", err)
	}

	if cfg.Database.Host != "db.internal" {
		t.Errorf("Database.Host = %q, want db.internal", cfg.Database.Host)
	}
	if cfg.Database.Port != 6543 {
		t.Errorf("Database.Port = %d, want 6543", cfg.Database.Port)
	}
	// Unspecified fields retain defaults.
	if cfg.Database.Name != "consultease" {
		t.Errorf("Database.Name = %q, want default consultease", cfg.Database.Name)
	}
}

func TestLoad_EncryptedBlobTakesPrecedenceOverPlainFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"database":{"host":"from-plain"}}`), 0o600); err != nil {
		t.Fatalf("writing plain config: %v", err)
	}

	store, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := store.Set("database.host", "from-blob"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	cfg, err := reloaded.Config()
	if err != nil {
		t.Fatalf("Config() error = %v", err)
	}
	if cfg.Database.Host != "from-blob" {
		t.Errorf("Database.Host = %q, want from-blob (blob should win over plain file)", cfg.Database.Host)
	}
}

func TestLoad_CorruptBlobFallsBackToPlainFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"database":{"host":"from-plain"}}`), 0o600); err != nil {
		t.Fatalf("writing plain config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config_secure.enc"), []byte("not a valid blob"), 0o600); err != nil {
		t.Fatalf("writing corrupt blob: %v", err)
	}

	store, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg, err := store.Config()
	if err != nil {
		t.Fatalf("Config() error = %v", err)
	}
	if cfg.Database.Host != "from-plain" {
		t.Errorf("Database.Host = %q, want from-plain (corrupt blob should fall back)", cfg.Database.Host)
	}
}

func TestLoad_EnvOverridesWinOverAllFileLayers(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"database":{"host":"from-plain","port":1}}`), 0o600); err != nil {
		t.Fatalf("writing plain config: %v", err)
	}
	t.Setenv("DB_HOST", "from-env")
	t.Setenv("DB_PORT", "7777")

	store, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg, err := store.Config()
	if err != nil {
		t.Fatalf("Config() error = %v", err)
	}
	if cfg.Database.Host != "from-env" {
		t.Errorf("Database.Host = %q, want from-env", cfg.Database.Host)
	}
	if cfg.Database.Port != 7777 {
		t.Errorf("Database.Port = %d, want 7777", cfg.Database.Port)
	}
}

func TestStore_GetDottedKey(t *testing.T) {
	dir := t.TempDir()
	store, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	v, ok := store.Get("security.lockout_threshold")
	if !ok {
		t.Fatalf("Get(security.lockout_threshold) not found")
	}
	if n, ok := v.(int); !ok || n != 5 {
		t.Errorf("Get(security.lockout_threshold) = %v, want 5", v)
	}

	if _, ok := store.Get("nonexistent.key"); ok {
		t.Errorf("Get(nonexistent.key) found, want not found")
	}
}

func TestIsSensitive(t *testing.T) {
	cases := []struct {
		key  string
		want bool
	}{
		{"database.password", true},
		{"security.secret_key", true},
		{"database.host", false},
		{"log.level", false},
	}
	for _, tc := range cases {
		if got := IsSensitive(tc.key); got != tc.want {
			t.Errorf("IsSensitive(%q) = %v, want %v", tc.key, got, tc.want)
		}
	}
}

func TestEncryptDecryptValue_RoundTrip(t *testing.T) {
	master := make([]byte, 32)
	for i := range master {
		master[i] = byte(i)
	}

	encrypted, err := EncryptValue("hunter2", master)
	if err != nil {
		t.Fatalf("EncryptValue() error = %v", err)
	}
	if encrypted == "hunter2" {
		t.Errorf("EncryptValue() did not transform input")
	}

	decrypted, err := DecryptValue(encrypted, master)
	if err != nil {
		t.Fatalf("DecryptValue() error = %v", err)
	}
	if decrypted != "hunter2" {
		t.Errorf("DecryptValue() = %q, want hunter2", decrypted)
	}
}

func TestDecryptValue_WrongKeyFails(t *testing.T) {
	master := make([]byte, 32)
	other := make([]byte, 32)
	other[0] = 1

	encrypted, err := EncryptValue("secret", master)
	if err != nil {
		t.Fatalf("EncryptValue() error = %v", err)
	}
	if _, err := DecryptValue(encrypted, other); err == nil {
		t.Errorf("DecryptValue() with wrong key succeeded, want error")
	}
}
