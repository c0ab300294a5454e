package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_RoundTrip(t *testing.T) {
	cfg := &Config{
		PrivateKey: "deadbeef",
		Relays:     []string{"wss://relay.example.com"},
		Servers:    []string{"https://cdn.example.com"},
		LogDir:     "/var/log/blossom",
		Database:   DatabaseConfig{Type: "sqlite", DataDir: "/data"},
		Encryption: EncryptionConfig{Type: "age"},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: "/mnt/backup"},
			{Type: "s3", Name: "offsite", S3Bucket: "blobs", S3Region: "eu-west-1"},
		},
	}

	var buf bytes.Buffer
	m := &Manager{}
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.PrivateKey != cfg.PrivateKey {
		t.Errorf("private_key = %q, want %q", got.PrivateKey, cfg.PrivateKey)
	}
	if len(got.Relays) != 1 || got.Relays[0] != cfg.Relays[0] {
		t.Errorf("relays = %v, want %v", got.Relays, cfg.Relays)
	}
	if got.Database.Type != "sqlite" || got.Database.DataDir != "/data" {
		t.Errorf("database = %+v", got.Database)
	}
	if len(got.Vaults) != 2 {
		t.Fatalf("vaults = %d, want 2", len(got.Vaults))
	}
	if got.Vaults[1].S3Bucket != "blobs" || got.Vaults[1].S3Region != "eu-west-1" {
		t.Errorf("s3 vault = %+v", got.Vaults[1])
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("key123", "/home/user/.local/share/blossom")

	if cfg.PrivateKey != "key123" {
		t.Errorf("private_key = %q, want %q", cfg.PrivateKey, "key123")
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("database type = %q, want sqlite", cfg.Database.Type)
	}
	if want := filepath.Join("/home/user/.local/share/blossom", "data"); cfg.Database.DataDir != want {
		t.Errorf("data dir = %q, want %q", cfg.Database.DataDir, want)
	}
	if want := filepath.Join("/home/user/.local/share/blossom", "log"); cfg.LogDir != want {
		t.Errorf("log dir = %q, want %q", cfg.LogDir, want)
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "blossom.toml")
	cfg := NewConfig("secretkey", dir)

	if err := Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	t.Run("file is owner-only", func(t *testing.T) {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("config file mode = %o, want 0600", perm)
		}
	})

	t.Run("readable back", func(t *testing.T) {
		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.PrivateKey != "secretkey" {
			t.Errorf("private_key = %q, want %q", got.PrivateKey, "secretkey")
		}
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		if err := Init(path, cfg); err == nil {
			t.Errorf("Init() overwrote an existing config")
		}
	})
}
