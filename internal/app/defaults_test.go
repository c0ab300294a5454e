package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("BLOSSOM_CONFIG_PATH", "/custom/blossom.toml")
		t.Setenv("BLOSSOM_HOME", "/custom/blossom")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/blossom.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/blossom.toml")
		}
		if defaults["base_dir"] != "/custom/blossom" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/blossom")
		}
		if defaults["log_dir"] != "/custom/blossom/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/blossom/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("BLOSSOM_CONFIG_PATH", "")
		t.Setenv("BLOSSOM_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()
		if want := filepath.Join(homeDir, ".config", "blossom.toml"); defaults["config_path"] != want {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], want)
		}
		if want := filepath.Join(homeDir, ".local", "share", "blossom"); defaults["base_dir"] != want {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], want)
		}
	})
}
