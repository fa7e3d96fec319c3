package env

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetConfigDir(t *testing.T) {
	t.Run("returns custom config dir when set", func(t *testing.T) {
		SetConfigDir("/custom/path")
		defer SetConfigDir("")

		if dir := GetConfigDir(); dir != "/custom/path" {
			t.Errorf("GetConfigDir() = %q, want %q", dir, "/custom/path")
		}
	})

	t.Run("environment variable overrides home", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "/from/env")

		if dir := GetConfigDir(); dir != "/from/env" {
			t.Errorf("GetConfigDir() = %q, want %q", dir, "/from/env")
		}
	})

	t.Run("explicit dir beats environment", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "/from/env")
		SetConfigDir("/explicit")
		defer SetConfigDir("")

		if dir := GetConfigDir(); dir != "/explicit" {
			t.Errorf("GetConfigDir() = %q, want %q", dir, "/explicit")
		}
	})

	t.Run("returns default config dir from home", func(t *testing.T) {
		t.Setenv(EnvConfigDir, "")

		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("cannot find home directory")
		}

		expected := filepath.Join(home, ".config", "with")
		if dir := GetConfigDir(); dir != expected {
			t.Errorf("GetConfigDir() = %q, want %q", dir, expected)
		}
	})
}

func TestIsSubPath(t *testing.T) {
	tests := []struct {
		name   string
		parent string
		child  string
		want   bool
	}{
		{"direct child", "/cfg", "/cfg/age.key", true},
		{"nested child", "/cfg", "/cfg/profiles/dev.age", true},
		{"same path", "/cfg", "/cfg", false},
		{"sibling with shared prefix", "/cfg", "/cfg-other/file", false},
		{"traversal", "/cfg", "/cfg/../etc/passwd", false},
		{"trailing slash parent", "/cfg/", "/cfg/age.key", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSubPath(tt.parent, tt.child); got != tt.want {
				t.Errorf("IsSubPath(%q, %q) = %v, want %v", tt.parent, tt.child, got, tt.want)
			}
		})
	}
}
