// Package env resolves the config directory.
package env

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvConfigDir overrides the default config directory.
const EnvConfigDir = "WITH_CONFIG_DIR"

var (
	configDir string
)

// GetConfigDir returns the directory set with SetConfigDir, else
// $WITH_CONFIG_DIR, else ~/.config/with. It returns "" when the home
// directory cannot be determined.
func GetConfigDir() string {
	if configDir != "" {
		return configDir
	}
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "with")
}

// SetConfigDir overrides the config directory for this process.
func SetConfigDir(dir string) {
	configDir = dir
}

// IsSubPath reports whether child lies strictly inside parent.
func IsSubPath(parent, child string) bool {
	parent = filepath.Clean(parent)
	child = filepath.Clean(child)
	if !strings.HasPrefix(child, parent) {
		return false
	}
	rel := strings.TrimPrefix(child, parent)
	return rel != "" && (rel[0] == '/' || rel[0] == filepath.Separator)
}
