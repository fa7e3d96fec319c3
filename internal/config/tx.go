package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	witherrors "github.com/dkmnx/with/internal/errors"
)

// Update loads the configuration, applies fn and saves the result. When a
// config file exists it is backed up first and restored if saving fails.
// Nothing is written when fn returns an error.
func Update(configDir string, fn func(cfg *Config) error) error {
	cfg, err := LoadOrDefault(configDir)
	if err != nil {
		return err
	}

	if err := fn(cfg); err != nil {
		return err
	}

	backupPath, err := createBackup(configDir)
	if err != nil {
		return witherrors.WrapError(witherrors.ConfigError, "failed to create transaction backup", err)
	}

	if err := SaveConfig(configDir, cfg); err != nil {
		if backupPath == "" {
			return err
		}
		if rbErr := rollback(configDir, backupPath); rbErr != nil {
			return witherrors.WrapError(witherrors.ConfigError,
				"configuration update failed and rollback also failed", err).
				WithContext("rollback_error", rbErr.Error()).
				WithContext("backup_path", backupPath)
		}
		return witherrors.WrapError(witherrors.ConfigError, "configuration update failed, changes rolled back", err)
	}

	if backupPath != "" {
		_ = os.Remove(backupPath)
	}
	return nil
}

// createBackup copies config.yaml next to itself. It returns "" when there
// is no file to back up.
func createBackup(configDir string) (string, error) {
	data, err := os.ReadFile(Path(configDir))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	backupPath := backupPathFor(configDir)
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return "", err
	}
	return backupPath, nil
}

func rollback(configDir, backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}
	if err := os.WriteFile(Path(configDir), data, 0600); err != nil {
		return fmt.Errorf("failed to restore config from backup: %w", err)
	}
	return nil
}

func backupPathFor(configDir string) string {
	timestamp := time.Now().Format("20060102-150405.000000000")
	return Path(configDir) + ".backup." + timestamp
}
