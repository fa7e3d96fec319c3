package cmd

import (
	"go.uber.org/zap"

	"github.com/dkmnx/with/internal/audit"
	witherrors "github.com/dkmnx/with/internal/errors"
)

// logAuditEvent opens the audit log in configDir, runs logFunc and closes
// the log again.
func logAuditEvent(configDir, backend string, logFunc func(*audit.Logger) error) error {
	logger, err := audit.NewLogger(configDir, backend)
	if err != nil {
		return witherrors.WrapError(witherrors.ConfigError,
			"failed to create audit logger", err)
	}
	defer logger.Close()

	if _, err := logger.RotateLog(); err != nil {
		getLogger().Debug("audit log rotation failed", zap.Error(err))
	}

	if err := logFunc(logger); err != nil {
		return witherrors.WrapError(witherrors.ConfigError,
			"failed to log audit event", err)
	}
	return nil
}
