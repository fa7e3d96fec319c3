// Package cmd implements the with CLI using the Cobra framework.
//
// Architecture:
//   - Commands are defined in individual files (import.go, use.go, export.go, etc.)
//   - Global flags (config dir, profile, backend, verbose) are read through getters
//   - Each command opens a session: configuration, secret store and profile manager
//
// Testing:
//   - Commands are exercised through rootCmd.SetArgs against a temporary config dir
//   - Process execution is replaced via execCommand and lookPath
//
// Security:
//   - Secret values are never logged and never written to the audit log
//   - Values are read from a masked prompt, stdin or a file, never from arguments
package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dkmnx/with/internal/audit"
	"github.com/dkmnx/with/internal/config"
	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/logging"
	"github.com/dkmnx/with/internal/profile"
	"github.com/dkmnx/with/internal/store"
	"github.com/dkmnx/with/internal/ui"
	"github.com/dkmnx/with/internal/validate"
	withversion "github.com/dkmnx/with/internal/version"
	"github.com/dkmnx/with/pkg/env"
)

var (
	configDir   string
	profileFlag string
	backendFlag string
	verbose     bool
	flagsMu     sync.RWMutex // Protects the flag values above

	logger   = zap.NewNop()
	loggerMu sync.RWMutex
)

// storeFs is the filesystem handed to file-backed stores.
var storeFs = afero.NewOsFs()

func getConfigDir() string {
	flagsMu.RLock()
	defer flagsMu.RUnlock()
	if configDir != "" {
		return configDir
	}
	return env.GetConfigDir()
}

func getVerbose() bool {
	flagsMu.RLock()
	defer flagsMu.RUnlock()
	return verbose
}

func getLogger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

func setLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

var rootCmd = &cobra.Command{
	Use:   "with",
	Short: "Run commands with profile-scoped secrets",
	Long: heredoc.Docf(`
		with keeps named profiles of secrets in a secret store and runs
		commands with those secrets injected as environment variables.

		Secrets are imported from dotenv lines (KEY=value) or shell
		statements (export KEY=value).

		Backends: %s

		Version: %s (commit: %s, date: %s)`,
		"age, keyring, azure-keyvault", withversion.Version, withversion.Commit, withversion.Date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(getVerbose())
		if err != nil {
			return witherrors.WrapError(witherrors.ConfigError, "failed to create logger", err)
		}
		setLogger(l)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = getLogger().Sync()
	},
}

// Execute runs the CLI with ctx, which is cancelled on SIGINT or SIGTERM by
// the caller. Errors are printed before they are returned.
func Execute(ctx context.Context, args []string) error {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "Config directory (default $WITH_CONFIG_DIR or ~/.config/with)")
	rootCmd.PersistentFlags().StringVarP(&profileFlag, "profile", "p", "", "Profile to use (default $WITH_PROFILE or default_profile)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Secret store backend (age, keyring, azure-keyvault)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

// session is what most commands need: the configuration, the selected
// profile and a manager over the configured store.
type session struct {
	dir     string
	cfg     *config.Config
	backend string
	profile string
	store   store.Store
	manager *profile.Manager
	logger  *zap.Logger
}

// openSession loads the configuration and opens the secret store.
func openSession() (*session, error) {
	dir := getConfigDir()
	if dir == "" {
		return nil, witherrors.NewError(witherrors.ConfigError, "config directory not found").
			WithContext("hint", "set --config or "+env.EnvConfigDir)
	}

	cfg, err := config.LoadOrDefault(dir)
	if err != nil {
		return nil, err
	}

	flagsMu.RLock()
	backend, profileName := backendFlag, profileFlag
	flagsMu.RUnlock()

	if backend == "" {
		backend = cfg.BackendName()
	}
	profileName = cfg.ResolveProfile(profileName)
	if err := validate.ValidateProfileName(profileName); err != nil {
		return nil, err
	}

	l := getLogger()
	s, err := store.Open(backend, store.Options{
		Fs:       storeFs,
		Dir:      dir,
		VaultURL: cfg.KeyVault.URL,
		Logger:   l,
	})
	if err != nil {
		return nil, err
	}

	l.Debug("session opened",
		zap.String("config_dir", dir),
		zap.String("backend", backend),
		zap.String("profile", profileName))

	return &session{
		dir:     dir,
		cfg:     cfg,
		backend: backend,
		profile: profileName,
		store:   s,
		manager: profile.NewManager(s, l),
		logger:  l,
	}, nil
}

// audit records an event, warning instead of failing the command.
func (s *session) audit(fn func(*audit.Logger) error) {
	if err := logAuditEvent(s.dir, s.backend, fn); err != nil {
		ui.PrintWarn(fmt.Sprintf("Audit logging failed: %v", err))
	}
}

// rememberProfile records the profile in config.yaml.
func (s *session) rememberProfile() {
	err := config.Update(s.dir, func(cfg *config.Config) error {
		cfg.AddProfile(s.profile)
		return nil
	})
	if err != nil {
		ui.PrintWarn(fmt.Sprintf("Could not record profile in configuration: %v", err))
	}
}

// exitError carries a child process exit code through cobra.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.code)
}

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func printError(err error) {
	var ee *exitError
	if errors.As(err, &ee) {
		return
	}
	ui.PrintError(err.Error())
	if getVerbose() {
		var we *witherrors.WithError
		if errors.As(err, &we) {
			ui.PrintGray(fmt.Sprintf("Error type: %s", we.Type))
		}
	}
}
