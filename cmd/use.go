package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dkmnx/with/internal/audit"
	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/ui"
)

// childWaitDelay is how long a cancelled child gets to exit after SIGTERM.
const childWaitDelay = 5 * time.Second

var useCommandString string

var useCmd = &cobra.Command{
	Use:   "use [-c COMMAND] [--] COMMAND [ARGS...]",
	Short: "Run a command with a profile's secrets in its environment",
	Long: heredoc.Doc(`
		Run a command with the secrets of the selected profile added to the
		current environment. A secret replaces an inherited variable of the
		same name. The command's exit status becomes the exit status of with.

		With -c the command is given as one string and split into words
		using shell quoting rules. No shell is started, so pipes and
		redirections are not interpreted.`),
	Example: heredoc.Doc(`
		with use -p prod -- terraform plan
		with use -c 'psql "$DATABASE_URL"'`),
	Args: func(cmd *cobra.Command, args []string) error {
		if useCommandString != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: runUse,
}

func init() {
	useCmd.Flags().StringVarP(&useCommandString, "command", "c", "", "Command line to run, split with shell quoting rules")
	rootCmd.AddCommand(useCmd)
}

func runUse(cmd *cobra.Command, args []string) error {
	words := args
	if useCommandString != "" {
		var err error
		words, err = shellquote.Split(useCommandString)
		if err != nil {
			return witherrors.WrapError(witherrors.ValidationError, "invalid command string", err)
		}
		if len(words) == 0 {
			return witherrors.NewError(witherrors.ValidationError, "empty command string")
		}
	}

	s, err := openSession()
	if err != nil {
		return err
	}

	secrets, err := s.manager.Environ(cmd.Context(), s.profile)
	if err != nil {
		return err
	}
	if len(secrets) == 0 {
		ui.PrintWarn(fmt.Sprintf("Profile '%s' has no secrets", s.profile))
	}

	path, err := lookPath(words[0])
	if err != nil {
		return witherrors.RuntimeErr(fmt.Sprintf("'%s' command not found in PATH", words[0]), err)
	}

	child := execCommand(cmd.Context(), path, words[1:]...)
	child.Env = mergeEnvVars(os.Environ(), secrets)
	child.Stdin = cmd.InOrStdin()
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()
	child.Cancel = func() error { return child.Process.Signal(syscall.SIGTERM) }
	child.WaitDelay = childWaitDelay

	s.logger.Debug("running command",
		zap.String("profile", s.profile),
		zap.String("command", words[0]),
		zap.Int("secrets", len(secrets)))

	code := 0
	if err := child.Run(); err != nil {
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			return witherrors.RuntimeErr("failed to run command", err).
				WithContext("command", words[0])
		}
		code = ee.ExitCode()
		if code < 0 {
			code = 1
		}
	}

	s.audit(func(l *audit.Logger) error { return l.LogUse(s.profile, words[0], code) })

	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}
