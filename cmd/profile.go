package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dkmnx/with/internal/audit"
	"github.com/dkmnx/with/internal/config"
	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/ui"
	"github.com/dkmnx/with/internal/validate"
)

// confirm and stdinIsTerminal are replaced in tests.
var (
	confirm         = ui.Confirm
	stdinIsTerminal = func() bool { return ui.IsTerminal(os.Stdin) }
)

var profileDeleteYes bool

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage profiles",
}

var profileDefaultCmd = &cobra.Command{
	Use:   "default [NAME]",
	Short: "Show or set the default profile",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := getConfigDir()

		if len(args) == 0 {
			cfg, err := config.LoadOrDefault(dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.ResolveProfile(""))
			return nil
		}

		name := args[0]
		if err := validate.ValidateProfileName(name); err != nil {
			return err
		}

		err := config.Update(dir, func(cfg *config.Config) error {
			cfg.DefaultProfile = name
			cfg.AddProfile(name)
			return nil
		})
		if err != nil {
			return err
		}

		if err := logAuditEvent(dir, "", func(l *audit.Logger) error {
			return l.LogSuccess(audit.EventDefault, name, nil)
		}); err != nil {
			ui.PrintWarn(fmt.Sprintf("Audit logging failed: %v", err))
		}

		ui.PrintSuccess(fmt.Sprintf("Default profile set to '%s'", name))
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a profile and every secret in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := validate.ValidateProfileName(name); err != nil {
			return err
		}

		if !profileDeleteYes {
			ok, err := confirmDestructive(cmd.Context(),
				fmt.Sprintf("Delete profile '%s' and all of its secrets?", name))
			if err != nil {
				return err
			}
			if !ok {
				ui.PrintInfo("Operation cancelled")
				return nil
			}
		}

		s, err := openSession()
		if err != nil {
			return err
		}

		removed, err := s.manager.Delete(cmd.Context(), name)
		if err != nil {
			s.audit(func(l *audit.Logger) error {
				return l.LogFailure(audit.EventProfileDelete, name, err.Error(), nil)
			})
			return err
		}

		if err := config.Update(s.dir, func(cfg *config.Config) error {
			cfg.RemoveProfile(name)
			return nil
		}); err != nil {
			ui.PrintWarn(fmt.Sprintf("Could not update configuration: %v", err))
		}

		s.audit(func(l *audit.Logger) error { return l.LogProfileDelete(name, removed) })
		ui.PrintSuccess(fmt.Sprintf("Deleted profile '%s' (%d secrets removed)", name, removed))
		return nil
	},
}

func init() {
	profileDeleteCmd.Flags().BoolVarP(&profileDeleteYes, "yes", "y", false, "Do not ask for confirmation")
	profileCmd.AddCommand(profileDefaultCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	rootCmd.AddCommand(profileCmd)
}

// confirmDestructive asks before a destructive action. Without a terminal
// there is nobody to ask, so the caller must pass --yes.
func confirmDestructive(ctx context.Context, message string) (bool, error) {
	if !stdinIsTerminal() {
		return false, witherrors.NewError(witherrors.ValidationError,
			"confirmation required, rerun with --yes")
	}
	return confirm(ctx, message), nil
}
