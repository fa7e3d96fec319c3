package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dkmnx/with/internal/audit"
	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/profile"
	"github.com/dkmnx/with/internal/ui"
)

var unsetCmd = &cobra.Command{
	Use:     "unset NAME",
	Aliases: []string{"rm"},
	Short:   "Remove one secret from a profile",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		name := args[0]

		if err := s.manager.Unset(cmd.Context(), s.profile, name); err != nil {
			if errors.Is(err, profile.ErrSecretNotFound) {
				return witherrors.NewError(witherrors.ValidationError,
					fmt.Sprintf("secret '%s' not found in profile '%s'", name, s.profile))
			}
			return err
		}

		s.audit(func(l *audit.Logger) error { return l.LogUnset(s.profile, name) })
		ui.PrintSuccess(fmt.Sprintf("Removed %s from profile '%s'", name, s.profile))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(unsetCmd)
}
