package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/dkmnx/with/internal/audit"
	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/ui"
)

var setFromStdin bool

var setCmd = &cobra.Command{
	Use:   "set NAME",
	Short: "Store one secret",
	Long: heredoc.Doc(`
		Store a single secret in the selected profile. The value is read
		from a masked prompt, or from the first line of stdin with --stdin.
		Values are never taken from the command line.`),
	Example: heredoc.Doc(`
		with set GITHUB_TOKEN -p work
		op read op://vault/item/token | with set API_TOKEN --stdin`),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		name := args[0]

		value, err := readSecretValue(cmd, name)
		if err != nil {
			return err
		}

		if err := s.manager.Set(cmd.Context(), s.profile, name, value); err != nil {
			return err
		}

		s.rememberProfile()
		s.audit(func(l *audit.Logger) error { return l.LogSet(s.profile, name) })
		ui.PrintSuccess(fmt.Sprintf("Stored %s in profile '%s'", name, s.profile))
		return nil
	},
}

func init() {
	setCmd.Flags().BoolVar(&setFromStdin, "stdin", false, "Read the value from the first line of stdin")
	rootCmd.AddCommand(setCmd)
}

func readSecretValue(cmd *cobra.Command, name string) (string, error) {
	var (
		value string
		err   error
	)
	if setFromStdin {
		value, err = ui.ReadLine(cmd.InOrStdin())
	} else {
		value, err = ui.PromptSecret(os.Stdin, fmt.Sprintf("Value for %s", name))
	}
	if errors.Is(err, io.EOF) {
		return "", witherrors.NewError(witherrors.ValidationError, "no value provided").
			WithContext("name", name)
	}
	if err != nil {
		return "", witherrors.WrapError(witherrors.RuntimeError, "failed to read secret value", err)
	}
	return value, nil
}
