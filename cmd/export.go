package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/kballard/go-shellquote"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/dkmnx/with/internal/envparse"
	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/ui"
)

const (
	formatDotenv = "dotenv"
	formatShell  = "shell"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print a profile's secrets as dotenv lines or shell statements",
	Long: heredoc.Doc(`
		Print every secret of the selected profile, sorted by name.

		The dotenv format can be read back with 'with import'. The shell
		format prints export statements quoted for POSIX shells, for use
		with eval.`),
	Example: heredoc.Doc(`
		with export -p dev > dev.env
		eval "$(with export --format shell -p dev)"`),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := strings.ToLower(exportFormat)
		if format != formatDotenv && format != formatShell {
			return witherrors.NewError(witherrors.ValidationError,
				fmt.Sprintf("unsupported format: %s (supported: dotenv, shell)", exportFormat))
		}

		s, err := openSession()
		if err != nil {
			return err
		}

		secrets, err := s.manager.Secrets(cmd.Context(), s.profile)
		if err != nil {
			return err
		}
		if len(secrets) == 0 {
			ui.PrintWarn(fmt.Sprintf("Profile '%s' has no secrets", s.profile))
			return nil
		}

		return writeSecrets(cmd.OutOrStdout(), secrets, format)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", formatDotenv, "Output format (dotenv, shell)")
	rootCmd.AddCommand(exportCmd)
}

func writeSecrets(w io.Writer, secrets map[string]string, format string) error {
	names := lo.Keys(secrets)
	sort.Strings(names)

	for _, name := range names {
		var line string
		switch format {
		case formatShell:
			line = "export " + name + "=" + shellquote.Join(secrets[name])
		default:
			token, ok := envparse.Quote(secrets[name])
			if !ok {
				ui.PrintWarn(fmt.Sprintf("%s cannot be written so that import reads it back unchanged", name))
			}
			line = name + "=" + token
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return witherrors.WrapError(witherrors.FileSystemError, "failed to write output", err)
		}
	}
	return nil
}
