package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/dkmnx/with/internal/audit"
	"github.com/dkmnx/with/internal/envparse"
	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/profile"
	"github.com/dkmnx/with/internal/ui"
)

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import secrets from dotenv lines or export statements",
	Long: heredoc.Doc(`
		Read secret definitions from stdin (or --file) and store them in the
		selected profile.

		Each definition is KEY=value or export KEY=value. Values may be bare
		words or single- or double-quoted; inside quotes, \" \' and \\ are
		escapes. Spaces are allowed around '='. Definitions are separated by
		line breaks. Comments, variable expansion and multi-line values are
		not supported.

		When a key appears more than once the last value wins. Either every
		secret is stored or none is.`),
	Example: heredoc.Doc(`
		with import -p dev < .env
		with import --file staging.env --profile staging
		printf 'export TOKEN="abc"\n' | with import`),
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "Read definitions from a file instead of stdin")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}

	var r io.Reader = cmd.InOrStdin()
	if importFile != "" {
		f, err := os.Open(importFile)
		if err != nil {
			return witherrors.FileError("failed to open import file", importFile, err)
		}
		defer f.Close()
		r = f
	}

	src, err := readDefinitions(r)
	if err != nil {
		return err
	}

	entries, err := envparse.Parse(src)
	if err != nil {
		return describeParseError(err)
	}

	result, err := s.manager.Import(cmd.Context(), s.profile, profile.FromEntries(entries))
	if err != nil {
		s.audit(func(l *audit.Logger) error {
			return l.LogFailure(audit.EventImport, s.profile, err.Error(), nil)
		})
		return err
	}

	s.rememberProfile()
	s.audit(func(l *audit.Logger) error {
		names := append(append([]string{}, result.Added...), result.Updated...)
		return l.LogImport(s.profile, names, map[string]any{
			"added":     len(result.Added),
			"updated":   len(result.Updated),
			"unchanged": len(result.Unchanged),
		})
	})

	ui.PrintSuccess(fmt.Sprintf("Imported %d secrets into profile '%s' (%d added, %d updated, %d unchanged)",
		result.Total(), s.profile, len(result.Added), len(result.Updated), len(result.Unchanged)))
	return nil
}

// describeParseError turns a parser error into a user-facing error.
func describeParseError(err error) error {
	var trailing *envparse.TrailingInputError
	if errors.As(err, &trailing) {
		return witherrors.NewError(witherrors.ParseError, fmt.Sprintf("parse error at %q", trailing.Remainder)).
			WithContext("offset", strconv.Itoa(trailing.Offset))
	}

	var grammar *envparse.GrammarError
	if errors.As(err, &grammar) {
		return witherrors.WrapError(witherrors.ParseError, "no secret definitions could be read", grammar)
	}

	return witherrors.WrapError(witherrors.ParseError, "failed to parse input", err)
}
