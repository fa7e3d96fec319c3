package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/dkmnx/with/internal/audit"
	"github.com/dkmnx/with/internal/crypto"
	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/recoveryphrase"
	"github.com/dkmnx/with/internal/ui"
)

var (
	keyRecoverForce bool
	keyRecoverStdin bool
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the age encryption key",
}

var keyPhraseCmd = &cobra.Command{
	Use:   "phrase",
	Short: "Print a recovery phrase for the age key",
	Long: heredoc.Doc(`
		Print the age key as a phrase of short groups ending in a checksum.
		Anyone holding the phrase can decrypt every profile vault, so store
		it as carefully as the key itself.`),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := getConfigDir()
		if dir == "" {
			return witherrors.NewError(witherrors.ConfigError, "config directory not found")
		}
		keyPath := filepath.Join(dir, crypto.KeyFileName)
		if _, err := storeFs.Stat(keyPath); os.IsNotExist(err) {
			return witherrors.NewError(witherrors.ConfigError, "no age key yet").
				WithContext("hint", "import a secret first to create one")
		}

		phrase, err := recoveryphrase.Create(storeFs, keyPath)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), phrase)
		return nil
	},
}

var keyRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Rebuild the age key from a recovery phrase",
	Long: heredoc.Doc(`
		Read a recovery phrase and write the age key it encodes to the
		config directory. An existing key is kept unless --force is given.`),
	Example: heredoc.Doc(`
		with key recover
		echo "$PHRASE" | with key recover --stdin`),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := getConfigDir()
		if dir == "" {
			return witherrors.NewError(witherrors.ConfigError, "config directory not found")
		}

		var (
			phrase string
			err    error
		)
		if keyRecoverStdin {
			phrase, err = ui.ReadLine(cmd.InOrStdin())
		} else {
			phrase, err = ui.PromptSecret(os.Stdin, "Recovery phrase")
		}
		if errors.Is(err, io.EOF) {
			return witherrors.NewError(witherrors.ValidationError, "no recovery phrase provided")
		}
		if err != nil {
			return witherrors.WrapError(witherrors.RuntimeError, "failed to read recovery phrase", err)
		}

		if err := recoveryphrase.Recover(storeFs, dir, phrase, keyRecoverForce); err != nil {
			_ = logAuditEvent(dir, "", func(l *audit.Logger) error {
				return l.LogFailure(audit.EventKeyRecover, "", err.Error(), nil)
			})
			return err
		}
		if err := logAuditEvent(dir, "", func(l *audit.Logger) error {
			return l.LogSuccess(audit.EventKeyRecover, "", nil)
		}); err != nil {
			ui.PrintWarn(fmt.Sprintf("Audit logging failed: %v", err))
		}
		ui.PrintSuccess("Encryption key recovered")
		return nil
	},
}

func init() {
	keyRecoverCmd.Flags().BoolVar(&keyRecoverForce, "force", false, "Replace an existing key")
	keyRecoverCmd.Flags().BoolVar(&keyRecoverStdin, "stdin", false, "Read the phrase from the first line of stdin")
	keyCmd.AddCommand(keyPhraseCmd)
	keyCmd.AddCommand(keyRecoverCmd)
	rootCmd.AddCommand(keyCmd)
}
