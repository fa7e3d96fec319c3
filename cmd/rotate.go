package cmd

import (
	"context"
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/dkmnx/with/internal/audit"
	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/ui"
)

// keyRotator is implemented by stores that own their encryption key.
type keyRotator interface {
	RotateKey(ctx context.Context) error
	VaultPaths() ([]string, error)
}

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Rotate the encryption key of the age backend",
	Long: heredoc.Doc(`
		Generate a new age X25519 key and re-encrypt every profile vault
		with it. If any vault cannot be re-encrypted the old key and the
		original vaults are restored.

		Only the age backend keeps its own key. The keyring and
		azure-keyvault backends rely on the platform's key management.`),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}

		r, ok := s.store.(keyRotator)
		if !ok {
			return witherrors.NewError(witherrors.ValidationError,
				fmt.Sprintf("backend '%s' has no key to rotate", s.backend))
		}

		vaults, err := r.VaultPaths()
		if err != nil {
			return err
		}

		cmd.Printf("Rotating encryption key in %s...\n", s.dir)

		if err := r.RotateKey(cmd.Context()); err != nil {
			s.audit(func(l *audit.Logger) error {
				return l.LogFailure(audit.EventRotate, "", err.Error(), nil)
			})
			return err
		}

		s.audit(func(l *audit.Logger) error { return l.LogRotate(len(vaults)) })
		ui.PrintSuccess(fmt.Sprintf("Encryption key rotated, %d vaults re-encrypted", len(vaults)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rotateCmd)
}
