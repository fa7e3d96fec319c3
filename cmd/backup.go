package cmd

import (
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/dkmnx/with/internal/audit"
	"github.com/dkmnx/with/internal/backup"
	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/ui"
)

var restoreYes bool

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a backup of the configuration, key and vaults",
	Long: heredoc.Doc(`
		Create a timestamped zip of config.yaml, the age key and every
		profile vault. Backups are stored in the backups directory of the
		config directory.

		Secrets held by the keyring or azure-keyvault backends are not
		part of the backup.`),
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := getConfigDir()
		if dir == "" {
			return witherrors.NewError(witherrors.ConfigError, "config directory not found")
		}

		backupPath, err := backup.CreateBackup(storeFs, dir)
		if err != nil {
			return err
		}

		if err := logAuditEvent(dir, "", func(l *audit.Logger) error {
			return l.LogSuccess(audit.EventBackup, "", map[string]any{"path": backupPath})
		}); err != nil {
			ui.PrintWarn(fmt.Sprintf("Audit logging failed: %v", err))
		}

		ui.PrintSuccess(fmt.Sprintf("Backup created: %s", backupPath))
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore BACKUP_FILE",
	Short: "Restore from a backup file",
	Long: heredoc.Doc(`
		Restore the configuration, key and vaults from a backup zip.
		Existing files with the same names are overwritten.`),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := getConfigDir()
		if dir == "" {
			return witherrors.NewError(witherrors.ConfigError, "config directory not found")
		}

		if !restoreYes {
			ok, err := confirmDestructive(cmd.Context(),
				fmt.Sprintf("Overwrite the configuration in %s?", dir))
			if err != nil {
				return err
			}
			if !ok {
				ui.PrintInfo("Operation cancelled")
				return nil
			}
		}

		if err := backup.RestoreBackup(storeFs, dir, args[0]); err != nil {
			return err
		}

		if err := logAuditEvent(dir, "", func(l *audit.Logger) error {
			return l.LogSuccess(audit.EventRestore, "", map[string]any{"path": args[0]})
		}); err != nil {
			ui.PrintWarn(fmt.Sprintf("Audit logging failed: %v", err))
		}

		ui.PrintSuccess("Backup restored successfully")
		return nil
	},
}

func init() {
	restoreCmd.Flags().BoolVarP(&restoreYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}
