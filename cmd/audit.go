package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dkmnx/with/internal/audit"
	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/ui"
)

var (
	auditLimit        int
	auditExportFormat string
	auditExportOutput string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the audit log",
	Long: `Show recorded imports, changes, command runs and key rotations.
Entries name profiles and secrets; values are never recorded.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := loadAuditEntries()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			ui.PrintInfo("No audit log entries yet")
			return nil
		}

		printAuditList(cmd.OutOrStdout(), audit.Tail(entries, auditLimit))
		return nil
	},
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the audit log to CSV or JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if auditExportOutput == "" {
			return witherrors.NewError(witherrors.ValidationError, "--output is required for export")
		}

		entries, err := loadAuditEntries()
		if err != nil {
			return err
		}

		if err := exportAuditLog(entries, auditExportOutput, auditExportFormat); err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Audit log exported to %s", auditExportOutput))
		return nil
	},
}

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Show only the last N entries (0 for all)")
	auditExportCmd.Flags().StringVarP(&auditExportFormat, "format", "f", "csv", "Export format (csv, json)")
	auditExportCmd.Flags().StringVarP(&auditExportOutput, "output", "o", "", "Output file path")
	auditCmd.AddCommand(auditExportCmd)
	rootCmd.AddCommand(auditCmd)
}

// loadAuditEntries reads the audit log. A missing config directory or log
// yields no entries.
func loadAuditEntries() ([]audit.AuditEntry, error) {
	dir := getConfigDir()
	if dir == "" {
		return nil, witherrors.NewError(witherrors.ConfigError, "config directory not found")
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	logger, err := audit.NewLogger(dir, "")
	if err != nil {
		return nil, witherrors.WrapError(witherrors.FileSystemError, "failed to open audit log", err)
	}
	defer logger.Close()

	entries, err := logger.LoadEntries()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, witherrors.WrapError(witherrors.FileSystemError, "failed to read audit log", err)
	}
	return entries, nil
}

func printAuditList(out io.Writer, entries []audit.AuditEntry) {
	ui.PrintHeader(fmt.Sprintf("Audit log (%d entries)", len(entries)))
	for _, entry := range entries {
		timestamp := entry.Timestamp.Local().Format("2006-01-02 15:04:05")
		fmt.Fprintf(out, "  [%s] %s\n", timestamp, describeEntry(entry))
	}
	fmt.Fprintln(out)
}

func describeEntry(e audit.AuditEntry) string {
	if e.Status == "failure" {
		return fmt.Sprintf("%s failed for %s: %s", e.Event, orAll(e.Profile), e.Error)
	}

	switch e.Event {
	case audit.EventImport:
		return fmt.Sprintf("Imported into %s: %s", e.Profile, namesOrNone(e.Names))
	case audit.EventSet:
		return fmt.Sprintf("Set %s in %s", strings.Join(e.Names, ", "), e.Profile)
	case audit.EventUnset:
		return fmt.Sprintf("Removed %s from %s", strings.Join(e.Names, ", "), e.Profile)
	case audit.EventUse:
		return fmt.Sprintf("Ran %v with %s (exit %v)", e.Details["command"], e.Profile, e.Details["exit_code"])
	case audit.EventProfileDelete:
		return fmt.Sprintf("Deleted profile %s", e.Profile)
	case audit.EventDefault:
		return fmt.Sprintf("Set default profile to %s", e.Profile)
	case audit.EventRotate:
		return "Rotated encryption key"
	case audit.EventKeyRecover:
		return "Recovered encryption key from phrase"
	case audit.EventBackup:
		return fmt.Sprintf("Created backup %v", e.Details["path"])
	case audit.EventRestore:
		return fmt.Sprintf("Restored backup %v", e.Details["path"])
	default:
		return strings.TrimSpace(e.Event + " " + e.Profile)
	}
}

func orAll(profile string) string {
	if profile == "" {
		return "all profiles"
	}
	return profile
}

func namesOrNone(names []string) string {
	if len(names) == 0 {
		return "no changes"
	}
	return strings.Join(names, ", ")
}

func exportAuditLog(entries []audit.AuditEntry, outputPath, format string) error {
	if entries == nil {
		entries = []audit.AuditEntry{}
	}

	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(outputPath, data, 0600); err != nil {
			return witherrors.FileError("failed to write export", outputPath, err)
		}
		return nil

	case "csv":
		f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return witherrors.FileError("failed to create export", outputPath, err)
		}
		defer f.Close()

		writer := csv.NewWriter(f)
		if err := writer.Write([]string{"timestamp", "event", "status", "profile", "backend", "names", "error"}); err != nil {
			return err
		}
		for _, entry := range entries {
			record := []string{
				entry.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
				entry.Event,
				entry.Status,
				entry.Profile,
				entry.Backend,
				strings.Join(entry.Names, " "),
				entry.Error,
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return witherrors.FileError("failed to write export", outputPath, err)
		}
		return nil
	}

	return witherrors.NewError(witherrors.ValidationError,
		fmt.Sprintf("unsupported format: %s (supported: csv, json)", format))
}
