package cmd

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/dkmnx/with/internal/config"
	witherrors "github.com/dkmnx/with/internal/errors"
	"github.com/dkmnx/with/internal/ui"
)

var (
	completionOutput string
	completionSave   bool
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: heredoc.Doc(`
		To load completions:

		Bash:
		  $ source <(with completion bash)

		Zsh:
		  $ with completion zsh > "${fpath[1]}/_with"

		fish:
		  $ with completion fish | source

		PowerShell:
		  PS> with completion powershell | Out-String | Invoke-Expression

		Auto-save to default locations:
		  $ with completion bash --save`),
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		path := completionOutput
		if path == "" && completionSave {
			path = getDefaultCompletionPath(args[0])
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return witherrors.FileError("failed to create completion directory", filepath.Dir(path), err)
			}
		}
		if path != "" {
			f, err := os.Create(path)
			if err != nil {
				return witherrors.FileError("failed to create completion file", path, err)
			}
			defer f.Close()
			out = f
		}

		if err := genCompletion(out, args[0]); err != nil {
			return witherrors.WrapError(witherrors.RuntimeError, "failed to generate completion", err)
		}
		if path != "" {
			ui.PrintSuccess("Completion saved to: " + path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
	completionCmd.Flags().StringVarP(&completionOutput, "output", "o", "", "Output file path")
	completionCmd.Flags().BoolVar(&completionSave, "save", false, "Auto-save to default shell completion directory")

	_ = rootCmd.RegisterFlagCompletionFunc("profile", completeProfiles)
	_ = rootCmd.RegisterFlagCompletionFunc("backend", cobra.FixedCompletions(
		[]string{"age", "keyring", "azure-keyvault"}, cobra.ShellCompDirectiveNoFileComp))
	profileDefaultCmd.ValidArgsFunction = completeProfiles
	profileDeleteCmd.ValidArgsFunction = completeProfiles
}

func genCompletion(out io.Writer, shell string) error {
	switch shell {
	case "bash":
		return rootCmd.GenBashCompletionV2(out, true)
	case "zsh":
		return rootCmd.GenZshCompletion(out)
	case "fish":
		return rootCmd.GenFishCompletion(out, true)
	default:
		return rootCmd.GenPowerShellCompletionWithDesc(out)
	}
}

// completeProfiles offers the profiles recorded in config.yaml.
func completeProfiles(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cfg, err := config.LoadOrDefault(getConfigDir())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []string
	for _, p := range cfg.Profiles {
		if strings.HasPrefix(p, toComplete) {
			out = append(out, p)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// getDefaultCompletionPath returns the default completion file path for a shell
func getDefaultCompletionPath(shell string) string {
	home, _ := os.UserHomeDir()
	if home == "" {
		return "with-completion.sh"
	}

	switch shell {
	case "bash":
		return filepath.Join(home, ".bash_completion.d", "with")
	case "zsh":
		return filepath.Join(home, ".zsh", "completion", "_with")
	case "fish":
		return filepath.Join(home, ".config", "fish", "completions", "with.fish")
	case "powershell":
		return filepath.Join(home, "with.ps1")
	default:
		return "with-completion.sh"
	}
}
