package cmd

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/dkmnx/with/internal/store"
	"github.com/dkmnx/with/internal/ui"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles, or the secret names of one profile",
	Long: `Without --profile, list the known profiles and mark the default.
With --profile, print the secret names of that profile, one per line.
Values are never shown.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}

		flagsMu.RLock()
		explicit := profileFlag != ""
		flagsMu.RUnlock()

		if explicit {
			names, err := s.manager.Members(cmd.Context(), s.profile)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				ui.PrintWarn(fmt.Sprintf("Profile '%s' has no secrets", s.profile))
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		}

		profiles, err := knownProfiles(cmd, s)
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			ui.PrintWarn("No profiles yet")
			ui.PrintInfo("Run 'with import' or 'with set NAME' to create one")
			return nil
		}

		ui.PrintSection("Profiles")
		for _, p := range profiles {
			if p == s.cfg.DefaultProfile {
				ui.PrintDefault(p)
			} else {
				ui.PrintInfo(p)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// knownProfiles merges the profiles recorded in config.yaml with those the
// store can enumerate.
func knownProfiles(cmd *cobra.Command, s *session) ([]string, error) {
	profiles := append([]string{}, s.cfg.Profiles...)
	if lister, ok := s.store.(store.ProfileLister); ok {
		stored, err := lister.Profiles(cmd.Context())
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, stored...)
	}
	profiles = lo.Uniq(profiles)
	sort.Strings(profiles)
	return profiles, nil
}
