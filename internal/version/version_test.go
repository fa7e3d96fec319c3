package version

import (
	"regexp"
	"testing"
)

func TestVersionVariablesExist(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if Commit == "" {
		t.Error("Commit should not be empty")
	}
	if Date == "" {
		t.Error("Date should not be empty")
	}
}

func TestVersionFormat(t *testing.T) {
	if Version == "dev" {
		return
	}

	semverRegex := regexp.MustCompile(`^v\d+\.\d+\.\d+$`)
	if !semverRegex.MatchString(Version) {
		t.Errorf("Version %q does not match expected semver format (e.g., v1.2.3)", Version)
	}
}

func TestDateFormat(t *testing.T) {
	if Date == "unknown" {
		return
	}
	dateRegex := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	if !dateRegex.MatchString(Date) {
		t.Errorf("Date %q does not match expected format (YYYY-MM-DD)", Date)
	}
}

func TestCommitNotNoneInProduction(t *testing.T) {
	if Version != "dev" && Commit == "none" {
		t.Error("Commit should not be 'none' in production builds")
	}
}

func TestVersionIsAccessible(t *testing.T) {
	v := Version
	if v != "dev" && v[0] != 'v' {
		t.Errorf("Version should start with 'v' in production, got %q", v)
	}
}

func TestString(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = origVersion, origCommit, origDate })

	tests := []struct {
		name                  string
		version, commit, date string
		want                  string
	}{
		{"dev build", "dev", "none", "unknown", "with dev"},
		{"release", "v1.2.3", "abc1234", "2026-01-02", "with v1.2.3 (commit abc1234, built 2026-01-02)"},
		{"no date", "v1.2.3", "abc1234", "unknown", "with v1.2.3 (commit abc1234)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Version, Commit, Date = tt.version, tt.commit, tt.date
			if got := String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
