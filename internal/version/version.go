// Package version holds build information set at link time:
//
//	go build -ldflags "-X github.com/dkmnx/with/internal/version.Version=v1.2.3"
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the build information on one line.
func String() string {
	s := fmt.Sprintf("with %s", Version)
	if Commit != "none" && Commit != "" {
		s += fmt.Sprintf(" (commit %s", Commit)
		if Date != "unknown" && Date != "" {
			s += ", built " + Date
		}
		s += ")"
	}
	return s
}
