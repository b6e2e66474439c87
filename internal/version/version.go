// Package version carries build information stamped in with -ldflags, e.g.
//
//	-X github.com/banshee-data/pothole.report/internal/version.Version=v0.3.0
package version

import "fmt"

var (
	// Version is the release the binary was built from.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is when the binary was built.
	BuildTime = "unknown"
)

// String is the one-line form printed by -version.
func String() string {
	return fmt.Sprintf("pothole.report %s (%s, built %s)", Version, GitSHA, BuildTime)
}
