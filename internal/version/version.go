// Package version carries build metadata stamped in with -ldflags:
//
//	go build -ldflags "-X github.com/banshee-data/lanepilot/internal/version.Version=v0.3.0 \
//	  -X github.com/banshee-data/lanepilot/internal/version.GitSHA=$(git rev-parse --short HEAD)"
package version

import "fmt"

var (
	// Version is the release tag.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String returns "Version (GitSHA)", with the build time when known.
func String() string {
	s := fmt.Sprintf("%s (%s)", Version, GitSHA)
	if BuildTime != "unknown" && BuildTime != "" {
		s += " built " + BuildTime
	}
	return s
}
