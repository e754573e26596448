package version

import "fmt"

var (
	// Version is the fetcher release being shipped. Overridden via ldflags
	// by the release build.
	Version = "1.0.0"
	// Commit is the short git SHA the fetcher was built from (or "none").
	Commit = "none"
	// BuildTime is the UTC timestamp of the fetcher build.
	BuildTime = "unknown"
)

// Short returns only the release version string.
func Short() string {
	return Version
}

// Full returns the complete build identity printed by the version
// subcommand.
func Full() string {
	return fmt.Sprintf("ffmpeg-fetcher %s (commit %s, built %s)", Version, Commit, BuildTime)
}
