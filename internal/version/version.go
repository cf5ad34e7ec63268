package version

import "fmt"

// Set with -ldflags "-X book-features/internal/version.Version=..." at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String formats the build metadata on one line.
func String() string {
	return fmt.Sprintf("bookfeatures %s (commit %s, built %s)", Version, Commit, BuildDate)
}
