// Package version holds build metadata stamped in at link time.
package version

// These are overridden by the release build, e.g.
//
//	go build -ldflags "-X github.com/easelhq/easel/internal/version.Version=v0.3.0"
var (
	// Version is the semantic version of the binary.
	Version = "dev"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// GitCommit is the short hash of the commit the binary was built from.
	GitCommit = "unknown"
)
