// Package buildinfo carries the version stamped into the gateway binary.
package buildinfo

// Set with -ldflags "-X .../internal/buildinfo.Version=..." by release builds.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)
