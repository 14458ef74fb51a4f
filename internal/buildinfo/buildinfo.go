// Package buildinfo carries values injected at link time with -ldflags -X.
package buildinfo

var (
	// Version is the release tag.
	Version = "dev"
	// Commit is the VCS revision.
	Commit = "none"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)
