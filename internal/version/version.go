// Package version reports the torctl build.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags "-X github.com/steveyegge/torctl/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// ShortCommit returns the first 12 characters of hash.
func ShortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// resolveCommitHash prefers the linker-set Commit and falls back to the VCS
// revision the go tool embeds.
func resolveCommitHash() string {
	if Commit != "" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

// String renders the version line printed by "torctl version".
func String() string {
	s := "torctl " + Version
	if c := ShortCommit(resolveCommitHash()); c != "" {
		s += " (" + c + ")"
	}
	if BuildTime != "" {
		s += " built " + BuildTime
	}
	return fmt.Sprintf("%s %s/%s", s, runtime.GOOS, runtime.GOARCH)
}
