// Package misc keeps program identification shared by all packages.
package misc

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X fontinject/misc.version=... -X fontinject/misc.gitHash=..."
var (
	version = "dev"
	gitHash = ""
)

// GetAppName returns program name without path and extension.
func GetAppName() string {
	name := strings.TrimSuffix(filepath.Base(os.Args[0]), ".exe")
	// go test and go run binaries
	if name == "" || name == "." || name == "main" || strings.HasSuffix(name, ".test") {
		return "fontinject"
	}
	return name
}

// GetVersion returns program version.
func GetVersion() string {
	if version != "dev" {
		return version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return version
}

// GetGitHash returns hash of the commit program was built from.
func GetGitHash() string {
	if gitHash != "" {
		return gitHash
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
