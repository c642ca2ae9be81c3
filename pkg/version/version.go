// Package version carries the build identity of the mcb binary.
package version

import (
	"fmt"
	"runtime"
)

// Name is the program name reported to MCP clients and on the CLI.
const Name = "mcb"

// Version is set at build time:
//
//	-ldflags "-X github.com/Aman-CERP/mcb/pkg/version.Version=1.2.3"
var Version = "dev"

// Build information, also set via ldflags.
var (
	Commit = "unknown"
	Date   = "unknown"

	// GoVersion is the toolchain that built the binary.
	GoVersion = runtime.Version()
)

// BuildInfo is the JSON form of the build identity.
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns the one-line version banner.
func String() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)", Name, Version, Commit, Date, GoVersion)
}

// Short returns the version alone.
func Short() string {
	return Version
}

// GetInfo returns the structured build identity.
func GetInfo() BuildInfo {
	return BuildInfo{
		Name:      Name,
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
