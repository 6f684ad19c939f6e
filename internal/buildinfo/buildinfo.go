// Package buildinfo carries the version stamped into the binary. The
// same version is reported to MCP servers during the handshake.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/nugget/dimos-bridge/internal/buildinfo.Version=v0.3.0"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Current returns the build description. An unstamped binary installed
// with "go install module@version" reports the module version instead
// of "dev".
func Current() Build {
	b := Build{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if b.Version == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			b.Version = bi.Main.Version
		}
	}
	return b
}

// ClientVersion is the version sent in the MCP clientInfo. A known
// commit is appended as build metadata, e.g. "v0.3.0+1a2b3c4".
func ClientVersion() string {
	b := Current()
	if b.GitCommit == "" || b.GitCommit == "unknown" {
		return b.Version
	}
	commit := b.GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return b.Version + "+" + commit
}

// String returns a one-line summary.
func (b Build) String() string {
	return fmt.Sprintf("dimos-bridge %s (%s) built %s", b.Version, b.GitCommit, b.BuildTime)
}
