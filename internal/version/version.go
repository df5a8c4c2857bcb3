// Package version exposes build metadata set through -ldflags.
package version

import "fmt"

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// VersionInfo is the build metadata reported by /health.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

// Info returns the current build metadata.
func Info() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
	}
}

// String formats the version for CLI output.
func (v VersionInfo) String() string {
	return fmt.Sprintf("%s (%s, built %s)", v.Version, v.GitCommit, v.BuildTime)
}
