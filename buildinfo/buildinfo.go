// Package buildinfo provides build-time properties injected via ldflags.
package buildinfo

import "fmt"

// Properties holds build-time properties injected via ldflags.
type Properties struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// Package-level variables for ldflags injection (unexported).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Get returns the current build properties.
func Get() Properties {
	return Properties{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: gitCommit,
	}
}

// String renders the properties in a single line suitable for -version output.
func (p Properties) String() string {
	return fmt.Sprintf("fetchkit %s (commit %s, built %s)", p.Version, p.GitCommit, p.BuildTime)
}
