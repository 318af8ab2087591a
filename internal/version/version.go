// Package version holds build information injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Placeholders used until -ldflags provides real values.
const (
	DevVersion = "0.1.0-dev"
	Unknown    = "unknown"
)

var (
	Version   = DevVersion
	BuildTime = Unknown
	GitCommit = Unknown
	GoVersion = Unknown
)

// Info is the build information in a form the CLI can render as JSON/YAML.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GitCommit string `json:"git_commit" yaml:"git_commit"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

// SetInfo overrides the defaults; empty values are ignored.
func SetInfo(v, bt, gc, gv string) {
	if v != "" {
		Version = v
	}
	if bt != "" {
		BuildTime = bt
	}
	if gc != "" {
		GitCommit = gc
	}
	if gv != "" {
		GoVersion = gv
	}
}

// Current returns the build information. GoVersion falls back to the
// running toolchain when the build did not inject it.
func Current() Info {
	gv := GoVersion
	if gv == Unknown {
		gv = runtime.Version()
	}
	return Info{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit, GoVersion: gv}
}

// FormatStartupMessage is the first line logged and sent on startup alerts.
func FormatStartupMessage() string {
	return fmt.Sprintf("leadbot %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
