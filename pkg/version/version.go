package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Build information set via ldflags:
//
//	-X github.com/frostdev-ops/jobwatch/pkg/version.Version=1.2.0
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = "unknown"
)

// BuildInfo contains all build-related information
type BuildInfo struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

// Get returns the build information, falling back to the VCS stamp the Go
// toolchain embeds when no commit was provided at link time.
func Get() BuildInfo {
	info := BuildInfo{
		Service:   "jobwatch",
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = s.Value
				}
			case "vcs.time":
				if info.BuildDate == "unknown" {
					info.BuildDate = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	if info.GitCommit == "" {
		info.GitCommit = "unknown"
	}
	if info.Version == "dev" && info.GitCommit != "unknown" && len(info.GitCommit) >= 8 {
		info.Version = "dev-" + info.GitCommit[:8]
	}
	return info
}

// String returns a one-line description of the build
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)",
		b.Service, b.Version, b.GitCommit, b.BuildDate, b.GoVersion)
}
