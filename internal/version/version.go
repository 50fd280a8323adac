// Package version reports how the quill binary was built. Values come from
// -ldflags when set and fall back to the module's embedded build info.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// These variables are set at build time using -ldflags, e.g.
//
//	-X github.com/conneroisu/quill/internal/version.Version=v1.2.0
var (
	Version   = "dev"
	GitCommit = "unknown"
	// BuildTime is RFC3339.
	BuildTime = "unknown"
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
	Dirty     bool      `json:"dirty"`
}

// Get returns the build information of the running binary.
func Get() BuildInfo {
	settings := vcsSettings()

	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: parseTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Dirty:     settings["vcs.modified"] == "true",
	}

	if info.GitCommit == "" || info.GitCommit == "unknown" {
		if rev := settings["vcs.revision"]; rev != "" {
			info.GitCommit = rev
		}
	}
	if info.BuildTime.IsZero() {
		info.BuildTime = parseTime(settings["vcs.time"])
	}
	if info.Version == "" || info.Version == "dev" {
		info.Version = moduleVersion(info.GitCommit)
	}

	return info
}

// IsRelease reports whether the version is a tagged release.
func (b BuildInfo) IsRelease() bool {
	return b.Version != "dev" && !strings.HasPrefix(b.Version, "dev-")
}

// Short returns "<version>" or "<version> (<commit>)".
func (b BuildInfo) Short() string {
	if len(b.GitCommit) < 7 || b.GitCommit == "unknown" {
		return b.Version
	}
	if strings.HasSuffix(b.Version, b.GitCommit[:7]) {
		return b.Version
	}

	return fmt.Sprintf("%s (%s)", b.Version, b.GitCommit[:7])
}

// String returns one "Key: value" line per known field.
func (b BuildInfo) String() string {
	parts := []string{fmt.Sprintf("Version: %s", b.Version)}
	if b.GitCommit != "unknown" {
		commit := b.GitCommit
		if b.Dirty {
			commit += " (dirty)"
		}
		parts = append(parts, fmt.Sprintf("Commit: %s", commit))
	}
	if !b.BuildTime.IsZero() {
		parts = append(parts, fmt.Sprintf("Built: %s", b.BuildTime.UTC().Format(time.RFC3339)))
	}
	parts = append(parts,
		fmt.Sprintf("Go: %s", b.GoVersion),
		fmt.Sprintf("Platform: %s", b.Platform),
	)

	return strings.Join(parts, "\n")
}

func moduleVersion(commit string) string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	if len(commit) >= 7 && commit != "unknown" {
		return "dev-" + commit[:7]
	}

	return "dev"
}

func vcsSettings() map[string]string {
	settings := make(map[string]string)
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if strings.HasPrefix(s.Key, "vcs.") {
				settings[s.Key] = s.Value
			}
		}
	}

	return settings
}

// parseTime returns the zero time for anything it cannot parse.
func parseTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	return time.Time{}
}
