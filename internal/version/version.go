// Package version identifies the running printgate build.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Version and Commit may be stamped by the linker:
//
//	go build -ldflags="-X github.com/muurk/printgate/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/printgate/internal/version.Commit=abc1234"
//
// Whatever is left empty is filled from the module build info at startup.
var (
	Version = ""
	Commit  = ""
)

// Info describes a build as reported by /health and the mDNS TXT record.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
	Dirty     bool   `json:"dirty,omitempty"`
}

var current Info

func init() {
	bi, _ := debug.ReadBuildInfo()
	current = resolve(Version, Commit, bi, time.Now())
	Version, Commit = current.Version, current.Commit
}

// resolve merges linker values with build info. A "go install module@vX"
// build carries its tag in Main.Version; a plain checkout build only has
// VCS settings, so it gets a dev version from the commit date.
func resolve(version, commit string, bi *debug.BuildInfo, now time.Time) Info {
	info := Info{Version: version, Commit: commit, GoVersion: runtime.Version()}

	if bi != nil {
		if bi.GoVersion != "" {
			info.GoVersion = bi.GoVersion
		}
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}

		settings := make(map[string]string, len(bi.Settings))
		for _, s := range bi.Settings {
			settings[s.Key] = s.Value
		}
		info.Dirty = settings["vcs.modified"] == "true"

		if info.Commit == "" {
			if rev := shortRevision(settings["vcs.revision"]); rev != "" {
				info.Commit = rev
				if info.Dirty {
					info.Commit += "-dirty"
				}
			}
		}
		if info.Version == "" {
			if t, err := time.Parse(time.RFC3339, settings["vcs.time"]); err == nil {
				info.Version = "dev-" + t.UTC().Format("20060102")
			}
		}
	}

	if info.Version == "" {
		info.Version = "dev-" + now.Format("20060102-150405")
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	return info
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// Get returns the running build.
func Get() Info { return current }

// Full returns the version line printed by the version commands.
func Full() string { return current.String() }

func (i Info) String() string {
	return fmt.Sprintf("%s (commit: %s, %s)", i.Version, i.Commit, i.GoVersion)
}

// TXT returns the key=value entries that identify the build in an mDNS
// TXT record.
func (i Info) TXT() []string {
	return []string{"version=" + i.Version, "commit=" + i.Commit}
}
