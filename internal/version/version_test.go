package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"
)

func TestResolve(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	vcs := func(rev, modified, at string) *debug.BuildInfo {
		return &debug.BuildInfo{
			GoVersion: "go1.22.1",
			Main:      debug.Module{Version: "(devel)"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: rev},
				{Key: "vcs.modified", Value: modified},
				{Key: "vcs.time", Value: at},
			},
		}
	}

	tests := []struct {
		name            string
		version, commit string
		bi              *debug.BuildInfo
		want            Info
	}{
		{
			name:    "linker values win",
			version: "v1.2.3",
			commit:  "abc1234",
			bi:      vcs("0123456789abcdef", "true", "2026-01-02T03:04:05Z"),
			want:    Info{Version: "v1.2.3", Commit: "abc1234", GoVersion: "go1.22.1", Dirty: true},
		},
		{
			name: "checkout build",
			bi:   vcs("0123456789abcdef", "false", "2026-01-02T03:04:05Z"),
			want: Info{Version: "dev-20260102", Commit: "0123456", GoVersion: "go1.22.1"},
		},
		{
			name: "dirty checkout",
			bi:   vcs("0123456789abcdef", "true", "2026-01-02T03:04:05Z"),
			want: Info{Version: "dev-20260102", Commit: "0123456-dirty", GoVersion: "go1.22.1", Dirty: true},
		},
		{
			name: "go install with tag",
			bi:   &debug.BuildInfo{GoVersion: "go1.22.1", Main: debug.Module{Version: "v0.4.0"}},
			want: Info{Version: "v0.4.0", Commit: "unknown", GoVersion: "go1.22.1"},
		},
		{
			name: "no build info",
			want: Info{Version: "dev-20260304-050607", Commit: "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolve(tt.version, tt.commit, tt.bi, now)
			if tt.bi == nil {
				tt.want.GoVersion = got.GoVersion
				if got.GoVersion == "" {
					t.Error("GoVersion should fall back to the runtime version")
				}
			}
			if got != tt.want {
				t.Errorf("resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInfoTXT(t *testing.T) {
	txt := Info{Version: "v1.2.3", Commit: "abc1234"}.TXT()
	if strings.Join(txt, ",") != "version=v1.2.3,commit=abc1234" {
		t.Errorf("TXT() = %v", txt)
	}
}

func TestGetMatchesPackageVars(t *testing.T) {
	got := Get()
	if got.Version != Version || got.Commit != Commit {
		t.Errorf("Get() = %+v, package vars = %s/%s", got, Version, Commit)
	}
	if !strings.Contains(Full(), Version) || !strings.Contains(Full(), got.GoVersion) {
		t.Errorf("Full() = %q", Full())
	}
}
