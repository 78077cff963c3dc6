package version

import (
	"runtime/debug"
	"testing"
)

func TestFillFromBuildInfo(t *testing.T) {
	t.Parallel()
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	var info Info
	fillFromBuildInfo(&info, bi)
	if info.Version != "v0.3.1" {
		t.Fatalf("version = %q", info.Version)
	}
	if info.Commit != "0123456789abcdef0123-dirty" {
		t.Fatalf("commit = %q", info.Commit)
	}
	if info.BuildTime != "2026-01-02T03:04:05Z" {
		t.Fatalf("build time = %q", info.BuildTime)
	}
}

func TestFillFromBuildInfoKeepsLdflags(t *testing.T) {
	t.Parallel()
	bi := &debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffff"}},
	}
	info := Info{Version: "1.0.0", Commit: "abc"}
	fillFromBuildInfo(&info, bi)
	if info.Version != "1.0.0" || info.Commit != "abc" {
		t.Fatalf("ldflags values overwritten: %+v", info)
	}

	var empty Info
	fillFromBuildInfo(&empty, bi)
	if empty.Version != "" {
		t.Fatalf("(devel) should not be used as a version, got %q", empty.Version)
	}
}

func TestShortCommit(t *testing.T) {
	t.Parallel()
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("shortCommit = %q", got)
	}
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("shortCommit = %q", got)
	}
}
