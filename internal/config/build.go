package config

import "runtime/debug"

// Build metadata, set with -ldflags:
//
//	go build -ldflags "-X tuition/internal/config.version=1.4.0 \
//	    -X tuition/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X tuition/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

var readBuildInfo = debug.ReadBuildInfo

// NewBuildInfo returns the linker-injected build metadata. Without ldflags the
// commit and build time fall back to the VCS stamp the go tool embeds, so
// sweep-runner binaries built with plain `go build` still report a revision.
func NewBuildInfo() BuildInfo {
	info := BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
	if bi, ok := readBuildInfo(); ok {
		info = withVCSStamp(info, bi.Settings)
	}
	return info
}

// withVCSStamp fills the ldflags defaults from vcs.* build settings. Values
// set by the linker win.
func withVCSStamp(info BuildInfo, settings []debug.BuildSetting) BuildInfo {
	fromVCS, modified := false, false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "none" && s.Value != "" {
				info.Commit = s.Value[:min(len(s.Value), 12)]
				fromVCS = true
			}
		case "vcs.time":
			if info.BuildTime == "unknown" && s.Value != "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if fromVCS && modified {
		info.Commit += "-dirty"
	}
	return info
}
