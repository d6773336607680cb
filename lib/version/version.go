// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/auditdesk/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// buildStamp is what the binary knows about its own build.
type buildStamp struct {
	commit string
	dirty  bool
	time   string
}

func currentStamp() buildStamp {
	stamp := buildStamp{commit: GitCommit, dirty: GitDirty == "true", time: BuildTime}
	if stamp.commit != "unknown" {
		return stamp
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return stamp
	}
	return stampFromSettings(stamp, info.Settings)
}

// stampFromSettings fills the fields still unknown in stamp from the
// toolchain's vcs.* build settings.
func stampFromSettings(stamp buildStamp, settings []debug.BuildSetting) buildStamp {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			if len(setting.Value) > 12 {
				stamp.commit = setting.Value[:12]
			} else {
				stamp.commit = setting.Value
			}
		case "vcs.modified":
			stamp.dirty = setting.Value == "true"
		case "vcs.time":
			if stamp.time == "unknown" {
				stamp.time = setting.Value
			}
		}
	}
	return stamp
}

func (s buildStamp) String() string {
	dirty := ""
	if s.dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, s.commit, dirty, s.time)
}

// Info returns a one-line version string: "0.1.0-dev (abc1234, 2026-...)".
func Info() string {
	return currentStamp().String()
}

// Full returns Info plus the Go version and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version number.
func Short() string {
	return Version
}
