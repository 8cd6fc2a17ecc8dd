package health

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/saiset-co/kodespace/health.Commit=...".
var (
	Commit    = ""
	BuildTime = ""
)

func getBuildInfo() string {
	commit, buildTime := Commit, BuildTime

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if commit == "" {
					commit = setting.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = setting.Value
				}
			}
		}
	}

	if commit == "" {
		commit = "unknown"
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if buildTime == "" {
		buildTime = "unknown"
	}

	return fmt.Sprintf("%s (%s)", commit, buildTime)
}
