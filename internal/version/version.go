// Package version carries build metadata for the throttler binary.
//
// Version, GitCommit and BuildDate are normally set with -ldflags, e.g.
//
//	-X throttler/internal/version.Version=v1.0.0
//
// When they are not, the VCS stamp embedded by the Go toolchain is used.
package version

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

const unknown = "unknown"

var (
	Version   = unknown
	BuildDate = unknown
	GitCommit = unknown
)

// Info describes the running binary and process.
type Info struct {
	Version    string    `json:"version"`
	GitCommit  string    `json:"git_commit"`
	BuildDate  string    `json:"build_date"`
	GoVersion  string    `json:"go_version"`
	Dirty      bool      `json:"dirty,omitempty"`
	InstanceID string    `json:"instance_id"`
	Hostname   string    `json:"hostname"`
	StartedAt  time.Time `json:"started_at"`
}

var (
	once sync.Once
	info Info
)

// GetInfo returns the process-wide Info. The instance ID and start time are
// fixed on first call.
func GetInfo() Info {
	once.Do(func() {
		bi, _ := debug.ReadBuildInfo()
		info = newInfo(bi)
	})
	return info
}

func newInfo(bi *debug.BuildInfo) Info {
	i := Info{
		Version:    Version,
		GitCommit:  GitCommit,
		BuildDate:  BuildDate,
		GoVersion:  unknown,
		InstanceID: uuid.NewString(),
		Hostname:   hostname(),
		StartedAt:  time.Now().UTC(),
	}
	if bi == nil {
		return i
	}

	i.GoVersion = bi.GoVersion
	if i.Version == unknown && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		i.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.GitCommit == unknown {
				i.GitCommit = shortCommit(s.Value)
			}
		case "vcs.time":
			if i.BuildDate == unknown {
				i.BuildDate = s.Value
			}
		case "vcs.modified":
			i.Dirty = s.Value == "true"
		}
	}
	return i
}

func shortCommit(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return unknown
	}
	return h
}

// Uptime is the time since StartedAt truncated to whole seconds, or zero if
// StartedAt is unset or in the future.
func (i Info) Uptime(now time.Time) time.Duration {
	if i.StartedAt.IsZero() || now.Before(i.StartedAt) {
		return 0
	}
	return now.Sub(i.StartedAt).Truncate(time.Second)
}

func (i Info) String() string {
	commit := i.GitCommit
	if i.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("throttler %s (commit %s, built %s, %s)", i.Version, commit, i.BuildDate, i.GoVersion)
}
