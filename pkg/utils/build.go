// Build information for pixcache binaries. The variables below are stamped at link time, e.g.
//   go build -ldflags "-X github.com/nobletooth/pixcache/pkg/utils.Version=v0.3.1"
// CAUTION: init() must keep running before flags are read, so don't move StartTime elsewhere.

package utils

import (
	"log/slog"
	"strconv"
	"time"
)

// devVersion is reported by binaries built without link-time stamping.
const devVersion = "v0.0.0-dev"

var (
	TestMode   string // Stamped as "true" for test binaries.
	IsTestMode bool
	Version    string
	Commit     string
	BuildTime  string
	StartTime  time.Time
)

func init() {
	StartTime = time.Now()

	if Version == "" {
		Version = devVersion
	}
	if Commit == "" {
		Commit = "unknown"
	}
	if BuildTime == "" {
		BuildTime = "unknown"
	}
	if len(TestMode) > 0 {
		if isTestMode, err := strconv.ParseBool(TestMode); err == nil {
			IsTestMode = isTestMode
		} else {
			slog.Warn("Failed to parse TestMode build flag, defaulting to false", "error", err)
		}
	}
}

// Uptime is the time elapsed since the process started.
func Uptime() time.Duration {
	return time.Since(StartTime)
}
