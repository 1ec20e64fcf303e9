package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shiv669/echo-core-go/internal/config"
	"github.com/shiv669/echo-core-go/internal/modules/storage/archive"
	"github.com/shiv669/echo-core-go/internal/pkg/nativelog"
)

// applyRuntimeSettings propagates path and timezone settings from the
// loaded config into the process environment before any module reads them.
func applyRuntimeSettings(cfg *config.AppConfig) error {
	exports := map[string]string{
		nativelog.EnvLogDir:   cfg.LogDir(),
		archive.EnvArchiveDir: cfg.ArchiveDir(),
	}
	if mb, ok := cfg.LogRotateSizeMB(); ok {
		exports[nativelog.EnvLogRotateSizeMB] = strconv.Itoa(mb)
	}
	if n, ok := cfg.LogRotateKeepCount(); ok {
		exports[nativelog.EnvLogRotateKeep] = strconv.Itoa(n)
	}
	for key, value := range exports {
		_ = os.Setenv(key, value)
	}

	return applyTimezone(cfg.Timezone)
}

// applyTimezone pins process-local time to the configured zone and exports
// TZ so spawned cluster workers inherit it.
func applyTimezone(spec string) error {
	tz := strings.TrimSpace(spec)
	if tz == "" {
		return nil
	}
	loc, err := resolveLocation(tz)
	if err != nil {
		return fmt.Errorf("bad timezone %q: %w", tz, err)
	}
	time.Local = loc
	_ = os.Setenv("TZ", tz)
	return nil
}

func resolveLocation(spec string) (*time.Location, error) {
	tz := strings.TrimSpace(spec)
	if tz == "" {
		return time.Local, nil
	}
	if zone, err := time.LoadLocation(tz); err == nil {
		return zone, nil
	}
	if zone, ok := fixedOffsetZone(tz); ok {
		return zone, nil
	}
	return nil, errors.New("want an IANA name (Asia/Shanghai) or a fixed offset (+08:00)")
}

// fixedOffsetZone parses a "+HH:MM" or "-HH:MM" offset into a fixed zone.
func fixedOffsetZone(tz string) (*time.Location, bool) {
	if len(tz) != 6 || (tz[0] != '+' && tz[0] != '-') || tz[3] != ':' {
		return nil, false
	}
	hours, errH := strconv.Atoi(tz[1:3])
	minutes, errM := strconv.Atoi(tz[4:6])
	if errH != nil || errM != nil || hours > 23 || minutes > 59 {
		return nil, false
	}
	offset := hours*3600 + minutes*60
	if tz[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(tz, offset), true
}

const day = 24 * time.Hour

var durationSteps = []struct {
	below time.Duration
	unit  time.Duration
}{
	{time.Minute, time.Second},
	{time.Hour, time.Minute},
	{day, time.Hour},
}

func prettyDuration(d time.Duration) string {
	for _, step := range durationSteps {
		if d < step.below {
			return d.Truncate(step.unit).String()
		}
	}
	return d.Truncate(day).String()
}

// extractOriginHost returns the "host[:port]" portion of an origin URL.
func extractOriginHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

// matchOriginPattern reports whether host matches the given wildcard pattern.
func matchOriginPattern(pattern, host string) bool {
	if pattern == host {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:]
		return strings.HasSuffix(host, suffix)
	}
	if strings.HasSuffix(pattern, ":*") {
		prefix := pattern[:len(pattern)-1]
		return strings.HasPrefix(host, prefix)
	}
	return false
}
