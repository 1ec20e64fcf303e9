package analyze

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsBotUA(t *testing.T) {
	bots := []string{
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		"curl/8.4.0",
		"Wget/1.21",
		"python-requests/2.31.0",
		"Go-http-client/1.1",
		"Scrapy/2.11 (+https://scrapy.org)",
		"AhrefsBot",
	}
	for _, ua := range bots {
		assert.True(t, isBotUA(ua), "should flag %q", ua)
	}

	humans := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Version/17.0 Safari/605.1.15",
		"",
	}
	for _, ua := range humans {
		assert.False(t, isBotUA(ua), "should not flag %q", ua)
	}
}

func TestSkipAnalyzePath(t *testing.T) {
	skipped := []string{
		"/socket.io",
		"/socket.io/",
		"/health",
		"/health/log/stream",
		"/gateway/stats",
		"/ping",
		"/uptime",
		"/favicon.ico",
	}
	for _, path := range skipped {
		assert.True(t, skipAnalyzePath(path), "should skip %q", path)
	}

	recorded := []string{"/", "/get_nodes", "/get_node/1", "/render/node/1", "/configs"}
	for _, path := range recorded {
		assert.False(t, skipAnalyzePath(path), "should record %q", path)
	}
}

func TestParseUA(t *testing.T) {
	chrome := parseUA("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	assert.Equal(t, map[string]interface{}{"name": "Chrome"}, chrome["browser"])
	assert.Equal(t, map[string]interface{}{"name": "Windows"}, chrome["os"])
	assert.Equal(t, "desktop", chrome["type"])

	iphone := parseUA("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
	assert.Equal(t, map[string]interface{}{"name": "Safari"}, iphone["browser"])
	assert.Equal(t, map[string]interface{}{"name": "iOS"}, iphone["os"])
	assert.Equal(t, "mobile", iphone["type"])

	edge := parseUA("Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 Chrome/120.0 Safari/537.36 Edg/120.0")
	assert.Equal(t, map[string]interface{}{"name": "Edge"}, edge["browser"])

	firefoxLinux := parseUA("Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
	assert.Equal(t, map[string]interface{}{"name": "Firefox"}, firefoxLinux["browser"])
	assert.Equal(t, map[string]interface{}{"name": "Linux"}, firefoxLinux["os"])

	unknown := parseUA("")
	assert.Equal(t, map[string]interface{}{"name": "Unknown"}, unknown["browser"])
	assert.Equal(t, map[string]interface{}{"name": "Unknown"}, unknown["os"])
	assert.Equal(t, "desktop", unknown["type"])

	ipad := parseUA("Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Safari/604.1")
	assert.Equal(t, "tablet", ipad["type"])
}

func TestRecordingEnabledWithoutConfig(t *testing.T) {
	assert.True(t, recordingEnabled(nil))
}

func TestBeginningOfDayAndWeek(t *testing.T) {
	// Tuesday 2026-08-25 15:04.
	at := time.Date(2026, 8, 25, 15, 4, 5, 0, time.Local)

	day := beginningOfDay(at)
	assert.Equal(t, 0, day.Hour())
	assert.Equal(t, at.Day(), day.Day())

	week := beginningOfWeek(at)
	assert.Equal(t, time.Sunday, week.Weekday())
	assert.Equal(t, 0, week.Hour())
	assert.True(t, week.Before(day) || week.Equal(day))
}
