package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimezoneLocation(t *testing.T) {
	loc, err := resolveLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = resolveLocation("   ")
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = resolveLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	loc, err = resolveLocation("+08:00")
	require.NoError(t, err)
	assert.Equal(t, "+08:00", loc.String())
	_, offset := time.Now().In(loc).Zone()
	assert.Equal(t, 8*3600, offset)

	loc, err = resolveLocation("-05:30")
	require.NoError(t, err)
	_, offset = time.Now().In(loc).Zone()
	assert.Equal(t, -(5*3600 + 30*60), offset)

	for _, raw := range []string{"+24:00", "+08:60", "+8:00", "garbage"} {
		_, err = resolveLocation(raw)
		assert.Error(t, err, "input %q", raw)
	}
}

func TestHumanizeDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{30*time.Second + 500*time.Millisecond, "30s"},
		{90 * time.Second, "1m0s"},
		{45 * time.Minute, "45m0s"},
		{2*time.Hour + 30*time.Minute, "2h0m0s"},
		{77 * time.Hour, "72h0m0s"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, prettyDuration(tc.in), "duration %s", tc.in)
	}
}

func TestExtractOriginHost(t *testing.T) {
	assert.Equal(t, "echo.example.com", extractOriginHost("https://echo.example.com"))
	assert.Equal(t, "localhost:3000", extractOriginHost("http://localhost:3000"))
	assert.Equal(t, "localhost:3000", extractOriginHost("localhost:3000"), "bare host passes through")
	assert.Equal(t, "", extractOriginHost(""))
}

func TestMatchOriginPattern(t *testing.T) {
	assert.True(t, matchOriginPattern("echo.example.com", "echo.example.com"))
	assert.True(t, matchOriginPattern("*.example.com", "api.example.com"))
	assert.True(t, matchOriginPattern("*.example.com", "deep.api.example.com"))
	assert.False(t, matchOriginPattern("*.example.com", "example.com"), "wildcard requires a subdomain")
	assert.True(t, matchOriginPattern("localhost:*", "localhost:3000"))
	assert.False(t, matchOriginPattern("localhost:*", "localhost"))
	assert.False(t, matchOriginPattern("echo.example.com", "other.example.com"))
}
