package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldSkipAutoFingerprint(t *testing.T) {
	cases := []struct {
		path string
		skip bool
	}{
		{"/add_source", true},
		{"/add_source/", true},
		{"/ADD_SOURCE", true},
		{"/sources/import", true},
		{"/sources/import/", true},
		{"  /add_source  ", true},
		{"/get_nodes", false},
		{"/render/preview", false},
		{"/add_source/extra", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.skip, shouldSkipAutoFingerprint(tc.path), "path %q", tc.path)
	}
}

func newFingerprintContext(method, target, body, ua string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	if ua != "" {
		c.Request.Header.Set("User-Agent", ua)
	}
	return c
}

func TestFingerprintRequestDeterministic(t *testing.T) {
	first, err := fingerprintRequest(newFingerprintContext(http.MethodPost, "/options/site", `{"value":"x"}`, "curl/8"))
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := fingerprintRequest(newFingerprintContext(http.MethodPost, "/options/site", `{"value":"x"}`, "curl/8"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFingerprintRequestVariesByInput(t *testing.T) {
	base, err := fingerprintRequest(newFingerprintContext(http.MethodPost, "/options/site", `{"value":"x"}`, "curl/8"))
	require.NoError(t, err)

	otherBody, err := fingerprintRequest(newFingerprintContext(http.MethodPost, "/options/site", `{"value":"y"}`, "curl/8"))
	require.NoError(t, err)
	assert.NotEqual(t, base, otherBody)

	otherMethod, err := fingerprintRequest(newFingerprintContext(http.MethodPatch, "/options/site", `{"value":"x"}`, "curl/8"))
	require.NoError(t, err)
	assert.NotEqual(t, base, otherMethod)

	otherAgent, err := fingerprintRequest(newFingerprintContext(http.MethodPost, "/options/site", `{"value":"x"}`, "wget/1"))
	require.NoError(t, err)
	assert.NotEqual(t, base, otherAgent)
}

func TestFingerprintRequestRestoresBody(t *testing.T) {
	c := newFingerprintContext(http.MethodPost, "/options/site", `{"value":"x"}`, "curl/8")

	_, err := fingerprintRequest(c)
	require.NoError(t, err)

	body, err := io.ReadAll(c.Request.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"value":"x"}`, string(body), "handler still sees the full body")
}

func TestFingerprintRequestEmptyRequest(t *testing.T) {
	c := newFingerprintContext(http.MethodPost, "/options/site", "", "")
	c.Request.RemoteAddr = ""

	fingerprint, err := fingerprintRequest(c)
	require.NoError(t, err)
	assert.Empty(t, fingerprint, "nothing to fingerprint yields no key")
}
