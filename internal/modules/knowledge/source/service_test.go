package source

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiv669/echo-core-go/internal/models"
	"github.com/shiv669/echo-core-go/internal/pkg/taskqueue"
)

func TestParseRepoPath(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		owner   string
		repo    string
		wantErr bool
	}{
		{name: "https url", url: "https://github.com/golang/go", owner: "golang", repo: "go"},
		{name: "http url", url: "http://github.com/torvalds/linux", owner: "torvalds", repo: "linux"},
		{name: "trailing slash", url: "https://github.com/gin-gonic/gin/", owner: "gin-gonic", repo: "gin"},
		{name: "deep path ignored", url: "https://github.com/redis/go-redis/tree/master/internal", owner: "redis", repo: "go-redis"},
		{name: "query ignored", url: "https://github.com/google/uuid?tab=readme-ov-file", owner: "google", repo: "uuid"},
		{name: "surrounding whitespace", url: "  https://github.com/a/b  ", owner: "a", repo: "b"},
		{name: "owner only", url: "https://github.com/golang", wantErr: true},
		{name: "bare host", url: "https://github.com/", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			owner, repo, err := parseRepoPath(tc.url)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errRepoFetch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.owner, owner)
			assert.Equal(t, tc.repo, repo)
		})
	}
}

func TestExcerptOf(t *testing.T) {
	assert.Equal(t, "short text", excerptOf("short text"))
	assert.Equal(t, "", excerptOf(""))

	long := strings.Repeat("a", excerptMaxRunes+100)
	assert.Equal(t, strings.Repeat("a", excerptMaxRunes), excerptOf(long))

	// Rune-safe, not byte-safe.
	cjk := strings.Repeat("知", excerptMaxRunes+1)
	got := excerptOf(cjk)
	assert.Equal(t, strings.Repeat("知", excerptMaxRunes), got)

	exact := strings.Repeat("b", excerptMaxRunes)
	assert.Equal(t, exact, excerptOf(exact))
}

func TestLiteNode(t *testing.T) {
	node := &models.NodeModel{
		ID:         7,
		Title:      "Source #7",
		SourceLink: "direct_input",
		SourceKind: models.SourceKindManual,
		Tags:       models.StringSlice{"go"},
	}

	lite := liteNode(node)
	assert.Equal(t, int64(7), lite["id"])
	assert.Equal(t, "Source #7", lite["title"])
	assert.Equal(t, "direct_input", lite["source"])
	assert.Equal(t, "manual", lite["source_type"])
	assert.NotContains(t, lite, "full_content")
	assert.NotContains(t, lite, "summary")
}

func TestIngestRejectsEmptyInput(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil, nil, nil, nil)

	node, err := svc.Ingest(context.Background(), "", "a title", "")
	assert.Nil(t, node)
	assert.ErrorIs(t, err, errNoInput)
}

func TestIngestRejectsMalformedRepoURL(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil, nil, nil, nil)

	// Owner-only URLs fail in parsing, before any network call.
	node, err := svc.Ingest(context.Background(), "https://github.com/golang", "", "")
	assert.Nil(t, node)
	assert.ErrorIs(t, err, errRepoFetch)
}

func TestRetryIngestRejectsMalformedPayload(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, nil, nil, nil, nil)

	task := &taskqueue.Task{Payload: json.RawMessage(`{not json`)}
	fresh, err := svc.RetryIngest(context.Background(), task)
	assert.Nil(t, fresh)
	assert.Error(t, err)
}

func newIngestTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(NewService(nil, nil, nil, nil, nil, nil, nil, nil))
	h.RegisterRoutes(r.Group(""))
	return r
}

func TestAddSourceWithoutInput(t *testing.T) {
	r := newIngestTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/add_source", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t,
		`{"ok":0,"code":400,"message":"Either repo_url or text_snippet must be provided"}`,
		w.Body.String())
}

func TestAddSourceEmptyBody(t *testing.T) {
	r := newIngestTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/add_source", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Either repo_url or text_snippet must be provided")
}

func TestAddSourceBadRepoURL(t *testing.T) {
	r := newIngestTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/add_source", bytes.NewBufferString(`{"repo_url":"https://github.com/golang"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t,
		`{"ok":0,"code":400,"message":"Could not fetch GitHub repository. Make sure URL is correct."}`,
		w.Body.String())
}

func TestAddSourceBadRepoURLViaQuery(t *testing.T) {
	r := newIngestTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/add_source?repo_url=https://github.com/golang", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Could not fetch GitHub repository")
}

func TestImportSourcesRequiresURLs(t *testing.T) {
	r := newIngestTestRouter()

	for _, body := range []string{`{}`, `{"repo_urls":[]}`, `not json`} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/sources/import", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", body)
		assert.Contains(t, w.Body.String(), "repo_urls is required")
	}
}
