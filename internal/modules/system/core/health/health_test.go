package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shiv669/echo-core-go/internal/pkg/cron"
	"github.com/shiv669/echo-core-go/internal/pkg/nativelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHealthTestRouter(sched *cron.Scheduler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if sched == nil {
		sched = cron.New()
	}
	RegisterRoutes(router.Group(""), nil, sched)
	return router
}

func TestCronList(t *testing.T) {
	sched := cron.New()
	sched.Register(cron.Job{
		Name:        "cleanup_analytics",
		Description: "remove stale analytics rows",
		Every:       24 * time.Hour,
		Do:          func(ctx context.Context) error { return nil },
	})
	router := newHealthTestRouter(sched)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/cron", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var byName map[string]struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Status      string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &byName))
	require.Contains(t, byName, "cleanup_analytics")
	assert.Equal(t, "remove stale analytics rows", byName["cleanup_analytics"].Description)
	assert.Equal(t, "idle", byName["cleanup_analytics"].Status)
}

func TestCronRunAndTask(t *testing.T) {
	sched := cron.New()
	ran := make(chan struct{}, 1)
	sched.Register(cron.Job{
		Name:  "auto_archive",
		Every: time.Hour,
		Do: func(ctx context.Context) error {
			ran <- struct{}{}
			return nil
		},
	})
	router := newHealthTestRouter(sched)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health/cron/run/auto_archive", nil))
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run after manual trigger")
	}

	require.Eventually(t, func() bool {
		task, err := sched.GetTask("auto_archive")
		return err == nil && task.Status == cron.StatusFulfill
	}, 2*time.Second, 10*time.Millisecond)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/cron/task/auto_archive", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"fulfill"}`, w.Body.String())
}

func TestCronUnknownJob(t *testing.T) {
	router := newHealthTestRouter(nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health/cron/run/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/cron/task/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogListViewDelete(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(nativelog.EnvLogDir, dir)

	today := nativelog.TodayFilename(time.Now())
	older := "stdout_1-2-06.log"
	require.NoError(t, os.WriteFile(filepath.Join(dir, today), []byte("today line\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, older), []byte("older line\n"), 0o644))

	router := newHealthTestRouter(nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/log", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var listResp struct {
		Data []logItem `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	require.Len(t, listResp.Data, 2)
	for _, item := range listResp.Data {
		assert.Equal(t, "log", item.Kind)
		assert.Equal(t, "11 B", item.Size)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/log/view?filename="+today, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "today line\n", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/log/view", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/log/view?filename=nope.log", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A rotated file is removed outright.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/health/log?filename="+older, nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.NoFileExists(t, filepath.Join(dir, older))

	// Today's file is truncated, not removed.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/health/log?filename="+today, nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	data, err := os.ReadFile(filepath.Join(dir, today))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestLogListEmptyDir(t *testing.T) {
	t.Setenv(nativelog.EnvLogDir, filepath.Join(t.TempDir(), "missing"))
	router := newHealthTestRouter(nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/log", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())
}

func TestLogStreamDeliversFrames(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(nativelog.EnvLogDir, dir)
	today := nativelog.TodayFilename(time.Now())
	require.NoError(t, os.WriteFile(filepath.Join(dir, today), []byte("boot line\n"), 0o644))

	router := newHealthTestRouter(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/health/log/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	go func() {
		time.Sleep(100 * time.Millisecond)
		nativelog.Publish("live frame")
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	router.ServeHTTP(w, req)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, `"type":"tail"`)
	assert.Contains(t, body, "boot line")
	assert.Contains(t, body, `"type":"log"`)
	assert.Contains(t, body, "live frame")
}

func TestSanitizeLogFilename(t *testing.T) {
	assert.Equal(t, "stdout_8-25-26.log", sanitizeLogFilename("stdout_8-25-26.log"))
	assert.Equal(t, "passwd", sanitizeLogFilename("../../etc/passwd"))
	assert.Equal(t, "a.log", sanitizeLogFilename("  a.log  "))
	assert.Empty(t, sanitizeLogFilename(""))
	assert.Empty(t, sanitizeLogFilename("   "))
	assert.Empty(t, sanitizeLogFilename("/"))
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.00 KB", humanSize(1024))
	assert.Equal(t, "1.50 MB", humanSize(3<<19))
}

func TestReadTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")

	assert.Empty(t, readTail(path, 100))

	require.NoError(t, os.WriteFile(path, []byte("first\nsecond\nthird\n"), 0o644))
	assert.Equal(t, "first\nsecond\nthird\n", readTail(path, 100))

	// Clipped reads drop the partial leading line.
	assert.Equal(t, "third\n", readTail(path, 8))
}
