package nativelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTodayFilename(t *testing.T) {
	assert.Equal(t, "stdout_8-5-26.log", TodayFilename(time.Date(2026, 8, 5, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "stdout_11-23-26.log", TodayFilename(time.Date(2026, 11, 23, 0, 0, 0, 0, time.UTC)))
}

func TestResolveDirEnvOverride(t *testing.T) {
	t.Setenv(EnvLogDir, "/custom/echo/log")
	assert.Equal(t, "/custom/echo/log", ResolveDir())

	t.Setenv(EnvLogDir, "")
	assert.NotEmpty(t, ResolveDir())
}

func TestEnvInt(t *testing.T) {
	t.Setenv(EnvLogRotateKeep, "")
	assert.Equal(t, 5, envInt(EnvLogRotateKeep, 5))

	t.Setenv(EnvLogRotateKeep, "42")
	assert.Equal(t, 42, envInt(EnvLogRotateKeep, 5))

	t.Setenv(EnvLogRotateKeep, " 7 ")
	assert.Equal(t, 7, envInt(EnvLogRotateKeep, 5))

	t.Setenv(EnvLogRotateKeep, "garbage")
	assert.Equal(t, 5, envInt(EnvLogRotateKeep, 5))
}

func TestWriterAppendsToDailyFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvLogDir, dir)
	t.Setenv(EnvLogRotateSizeMB, "")

	w, err := NewWriter()
	require.NoError(t, err)

	n, err := w.Write(nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = w.Write([]byte("first line\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second line\n"))
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, TodayFilename(time.Now())))
	require.NoError(t, err)
	assert.Equal(t, "first line\nsecond line\n", string(content))
}

func TestWriterPublishesFrames(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvLogDir, dir)
	t.Setenv(EnvLogRotateSizeMB, "")

	w, err := NewWriter()
	require.NoError(t, err)

	id, ch := Subscribe(4)
	defer Unsubscribe(id)

	_, err = w.Write([]byte("frame\n"))
	require.NoError(t, err)

	select {
	case frame := <-ch:
		assert.Equal(t, "frame\n", frame)
	case <-time.After(time.Second):
		t.Fatal("no realtime frame received")
	}
}

func TestWriterRotatesWhenOverCap(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvLogDir, dir)
	t.Setenv(EnvLogRotateSizeMB, "1")
	t.Setenv(EnvLogRotateKeep, "5")

	path := filepath.Join(dir, TodayFilename(time.Now()))
	require.NoError(t, os.WriteFile(path, make([]byte, 1<<20), 0o644))

	w, err := NewWriter()
	require.NoError(t, err)
	_, err = w.Write([]byte("over the cap\n"))
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "over the cap\n", string(content), "active file restarts after rotation")

	rotated, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, rotated, 1)
}

func TestPruneRotated(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "stdout_1-1-26.log")
	for _, suffix := range []string{".100", ".200", ".300"} {
		require.NoError(t, os.WriteFile(base+suffix, []byte("x"), 0o644))
	}

	pruneRotated(base, 2)

	remaining, err := filepath.Glob(base + ".*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{base + ".200", base + ".300"}, remaining)

	// Keeping more than exists is a no-op.
	pruneRotated(base, 10)
	remaining, err = filepath.Glob(base + ".*")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestStreamHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := newLogFeed()
	id, ch := hub.subscribe(1)

	hub.publish("kept")
	hub.publish("dropped")

	assert.Equal(t, "kept", <-ch)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra frame %q", extra)
	default:
	}

	hub.unsubscribe(id)
	_, open := <-ch
	assert.False(t, open, "unsubscribe closes the channel")
}
