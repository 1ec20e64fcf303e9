package nativelog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// EnvLogDir propagates the resolved log directory to worker processes.
	EnvLogDir = "ECHO_LOG_DIR"

	// Rotation knobs. A size of zero disables rotation.
	EnvLogRotateSizeMB = "ECHO_LOG_ROTATE_SIZE_MB"
	EnvLogRotateKeep   = "ECHO_LOG_ROTATE_KEEP"

	defaultFeedBuffer = 128
	defaultRotateKeep = 5

	logFilePerm = 0o644
	logDirPerm  = 0o755

	// Daily files keep the historical stdout_M-D-YY.log naming.
	dailyLayout = "1-2-06"
)

// ResolveDir picks the native log directory: the env override wins, then the
// first existing candidate, then the first candidate as-is.
func ResolveDir() string {
	if override := strings.TrimSpace(os.Getenv(EnvLogDir)); override != "" {
		return override
	}

	var dirs []string
	if strings.EqualFold(strings.TrimSpace(os.Getenv("APP_ENV")), "development") {
		dirs = append(dirs, filepath.Join(".", "tmp", "log"))
	}
	if home, homeErr := os.UserHomeDir(); homeErr == nil && home != "" {
		dirs = append(dirs, filepath.Join(home, ".echo", "log"))
	}
	dirs = append(dirs, filepath.Join(".", "logs"), filepath.Join(".", "tmp", "log"))

	for _, candidate := range dirs {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return dirs[0]
}

// TodayFilename names the daily log file, e.g. stdout_8-25-26.log.
func TodayFilename(at time.Time) string {
	return "stdout_" + at.Format(dailyLayout) + ".log"
}

// TodayFilePath returns the full path of today's log file.
func TodayFilePath(at time.Time) string {
	return filepath.Join(ResolveDir(), TodayFilename(at))
}

// Writer appends log frames to the daily file and fans them out to realtime
// subscribers.
type Writer struct {
	mu  sync.Mutex
	dir string
}

// NewWriter creates a native log writer rooted at the resolved log dir. The
// dir is exported back into the environment so worker processes agree on it.
func NewWriter() (*Writer, error) {
	w := &Writer{dir: ResolveDir()}
	if err := os.MkdirAll(w.dir, logDirPerm); err != nil {
		return nil, err
	}
	_ = os.Setenv(EnvLogDir, w.dir)
	return w, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	target := filepath.Join(w.dir, TodayFilename(time.Now()))
	w.rotateIfNeeded(target, len(p))

	n, err := appendToFile(target, p)
	if n > 0 {
		Publish(string(p[:n]))
	}
	return n, err
}

func (w *Writer) Sync() error {
	return nil
}

func appendToFile(path string, p []byte) (int, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFilePerm)
	if err != nil {
		return 0, err
	}
	n, writeErr := f.Write(p)
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	return n, writeErr
}

// wouldExceedCap reports whether appending incoming bytes pushes the file
// past the rotation cap.
func wouldExceedCap(path string, incoming, sizeMB int) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size()+int64(incoming) > int64(sizeMB)*1024*1024
}

// rotateIfNeeded renames the active daily file once it would exceed the
// configured size cap. Rotation takes the cross-process lock so cluster
// workers appending to the same file do not race the rename.
func (w *Writer) rotateIfNeeded(path string, incoming int) {
	sizeMB := envInt(EnvLogRotateSizeMB, 0)
	if sizeMB <= 0 || !wouldExceedCap(path, incoming, sizeMB) {
		return
	}

	_ = withProcessLogLock(func() error {
		// Another worker may have rotated while this one waited for the lock.
		if !wouldExceedCap(path, incoming, sizeMB) {
			return nil
		}
		rotated := fmt.Sprintf("%s.%d", path, time.Now().UnixMilli())
		if err := os.Rename(path, rotated); err != nil {
			return err
		}
		pruneRotated(path, envInt(EnvLogRotateKeep, defaultRotateKeep))
		return nil
	})
}

func pruneRotated(basePath string, keep int) {
	if keep < 1 {
		keep = 1
	}
	matches, err := filepath.Glob(basePath + ".*")
	if err != nil || len(matches) <= keep {
		return
	}
	sort.Strings(matches)
	for _, stale := range matches[:len(matches)-keep] {
		_ = os.Remove(stale)
	}
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// logFeed fans realtime log frames out to subscribers.
type logFeed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan string
}

func newLogFeed() *logFeed {
	return &logFeed{subs: make(map[int]chan string)}
}

var liveFeed = newLogFeed()

// Subscribe registers a realtime log listener and returns its id and channel.
func Subscribe(buf int) (int, <-chan string) {
	if buf <= 0 {
		buf = defaultFeedBuffer
	}
	return liveFeed.subscribe(buf)
}

// Unsubscribe removes a listener and closes its channel.
func Unsubscribe(id int) {
	liveFeed.unsubscribe(id)
}

// Publish fans a log frame out to all current listeners.
func Publish(frame string) {
	if frame == "" {
		return
	}
	liveFeed.publish(frame)
}

func (f *logFeed) subscribe(buf int) (int, <-chan string) {
	out := make(chan string, buf)

	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.subs[id] = out
	return id, out
}

func (f *logFeed) unsubscribe(id int) {
	f.mu.Lock()
	out, ok := f.subs[id]
	delete(f.subs, id)
	f.mu.Unlock()

	if ok {
		close(out)
	}
}

func (f *logFeed) publish(frame string) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	// Slow consumers lose frames instead of blocking the writer.
	for _, out := range f.subs {
		select {
		case out <- frame:
		default:
		}
	}
}

// NewZapLogger builds the process logger: console output plus the daily
// native log file with realtime streaming.
func NewZapLogger() (*zap.Logger, error) {
	sink, err := NewWriter()
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	enc := zapcore.NewConsoleEncoder(encCfg)

	lvl := zap.NewAtomicLevelAt(zap.InfoLevel)
	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.Lock(os.Stdout), lvl),
		zapcore.NewCore(enc, zapcore.AddSync(sink), lvl),
	)

	lg := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	_ = zap.RedirectStdLog(lg)
	return lg, nil
}
