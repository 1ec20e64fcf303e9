package health

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shiv669/echo-core-go/internal/pkg/cron"
	"github.com/shiv669/echo-core-go/internal/pkg/nativelog"
	"github.com/shiv669/echo-core-go/internal/pkg/response"
	"gorm.io/gorm"
)

const (
	serviceName    = "ECHO Backend"
	serviceVersion = "1.0"
)

type logItem struct {
	Size     string `json:"size"`
	Filename string `json:"filename"`
	Kind     string `json:"type"`
	Seq      int    `json:"index"`
	ModTime  int64  `json:"created"`
}

func RegisterRoutes(rg *gin.RouterGroup, db *gorm.DB, sched *cron.Scheduler) {
	rg.GET("/health", probeHandler(db))

	g := rg.Group("/health")

	cronGroup := g.Group("/cron")
	cronGroup.GET("", cronIndex(sched))
	cronGroup.POST("/run/:name", cronTrigger(sched))
	cronGroup.GET("/task/:name", cronTaskState(sched))

	logGroup := g.Group("/log")
	logGroup.GET("", listLogFiles)
	logGroup.GET("/view", viewLogFile)
	logGroup.DELETE("", removeLogFile)
	logGroup.GET("/stream", streamLog)
}

func probeHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(probe(db))
	}
}

func cronIndex(sched *cron.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobs := sched.List()
		byName := make(map[string]cron.ListItem, len(jobs))
		for _, job := range jobs {
			byName[job.Name] = job
		}
		response.OK(c, byName)
	}
}

func cronTrigger(sched *cron.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := sched.Run(c.Request.Context(), c.Param("name")); err != nil {
			response.NotFoundMsg(c, err.Error())
			return
		}
		response.OK(c, gin.H{"message": "job triggered"})
	}
}

func cronTaskState(sched *cron.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := sched.GetTask(c.Param("name"))
		if err != nil {
			response.NotFoundMsg(c, err.Error())
			return
		}
		response.OK(c, result)
	}
}

func listLogFiles(c *gin.Context) {
	entries, err := os.ReadDir(nativelog.ResolveDir())
	if errors.Is(err, os.ErrNotExist) {
		response.OK(c, []logItem{})
		return
	}
	if err != nil {
		response.BadRequest(c, "log dir not exists")
		return
	}

	items := make([]logItem, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, logItem{
			Size:     humanSize(info.Size()),
			Filename: entry.Name(),
			Kind:     "log",
			Seq:      len(items),
			ModTime:  info.ModTime().UnixMilli(),
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ModTime > items[j].ModTime })
	response.OK(c, items)
}

func viewLogFile(c *gin.Context) {
	filename := sanitizeLogFilename(c.Query("filename"))
	if filename == "" {
		response.UnprocessableEntity(c, "filename must be string")
		return
	}

	data, err := os.ReadFile(filepath.Join(nativelog.ResolveDir(), filename))
	if err != nil {
		response.BadRequest(c, "log file not exists")
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

func removeLogFile(c *gin.Context) {
	filename := sanitizeLogFilename(c.Query("filename"))
	if filename == "" {
		response.UnprocessableEntity(c, "filename must be string")
		return
	}

	logDir := nativelog.ResolveDir()
	target := filepath.Join(logDir, filename)

	var err error
	if mustTruncate(target, filepath.Join(logDir, nativelog.TodayFilename(time.Now()))) {
		err = os.WriteFile(target, nil, 0o644)
	} else {
		err = os.Remove(target)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

// mustTruncate reports whether the file is still receiving writes: the active
// error log, or today's stdout log. Those are emptied instead of removed.
func mustTruncate(target, todayPath string) bool {
	if strings.HasSuffix(strings.ToLower(target), "error.log") {
		return true
	}
	return pathsEqual(target, todayPath)
}

// probe pings the database and maps the result onto the health payload.
func probe(db *gorm.DB) (int, gin.H) {
	database := databaseState(db)

	status, code := "healthy", http.StatusOK
	if database != "connected" {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	return code, gin.H{
		"status":   status,
		"service":  serviceName,
		"version":  serviceVersion,
		"database": database,
	}
}

func databaseState(db *gorm.DB) string {
	sqlDB, err := db.DB()
	if err != nil {
		return "unavailable"
	}
	if sqlDB.Ping() != nil {
		return "disconnected"
	}
	return "connected"
}

// sanitizeLogFilename strips any path component so log access stays inside
// the log directory. Returns "" when nothing usable remains.
func sanitizeLogFilename(raw string) string {
	name := filepath.Base(strings.TrimSpace(raw))
	switch name {
	case ".", string(filepath.Separator):
		return ""
	}
	return name
}

const (
	kib = 1 << 10
	mib = 1 << 20
)

func humanSize(size int64) string {
	if size >= mib {
		return fmt.Sprintf("%.2f MB", float64(size)/mib)
	}
	if size >= kib {
		return fmt.Sprintf("%.2f KB", float64(size)/kib)
	}
	return fmt.Sprintf("%d B", size)
}

var caseInsensitiveFS = runtime.GOOS == "windows"

func pathsEqual(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if caseInsensitiveFS {
		return strings.EqualFold(a, b)
	}
	return a == b
}
