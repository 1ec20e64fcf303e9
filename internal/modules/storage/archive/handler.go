package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shiv669/echo-core-go/internal/modules/system/core/configs"
	pkgredis "github.com/shiv669/echo-core-go/internal/pkg/redis"
	"github.com/shiv669/echo-core-go/internal/pkg/response"
	"github.com/shiv669/echo-core-go/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TaskTypeUpload identifies queued S3 uploads of archive artifacts.
const TaskTypeUpload = "archive:upload"

func NewHandler(db *gorm.DB, cfgSvc *configs.Service, rc *pkgredis.Client, taskSvc *taskqueue.Service, opts ...HandlerOption) *Handler {
	h := &Handler{db: db, cfgSvc: cfgSvc, rc: rc, taskSvc: taskSvc, logger: zap.NewNop()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// HandlerOption configures an archive Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger for the archive handler.
func WithLogger(l *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l.Named("ArchiveService")
		}
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/archive")

	g.GET("", h.list)
	g.GET("/new", h.createAndDownload)
	g.GET("/:filename", h.download)
	g.POST("", h.uploadAndRestore)
	g.POST("/rollback", h.uploadAndRestore)
	g.POST("/import/legacy", h.importLegacy)
	g.POST("/upload-to-s3", h.uploadToS3)
	g.PATCH("/rollback/:filename", h.rollback)
	g.PATCH("/:filename", h.rollback)
	g.DELETE("", h.delete)
	g.DELETE("/:filename", h.deleteOne)
}

// GET /archive
func (h *Handler) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": listArchives()})
}

// GET /archive/new
func (h *Handler) createAndDownload(c *gin.Context) {
	h.logger.Info("archiving graph tables...")
	buf, err := h.createArchiveZip()
	if err != nil {
		h.logger.Warn("archive failed", zap.Error(err))
		response.InternalError(c, err)
		return
	}

	filename := fmt.Sprintf("echo-%s.zip", time.Now().Format("2006-01-02T15-04-05"))
	if err := writeArchiveFile(filename, buf.Bytes()); err != nil {
		response.InternalError(c, err)
		return
	}

	serveArchiveZip(c, filename, buf.Bytes())
	h.logger.Info("archive created", zap.String("filename", filename))
}

// GET /archive/:filename
func (h *Handler) download(c *gin.Context) {
	filename := filepath.Base(c.Param("filename"))
	if !strings.HasSuffix(filename, ".zip") {
		response.BadRequest(c, "invalid filename")
		return
	}
	data, ok := h.readStoredArchive(c, filename)
	if !ok {
		return
	}
	serveArchiveZip(c, filename, data)
}

// POST /archive, POST /archive/rollback
func (h *Handler) uploadAndRestore(c *gin.Context) {
	data, ok := h.readUploadedFile(c)
	if !ok {
		return
	}
	if !h.restoreZipPayload(c, data, "restore") {
		return
	}
	h.logger.Info("restore completed from uploaded archive")
	response.OK(c, gin.H{"message": "restore successful"})
}

// PATCH /archive/rollback/:filename
func (h *Handler) rollback(c *gin.Context) {
	filename := filepath.Base(c.Param("filename"))
	data, ok := h.readStoredArchive(c, filename)
	if !ok {
		return
	}

	h.logger.Info("rolling back to archive", zap.String("filename", filename))
	if !h.restoreZipPayload(c, data, "rollback") {
		return
	}
	h.logger.Info("rollback completed")
	response.OK(c, gin.H{"message": "rollback successful"})
}

// POST /archive/import/legacy
func (h *Handler) importLegacy(c *gin.Context) {
	var data []byte
	if _, err := c.FormFile("file"); err == nil {
		payload, ok := h.readUploadedFile(c)
		if !ok {
			return
		}
		data = payload
	} else {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil || len(bytes.TrimSpace(body)) == 0 {
			response.BadRequest(c, "missing file")
			return
		}
		data = body
	}

	result, err := importLegacyDatabase(h.db, data)
	if err != nil {
		if strings.Contains(err.Error(), "invalid legacy database file") {
			response.BadRequest(c, err.Error())
			return
		}
		h.logger.Warn("legacy import failed", zap.Error(err))
		response.InternalError(c, err)
		return
	}

	h.invalidateRuntimeCaches(c)
	h.logger.Info("legacy database imported",
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
	)
	response.OK(c, result)
}

// DELETE /archive
func (h *Handler) delete(c *gin.Context) {
	files := strings.TrimSpace(c.Query("files"))
	if files == "" {
		var body struct {
			Files string `json:"files"`
		}
		_ = c.ShouldBindJSON(&body)
		files = strings.TrimSpace(body.Files)
	}
	if files == "" {
		response.BadRequest(c, "missing files")
		return
	}

	dir := resolveArchiveDir()
	for _, raw := range strings.Split(files, ",") {
		if name := sanitizeArchiveName(raw); name != "" {
			os.Remove(filepath.Join(dir, name))
		}
	}
	response.NoContent(c)
}

// DELETE /archive/:filename
func (h *Handler) deleteOne(c *gin.Context) {
	name := sanitizeArchiveName(c.Param("filename"))
	if name == "" {
		response.BadRequest(c, "invalid filename")
		return
	}
	_ = os.Remove(filepath.Join(resolveArchiveDir(), name))
	response.NoContent(c)
}

// POST /archive/upload-to-s3
//
// The artifact is written synchronously so the response can name it, then the
// S3 transfer itself runs as a queued task.
func (h *Handler) uploadToS3(c *gin.Context) {
	uploader, keyTemplate, ok := h.s3Preflight(c)
	if !ok {
		return
	}

	var dto uploadS3DTO
	_ = c.ShouldBind(&dto)

	now := time.Now()
	artifact, ok := h.resolveUploadArtifact(c, dto.Filename, now)
	if !ok {
		return
	}

	key := renderArchiveObjectKey(keyTemplate, artifact.Filename, now)
	task, err := h.taskSvc.Enqueue(c.Request.Context(), TaskTypeUpload, gin.H{
		"filename": artifact.Filename,
		"key":      key,
	}, artifact.Filename, "")
	if err != nil {
		response.InternalError(c, err)
		return
	}

	// A dedup hit hands back the task already in flight; only a fresh
	// pending task starts a transfer.
	if task.Status == taskqueue.TaskPending {
		go h.executeUpload(context.Background(), task.ID, uploader, key, artifact.Buffer.Bytes())
	}

	c.JSON(http.StatusAccepted, gin.H{"data": task})
}

func (h *Handler) executeUpload(ctx context.Context, taskID string, uploader *s3Uploader, key string, payload []byte) {
	if err := h.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskRunning, nil, ""); err != nil {
		h.logger.Warn("upload task start failed", zap.String("task", taskID), zap.Error(err))
	}

	h.logger.Info("uploading archive to s3", zap.String("key", key))
	url, err := uploader.Upload(ctx, key, payload, "application/zip")
	if err != nil {
		h.logger.Warn("s3 upload failed", zap.Error(err))
		_ = h.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskFailed, nil, err.Error())
		return
	}

	h.logger.Info("s3 upload completed", zap.String("url", url))
	_ = h.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskCompleted, gin.H{
		"key": key,
		"url": url,
	}, "")
}

// s3Preflight checks that archive uploads are configured and builds the
// uploader. On failure the HTTP response has already been written.
func (h *Handler) s3Preflight(c *gin.Context) (*s3Uploader, string, bool) {
	if h.cfgSvc == nil {
		response.InternalError(c, fmt.Errorf("config service is unavailable"))
		return nil, "", false
	}
	cfg, err := h.cfgSvc.Get()
	if err != nil {
		response.InternalError(c, err)
		return nil, "", false
	}
	if cfg == nil {
		response.InternalError(c, fmt.Errorf("configs not initialized"))
		return nil, "", false
	}
	if !cfg.S3Options.Enable {
		response.BadRequest(c, "s3 upload is disabled")
		return nil, "", false
	}
	uploader, err := newS3Uploader(cfg.S3Options)
	if err != nil {
		response.BadRequest(c, err.Error())
		return nil, "", false
	}
	return uploader, cfg.ArchiveOptions.Path, true
}

// resolveUploadArtifact picks a stored archive by name, or builds a fresh one
// when no filename was supplied.
func (h *Handler) resolveUploadArtifact(c *gin.Context, rawName string, now time.Time) (*archiveArtifact, bool) {
	filename := strings.TrimSpace(filepath.Base(rawName))
	if filename == "" || filename == "." {
		artifact, err := h.createLocalArchiveArtifact(now)
		if err != nil {
			response.InternalError(c, err)
			return nil, false
		}
		return artifact, true
	}

	data, ok := h.readStoredArchive(c, filename)
	if !ok {
		return nil, false
	}
	return &archiveArtifact{Filename: filename, Buffer: bytes.NewBuffer(data)}, true
}

// readUploadedFile pulls the multipart "file" field into memory. On failure
// the HTTP response has already been written.
func (h *Handler) readUploadedFile(c *gin.Context) ([]byte, bool) {
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file")
		return nil, false
	}
	src, err := file.Open()
	if err != nil {
		response.InternalError(c, err)
		return nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		response.InternalError(c, err)
		return nil, false
	}
	return data, true
}

// readStoredArchive loads a ZIP from the archive directory. On failure the
// HTTP response has already been written.
func (h *Handler) readStoredArchive(c *gin.Context, filename string) ([]byte, bool) {
	data, err := os.ReadFile(filepath.Join(resolveArchiveDir(), filename))
	switch {
	case os.IsNotExist(err):
		response.NotFoundMsg(c, "archive not found")
		return nil, false
	case err != nil:
		response.InternalError(c, err)
		return nil, false
	}
	return data, true
}

// restoreZipPayload parses data as a ZIP and replays it into the database,
// then drops runtime caches. action names the operation in failure logs.
func (h *Handler) restoreZipPayload(c *gin.Context, data []byte, action string) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		response.BadRequest(c, "invalid zip file")
		return false
	}
	if err := RestoreFromZip(h.db, zr); err != nil {
		h.logger.Warn(action+" failed", zap.Error(err))
		response.InternalError(c, err)
		return false
	}
	h.invalidateRuntimeCaches(c)
	return true
}

func (h *Handler) invalidateRuntimeCaches(c *gin.Context) {
	if h.cfgSvc != nil {
		h.cfgSvc.Invalidate()
	}
	if h.rc != nil {
		_ = h.rc.Raw().FlushDB(c.Request.Context())
	}
}

// sanitizeArchiveName strips any path component and accepts only .zip names.
func sanitizeArchiveName(raw string) string {
	name := strings.TrimSpace(filepath.Base(raw))
	if name == "" || !strings.HasSuffix(name, ".zip") {
		return ""
	}
	return name
}

func writeArchiveFile(filename string, payload []byte) error {
	dir := resolveArchiveDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, filename), payload, 0o644)
}

func serveArchiveZip(c *gin.Context, filename string, payload []byte) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/zip", payload)
}
