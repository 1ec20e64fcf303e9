package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shiv669/echo-core-go/internal/config"
	"gorm.io/gorm"
)

func resolveArchiveDir() string {
	dir := strings.TrimSpace(os.Getenv(EnvArchiveDir))
	if dir == "" {
		return config.ResolveRuntimePath("", "archives")
	}
	return config.ResolveRuntimePath(dir, "")
}

func archiveFilename(now time.Time) string {
	return fmt.Sprintf("echo-%s.zip", now.Format("2006-01-02T15-04-05"))
}

func listArchives() []archiveItem {
	dir := resolveArchiveDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	items := []archiveItem{}
	for _, entry := range entries {
		if item, ok := zipEntryItem(entry); ok {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Created > items[j].Created })
	return items
}

func zipEntryItem(entry os.DirEntry) (archiveItem, bool) {
	if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zip") {
		return archiveItem{}, false
	}
	info, err := entry.Info()
	if err != nil {
		return archiveItem{}, false
	}
	return archiveItem{
		Filename: entry.Name(),
		Size:     formatSize(info.Size()),
		Created:  info.ModTime().Unix(),
	}, true
}

func (h *Handler) createLocalArchiveArtifact(now time.Time) (*archiveArtifact, error) {
	buf, err := h.createArchiveZip()
	if err != nil {
		return nil, err
	}
	dir := resolveArchiveDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	filename := archiveFilename(now)
	target := filepath.Join(dir, filename)
	if err := os.WriteFile(target, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}

	return &archiveArtifact{
		Filename: filename,
		Path:     target,
		Buffer:   buf,
	}, nil
}

// createArchiveZip exports all graph tables as BSON into a ZIP archive.
func (h *Handler) createArchiveZip() (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)

	exported := make([]string, 0, len(archiveTableNames))
	for _, table := range archiveTableNames {
		if err := h.exportTable(w, table); err != nil {
			continue
		}
		exported = append(exported, table)
	}
	writeArchiveManifest(w, exported)

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}

// exportTable dumps one table as a BSON document stream into the archive.
// A table that cannot be read or encoded is skipped, not fatal.
func (h *Handler) exportTable(w *zip.Writer, table string) error {
	var rows []map[string]interface{}
	if err := h.db.Table(table).Find(&rows).Error; err != nil {
		return err
	}
	payload, err := encodeBSONRows(rows)
	if err != nil {
		return err
	}
	f, err := w.Create(path.Join(archiveDBDir, table+".bson"))
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err = f.Write(payload)
	return err
}

func writeArchiveManifest(w *zip.Writer, tables []string) {
	manifest := archiveManifest{
		Format:    archiveFormat,
		Version:   archiveFormatVersion,
		Engine:    "mysql",
		CreatedAt: time.Now().UTC(),
		Tables:    tables,
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return
	}
	if mf, err := w.Create(archiveManifestFile); err == nil {
		_, _ = mf.Write(data)
	}
}

// CreateLocalArchive creates an archive ZIP in the default archive directory.
func CreateLocalArchive(db *gorm.DB) error {
	h := &Handler{db: db}
	_, err := h.createLocalArchiveArtifact(time.Now())
	return err
}

// RunAutoArchive creates a local archive and, when S3 is enabled, uploads it
// under the configured path template. Returns the artifact filename.
func RunAutoArchive(ctx context.Context, db *gorm.DB, s3opts config.S3Options, pathTemplate string) (string, error) {
	h := &Handler{db: db}
	now := time.Now()
	artifact, err := h.createLocalArchiveArtifact(now)
	if err != nil {
		return "", err
	}
	if !s3opts.Enable {
		return artifact.Filename, nil
	}

	uploader, err := newS3Uploader(s3opts)
	if err != nil {
		return artifact.Filename, err
	}
	key := renderArchiveObjectKey(pathTemplate, artifact.Filename, now)
	if _, err := uploader.Upload(ctx, key, artifact.Buffer.Bytes(), "application/zip"); err != nil {
		return artifact.Filename, err
	}
	return artifact.Filename, nil
}

// PruneLocalArchives removes the oldest archives beyond keepCount. A keepCount
// of zero or less keeps everything.
func PruneLocalArchives(keepCount int) (int, error) {
	if keepCount <= 0 {
		return 0, nil
	}
	items := listArchives()
	if len(items) <= keepCount {
		return 0, nil
	}
	dir := resolveArchiveDir()
	removed := 0
	for _, item := range items[keepCount:] {
		if err := os.Remove(filepath.Join(dir, item.Filename)); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}
