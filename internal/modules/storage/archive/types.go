package archive

import (
	"archive/zip"
	"bytes"
	"time"

	"github.com/shiv669/echo-core-go/internal/modules/system/core/configs"
	pkgredis "github.com/shiv669/echo-core-go/internal/pkg/redis"
	"github.com/shiv669/echo-core-go/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const archiveDBDir = "db"
const archiveManifestFile = "manifest.json"
const archiveFormat = "echo-core-bson"
const archiveFormatVersion = 1
const defaultS3PathTemplate = "archives/{Y}/{m}/{filename}"
const EnvArchiveDir = "ECHO_ARCHIVE_DIR"

var archiveTableNames = []string{
	"nodes",
	"analyzes",
	"options",
}

var archiveTableNameSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(archiveTableNames))
	for _, table := range archiveTableNames {
		set[table] = struct{}{}
	}
	return set
}()

var restoreTableAliases = map[string]string{
	"node":         "nodes",
	"analyze":      "analyzes",
	"analyze_logs": "analyzes",
	"analytics":    "analyzes",
	"option":       "options",
	"settings":     "options",
}

var restoreColumnAliases = map[string]string{
	"_id":       "id",
	"created":   "created_at",
	"modified":  "updated_at",
	"createdat": "created_at",
	"updatedat": "updated_at",
	"ipaddress": "ip",
	"useragent": "ua",
}

// Node dumps written by older exporters carry the wire names instead of the
// column names.
var restoreColumnAliasesByTable = map[string]map[string]string{
	"nodes": {
		"content":      "excerpt",
		"full_content": "full_text",
		"source":       "source_link",
		"source_type":  "source_kind",
	},
}

// Handler is the HTTP handler for archive operations.
type Handler struct {
	db      *gorm.DB
	cfgSvc  *configs.Service
	rc      *pkgredis.Client
	taskSvc *taskqueue.Service
	logger  *zap.Logger
}

type archiveManifest struct {
	Format    string    `json:"format"`
	Version   int       `json:"version"`
	Engine    string    `json:"engine"`
	CreatedAt time.Time `json:"created_at"`
	Tables    []string  `json:"tables"`
}

type archiveEntryCandidate struct {
	File   *zip.File
	Format string
}

type tableColumn struct {
	DBType string
}

type archiveItem struct {
	Filename string `json:"filename"`
	Size     string `json:"size"`
	Created  int64  `json:"created"`
}

type archiveArtifact struct {
	Filename string
	Path     string
	Buffer   *bytes.Buffer
}

type uploadS3DTO struct {
	Filename string `json:"filename" form:"filename"`
}
