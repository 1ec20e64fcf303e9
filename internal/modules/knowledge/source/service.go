package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shiv669/echo-core-go/internal/middleware"
	"github.com/shiv669/echo-core-go/internal/models"
	"github.com/shiv669/echo-core-go/internal/modules/gateway/gateway"
	"github.com/shiv669/echo-core-go/internal/modules/processing/ai"
	"github.com/shiv669/echo-core-go/internal/modules/system/core/configs"
	"github.com/shiv669/echo-core-go/internal/pkg/bark"
	pkgredis "github.com/shiv669/echo-core-go/internal/pkg/redis"
	"github.com/shiv669/echo-core-go/internal/pkg/taskqueue"
)

var errNoInput = errors.New("either repo_url or text_snippet must be provided")

const excerptMaxRunes = 500

type Service struct {
	db      *gorm.DB
	aiSvc   *ai.Service
	cfgSvc  *configs.Service
	taskSvc *taskqueue.Service
	hub     *gateway.Hub
	barkSvc *bark.Service
	rc      *pkgredis.Client
	logger  *zap.Logger
}

func NewService(
	db *gorm.DB,
	aiSvc *ai.Service,
	cfgSvc *configs.Service,
	taskSvc *taskqueue.Service,
	hub *gateway.Hub,
	barkSvc *bark.Service,
	rc *pkgredis.Client,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:      db,
		aiSvc:   aiSvc,
		cfgSvc:  cfgSvc,
		taskSvc: taskSvc,
		hub:     hub,
		barkSvc: barkSvc,
		rc:      rc,
		logger:  logger,
	}
}

// Ingest runs the acquisition pipeline and returns the stored node. A repo_url
// starting with http wins over text_snippet; analysis degradation never fails
// the ingestion, only fetch and storage errors do.
func (s *Service) Ingest(ctx context.Context, repoURL, title, textSnippet string) (*models.NodeModel, error) {
	var content, sourceLink, sourceKind string

	switch {
	case strings.HasPrefix(repoURL, "http"):
		fetched, err := s.fetchReadme(ctx, repoURL)
		if err != nil {
			return nil, err
		}
		content = fetched
		sourceLink = repoURL
		sourceKind = models.SourceKindGitHub
	case textSnippet != "":
		content = textSnippet
		sourceLink = models.DirectInputLink
		sourceKind = models.SourceKindManual
	default:
		return nil, errNoInput
	}

	summary, outcome := s.aiSvc.Analyze(ctx, content)
	if outcome.Degraded() && s.logger != nil {
		s.logger.Warn("analysis degraded",
			zap.String("outcome", string(outcome)),
			zap.String("source", sourceLink))
	}

	node := &models.NodeModel{
		Title:      strings.TrimSpace(title),
		Excerpt:    excerptOf(content),
		FullText:   content,
		SourceLink: sourceLink,
		SourceKind: sourceKind,
		Summary:    summary,
		Tags:       summary.KeyConcepts,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(node).Error; err != nil {
			return err
		}
		if node.Title == "" {
			node.Title = fmt.Sprintf("Source #%d", node.ID)
			return tx.Model(&models.NodeModel{}).Where("id = ?", node.ID).Update("title", node.Title).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterIngest(node)
	return node, nil
}

// afterIngest fans out side effects that must not fail the request.
func (s *Service) afterIngest(node *models.NodeModel) {
	if s.hub != nil {
		s.hub.BroadcastPublic(gateway.EventNodeCreated, liteNode(node))
	}

	go s.purgeCache()

	if s.barkSvc != nil && s.cfgSvc != nil {
		if cfg, err := s.cfgSvc.Get(); err == nil && cfg.BarkOptions.Enable && cfg.BarkOptions.EnableIngest {
			_ = s.barkSvc.Push("ECHO 新节点入库", fmt.Sprintf("#%d %s (%s)", node.ID, node.Title, node.SourceKind))
		}
	}
}

// purgeCache drops cached GET responses so /get_nodes reflects the new node
// before the TTL expires.
func (s *Service) purgeCache() {
	if s.rc == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := middleware.PurgeHTTPCache(ctx, s.rc.Raw()); err != nil && s.logger != nil {
		s.logger.Warn("cache purge after ingest failed", zap.Error(err))
	}
}

// liteNode is the broadcast shape for node_created: enough for a client to
// update its graph without refetching everything.
func liteNode(node *models.NodeModel) map[string]interface{} {
	return map[string]interface{}{
		"id":          node.ID,
		"title":       node.Title,
		"source":      node.SourceLink,
		"source_type": node.SourceKind,
		"tags":        node.Tags,
		"created_at":  node.CreatedAt,
	}
}

func excerptOf(content string) string {
	if utf8.RuneCountInString(content) <= excerptMaxRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:excerptMaxRunes])
}
