package archive

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shiv669/echo-core-go/internal/models"
	"gorm.io/gorm"
)

// legacyDatabase is the single-file JSON store used by the original ingest
// service: a flat node list plus its id counter.
type legacyDatabase struct {
	Nodes  []legacyNode `json:"nodes"`
	NextID int64        `json:"next_id"`
}

// legacyNode carries the wire-contract field names. Timestamps arrive as bare
// ISO strings without a zone, so created_at cannot decode into time.Time
// directly.
type legacyNode struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Content     string          `json:"content"`
	FullContent string          `json:"full_content"`
	Source      string          `json:"source"`
	SourceType  string          `json:"source_type"`
	Summary     json.RawMessage `json:"summary"`
	Tags        []string        `json:"tags"`
	CreatedAt   interface{}     `json:"created_at"`
}

type legacyImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// importLegacyDatabase merges a legacy JSON dump into the nodes table. Node
// ids are preserved; rows whose id already exists are skipped, never
// overwritten.
func importLegacyDatabase(db *gorm.DB, payload []byte) (*legacyImportResult, error) {
	var dump legacyDatabase
	if err := json.Unmarshal(payload, &dump); err != nil {
		return nil, fmt.Errorf("invalid legacy database file: %w", err)
	}

	existing := make(map[int64]struct{})
	var ids []int64
	if err := db.Model(&models.NodeModel{}).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		existing[id] = struct{}{}
	}

	result := &legacyImportResult{}
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, raw := range dump.Nodes {
			if raw.ID <= 0 {
				result.Skipped++
				continue
			}
			if _, dup := existing[raw.ID]; dup {
				result.Skipped++
				continue
			}

			node := legacyNodeToModel(raw)
			if err := tx.Create(&node).Error; err != nil {
				if isDuplicateConstraintError(err) {
					result.Skipped++
					continue
				}
				return fmt.Errorf("import node #%d failed: %w", raw.ID, err)
			}
			existing[raw.ID] = struct{}{}
			result.Imported++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := resetNodeAutoIncrement(db, dump.NextID); err != nil {
		return nil, err
	}
	return result, nil
}

func legacyNodeToModel(raw legacyNode) models.NodeModel {
	summary := models.StructuredSummary{
		KeyConcepts:   models.StringSlice{},
		MethodsUsed:   models.StringSlice{},
		RelatedTopics: models.StringSlice{},
	}
	if len(raw.Summary) > 0 {
		_ = json.Unmarshal(raw.Summary, &summary)
	}

	tags := models.StringSlice(raw.Tags)
	if tags == nil {
		tags = models.StringSlice{}
	}

	createdAt, ok := normalizeRestoreTime(raw.CreatedAt)
	if !ok {
		createdAt = time.Now()
	}

	return models.NodeModel{
		ID:         raw.ID,
		Title:      raw.Title,
		Excerpt:    raw.Content,
		FullText:   raw.FullContent,
		SourceLink: raw.Source,
		SourceKind: raw.SourceType,
		Summary:    summary,
		Tags:       tags,
		CreatedAt:  createdAt,
	}
}
