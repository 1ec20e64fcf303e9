package models

import "time"

// StringSlice is a []string that serializes as JSON in MySQL.
type StringSlice []string

// StructuredSummary is the normalized output of content analysis.
// All four fields are always present and typed; empty sets are valid, absent
// fields are not. JSON keys follow the analysis prompt contract so that a
// serialized summary fed back through the normalizer parses to itself.
type StructuredSummary struct {
	KeyConcepts   StringSlice `json:"key_concepts"`
	MethodsUsed   StringSlice `json:"methods_used"`
	RelatedTopics StringSlice `json:"related_topics"`
	Insights      string      `json:"insights"`
}

// NodeModel is a single ingested unit of knowledge.
// The public contract requires integer ids that are unique, monotonically
// assigned and never reused, so this model keys on AUTO_INCREMENT instead of
// the UUID Base used by ancillary tables. Rows are append-only: the summary
// and tags are frozen at creation and never edited afterwards.
type NodeModel struct {
	ID         int64             `json:"id"           gorm:"primaryKey;autoIncrement"`
	Title      string            `json:"title"        gorm:"not null"`
	Excerpt    string            `json:"content"      gorm:"type:varchar(512)"`
	FullText   string            `json:"full_content" gorm:"type:longtext"`
	SourceLink string            `json:"source"       gorm:"index"`
	SourceKind string            `json:"source_type"  gorm:"index"`
	Summary    StructuredSummary `json:"summary"      gorm:"type:json;serializer:json"`
	Tags       StringSlice       `json:"tags"         gorm:"type:json;serializer:json"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (NodeModel) TableName() string { return "nodes" }

// SourceKind values.
const (
	SourceKindGitHub = "github"
	SourceKindManual = "manual"
)

// DirectInputLink is the SourceLink recorded for text snippet ingestion.
const DirectInputLink = "direct_input"
