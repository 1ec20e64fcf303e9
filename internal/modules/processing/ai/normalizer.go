package ai

import (
	"encoding/json"
	"strings"

	"github.com/shiv669/echo-core-go/internal/models"
)

// Outcome classifies how Normalize arrived at its summary. OutcomeParsed is
// the only non-degraded outcome; callers wanting observability log the rest.
type Outcome string

const (
	// OutcomeParsed means the analysis response contained a valid record.
	OutcomeParsed Outcome = "parsed"
	// OutcomeUnparsed means a response arrived but no record could be
	// extracted from it.
	OutcomeUnparsed Outcome = "unparsed"
	// OutcomeFailed means the analysis call itself failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeTooShort means the source text was below the analyzable minimum
	// and no call was attempted.
	OutcomeTooShort Outcome = "too_short"
)

// Degraded reports whether the summary is a placeholder rather than a real
// analysis result.
func (o Outcome) Degraded() bool { return o != OutcomeParsed }

const (
	// minAnalyzableRunes is the minimum trimmed source length worth sending
	// to an analysis provider.
	minAnalyzableRunes = 20
	// fallbackInsightsMaxRunes bounds how much raw response text is carried
	// into the unparsed placeholder.
	fallbackInsightsMaxRunes = 150
)

// ExtractStructuredSummary pulls a summary record out of a raw analysis
// response. Providers often wrap the JSON in prose or code fences, so the
// parse targets the span from the first "{" to the last "}". All four fields
// must be present; a null or absent field fails the extraction.
func ExtractStructuredSummary(raw string) (*models.StructuredSummary, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var record struct {
		KeyConcepts   *[]string `json:"key_concepts"`
		MethodsUsed   *[]string `json:"methods_used"`
		RelatedTopics *[]string `json:"related_topics"`
		Insights      *string   `json:"insights"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &record); err != nil {
		return nil, false
	}
	if record.KeyConcepts == nil || record.MethodsUsed == nil ||
		record.RelatedTopics == nil || record.Insights == nil {
		return nil, false
	}

	return &models.StructuredSummary{
		KeyConcepts:   models.StringSlice(*record.KeyConcepts),
		MethodsUsed:   models.StringSlice(*record.MethodsUsed),
		RelatedTopics: models.StringSlice(*record.RelatedTopics),
		Insights:      *record.Insights,
	}, true
}

// Normalize converts whatever the analysis call produced into a valid
// StructuredSummary. It never fails: every degraded path maps to one of three
// fixed placeholder summaries, and the Outcome records which path was taken.
//
// sourceText feeds only the too-short guard, which wins over everything else
// so that degenerate input never costs an analysis call. callErr reports a
// failed call; raw is the response text when one arrived.
func Normalize(sourceText, raw string, callErr error) (models.StructuredSummary, Outcome) {
	if !analyzable(sourceText) {
		return models.StructuredSummary{
			KeyConcepts:   models.StringSlice{"content analysis"},
			MethodsUsed:   models.StringSlice{"text processing"},
			RelatedTopics: models.StringSlice{"knowledge extraction"},
			Insights:      "Content too short to analyze",
		}, OutcomeTooShort
	}

	if callErr != nil {
		return models.StructuredSummary{
			KeyConcepts:   models.StringSlice{"source analysis"},
			MethodsUsed:   models.StringSlice{"content extraction"},
			RelatedTopics: models.StringSlice{"knowledge graphs"},
			Insights:      "Content captured successfully. AI summarization failed - using placeholder.",
		}, OutcomeFailed
	}

	if parsed, ok := ExtractStructuredSummary(raw); ok {
		return *parsed, OutcomeParsed
	}

	insights := clipRunes(raw, fallbackInsightsMaxRunes)
	if insights == "" {
		insights = "Content captured successfully"
	}
	return models.StructuredSummary{
		KeyConcepts:   models.StringSlice{"analysis", "summary"},
		MethodsUsed:   models.StringSlice{"text processing"},
		RelatedTopics: models.StringSlice{"information extraction"},
		Insights:      insights,
	}, OutcomeUnparsed
}

// analyzable reports whether trimmed text meets the analyzable minimum.
func analyzable(text string) bool {
	return len([]rune(strings.TrimSpace(text))) >= minAnalyzableRunes
}

// clipRunes returns at most max runes of text, with no ellipsis marker.
func clipRunes(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
