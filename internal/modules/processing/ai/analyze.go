package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shiv669/echo-core-go/internal/models"
)

var (
	errAnalysisDisabled = errors.New("AI analysis is disabled")
	errNoProvider       = errors.New("no enabled AI provider")
)

// Analyze runs the configured analysis provider over text and normalizes the
// result. It never returns an error: a degraded call yields one of the fixed
// placeholder summaries and a non-parsed outcome, so ingestion can always
// proceed.
func (s *Service) Analyze(ctx context.Context, text string) (models.StructuredSummary, Outcome) {
	summary, outcome, _ := s.AnalyzeRaw(ctx, text)
	return summary, outcome
}

// AnalyzeRaw is Analyze plus the raw provider response, for callers that
// surface the unparsed text.
func (s *Service) AnalyzeRaw(ctx context.Context, text string) (models.StructuredSummary, Outcome, string) {
	// Too-short input short-circuits before any provider work.
	if !analyzable(text) {
		summary, outcome := Normalize(text, "", nil)
		return summary, outcome, ""
	}

	raw, err := s.callProvider(ctx, text)
	summary, outcome := Normalize(text, raw, err)
	return summary, outcome, raw
}

func (s *Service) callProvider(ctx context.Context, text string) (string, error) {
	cfg, err := s.cfgSvc.Get()
	if err != nil {
		return "", err
	}
	if cfg == nil || !cfg.AI.EnableAnalysis {
		return "", errAnalysisDisabled
	}
	provider := selectAIProvider(cfg.AI, cfg.AI.AnalysisModel)
	if provider == nil || strings.TrimSpace(provider.APIKey) == "" {
		return "", errNoProvider
	}
	return generateAnalysis(ctx, provider, text)
}

// AnalyzeStream streams raw analysis tokens for text as SSE events and closes
// with the normalized summary. Event types: token, summary, error, done.
// Writes SSE events to the gin.Context directly.
func (s *Service) AnalyzeStream(c *gin.Context, text string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(eventType, data string) {
		fmt.Fprintf(c.Writer, "data: %s\n\n", fmt.Sprintf(`{"type":%q,"data":%s}`, eventType, data))
		c.Writer.Flush()
	}

	if !analyzable(text) {
		sendEvent("error", `"text too short to analyze"`)
		return
	}

	cfg, err := s.cfgSvc.Get()
	if err != nil || cfg == nil || !cfg.AI.EnableAnalysis {
		sendEvent("error", `"AI analysis is disabled"`)
		return
	}
	provider := selectAIProvider(cfg.AI, cfg.AI.AnalysisModel)
	if provider == nil || strings.TrimSpace(provider.APIKey) == "" {
		sendEvent("error", `"no enabled AI provider"`)
		return
	}

	raw, err := streamAnalysis(c.Request.Context(), provider, text, func(token string) {
		tokenJSON, _ := json.Marshal(token)
		sendEvent("token", string(tokenJSON))
	})
	if err != nil {
		errJSON, _ := json.Marshal(err.Error())
		sendEvent("error", string(errJSON))
		return
	}

	summary, outcome := Normalize(text, raw, nil)
	summaryJSON, _ := json.Marshal(gin.H{"summary": summary, "outcome": outcome})
	sendEvent("summary", string(summaryJSON))
	sendEvent("done", "null")
}
