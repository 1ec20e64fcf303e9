package ai

import (
	"strings"

	"github.com/gin-gonic/gin"
	appcfg "github.com/shiv669/echo-core-go/internal/config"
	"github.com/shiv669/echo-core-go/internal/pkg/response"
)

// connectionTestText is a fixed sample long enough to pass the analyzable
// minimum, so /ai/test exercises the real analysis prompt end to end.
const connectionTestText = "ECHO connection test. This sentence verifies that the configured analysis provider answers structured extraction prompts."

type Handler struct {
	svc      *Service
	retriers map[string]TaskRetrier
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, retriers: map[string]TaskRetrier{}}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/ai")

	g.POST("/analyze", h.analyze)
	g.GET("/analyze/stream", h.analyzeStream)

	models := g.Group("/models")
	models.GET("", h.listModels)
	models.GET("/:providerId", h.modelsByProvider)
	models.POST("/list", h.fetchRemoteModels)
	g.POST("/test", h.testConnection)

	tq := g.Group("/tasks")
	tq.GET("", h.listTasks)
	tq.GET("/group/:groupKey", h.tasksByGroup)
	tq.GET("/:id", h.taskDetail)
	tq.DELETE("/group/:groupKey", h.cancelGroup)
	tq.DELETE("/:id", h.removeTask)
	tq.DELETE("", h.purgeTasks)
	tq.POST("/:id/cancel", h.cancelTask)
	tq.POST("/:id/retry", h.retryTask)
}

// bindJSON reports whether the request body bound cleanly; a 400 with the
// bind error has already been written when it did not.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.BadRequest(c, err.Error())
		return false
	}
	return true
}

func (h *Handler) config() (*appcfg.FullConfig, error) {
	return h.svc.cfgSvc.Get()
}

// POST /ai/analyze (dry run, no node is created)
func (h *Handler) analyze(c *gin.Context) {
	var req analyzeDTO
	if !bindJSON(c, &req) {
		return
	}

	summary, outcome, raw := h.svc.AnalyzeRaw(c.Request.Context(), req.Text)
	response.OK(c, gin.H{
		"summary": summary,
		"outcome": outcome,
		"raw":     raw,
	})
}

// GET /ai/analyze/stream?text=...  (SSE streaming)
func (h *Handler) analyzeStream(c *gin.Context) {
	text := strings.TrimSpace(c.Query("text"))
	if text == "" {
		response.BadRequest(c, "text is required")
		return
	}
	h.svc.AnalyzeStream(c, text)
}

// catalogEntry renders one provider with its selectable model list.
func catalogEntry(p appcfg.AIProvider) providerCatalog {
	return providerCatalog{
		ProviderID:   p.ID,
		ProviderName: p.Name,
		ProviderType: p.Type,
		Models:       modelsFromProvider(p),
	}
}

// storedProvider resolves a configured provider by id. Config load failures
// degrade to a miss so request-supplied credentials still work.
func (h *Handler) storedProvider(id string) (appcfg.AIProvider, bool) {
	if id == "" {
		return appcfg.AIProvider{}, false
	}
	cfg, err := h.config()
	if err != nil {
		return appcfg.AIProvider{}, false
	}
	for _, prov := range cfg.AI.Providers {
		if prov.ID == id {
			return prov, true
		}
	}
	return appcfg.AIProvider{}, false
}

func fillBlank(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

// GET /ai/models
func (h *Handler) listModels(c *gin.Context) {
	cfg, err := h.config()
	if err != nil {
		response.InternalError(c, err)
		return
	}

	catalog := make([]providerCatalog, 0, len(cfg.AI.Providers))
	for _, prov := range cfg.AI.Providers {
		if prov.Enabled && prov.APIKey != "" {
			catalog = append(catalog, catalogEntry(prov))
		}
	}
	response.OK(c, catalog)
}

// GET /ai/models/:providerId
func (h *Handler) modelsByProvider(c *gin.Context) {
	cfg, err := h.config()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	id := c.Param("providerId")
	for _, prov := range cfg.AI.Providers {
		if prov.ID != id {
			continue
		}
		response.OK(c, catalogEntry(prov))
		return
	}
	response.NotFoundMsg(c, "AI Provider 不存在或未启用")
}

// POST /ai/models/list
func (h *Handler) fetchRemoteModels(c *gin.Context) {
	var req fetchModelsDTO
	if !bindJSON(c, &req) {
		return
	}

	// Request payload wins; blanks are backfilled from the stored provider.
	candidate := appcfg.AIProvider{
		ID:       req.Provider,
		Name:     req.Provider,
		Type:     req.Type,
		APIKey:   req.Key,
		Endpoint: req.BaseURL,
		Enabled:  true,
	}
	if stored, ok := h.storedProvider(req.Provider); ok {
		fillBlank(&candidate.Type, stored.Type)
		fillBlank(&candidate.APIKey, stored.APIKey)
		fillBlank(&candidate.Endpoint, stored.Endpoint)
		fillBlank(&candidate.DefaultModel, stored.DefaultModel)
		fillBlank(&candidate.FallbackModel, stored.FallbackModel)
		fillBlank(&candidate.Name, stored.Name)
	}

	if candidate.Type == "" || candidate.APIKey == "" {
		response.OK(c, gin.H{"models": []modelEntry{}, "error": "Provider type and api key are required"})
		return
	}

	fetched, err := listRemoteModels(candidate)
	if err != nil {
		response.OK(c, gin.H{
			"models": modelsFromProvider(candidate),
			"error":  err.Error(),
		})
		return
	}
	if len(fetched) == 0 {
		fetched = modelsFromProvider(candidate)
	}
	response.OK(c, gin.H{"models": fetched})
}

// POST /ai/test
func (h *Handler) testConnection(c *gin.Context) {
	var req testConnectionDTO
	if !bindJSON(c, &req) {
		return
	}
	if req.Type == "" || req.Key == "" || req.Model == "" {
		if stored, ok := h.storedProvider(req.Provider); ok {
			fillBlank(&req.Type, stored.Type)
			fillBlank(&req.Key, stored.APIKey)
			fillBlank(&req.Model, stored.DefaultModel)
			fillBlank(&req.BaseURL, stored.Endpoint)
		}
	}
	if req.Type == "" || req.Key == "" || req.Model == "" {
		response.BadRequest(c, "type, apiKey and model are all required")
		return
	}

	probe := appcfg.AIProvider{
		Type:         req.Type,
		APIKey:       req.Key,
		Endpoint:     req.BaseURL,
		DefaultModel: req.Model,
		Enabled:      true,
	}
	raw, err := generateAnalysis(c.Request.Context(), &probe, connectionTestText)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	_, parsed := ExtractStructuredSummary(raw)
	response.OK(c, gin.H{
		"ok":     true,
		"parsed": parsed,
		"sample": truncateText(raw, 100),
	})
}
