package source

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shiv669/echo-core-go/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts ingestion endpoints at the router root.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/add_source", h.addSource)
	rg.POST("/sources/import", h.importSources)
}

// POST /add_source
func (h *Handler) addSource(c *gin.Context) {
	var dto addSourceDTO
	_ = c.ShouldBind(&dto)
	if dto.RepoURL == "" && dto.TextSnippet == "" {
		dto.RepoURL = strings.TrimSpace(c.Query("repo_url"))
		dto.TextSnippet = c.Query("text_snippet")
		if dto.Title == "" {
			dto.Title = c.Query("title")
		}
	}

	node, err := h.svc.Ingest(c.Request.Context(), dto.RepoURL, dto.Title, dto.TextSnippet)
	if err != nil {
		writeIngestError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

// POST /sources/import
func (h *Handler) importSources(c *gin.Context) {
	var dto importDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "repo_urls is required")
		return
	}

	batchID, tasks, err := h.svc.EnqueueIngest(c.Request.Context(), dto.RepoURLs)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"batch_id": batchID,
		"tasks":    tasks,
	})
}

func writeIngestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errRepoFetch):
		response.BadRequest(c, "Could not fetch GitHub repository. Make sure URL is correct.")
	case errors.Is(err, errNoInput):
		response.BadRequest(c, "Either repo_url or text_snippet must be provided")
	default:
		response.InternalError(c, err)
	}
}
