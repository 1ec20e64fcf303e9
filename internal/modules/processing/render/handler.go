package render

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shiv669/echo-core-go/internal/models"
	"github.com/shiv669/echo-core-go/internal/modules/knowledge/graph"
	"github.com/shiv669/echo-core-go/internal/pkg/response"
)

type Handler struct {
	graphSvc *graph.Service
}

func NewHandler(graphSvc *graph.Service) *Handler {
	return &Handler{graphSvc: graphSvc}
}

// RegisterRoutes mounts the render endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/render/node/:id", h.renderNode)
	rg.POST("/render/preview", h.preview)
}

// GET /render/node/:id
func (h *Handler) renderNode(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.NotFoundMsg(c, "Node not found")
		return
	}

	node, err := h.graphSvc.GetByID(id)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if node == nil {
		response.NotFoundMsg(c, "Node not found")
		return
	}

	doc := RenderDocument(RenderMarkdown(node.FullText), DocumentOptions{
		Title:  node.Title,
		Info:   sourceInfoLine(node),
		Footer: "rendered by ECHO",
	})
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc))
}

type previewDTO struct {
	Markdown string `json:"markdown" binding:"required"`
}

// POST /render/preview
func (h *Handler) preview(c *gin.Context) {
	var dto previewDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "markdown is required")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(RenderMarkdown(dto.Markdown)))
}

func sourceInfoLine(node *models.NodeModel) string {
	if node.SourceKind == models.SourceKindGitHub {
		src := template.HTMLEscapeString(node.SourceLink)
		return fmt.Sprintf(`from <a href="%s" rel="noreferrer" target="_blank">%s</a>`, src, src)
	}
	return "captured from direct input"
}
