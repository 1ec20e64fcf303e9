package graph

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shiv669/echo-core-go/internal/pkg/pagination"
	"github.com/shiv669/echo-core-go/internal/pkg/response"
)

// Handler serves the public graph read endpoints.
type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// RegisterRoutes mounts the graph routes. They sit at the group root because
// clients address them without a path prefix.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/get_nodes", h.listNodes)
	rg.GET("/get_node/:id", h.getNode)
}

// listNodes GET /get_nodes
func (h *Handler) listNodes(c *gin.Context) {
	q := pagination.OffsetFromContext(c)

	all, err := h.svc.Snapshot()
	if err != nil {
		response.InternalError(c, err)
		return
	}

	// Edges span the entire population even when the node window is paged.
	edges := BuildEdges(all)
	window := pagination.Window(all, q)

	c.JSON(http.StatusOK, gin.H{
		"nodes":  window,
		"edges":  edges,
		"total":  len(all),
		"limit":  q.Limit,
		"offset": q.Offset,
	})
}

// getNode GET /get_node/:id
func (h *Handler) getNode(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.NotFoundMsg(c, "Node not found")
		return
	}

	node, err := h.svc.GetByID(id)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if node == nil {
		response.NotFoundMsg(c, "Node not found")
		return
	}
	c.JSON(http.StatusOK, node)
}
