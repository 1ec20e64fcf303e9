package configs

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/shiv669/echo-core-go/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	cfgs := rg.Group("/configs")

	cfgs.GET("", h.getFull)
	cfgs.GET("/:section", h.getSection)
	cfgs.PATCH("", h.patchFull)
	cfgs.PATCH("/:section", h.patchSection)
}

// getFull GET /configs
func (h *Handler) getFull(c *gin.Context) {
	cfg, err := h.svc.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, cfg)
}

// getSection GET /configs/:section
func (h *Handler) getSection(c *gin.Context) {
	key := normalizeOptionKey(c.Param("section"))
	cfg, err := h.svc.Get()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	section, ok := sectionOf(cfg, key)
	if !ok {
		response.NotFoundMsg(c, "配置节不存在")
		return
	}
	response.OK(c, section)
}

// patchFull PATCH /configs
func (h *Handler) patchFull(c *gin.Context) {
	var changes map[string]json.RawMessage
	if !bindJSON(c, &changes) {
		return
	}
	updated, err := h.svc.Patch(changes)
	if err != nil {
		h.writePatchError(c, err)
		return
	}
	response.OK(c, updated)
}

// patchSection PATCH /configs/:section
func (h *Handler) patchSection(c *gin.Context) {
	key := normalizeOptionKey(c.Param("section"))
	var body json.RawMessage
	if !bindJSON(c, &body) {
		return
	}
	snakeBody, err := normalizeJSONKeys(body, camelToSnakeKey)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	updated, err := h.svc.Patch(map[string]json.RawMessage{key: snakeBody})
	if err != nil {
		h.writePatchError(c, err)
		return
	}

	section, ok := sectionOf(updated, key)
	if !ok {
		response.OK(c, convertMapKeys(updated, snakeToCamelKey))
		return
	}
	response.OK(c, section)
}

func (h *Handler) writePatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errUnknownSection):
		response.BadRequest(c, err.Error())
	case errors.Is(err, errAnalysisProviderNotEnabled):
		response.BadRequest(c, "没有配置启用的 AI Provider，无法启用 AI 分析")
	default:
		response.InternalError(c, err)
	}
}

// bindJSON writes a 400 and reports false when the request body is invalid.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.BadRequest(c, err.Error())
		return false
	}
	return true
}

// sectionOf re-marshals the config and picks one top-level section, keys
// converted back to camelCase for the admin panel.
func sectionOf(cfg interface{}, key string) (interface{}, bool) {
	full, err := json.Marshal(cfg)
	if err != nil {
		return nil, false
	}
	var byKey map[string]json.RawMessage
	if err := json.Unmarshal(full, &byKey); err != nil {
		return nil, false
	}
	raw, ok := byKey[key]
	if !ok {
		return nil, false
	}
	var section interface{}
	if err := json.Unmarshal(raw, &section); err != nil {
		return nil, false
	}
	return convertMapKeys(section, snakeToCamelKey), true
}
