package option

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/shiv669/echo-core-go/internal/models"
	"github.com/shiv669/echo-core-go/internal/pkg/response"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Handler exposes the raw key/value rows behind the runtime config. The
// structured surface lives under /configs; this one is for deploy scripts
// and debugging.
type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	for _, prefix := range []string{"/options", "/kv/options"} {
		grp := rg.Group(prefix)
		grp.GET("", h.list)
		grp.GET("/:key", h.get)
		grp.PATCH("/:key", h.patch)
		grp.DELETE("/:key", h.delete)
	}
}

func (h *Handler) byName(key string) *gorm.DB {
	return h.db.Where("name = ?", key)
}

func (h *Handler) list(c *gin.Context) {
	var rows []models.OptionModel
	if err := h.db.Find(&rows).Error; err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, rows)
}

func (h *Handler) get(c *gin.Context) {
	var row models.OptionModel
	err := h.byName(c.Param("key")).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.NotFoundMsg(c, "设置不存在")
	case err != nil:
		response.InternalError(c, err)
	default:
		response.OK(c, row)
	}
}

type patchDTO struct {
	Value string `json:"value" binding:"required"` // stored verbatim
}

func (h *Handler) patch(c *gin.Context) {
	var req patchDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	row := models.OptionModel{Name: c.Param("key"), Value: req.Value}
	if err := h.upsert(&row); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, row)
}

// upsert writes the row, replacing the value when the name already exists.
func (h *Handler) upsert(row *models.OptionModel) error {
	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}
	return h.db.Clauses(onConflict).Create(row).Error
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.byName(c.Param("key")).Delete(&models.OptionModel{}).Error; err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
