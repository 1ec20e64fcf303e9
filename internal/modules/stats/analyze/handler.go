package analyze

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/shiv669/echo-core-go/internal/models"
	"github.com/shiv669/echo-core-go/internal/pkg/pagination"
	"github.com/shiv669/echo-core-go/internal/pkg/response"
)

// Handler exposes traffic analytics.
type Handler struct {
	svc *Service
	db  *gorm.DB
}

func NewHandler(svc *Service, db *gorm.DB) *Handler {
	return &Handler{svc: svc, db: db}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	grp := rg.Group("/analyze")
	grp.GET("", h.list)
	grp.GET("/today", h.today)
	grp.GET("/week", h.week)
	grp.GET("/aggregate", h.dashboard)
	grp.GET("/total", h.total)
	grp.GET("/paths", h.topPaths)
	grp.DELETE("", h.purgeOld)
}

func (h *Handler) recent() *gorm.DB {
	return h.db.Model(&models.VisitModel{}).Order("timestamp DESC")
}

// respondPage runs the query with page/size from the request and writes the
// paged envelope.
func (h *Handler) respondPage(c *gin.Context, tx *gorm.DB) {
	var items []models.VisitModel
	pag, err := pagination.Paginate(tx, pagination.FromContext(c), &items)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

// GET /analyze
func (h *Handler) list(c *gin.Context) {
	var q rangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.respondPage(c, applyFilter(h.recent(), q))
}

// GET /analyze/today
func (h *Handler) today(c *gin.Context) {
	now := time.Now()
	h.listBetween(c, beginningOfDay(now), now)
}

// GET /analyze/week
func (h *Handler) week(c *gin.Context) {
	now := time.Now()
	h.listBetween(c, beginningOfWeek(now), now)
}

func (h *Handler) listBetween(c *gin.Context, from, to time.Time) {
	h.respondPage(c, h.recent().Where("timestamp >= ? AND timestamp <= ?", from, to))
}

// GET /analyze/total
func (h *Handler) total(c *gin.Context) {
	var q rangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var count int64
	if err := applyFilter(h.db.Model(&models.VisitModel{}), q).Count(&count).Error; err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"total": count})
}

// GET /analyze/paths
func (h *Handler) topPaths(c *gin.Context) {
	now := time.Now()
	paths, err := h.svc.topPathsByRange(now.AddDate(0, 0, -7), now, 20)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"data": paths})
}

// chartBucket pairs the aggregate lookup key with the label shown on the axis.
type chartBucket struct {
	lookup string
	label  string
}

func hourBuckets() []chartBucket {
	out := make([]chartBucket, 0, 24)
	for i := 0; i < 24; i++ {
		k := fmt.Sprintf("%02d", i)
		out = append(out, chartBucket{lookup: k, label: k})
	}
	return out
}

// dayBuckets walks backwards from start, oldest first, formatting each axis
// label with labelFormat.
func dayBuckets(start time.Time, days int, labelFormat string) []chartBucket {
	out := make([]chartBucket, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := start.AddDate(0, 0, -i)
		out = append(out, chartBucket{
			lookup: day.Format("2006-01-02"),
			label:  day.Format(labelFormat),
		})
	}
	return out
}

// pairSeries emits one ip and one pv point per bucket, keyed under labelKey,
// which is the shape the admin charts consume.
func pairSeries(labelKey string, buckets []chartBucket, agg map[string]ipPV) []gin.H {
	out := make([]gin.H, 0, len(buckets)*2)
	for _, b := range buckets {
		val := agg[b.lookup]
		out = append(out,
			gin.H{labelKey: b.label, "key": "ip", "value": val.IP},
			gin.H{labelKey: b.label, "key": "pv", "value": val.PV},
		)
	}
	return out
}

// GET /analyze/aggregate
//
// Hourly buckets for today, daily buckets for the trailing week and month,
// top paths and grand totals.
func (h *Handler) dashboard(c *gin.Context) {
	now := time.Now()
	dayStart := beginningOfDay(now)
	monthStart := dayStart.AddDate(0, 0, -29)
	weekAgo := now.AddDate(0, 0, -7)

	dayAgg, err := h.svc.ipAndPVByRange(dayStart, now, "hour")
	if err != nil {
		response.InternalError(c, err)
		return
	}
	dateAgg, err := h.svc.ipAndPVByRange(monthStart, now, "date")
	if err != nil {
		response.InternalError(c, err)
		return
	}
	paths, err := h.svc.topPathsByRange(weekAgo, now, 50)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	total, err := h.svc.totalStats()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	todayIPs, err := h.svc.todayIPs(dayStart, now)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	response.OK(c, gin.H{
		"today":     pairSeries("hour", hourBuckets(), dayAgg),
		"weeks":     pairSeries("day", dayBuckets(dayStart, 7, "Mon"), dateAgg),
		"months":    pairSeries("date", dayBuckets(dayStart, 30, "01-02"), dateAgg),
		"paths":     paths,
		"total":     total,
		"today_ips": todayIPs,
	})
}

// cleanCutoffDays parses before_days, empty meaning the default retention.
func cleanCutoffDays(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultCleanDays, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, false
	}
	return parsed, true
}

// DELETE /analyze?before_days=
func (h *Handler) purgeOld(c *gin.Context) {
	days, ok := cleanCutoffDays(c.Query("before_days"))
	if !ok {
		response.BadRequest(c, "before_days must be a non-negative integer")
		return
	}

	deleted, err := h.svc.CleanOlderThan(days)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": deleted})
}

func applyFilter(tx *gorm.DB, q rangeQuery) *gorm.DB {
	if q.From != nil {
		tx = tx.Where("timestamp >= ?", *q.From)
	}
	if q.To != nil {
		tx = tx.Where("timestamp <= ?", *q.To)
	}
	if q.Path != "" {
		tx = tx.Where("path = ?", q.Path)
	}
	return tx
}
