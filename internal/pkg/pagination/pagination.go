package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shiv669/echo-core-go/internal/pkg/response"
	"gorm.io/gorm"
)

const (
	DefaultPage = 1
	DefaultSize = 10
	MaxSize     = 100

	DefaultLimit  = 50
	DefaultOffset = 0
)

// Query holds parsed page/size pagination parameters.
type Query struct {
	Page int
	Size int
}

// OffsetQuery holds parsed limit/offset window parameters.
type OffsetQuery struct {
	Limit  int
	Offset int
}

// intQuery parses a query param, falling back to def when the param is
// absent or not a number.
func intQuery(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// FromContext extracts and clamps page/size params from the request.
func FromContext(c *gin.Context) Query {
	q := Query{
		Page: intQuery(c, "page", DefaultPage),
		Size: intQuery(c, "size", DefaultSize),
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Size < 1 {
		q.Size = DefaultSize
	}
	if q.Size > MaxSize {
		q.Size = MaxSize
	}
	return q
}

// OffsetFromContext extracts limit/offset params from the request.
// Negative or unparsable values fall back to the defaults.
func OffsetFromContext(c *gin.Context) OffsetQuery {
	w := OffsetQuery{
		Limit:  intQuery(c, "limit", DefaultLimit),
		Offset: intQuery(c, "offset", DefaultOffset),
	}
	if w.Limit < 0 {
		w.Limit = DefaultLimit
	}
	if w.Offset < 0 {
		w.Offset = DefaultOffset
	}
	return w
}

// Window slices a fully loaded list. An offset past the end yields an empty
// slice, never an error.
func Window[T any](items []T, q OffsetQuery) []T {
	if q.Offset >= len(items) {
		return []T{}
	}
	end := q.Offset + q.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[q.Offset:end]
}

// Meta derives the pagination block for a total row count.
func Meta(total int64, q Query) response.Pagination {
	pages := int((total + int64(q.Size) - 1) / int64(q.Size))
	return response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   pages,
		Size:        q.Size,
		HasNextPage: q.Page < pages,
	}
}

// Paginate applies page/size to a GORM query and returns the pagination metadata.
func Paginate[T any](db *gorm.DB, q Query, dest *[]T) (response.Pagination, error) {
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.Pagination{}, err
	}
	if err := db.Offset((q.Page - 1) * q.Size).Limit(q.Size).Find(dest).Error; err != nil {
		return response.Pagination{}, err
	}
	return Meta(total, q), nil
}
