// Package pagination parses page/size query parameters and applies
// them to GORM list queries, producing the metadata envelope the
// response helpers serialize.
package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hanziloop/core/internal/pkg/response"
	"gorm.io/gorm"
)

const (
	defaultSize = 10
	maxSize     = 100
)

// Query is a validated page request. FromContext clamps both fields,
// so a Query in hand is always usable as-is.
type Query struct {
	Page int
	Size int
}

func (q Query) offset() int { return (q.Page - 1) * q.Size }

// FromContext reads ?page=&size= from the request, falling back to the
// first page of defaultSize on anything missing or malformed.
func FromContext(c *gin.Context) Query {
	q := Query{
		Page: atoiOr(c.Query("page"), 1),
		Size: atoiOr(c.Query("size"), defaultSize),
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Size < 1 {
		q.Size = defaultSize
	}
	if q.Size > maxSize {
		q.Size = maxSize
	}
	return q
}

// Paginate counts the query, loads one page into dest, and returns the
// pagination metadata.
func Paginate[T any](db *gorm.DB, q Query, dest *[]T) (response.Pagination, error) {
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.Pagination{}, err
	}
	if err := db.Offset(q.offset()).Limit(q.Size).Find(dest).Error; err != nil {
		return response.Pagination{}, err
	}

	pages := int((total + int64(q.Size) - 1) / int64(q.Size))
	return response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   pages,
		Size:        q.Size,
		HasNextPage: q.Page < pages,
	}, nil
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
