// Package pagination pages the admin listings (entries, webmention
// moderation queue) with page/size query params over gorm.
package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tanzawa/core/internal/pkg/response"
	"gorm.io/gorm"
)

const (
	// DefaultSize matches a screenful of the moderation queue.
	DefaultSize = 20
	MaxSize     = 100
)

// Query holds validated pagination parameters.
type Query struct {
	Page int
	Size int
}

// FromContext reads page/size from the request, clamping size to
// [1, MaxSize]. Anything unparseable falls back to the defaults.
func FromContext(c *gin.Context) Query {
	return Query{
		Page: atLeast(parseIntOr(c.Query("page"), 1), 1),
		Size: clamp(parseIntOr(c.Query("size"), DefaultSize), 1, MaxSize),
	}
}

// Offset is the row offset for this page.
func (q Query) Offset() int { return (q.Page - 1) * q.Size }

// Paginate counts the query, loads one page into dest, and returns the
// pagination metadata for the response envelope. The count runs on a fresh
// session so the page's limit/offset never leak into it.
func Paginate[T any](db *gorm.DB, q Query, dest *[]T) (response.Pagination, error) {
	var total int64
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return response.Pagination{}, err
	}

	if err := db.Offset(q.Offset()).Limit(q.Size).Find(dest).Error; err != nil {
		return response.Pagination{}, err
	}

	totalPage := int((total + int64(q.Size) - 1) / int64(q.Size))
	return response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPage,
		Size:        q.Size,
		HasNextPage: q.Page < totalPage,
	}, nil
}

func parseIntOr(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func atLeast(v, min int) int {
	if v < min {
		return min
	}
	return v
}

func clamp(v, min, max int) int {
	switch {
	case v < min:
		return min
	case v > max:
		return max
	}
	return v
}
