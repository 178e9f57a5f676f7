package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const maxLimit = 100

// Pagination holds pagination parameters.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// PageMeta is the pagination block of list responses.
type PageMeta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// ParsePagination reads page and limit query params. Limit is clamped to
// 1..100 and falls back to defaultLimit when absent or invalid.
func ParsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	return NewPagination(
		parseInt(c.Query("page"), 1),
		parseInt(c.Query("limit"), defaultLimit),
		defaultLimit,
	)
}

// NewPagination normalizes page and limit values.
func NewPagination(page, limit, defaultLimit int) Pagination {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if page <= 0 {
		page = 1
	}

	return Pagination{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// Meta builds the response block for the given total row count.
func (p Pagination) Meta(total int64) PageMeta {
	pages := 0
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return PageMeta{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return fallback
}
