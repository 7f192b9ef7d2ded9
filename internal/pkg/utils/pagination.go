package utils

import (
	"net/http"
	"strconv"

	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest is a validated page selection
type PageRequest struct {
	Number int
	Size   int
}

// Offset is the number of rows preceding the page
func (p PageRequest) Offset() int {
	return (p.Number - 1) * p.Size
}

// ParsePageRequest reads page and page_size from the query string. Missing
// values take defaults, out-of-range values are clamped and non-numeric
// values are rejected.
func ParsePageRequest(r *http.Request) (PageRequest, *errors.AppError) {
	q := r.URL.Query()

	number, err := queryInt(q.Get("page"), 1)
	if err != nil {
		return PageRequest{}, errors.BadRequest("page must be an integer")
	}
	size, err := queryInt(q.Get("page_size"), DefaultPageSize)
	if err != nil {
		return PageRequest{}, errors.BadRequest("page_size must be an integer")
	}

	if number < 1 {
		number = 1
	}
	switch {
	case size < 1:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return PageRequest{Number: number, Size: size}, nil
}

// Page is one page of a listing
type Page[T any] struct {
	Data       []T   `json:"data"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// NewPage builds the page for req out of items and the unpaged total
func NewPage[T any](items []T, req PageRequest, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	size := int64(req.Size)
	return Page[T]{
		Data:       items,
		Page:       req.Number,
		PageSize:   req.Size,
		TotalItems: total,
		TotalPages: int((total + size - 1) / size),
	}
}

func queryInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
