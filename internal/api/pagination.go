package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPage    = 1
	defaultPerPage = 50
	maxPerPage     = 200
)

// PaginationParams holds parsed pagination query parameters.
type PaginationParams struct {
	Page    int
	PerPage int
}

// PageMeta describes the page returned in a list response.
type PageMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

// ParsePagination extracts pagination parameters from the request.
// Defaults: page=1, per_page=50. Maximum per_page is 200. limit is accepted
// as an alias of per_page; per_page wins when both are present.
func ParsePagination(r *http.Request) PaginationParams {
	p := PaginationParams{
		Page:    defaultPage,
		PerPage: defaultPerPage,
	}
	q := r.URL.Query()

	if n, ok := positiveInt(q.Get("page")); ok {
		p.Page = n
	}
	for _, key := range []string{"limit", "per_page"} {
		if n, ok := positiveInt(q.Get(key)); ok {
			p.PerPage = min(n, maxPerPage)
		}
	}
	return p
}

func positiveInt(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Offset returns the database offset for the current page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages calculates the total number of pages for a given total count.
func (p PaginationParams) TotalPages(total int64) int {
	if p.PerPage <= 0 {
		return 0
	}
	pages := int(total) / p.PerPage
	if int(total)%p.PerPage > 0 {
		pages++
	}
	return pages
}

// Meta builds the page description for total matching rows.
func (p PaginationParams) Meta(total int64) PageMeta {
	return PageMeta{Total: total, Page: p.Page, PerPage: p.PerPage, TotalPages: p.TotalPages(total)}
}
