package connector

import (
	"fmt"

	"github.com/synchub/backend/internal/domain/shared"
)

// PaginationType selects how successive pages are requested
type PaginationType string

const (
	PaginationPageNumber  PaginationType = "PAGE_NUMBER"
	PaginationOffsetLimit PaginationType = "OFFSET_LIMIT"
	PaginationCursor      PaginationType = "CURSOR"
)

// DefaultMaxPages caps every paginated fetch
const DefaultMaxPages = 100

// Pagination configures paginated fetching of a pull resource
type Pagination struct {
	Enabled         bool           `json:"enabled"`
	Type            PaginationType `json:"type"`
	PageParam       string         `json:"pageParam,omitempty"`
	PageSizeParam   string         `json:"pageSizeParam,omitempty"`
	PageSize        int            `json:"pageSize,omitempty"`
	OffsetParam     string         `json:"offsetParam,omitempty"`
	LimitParam      string         `json:"limitParam,omitempty"`
	CursorParam     string         `json:"cursorParam,omitempty"`
	TotalPagesPath  string         `json:"totalPagesPath,omitempty"`
	HasNextPagePath string         `json:"hasNextPagePath,omitempty"`
	NextCursorPath  string         `json:"nextCursorPath,omitempty"`
	MaxPages        int            `json:"maxPages,omitempty"`
}

// WithDefaults returns a copy with every unset parameter filled
func (p Pagination) WithDefaults() Pagination {
	if p.PageParam == "" {
		p.PageParam = "page"
	}
	if p.PageSizeParam == "" {
		p.PageSizeParam = "pageSize"
	}
	if p.PageSize <= 0 {
		p.PageSize = 100
	}
	if p.OffsetParam == "" {
		p.OffsetParam = "offset"
	}
	if p.LimitParam == "" {
		p.LimitParam = "limit"
	}
	if p.CursorParam == "" {
		p.CursorParam = "cursor"
	}
	if p.TotalPagesPath == "" {
		p.TotalPagesPath = "totalPages"
	}
	if p.HasNextPagePath == "" {
		p.HasNextPagePath = "hasNextPage"
	}
	if p.NextCursorPath == "" {
		p.NextCursorPath = "nextCursor"
	}
	if p.MaxPages <= 0 {
		p.MaxPages = DefaultMaxPages
	}
	return p
}

// Validate checks the strategy
func (p Pagination) Validate() error {
	switch p.Type {
	case PaginationPageNumber, PaginationOffsetLimit, PaginationCursor:
		return nil
	default:
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("unsupported pagination type %q", p.Type))
	}
}
