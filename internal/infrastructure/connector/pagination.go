package connector

import (
	"context"
	"strconv"
	"time"

	"github.com/synchub/backend/internal/domain/connector"
	"go.uber.org/zap"
)

// ExtractRecords unwraps dataPath from a response. Arrays are returned as
// is, nil yields nothing and any other value becomes a one-element slice.
func ExtractRecords(response any, dataPath string) []any {
	data := response
	if dataPath != "" {
		data = GetPath(response, dataPath)
	}
	switch v := data.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

// FetchResource reads every record of a pull resource, walking pages when
// pagination is enabled.
func (c *Client) FetchResource(ctx context.Context, resource connector.PullResource) ([]any, error) {
	if resource.Pagination == nil || !resource.Pagination.Enabled {
		resp, err := c.Do(ctx, Request{
			Method:   resource.HTTPMethod(),
			Endpoint: resource.Endpoint,
			Query:    resource.QueryParams,
		})
		if err != nil {
			return nil, err
		}
		return ExtractRecords(resp, resource.DataPath), nil
	}
	return c.FetchPaginatedData(ctx, resource)
}

// FetchPaginatedData walks a PAGE_NUMBER, OFFSET_LIMIT or CURSOR resource
// until the source signals the end or maxPages is reached.
func (c *Client) FetchPaginatedData(ctx context.Context, resource connector.PullResource) ([]any, error) {
	p := resource.Pagination.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var (
		all        []any
		page       = 1
		offset     = 0
		cursor     string
		totalPages = -1
	)

	for requests := 0; ; requests++ {
		if requests >= p.MaxPages {
			c.logger.Warn("pagination stopped at max pages",
				zap.String("resource", resource.ID),
				zap.Int("max_pages", p.MaxPages),
				zap.Int("records", len(all)))
			return all, nil
		}
		if requests > 0 && c.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return all, ctx.Err()
			case <-time.After(c.pageDelay):
			}
		}

		query := make(map[string]string, len(resource.QueryParams)+2)
		for k, v := range resource.QueryParams {
			query[k] = v
		}
		switch p.Type {
		case connector.PaginationPageNumber:
			query[p.PageParam] = strconv.Itoa(page)
			query[p.PageSizeParam] = strconv.Itoa(p.PageSize)
		case connector.PaginationOffsetLimit:
			query[p.OffsetParam] = strconv.Itoa(offset)
			query[p.LimitParam] = strconv.Itoa(p.PageSize)
		case connector.PaginationCursor:
			if cursor != "" {
				query[p.CursorParam] = cursor
			}
		}

		resp, err := c.Do(ctx, Request{Method: resource.HTTPMethod(), Endpoint: resource.Endpoint, Query: query})
		if err != nil {
			return all, err
		}
		records := ExtractRecords(resp, resource.DataPath)
		all = append(all, records...)

		switch p.Type {
		case connector.PaginationPageNumber:
			if n, ok := parseLeadingFloat(GetPath(resp, p.TotalPagesPath)); ok {
				totalPages = int(n)
			}
			if totalPages >= 0 {
				if page >= totalPages {
					return all, nil
				}
			} else if len(records) < p.PageSize {
				return all, nil
			}
			page++
		case connector.PaginationOffsetLimit:
			if len(records) < p.PageSize {
				return all, nil
			}
			offset += p.PageSize
		case connector.PaginationCursor:
			next := GetPath(resp, p.NextCursorPath)
			if !truthy(GetPath(resp, p.HasNextPagePath)) || !truthy(next) {
				return all, nil
			}
			cursor = toString(next)
		}
	}
}
