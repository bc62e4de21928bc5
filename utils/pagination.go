package utils

import (
	"net/url"
	"strconv"
)

// PageParams represents pagination parameters extracted from a request.
type PageParams struct {
	Page   int // 1-based
	Limit  int
	Offset int
}

const (
	// MaxLimit is the maximum number of items allowed per page
	MaxLimit = 100
	// DefaultLimit is used when neither the request nor the caller sets one
	DefaultLimit = 50
)

// PageOption configures defaults before the query string is applied.
type PageOption func(*PageParams)

// WithDefaultLimit sets the limit used when the request carries none.
// Non-positive values are ignored.
func WithDefaultLimit(limit int) PageOption {
	return func(p *PageParams) {
		if limit > 0 {
			p.Limit = limit
		}
	}
}

// GetPageParams extracts page and limit from query values, enforcing
// MaxLimit and computing the offset.
func GetPageParams(q url.Values, opts ...PageOption) PageParams {
	params := PageParams{Page: 1, Limit: DefaultLimit}
	for _, opt := range opts {
		opt(&params)
	}

	if pageStr := q.Get("page"); pageStr != "" {
		if val, err := strconv.Atoi(pageStr); err == nil && val > 0 {
			params.Page = val
		}
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if val, err := strconv.Atoi(limitStr); err == nil && val > 0 {
			params.Limit = val
		}
	}

	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}
	params.Offset = (params.Page - 1) * params.Limit
	return params
}
