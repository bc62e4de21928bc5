package utils

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPageParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		opts  []PageOption
		want  PageParams
	}{
		{"defaults", "", nil, PageParams{Page: 1, Limit: DefaultLimit, Offset: 0}},
		{"page and limit", "page=3&limit=20", nil, PageParams{Page: 3, Limit: 20, Offset: 40}},
		{"limit capped", "limit=500", nil, PageParams{Page: 1, Limit: MaxLimit, Offset: 0}},
		{"garbage ignored", "page=-2&limit=abc", nil, PageParams{Page: 1, Limit: DefaultLimit, Offset: 0}},
		{"user default", "page=2", []PageOption{WithDefaultLimit(10)}, PageParams{Page: 2, Limit: 10, Offset: 10}},
		{"query beats user default", "limit=5", []PageOption{WithDefaultLimit(10)}, PageParams{Page: 1, Limit: 5, Offset: 0}},
		{"zero default ignored", "", []PageOption{WithDefaultLimit(0)}, PageParams{Page: 1, Limit: DefaultLimit, Offset: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, GetPageParams(q, tt.opts...))
		})
	}
}
