package search

import (
	"context"
	"strings"

	"medcatalog/api/internal/catalog"
)

// EntryFinder is the store query the fallback runs.
type EntryFinder interface {
	SearchEntries(ctx context.Context, query string, limit int) ([]catalog.Entry, error)
}

// Substring implements Searcher with a case-insensitive substring match in
// PostgreSQL, the same semantics as the listing filter.
type Substring struct {
	finder EntryFinder
}

func NewSubstring(finder EntryFinder) *Substring {
	return &Substring{finder: finder}
}

// Healthy always returns true; without Postgres nothing works anyway.
func (p *Substring) Healthy() bool {
	return true
}

func (p *Substring) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	entries, err := p.finder.SearchEntries(ctx, q.Text, q.limit())
	if err != nil {
		return nil, 0, err
	}
	results := make([]Result, 0, len(entries))
	for _, entry := range entries {
		results = append(results, resultFromEntry(entry))
	}
	return results, len(results), nil
}
