package search

import (
	"context"
	"strings"

	"medcatalog/api/internal/catalog"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	URL         string `json:"url"`
}

// Query describes a search request.
type Query struct {
	Text  string
	Limit int
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > 100 {
		return 20
	}
	return q.Limit
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute an entry search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// EntryRecord is the data we index for a catalog entry.
type EntryRecord struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	URL         string `json:"url"`
	Features    string `json:"features"`
}

// RecordFromEntry flattens an entry into its indexed form.
func RecordFromEntry(entry catalog.Entry) EntryRecord {
	features := make([]string, 0, entry.Metadata.Features.Len())
	for _, feature := range entry.Metadata.Features.Items() {
		features = append(features, feature.Value)
	}
	return EntryRecord{
		ID:          entry.ID,
		Slug:        entry.Slug,
		Name:        entry.Name,
		Description: entry.Metadata.Description,
		Category:    entry.Metadata.Category,
		URL:         entry.URL,
		Features:    strings.Join(features, "\n"),
	}
}

func resultFromEntry(entry catalog.Entry) Result {
	return Result{
		ID:          entry.ID,
		Slug:        entry.Slug,
		Name:        entry.Name,
		Description: entry.Metadata.Description,
		Category:    entry.Metadata.Category,
		URL:         entry.URL,
	}
}
