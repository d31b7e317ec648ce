package search

import (
	"context"

	"medcatalog/api/internal/catalog"
	"medcatalog/api/internal/logger"
)

// Indexer is the write side of a search backend.
type Indexer interface {
	Healthy() bool
	IndexEntries(records []EntryRecord) error
	DeleteEntries(ids []string) error
}

// Service tries Meilisearch first and falls back to the Postgres substring search.
type Service struct {
	primary  Searcher
	indexer  Indexer
	fallback Searcher
	log      *logger.Logger
}

// NewService wires the backends. meili may be nil when Meilisearch is not configured.
func NewService(meili *Meili, fallback Searcher, log *logger.Logger) *Service {
	s := &Service{fallback: fallback, log: log.With("component", "search")}
	if meili != nil {
		s.primary = meili
		s.indexer = meili
	}
	return s
}

// NewServiceWith builds a facade over arbitrary backends.
func NewServiceWith(primary Searcher, indexer Indexer, fallback Searcher, log *logger.Logger) *Service {
	return &Service{primary: primary, indexer: indexer, fallback: fallback, log: log.With("component", "search")}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		s.log.Warn("meilisearch error, falling back to postgres", "error", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text, Backend: "none"}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Error("postgres search error", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: "postgres"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "postgres"}
}

func (s *Service) indexReady() bool {
	return s.indexer != nil && s.indexer.Healthy()
}

// IndexEntry indexes an entry (fire-and-forget).
func (s *Service) IndexEntry(entry catalog.Entry) {
	if !s.indexReady() {
		return
	}
	record := RecordFromEntry(entry)
	go func() {
		if err := s.indexer.IndexEntries([]EntryRecord{record}); err != nil {
			s.log.Warn("index entry", "slug", record.Slug, "error", err)
		}
	}()
}

// RemoveEntries drops entries from the index (fire-and-forget).
func (s *Service) RemoveEntries(entries []catalog.Entry) {
	if !s.indexReady() || len(entries) == 0 {
		return
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}
	go func() {
		if err := s.indexer.DeleteEntries(ids); err != nil {
			s.log.Warn("delete entries from index", "count", len(ids), "error", err)
		}
	}()
}

// ReindexAll pushes every entry to the index. Called at bootstrap.
func (s *Service) ReindexAll(entries []catalog.Entry) {
	if !s.indexReady() || len(entries) == 0 {
		return
	}
	records := make([]EntryRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, RecordFromEntry(entry))
	}
	if err := s.indexer.IndexEntries(records); err != nil {
		s.log.Warn("reindex entries", "count", len(records), "error", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
