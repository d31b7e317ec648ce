package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"medcatalog/api/internal/catalog"
	"medcatalog/api/internal/logger"
)

type fakeSearcher struct {
	healthy bool
	results []Result
	err     error
	calls   int
}

func (f *fakeSearcher) Healthy() bool { return f.healthy }

func (f *fakeSearcher) Search(_ context.Context, _ Query) ([]Result, int, error) {
	f.calls++
	return f.results, len(f.results), f.err
}

type fakeIndexer struct {
	mu      sync.Mutex
	healthy bool
	indexed []EntryRecord
	deleted []string
	done    chan struct{}
}

func (f *fakeIndexer) Healthy() bool { return f.healthy }

func (f *fakeIndexer) IndexEntries(records []EntryRecord) error {
	f.mu.Lock()
	f.indexed = append(f.indexed, records...)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeIndexer) DeleteEntries(ids []string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, ids...)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

type fakeFinder struct {
	entries []catalog.Entry
	query   string
}

func (f *fakeFinder) SearchEntries(_ context.Context, query string, _ int) ([]catalog.Entry, error) {
	f.query = query
	return f.entries, nil
}

func TestSearchPrefersHealthyPrimary(t *testing.T) {
	primary := &fakeSearcher{healthy: true, results: []Result{{Slug: "ge_vivid_e9"}}}
	fallback := &fakeSearcher{healthy: true}
	svc := NewServiceWith(primary, nil, fallback, logger.Nop())

	resp := svc.Search(context.Background(), Query{Text: "vivid"})
	if resp.Backend != "meilisearch" || len(resp.Results) != 1 || fallback.calls != 0 {
		t.Fatalf("resp = %+v, fallback calls = %d", resp, fallback.calls)
	}
}

func TestSearchFallsBackOnError(t *testing.T) {
	primary := &fakeSearcher{healthy: true, err: errors.New("down")}
	finder := &fakeFinder{entries: []catalog.Entry{{ID: "1", Slug: "scale", Name: "Scale"}}}
	svc := NewServiceWith(primary, nil, NewSubstring(finder), logger.Nop())

	resp := svc.Search(context.Background(), Query{Text: "SCALE"})
	if resp.Backend != "postgres" || len(resp.Results) != 1 || resp.Results[0].Slug != "scale" {
		t.Fatalf("resp = %+v", resp)
	}
	if finder.query != "SCALE" {
		t.Fatalf("query = %q", finder.query)
	}
}

func TestSearchSkipsUnhealthyPrimary(t *testing.T) {
	primary := &fakeSearcher{healthy: false}
	svc := NewServiceWith(primary, nil, &fakeSearcher{healthy: true}, logger.Nop())
	resp := svc.Search(context.Background(), Query{Text: "x"})
	if primary.calls != 0 || resp.Results == nil {
		t.Fatalf("primary calls = %d, resp = %+v", primary.calls, resp)
	}
}

func TestEmptyQueryFallbackReturnsNothing(t *testing.T) {
	finder := &fakeFinder{entries: []catalog.Entry{{ID: "1"}}}
	results, total, err := NewSubstring(finder).Search(context.Background(), Query{Text: "  "})
	if err != nil || total != 0 || len(results) != 0 {
		t.Fatalf("results = %v, total = %d, err = %v", results, total, err)
	}
}

func TestIndexingIsAsync(t *testing.T) {
	indexer := &fakeIndexer{healthy: true, done: make(chan struct{}, 2)}
	svc := NewServiceWith(nil, indexer, nil, logger.Nop())

	entry := catalog.Entry{ID: "e1", Slug: "scale", Name: "Scale", Metadata: catalog.Metadata{
		Features: catalog.NewFeatures(catalog.Feature{Name: "0", Value: "Analog readout"}),
	}}
	svc.IndexEntry(entry)
	svc.RemoveEntries([]catalog.Entry{entry})

	for i := 0; i < 2; i++ {
		select {
		case <-indexer.done:
		case <-time.After(time.Second):
			t.Fatal("indexer not called")
		}
	}
	indexer.mu.Lock()
	defer indexer.mu.Unlock()
	if len(indexer.indexed) != 1 || indexer.indexed[0].Features != "Analog readout" {
		t.Fatalf("indexed = %+v", indexer.indexed)
	}
	if len(indexer.deleted) != 1 || indexer.deleted[0] != "e1" {
		t.Fatalf("deleted = %v", indexer.deleted)
	}
}

func TestUnhealthyIndexerSkipsWrites(t *testing.T) {
	indexer := &fakeIndexer{healthy: false, done: make(chan struct{}, 1)}
	svc := NewServiceWith(nil, indexer, nil, logger.Nop())
	svc.ReindexAll([]catalog.Entry{{ID: "e1"}})
	if len(indexer.indexed) != 0 {
		t.Fatal("unhealthy indexer received writes")
	}
}
