package store

import (
	"encoding/json"
	"testing"
	"time"

	"medcatalog/api/internal/catalog"
)

func TestEntryRecordKeepsMetadataOrder(t *testing.T) {
	var specs catalog.Spec
	if err := json.Unmarshal([]byte(`{"weight":"6 lbs","adjustable":{"max":"39 in","min":"32 in"}}`), &specs); err != nil {
		t.Fatal(err)
	}
	entry := catalog.Entry{
		ID:   "e1",
		Name: "Medline Walker",
		Slug: "medline_walker",
		Metadata: catalog.Metadata{
			Description:    "Walker",
			Features:       catalog.NewFeatures(catalog.Feature{Name: "b", Value: "2"}, catalog.Feature{Name: "a", Value: "1"}),
			Specifications: specs,
		},
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	record, err := recordFromEntry(entry)
	if err != nil {
		t.Fatalf("recordFromEntry: %v", err)
	}
	want := `{"description":"Walker","features":{"b":"2","a":"1"},"specifications":{"weight":"6 lbs","adjustable":{"max":"39 in","min":"32 in"}}}`
	if string(record.Metadata) != want {
		t.Fatalf("metadata = %s", record.Metadata)
	}

	back, err := record.Entry()
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if !back.Metadata.Specifications.Equal(specs) || !back.Metadata.Features.Equal(entry.Metadata.Features) {
		t.Fatalf("decoded = %+v", back.Metadata)
	}
}

func TestEntryRecordRejectsCorruptMetadata(t *testing.T) {
	if _, err := (EntryRecord{ID: "x", Metadata: []byte(`{"features":[{"a":{}}]`)}).Entry(); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_a\b`); got != `50\%\_a\\b` {
		t.Fatalf("escapeLike = %q", got)
	}
}
