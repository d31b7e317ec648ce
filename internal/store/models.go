package store

import (
	"encoding/json"
	"fmt"
	"time"

	"medcatalog/api/internal/catalog"
)

// EntryRecord is a catalog_entries row with its metadata still encoded.
type EntryRecord struct {
	ID        string
	Name      string
	Slug      string
	Metadata  []byte
	Extension string
	URL       string
	CreatedBy string
	CreatedAt time.Time
}

func recordFromEntry(entry catalog.Entry) (EntryRecord, error) {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return EntryRecord{}, fmt.Errorf("encode metadata: %w", err)
	}
	return EntryRecord{
		ID:        entry.ID,
		Name:      entry.Name,
		Slug:      entry.Slug,
		Metadata:  metadata,
		Extension: entry.Extension,
		URL:       entry.URL,
		CreatedBy: entry.CreatedBy,
		CreatedAt: entry.CreatedAt,
	}, nil
}

// Entry decodes the record into its catalog form.
func (r EntryRecord) Entry() (catalog.Entry, error) {
	var metadata catalog.Metadata
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &metadata); err != nil {
			return catalog.Entry{}, fmt.Errorf("decode metadata for %s: %w", r.ID, err)
		}
	}
	return catalog.Entry{
		ID:        r.ID,
		Name:      r.Name,
		Slug:      r.Slug,
		Metadata:  metadata,
		Extension: r.Extension,
		URL:       r.URL,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt.UTC(),
	}, nil
}
