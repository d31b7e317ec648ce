package catalog

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Metadata is the structured description stored with a machine entry.
type Metadata struct {
	Description    string   `json:"description"`
	Category       string   `json:"category,omitempty"`
	Features       Features `json:"features"`
	Specifications Spec     `json:"specifications"`
}

// Entry is a persisted metadata document linked to its asset by URL.
type Entry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Metadata  Metadata  `json:"metadata"`
	Extension string    `json:"extension"`
	URL       string    `json:"url"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AssetKey returns the blob key the entry URL points at within its kind bucket.
func (e Entry) AssetKey() string {
	key := e.URL[strings.LastIndex(e.URL, "/")+1:]
	if unescaped, err := url.PathUnescape(key); err == nil {
		return unescaped
	}
	return key
}

// Fields are the user-authored parts of a new entry before normalization.
type Fields struct {
	Name           string
	Description    string
	Category       string
	Features       Features
	Specifications Spec
}

// Validate checks the required fields and returns the derived slug.
func (f Fields) Validate() (string, error) {
	if strings.TrimSpace(f.Name) == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(f.Description) == "" {
		return "", fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if depth := f.Specifications.Depth(); depth > MaxSpecDepth {
		return "", fmt.Errorf("%w: specifications nest %d levels", ErrInvalidSpec, depth)
	}
	return Slugify(f.Name)
}

// NewEntry assembles the document to persist for fields whose asset lives at url.
func NewEntry(fields Fields, slug, extension, url, createdBy string, now time.Time) Entry {
	if extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return Entry{
		Name: strings.TrimSpace(fields.Name),
		Slug: slug,
		Metadata: Metadata{
			Description:    strings.TrimSpace(fields.Description),
			Category:       strings.TrimSpace(fields.Category),
			Features:       fields.Features,
			Specifications: fields.Specifications,
		},
		Extension: extension,
		URL:       url,
		CreatedBy: createdBy,
		CreatedAt: now.UTC(),
	}
}
