package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultPageSize matches the dashboard grid.
const DefaultPageSize = 9

// isoLayout is fixed-width so lexicographic and chronological order agree.
const isoLayout = "2006-01-02T15:04:05.000Z"

// Item is one row of a kind listing: a blob plus, for machines, its entry metadata.
type Item struct {
	Name         string        `json:"name"`
	URL          string        `json:"url"`
	Size         int64         `json:"size,omitempty"`
	LastModified *time.Time    `json:"lastModified,omitempty"`
	Metadata     *ItemMetadata `json:"metadata,omitempty"`
}

type ItemMetadata struct {
	Slug           string   `json:"slug,omitempty"`
	Name           string   `json:"name,omitempty"`
	Description    string   `json:"description"`
	Category       string   `json:"category,omitempty"`
	Features       Features `json:"features"`
	Specifications Spec     `json:"specifications"`
}

// MetadataFromEntry projects an entry onto the listing shape.
func MetadataFromEntry(entry Entry) *ItemMetadata {
	return &ItemMetadata{
		Slug:           entry.Slug,
		Name:           entry.Name,
		Description:    entry.Metadata.Description,
		Category:       entry.Metadata.Category,
		Features:       entry.Metadata.Features,
		Specifications: entry.Metadata.Specifications,
	}
}

// DisplayName is the metadata name, or the blob name without its extension.
func (i Item) DisplayName() string {
	if i.Metadata != nil && strings.TrimSpace(i.Metadata.Name) != "" {
		return i.Metadata.Name
	}
	return StripExtension(i.Name)
}

func (i Item) description() string {
	if i.Metadata == nil {
		return ""
	}
	return i.Metadata.Description
}

func (i Item) category() string {
	if i.Metadata == nil {
		return ""
	}
	return i.Metadata.Category
}

type SortField string

const (
	SortByName         SortField = "name"
	SortByLastModified SortField = "lastModified"
)

type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

func ParseSortField(value string) (SortField, error) {
	switch SortField(strings.TrimSpace(value)) {
	case "", SortByName:
		return SortByName, nil
	case SortByLastModified:
		return SortByLastModified, nil
	default:
		return "", fmt.Errorf("%w: unknown sort field %q", ErrInvalidInput, value)
	}
}

func ParseSortOrder(value string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(value))) {
	case "", Ascending:
		return Ascending, nil
	case Descending:
		return Descending, nil
	default:
		return "", fmt.Errorf("%w: unknown sort order %q", ErrInvalidInput, value)
	}
}

// SortKey is the string the item is ordered by; missing values are "".
func (i Item) SortKey(field SortField) string {
	switch field {
	case SortByName:
		return i.Name
	case SortByLastModified:
		if i.LastModified == nil {
			return ""
		}
		return i.LastModified.UTC().Format(isoLayout)
	default:
		return ""
	}
}

// Search keeps items whose display name, description or category contains query,
// ignoring case. An empty query returns items unchanged.
func Search(items []Item, query string) []Item {
	needle := strings.ToLower(query)
	if needle == "" {
		return items
	}
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.DisplayName()), needle) ||
			strings.Contains(strings.ToLower(item.description()), needle) ||
			strings.Contains(strings.ToLower(item.category()), needle) {
			out = append(out, item)
		}
	}
	return out
}

// Sort returns a stably sorted copy of items.
func Sort(items []Item, field SortField, order SortOrder) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(a, b int) bool {
		left, right := out[a].SortKey(field), out[b].SortKey(field)
		if order == Descending {
			return right < left
		}
		return left < right
	})
	return out
}

// Page is one slice of a paginated listing.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
	Total      int `json:"total"`
}

// TotalPages is ceil(count/pageSize) but never less than one.
func TotalPages(count, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pages := (count + pageSize - 1) / pageSize
	if pages < 1 {
		return 1
	}
	return pages
}

// ClampPage bounds page to [1, totalPages].
func ClampPage(page, totalPages int) int {
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// Paginate slices out the 1-based page. Pages outside the listing are empty;
// clamping is the caller's job.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	result := Page[T]{
		Items:      []T{},
		Page:       page,
		PageSize:   pageSize,
		TotalPages: TotalPages(len(items), pageSize),
		Total:      len(items),
	}
	if page < 1 {
		return result
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return result
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	result.Items = items[start:end]
	return result
}

// Query bundles the browse parameters applied to a listing.
type Query struct {
	Text     string
	SortBy   SortField
	Order    SortOrder
	Page     int
	PageSize int
}

// Browse filters, sorts and paginates items, clamping the requested page.
func Browse(items []Item, q Query) Page[Item] {
	filtered := Sort(Search(items, q.Text), q.SortBy, q.Order)
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	page := ClampPage(q.Page, TotalPages(len(filtered), pageSize))
	return Paginate(filtered, page, pageSize)
}
