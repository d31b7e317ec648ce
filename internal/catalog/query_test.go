package catalog

import (
	"errors"
	"testing"
	"time"
)

func sampleItems() []Item {
	at := func(day int) *time.Time {
		ts := time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC)
		return &ts
	}
	return []Item{
		{Name: "generic_c-arm.png", LastModified: at(3)},
		{Name: "mechanical_scale.jpg", LastModified: at(1), Metadata: &ItemMetadata{Name: "Mechanical Scale", Description: "Spring based", Category: "Weighing"}},
		{Name: "voluson.png", Metadata: &ItemMetadata{Name: "GE Voluson E6", Description: "Ultrasound for women's health"}},
		{Name: "bv300.png", LastModified: at(2), Metadata: &ItemMetadata{Name: "Philips BV300 Plus", Category: "Radiology"}},
	}
}

func names(items []Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Name
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSearch(t *testing.T) {
	items := sampleItems()
	cases := []struct {
		query string
		want  []string
	}{
		{query: "", want: names(items)},
		{query: "ARM", want: []string{"generic_c-arm.png"}},
		{query: "ultrasound", want: []string{"voluson.png"}},
		{query: "radiology", want: []string{"bv300.png"}},
		{query: "scale", want: []string{"mechanical_scale.jpg"}},
		{query: "png", want: []string{}},
	}
	for _, tc := range cases {
		if got := names(Search(items, tc.query)); !equalStrings(got, tc.want) {
			t.Fatalf("Search(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestSortIsStable(t *testing.T) {
	items := sampleItems()
	got := names(Sort(items, SortByLastModified, Ascending))
	want := []string{"voluson.png", "mechanical_scale.jpg", "bv300.png", "generic_c-arm.png"}
	if !equalStrings(got, want) {
		t.Fatalf("asc = %v, want %v", got, want)
	}
	got = names(Sort(items, SortByName, Descending))
	want = []string{"voluson.png", "mechanical_scale.jpg", "generic_c-arm.png", "bv300.png"}
	if !equalStrings(got, want) {
		t.Fatalf("desc = %v, want %v", got, want)
	}

	ties := []Item{{Name: "b"}, {Name: "a"}, {Name: "c"}}
	if got := names(Sort(ties, SortByLastModified, Descending)); !equalStrings(got, []string{"b", "a", "c"}) {
		t.Fatalf("ties reordered: %v", got)
	}
	if items[0].Name != "generic_c-arm.png" {
		t.Fatal("Sort mutated its input")
	}
}

func TestParseSort(t *testing.T) {
	if f, err := ParseSortField(""); err != nil || f != SortByName {
		t.Fatalf("default field = %q, %v", f, err)
	}
	if o, err := ParseSortOrder("DESC"); err != nil || o != Descending {
		t.Fatalf("order = %q, %v", o, err)
	}
	if _, err := ParseSortField("size"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad field error = %v", err)
	}
	if _, err := ParseSortOrder("up"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad order error = %v", err)
	}
}

func TestPaginate(t *testing.T) {
	empty := Paginate([]int{}, 1, DefaultPageSize)
	if empty.TotalPages != 1 || len(empty.Items) != 0 {
		t.Fatalf("empty page = %+v", empty)
	}

	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}
	page := Paginate(items, 3, 9)
	if page.TotalPages != 3 || len(page.Items) != 2 || page.Items[0] != 18 || page.Items[1] != 19 {
		t.Fatalf("page 3 = %+v", page)
	}
	if beyond := Paginate(items, 7, 9); len(beyond.Items) != 0 {
		t.Fatalf("beyond = %+v", beyond)
	}
	if zero := Paginate(items, 0, 9); len(zero.Items) != 0 {
		t.Fatalf("page 0 = %+v", zero)
	}
}

func TestClampPage(t *testing.T) {
	if ClampPage(0, 3) != 1 || ClampPage(5, 3) != 3 || ClampPage(2, 3) != 2 {
		t.Fatal("ClampPage out of bounds")
	}
}

func TestBrowseClampsPage(t *testing.T) {
	page := Browse(sampleItems(), Query{SortBy: SortByName, Order: Ascending, Page: 10, PageSize: 3})
	if page.Page != 2 || len(page.Items) != 1 || page.Items[0].Name != "voluson.png" {
		t.Fatalf("browse = %+v", page)
	}
}
