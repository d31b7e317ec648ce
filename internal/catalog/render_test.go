package catalog

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRenderSpecTree(t *testing.T) {
	var spec Spec
	if err := json.Unmarshal([]byte(`{"power":"15 kW","geometry":{"sid":"98 cm","arc":{"depth":"61 cm"}},"empty":{},"weight":"200"}`), &spec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := RenderSpecTree(spec)
	want := []SpecLine{
		{Depth: 0, Label: "power", Value: "15 kW"},
		{Depth: 0, Label: "geometry", Branch: true},
		{Depth: 1, Label: "sid", Value: "98 cm"},
		{Depth: 1, Label: "arc", Branch: true},
		{Depth: 2, Label: "depth", Value: "61 cm"},
		{Depth: 0, Label: "empty", Branch: true},
		{Depth: 0, Label: "weight", Value: "200"},
	}
	if len(got) != len(want) {
		t.Fatalf("lines = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRenderSpecTreeMaxDepth(t *testing.T) {
	input := strings.Repeat(`{"n":`, MaxSpecDepth) + `"leaf"` + strings.Repeat("}", MaxSpecDepth)
	var spec Spec
	if err := json.Unmarshal([]byte(input), &spec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	lines := RenderSpecTree(spec)
	last := lines[len(lines)-1]
	if len(lines) != MaxSpecDepth || last.Value != "leaf" || last.Depth != MaxSpecDepth-1 {
		t.Fatalf("last line = %+v of %d", last, len(lines))
	}
}
