package catalog

// SpecLine is one rendered row of a specification tree. Branch rows label a
// nested group and carry no value.
type SpecLine struct {
	Depth  int    `json:"depth"`
	Label  string `json:"label"`
	Value  string `json:"value,omitempty"`
	Branch bool   `json:"branch,omitempty"`
}

// RenderSpecTree flattens spec in pre-order, keeping attribute order. It walks an
// explicit stack rather than recursing.
func RenderSpecTree(spec Spec) []SpecLine {
	if spec.IsLeaf() {
		return []SpecLine{{Value: spec.Value()}}
	}

	type frame struct {
		attrs []Attribute
		next  int
		depth int
	}

	lines := make([]SpecLine, 0, spec.Len())
	stack := []frame{{attrs: spec.attrs}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.attrs) {
			stack = stack[:len(stack)-1]
			continue
		}
		attr := top.attrs[top.next]
		top.next++
		depth := top.depth

		if attr.Value.IsLeaf() {
			lines = append(lines, SpecLine{Depth: depth, Label: attr.Name, Value: attr.Value.Value()})
			continue
		}
		lines = append(lines, SpecLine{Depth: depth, Label: attr.Name, Branch: true})
		if attr.Value.Len() > 0 {
			stack = append(stack, frame{attrs: attr.Value.attrs, depth: depth + 1})
		}
	}
	return lines
}
