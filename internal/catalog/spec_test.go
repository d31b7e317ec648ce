package catalog

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestSpecJSONKeepsKeyOrder(t *testing.T) {
	input := `{"zeta":"1","alpha":{"h":"10","w":12.5},"mid":true,"none":null}`
	var spec Spec
	if err := json.Unmarshal([]byte(input), &spec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	names := []string{}
	for _, attr := range spec.Attributes() {
		names = append(names, attr.Name)
	}
	if strings.Join(names, ",") != "zeta,alpha,mid,none" {
		t.Fatalf("order = %v", names)
	}
	mid, _ := spec.Get("mid")
	if !mid.IsLeaf() || mid.Value() != "true" {
		t.Fatalf("bool leaf = %+v", mid)
	}

	out, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"zeta":"1","alpha":{"h":"10","w":12.5},"mid":"true","none":{}}`
	if string(out) != want {
		t.Fatalf("marshal = %s, want %s", out, want)
	}
}

func TestSpecArraysBecomeIndexedNodes(t *testing.T) {
	var spec Spec
	if err := json.Unmarshal([]byte(`{"modes":["B","M"]}`), &spec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	modes, ok := spec.Get("modes")
	if !ok || modes.Len() != 2 {
		t.Fatalf("modes = %+v", modes)
	}
	first, _ := modes.Get("0")
	if first.Value() != "B" {
		t.Fatalf("modes[0] = %q", first.Value())
	}
}

func TestSpecRejectsDeepNesting(t *testing.T) {
	input := strings.Repeat(`{"a":`, MaxSpecDepth+1) + `"x"` + strings.Repeat("}", MaxSpecDepth+1)
	var spec Spec
	err := json.Unmarshal([]byte(input), &spec)
	if !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("error = %v, want ErrInvalidSpec", err)
	}

	ok := strings.Repeat(`{"a":`, MaxSpecDepth) + `"x"` + strings.Repeat("}", MaxSpecDepth)
	if err := json.Unmarshal([]byte(ok), &spec); err != nil {
		t.Fatalf("depth %d rejected: %v", MaxSpecDepth, err)
	}
	if spec.Depth() != MaxSpecDepth {
		t.Fatalf("Depth = %d", spec.Depth())
	}
}

func TestSpecSetOverwritesInPlace(t *testing.T) {
	spec := Node(Attribute{Name: "a", Value: Leaf("1")}, Attribute{Name: "b", Value: Leaf("2")})
	spec.Set("a", Leaf("3"))
	attrs := spec.Attributes()
	if len(attrs) != 2 || attrs[0].Name != "a" || attrs[0].Value.Value() != "3" {
		t.Fatalf("attrs = %+v", attrs)
	}

	leaf := Leaf("x")
	leaf.Set("k", Leaf("v"))
	if leaf.IsLeaf() || leaf.Len() != 1 {
		t.Fatalf("Set on leaf = %+v", leaf)
	}
}

func TestSpecYAMLKeepsOrderAndNumbers(t *testing.T) {
	doc := "weight: 12\nsize:\n  h: '10'\n  w: 4.5\n"
	var spec Spec
	if err := yaml.Unmarshal([]byte(doc), &spec); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	out, _ := json.Marshal(spec)
	if string(out) != `{"weight":12,"size":{"h":"10","w":4.5}}` {
		t.Fatalf("json = %s", out)
	}
}

func TestFeaturesJSON(t *testing.T) {
	var features Features
	if err := json.Unmarshal([]byte(`{"b":"two","a":"one"}`), &features); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, _ := json.Marshal(features)
	if string(out) != `{"b":"two","a":"one"}` {
		t.Fatalf("marshal = %s", out)
	}

	if err := json.Unmarshal([]byte(`{"a":{"b":"c"}}`), &features); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("nested feature error = %v", err)
	}

	var legacy Features
	if err := json.Unmarshal([]byte(`["DICOM","Touchscreen"]`), &legacy); err != nil {
		t.Fatalf("legacy list: %v", err)
	}
	if v, _ := legacy.Get("1"); v != "Touchscreen" {
		t.Fatalf("legacy[1] = %q", v)
	}
}
