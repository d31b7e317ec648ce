package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// MaxSpecDepth bounds how deeply specification objects may nest when decoded.
const MaxSpecDepth = 32

// Spec is a node in a technical specification tree: either a scalar leaf or an
// ordered mapping of attribute names to child specs. The zero value is an empty node.
type Spec struct {
	leaf   bool
	number bool
	value  string
	attrs  []Attribute
}

// Attribute is one named child of a Spec node.
type Attribute struct {
	Name  string
	Value Spec
}

func Leaf(value string) Spec {
	return Spec{leaf: true, value: value}
}

// Number builds a numeric leaf. Values that are not valid JSON numbers become string leaves.
func Number(n json.Number) Spec {
	if _, err := n.Float64(); err != nil {
		return Leaf(n.String())
	}
	return Spec{leaf: true, number: true, value: n.String()}
}

func Node(attrs ...Attribute) Spec {
	var s Spec
	for _, attr := range attrs {
		s.Set(attr.Name, attr.Value)
	}
	return s
}

func (s Spec) IsLeaf() bool   { return s.leaf }
func (s Spec) IsNumber() bool { return s.leaf && s.number }

// Value returns the scalar text of a leaf, or "" for a node.
func (s Spec) Value() string {
	if !s.leaf {
		return ""
	}
	return s.value
}

// Attributes returns the children of a node in insertion order.
func (s Spec) Attributes() []Attribute {
	if s.leaf || len(s.attrs) == 0 {
		return nil
	}
	out := make([]Attribute, len(s.attrs))
	copy(out, s.attrs)
	return out
}

func (s Spec) Len() int {
	if s.leaf {
		return 0
	}
	return len(s.attrs)
}

func (s Spec) Get(name string) (Spec, bool) {
	for _, attr := range s.attrs {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return Spec{}, false
}

// Set stores value under name. An existing key keeps its position and takes the new value.
// Calling Set on a leaf turns it into a node.
func (s *Spec) Set(name string, value Spec) {
	if s.leaf {
		*s = Spec{}
	}
	for i := range s.attrs {
		if s.attrs[i].Name == name {
			s.attrs[i].Value = value
			return
		}
	}
	s.attrs = append(s.attrs, Attribute{Name: name, Value: value})
}

// Equal reports deep equality, including attribute order.
func (s Spec) Equal(other Spec) bool {
	if s.leaf != other.leaf {
		return false
	}
	if s.leaf {
		return s.value == other.value && s.number == other.number
	}
	if len(s.attrs) != len(other.attrs) {
		return false
	}
	for i := range s.attrs {
		if s.attrs[i].Name != other.attrs[i].Name || !s.attrs[i].Value.Equal(other.attrs[i].Value) {
			return false
		}
	}
	return true
}

// Depth is 0 for a leaf or empty node, otherwise 1 + the deepest child node.
func (s Spec) Depth() int {
	if s.leaf || len(s.attrs) == 0 {
		return 0
	}
	deepest := 0
	for _, attr := range s.attrs {
		if d := attr.Value.Depth(); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

func (s Spec) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s Spec) encode(buf *bytes.Buffer) error {
	if s.leaf {
		if s.number {
			buf.WriteString(s.value)
			return nil
		}
		encoded, err := json.Marshal(s.value)
		if err != nil {
			return err
		}
		buf.Write(encoded)
		return nil
	}
	buf.WriteByte('{')
	for i, attr := range s.attrs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(attr.Name)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := attr.Value.encode(buf); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// UnmarshalJSON keeps object key order. Booleans become string leaves, null an
// empty node, and arrays nodes keyed by element index.
func (s *Spec) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeSpec(dec, 0)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func decodeSpec(dec *json.Decoder, depth int) (Spec, error) {
	tok, err := dec.Token()
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	switch v := tok.(type) {
	case string:
		return Leaf(v), nil
	case json.Number:
		return Number(v), nil
	case bool:
		return Leaf(strconv.FormatBool(v)), nil
	case nil:
		return Spec{}, nil
	case json.Delim:
		if depth >= MaxSpecDepth {
			return Spec{}, fmt.Errorf("%w: nesting deeper than %d levels", ErrInvalidSpec, MaxSpecDepth)
		}
		var node Spec
		index := 0
		for dec.More() {
			name := strconv.Itoa(index)
			if v == '{' {
				keyTok, err := dec.Token()
				if err != nil {
					return Spec{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
				}
				name = keyTok.(string)
			}
			child, err := decodeSpec(dec, depth+1)
			if err != nil {
				return Spec{}, err
			}
			node.Set(name, child)
			index++
		}
		if _, err := dec.Token(); err != nil {
			return Spec{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
		return node, nil
	default:
		return Spec{}, fmt.Errorf("%w: unexpected token %v", ErrInvalidSpec, tok)
	}
}

// UnmarshalYAML decodes mapping nodes in document order.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := specFromYAML(node, 0)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func specFromYAML(node *yaml.Node, depth int) (Spec, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return Spec{}, nil
		}
		return specFromYAML(node.Content[0], depth)
	case yaml.AliasNode:
		return specFromYAML(node.Alias, depth)
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return Spec{}, nil
		}
		if node.Tag == "!!int" || node.Tag == "!!float" {
			return Number(json.Number(node.Value)), nil
		}
		return Leaf(node.Value), nil
	case yaml.MappingNode, yaml.SequenceNode:
		if depth >= MaxSpecDepth {
			return Spec{}, fmt.Errorf("%w: nesting deeper than %d levels", ErrInvalidSpec, MaxSpecDepth)
		}
		var out Spec
		if node.Kind == yaml.SequenceNode {
			for i, item := range node.Content {
				child, err := specFromYAML(item, depth+1)
				if err != nil {
					return Spec{}, err
				}
				out.Set(strconv.Itoa(i), child)
			}
			return out, nil
		}
		for i := 0; i+1 < len(node.Content); i += 2 {
			child, err := specFromYAML(node.Content[i+1], depth+1)
			if err != nil {
				return Spec{}, err
			}
			out.Set(node.Content[i].Value, child)
		}
		return out, nil
	default:
		return Spec{}, fmt.Errorf("%w: unsupported yaml node", ErrInvalidSpec)
	}
}
