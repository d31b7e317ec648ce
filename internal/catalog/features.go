package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Feature is one named feature of a catalog entry.
type Feature struct {
	Name  string
	Value string
}

// Features is a flat, insertion-ordered mapping of feature name to description.
type Features struct {
	items []Feature
}

func NewFeatures(items ...Feature) Features {
	var f Features
	for _, item := range items {
		f.Set(item.Name, item.Value)
	}
	return f
}

// Set stores value under name; an existing name keeps its position.
func (f *Features) Set(name, value string) {
	for i := range f.items {
		if f.items[i].Name == name {
			f.items[i].Value = value
			return
		}
	}
	f.items = append(f.items, Feature{Name: name, Value: value})
}

func (f Features) Get(name string) (string, bool) {
	for _, item := range f.items {
		if item.Name == name {
			return item.Value, true
		}
	}
	return "", false
}

func (f Features) Len() int { return len(f.items) }

func (f Features) Items() []Feature {
	out := make([]Feature, len(f.items))
	copy(out, f.items)
	return out
}

func (f Features) Equal(other Features) bool {
	if len(f.items) != len(other.items) {
		return false
	}
	for i := range f.items {
		if f.items[i] != other.items[i] {
			return false
		}
	}
	return true
}

func (f Features) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range f.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(item.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(item.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts a flat object of scalars. Older documents stored features
// as a list of strings; those decode with their index as the name.
func (f *Features) UnmarshalJSON(data []byte) error {
	var spec Spec
	if err := spec.UnmarshalJSON(data); err != nil {
		return err
	}
	if spec.IsLeaf() {
		return fmt.Errorf("%w: features must be an object", ErrInvalidSpec)
	}
	var out Features
	for _, attr := range spec.Attributes() {
		if !attr.Value.IsLeaf() {
			return fmt.Errorf("%w: feature %q must be a scalar", ErrInvalidSpec, attr.Name)
		}
		out.Set(attr.Name, attr.Value.Value())
	}
	*f = out
	return nil
}
