package catalog

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCategory    = "Uncategorized"
	DefaultDescription = "No description available"
)

//go:embed descriptors.yaml
var builtinDescriptors []byte

// Descriptor is a known machine model whose documentation can prefill an upload.
type Descriptor struct {
	Name           string   `yaml:"name"`
	Category       string   `yaml:"category"`
	Description    string   `yaml:"description"`
	Features       []string `yaml:"features"`
	Specifications Spec     `yaml:"specifications"`
}

// Fields converts the descriptor into entry fields. Listed features are keyed by
// position, matching how legacy feature lists decode.
func (d Descriptor) Fields() Fields {
	var features Features
	for i, feature := range d.Features {
		features.Set(strconv.Itoa(i), feature)
	}
	category := d.Category
	if strings.TrimSpace(category) == "" {
		category = DefaultCategory
	}
	return Fields{
		Name:           d.Name,
		Description:    d.Description,
		Category:       category,
		Features:       features,
		Specifications: d.Specifications,
	}
}

type Descriptors struct {
	byName map[string]Descriptor
	order  []string
}

// ParseDescriptors decodes a YAML list of descriptors. Later duplicates win.
func ParseDescriptors(data []byte) (*Descriptors, error) {
	var list []Descriptor
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse descriptors: %w", err)
	}
	d := &Descriptors{byName: make(map[string]Descriptor, len(list))}
	for _, item := range list {
		key := strings.ToLower(strings.TrimSpace(item.Name))
		if key == "" {
			continue
		}
		if _, seen := d.byName[key]; !seen {
			d.order = append(d.order, key)
		}
		d.byName[key] = item
	}
	return d, nil
}

// BuiltinDescriptors returns the catalogue shipped with the binary.
func BuiltinDescriptors() *Descriptors {
	d, err := ParseDescriptors(builtinDescriptors)
	if err != nil {
		panic(err)
	}
	return d
}

// Lookup matches filename, minus its extension, against descriptor names ignoring case.
func (d *Descriptors) Lookup(filename string) (Descriptor, bool) {
	if d == nil {
		return Descriptor{}, false
	}
	key := strings.ToLower(strings.TrimSpace(StripExtension(filename)))
	item, ok := d.byName[key]
	return item, ok
}

func (d *Descriptors) Len() int {
	if d == nil {
		return 0
	}
	return len(d.order)
}

// Autofill resolves the name, category and description for an uploaded machine
// file. Known models use their descriptor; otherwise provided values are kept and
// blanks fall back to the filename and defaults.
func (d *Descriptors) Autofill(filename string, provided Fields) Fields {
	if item, ok := d.Lookup(filename); ok {
		provided.Name = item.Name
		provided.Category = item.Category
		provided.Description = item.Description
	}
	if strings.TrimSpace(provided.Name) == "" {
		provided.Name = StripExtension(filename)
	}
	if strings.TrimSpace(provided.Category) == "" {
		provided.Category = DefaultCategory
	}
	if strings.TrimSpace(provided.Description) == "" {
		provided.Description = DefaultDescription
	}
	return provided
}
