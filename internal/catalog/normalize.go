package catalog

import (
	"encoding/json"
	"strings"
)

// FeatureRow is one row of the feature editor.
type FeatureRow struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// UnmarshalJSON also accepts the editor's "feature" field for the value.
func (r *FeatureRow) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name    string `json:"name"`
		Value   string `json:"value"`
		Feature string `json:"feature"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Name = raw.Name
	r.Value = raw.Value
	if r.Value == "" {
		r.Value = raw.Feature
	}
	return nil
}

// SpecRow is one row of the specification editor. Nested rows carry their own children.
type SpecRow struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	IsNested bool      `json:"isNested"`
	SubSpecs []SpecRow `json:"subSpecs"`
}

// NormalizeFeatures drops rows missing a name or value. Repeated names overwrite the
// earlier value in place.
func NormalizeFeatures(rows []FeatureRow) Features {
	var out Features
	for _, row := range rows {
		name := strings.TrimSpace(row.Name)
		value := strings.TrimSpace(row.Value)
		if name == "" || value == "" {
			continue
		}
		out.Set(name, value)
	}
	return out
}

// NormalizeSpecs builds the specification tree from editor rows. Rows without a name
// are dropped; nested rows recurse into their children; flat rows need a value.
func NormalizeSpecs(rows []SpecRow) Spec {
	var out Spec
	for _, row := range rows {
		name := strings.TrimSpace(row.Name)
		if name == "" {
			continue
		}
		if row.IsNested {
			out.Set(name, NormalizeSpecs(row.SubSpecs))
			continue
		}
		if value := strings.TrimSpace(row.Value); value != "" {
			out.Set(name, Leaf(value))
		}
	}
	return out
}
