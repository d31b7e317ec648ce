package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"medcatalog/api/internal/catalog"
)

//go:embed templates/*.html
var templateFS embed.FS

var datasheetTemplate = template.Must(
	template.New("datasheet.html").Funcs(template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"indent": func(depth int) int {
			return depth * 18
		},
	}).ParseFS(templateFS, "templates/datasheet.html"),
)

// TemplateData holds data for datasheet rendering
type TemplateData struct {
	Name        string
	Description string
	Category    string
	ImageURL    string
	Features    []catalog.Feature
	Specs       []catalog.SpecLine
	CreatedAt   time.Time
	GeneratedAt time.Time
}

// NewTemplateData collects what the datasheet shows for entry.
func NewTemplateData(entry catalog.Entry, now time.Time) TemplateData {
	return TemplateData{
		Name:        entry.Name,
		Description: entry.Metadata.Description,
		Category:    entry.Metadata.Category,
		ImageURL:    entry.URL,
		Features:    entry.Metadata.Features.Items(),
		Specs:       catalog.RenderSpecTree(entry.Metadata.Specifications),
		CreatedAt:   entry.CreatedAt,
		GeneratedAt: now.UTC(),
	}
}

// RenderDatasheetHTML renders the datasheet template with provided data
func RenderDatasheetHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := datasheetTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
