package export

import (
	"context"
	"time"

	"medcatalog/api/internal/catalog"
)

// Service renders entry datasheets.
type Service struct {
	pdf PDFRenderer
	now func() time.Time
}

// NewService uses headless Chrome for PDF output when pdf is nil.
func NewService(pdf PDFRenderer) *Service {
	if pdf == nil {
		pdf = ChromePDF
	}
	return &Service{pdf: pdf, now: time.Now}
}

// Datasheet renders entry in format.
func (s *Service) Datasheet(ctx context.Context, entry catalog.Entry, format Format) (*Result, error) {
	html, err := RenderDatasheetHTML(NewTemplateData(entry, s.now()))
	if err != nil {
		return nil, err
	}

	base := entry.Slug
	if base == "" {
		base = "datasheet"
	}
	switch format {
	case FormatPDF:
		data, err := s.pdf(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: base + ".pdf", MimeType: "application/pdf"}, nil
	case FormatHTML, "":
		return &Result{Data: []byte(html), Filename: base + ".html", MimeType: "text/html; charset=utf-8"}, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}
