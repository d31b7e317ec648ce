// Package blob stores catalog assets in S3-compatible object storage, one bucket per kind.
package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"medcatalog/api/internal/catalog"
)

var ErrNotFound = errors.New("object not found")

// Object describes one stored asset.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Store is the asset storage the catalog needs.
type Store interface {
	List(ctx context.Context, kind catalog.Kind) ([]Object, error)
	Put(ctx context.Context, kind catalog.Kind, key string, r io.Reader, size int64, contentType string) error
	Stat(ctx context.Context, kind catalog.Kind, key string) (Object, error)
	Delete(ctx context.Context, kind catalog.Kind, key string) error
	URL(kind catalog.Kind, key string) string
	Ping(ctx context.Context) error
}

// PublicURL joins base, kind and key into the address an asset is served from.
func PublicURL(base string, kind catalog.Kind, key string) string {
	return strings.TrimRight(base, "/") + "/" + string(kind) + "/" + url.PathEscape(key)
}

const sniffLen = 3072

// Sniff resolves the content type of r. A declared type other than the generic
// octet-stream wins; otherwise the leading bytes are inspected. The returned
// reader yields the full original content.
func Sniff(r io.Reader, declared string) (string, io.Reader, error) {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared, r, nil
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, err
	}
	head = head[:n]
	return mimetype.Detect(head).String(), io.MultiReader(bytes.NewReader(head), r), nil
}
