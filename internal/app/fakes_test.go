package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"medcatalog/api/internal/auth"
	"medcatalog/api/internal/blob"
	"medcatalog/api/internal/catalog"
	"medcatalog/api/internal/logger"
	"medcatalog/api/internal/rbac"
	"medcatalog/api/internal/store"
	"medcatalog/api/internal/util"
)

const testAssetBase = "https://assets.example.com"

var testNow = time.Date(2024, time.April, 2, 10, 0, 0, 0, time.UTC)

var (
	viewer = auth.Principal{Subject: "viewer-1", Email: "viewer@example.com", Role: rbac.RoleViewer}
	editor = auth.Principal{Subject: "editor-1", Email: "editor@example.com", Role: rbac.RoleEditor}
	admin  = auth.Principal{Subject: "admin-1", Email: "admin@example.com", Role: rbac.RoleAdmin}
)

// fakeStore keeps entries in memory. insertFn overrides InsertEntry when set.
type fakeStore struct {
	mu       sync.Mutex
	entries  []catalog.Entry
	nextID   int
	insertFn func(context.Context, catalog.Entry) (catalog.Entry, error)
	listErr  error
	pingErr  error
}

func (f *fakeStore) InsertEntry(ctx context.Context, entry catalog.Entry) (catalog.Entry, error) {
	if f.insertFn != nil {
		return f.insertFn(ctx, entry)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.entries {
		if existing.Slug == entry.Slug {
			return catalog.Entry{}, store.ErrSlugTaken
		}
	}
	f.nextID++
	entry.ID = fmt.Sprintf("entry-%d", f.nextID)
	f.entries = append(f.entries, entry)
	return entry, nil
}

// seed appends entries without the uniqueness check, as legacy data would.
func (f *fakeStore) seed(entries ...catalog.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range entries {
		f.nextID++
		if entry.ID == "" {
			entry.ID = fmt.Sprintf("entry-%d", f.nextID)
		}
		f.entries = append(f.entries, entry)
	}
}

func (f *fakeStore) SlugExists(_ context.Context, slug string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.entries {
		if entry.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListEntries(context.Context) ([]catalog.Entry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]catalog.Entry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func (f *fakeStore) FindBySlug(_ context.Context, slug string) ([]catalog.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []catalog.Entry
	for _, entry := range f.entries {
		if entry.Slug == slug {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteBySlug(_ context.Context, slug string) ([]catalog.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept, deleted []catalog.Entry
	for _, entry := range f.entries {
		if entry.Slug == slug {
			deleted = append(deleted, entry)
			continue
		}
		kept = append(kept, entry)
	}
	if len(deleted) == 0 {
		return nil, store.ErrNotFound
	}
	f.entries = kept
	return deleted, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type fakeObject struct {
	data        []byte
	contentType string
}

// fakeBlobs is an in-memory blob.Store.
type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string]fakeObject
	putErr    error
	deleteErr error
	puts      int
	deletes   int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string]fakeObject{}}
}

func blobID(kind catalog.Kind, key string) string {
	return string(kind) + "/" + key
}

func (f *fakeBlobs) add(kind catalog.Kind, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[blobID(kind, key)] = fakeObject{data: data}
}

func (f *fakeBlobs) has(kind catalog.Kind, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[blobID(kind, key)]
	return ok
}

func (f *fakeBlobs) List(_ context.Context, kind catalog.Kind) ([]blob.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := string(kind) + "/"
	var out []blob.Object
	for id, obj := range f.objects {
		if len(id) > len(prefix) && id[:len(prefix)] == prefix {
			out = append(out, blob.Object{Key: id[len(prefix):], Size: int64(len(obj.data)), LastModified: testNow, ContentType: obj.contentType})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeBlobs) Put(_ context.Context, kind catalog.Kind, key string, r io.Reader, _ int64, contentType string) error {
	f.mu.Lock()
	f.puts++
	putErr := f.putErr
	f.mu.Unlock()
	if putErr != nil {
		return putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[blobID(kind, key)] = fakeObject{data: data, contentType: contentType}
	return nil
}

func (f *fakeBlobs) Stat(_ context.Context, kind catalog.Kind, key string) (blob.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[blobID(kind, key)]
	if !ok {
		return blob.Object{}, blob.ErrNotFound
	}
	return blob.Object{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (f *fakeBlobs) Delete(_ context.Context, kind catalog.Kind, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, blobID(kind, key))
	return nil
}

func (f *fakeBlobs) URL(kind catalog.Kind, key string) string {
	return blob.PublicURL(testAssetBase, kind, key)
}

func (f *fakeBlobs) Ping(context.Context) error { return nil }

func newTestService(fs *fakeStore, fb *fakeBlobs) *Service {
	return New(Dependencies{
		Store: fs,
		Blobs: fb,
		Retry: util.RetryPolicy{Attempts: 1},
		Log:   logger.Nop(),
		Now:   func() time.Time { return testNow },
	})
}

func assertCode(t *testing.T, err error, code string) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError %s, got %v", code, err)
	}
	if domainErr.Code != code {
		t.Fatalf("expected code %s, got %s (%v)", code, domainErr.Code, err)
	}
	return domainErr
}
