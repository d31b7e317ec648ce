package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"medcatalog/api/internal/auth"
	"medcatalog/api/internal/blob"
	"medcatalog/api/internal/cache"
	"medcatalog/api/internal/catalog"
	"medcatalog/api/internal/export"
	"medcatalog/api/internal/logger"
	"medcatalog/api/internal/metrics"
	"medcatalog/api/internal/rbac"
	"medcatalog/api/internal/search"
	"medcatalog/api/internal/store"
	"medcatalog/api/internal/util"
)

const compensationTimeout = 30 * time.Second

type entryStore interface {
	InsertEntry(context.Context, catalog.Entry) (catalog.Entry, error)
	SlugExists(context.Context, string) (bool, error)
	ListEntries(context.Context) ([]catalog.Entry, error)
	FindBySlug(context.Context, string) ([]catalog.Entry, error)
	DeleteBySlug(context.Context, string) ([]catalog.Entry, error)
	Ping(ctx context.Context) error
}

type listingCache interface {
	Get(ctx context.Context, name string, dest any) (bool, error)
	Set(ctx context.Context, name string, value any) error
	Invalidate(ctx context.Context, names ...string) error
	Ping(ctx context.Context) error
}

type entryIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexEntry(entry catalog.Entry)
	RemoveEntries(entries []catalog.Entry)
	ReindexAll(entries []catalog.Entry)
}

type datasheetExporter interface {
	Datasheet(ctx context.Context, entry catalog.Entry, format export.Format) (*export.Result, error)
}

// Dependencies wires a Service. Cache and Index are optional.
type Dependencies struct {
	Store       entryStore
	Blobs       blob.Store
	Cache       listingCache
	Index       entryIndex
	Exporter    datasheetExporter
	Descriptors *catalog.Descriptors
	Retry       util.RetryPolicy
	Log         *logger.Logger
	Now         func() time.Time
}

type Service struct {
	store       entryStore
	blobs       blob.Store
	cache       listingCache
	index       entryIndex
	exporter    datasheetExporter
	descriptors *catalog.Descriptors
	retry       util.RetryPolicy
	log         *logger.Logger
	now         func() time.Time
}

func New(deps Dependencies) *Service {
	s := &Service{
		store:       deps.Store,
		blobs:       deps.Blobs,
		cache:       deps.Cache,
		index:       deps.Index,
		exporter:    deps.Exporter,
		descriptors: deps.Descriptors,
		retry:       deps.Retry,
		log:         deps.Log,
		now:         deps.Now,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.retry.Attempts == 0 {
		s.retry = util.DefaultRetry
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.exporter == nil {
		s.exporter = export.NewService(nil)
	}
	if s.descriptors == nil {
		s.descriptors = catalog.BuiltinDescriptors()
	}
	return s
}

// Bootstrap pushes the stored entries to the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.index == nil {
		return nil
	}
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	s.index.ReindexAll(entries)
	s.log.Info("search index bootstrapped", "entries", len(entries))
	return nil
}

// Readiness pings every backing system and reports the outcome per system.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	checks := map[string]error{
		"database": s.store.Ping(ctx),
		"blob":     s.blobs.Ping(ctx),
	}
	if s.cache != nil {
		checks["cache"] = s.cache.Ping(ctx)
	}
	return checks
}

func authorize(p auth.Principal, action rbac.Action) error {
	if !rbac.Can(p.Role, action) {
		return forbiddenError()
	}
	return nil
}

// Upload is an asset received from a client. Body is rewound before every write
// attempt.
type Upload struct {
	Filename    string
	Name        string
	ContentType string
	Size        int64
	Body        io.ReadSeeker
}

type Asset struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	// Suggestion prefills the metadata form for machine uploads.
	Suggestion *catalog.ItemMetadata `json:"suggestion,omitempty"`
}

func (s *Service) UploadAsset(ctx context.Context, p auth.Principal, kind catalog.Kind, upload Upload) (Asset, error) {
	if err := authorize(p, rbac.ActionUpload); err != nil {
		return Asset{}, err
	}
	asset, err := s.putAsset(ctx, kind, upload)
	if err != nil {
		return Asset{}, err
	}
	s.invalidate(ctx, cache.ListingKey(kind))
	if kind.HasMetadata() {
		asset.Suggestion = s.suggest(upload.Filename)
	}
	s.log.Info("asset uploaded", "kind", kind, "key", asset.Name, "by", p.Subject)
	return asset, nil
}

func (s *Service) putAsset(ctx context.Context, kind catalog.Kind, upload Upload) (Asset, error) {
	if upload.Body == nil {
		return Asset{}, validationError("No file uploaded")
	}
	key := assetKey(upload)
	if key == "" {
		return Asset{}, validationError("A file name is required")
	}
	contentType, _, err := blob.Sniff(upload.Body, upload.ContentType)
	if err != nil {
		return Asset{}, upstreamError("Failed to upload asset", fmt.Errorf("%w: read upload: %v", ErrAssetUpload, err))
	}

	err = util.Retry(ctx, s.retry, func() error {
		if _, err := upload.Body.Seek(0, io.SeekStart); err != nil {
			return util.Permanent(err)
		}
		return s.blobs.Put(ctx, kind, key, upload.Body, upload.Size, contentType)
	})
	metrics.RecordUpload(string(kind), metrics.Status(err), upload.Size)
	if err != nil {
		return Asset{}, upstreamError("Failed to upload asset", fmt.Errorf("%w: %s/%s: %v", ErrAssetUpload, kind, key, err))
	}
	return Asset{Name: key, URL: s.blobs.URL(kind, key)}, nil
}

// assetKey is "" when neither the preferred nor the original name leaves a usable stem.
func assetKey(upload Upload) string {
	key := catalog.SanitizeFilename(upload.Name, upload.Filename)
	if strings.Trim(catalog.StripExtension(key), "._") == "" {
		return ""
	}
	return key
}

// suggest builds form defaults for a machine file, preferring a known descriptor.
func (s *Service) suggest(filename string) *catalog.ItemMetadata {
	var fields catalog.Fields
	if known, ok := s.descriptors.Lookup(filename); ok {
		fields = known.Fields()
	}
	fields = s.descriptors.Autofill(filename, fields)
	return &catalog.ItemMetadata{
		Name:           fields.Name,
		Description:    fields.Description,
		Category:       fields.Category,
		Features:       fields.Features,
		Specifications: fields.Specifications,
	}
}

// prefill completes blank fields from the descriptor matching filename, if any.
func (s *Service) prefill(filename string, fields catalog.Fields) catalog.Fields {
	known, ok := s.descriptors.Lookup(filename)
	if !ok {
		return fields
	}
	defaults := known.Fields()
	if strings.TrimSpace(fields.Name) == "" {
		fields.Name = defaults.Name
	}
	if strings.TrimSpace(fields.Description) == "" {
		fields.Description = defaults.Description
	}
	if strings.TrimSpace(fields.Category) == "" {
		fields.Category = defaults.Category
	}
	if fields.Features.Len() == 0 {
		fields.Features = defaults.Features
	}
	if fields.Specifications.Len() == 0 {
		fields.Specifications = defaults.Specifications
	}
	return fields
}

func validateFields(fields catalog.Fields) (string, error) {
	slug, err := fields.Validate()
	if err == nil {
		return slug, nil
	}
	if errors.Is(err, catalog.ErrInvalidSpec) {
		return "", validationError("Specifications are nested too deeply")
	}
	return "", validationError("Name and description are required")
}

// CreateEntry stores a machine asset and its metadata as one entry. The asset is
// written first; when the metadata write fails the asset is deleted again.
func (s *Service) CreateEntry(ctx context.Context, p auth.Principal, upload Upload, fields catalog.Fields) (catalog.Entry, error) {
	if err := authorize(p, rbac.ActionCreate); err != nil {
		return catalog.Entry{}, err
	}
	fields = s.prefill(upload.Filename, fields)
	slug, err := validateFields(fields)
	if err != nil {
		return catalog.Entry{}, err
	}
	if err := s.ensureSlugFree(ctx, slug); err != nil {
		return catalog.Entry{}, err
	}

	kind := catalog.KindMachines
	replaced := s.assetExists(ctx, kind, assetKey(upload))
	asset, err := s.putAsset(ctx, kind, upload)
	if err != nil {
		return catalog.Entry{}, err
	}
	s.invalidate(ctx, cache.ListingKey(kind))

	entry := catalog.NewEntry(fields, slug, catalog.Extension(asset.Name), asset.URL, p.Subject, s.now())
	created, err := s.store.InsertEntry(ctx, entry)
	metrics.RecordStoreOperation("insert_entry", err)
	if err != nil {
		return catalog.Entry{}, s.compensate(ctx, kind, asset.Name, slug, replaced, err)
	}
	s.entryWritten(ctx, created)
	s.log.Info("entry created", "slug", created.Slug, "id", created.ID, "asset", asset.Name, "by", p.Subject)
	return created, nil
}

func (s *Service) assetExists(ctx context.Context, kind catalog.Kind, key string) bool {
	if key == "" {
		return false
	}
	_, err := s.blobs.Stat(ctx, kind, key)
	return err == nil
}

// compensate undoes the asset write of a failed CreateEntry. An asset that
// overwrote an existing blob is left in place.
func (s *Service) compensate(ctx context.Context, kind catalog.Kind, key, slug string, replaced bool, cause error) error {
	var writeErr error = upstreamError("Failed to save entry", fmt.Errorf("%w: %v", ErrMetadataWrite, cause))
	if errors.Is(cause, store.ErrSlugTaken) {
		writeErr = slugTakenError(slug)
	}
	if replaced {
		s.log.Warn("entry write failed after replacing an existing asset", "kind", kind, "key", key, "error", cause)
		return writeErr
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	err := util.Retry(cleanupCtx, s.retry, func() error {
		return s.blobs.Delete(cleanupCtx, kind, key)
	})
	metrics.RecordCompensation(err)
	if err != nil {
		s.log.Error("compensating asset delete failed", "kind", kind, "key", key, "error", err, "cause", cause)
		return partialFailureError(string(kind), key, errors.Join(cause, err))
	}
	s.log.Warn("entry write failed, uploaded asset removed", "kind", kind, "key", key, "error", cause)
	s.invalidate(cleanupCtx, cache.ListingKey(kind))
	return writeErr
}

// DescriptionInput is a metadata document for an asset that is already stored.
type DescriptionInput struct {
	Fields    catalog.Fields
	URL       string
	Extension string
}

func (s *Service) CreateDescription(ctx context.Context, p auth.Principal, in DescriptionInput) (catalog.Entry, error) {
	if err := authorize(p, rbac.ActionCreate); err != nil {
		return catalog.Entry{}, err
	}
	slug, err := validateFields(in.Fields)
	if err != nil {
		return catalog.Entry{}, err
	}
	if err := s.ensureSlugFree(ctx, slug); err != nil {
		return catalog.Entry{}, err
	}

	entry := catalog.NewEntry(in.Fields, slug, strings.TrimSpace(in.Extension), strings.TrimSpace(in.URL), p.Subject, s.now())
	created, err := s.store.InsertEntry(ctx, entry)
	metrics.RecordStoreOperation("insert_entry", err)
	if err != nil {
		if errors.Is(err, store.ErrSlugTaken) {
			return catalog.Entry{}, slugTakenError(slug)
		}
		return catalog.Entry{}, upstreamError("Failed to add machine", fmt.Errorf("%w: %v", ErrMetadataWrite, err))
	}
	s.entryWritten(ctx, created)
	s.log.Info("description created", "slug", created.Slug, "id", created.ID, "by", p.Subject)
	return created, nil
}

func (s *Service) ensureSlugFree(ctx context.Context, slug string) error {
	var taken bool
	err := s.withRetry(ctx, "slug_exists", func() error {
		var err error
		taken, err = s.store.SlugExists(ctx, slug)
		return err
	})
	if err != nil {
		return upstreamError("Failed to check entry name", err)
	}
	if taken {
		return slugTakenError(slug)
	}
	return nil
}

func (s *Service) entryWritten(ctx context.Context, entry catalog.Entry) {
	s.invalidate(ctx, cache.EntriesKey, cache.ListingKey(catalog.KindMachines))
	if s.index != nil {
		s.index.IndexEntry(entry)
	}
}

// DeleteEntry removes every entry stored under slug in one transaction. Assets
// are left alone.
func (s *Service) DeleteEntry(ctx context.Context, p auth.Principal, rawSlug string) ([]catalog.Entry, error) {
	if err := authorize(p, rbac.ActionDelete); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rawSlug) == "" {
		return nil, validationError("Slug is required")
	}
	slug, err := catalog.ParseSlug(rawSlug)
	if err != nil {
		return nil, notFoundError("Machine not found")
	}

	deleted, err := s.store.DeleteBySlug(ctx, slug)
	metrics.RecordStoreOperation("delete_by_slug", err)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundError("Machine not found")
		}
		return nil, upstreamError("Failed to delete machine", err)
	}
	s.invalidate(ctx, cache.EntriesKey, cache.ListingKey(catalog.KindMachines))
	if s.index != nil {
		s.index.RemoveEntries(deleted)
	}
	s.log.Info("entries deleted", "slug", slug, "count", len(deleted), "by", p.Subject)
	return deleted, nil
}

// DeleteAsset removes one blob. The store does not report whether it existed.
func (s *Service) DeleteAsset(ctx context.Context, p auth.Principal, kind catalog.Kind, filename string) error {
	if err := authorize(p, rbac.ActionDelete); err != nil {
		return err
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return validationError("fileName is required")
	}
	err := util.Retry(ctx, s.retry, func() error {
		return s.blobs.Delete(ctx, kind, filename)
	})
	if err != nil {
		return upstreamError("Failed to delete file", err)
	}
	s.invalidate(ctx, cache.ListingKey(kind))
	s.log.Info("asset deleted", "kind", kind, "key", filename, "by", p.Subject)
	return nil
}

// ListAssets returns every blob of kind in storage order. Machines carry the
// metadata of the entry whose URL points at them.
func (s *Service) ListAssets(ctx context.Context, p auth.Principal, kind catalog.Kind) ([]catalog.Item, error) {
	if err := authorize(p, rbac.ActionRead); err != nil {
		return nil, err
	}
	var items []catalog.Item
	if s.cacheGet(ctx, cache.ListingKey(kind), &items) {
		return items, nil
	}

	objects, entries, err := s.snapshot(ctx, kind)
	if err != nil {
		return nil, upstreamError("Failed to list "+string(kind), err)
	}
	items = joinAssets(kind, objects, entries, s.blobs.URL)
	s.cacheSet(ctx, cache.ListingKey(kind), items)
	return items, nil
}

// snapshot lists the blobs of kind and, for kinds with metadata, the entries.
func (s *Service) snapshot(ctx context.Context, kind catalog.Kind) ([]blob.Object, []catalog.Entry, error) {
	var (
		objects []blob.Object
		entries []catalog.Entry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return util.Retry(gctx, s.retry, func() error {
			var err error
			objects, err = s.blobs.List(gctx, kind)
			return err
		})
	})
	if kind.HasMetadata() {
		g.Go(func() error {
			var err error
			entries, err = s.loadEntries(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return objects, entries, nil
}

func joinAssets(kind catalog.Kind, objects []blob.Object, entries []catalog.Entry, urlFor func(catalog.Kind, string) string) []catalog.Item {
	byURL := make(map[string]catalog.Entry, len(entries))
	for _, entry := range entries {
		if _, seen := byURL[entry.URL]; !seen {
			byURL[entry.URL] = entry
		}
	}
	items := make([]catalog.Item, 0, len(objects))
	for _, obj := range objects {
		item := catalog.Item{Name: obj.Key, URL: urlFor(kind, obj.Key), Size: obj.Size}
		if !obj.LastModified.IsZero() {
			modified := obj.LastModified.UTC()
			item.LastModified = &modified
		}
		if entry, ok := byURL[item.URL]; ok {
			item.Metadata = catalog.MetadataFromEntry(entry)
		}
		items = append(items, item)
	}
	return items
}

func (s *Service) ListEntries(ctx context.Context, p auth.Principal) ([]catalog.Entry, error) {
	if err := authorize(p, rbac.ActionRead); err != nil {
		return nil, err
	}
	entries, err := s.loadEntries(ctx)
	if err != nil {
		return nil, upstreamError("Failed to fetch machines", err)
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}
	return entries, nil
}

func (s *Service) loadEntries(ctx context.Context) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	if s.cacheGet(ctx, cache.EntriesKey, &entries) {
		return entries, nil
	}
	err := s.withRetry(ctx, "list_entries", func() error {
		var err error
		entries, err = s.store.ListEntries(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, cache.EntriesKey, entries)
	return entries, nil
}

// GetEntry returns the oldest entry stored under slug.
func (s *Service) GetEntry(ctx context.Context, p auth.Principal, rawSlug string) (catalog.Entry, error) {
	if err := authorize(p, rbac.ActionRead); err != nil {
		return catalog.Entry{}, err
	}
	slug, err := catalog.ParseSlug(rawSlug)
	if err != nil {
		return catalog.Entry{}, validationError("Missing or invalid slug parameter")
	}
	var matches []catalog.Entry
	err = s.withRetry(ctx, "find_by_slug", func() error {
		var err error
		matches, err = s.store.FindBySlug(ctx, slug)
		return err
	})
	if err != nil {
		return catalog.Entry{}, upstreamError("Internal server error", err)
	}
	if len(matches) == 0 {
		return catalog.Entry{}, notFoundError("Machine not found")
	}
	return matches[0], nil
}

// Browse filters, sorts and paginates the listing of kind.
func (s *Service) Browse(ctx context.Context, p auth.Principal, kind catalog.Kind, q catalog.Query) (catalog.Page[catalog.Item], error) {
	items, err := s.ListAssets(ctx, p, kind)
	if err != nil {
		return catalog.Page[catalog.Item]{}, err
	}
	return catalog.Browse(items, q), nil
}

func (s *Service) Search(ctx context.Context, p auth.Principal, text string, limit int) (search.Response, error) {
	if err := authorize(p, rbac.ActionRead); err != nil {
		return search.Response{}, err
	}
	q := search.Query{Text: strings.TrimSpace(text), Limit: limit}
	if s.index == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text, Backend: "none"}, nil
	}
	return s.index.Search(ctx, q), nil
}

func (s *Service) Datasheet(ctx context.Context, p auth.Principal, slug, format string) (*export.Result, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, validationError("format must be html or pdf")
	}
	entry, err := s.GetEntry(ctx, p, slug)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Datasheet(ctx, entry, f)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, upstreamError("PDF export is unavailable", err)
		}
		return nil, upstreamError("Failed to render datasheet", err)
	}
	return result, nil
}

// Report lists machine assets and entries that no longer point at each other.
type Report struct {
	OrphanedAssets  []string        `json:"orphanedAssets"`
	OrphanedEntries []catalog.Entry `json:"orphanedEntries"`
	RemovedAssets   []string        `json:"removedAssets,omitempty"`
	CheckedAt       time.Time       `json:"checkedAt"`
}

// Reconcile compares machine blobs against entries. With removeAssets set, blobs
// no entry refers to are deleted.
func (s *Service) Reconcile(ctx context.Context, p auth.Principal, removeAssets bool) (Report, error) {
	if err := authorize(p, rbac.ActionSweep); err != nil {
		return Report{}, err
	}
	kind := catalog.KindMachines
	objects, entries, err := s.snapshotFresh(ctx, kind)
	if err != nil {
		return Report{}, upstreamError("Failed to read catalog", err)
	}

	report := Report{OrphanedAssets: []string{}, OrphanedEntries: []catalog.Entry{}, CheckedAt: s.now().UTC()}
	referenced := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		referenced[entry.URL] = struct{}{}
	}
	stored := make(map[string]struct{}, len(objects))
	for _, obj := range objects {
		url := s.blobs.URL(kind, obj.Key)
		stored[url] = struct{}{}
		if _, ok := referenced[url]; !ok {
			report.OrphanedAssets = append(report.OrphanedAssets, obj.Key)
		}
	}
	for _, entry := range entries {
		if _, ok := stored[entry.URL]; !ok {
			report.OrphanedEntries = append(report.OrphanedEntries, entry)
		}
	}

	if removeAssets {
		for _, key := range report.OrphanedAssets {
			if err := s.blobs.Delete(ctx, kind, key); err != nil {
				s.log.Warn("sweep could not delete orphaned asset", "key", key, "error", err)
				continue
			}
			report.RemovedAssets = append(report.RemovedAssets, key)
		}
		if len(report.RemovedAssets) > 0 {
			s.invalidate(ctx, cache.ListingKey(kind))
		}
	}
	s.log.Info("catalog sweep finished",
		"orphaned_assets", len(report.OrphanedAssets),
		"orphaned_entries", len(report.OrphanedEntries),
		"removed_assets", len(report.RemovedAssets),
		"by", p.Subject,
	)
	return report, nil
}

// snapshotFresh bypasses the cache.
func (s *Service) snapshotFresh(ctx context.Context, kind catalog.Kind) ([]blob.Object, []catalog.Entry, error) {
	var (
		objects []blob.Object
		entries []catalog.Entry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		objects, err = s.blobs.List(gctx, kind)
		return err
	})
	g.Go(func() error {
		return s.withRetry(gctx, "list_entries", func() error {
			var err error
			entries, err = s.store.ListEntries(gctx)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return objects, entries, nil
}

// withRetry retries a store call on transient errors and records its outcome.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	err := util.Retry(ctx, s.retry, func() error {
		err := fn()
		if err != nil && !transient(err) {
			return util.Permanent(err)
		}
		return err
	})
	metrics.RecordStoreOperation(op, err)
	return err
}

func transient(err error) bool {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrSlugTaken):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func (s *Service) cacheGet(ctx context.Context, name string, dest any) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, name, dest)
	if err != nil {
		s.log.Warn("cache read failed", "key", name, "error", err)
		return false
	}
	return hit
}

func (s *Service) cacheSet(ctx context.Context, name string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, name, value); err != nil {
		s.log.Warn("cache write failed", "key", name, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, names ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, names...); err != nil {
		s.log.Warn("cache invalidation failed", "keys", names, "error", err)
	}
}
