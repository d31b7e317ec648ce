package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"medcatalog/api/internal/catalog"
)

const entryColumns = `id, name, slug, metadata, extension, url, created_by, created_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (catalog.Entry, error) {
	var record EntryRecord
	if err := row.Scan(&record.ID, &record.Name, &record.Slug, &record.Metadata, &record.Extension, &record.URL, &record.CreatedBy, &record.CreatedAt); err != nil {
		return catalog.Entry{}, err
	}
	return record.Entry()
}

// lockSlug serializes writers of one slug for the rest of tx.
func lockSlug(ctx context.Context, tx *sql.Tx, slug string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('catalog_entries:' || $1))`, slug); err != nil {
		return fmt.Errorf("lock slug: %w", err)
	}
	return nil
}

// InsertEntry persists entry and returns it with its generated id and timestamp.
// A slug already present fails with ErrSlugTaken.
func (s *PostgresStore) InsertEntry(ctx context.Context, entry catalog.Entry) (catalog.Entry, error) {
	record, err := recordFromEntry(entry)
	if err != nil {
		return catalog.Entry{}, err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("begin insert entry: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockSlug(ctx, tx, record.Slug); err != nil {
		return catalog.Entry{}, err
	}
	var taken bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM catalog_entries WHERE slug=$1)`, record.Slug).Scan(&taken); err != nil {
		return catalog.Entry{}, fmt.Errorf("check slug: %w", err)
	}
	if taken {
		return catalog.Entry{}, ErrSlugTaken
	}

	created, err := scanEntry(tx.QueryRowContext(ctx, `
		INSERT INTO catalog_entries (name, slug, metadata, extension, url, created_by, created_at)
		VALUES ($1, $2, $3::json, $4, $5, $6, $7)
		RETURNING `+entryColumns,
		record.Name, record.Slug, string(record.Metadata), record.Extension, record.URL, record.CreatedBy, record.CreatedAt,
	))
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return catalog.Entry{}, fmt.Errorf("commit insert entry: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM catalog_entries WHERE slug=$1)`, slug).Scan(&exists); err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListEntries(ctx context.Context) ([]catalog.Entry, error) {
	return s.queryEntries(ctx, "list entries", `SELECT `+entryColumns+` FROM catalog_entries ORDER BY created_at, id`)
}

// FindBySlug returns every entry stored under slug, oldest first.
func (s *PostgresStore) FindBySlug(ctx context.Context, slug string) ([]catalog.Entry, error) {
	return s.queryEntries(ctx, "find entries", `
		SELECT `+entryColumns+`
		FROM catalog_entries
		WHERE slug=$1
		ORDER BY created_at, id
	`, slug)
}

// SearchEntries matches query as a case-insensitive substring of the name,
// description or category.
func (s *PostgresStore) SearchEntries(ctx context.Context, query string, limit int) ([]catalog.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return s.queryEntries(ctx, "search entries", `
		SELECT `+entryColumns+`
		FROM catalog_entries
		WHERE LOWER(name) LIKE $1
			OR LOWER(COALESCE(metadata->>'description', '')) LIKE $1
			OR LOWER(COALESCE(metadata->>'category', '')) LIKE $1
		ORDER BY created_at, id
		LIMIT $2
	`, pattern, limit)
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func (s *PostgresStore) queryEntries(ctx context.Context, op, query string, args ...any) ([]catalog.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]catalog.Entry, 0)
	for rows.Next() {
		item, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return items, nil
}

// DeleteBySlug removes every entry under slug in one transaction and returns
// what was removed. Nothing to delete is ErrNotFound.
func (s *PostgresStore) DeleteBySlug(ctx context.Context, slug string) ([]catalog.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete entries: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockSlug(ctx, tx, slug); err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, `DELETE FROM catalog_entries WHERE slug=$1 RETURNING `+entryColumns, slug)
	if err != nil {
		return nil, fmt.Errorf("delete entries: %w", err)
	}
	deleted := make([]catalog.Entry, 0)
	for rows.Next() {
		item, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan deleted entry: %w", err)
		}
		deleted = append(deleted, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate deleted entries: %w", err)
	}
	rows.Close()

	if len(deleted) == 0 {
		return nil, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete entries: %w", err)
	}
	return deleted, nil
}

// IsNotFound reports whether err means the requested entry does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}
