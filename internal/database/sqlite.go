package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fontkit/font-manager/internal/database/migrations"
	"github.com/fontkit/font-manager/pkg/fm"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Memory is the path that selects an in-memory cache.
const Memory = ":memory:"

// Cache implements fm.Cache on top of SQLite.
type Cache struct {
	db   *sql.DB
	path string
}

var _ fm.Cache = (*Cache)(nil)

const fontColumns = `owner, filepath, filetype, filesize, modified, checksum, psname,
	family, style, foundry, copyright, version, description, license_data,
	license_url, panose, findex, pfamily, pstyle, pvariant, pweight, pstretch, pdescr`

var orderColumns = map[string]string{
	"":                 "family, style, filepath, findex",
	fm.OrderByFamily:   "family, style, filepath, findex",
	fm.OrderByStyle:    "style, family, filepath, findex",
	fm.OrderByFilepath: "filepath, findex",
	fm.OrderByFoundry:  "foundry, family, style",
	fm.OrderByFilesize: "filesize, filepath, findex",
}

// Open opens the cache at path, applying migrations. A cache whose schema
// cannot be migrated forward is deleted and recreated.
func Open(path string) (*Cache, error) {
	if path != Memory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if _, err := migrations.CheckStatus(db); err != nil {
		if !errors.Is(err, migrations.ErrStale) || path == Memory {
			db.Close()
			return nil, fmt.Errorf("checking cache schema: %w", err)
		}
		db.Close()
		if err := removeFiles(path); err != nil {
			return nil, err
		}
		if db, err = OpenConnection(path); err != nil {
			return nil, err
		}
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating cache: %w", err)
	}

	return &Cache{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: SQLite has a single writer and every :memory:
	// connection would otherwise see its own empty database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring database: %w", err)
	}
	return db, nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Remove closes the cache and deletes its file. The next Open starts empty.
func (c *Cache) Remove() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("closing cache: %w", err)
	}
	if c.path == Memory {
		return nil
	}
	return removeFiles(c.path)
}

func removeFiles(path string) error {
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecords(ctx context.Context, ex execer, records []fm.FontRecord) error {
	query := `INSERT OR REPLACE INTO fonts (` + fontColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for i := range records {
		r := &records[i]
		_, err := ex.ExecContext(ctx, query,
			int(r.Owner), r.Filepath, r.Filetype, r.Filesize, r.Modified.Unix(), r.Checksum, r.PSName,
			r.Family, r.Style, r.Foundry, r.Copyright, r.Version, r.Description, r.LicenseData,
			r.LicenseURL, r.Panose, r.FaceIndex, r.PFamily, r.PStyle, r.PVariant, r.PWeight, r.PStretch, r.PDescription)
		if err != nil {
			return fmt.Errorf("inserting %s: %w", r.Key(), err)
		}
	}
	return nil
}

// Insert upserts records.
func (c *Cache) Insert(ctx context.Context, records ...fm.FontRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRecords(ctx, tx, records); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Replace deletes every record and inserts records in one transaction.
func (c *Cache) Replace(ctx context.Context, records []fm.FontRecord) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fonts`); err != nil {
		return fmt.Errorf("clearing fonts: %w", err)
	}
	if err := insertRecords(ctx, tx, records); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Delete removes every face of the given files.
func (c *Cache) Delete(ctx context.Context, filepaths ...string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range filepaths {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fonts WHERE filepath = ?`, p); err != nil {
			return fmt.Errorf("deleting %s: %w", p, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Query returns the records matching filter.
func (c *Cache) Query(ctx context.Context, filter fm.Filter) ([]fm.FontRecord, error) {
	order, ok := orderColumns[filter.OrderBy]
	if !ok {
		return nil, fmt.Errorf("unsupported order column %q", filter.OrderBy)
	}

	var (
		where []string
		args  []any
	)
	add := func(clause string, values ...any) {
		where = append(where, clause)
		args = append(args, values...)
	}
	if filter.Family != "" {
		add("family = ?", filter.Family)
	}
	if filter.Style != "" {
		add("style = ?", filter.Style)
	}
	if filter.Owner != nil {
		add("owner = ?", int(*filter.Owner))
	}
	if filter.Foundry != "" {
		add("foundry = ?", filter.Foundry)
	}
	if filter.Checksum != "" {
		add("checksum = ?", filter.Checksum)
	}
	if filter.PathPrefix != "" {
		add(`filepath LIKE ? ESCAPE '\'`, escapeLike(filter.PathPrefix)+"%")
	}
	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		add(`(family LIKE ? ESCAPE '\' OR style LIKE ? ESCAPE '\' OR foundry LIKE ? ESCAPE '\' OR psname LIKE ? ESCAPE '\')`,
			pattern, pattern, pattern, pattern)
	}

	query := `SELECT ` + fontColumns + ` FROM fonts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ` + order
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying fonts: %w", err)
	}
	defer rows.Close()

	var records []fm.FontRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading fonts: %w", err)
	}
	return records, nil
}

// Get returns a single face, or nil when it is not cached.
func (c *Cache) Get(ctx context.Context, path string, index int) (*fm.FontRecord, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+fontColumns+` FROM fonts WHERE filepath = ? AND findex = ?`, path, index)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// FindByChecksum returns every face whose file has the given checksum.
func (c *Cache) FindByChecksum(ctx context.Context, checksum string) ([]fm.FontRecord, error) {
	return c.Query(ctx, fm.Filter{Checksum: checksum, OrderBy: fm.OrderByFilepath})
}

// Families returns the distinct family names in the cache.
func (c *Cache) Families(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT family FROM fonts ORDER BY family`)
	if err != nil {
		return nil, fmt.Errorf("querying families: %w", err)
	}
	defer rows.Close()

	var families []string
	for rows.Next() {
		var family string
		if err := rows.Scan(&family); err != nil {
			return nil, fmt.Errorf("scanning family: %w", err)
		}
		families = append(families, family)
	}
	return families, rows.Err()
}

// Count returns the number of cached faces.
func (c *Cache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fonts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting fonts: %w", err)
	}
	return n, nil
}

// Fingerprint returns the stored scan fingerprint and scan time. Both are
// zero when no scan was recorded.
func (c *Cache) Fingerprint(ctx context.Context) (string, time.Time, error) {
	var fingerprint, scanned string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'fingerprint'`).Scan(&fingerprint)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, fmt.Errorf("reading fingerprint: %w", err)
	}
	err = c.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'scanned_at'`).Scan(&scanned)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, fmt.Errorf("reading scan time: %w", err)
	}

	var scannedAt time.Time
	if scanned != "" {
		if scannedAt, err = time.Parse(time.RFC3339, scanned); err != nil {
			return "", time.Time{}, fmt.Errorf("parsing scan time: %w", err)
		}
	}
	return fingerprint, scannedAt, nil
}

// SetFingerprint records the fingerprint of the latest scan.
func (c *Cache) SetFingerprint(ctx context.Context, fingerprint string, scannedAt time.Time) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`
	if _, err := tx.ExecContext(ctx, upsert, "fingerprint", fingerprint); err != nil {
		return fmt.Errorf("writing fingerprint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, "scanned_at", scannedAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("writing scan time: %w", err)
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (fm.FontRecord, error) {
	var (
		r        fm.FontRecord
		owner    int
		modified int64
	)
	err := s.Scan(&owner, &r.Filepath, &r.Filetype, &r.Filesize, &modified, &r.Checksum, &r.PSName,
		&r.Family, &r.Style, &r.Foundry, &r.Copyright, &r.Version, &r.Description, &r.LicenseData,
		&r.LicenseURL, &r.Panose, &r.FaceIndex, &r.PFamily, &r.PStyle, &r.PVariant, &r.PWeight, &r.PStretch, &r.PDescription)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scanning font row: %w", err)
	}
	r.Owner = fm.Owner(owner)
	r.Modified = time.Unix(modified, 0)
	return r, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
