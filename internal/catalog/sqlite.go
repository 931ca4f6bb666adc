package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"strongbox/internal/catalog/migrations"
	"strongbox/internal/engine"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteCatalog implements the engine.Catalog interface using SQLite.
// All multi-step invariants (version CAS, lock leases, cycle checks, link
// use counts) are enforced inside transactions on a single connection pool,
// so concurrent engine workers cannot observe intermediate states.
type SQLiteCatalog struct {
	db   *sql.DB
	path string
}

// NewSQLiteCatalog opens (or creates) a catalog at path.
// path can be a file path or ":memory:" for an in-memory catalog.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteCatalog{db: db, path: path}, nil
}

// NewSQLiteCatalogFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteCatalogFromDB(db *sql.DB) *SQLiteCatalog {
	return &SQLiteCatalog{db: db}
}

// OpenConnection opens and configures a SQLite connection with the PRAGMAs
// the catalog depends on. Exported for tools and tests.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Foreign keys are OFF by default in SQLite for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Concurrent engine workers share this pool; wait for row locks instead
	// of failing immediately with SQLITE_BUSY.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty
	// database, so in-memory catalogs must stay on a single connection.
	if strings.Contains(path, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	return db, nil
}

// Migrate brings the catalog schema to the latest version.
func (c *SQLiteCatalog) Migrate() error {
	return migrations.Up(c.db)
}

// CheckMigrations verifies the catalog schema is up-to-date.
func (c *SQLiteCatalog) CheckMigrations() error {
	return migrations.CheckStatus(c.db)
}

// Path returns the database file path (or ":memory:").
func (c *SQLiteCatalog) Path() string { return c.path }

// Close closes the database connection.
func (c *SQLiteCatalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Folder operations

func (c *SQLiteCatalog) EnsureRoot(ctx context.Context, ownerID string) (*engine.Folder, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	folder, err := scanFolder(tx.QueryRowContext(ctx,
		`SELECT id, owner_id, parent_id, name, created_at FROM folders WHERE owner_id = ? AND parent_id IS NULL`, ownerID))
	if err == nil {
		return folder, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("finding root folder: %w", err)
	}

	folder = &engine.Folder{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      "root",
		CreatedAt: time.Now(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO folders (id, owner_id, parent_id, name, created_at) VALUES (?, ?, NULL, ?, ?)`,
		folder.ID, folder.OwnerID, folder.Name, folder.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating root folder: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return folder, nil
}

func (c *SQLiteCatalog) CreateFolder(ctx context.Context, folder *engine.Folder) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO folders (id, owner_id, parent_id, name, created_at) VALUES (?, ?, ?, ?, ?)`,
		folder.ID, folder.OwnerID, folder.ParentID, folder.Name, folder.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting folder: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) GetFolder(ctx context.Context, id string) (*engine.Folder, error) {
	folder, err := scanFolder(c.db.QueryRowContext(ctx,
		`SELECT id, owner_id, parent_id, name, created_at FROM folders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %s: %w", id, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding folder: %w", err)
	}
	return folder, nil
}

// MoveFolder reparents a folder after walking the destination's ancestor
// chain. The check and the update share one transaction, so a concurrent
// move cannot slip a cycle past it.
func (c *SQLiteCatalog) MoveFolder(ctx context.Context, folderID, newParentID string) error {
	if folderID == newParentID {
		return fmt.Errorf("folder %s into itself: %w", folderID, engine.ErrCycle)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := folderExists(ctx, tx, folderID); err != nil {
		return err
	}

	// Walk up from the destination; hitting the moved folder means the
	// destination is one of its descendants.
	ancestor := newParentID
	for ancestor != "" {
		if ancestor == folderID {
			return fmt.Errorf("folder %s under its descendant %s: %w", folderID, newParentID, engine.ErrCycle)
		}
		var parent sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT parent_id FROM folders WHERE id = ?`, ancestor).Scan(&parent)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("folder %s: %w", ancestor, engine.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("walking ancestors: %w", err)
		}
		ancestor = parent.String
	}

	if _, err := tx.ExecContext(ctx, `UPDATE folders SET parent_id = ? WHERE id = ?`, newParentID, folderID); err != nil {
		return fmt.Errorf("updating folder parent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// List returns one page of child folders and live files ordered by name.
// The cursor carries the (name, kind) of the last returned entry so a
// restarted listing resumes exactly where it stopped.
func (c *SQLiteCatalog) List(ctx context.Context, folderID, cursor string, limit int) (*engine.Page, error) {
	if limit <= 0 {
		limit = 100
	}

	if err := folderExists(ctx, c.db, folderID); err != nil {
		return nil, err
	}

	curName, curKind := decodeListCursor(cursor)

	rows, err := c.db.QueryContext(ctx, `
		SELECT kind, id, name, size, version FROM (
			SELECT 'folder' AS kind, id, name, 0 AS size, 0 AS version
			FROM folders WHERE parent_id = ?
			UNION ALL
			SELECT 'file' AS kind, id, name, size, current_version AS version
			FROM files WHERE folder_id = ? AND deleted_at IS NULL
		)
		WHERE name > ? OR (name = ? AND kind > ?)
		ORDER BY name, kind
		LIMIT ?`,
		folderID, folderID, curName, curName, curKind, limit+1)
	if err != nil {
		return nil, fmt.Errorf("listing folder: %w", err)
	}
	defer rows.Close()

	page := &engine.Page{}
	for rows.Next() {
		var kind, id, name string
		var size, version int64
		if err := rows.Scan(&kind, &id, &name, &size, &version); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		page.Entries = append(page.Entries, engine.Entry{
			Ref:     engine.Ref{Kind: engine.RefKind(kind), ID: id},
			Name:    name,
			Size:    size,
			Version: version,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing folder: %w", err)
	}

	if len(page.Entries) > limit {
		page.Entries = page.Entries[:limit]
		last := page.Entries[limit-1]
		page.Cursor = encodeListCursor(last.Name, string(last.Ref.Kind))
	}
	return page, nil
}

// File operations

func (c *SQLiteCatalog) CreateFile(ctx context.Context, file *engine.File) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO files (id, folder_id, owner_id, name, mime_type, size, current_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.FolderID, file.OwnerID, file.Name, file.MimeType, file.Size, file.CurrentVersion, file.CreatedAt, file.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting file: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) GetFile(ctx context.Context, id string) (*engine.File, error) {
	file, err := scanFile(c.db.QueryRowContext(ctx, selectFile+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %s: %w", id, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	return file, nil
}

func (c *SQLiteCatalog) FindFile(ctx context.Context, folderID, name string) (*engine.File, error) {
	file, err := scanFile(c.db.QueryRowContext(ctx,
		selectFile+` WHERE folder_id = ? AND name = ? AND deleted_at IS NULL`, folderID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding file by name: %w", err)
	}
	return file, nil
}

func (c *SQLiteCatalog) MoveFile(ctx context.Context, fileID, newFolderID string) error {
	if err := folderExists(ctx, c.db, newFolderID); err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx,
		`UPDATE files SET folder_id = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		newFolderID, time.Now(), fileID)
	if err != nil {
		return fmt.Errorf("moving file: %w", err)
	}
	return requireRow(res, fmt.Sprintf("file %s", fileID))
}

func (c *SQLiteCatalog) TombstoneFile(ctx context.Context, fileID string, at time.Time) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE files SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		at, at, fileID)
	if err != nil {
		return fmt.Errorf("tombstoning file: %w", err)
	}
	return requireRow(res, fmt.Sprintf("file %s", fileID))
}

func (c *SQLiteCatalog) PurgeFile(ctx context.Context, fileID string) ([]string, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT content_hash FROM file_versions WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, fmt.Errorf("collecting content hashes: %w", err)
	}
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("collecting content hashes: %w", err)
	}

	for _, stmt := range []string{
		`DELETE FROM file_versions WHERE file_id = ?`,
		`DELETE FROM locks WHERE file_id = ?`,
		`DELETE FROM grants WHERE target_kind = 'file' AND target_id = ?`,
		`DELETE FROM share_links WHERE target_kind = 'file' AND target_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, fileID); err != nil {
			return nil, fmt.Errorf("purging file records: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	if err != nil {
		return nil, fmt.Errorf("deleting file: %w", err)
	}
	if err := requireRow(res, fmt.Sprintf("file %s", fileID)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return hashes, nil
}

// Version operations

// CreateVersion appends a version atomically:
//  1. the file must exist and not be tombstoned,
//  2. a live lock held by someone else fails with ErrLockHeld,
//  3. the file's current version must still equal expectVersion (CAS),
//     otherwise ErrConflict tells the caller to retry with fresh state,
//  4. the version row is inserted and the file's pointer advanced.
func (c *SQLiteCatalog) CreateVersion(ctx context.Context, version *engine.FileVersion, expectVersion int64) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var current int64
	var deletedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT current_version, deleted_at FROM files WHERE id = ?`, version.FileID).
		Scan(&current, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("file %s: %w", version.FileID, engine.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading file: %w", err)
	}
	if deletedAt.Valid {
		return fmt.Errorf("file %s is deleted: %w", version.FileID, engine.ErrNotFound)
	}

	var holder string
	var expiresAt time.Time
	err = tx.QueryRowContext(ctx, `SELECT holder, expires_at FROM locks WHERE file_id = ?`, version.FileID).
		Scan(&holder, &expiresAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking lock: %w", err)
	}
	if err == nil && version.CreatedAt.Before(expiresAt) && holder != version.CreatedBy {
		return fmt.Errorf("file %s held by %s: %w", version.FileID, holder, engine.ErrLockHeld)
	}

	if current != expectVersion {
		return fmt.Errorf("file %s at version %d, expected %d: %w", version.FileID, current, expectVersion, engine.ErrConflict)
	}

	version.Version = expectVersion + 1
	_, err = tx.ExecContext(ctx,
		`INSERT INTO file_versions (id, file_id, version, content_hash, wrapped_key, size, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		version.ID, version.FileID, version.Version, version.ContentHash, version.WrappedKey, version.Size, version.CreatedBy, version.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE files SET current_version = ?, size = ?, updated_at = ? WHERE id = ?`,
		version.Version, version.Size, version.CreatedAt, version.FileID)
	if err != nil {
		return fmt.Errorf("advancing current version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) GetVersion(ctx context.Context, fileID string, number int64) (*engine.FileVersion, error) {
	v, err := scanVersion(c.db.QueryRowContext(ctx,
		selectVersion+` WHERE file_id = ? AND version = ?`, fileID, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("version %d of file %s: %w", number, fileID, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("finding version: %w", err)
	}
	return v, nil
}

func (c *SQLiteCatalog) ListVersions(ctx context.Context, fileID string) ([]*engine.FileVersion, error) {
	return c.queryVersions(ctx, selectVersion+` WHERE file_id = ? ORDER BY version`, fileID)
}

func (c *SQLiteCatalog) ListOwnerVersions(ctx context.Context, ownerID string) ([]*engine.FileVersion, error) {
	return c.queryVersions(ctx,
		selectVersion+` WHERE file_id IN (SELECT id FROM files WHERE owner_id = ?) ORDER BY file_id, version`, ownerID)
}

func (c *SQLiteCatalog) queryVersions(ctx context.Context, query string, args ...any) ([]*engine.FileVersion, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var versions []*engine.FileVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	return versions, nil
}

func (c *SQLiteCatalog) UpdateWrappedKey(ctx context.Context, versionID string, wrappedKey []byte) error {
	res, err := c.db.ExecContext(ctx, `UPDATE file_versions SET wrapped_key = ? WHERE id = ?`, wrappedKey, versionID)
	if err != nil {
		return fmt.Errorf("updating wrapped key: %w", err)
	}
	return requireRow(res, fmt.Sprintf("version %s", versionID))
}

func (c *SQLiteCatalog) ReferencedHashes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT content_hash FROM file_versions`)
	if err != nil {
		return nil, fmt.Errorf("listing referenced hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scanning hash: %w", err)
		}
		hashes[h] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing referenced hashes: %w", err)
	}
	return hashes, nil
}

// Lock operations

func (c *SQLiteCatalog) AcquireLock(ctx context.Context, fileID, holder string, ttl time.Duration, now time.Time) (*engine.Lock, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM files WHERE id = ? AND deleted_at IS NULL`, fileID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %s: %w", fileID, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading file: %w", err)
	}

	lock := &engine.Lock{FileID: fileID, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}

	var curHolder string
	var curAcquired, curExpires time.Time
	err = tx.QueryRowContext(ctx, `SELECT holder, acquired_at, expires_at FROM locks WHERE file_id = ?`, fileID).
		Scan(&curHolder, &curAcquired, &curExpires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO locks (file_id, holder, acquired_at, expires_at) VALUES (?, ?, ?, ?)`,
			fileID, holder, lock.AcquiredAt, lock.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("inserting lock: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("loading lock: %w", err)
	case curHolder != holder && now.Before(curExpires):
		return nil, fmt.Errorf("file %s held by %s: %w", fileID, curHolder, engine.ErrLockHeld)
	default:
		// Either our own lease (refresh the TTL, keep the original acquire
		// time) or an expired lease from a crashed holder (take it over).
		if curHolder == holder && now.Before(curExpires) {
			lock.AcquiredAt = curAcquired
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE locks SET holder = ?, acquired_at = ?, expires_at = ? WHERE file_id = ?`,
			holder, lock.AcquiredAt, lock.ExpiresAt, fileID)
		if err != nil {
			return nil, fmt.Errorf("updating lock: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return lock, nil
}

func (c *SQLiteCatalog) ReleaseLock(ctx context.Context, fileID, holder string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM locks WHERE file_id = ? AND holder = ?`, fileID, holder); err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) GetLock(ctx context.Context, fileID string, now time.Time) (*engine.Lock, error) {
	lock := &engine.Lock{FileID: fileID}
	err := c.db.QueryRowContext(ctx, `SELECT holder, acquired_at, expires_at FROM locks WHERE file_id = ?`, fileID).
		Scan(&lock.Holder, &lock.AcquiredAt, &lock.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading lock: %w", err)
	}
	if !lock.Live(now) {
		return nil, nil
	}
	return lock, nil
}

// Row helpers

const selectFile = `SELECT id, folder_id, owner_id, name, mime_type, size, current_version, deleted_at, created_at, updated_at FROM files`
const selectVersion = `SELECT id, file_id, version, content_hash, wrapped_key, size, created_by, created_at FROM file_versions`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFolder(row rowScanner) (*engine.Folder, error) {
	var f engine.Folder
	var parent sql.NullString
	if err := row.Scan(&f.ID, &f.OwnerID, &parent, &f.Name, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.ParentID = parent.String
	return &f, nil
}

func scanFile(row rowScanner) (*engine.File, error) {
	var f engine.File
	var deleted sql.NullTime
	if err := row.Scan(&f.ID, &f.FolderID, &f.OwnerID, &f.Name, &f.MimeType, &f.Size, &f.CurrentVersion, &deleted, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if deleted.Valid {
		t := deleted.Time
		f.DeletedAt = &t
	}
	return &f, nil
}

func scanVersion(row rowScanner) (*engine.FileVersion, error) {
	var v engine.FileVersion
	if err := row.Scan(&v.ID, &v.FileID, &v.Version, &v.ContentHash, &v.WrappedKey, &v.Size, &v.CreatedBy, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func folderExists(ctx context.Context, q querier, folderID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM folders WHERE id = ?`, folderID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("folder %s: %w", folderID, engine.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("finding folder: %w", err)
	}
	return nil
}

// requireRow converts a zero-row UPDATE/DELETE into ErrNotFound.
func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, engine.ErrNotFound)
	}
	return nil
}

// List cursors encode "name\x00kind" so a folder and a file with the same
// name cannot be skipped across a page boundary.

func encodeListCursor(name, kind string) string {
	return name + "\x00" + kind
}

func decodeListCursor(cursor string) (name, kind string) {
	if cursor == "" {
		return "", ""
	}
	if i := strings.IndexByte(cursor, 0); i >= 0 {
		return cursor[:i], cursor[i+1:]
	}
	return cursor, ""
}

// Compile-time check that SQLiteCatalog implements engine.Catalog.
var _ engine.Catalog = (*SQLiteCatalog)(nil)
