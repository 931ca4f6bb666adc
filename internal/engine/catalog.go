package engine

import (
	"context"
	"time"
)

// Catalog provides an interface for metadata storage operations.
// Implementations must enforce the structural invariants transactionally:
// monotonic version numbers, an acyclic folder tree, at most one live lock
// per file, and atomic use-count decrement on share links.
type Catalog interface {
	// Folder operations

	// EnsureRoot returns the owner's root folder, creating it on first use.
	EnsureRoot(ctx context.Context, ownerID string) (*Folder, error)

	// CreateFolder creates a folder under an existing parent.
	CreateFolder(ctx context.Context, folder *Folder) error

	// GetFolder returns a folder by ID, or ErrNotFound.
	GetFolder(ctx context.Context, id string) (*Folder, error)

	// MoveFolder reparents a folder. Fails with ErrCycle if newParentID is
	// the folder itself or one of its descendants; the tree is left unchanged.
	MoveFolder(ctx context.Context, folderID, newParentID string) error

	// List returns one page of a folder's child folders and live files,
	// ordered by name. An empty cursor starts from the beginning.
	List(ctx context.Context, folderID, cursor string, limit int) (*Page, error)

	// File operations

	// CreateFile creates a file record with no versions yet.
	CreateFile(ctx context.Context, file *File) error

	// GetFile returns a file by ID (tombstoned files included), or ErrNotFound.
	GetFile(ctx context.Context, id string) (*File, error)

	// FindFile returns the live file with the given name in a folder,
	// or nil if none exists.
	FindFile(ctx context.Context, folderID, name string) (*File, error)

	// MoveFile moves a file into another folder.
	MoveFile(ctx context.Context, fileID, newFolderID string) error

	// TombstoneFile soft-deletes a file, retaining it for history.
	TombstoneFile(ctx context.Context, fileID string, at time.Time) error

	// PurgeFile hard-deletes a tombstoned file and its versions, returning
	// the content hashes the versions referenced so callers can reclaim
	// unshared blobs.
	PurgeFile(ctx context.Context, fileID string) ([]string, error)

	// Version operations

	// CreateVersion appends a new version in a single transaction:
	// it fails with ErrLockHeld if a live lock is held by someone other than
	// version.CreatedBy, with ErrConflict if the file's current version no
	// longer equals expectVersion, and otherwise inserts the version with
	// number expectVersion+1 and advances the file's current pointer.
	CreateVersion(ctx context.Context, version *FileVersion, expectVersion int64) error

	// GetVersion returns one version of a file, or ErrNotFound.
	GetVersion(ctx context.Context, fileID string, number int64) (*FileVersion, error)

	// ListVersions returns all versions of a file, oldest first.
	ListVersions(ctx context.Context, fileID string) ([]*FileVersion, error)

	// ListOwnerVersions returns every version belonging to an owner's files.
	// Used by master key rotation to rewrap data keys.
	ListOwnerVersions(ctx context.Context, ownerID string) ([]*FileVersion, error)

	// UpdateWrappedKey replaces the wrapped data key of a version. The only
	// permitted mutation of a version row; content fields never change.
	UpdateWrappedKey(ctx context.Context, versionID string, wrappedKey []byte) error

	// ReferencedHashes returns the set of content hashes referenced by any
	// version. Used by the orphan sweeper.
	ReferencedHashes(ctx context.Context) (map[string]struct{}, error)

	// Lock operations

	// AcquireLock takes or refreshes a lease on a file. Fails with
	// ErrLockHeld if a live lock is held by a different holder; idempotent
	// for the current holder (the TTL is refreshed).
	AcquireLock(ctx context.Context, fileID, holder string, ttl time.Duration, now time.Time) (*Lock, error)

	// ReleaseLock drops the holder's lock. Releasing a lock you do not hold
	// is a no-op.
	ReleaseLock(ctx context.Context, fileID, holder string) error

	// GetLock returns the live lock on a file, or nil if unlocked or expired.
	GetLock(ctx context.Context, fileID string, now time.Time) (*Lock, error)

	// Grant operations

	// CreateGrant records an access grant.
	CreateGrant(ctx context.Context, grant *Grant) error

	// DeleteGrant removes a grant by ID.
	DeleteGrant(ctx context.Context, grantID string) error

	// GrantChain returns the grants attached to the target and to each of
	// its ancestor folders, nearest first. The first element is always the
	// target's own grants (possibly empty).
	GrantChain(ctx context.Context, target Ref) ([][]*Grant, error)

	// Owner returns the owner ID of a file or folder.
	Owner(ctx context.Context, target Ref) (string, error)

	// Share link operations

	// CreateLink stores a freshly issued share link.
	CreateLink(ctx context.Context, link *ShareLink) error

	// GetLink returns a link by token, or ErrLinkInvalid.
	GetLink(ctx context.Context, token string) (*ShareLink, error)

	// ConsumeLink validates a link and, when a use count is set, decrements
	// it atomically. Exactly N resolutions of a max-uses=N link succeed, even
	// under concurrent attempts; the next fails with ErrLinkExpired.
	ConsumeLink(ctx context.Context, token string, now time.Time) (*ShareLink, error)

	// RevokeLink permanently revokes a link. Revoking an already revoked
	// link is a no-op.
	RevokeLink(ctx context.Context, token string) error

	// Audit operations

	// AppendAudit appends one entry to the history log.
	AppendAudit(ctx context.Context, entry *AuditEntry) error

	// QueryAudit returns one page of audit entries for a target within
	// [from, to], ordered by time ascending, resumable via cursor.
	QueryAudit(ctx context.Context, target Ref, from, to time.Time, cursor string, limit int) (*AuditPage, error)

	// ActivitySummary aggregates the log into per-actor, per-action, per-day
	// counts within [from, to]. A read-side projection; the log itself is
	// never mutated.
	ActivitySummary(ctx context.Context, from, to time.Time) ([]ActivityBucket, error)

	// Close closes the catalog.
	Close() error
}
