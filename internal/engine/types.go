package engine

import "time"

// Role is the coarse account role assigned by the identity provider.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleGuest  Role = "guest"
)

// Actor identifies who is performing an operation. Authentication happens
// upstream; the engine trusts the identity it is handed.
type Actor struct {
	ID   string
	Role Role
}

// RefKind distinguishes file targets from folder targets.
type RefKind string

const (
	KindFile   RefKind = "file"
	KindFolder RefKind = "folder"
)

// Ref points at a file or folder.
type Ref struct {
	Kind RefKind
	ID   string
}

func FileRef(id string) Ref   { return Ref{Kind: KindFile, ID: id} }
func FolderRef(id string) Ref { return Ref{Kind: KindFolder, ID: id} }

// Folder is a node in an owner's folder tree. ParentID is empty for the
// owner's root folder; every other folder has exactly one parent.
type Folder struct {
	ID        string
	OwnerID   string
	ParentID  string // empty for root
	Name      string
	CreatedAt time.Time
}

// File is a named entry in a folder. Its bytes live in the blob store,
// addressed by the content hash of its current version; the File row itself
// only carries identity and state.
type File struct {
	ID             string
	FolderID       string
	OwnerID        string
	Name           string
	MimeType       string
	Size           int64 // plaintext size of the current version
	CurrentVersion int64 // 0 until the first version is written
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Tombstoned reports whether the file has been soft-deleted.
func (f *File) Tombstoned() bool { return f.DeletedAt != nil }

// FileVersion is an immutable snapshot of a file's content. Version numbers
// are monotonic per file, never reused, never mutated after creation.
// WrappedKey is the version's data key encrypted under the owner's master key.
type FileVersion struct {
	ID          string
	FileID      string
	Version     int64
	ContentHash string // SHA-256 of the stored ciphertext
	WrappedKey  []byte
	Size        int64 // plaintext size
	CreatedBy   string
	CreatedAt   time.Time
}

// Lock is a lease on a file. At most one unexpired lock exists per file;
// writes by anyone but the holder fail while it is live.
type Lock struct {
	FileID     string
	Holder     string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Live reports whether the lock is still in force at the given instant.
func (l *Lock) Live(now time.Time) bool { return now.Before(l.ExpiresAt) }

// Permission is a single capability on a file or folder.
type Permission string

const (
	PermRead   Permission = "read"
	PermWrite  Permission = "write"
	PermShare  Permission = "share"
	PermDelete Permission = "delete"
)

// Effect says whether a grant allows or denies its permissions.
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// SubjectKind distinguishes user grants from role grants.
type SubjectKind string

const (
	SubjectUser SubjectKind = "user"
	SubjectRole SubjectKind = "role"
)

// Grant gives (or withholds) permissions on a target to a user or role.
// Grants on folders are inherited by everything beneath them.
type Grant struct {
	ID          string
	SubjectKind SubjectKind
	Subject     string // user ID or role name
	Target      Ref
	Permissions []Permission
	Effect      Effect
	GrantedBy   string
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// Covers reports whether the grant applies to the actor and permission at
// the given instant.
func (g *Grant) Covers(actor Actor, perm Permission, now time.Time) bool {
	if g.ExpiresAt != nil && !now.Before(*g.ExpiresAt) {
		return false
	}
	switch g.SubjectKind {
	case SubjectUser:
		if g.Subject != actor.ID {
			return false
		}
	case SubjectRole:
		if g.Subject != string(actor.Role) {
			return false
		}
	default:
		return false
	}
	for _, p := range g.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// LinkScope is the permission scope carried by a share link.
type LinkScope string

const (
	ScopeReadOnly  LinkScope = "read-only"
	ScopeReadWrite LinkScope = "read-write"
)

// ShareLink is an unguessable token granting scoped access to a target.
// A consumed, expired or revoked link is permanently unusable.
type ShareLink struct {
	Token     string
	Target    Ref
	Scope     LinkScope
	IssuedBy  string
	ExpiresAt *time.Time
	UsesLeft  *int64 // nil means unlimited
	Revoked   bool
	CreatedAt time.Time
}

// AuditEntry is one immutable record in the append-only history log.
type AuditEntry struct {
	ID        int64
	Actor     string
	Action    string
	Target    Ref
	Result    string // "success", "denied" or an error code
	Detail    string
	CreatedAt time.Time
}

// Entry is one row of a folder listing.
type Entry struct {
	Ref     Ref
	Name    string
	Size    int64
	Version int64
}

// Page is one page of a folder listing. Cursor is empty on the last page;
// otherwise passing it back to List resumes where this page ended.
type Page struct {
	Entries []Entry
	Cursor  string
}

// AuditPage is one page of a history query, ordered by time ascending.
type AuditPage struct {
	Entries []AuditEntry
	Cursor  string
}

// ActivityBucket is one row of the analytics projection: how many times an
// actor performed an action on a given day.
type ActivityBucket struct {
	Actor  string
	Action string
	Day    string // YYYY-MM-DD (UTC)
	Count  int64
}
