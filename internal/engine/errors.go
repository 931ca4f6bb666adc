package engine

import "errors"

// Sentinel errors for the engine. Callers match with errors.Is; every error
// surfaced by an operation wraps exactly one of these so results are
// machine-distinguishable.
var (
	// ErrDenied is returned when access control rejects an operation.
	// Not retryable without new grants.
	ErrDenied = errors.New("access denied")

	// ErrNotFound is returned when a file, folder, version or blob does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLockHeld is returned when a file is locked by another holder.
	// Retryable once the lease is released or expires.
	ErrLockHeld = errors.New("file locked by another holder")

	// ErrConflict is returned when a compare-and-swap on a file's version
	// counter loses a race. Retryable with fresh state.
	ErrConflict = errors.New("concurrent modification")

	// ErrCycle is returned when a move would make a folder its own descendant.
	ErrCycle = errors.New("move would create a cycle")

	// ErrIntegrity is returned when ciphertext fails authentication.
	// Never retried: the stored bytes are corrupt or tampered with.
	ErrIntegrity = errors.New("content integrity check failed")

	// ErrStorage is returned when a storage backend is unavailable.
	// Retryable with backoff.
	ErrStorage = errors.New("storage unavailable")

	// ErrLinkExpired is returned when a share link is past its expiry or has
	// exhausted its use count.
	ErrLinkExpired = errors.New("share link expired")

	// ErrLinkRevoked is returned when a share link has been revoked.
	ErrLinkRevoked = errors.New("share link revoked")

	// ErrLinkInvalid is returned when a share link token is unknown.
	ErrLinkInvalid = errors.New("share link invalid")
)

// ErrorCode returns a stable machine-readable code for an engine error,
// or "internal" if the error does not wrap a known sentinel.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrDenied):
		return "denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrLockHeld):
		return "lock_held"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrCycle):
		return "cycle"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrStorage):
		return "storage_unavailable"
	case errors.Is(err, ErrLinkExpired):
		return "link_expired"
	case errors.Is(err, ErrLinkRevoked):
		return "link_revoked"
	case errors.Is(err, ErrLinkInvalid):
		return "link_invalid"
	default:
		return "internal"
	}
}

// Retryable reports whether the caller may retry the operation that produced
// err. Contention and storage outages are retryable; denials, validation
// failures and integrity failures are not.
func Retryable(err error) bool {
	return errors.Is(err, ErrLockHeld) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrStorage)
}
