package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

// blobRetries is how many times transient storage errors are retried
// internally before surfacing to the caller.
const blobRetries = 3

// Engine coordinates the catalog, blob store, crypto and audit log to
// perform the high-level storage and sharing operations.
//
// Every operation follows the same shape: access check first, then the
// catalog/crypto/store work, then a synchronous audit append. A failed audit
// append fails the operation, so nothing mutates without a trace.
type Engine struct {
	catalog Catalog
	store   BlobStore
	sealer  Sealer
	keyring Keyring
	logger  Logger
	clock   Clock
	idgen   IDGenerator
	tokens  TokenSource

	// retryDelay is the base backoff between blob store retries.
	// Tests set it to zero.
	retryDelay time.Duration
}

// NewEngine creates a new Engine with the provided dependencies.
func NewEngine(catalog Catalog, store BlobStore, sealer Sealer, keyring Keyring, logger Logger, clock Clock, idgen IDGenerator, tokens TokenSource) *Engine {
	return &Engine{
		catalog:    catalog,
		store:      store,
		sealer:     sealer,
		keyring:    keyring,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
		tokens:     tokens,
		retryDelay: 100 * time.Millisecond,
	}
}

// SetRetryDelay overrides the base backoff between storage retries.
func (e *Engine) SetRetryDelay(d time.Duration) { e.retryDelay = d }

// check runs the access control decision for actor/perm/target and records
// a denial in the audit log. Callers get ErrDenied on a negative decision.
func (e *Engine) check(ctx context.Context, actor Actor, perm Permission, target Ref, action string) error {
	owner, err := e.catalog.Owner(ctx, target)
	if err != nil {
		return fmt.Errorf("resolving target owner: %w", err)
	}

	chain, err := e.catalog.GrantChain(ctx, target)
	if err != nil {
		return fmt.Errorf("loading grants: %w", err)
	}

	decision := Check(actor, perm, owner, chain, e.clock.Now())
	if decision.Allowed {
		return nil
	}

	e.logger.Warn("access denied", "actor", actor.ID, "action", action, "target", target.ID, "reason", decision.Reason)
	if err := e.audit(ctx, actor.ID, action, target, "denied", decision.Reason); err != nil {
		return err
	}
	return fmt.Errorf("%s on %s %s: %w", perm, target.Kind, target.ID, ErrDenied)
}

// audit appends one entry to the history log. The append is synchronous
// with the operation: if it fails, the operation fails.
func (e *Engine) audit(ctx context.Context, actor, action string, target Ref, result, detail string) error {
	entry := &AuditEntry{
		Actor:     actor,
		Action:    action,
		Target:    target,
		Result:    result,
		Detail:    detail,
		CreatedAt: e.clock.Now(),
	}
	if err := e.catalog.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// putBlob uploads ciphertext to the blob store, retrying transient storage
// errors a bounded number of times with linear backoff.
func (e *Engine) putBlob(ctx context.Context, hash string, data []byte) error {
	var err error
	for attempt := 0; attempt < blobRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * e.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = e.store.Put(ctx, hash, bytes.NewReader(data), int64(len(data)))
		if err == nil || !errors.Is(err, ErrStorage) {
			return err
		}
		e.logger.Warn("blob put failed, retrying", "hash", hash, "attempt", attempt+1, "error", err)
	}
	return err
}

// EnsureRoot returns the actor's root folder, creating it on first use.
func (e *Engine) EnsureRoot(ctx context.Context, actor Actor) (*Folder, error) {
	root, err := e.catalog.EnsureRoot(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("ensuring root folder: %w", err)
	}
	return root, nil
}

// CreateFolder creates a folder under parentID.
func (e *Engine) CreateFolder(ctx context.Context, actor Actor, parentID, name string) (*Folder, error) {
	if err := e.check(ctx, actor, PermWrite, FolderRef(parentID), "create_folder"); err != nil {
		return nil, err
	}

	parent, err := e.catalog.GetFolder(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("loading parent folder: %w", err)
	}

	folder := &Folder{
		ID:        e.idgen.New(),
		OwnerID:   parent.OwnerID,
		ParentID:  parent.ID,
		Name:      name,
		CreatedAt: e.clock.Now(),
	}
	if err := e.catalog.CreateFolder(ctx, folder); err != nil {
		return nil, fmt.Errorf("creating folder: %w", err)
	}

	if err := e.audit(ctx, actor.ID, "create_folder", FolderRef(folder.ID), "success", name); err != nil {
		return nil, err
	}
	e.logger.Info("folder created", "folder", folder.ID, "name", name)
	return folder, nil
}

// List returns one page of folder entries. An empty cursor starts from the
// beginning; the returned cursor resumes the listing.
func (e *Engine) List(ctx context.Context, actor Actor, folderID, cursor string, limit int) (*Page, error) {
	if err := e.check(ctx, actor, PermRead, FolderRef(folderID), "list"); err != nil {
		return nil, err
	}
	page, err := e.catalog.List(ctx, folderID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("listing folder: %w", err)
	}
	return page, nil
}

// Upload stores new content under name in folderID. If the file does not
// exist it is created; otherwise a new version is appended. Returns the file
// and the version that was written.
//
// Strategy: the ciphertext goes to the blob store first (idempotent by
// hash), then the catalog records everything in a single transaction. If the
// catalog write fails the worst outcome is an orphaned blob, which the
// sweeper reclaims later — never an inconsistent catalog row.
func (e *Engine) Upload(ctx context.Context, actor Actor, folderID, name, mimeType string, r io.Reader) (*File, *FileVersion, error) {
	folder, err := e.catalog.GetFolder(ctx, folderID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading folder: %w", err)
	}

	file, err := e.catalog.FindFile(ctx, folderID, name)
	if err != nil {
		return nil, nil, fmt.Errorf("finding file: %w", err)
	}

	// A new version of an existing file needs write on the file; creating
	// a file needs write on the folder.
	if file != nil {
		if err := e.check(ctx, actor, PermWrite, FileRef(file.ID), "upload"); err != nil {
			return nil, nil, err
		}
	} else {
		if err := e.check(ctx, actor, PermWrite, FolderRef(folderID), "upload"); err != nil {
			return nil, nil, err
		}
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reading content: %w", err)
	}

	key, err := e.sealer.GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("generating data key: %w", err)
	}

	sealed, err := e.sealer.Seal(plaintext, key)
	if err != nil {
		return nil, nil, fmt.Errorf("sealing content: %w", err)
	}

	hash := contentHash(sealed)
	if err := e.putBlob(ctx, hash, sealed); err != nil {
		return nil, nil, fmt.Errorf("storing blob: %w", err)
	}

	wrapped, err := e.keyring.Wrap(folder.OwnerID, key)
	if err != nil {
		return nil, nil, fmt.Errorf("wrapping data key: %w", err)
	}

	now := e.clock.Now()
	if file == nil {
		file = &File{
			ID:        e.idgen.New(),
			FolderID:  folderID,
			OwnerID:   folder.OwnerID,
			Name:      name,
			MimeType:  mimeType,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.catalog.CreateFile(ctx, file); err != nil {
			e.reclaimBlob(ctx, hash)
			return nil, nil, fmt.Errorf("creating file: %w", err)
		}
	}

	version := &FileVersion{
		ID:          e.idgen.New(),
		FileID:      file.ID,
		Version:     file.CurrentVersion + 1,
		ContentHash: hash,
		WrappedKey:  wrapped,
		Size:        int64(len(plaintext)),
		CreatedBy:   actor.ID,
		CreatedAt:   now,
	}
	if err := e.catalog.CreateVersion(ctx, version, file.CurrentVersion); err != nil {
		e.reclaimBlob(ctx, hash)
		return nil, nil, fmt.Errorf("recording version: %w", err)
	}
	file.CurrentVersion = version.Version
	file.Size = version.Size
	file.UpdatedAt = now

	if err := e.audit(ctx, actor.ID, "upload", FileRef(file.ID), "success", fmt.Sprintf("version %d", version.Version)); err != nil {
		return nil, nil, err
	}
	e.logger.Info("file uploaded", "file", file.ID, "name", name, "version", version.Version, "size", version.Size)
	return file, version, nil
}

// reclaimBlob best-effort deletes a blob after a failed catalog write,
// unless some other version already references the same content. Failures
// are logged and left for the orphan sweeper.
func (e *Engine) reclaimBlob(ctx context.Context, hash string) {
	referenced, err := e.catalog.ReferencedHashes(ctx)
	if err == nil {
		if _, ok := referenced[hash]; ok {
			return
		}
	}
	if err := e.store.Delete(ctx, hash); err != nil {
		e.logger.Warn("orphaned blob left for sweeper", "hash", hash, "error", err)
	}
}

// Download streams the plaintext of a file's current version to w.
func (e *Engine) Download(ctx context.Context, actor Actor, fileID string, w io.Writer) (*File, error) {
	return e.DownloadVersion(ctx, actor, fileID, 0, w)
}

// DownloadVersion streams the plaintext of a specific version to w.
// version 0 means the current version.
func (e *Engine) DownloadVersion(ctx context.Context, actor Actor, fileID string, version int64, w io.Writer) (*File, error) {
	if err := e.check(ctx, actor, PermRead, FileRef(fileID), "download"); err != nil {
		return nil, err
	}

	file, err := e.catalog.GetFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("loading file: %w", err)
	}
	if file.Tombstoned() {
		return nil, fmt.Errorf("file %s is deleted: %w", fileID, ErrNotFound)
	}
	if file.CurrentVersion == 0 {
		return nil, fmt.Errorf("file %s has no content: %w", fileID, ErrNotFound)
	}
	if version == 0 {
		version = file.CurrentVersion
	}

	v, err := e.catalog.GetVersion(ctx, fileID, version)
	if err != nil {
		return nil, fmt.Errorf("loading version %d: %w", version, err)
	}

	plaintext, err := e.openVersion(ctx, file.OwnerID, v)
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing content: %w", err)
	}

	if err := e.audit(ctx, actor.ID, "download", FileRef(fileID), "success", fmt.Sprintf("version %d", v.Version)); err != nil {
		return nil, err
	}
	return file, nil
}

// openVersion fetches, unwraps and opens one version's content.
// Integrity failures are surfaced distinctly and never retried: retrying
// decryption against the same corrupted ciphertext cannot succeed.
func (e *Engine) openVersion(ctx context.Context, ownerID string, v *FileVersion) ([]byte, error) {
	var sealed bytes.Buffer
	var err error
	for attempt := 0; attempt < blobRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * e.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			sealed.Reset()
		}
		err = e.store.Get(ctx, v.ContentHash, &sealed)
		if err == nil || !errors.Is(err, ErrStorage) {
			break
		}
		e.logger.Warn("blob get failed, retrying", "hash", v.ContentHash, "attempt", attempt+1, "error", err)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching blob %s: %w", v.ContentHash, err)
	}

	key, err := e.keyring.Unwrap(ownerID, v.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("unwrapping data key: %w", err)
	}

	plaintext, err := e.sealer.Open(sealed.Bytes(), key)
	if err != nil {
		if errors.Is(err, ErrIntegrity) {
			e.logger.Error("content integrity failure", "version", v.ID, "hash", v.ContentHash)
		}
		return nil, fmt.Errorf("opening version %s: %w", v.ID, err)
	}
	return plaintext, nil
}

// MoveFile moves a file into another folder.
func (e *Engine) MoveFile(ctx context.Context, actor Actor, fileID, newFolderID string) error {
	if err := e.check(ctx, actor, PermWrite, FileRef(fileID), "move"); err != nil {
		return err
	}
	if err := e.check(ctx, actor, PermWrite, FolderRef(newFolderID), "move"); err != nil {
		return err
	}

	lock, err := e.catalog.GetLock(ctx, fileID, e.clock.Now())
	if err != nil {
		return fmt.Errorf("checking lock: %w", err)
	}
	if lock != nil && lock.Holder != actor.ID {
		return fmt.Errorf("file %s: %w", fileID, ErrLockHeld)
	}

	if err := e.catalog.MoveFile(ctx, fileID, newFolderID); err != nil {
		return fmt.Errorf("moving file: %w", err)
	}
	return e.audit(ctx, actor.ID, "move", FileRef(fileID), "success", "to folder "+newFolderID)
}

// MoveFolder reparents a folder. Fails with ErrCycle if the destination is
// the folder itself or one of its descendants.
func (e *Engine) MoveFolder(ctx context.Context, actor Actor, folderID, newParentID string) error {
	if err := e.check(ctx, actor, PermWrite, FolderRef(folderID), "move"); err != nil {
		return err
	}
	if err := e.check(ctx, actor, PermWrite, FolderRef(newParentID), "move"); err != nil {
		return err
	}
	if err := e.catalog.MoveFolder(ctx, folderID, newParentID); err != nil {
		return fmt.Errorf("moving folder: %w", err)
	}
	return e.audit(ctx, actor.ID, "move", FolderRef(folderID), "success", "to folder "+newParentID)
}

// Delete tombstones a file. The record and its versions are retained for
// history; Purge removes them for good.
func (e *Engine) Delete(ctx context.Context, actor Actor, fileID string) error {
	if err := e.check(ctx, actor, PermDelete, FileRef(fileID), "delete"); err != nil {
		return err
	}

	now := e.clock.Now()
	lock, err := e.catalog.GetLock(ctx, fileID, now)
	if err != nil {
		return fmt.Errorf("checking lock: %w", err)
	}
	if lock != nil && lock.Holder != actor.ID {
		return fmt.Errorf("file %s: %w", fileID, ErrLockHeld)
	}

	if err := e.catalog.TombstoneFile(ctx, fileID, now); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return e.audit(ctx, actor.ID, "delete", FileRef(fileID), "success", "")
}

// Purge hard-deletes a tombstoned file, its versions, and any blobs no other
// version still references. An explicit maintenance operation outside the
// normal flow.
func (e *Engine) Purge(ctx context.Context, actor Actor, fileID string) error {
	if err := e.check(ctx, actor, PermDelete, FileRef(fileID), "purge"); err != nil {
		return err
	}

	file, err := e.catalog.GetFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("loading file: %w", err)
	}
	if !file.Tombstoned() {
		return fmt.Errorf("file %s is not deleted; delete before purging", fileID)
	}

	hashes, err := e.catalog.PurgeFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("purging file: %w", err)
	}

	// Deduplicated content may still back other files' versions.
	referenced, err := e.catalog.ReferencedHashes(ctx)
	if err != nil {
		return fmt.Errorf("listing referenced hashes: %w", err)
	}
	for _, h := range hashes {
		if _, ok := referenced[h]; ok {
			continue
		}
		if err := e.store.Delete(ctx, h); err != nil {
			e.logger.Warn("purged blob left for sweeper", "hash", h, "error", err)
		}
	}

	return e.audit(ctx, actor.ID, "purge", FileRef(fileID), "success", "")
}

// Lock takes or refreshes a lease on a file. Fails with ErrLockHeld if a
// different holder has a live lease; idempotent for the current holder.
func (e *Engine) Lock(ctx context.Context, actor Actor, fileID string, ttl time.Duration) (*Lock, error) {
	if err := e.check(ctx, actor, PermWrite, FileRef(fileID), "lock"); err != nil {
		return nil, err
	}

	lock, err := e.catalog.AcquireLock(ctx, fileID, actor.ID, ttl, e.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}

	if err := e.audit(ctx, actor.ID, "lock", FileRef(fileID), "success", ""); err != nil {
		return nil, err
	}
	e.logger.Debug("lock acquired", "file", fileID, "holder", actor.ID, "expires", lock.ExpiresAt)
	return lock, nil
}

// Unlock releases the actor's lease. Releasing a lease you do not hold is a
// no-op, so release after expiry is harmless.
func (e *Engine) Unlock(ctx context.Context, actor Actor, fileID string) error {
	if err := e.check(ctx, actor, PermWrite, FileRef(fileID), "unlock"); err != nil {
		return err
	}
	if err := e.catalog.ReleaseLock(ctx, fileID, actor.ID); err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return e.audit(ctx, actor.ID, "unlock", FileRef(fileID), "success", "")
}

// GrantAccess records an access grant on a target. Requires share permission.
func (e *Engine) GrantAccess(ctx context.Context, actor Actor, target Ref, subjectKind SubjectKind, subject string, perms []Permission, effect Effect, expiresAt *time.Time) (*Grant, error) {
	if err := e.check(ctx, actor, PermShare, target, "grant"); err != nil {
		return nil, err
	}

	grant := &Grant{
		ID:          e.idgen.New(),
		SubjectKind: subjectKind,
		Subject:     subject,
		Target:      target,
		Permissions: perms,
		Effect:      effect,
		GrantedBy:   actor.ID,
		ExpiresAt:   expiresAt,
		CreatedAt:   e.clock.Now(),
	}
	if err := e.catalog.CreateGrant(ctx, grant); err != nil {
		return nil, fmt.Errorf("creating grant: %w", err)
	}

	if err := e.audit(ctx, actor.ID, "grant", target, "success", string(effect)+" "+subject); err != nil {
		return nil, err
	}
	return grant, nil
}

// RevokeAccess removes a grant.
func (e *Engine) RevokeAccess(ctx context.Context, actor Actor, target Ref, grantID string) error {
	if err := e.check(ctx, actor, PermShare, target, "revoke_grant"); err != nil {
		return err
	}
	if err := e.catalog.DeleteGrant(ctx, grantID); err != nil {
		return fmt.Errorf("deleting grant: %w", err)
	}
	return e.audit(ctx, actor.ID, "revoke_grant", target, "success", grantID)
}

// RotateMasterKey rotates an owner's master key and rewraps every data key
// of the owner's versions under the new generation. Only the owner or an
// admin may rotate.
func (e *Engine) RotateMasterKey(ctx context.Context, actor Actor, ownerID string) error {
	if actor.Role != RoleAdmin && actor.ID != ownerID {
		return fmt.Errorf("rotate master key for %s: %w", ownerID, ErrDenied)
	}

	if err := e.keyring.Rotate(ownerID); err != nil {
		return fmt.Errorf("rotating master key: %w", err)
	}

	versions, err := e.catalog.ListOwnerVersions(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("listing versions: %w", err)
	}

	for _, v := range versions {
		key, err := e.keyring.Unwrap(ownerID, v.WrappedKey)
		if err != nil {
			return fmt.Errorf("unwrapping key for version %s: %w", v.ID, err)
		}
		wrapped, err := e.keyring.Wrap(ownerID, key)
		if err != nil {
			return fmt.Errorf("rewrapping key for version %s: %w", v.ID, err)
		}
		if err := e.catalog.UpdateWrappedKey(ctx, v.ID, wrapped); err != nil {
			return fmt.Errorf("storing rewrapped key for version %s: %w", v.ID, err)
		}
	}

	// Old generations are only safe to drop once every key is rewrapped.
	if err := e.keyring.DropRetired(ownerID); err != nil {
		return fmt.Errorf("dropping retired master keys: %w", err)
	}

	e.logger.Info("master key rotated", "owner", ownerID, "versions", len(versions))
	return e.audit(ctx, actor.ID, "rotate_key", Ref{Kind: KindFolder, ID: ownerID}, "success", fmt.Sprintf("%d versions rewrapped", len(versions)))
}

// contentHash returns the hex SHA-256 of data, the blob store address.
func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
