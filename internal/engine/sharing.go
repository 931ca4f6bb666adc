package engine

import (
	"context"
	"fmt"
	"io"
	"time"
)

// IssueLink creates a share link for a target. The issuing actor must hold
// share permission on the target. expiresAt nil means no wall-clock expiry;
// maxUses nil means unlimited resolutions.
func (e *Engine) IssueLink(ctx context.Context, actor Actor, target Ref, scope LinkScope, expiresAt *time.Time, maxUses *int64) (*ShareLink, error) {
	if err := e.check(ctx, actor, PermShare, target, "issue_link"); err != nil {
		return nil, err
	}
	if scope != ScopeReadOnly && scope != ScopeReadWrite {
		return nil, fmt.Errorf("invalid link scope %q", scope)
	}
	if maxUses != nil && *maxUses <= 0 {
		return nil, fmt.Errorf("max uses must be positive, got %d", *maxUses)
	}

	token, err := e.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("generating link token: %w", err)
	}

	link := &ShareLink{
		Token:     token,
		Target:    target,
		Scope:     scope,
		IssuedBy:  actor.ID,
		ExpiresAt: expiresAt,
		UsesLeft:  maxUses,
		CreatedAt: e.clock.Now(),
	}
	if err := e.catalog.CreateLink(ctx, link); err != nil {
		return nil, fmt.Errorf("storing link: %w", err)
	}

	if err := e.audit(ctx, actor.ID, "issue_link", target, "success", string(scope)); err != nil {
		return nil, err
	}
	e.logger.Info("share link issued", "target", target.ID, "scope", scope)
	return link, nil
}

// ResolveLink validates a token and consumes one use when the link carries a
// use count. The consume is atomic: a max-uses=N link resolves exactly N
// times even under concurrent attempts, and the next resolution fails with
// ErrLinkExpired.
func (e *Engine) ResolveLink(ctx context.Context, token string) (*ShareLink, error) {
	link, err := e.catalog.ConsumeLink(ctx, token, e.clock.Now())
	if err != nil {
		// Record failed resolutions too; "who tried what" matters as much
		// as successes. Token holders are anonymous, so the actor is blank.
		if code := ErrorCode(err); code != "internal" {
			if auditErr := e.audit(ctx, "", "resolve_link", Ref{}, code, ""); auditErr != nil {
				return nil, auditErr
			}
		}
		return nil, fmt.Errorf("resolving link: %w", err)
	}

	if err := e.audit(ctx, "", "resolve_link", link.Target, "success", string(link.Scope)); err != nil {
		return nil, err
	}
	return link, nil
}

// DownloadViaLink resolves a token and, when it points at a file, streams the
// file's current plaintext to w. The link's scope replaces the grant model:
// no per-actor access check happens here.
func (e *Engine) DownloadViaLink(ctx context.Context, token string, w io.Writer) (*File, error) {
	link, err := e.ResolveLink(ctx, token)
	if err != nil {
		return nil, err
	}
	if link.Target.Kind != KindFile {
		return nil, fmt.Errorf("link targets a %s, not a file", link.Target.Kind)
	}
	if !scopePermits(link.Scope, PermRead) {
		return nil, fmt.Errorf("link scope %s: %w", link.Scope, ErrDenied)
	}

	file, err := e.catalog.GetFile(ctx, link.Target.ID)
	if err != nil {
		return nil, fmt.Errorf("loading file: %w", err)
	}
	if file.Tombstoned() || file.CurrentVersion == 0 {
		return nil, fmt.Errorf("file %s: %w", file.ID, ErrNotFound)
	}

	v, err := e.catalog.GetVersion(ctx, file.ID, file.CurrentVersion)
	if err != nil {
		return nil, fmt.Errorf("loading version: %w", err)
	}

	plaintext, err := e.openVersion(ctx, file.OwnerID, v)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing content: %w", err)
	}
	return file, nil
}

// RevokeLink permanently revokes a link. The issuer or anyone holding share
// permission on the target may revoke. In-flight resolutions that already
// consumed a use complete; subsequent resolutions fail with ErrLinkRevoked.
func (e *Engine) RevokeLink(ctx context.Context, actor Actor, token string) error {
	link, err := e.catalog.GetLink(ctx, token)
	if err != nil {
		return fmt.Errorf("loading link: %w", err)
	}

	if link.IssuedBy != actor.ID {
		if err := e.check(ctx, actor, PermShare, link.Target, "revoke_link"); err != nil {
			return err
		}
	}

	if err := e.catalog.RevokeLink(ctx, token); err != nil {
		return fmt.Errorf("revoking link: %w", err)
	}
	return e.audit(ctx, actor.ID, "revoke_link", link.Target, "success", "")
}
