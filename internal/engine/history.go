package engine

import (
	"context"
	"fmt"
	"time"
)

// History returns one page of the audit trail for a target within
// [from, to], ordered by time ascending. Reading history requires read
// permission on the target.
func (e *Engine) History(ctx context.Context, actor Actor, target Ref, from, to time.Time, cursor string, limit int) (*AuditPage, error) {
	if err := e.check(ctx, actor, PermRead, target, "history"); err != nil {
		return nil, err
	}
	page, err := e.catalog.QueryAudit(ctx, target, from, to, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	return page, nil
}

// Versions lists a file's version history, oldest first.
func (e *Engine) Versions(ctx context.Context, actor Actor, fileID string) ([]*FileVersion, error) {
	if err := e.check(ctx, actor, PermRead, FileRef(fileID), "history"); err != nil {
		return nil, err
	}
	versions, err := e.catalog.ListVersions(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	return versions, nil
}

// Activity aggregates the audit log into per-actor, per-action, per-day
// counts for the analytics view. Admin only; the projection reads the log
// and never mutates it.
func (e *Engine) Activity(ctx context.Context, actor Actor, from, to time.Time) ([]ActivityBucket, error) {
	if actor.Role != RoleAdmin {
		return nil, fmt.Errorf("analytics: %w", ErrDenied)
	}
	buckets, err := e.catalog.ActivitySummary(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("aggregating activity: %w", err)
	}
	return buckets, nil
}
