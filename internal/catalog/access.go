package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"strongbox/internal/engine"
)

// Grant operations

func (c *SQLiteCatalog) CreateGrant(ctx context.Context, grant *engine.Grant) error {
	perms := make([]string, len(grant.Permissions))
	for i, p := range grant.Permissions {
		perms[i] = string(p)
	}

	var expires sql.NullTime
	if grant.ExpiresAt != nil {
		expires = sql.NullTime{Time: *grant.ExpiresAt, Valid: true}
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO grants (id, subject_kind, subject, target_kind, target_id, permissions, effect, granted_by, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		grant.ID, grant.SubjectKind, grant.Subject, grant.Target.Kind, grant.Target.ID,
		strings.Join(perms, ","), grant.Effect, grant.GrantedBy, expires, grant.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting grant: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) DeleteGrant(ctx context.Context, grantID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM grants WHERE id = ?`, grantID)
	if err != nil {
		return fmt.Errorf("deleting grant: %w", err)
	}
	return requireRow(res, fmt.Sprintf("grant %s", grantID))
}

// GrantChain loads the grants attached to the target and to each ancestor
// folder, nearest first. The chain always starts with the target's own
// grants, even when empty, so the evaluator sees explicit grants before
// inherited ones.
func (c *SQLiteCatalog) GrantChain(ctx context.Context, target engine.Ref) ([][]*engine.Grant, error) {
	chain := [][]*engine.Grant{}

	grants, err := c.grantsFor(ctx, target)
	if err != nil {
		return nil, err
	}
	chain = append(chain, grants)

	// Find the first ancestor folder.
	var parent sql.NullString
	switch target.Kind {
	case engine.KindFile:
		err = c.db.QueryRowContext(ctx, `SELECT folder_id FROM files WHERE id = ?`, target.ID).Scan(&parent)
	case engine.KindFolder:
		err = c.db.QueryRowContext(ctx, `SELECT parent_id FROM folders WHERE id = ?`, target.ID).Scan(&parent)
	default:
		return nil, fmt.Errorf("unknown target kind %q", target.Kind)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", target.Kind, target.ID, engine.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving parent: %w", err)
	}

	for parent.Valid && parent.String != "" {
		folderID := parent.String
		grants, err := c.grantsFor(ctx, engine.FolderRef(folderID))
		if err != nil {
			return nil, err
		}
		chain = append(chain, grants)

		err = c.db.QueryRowContext(ctx, `SELECT parent_id FROM folders WHERE id = ?`, folderID).Scan(&parent)
		if errors.Is(err, sql.ErrNoRows) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("walking ancestors: %w", err)
		}
	}

	return chain, nil
}

func (c *SQLiteCatalog) grantsFor(ctx context.Context, target engine.Ref) ([]*engine.Grant, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, subject_kind, subject, permissions, effect, granted_by, expires_at, created_at
		 FROM grants WHERE target_kind = ? AND target_id = ? ORDER BY created_at, id`,
		target.Kind, target.ID)
	if err != nil {
		return nil, fmt.Errorf("loading grants: %w", err)
	}
	defer rows.Close()

	var grants []*engine.Grant
	for rows.Next() {
		g := &engine.Grant{Target: target}
		var perms string
		var expires sql.NullTime
		if err := rows.Scan(&g.ID, &g.SubjectKind, &g.Subject, &perms, &g.Effect, &g.GrantedBy, &expires, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning grant: %w", err)
		}
		if expires.Valid {
			t := expires.Time
			g.ExpiresAt = &t
		}
		for _, p := range strings.Split(perms, ",") {
			if p != "" {
				g.Permissions = append(g.Permissions, engine.Permission(p))
			}
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading grants: %w", err)
	}
	return grants, nil
}

func (c *SQLiteCatalog) Owner(ctx context.Context, target engine.Ref) (string, error) {
	var query string
	switch target.Kind {
	case engine.KindFile:
		query = `SELECT owner_id FROM files WHERE id = ?`
	case engine.KindFolder:
		query = `SELECT owner_id FROM folders WHERE id = ?`
	default:
		return "", fmt.Errorf("unknown target kind %q", target.Kind)
	}

	var owner string
	err := c.db.QueryRowContext(ctx, query, target.ID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s %s: %w", target.Kind, target.ID, engine.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("resolving owner: %w", err)
	}
	return owner, nil
}

// Share link operations

func (c *SQLiteCatalog) CreateLink(ctx context.Context, link *engine.ShareLink) error {
	var expires sql.NullTime
	if link.ExpiresAt != nil {
		expires = sql.NullTime{Time: *link.ExpiresAt, Valid: true}
	}
	var uses sql.NullInt64
	if link.UsesLeft != nil {
		uses = sql.NullInt64{Int64: *link.UsesLeft, Valid: true}
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO share_links (token, target_kind, target_id, scope, issued_by, expires_at, uses_left, revoked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		link.Token, link.Target.Kind, link.Target.ID, link.Scope, link.IssuedBy, expires, uses, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting link: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) GetLink(ctx context.Context, token string) (*engine.ShareLink, error) {
	link, err := c.getLink(ctx, c.db, token)
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (c *SQLiteCatalog) getLink(ctx context.Context, q querier, token string) (*engine.ShareLink, error) {
	link := &engine.ShareLink{Token: token}
	var expires sql.NullTime
	var uses sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT target_kind, target_id, scope, issued_by, expires_at, uses_left, revoked, created_at
		 FROM share_links WHERE token = ?`, token).
		Scan(&link.Target.Kind, &link.Target.ID, &link.Scope, &link.IssuedBy, &expires, &uses, &link.Revoked, &link.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unknown token: %w", engine.ErrLinkInvalid)
	}
	if err != nil {
		return nil, fmt.Errorf("loading link: %w", err)
	}
	if expires.Valid {
		t := expires.Time
		link.ExpiresAt = &t
	}
	if uses.Valid {
		n := uses.Int64
		link.UsesLeft = &n
	}
	return link, nil
}

// ConsumeLink validates a link and decrements its use count in one
// transaction. The decrement is guarded (`uses_left > 0`), so two concurrent
// resolvers cannot both take the last use.
func (c *SQLiteCatalog) ConsumeLink(ctx context.Context, token string, now time.Time) (*engine.ShareLink, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	link, err := c.getLink(ctx, tx, token)
	if err != nil {
		return nil, err
	}
	if link.Revoked {
		return nil, fmt.Errorf("token %s: %w", token, engine.ErrLinkRevoked)
	}
	if link.ExpiresAt != nil && !now.Before(*link.ExpiresAt) {
		return nil, fmt.Errorf("token %s: %w", token, engine.ErrLinkExpired)
	}

	if link.UsesLeft != nil {
		res, err := tx.ExecContext(ctx,
			`UPDATE share_links SET uses_left = uses_left - 1 WHERE token = ? AND uses_left > 0`, token)
		if err != nil {
			return nil, fmt.Errorf("decrementing use count: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("checking affected rows: %w", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("token %s uses exhausted: %w", token, engine.ErrLinkExpired)
		}
		left := *link.UsesLeft - 1
		link.UsesLeft = &left
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return link, nil
}

func (c *SQLiteCatalog) RevokeLink(ctx context.Context, token string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE share_links SET revoked = 1 WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("revoking link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("unknown token: %w", engine.ErrLinkInvalid)
	}
	return nil
}

// Audit operations

func (c *SQLiteCatalog) AppendAudit(ctx context.Context, entry *engine.AuditEntry) error {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO audit_entries (actor, action, target_kind, target_id, result, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Actor, entry.Action, entry.Target.Kind, entry.Target.ID, entry.Result, entry.Detail, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// QueryAudit pages through a target's audit trail in insertion order, which
// is also timestamp order for an append-only log. The cursor is the rowid of
// the last returned entry.
func (c *SQLiteCatalog) QueryAudit(ctx context.Context, target engine.Ref, from, to time.Time, cursor string, limit int) (*engine.AuditPage, error) {
	if limit <= 0 {
		limit = 100
	}

	var afterID int64
	if cursor != "" {
		id, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		afterID = id
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, actor, action, result, detail, created_at
		 FROM audit_entries
		 WHERE target_kind = ? AND target_id = ? AND created_at >= ? AND created_at <= ? AND id > ?
		 ORDER BY id
		 LIMIT ?`,
		target.Kind, target.ID, from, to, afterID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	page := &engine.AuditPage{}
	for rows.Next() {
		e := engine.AuditEntry{Target: target}
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Result, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		page.Entries = append(page.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}

	if len(page.Entries) > limit {
		page.Entries = page.Entries[:limit]
		page.Cursor = strconv.FormatInt(page.Entries[limit-1].ID, 10)
	}
	return page, nil
}

// ActivitySummary buckets audit entries by actor, action and UTC day.
// Day truncation happens in Go rather than SQL so it does not depend on how
// the driver serializes timestamps.
func (c *SQLiteCatalog) ActivitySummary(ctx context.Context, from, to time.Time) ([]engine.ActivityBucket, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT actor, action, created_at FROM audit_entries
		 WHERE created_at >= ? AND created_at <= ? ORDER BY id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	defer rows.Close()

	counts := make(map[engine.ActivityBucket]int64)
	var order []engine.ActivityBucket
	for rows.Next() {
		var actor, action string
		var at time.Time
		if err := rows.Scan(&actor, &action, &at); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		key := engine.ActivityBucket{
			Actor:  actor,
			Action: action,
			Day:    at.UTC().Format("2006-01-02"),
		}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	buckets := make([]engine.ActivityBucket, 0, len(order))
	for _, key := range order {
		key.Count = counts[key]
		buckets = append(buckets, key)
	}
	return buckets, nil
}
