package engine_test

import (
	"testing"
	"time"

	"strongbox/internal/engine"
)

func grant(subjKind engine.SubjectKind, subject string, effect engine.Effect, perms ...engine.Permission) *engine.Grant {
	return &engine.Grant{
		SubjectKind: subjKind,
		Subject:     subject,
		Permissions: perms,
		Effect:      effect,
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		actor   engine.Actor
		perm    engine.Permission
		ownerID string
		chain   [][]*engine.Grant
		want    bool
	}{
		{
			name:    "owner holds every permission",
			actor:   alice,
			perm:    engine.PermDelete,
			ownerID: alice.ID,
			want:    true,
		},
		{
			name:    "admin bypasses grants",
			actor:   admin,
			perm:    engine.PermWrite,
			ownerID: alice.ID,
			want:    true,
		},
		{
			name:    "no grant means deny",
			actor:   bob,
			perm:    engine.PermRead,
			ownerID: alice.ID,
			want:    false,
		},
		{
			name:    "direct user allow",
			actor:   bob,
			perm:    engine.PermRead,
			ownerID: alice.ID,
			chain: [][]*engine.Grant{
				{grant(engine.SubjectUser, bob.ID, engine.Allow, engine.PermRead)},
			},
			want: true,
		},
		{
			name:    "allow does not cover other permissions",
			actor:   bob,
			perm:    engine.PermWrite,
			ownerID: alice.ID,
			chain: [][]*engine.Grant{
				{grant(engine.SubjectUser, bob.ID, engine.Allow, engine.PermRead)},
			},
			want: false,
		},
		{
			name:    "role grant covers all members",
			actor:   bob,
			perm:    engine.PermRead,
			ownerID: alice.ID,
			chain: [][]*engine.Grant{
				{grant(engine.SubjectRole, string(engine.RoleMember), engine.Allow, engine.PermRead)},
			},
			want: true,
		},
		{
			name:    "role grant does not cover other roles",
			actor:   guest,
			perm:    engine.PermRead,
			ownerID: alice.ID,
			chain: [][]*engine.Grant{
				{grant(engine.SubjectRole, string(engine.RoleMember), engine.Allow, engine.PermRead)},
			},
			want: false,
		},
		{
			name:    "deny beats allow at the same level",
			actor:   bob,
			perm:    engine.PermRead,
			ownerID: alice.ID,
			chain: [][]*engine.Grant{
				{
					grant(engine.SubjectRole, string(engine.RoleMember), engine.Allow, engine.PermRead),
					grant(engine.SubjectUser, bob.ID, engine.Deny, engine.PermRead),
				},
			},
			want: false,
		},
		{
			name:    "target deny beats inherited allow",
			actor:   bob,
			perm:    engine.PermRead,
			ownerID: alice.ID,
			chain: [][]*engine.Grant{
				{grant(engine.SubjectUser, bob.ID, engine.Deny, engine.PermRead)},
				{grant(engine.SubjectUser, bob.ID, engine.Allow, engine.PermRead)},
			},
			want: false,
		},
		{
			name:    "target allow beats ancestor deny",
			actor:   bob,
			perm:    engine.PermRead,
			ownerID: alice.ID,
			chain: [][]*engine.Grant{
				{grant(engine.SubjectUser, bob.ID, engine.Allow, engine.PermRead)},
				{grant(engine.SubjectUser, bob.ID, engine.Deny, engine.PermRead)},
			},
			want: true,
		},
		{
			name:    "nearest ancestor wins",
			actor:   bob,
			perm:    engine.PermRead,
			ownerID: alice.ID,
			chain: [][]*engine.Grant{
				nil,
				{grant(engine.SubjectUser, bob.ID, engine.Deny, engine.PermRead)},
				{grant(engine.SubjectUser, bob.ID, engine.Allow, engine.PermRead)},
			},
			want: false,
		},
		{
			name:    "guest with explicit grant",
			actor:   guest,
			perm:    engine.PermRead,
			ownerID: alice.ID,
			chain: [][]*engine.Grant{
				{grant(engine.SubjectUser, guest.ID, engine.Allow, engine.PermRead)},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := engine.Check(tt.actor, tt.perm, tt.ownerID, tt.chain, now)
			if got.Allowed != tt.want {
				t.Errorf("Check() allowed = %v (%s), want %v", got.Allowed, got.Reason, tt.want)
			}
		})
	}

	t.Run("expired grant is ignored", func(t *testing.T) {
		t.Parallel()
		past := now.Add(-time.Hour)
		g := grant(engine.SubjectUser, bob.ID, engine.Allow, engine.PermRead)
		g.ExpiresAt = &past

		got := engine.Check(bob, engine.PermRead, alice.ID, [][]*engine.Grant{{g}}, now)
		if got.Allowed {
			t.Error("expired grant should not allow access")
		}
	})

	t.Run("expired deny is ignored too", func(t *testing.T) {
		t.Parallel()
		past := now.Add(-time.Hour)
		deny := grant(engine.SubjectUser, bob.ID, engine.Deny, engine.PermRead)
		deny.ExpiresAt = &past
		allow := grant(engine.SubjectUser, bob.ID, engine.Allow, engine.PermRead)

		got := engine.Check(bob, engine.PermRead, alice.ID, [][]*engine.Grant{{deny, allow}}, now)
		if !got.Allowed {
			t.Errorf("Check() = denied (%s), want allowed", got.Reason)
		}
	})
}
