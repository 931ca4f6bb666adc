package engine

import "time"

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allowed and Denied build decisions with a reason for the audit trail.
func Allowed(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func Denied(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// Check is the access control decision function. It is pure: the caller
// supplies the grant chain (target first, then ancestor folders nearest
// first) and the target's owner; Check only evaluates.
//
// Evaluation order:
//  1. explicit grants on the target itself
//  2. inherited grants, nearest ancestor first
//  3. role default policy (admins and owners hold every permission)
//  4. implicit deny
//
// Within each level a matching deny short-circuits before any allow, so an
// explicit deny always overrides an inherited allow.
func Check(actor Actor, perm Permission, ownerID string, chain [][]*Grant, now time.Time) Decision {
	for _, level := range chain {
		for _, g := range level {
			if g.Effect == Deny && g.Covers(actor, perm, now) {
				return Denied("explicit deny")
			}
		}
		for _, g := range level {
			if g.Effect == Allow && g.Covers(actor, perm, now) {
				return Allowed("granted")
			}
		}
	}

	if actor.Role == RoleAdmin {
		return Allowed("admin")
	}
	if actor.ID != "" && actor.ID == ownerID {
		return Allowed("owner")
	}

	return Denied("no applicable grant")
}

// scopePermits reports whether a share link scope covers a permission.
// Read-write links permit reading and writing; neither scope permits
// sharing or deleting.
func scopePermits(scope LinkScope, perm Permission) bool {
	switch perm {
	case PermRead:
		return true
	case PermWrite:
		return scope == ScopeReadWrite
	default:
		return false
	}
}
