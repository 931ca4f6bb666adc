package engine_test

import (
	"errors"
	"fmt"
	"testing"

	"strongbox/internal/engine"
)

func TestErrorCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{engine.ErrDenied, "denied"},
		{engine.ErrNotFound, "not_found"},
		{engine.ErrLockHeld, "lock_held"},
		{engine.ErrConflict, "conflict"},
		{engine.ErrCycle, "cycle"},
		{engine.ErrIntegrity, "integrity"},
		{engine.ErrStorage, "storage_unavailable"},
		{engine.ErrLinkExpired, "link_expired"},
		{engine.ErrLinkRevoked, "link_revoked"},
		{engine.ErrLinkInvalid, "link_invalid"},
		{errors.New("anything else"), "internal"},
		{fmt.Errorf("wrapped: %w", engine.ErrConflict), "conflict"},
	}

	for _, tt := range tests {
		if got := engine.ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	retryable := []error{engine.ErrLockHeld, engine.ErrConflict, engine.ErrStorage}
	for _, err := range retryable {
		if !engine.Retryable(fmt.Errorf("op: %w", err)) {
			t.Errorf("Retryable(%v) = false, want true", err)
		}
	}

	terminal := []error{engine.ErrDenied, engine.ErrNotFound, engine.ErrIntegrity, engine.ErrLinkExpired}
	for _, err := range terminal {
		if engine.Retryable(err) {
			t.Errorf("Retryable(%v) = true, want false", err)
		}
	}
}
