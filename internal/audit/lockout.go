package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/psyphiuk/marcello-whatsapp-pa-web/model"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/params"
)

type LockoutStatus struct {
	Locked           bool
	RemainingSeconds int
}

// ComputeLockout derives a lockout decision from the failed attempts inside
// the trailing window, ordered most recent first. The lockout clock runs from
// the most recent attempt, so new failures while locked keep extending it.
func ComputeLockout(attempts []*model.FailedLogin, maxAttempts int, window time.Duration, now time.Time) LockoutStatus {
	if len(attempts) < maxAttempts {
		return LockoutStatus{}
	}
	lockoutEnd := attempts[0].CreatedAt.Add(window)
	if now.Before(lockoutEnd) {
		remaining := int(lockoutEnd.Sub(now).Seconds())
		if remaining < 1 {
			remaining = 1
		}
		return LockoutStatus{Locked: true, RemainingSeconds: remaining}
	}
	return LockoutStatus{}
}

// CheckLockout reports whether the account identified by email is currently
// locked out. A store failure fails open: lockout is advisory and must not
// take logins down with the audit store.
func CheckLockout(ctx context.Context, email string) LockoutStatus {
	if auditRepo == nil {
		return LockoutStatus{}
	}
	now := time.Now()
	attempts, err := auditRepo.RecentFailedLogins(ctx, email, now.Add(-params.LockoutWindow))
	if err != nil {
		slog.Error("Failed to check account lockout", "error", err)
		return LockoutStatus{}
	}
	return ComputeLockout(attempts, params.LockoutMaxAttempts, params.LockoutWindow, now)
}

// PurgeExpired trims audit rows past their retention windows. It is meant for
// a periodic sweep, never the request path.
func PurgeExpired(ctx context.Context) {
	if auditRepo == nil {
		return
	}
	now := time.Now()
	err := auditRepo.PurgeBefore(ctx, now.Add(-params.AuditLogRetention), now.Add(-params.FailedLoginRetention))
	if err != nil {
		slog.Error("Failed to purge expired audit rows", "error", err)
	}
}
