// Package audit persists the immutable login and change trails. Writes are
// fire-and-forget: a failed audit insert is logged and counted, never
// surfaced, so the authentication flow cannot be broken by its own forensics.
package audit

import (
	"context"
	"time"

	"peopleops.org/internal/auth"
	"peopleops.org/internal/ids"
	"peopleops.org/internal/obs"
)

const writeTimeout = 5 * time.Second

// Recorder implements auth.Recorder over the login-log and audit-log stores.
type Recorder struct {
	logins auth.LoginLogStore
	audits auth.AuditLogStore
	now    func() time.Time
}

// Option configures Recorder behavior.
type Option func(*Recorder)

// WithClock overrides the time source (test hook).
func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder over the given stores.
func NewRecorder(logins auth.LoginLogStore, audits auth.AuditLogStore, opts ...Option) *Recorder {
	r := &Recorder{logins: logins, audits: audits, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoginAttempt appends one login-log entry. The write happens before the
// caller raises its outcome, on a detached context so request cancellation
// cannot drop the trail.
func (r *Recorder) LoginAttempt(ctx context.Context, attempt auth.LoginAttempt) {
	entry := &auth.LoginLog{
		ID:         ids.New(),
		UserID:     attempt.UserID,
		Username:   attempt.Username,
		IPAddress:  attempt.IPAddress,
		UserAgent:  attempt.UserAgent,
		Successful: attempt.Successful,
		LoginTime:  r.now().UTC(),
	}
	if attempt.FailureReason != "" {
		reason := attempt.FailureReason
		entry.FailureReason = &reason
	}

	outcome := "failure"
	if attempt.Successful {
		outcome = "success"
	}
	obs.ObserveLoginAttempt(outcome)

	wctx, cancel := r.detach(ctx)
	defer cancel()
	if err := r.logins.Append(wctx, entry); err != nil {
		obs.ObserveAuditWriteFailure()
		obs.Logger().Warn().
			Err(err).
			Str("username", attempt.Username).
			Bool("successful", attempt.Successful).
			Msg("login log write failed")
	}
}

// Change appends one audit-log entry for a data mutation.
func (r *Recorder) Change(ctx context.Context, change auth.Change) {
	entry := &auth.AuditLog{
		ID:        ids.New(),
		TableName: change.TableName,
		RecordID:  change.RecordID,
		Action:    change.Action,
		OldValues: change.OldValues,
		NewValues: change.NewValues,
		ChangedBy: change.ChangedBy,
		IPAddress: change.IPAddress,
		UserAgent: change.UserAgent,
		ChangedAt: r.now().UTC(),
	}

	wctx, cancel := r.detach(ctx)
	defer cancel()
	if err := r.audits.Append(wctx, entry); err != nil {
		obs.ObserveAuditWriteFailure()
		obs.Logger().Warn().
			Err(err).
			Str("table", change.TableName).
			Str("record_id", change.RecordID).
			Str("action", change.Action).
			Msg("audit log write failed")
	}
}

// detach severs the write from the request's cancellation while keeping its
// values, then bounds it with the recorder's own timeout.
func (r *Recorder) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
}

// LoginLogsForUser returns a user's login history, newest first.
func (r *Recorder) LoginLogsForUser(ctx context.Context, userID string, limit, offset int) ([]auth.LoginLog, error) {
	return r.logins.ForUser(ctx, userID, clampLimit(limit), max(offset, 0))
}

// FailedLoginCount counts failed attempts for a username within the window.
func (r *Recorder) FailedLoginCount(ctx context.Context, username string, window time.Duration) (int, error) {
	since := r.now().UTC().Add(-window)
	return r.logins.CountFailedSince(ctx, username, since)
}

// ChangesForRecord returns the change history of one record, newest first.
func (r *Recorder) ChangesForRecord(ctx context.Context, tableName, recordID string, limit, offset int) ([]auth.AuditLog, error) {
	return r.audits.ForRecord(ctx, tableName, recordID, clampLimit(limit), max(offset, 0))
}

// ChangesForTable returns the change history of a table, newest first.
func (r *Recorder) ChangesForTable(ctx context.Context, tableName string, limit, offset int) ([]auth.AuditLog, error) {
	return r.audits.ForTable(ctx, tableName, clampLimit(limit), max(offset, 0))
}

// ChangesForUser returns the changes performed by one actor, newest first.
func (r *Recorder) ChangesForUser(ctx context.Context, changedBy string, limit, offset int) ([]auth.AuditLog, error) {
	return r.audits.ForUser(ctx, changedBy, clampLimit(limit), max(offset, 0))
}

func clampLimit(limit int) int {
	const defaultLimit, maxLimit = 50, 500
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
