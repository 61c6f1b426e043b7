package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taghive/taghive/internal/clock"
	"github.com/taghive/taghive/internal/database"
)

// lockoutSchedule is the escalating lockout applied starting with the
// 11th consecutive failed login from an IP. Later failures reuse the
// last entry.
var lockoutSchedule = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	600 * time.Second,
	1200 * time.Second,
	1800 * time.Second,
	3600 * time.Second,
}

// LockoutAfter returns the lockout duration set by the failed-th
// consecutive failure. The first ten failures do not lock.
func LockoutAfter(failed int) time.Duration {
	if failed <= 10 {
		return 0
	}
	idx := failed - 11
	if idx >= len(lockoutSchedule) {
		idx = len(lockoutSchedule) - 1
	}
	return lockoutSchedule[idx]
}

// RateLimit is the per-IP failed-login ledger row.
type RateLimit struct {
	IPAddress           string
	FailedLoginAttempts int
	CantLoginUntil      time.Time
}

// Ledger tracks failed logins per source IP. A row is created on the
// first failure, escalated by LockoutAfter, deleted on success, and
// purged by the reconciliation job a day after the lockout passed.
type Ledger struct {
	q   database.Querier
	clk clock.Clock
}

// NewLedger creates a rate-limit Ledger.
func NewLedger(q database.Querier, clk clock.Clock) *Ledger {
	return &Ledger{q: q, clk: clk}
}

// Get returns the ledger row for an IP, or nil when none exists.
func (l *Ledger) Get(ctx context.Context, ip string) (*RateLimit, error) {
	var r RateLimit
	err := l.q.QueryRow(ctx,
		`SELECT ip_address, failed_login_attempts, cant_login_until
		 FROM login_rate_limits WHERE ip_address = $1`, ip,
	).Scan(&r.IPAddress, &r.FailedLoginAttempts, &r.CantLoginUntil)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ratelimit: get %q: %w", ip, database.MapError(err))
	}
	return &r, nil
}

// RecordFailure increments the failure counter for an IP and applies
// the escalating lockout. Returns the updated row. Concurrent failures
// for one IP are serialized by the row-level upsert.
func (l *Ledger) RecordFailure(ctx context.Context, ip string) (*RateLimit, error) {
	now := l.clk.Now()
	var r RateLimit
	err := l.q.QueryRow(ctx,
		`INSERT INTO login_rate_limits (ip_address, failed_login_attempts, cant_login_until)
		 VALUES ($1, 1, $2)
		 ON CONFLICT (ip_address) DO UPDATE
		 SET failed_login_attempts = login_rate_limits.failed_login_attempts + 1
		 RETURNING ip_address, failed_login_attempts, cant_login_until`,
		ip, now,
	).Scan(&r.IPAddress, &r.FailedLoginAttempts, &r.CantLoginUntil)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: record failure %q: %w", ip, database.MapError(err))
	}

	if lockout := LockoutAfter(r.FailedLoginAttempts); lockout > 0 {
		r.CantLoginUntil = now.Add(lockout)
		_, err = l.q.Exec(ctx,
			`UPDATE login_rate_limits SET cant_login_until = $2 WHERE ip_address = $1`,
			ip, r.CantLoginUntil)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: set lockout %q: %w", ip, database.MapError(err))
		}
	}
	return &r, nil
}

// Clear removes the ledger row for an IP. Called on successful login.
func (l *Ledger) Clear(ctx context.Context, ip string) error {
	if _, err := l.q.Exec(ctx,
		`DELETE FROM login_rate_limits WHERE ip_address = $1`, ip); err != nil {
		return fmt.Errorf("ratelimit: clear %q: %w", ip, database.MapError(err))
	}
	return nil
}

// PurgeStale removes rows whose lockout passed more than a day ago.
// Returns the number of rows removed.
func (l *Ledger) PurgeStale(ctx context.Context) (int64, error) {
	cutoff := l.clk.Now().Add(-24 * time.Hour)
	tag, err := l.q.Exec(ctx,
		`DELETE FROM login_rate_limits WHERE cant_login_until < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ratelimit: purge stale: %w", database.MapError(err))
	}
	return tag.RowsAffected(), nil
}
