// Package auth provides the session and login core: opaque bearer
// tokens with sliding expiration, bcrypt password verification, and the
// per-IP failed-login ledger with escalating lockouts.
package auth

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/clock"
	"github.com/taghive/taghive/internal/database"
	"github.com/taghive/taghive/internal/user"
)

// Session is an issued bearer token. ExpirationTime slides forward on
// every authenticated request.
type Session struct {
	AccessToken    string    `json:"access_token"`
	UserID         int64     `json:"user_id"`
	ExpirationTime time.Time `json:"expiration_time"`
}

// Service implements the session lifecycle over the sessions table and
// the rate-limit ledger.
type Service struct {
	q             database.Querier
	users         *user.Store
	ledger        *Ledger
	clk           clock.Clock
	tokenLifetime time.Duration
}

// NewService creates a session Service bound to a querier (pool or
// transaction).
func NewService(q database.Querier, clk clock.Clock, tokenLifetime time.Duration) *Service {
	return &Service{
		q:             q,
		users:         user.NewStore(q, clk),
		ledger:        NewLedger(q, clk),
		clk:           clk,
		tokenLifetime: tokenLifetime,
	}
}

// Login authenticates login/password from remoteIP and issues a
// session.
//
// While the IP is locked out the attempt returns RateLimited with the
// remaining seconds and does not touch the failure counter. Any failed
// verification — including unknown logins, so probing costs the
// attacker — increments the ledger; the 11th and later consecutive
// failures set an escalating lockout. Success clears the ledger row.
func (s *Service) Login(ctx context.Context, login, password, remoteIP string) (*Session, *user.User, error) {
	now := s.clk.Now()

	rl, err := s.ledger.Get(ctx, remoteIP)
	if err != nil {
		return nil, nil, err
	}
	if rl != nil && rl.CantLoginUntil.After(now) {
		remaining := int(math.Ceil(rl.CantLoginUntil.Sub(now).Seconds()))
		e := apperr.Newf(apperr.RateLimited, "TooManyFailedLogins",
			"too many failed login attempts, retry in %d seconds", remaining)
		e.RetryAfterSeconds = remaining
		return nil, nil, e
	}

	u, err := s.users.GetByLogin(ctx, login)
	if err != nil && !apperr.Is(err, apperr.NotFound) {
		return nil, nil, err
	}
	if u == nil || CheckPassword(u.PasswordHash, password) != nil {
		if _, err := s.ledger.RecordFailure(ctx, remoteIP); err != nil {
			return nil, nil, err
		}
		return nil, nil, apperr.New(apperr.Unauthorized, "InvalidCredentials", "incorrect login or password")
	}
	if !u.CanLogin {
		return nil, nil, apperr.New(apperr.Forbidden, "LoginDisabled", "user is not allowed to log in")
	}

	if err := s.ledger.Clear(ctx, remoteIP); err != nil {
		return nil, nil, err
	}

	sess := &Session{
		AccessToken:    uuid.NewString(),
		UserID:         u.UserID,
		ExpirationTime: now.Add(s.tokenLifetime),
	}
	_, err = s.q.Exec(ctx,
		`INSERT INTO sessions (access_token, user_id, expiration_time) VALUES ($1, $2, $3)`,
		sess.AccessToken, sess.UserID, sess.ExpirationTime)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: create session: %w", database.MapError(err))
	}
	return sess, u, nil
}

// Logout deletes the session row if present. Always succeeds.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.q.Exec(ctx,
		`DELETE FROM sessions WHERE access_token = $1`, token); err != nil {
		return fmt.Errorf("auth: logout: %w", database.MapError(err))
	}
	return nil
}

// Validate checks a bearer token and returns the session and its owner.
// The session must exist, be unexpired, and the owner must still have
// can_login. Expired sessions are deleted on sight.
func (s *Service) Validate(ctx context.Context, token string) (*Session, *user.User, error) {
	var sess Session
	err := s.q.QueryRow(ctx,
		`SELECT access_token, user_id, expiration_time FROM sessions WHERE access_token = $1`,
		token,
	).Scan(&sess.AccessToken, &sess.UserID, &sess.ExpirationTime)
	if err == pgx.ErrNoRows {
		return nil, nil, apperr.New(apperr.Unauthorized, "InvalidToken", "invalid or expired token")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("auth: validate: %w", database.MapError(err))
	}

	if !sess.ExpirationTime.After(s.clk.Now()) {
		_ = s.Logout(ctx, token)
		return nil, nil, apperr.New(apperr.Unauthorized, "InvalidToken", "invalid or expired token")
	}

	u, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, nil, apperr.New(apperr.Unauthorized, "InvalidToken", "invalid or expired token")
		}
		return nil, nil, err
	}
	if !u.CanLogin {
		_ = s.Logout(ctx, token)
		return nil, nil, apperr.New(apperr.Unauthorized, "InvalidToken", "invalid or expired token")
	}
	return &sess, u, nil
}

// Prolong resets the session expiration to now + token lifetime and
// returns the new expiration. Called on every authenticated request.
func (s *Service) Prolong(ctx context.Context, token string) (time.Time, error) {
	exp := s.clk.Now().Add(s.tokenLifetime)
	tag, err := s.q.Exec(ctx,
		`UPDATE sessions SET expiration_time = $2 WHERE access_token = $1`, token, exp)
	if err != nil {
		return time.Time{}, fmt.Errorf("auth: prolong: %w", database.MapError(err))
	}
	if tag.RowsAffected() == 0 {
		return time.Time{}, apperr.New(apperr.Unauthorized, "InvalidToken", "invalid or expired token")
	}
	return exp, nil
}

// DeleteExpired removes sessions whose expiration has passed. Used by
// the reconciliation job. Returns the number of rows removed.
func (s *Service) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM sessions WHERE expiration_time <= $1`, s.clk.Now())
	if err != nil {
		return 0, fmt.Errorf("auth: delete expired sessions: %w", database.MapError(err))
	}
	return tag.RowsAffected(), nil
}
