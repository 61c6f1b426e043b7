// Package user provides the data model and persistence for service
// accounts.
//
// Levels control what a user can do:
//   - admin: full access, sees unpublished entities
//   - user:  regular account, visibility filter applies
//
// user_id = 1 is the built-in default admin, ensured at startup.
package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/clock"
	"github.com/taghive/taghive/internal/database"
)

// Valid user levels.
const (
	LevelAdmin = "admin"
	LevelUser  = "user"
)

// DefaultAdminID is the reserved id of the built-in admin.
const DefaultAdminID int64 = 1

// User represents a service account. PasswordHash never leaves the
// package boundary in API responses.
type User struct {
	UserID         int64     `json:"user_id"`
	Login          string    `json:"login"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	UserLevel      string    `json:"user_level"`
	CanLogin       bool      `json:"can_login"`
	CanEditObjects bool      `json:"can_edit_objects"`
	RegisteredAt   time.Time `json:"registered_at"`
}

// IsAdmin reports whether the user has the admin level.
func (u *User) IsAdmin() bool { return u.UserLevel == LevelAdmin }

// CreateParams holds the parameters for registering a new user.
type CreateParams struct {
	Login          string
	Username       string
	Password       string // plaintext, will be hashed by the caller's service
	PasswordHash   string
	UserLevel      string // defaults to "user" if empty
	CanLogin       bool
	CanEditObjects bool
}

// Store provides user CRUD operations backed by PostgreSQL.
type Store struct {
	q   database.Querier
	clk clock.Clock
}

// NewStore creates a user Store bound to a querier (pool or transaction).
func NewStore(q database.Querier, clk clock.Clock) *Store {
	return &Store{q: q, clk: clk}
}

const userColumns = `user_id, login, username, password_hash, user_level, can_login, can_edit_objects, registered_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.UserID, &u.Login, &u.Username, &u.PasswordHash,
		&u.UserLevel, &u.CanLogin, &u.CanEditObjects, &u.RegisteredAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user. Login uniqueness is case-insensitive and
// surfaces as Conflict.
func (s *Store) Create(ctx context.Context, p CreateParams) (*User, error) {
	level := p.UserLevel
	if level == "" {
		level = LevelUser
	}
	row := s.q.QueryRow(ctx,
		`INSERT INTO users (login, username, password_hash, user_level, can_login, can_edit_objects, registered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+userColumns,
		p.Login, p.Username, p.PasswordHash, level, p.CanLogin, p.CanEditObjects, s.clk.Now())
	u, err := scanUser(row)
	if err != nil {
		if apperr.Is(database.MapError(err), apperr.Conflict) {
			return nil, apperr.Conflictf("login %q is already taken", p.Login)
		}
		return nil, fmt.Errorf("user: create %q: %w", p.Login, database.MapError(err))
	}
	return u, nil
}

// GetByID returns a user by id. Returns NotFound if no user matches.
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(s.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFoundf("user %d does not exist", id)
		}
		return nil, fmt.Errorf("user: get %d: %w", id, database.MapError(err))
	}
	return u, nil
}

// GetByLogin returns a user by login, matched case-insensitively.
// Returns NotFound if no user matches.
func (s *Store) GetByLogin(ctx context.Context, login string) (*User, error) {
	u, err := scanUser(s.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(login) = LOWER($1)`, login))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFoundf("user %q does not exist", login)
		}
		return nil, fmt.Errorf("user: get by login %q: %w", login, database.MapError(err))
	}
	return u, nil
}

// GetMany returns the users with the given ids, in id order. Missing
// ids are silently omitted.
func (s *Store) GetMany(ctx context.Context, ids []int64) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	rows, err := s.q.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = ANY($1) ORDER BY user_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("user: get many: %w", database.MapError(err))
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.UserID, &u.Login, &u.Username, &u.PasswordHash,
			&u.UserLevel, &u.CanLogin, &u.CanEditObjects, &u.RegisteredAt); err != nil {
			return nil, fmt.Errorf("user: get many scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Exists reports whether a user with the given id exists.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user: exists %d: %w", id, database.MapError(err))
	}
	return exists, nil
}

// UpdateParams holds the mutable user fields. Nil pointers are left
// unchanged.
type UpdateParams struct {
	Login          *string
	Username       *string
	PasswordHash   *string
	UserLevel      *string
	CanLogin       *bool
	CanEditObjects *bool
}

// Update applies a partial update to a user. Returns the updated row,
// NotFound for an unknown id, Conflict for a duplicate login. When the
// user loses can_login, their sessions are destroyed.
func (s *Store) Update(ctx context.Context, id int64, p UpdateParams) (*User, error) {
	set := []string{}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Login != nil {
		add("login", *p.Login)
	}
	if p.Username != nil {
		add("username", *p.Username)
	}
	if p.PasswordHash != nil {
		add("password_hash", *p.PasswordHash)
	}
	if p.UserLevel != nil {
		if *p.UserLevel != LevelAdmin && *p.UserLevel != LevelUser {
			return nil, apperr.BadRequestf("unknown user_level %q", *p.UserLevel)
		}
		add("user_level", *p.UserLevel)
	}
	if p.CanLogin != nil {
		add("can_login", *p.CanLogin)
	}
	if p.CanEditObjects != nil {
		add("can_edit_objects", *p.CanEditObjects)
	}
	if len(set) == 0 {
		return s.GetByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE user_id = $%d RETURNING %s`,
		strings.Join(set, ", "), len(args), userColumns)

	u, err := scanUser(s.q.QueryRow(ctx, query, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFoundf("user %d does not exist", id)
		}
		if apperr.Is(database.MapError(err), apperr.Conflict) {
			return nil, apperr.Conflictf("login is already taken")
		}
		return nil, fmt.Errorf("user: update %d: %w", id, database.MapError(err))
	}

	if p.CanLogin != nil && !*p.CanLogin {
		if _, err := s.q.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, id); err != nil {
			return nil, fmt.Errorf("user: drop sessions for %d: %w", id, database.MapError(err))
		}
	}
	return u, nil
}

// EnsureDefaultAdmin creates the built-in admin when the users table
// has no row with user_id = 1. The login and password hash come from
// config. Existing rows are left untouched.
func (s *Store) EnsureDefaultAdmin(ctx context.Context, login, passwordHash string) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO users (user_id, login, username, password_hash, user_level, can_login, can_edit_objects, registered_at)
		 VALUES ($1, $2, $2, $3, $4, TRUE, TRUE, $5)
		 ON CONFLICT (user_id) DO NOTHING`,
		DefaultAdminID, login, passwordHash, LevelAdmin, s.clk.Now())
	if err != nil {
		return fmt.Errorf("user: ensure default admin: %w", database.MapError(err))
	}
	// Keep the id sequence ahead of the explicit insert.
	_, err = s.q.Exec(ctx,
		`SELECT setval(pg_get_serial_sequence('users', 'user_id'), GREATEST((SELECT MAX(user_id) FROM users), 1))`)
	if err != nil {
		return fmt.Errorf("user: bump user sequence: %w", database.MapError(err))
	}
	return nil
}
