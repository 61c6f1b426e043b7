// Package settings provides the key/value service settings store.
// Anonymous callers may read only public settings.
package settings

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/database"
)

// NonAdminRegistrationAllowed gates anonymous /auth/register.
const NonAdminRegistrationAllowed = "non_admin_registration_allowed"

// Setting is a single named service setting.
type Setting struct {
	Name     string `json:"setting_name"`
	Value    string `json:"setting_value"`
	IsPublic bool   `json:"is_public"`
}

// Store provides settings access backed by PostgreSQL.
type Store struct {
	q database.Querier
}

// NewStore creates a settings Store.
func NewStore(q database.Querier) *Store {
	return &Store{q: q}
}

// View returns the named settings, or all settings when names is empty.
// With publicOnly set, non-public settings are filtered out.
func (s *Store) View(ctx context.Context, names []string, publicOnly bool) ([]Setting, error) {
	query := `SELECT setting_name, setting_value, is_public FROM settings`
	args := []any{}
	where := ""
	if len(names) > 0 {
		args = append(args, names)
		where = ` WHERE setting_name = ANY($1)`
	}
	if publicOnly {
		if where == "" {
			where = ` WHERE is_public`
		} else {
			where += ` AND is_public`
		}
	}
	rows, err := s.q.Query(ctx, query+where+` ORDER BY setting_name`, args...)
	if err != nil {
		return nil, fmt.Errorf("settings: view: %w", database.MapError(err))
	}
	defer rows.Close()

	out := []Setting{}
	for rows.Next() {
		var st Setting
		if err := rows.Scan(&st.Name, &st.Value, &st.IsPublic); err != nil {
			return nil, fmt.Errorf("settings: view scan: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Update sets the value of existing settings. Unknown setting names are
// rejected with BadRequest; new settings are never created through the
// API.
func (s *Store) Update(ctx context.Context, values map[string]string) error {
	for name, value := range values {
		tag, err := s.q.Exec(ctx,
			`UPDATE settings SET setting_value = $2 WHERE setting_name = $1`, name, value)
		if err != nil {
			return fmt.Errorf("settings: update %q: %w", name, database.MapError(err))
		}
		if tag.RowsAffected() == 0 {
			return apperr.BadRequestf("unknown setting %q", name)
		}
	}
	return nil
}

// GetBool reads a boolean setting. Missing rows read as false.
func (s *Store) GetBool(ctx context.Context, name string) (bool, error) {
	var value string
	err := s.q.QueryRow(ctx,
		`SELECT setting_value FROM settings WHERE setting_name = $1`, name).Scan(&value)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("settings: get %q: %w", name, database.MapError(err))
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, apperr.BadRequestf("setting %q is not a boolean", name)
	}
	return b, nil
}
