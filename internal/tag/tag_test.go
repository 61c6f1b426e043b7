package tag

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taghive/taghive/internal/auth"
	"github.com/taghive/taghive/internal/clock"
	"github.com/taghive/taghive/internal/user"
)

// recordingQuerier captures statements and serves the configured tag
// rows for the by-id lookup; every other query yields no rows.
type recordingQuerier struct {
	stmts []string
	tags  []Tag
}

func (f *recordingQuerier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	return pgconn.CommandTag{}, nil
}

func (f *recordingQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.stmts = append(f.stmts, sql)
	if strings.Contains(sql, "FROM tags WHERE tag_id = ANY($1)") {
		return &tagRows{tags: f.tags}, nil
	}
	return &tagRows{}, nil
}

func (f *recordingQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.stmts = append(f.stmts, sql)
	return errRow{}
}

func (f *recordingQuerier) stmtContaining(substr string) string {
	for _, s := range f.stmts {
		if strings.Contains(s, substr) {
			return s
		}
	}
	return ""
}

type errRow struct{}

func (errRow) Scan(...any) error { return pgx.ErrNoRows }

type tagRows struct {
	tags []Tag
	i    int
}

func (r *tagRows) Next() bool { r.i++; return r.i <= len(r.tags) }

func (r *tagRows) Scan(dest ...any) error {
	t := r.tags[r.i-1]
	*dest[0].(*int64) = t.TagID
	*dest[1].(*string) = t.TagName
	*dest[2].(*string) = t.TagDescription
	*dest[3].(*bool) = t.IsPublished
	*dest[4].(*time.Time) = t.CreatedAt
	*dest[5].(*time.Time) = t.ModifiedAt
	return nil
}

func (*tagRows) Close()                                       {}
func (*tagRows) Err() error                                   { return nil }
func (*tagRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (*tagRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (*tagRows) Values() ([]any, error)                       { return nil, nil }
func (*tagRows) RawValues() [][]byte                          { return nil }
func (*tagRows) Conn() *pgx.Conn                              { return nil }

// current_object_ids of a viewed tag must not expose objects the
// caller could not view directly: non-admin reads restrict the
// association to published objects with no unpublished tag attached.
func TestGetManyObjectIDsVisibility(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	stored := []Tag{{TagID: 4, TagName: "books", IsPublished: true, CreatedAt: now, ModifiedAt: now}}

	f := &recordingQuerier{tags: stored}
	s := NewStore(f, clock.NewFrozen(now))
	out, err := s.GetMany(context.Background(), auth.Anonymous, []int64{4})
	require.NoError(t, err)
	require.Len(t, out, 1)

	q := f.stmtContaining("FROM objects_tags ot")
	require.NotEmpty(t, q)
	assert.Contains(t, q, "o.is_published")
	assert.Contains(t, q, "NOT t2.is_published")

	// Admins read the unfiltered association.
	f = &recordingQuerier{tags: stored}
	s = NewStore(f, clock.NewFrozen(now))
	_, err = s.GetMany(context.Background(),
		auth.Caller{UserID: 1, UserLevel: user.LevelAdmin}, []int64{4})
	require.NoError(t, err)

	q = f.stmtContaining("FROM objects_tags ot")
	require.NotEmpty(t, q)
	assert.NotContains(t, q, "is_published")
}
