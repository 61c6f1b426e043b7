package object

import (
	"context"
	"encoding/json"
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

// fakeQuerier records every statement in order and serves canned rows,
// enough to drive the store pipelines without a database.
type fakeQuerier struct {
	stmts  []string
	args   [][]any
	stored map[int64]Attributes
	nextID int64
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{stored: map[int64]Attributes{}, nextID: 200}
}

func (f *fakeQuerier) record(sql string, args []any) {
	f.stmts = append(f.stmts, sql)
	f.args = append(f.args, args)
}

// firstIndex returns the position of the first recorded statement
// containing substr, or -1.
func (f *fakeQuerier) firstIndex(substr string) int {
	for i, s := range f.stmts {
		if strings.Contains(s, substr) {
			return i
		}
	}
	return -1
}

func (f *fakeQuerier) lastIndex(substr string) int {
	last := -1
	for i, s := range f.stmts {
		if strings.Contains(s, substr) {
			last = i
		}
	}
	return last
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.record(sql, args)
	return pgconn.CommandTag{}, nil
}

func (f *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.record(sql, args)
	return emptyRows{}, nil
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.record(sql, args)
	switch {
	case strings.Contains(sql, "nextval"):
		f.nextID++
		id := f.nextID
		return rowFunc(func(dest ...any) error {
			*dest[0].(*int64) = id
			return nil
		})
	case strings.Contains(sql, "SELECT COUNT(*) FROM objects"):
		n := len(args[0].([]int64))
		return rowFunc(func(dest ...any) error {
			*dest[0].(*int) = n
			return nil
		})
	case strings.Contains(sql, "SELECT EXISTS(SELECT 1 FROM users"):
		return rowFunc(func(dest ...any) error {
			*dest[0].(*bool) = true
			return nil
		})
	case strings.Contains(sql, "INSERT INTO objects ("):
		a := Attributes{
			ObjectID:          args[0].(int64),
			ObjectType:        args[1].(string),
			ObjectName:        args[2].(string),
			ObjectDescription: args[3].(string),
			OwnerID:           args[4].(int64),
			IsPublished:       args[5].(bool),
			DisplayInFeed:     args[6].(bool),
			ShowDescription:   args[8].(bool),
			CreatedAt:         args[9].(time.Time),
			ModifiedAt:        args[9].(time.Time),
		}
		a.FeedTimestamp, _ = args[7].(*time.Time)
		f.stored[a.ObjectID] = a
		return rowFunc(func(dest ...any) error { return scanAttrRow(a, dest) })
	case strings.Contains(sql, "UPDATE objects SET"):
		a := f.stored[args[0].(int64)]
		a.ObjectName = args[1].(string)
		a.ObjectDescription = args[2].(string)
		a.OwnerID = args[3].(int64)
		a.IsPublished = args[4].(bool)
		a.DisplayInFeed = args[5].(bool)
		a.FeedTimestamp, _ = args[6].(*time.Time)
		a.ShowDescription = args[7].(bool)
		a.ModifiedAt = args[8].(time.Time)
		f.stored[a.ObjectID] = a
		return rowFunc(func(dest ...any) error { return scanAttrRow(a, dest) })
	case strings.Contains(sql, "FROM objects WHERE object_id = $1"):
		a, ok := f.stored[args[0].(int64)]
		if !ok {
			return rowFunc(func(...any) error { return pgx.ErrNoRows })
		}
		return rowFunc(func(dest ...any) error { return scanAttrRow(a, dest) })
	}
	return rowFunc(func(...any) error { return pgx.ErrNoRows })
}

// scanAttrRow fills scan targets in attrColumns order.
func scanAttrRow(a Attributes, dest []any) error {
	*dest[0].(*int64) = a.ObjectID
	*dest[1].(*string) = a.ObjectType
	*dest[2].(*string) = a.ObjectName
	*dest[3].(*string) = a.ObjectDescription
	*dest[4].(*int64) = a.OwnerID
	*dest[5].(*bool) = a.IsPublished
	*dest[6].(*bool) = a.DisplayInFeed
	*dest[7].(**time.Time) = a.FeedTimestamp
	*dest[8].(*bool) = a.ShowDescription
	*dest[9].(*time.Time) = a.CreatedAt
	*dest[10].(*time.Time) = a.ModifiedAt
	return nil
}

type rowFunc func(dest ...any) error

func (fn rowFunc) Scan(dest ...any) error { return fn(dest...) }

type emptyRows struct{}

func (emptyRows) Close()                                       {}
func (emptyRows) Err() error                                   { return nil }
func (emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (emptyRows) Next() bool                                   { return false }
func (emptyRows) Scan(...any) error                            { return nil }
func (emptyRows) Values() ([]any, error)                       { return nil, nil }
func (emptyRows) RawValues() [][]byte                          { return nil }
func (emptyRows) Conn() *pgx.Conn                              { return nil }

func adminCaller(id int64) auth.Caller {
	return auth.Caller{UserID: id, UserLevel: user.LevelAdmin, CanEditObjects: true}
}

// A composite updated in the same request as a new object it
// references must see that object's attribute row before its grid rows
// are written, regardless of item order.
func TestBulkUpsertWritesAttributesBeforeCompositeGrid(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	f := newFakeQuerier()
	f.stored[101] = Attributes{
		ObjectID: 101, ObjectType: TypeComposite, ObjectName: "roadmap",
		OwnerID: 1, CreatedAt: now, ModifiedAt: now,
	}

	store := NewStore(f, clock.NewFrozen(now))
	items := []UpsertItem{
		{
			ObjectID:   101,
			ObjectType: TypeComposite,
			ObjectName: "roadmap",
			ObjectData: json.RawMessage(`{"display_mode":"basic","subobjects":[
				{"subobject_id":110,"column":0,"row":0},
				{"subobject_id":-1,"column":0,"row":1}]}`),
		},
		{
			ObjectID:   -1,
			ObjectType: TypeMarkdown,
			ObjectName: "notes",
			ObjectData: json.RawMessage(`{"raw_text":"# Notes"}`),
		},
	}

	res, err := store.BulkUpsert(context.Background(), adminCaller(1), items, nil)
	require.NoError(t, err)

	newID, ok := res.NewObjectIDsMap[-1]
	require.True(t, ok)
	require.Greater(t, newID, int64(0))

	attrInsert := f.lastIndex("INSERT INTO objects (")
	gridInsert := f.firstIndex("INSERT INTO composite_subobjects")
	require.GreaterOrEqual(t, attrInsert, 0)
	require.GreaterOrEqual(t, gridInsert, 0)
	assert.Less(t, attrInsert, gridInsert)

	// The remapped placeholder lands in the grid.
	found := false
	for i, s := range f.stmts {
		if strings.Contains(s, "INSERT INTO composite_subobjects") && f.args[i][1] == newID {
			found = true
		}
	}
	assert.True(t, found)
	assert.GreaterOrEqual(t, f.firstIndex("INSERT INTO markdown"), 0)
}

func TestUpdateAttributesKeepsOwnerWhenOmitted(t *testing.T) {
	created := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	f := newFakeQuerier()
	f.stored[7] = Attributes{
		ObjectID: 7, ObjectType: TypeMarkdown, ObjectName: "notes",
		OwnerID: 3, CreatedAt: created, ModifiedAt: created,
	}

	store := NewStore(f, clock.NewFrozen(created.Add(time.Hour)))
	got, err := store.UpdateAttributes(context.Background(), adminCaller(1), 7,
		AttrParams{ObjectType: TypeMarkdown, ObjectName: "notes"})
	require.NoError(t, err)

	assert.Equal(t, int64(3), got.OwnerID)
	assert.True(t, got.ModifiedAt.Equal(created))
	// Nothing changed, so no write is issued.
	assert.Equal(t, -1, f.firstIndex("UPDATE objects"))
}

func TestUpdateAttributesExplicitOwner(t *testing.T) {
	created := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	f := newFakeQuerier()
	f.stored[7] = Attributes{
		ObjectID: 7, ObjectType: TypeMarkdown, ObjectName: "notes",
		OwnerID: 3, CreatedAt: created, ModifiedAt: created,
	}

	store := NewStore(f, clock.NewFrozen(created.Add(time.Hour)))
	got, err := store.UpdateAttributes(context.Background(), adminCaller(1), 7,
		AttrParams{ObjectType: TypeMarkdown, ObjectName: "notes", OwnerID: 5})
	require.NoError(t, err)

	assert.Equal(t, int64(5), got.OwnerID)
	assert.True(t, got.ModifiedAt.After(created))
	assert.GreaterOrEqual(t, f.firstIndex("SELECT EXISTS(SELECT 1 FROM users"), 0)
	assert.GreaterOrEqual(t, f.firstIndex("UPDATE objects"), 0)
}
