// Package tag provides tag persistence and the tag service: CRUD,
// string-reference resolution, paging, and prefix search. Non-published
// tags are hidden from non-admin callers and hide every object carrying
// them.
package tag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/auth"
	"github.com/taghive/taghive/internal/clock"
	"github.com/taghive/taghive/internal/database"
)

// Tag is a stored tag row.
type Tag struct {
	TagID          int64     `json:"tag_id"`
	TagName        string    `json:"tag_name"`
	TagDescription string    `json:"tag_description"`
	IsPublished    bool      `json:"is_published"`
	CreatedAt      time.Time `json:"created_at"`
	ModifiedAt     time.Time `json:"modified_at"`
	// CurrentObjectIDs lists the objects carrying this tag, filled on view.
	CurrentObjectIDs []int64 `json:"current_object_ids,omitempty"`
}

// Store provides tag operations backed by PostgreSQL.
type Store struct {
	q   database.Querier
	clk clock.Clock
}

// NewStore creates a tag Store bound to a querier (pool or transaction).
func NewStore(q database.Querier, clk clock.Clock) *Store {
	return &Store{q: q, clk: clk}
}

const tagColumns = `tag_id, tag_name, tag_description, is_published, created_at, modified_at`

func validateName(name string) error {
	if name == "" || len(name) > 255 {
		return apperr.BadRequestf("tag_name must be 1..255 characters")
	}
	return nil
}

// AddParams holds the fields for creating a tag.
type AddParams struct {
	TagName        string
	TagDescription string
	IsPublished    bool
	AddedObjectIDs []int64
}

// Add validates and inserts a new tag, then applies added_object_ids.
// A case-insensitive duplicate name is a Conflict; unknown object ids
// are a BadRequest.
func (s *Store) Add(ctx context.Context, p AddParams) (*Tag, error) {
	if err := validateName(p.TagName); err != nil {
		return nil, err
	}
	now := s.clk.Now()

	var t Tag
	err := s.q.QueryRow(ctx,
		`INSERT INTO tags (tag_name, tag_description, is_published, created_at, modified_at)
		 VALUES ($1, $2, $3, $4, $4)
		 RETURNING `+tagColumns,
		p.TagName, p.TagDescription, p.IsPublished, now,
	).Scan(&t.TagID, &t.TagName, &t.TagDescription, &t.IsPublished, &t.CreatedAt, &t.ModifiedAt)
	if err != nil {
		if apperr.Is(database.MapError(err), apperr.Conflict) {
			return nil, apperr.Conflictf("tag %q already exists", p.TagName)
		}
		return nil, fmt.Errorf("tag: add %q: %w", p.TagName, database.MapError(err))
	}

	if err := s.applyObjectsDelta(ctx, t.TagID, p.AddedObjectIDs, nil); err != nil {
		return nil, err
	}
	t.CurrentObjectIDs, err = s.objectIDs(ctx, t.TagID, false)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateParams holds the fields for updating a tag.
type UpdateParams struct {
	TagName          string
	TagDescription   string
	IsPublished      bool
	AddedObjectIDs   []int64
	RemovedObjectIDs []int64
}

// Update rewrites a tag row and applies the objects_tags delta.
// modified_at is bumped only when a tag field actually changed; a pure
// membership delta does not re-version the tag.
func (s *Store) Update(ctx context.Context, id int64, p UpdateParams) (*Tag, error) {
	if err := validateName(p.TagName); err != nil {
		return nil, err
	}

	var cur Tag
	err := s.q.QueryRow(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE tag_id = $1`, id,
	).Scan(&cur.TagID, &cur.TagName, &cur.TagDescription, &cur.IsPublished, &cur.CreatedAt, &cur.ModifiedAt)
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFoundf("tag %d does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("tag: get %d: %w", id, database.MapError(err))
	}

	changed := cur.TagName != p.TagName ||
		cur.TagDescription != p.TagDescription ||
		cur.IsPublished != p.IsPublished
	if changed {
		modifiedAt := s.clk.Now()
		err = s.q.QueryRow(ctx,
			`UPDATE tags SET tag_name = $2, tag_description = $3, is_published = $4, modified_at = $5
			 WHERE tag_id = $1
			 RETURNING `+tagColumns,
			id, p.TagName, p.TagDescription, p.IsPublished, modifiedAt,
		).Scan(&cur.TagID, &cur.TagName, &cur.TagDescription, &cur.IsPublished, &cur.CreatedAt, &cur.ModifiedAt)
		if err != nil {
			if apperr.Is(database.MapError(err), apperr.Conflict) {
				return nil, apperr.Conflictf("tag %q already exists", p.TagName)
			}
			return nil, fmt.Errorf("tag: update %d: %w", id, database.MapError(err))
		}
	}

	if err := s.applyObjectsDelta(ctx, id, p.AddedObjectIDs, p.RemovedObjectIDs); err != nil {
		return nil, err
	}
	cur.CurrentObjectIDs, err = s.objectIDs(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return &cur, nil
}

// applyObjectsDelta adds and removes objects_tags rows for one tag.
// Added ids must exist; addition is idempotent, removal silent.
func (s *Store) applyObjectsDelta(ctx context.Context, tagID int64, added, removed []int64) error {
	if len(added) > 0 {
		var count int
		err := s.q.QueryRow(ctx,
			`SELECT COUNT(*) FROM objects WHERE object_id = ANY($1)`, added).Scan(&count)
		if err != nil {
			return fmt.Errorf("tag: check objects: %w", database.MapError(err))
		}
		if count != len(dedupIDs(added)) {
			return apperr.BadRequestf("added_object_ids contains unknown object ids")
		}
		_, err = s.q.Exec(ctx,
			`INSERT INTO objects_tags (object_id, tag_id)
			 SELECT unnest($1::bigint[]), $2
			 ON CONFLICT DO NOTHING`, added, tagID)
		if err != nil {
			return fmt.Errorf("tag: add objects: %w", database.MapError(err))
		}
	}
	if len(removed) > 0 {
		_, err := s.q.Exec(ctx,
			`DELETE FROM objects_tags WHERE tag_id = $1 AND object_id = ANY($2)`, tagID, removed)
		if err != nil {
			return fmt.Errorf("tag: remove objects: %w", database.MapError(err))
		}
	}
	return nil
}

// objectIDs lists the objects carrying a tag. With visibleOnly set the
// list is restricted to objects the anonymous/non-admin reader could
// view: published, with no unpublished tag attached.
func (s *Store) objectIDs(ctx context.Context, tagID int64, visibleOnly bool) ([]int64, error) {
	query := `SELECT ot.object_id FROM objects_tags ot WHERE ot.tag_id = $1`
	if visibleOnly {
		query = `SELECT ot.object_id FROM objects_tags ot
			JOIN objects o ON o.object_id = ot.object_id
			WHERE ot.tag_id = $1 AND o.is_published AND NOT EXISTS (
				SELECT 1 FROM objects_tags ot2
				JOIN tags t2 ON t2.tag_id = ot2.tag_id
				WHERE ot2.object_id = ot.object_id AND NOT t2.is_published)`
	}
	rows, err := s.q.Query(ctx, query+` ORDER BY ot.object_id`, tagID)
	if err != nil {
		return nil, fmt.Errorf("tag: object ids: %w", database.MapError(err))
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ObjectIDsForTags returns the distinct objects carrying any of the
// given tags. Used to reindex affected objects around a tag deletion.
func (s *Store) ObjectIDsForTags(ctx context.Context, tagIDs []int64) ([]int64, error) {
	if len(tagIDs) == 0 {
		return []int64{}, nil
	}
	rows, err := s.q.Query(ctx,
		`SELECT DISTINCT object_id FROM objects_tags WHERE tag_id = ANY($1)`, tagIDs)
	if err != nil {
		return nil, fmt.Errorf("tag: objects for tags: %w", database.MapError(err))
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes tags and, by cascade, their objects_tags rows.
// Returns the ids that were actually deleted.
func (s *Store) Delete(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}
	rows, err := s.q.Query(ctx,
		`DELETE FROM tags WHERE tag_id = ANY($1) RETURNING tag_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("tag: delete: %w", database.MapError(err))
	}
	defer rows.Close()

	deleted := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}

// GetMany returns tags by id, in input order. Non-admin callers see
// only published tags; ids they cannot see are omitted, and
// current_object_ids carries only the objects they could view.
func (s *Store) GetMany(ctx context.Context, caller auth.Caller, ids []int64) ([]Tag, error) {
	if len(ids) == 0 {
		return []Tag{}, nil
	}
	query := `SELECT ` + tagColumns + ` FROM tags WHERE tag_id = ANY($1)`
	if !caller.IsAdmin() {
		query += ` AND is_published`
	}
	rows, err := s.q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("tag: get many: %w", database.MapError(err))
	}
	defer rows.Close()

	byID := map[int64]Tag{}
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.TagID, &t.TagName, &t.TagDescription, &t.IsPublished, &t.CreatedAt, &t.ModifiedAt); err != nil {
			return nil, err
		}
		byID[t.TagID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := []Tag{}
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			objIDs, err := s.objectIDs(ctx, id, !caller.IsAdmin())
			if err != nil {
				return nil, err
			}
			t.CurrentObjectIDs = objIDs
			out = append(out, t)
		}
	}
	return out, nil
}

// ResolveRefs maps a list of tag references to tag ids. Integer refs
// must exist (BadRequest otherwise); string refs are matched by
// case-insensitive name and created with is_published=true when
// unmatched. Returns the deduplicated ids and the subset that was
// newly created.
func (s *Store) ResolveRefs(ctx context.Context, refs []Ref) (ids, created []int64, err error) {
	intIDs, names := splitRefs(refs)

	if len(intIDs) > 0 {
		var count int
		if err := s.q.QueryRow(ctx,
			`SELECT COUNT(*) FROM tags WHERE tag_id = ANY($1)`, intIDs).Scan(&count); err != nil {
			return nil, nil, fmt.Errorf("tag: resolve refs: %w", database.MapError(err))
		}
		if count != len(intIDs) {
			return nil, nil, apperr.BadRequestf("added_tags contains unknown tag ids")
		}
	}

	resolved := map[string]int64{}
	if len(names) > 0 {
		lowered := make([]string, len(names))
		for i, n := range names {
			lowered[i] = strings.ToLower(n)
		}
		rows, err := s.q.Query(ctx,
			`SELECT tag_id, LOWER(tag_name) FROM tags WHERE LOWER(tag_name) = ANY($1)`, lowered)
		if err != nil {
			return nil, nil, fmt.Errorf("tag: resolve names: %w", database.MapError(err))
		}
		for rows.Next() {
			var id int64
			var lname string
			if err := rows.Scan(&id, &lname); err != nil {
				rows.Close()
				return nil, nil, err
			}
			resolved[lname] = id
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, nil, err
		}
	}

	now := s.clk.Now()
	ids = append(ids, intIDs...)
	seen := map[int64]struct{}{}
	for _, id := range intIDs {
		seen[id] = struct{}{}
	}
	for _, name := range names {
		id, ok := resolved[strings.ToLower(name)]
		if !ok {
			err := s.q.QueryRow(ctx,
				`INSERT INTO tags (tag_name, tag_description, is_published, created_at, modified_at)
				 VALUES ($1, '', TRUE, $2, $2)
				 RETURNING tag_id`, name, now).Scan(&id)
			if err != nil {
				return nil, nil, fmt.Errorf("tag: create %q: %w", name, database.MapError(err))
			}
			created = append(created, id)
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, created, nil
}

func dedupIDs(ids []int64) []int64 {
	seen := map[int64]struct{}{}
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
