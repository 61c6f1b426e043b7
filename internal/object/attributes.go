package object

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/auth"
	"github.com/taghive/taghive/internal/database"
)

const attrColumns = `object_id, object_type, object_name, object_description, owner_id,
	is_published, display_in_feed, feed_timestamp, show_description, created_at, modified_at`

// AllocateID reserves a fresh object id from the objects sequence.
// The bulk pipeline materializes placeholder ids through this before
// any cross-reference is persisted.
func (s *Store) AllocateID(ctx context.Context) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx,
		`SELECT nextval(pg_get_serial_sequence('objects', 'object_id'))`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("object: allocate id: %w", database.MapError(err))
	}
	return id, nil
}

// checkOwner resolves the effective owner: the caller when p.OwnerID is
// zero, otherwise the given user, which must exist (BadRequest).
func (s *Store) checkOwner(ctx context.Context, caller auth.Caller, ownerID int64) (int64, error) {
	if ownerID == 0 {
		return caller.UserID, nil
	}
	exists, err := s.users.Exists(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, apperr.BadRequestf("owner_id %d does not exist", ownerID)
	}
	return ownerID, nil
}

// InsertAttributes creates the attribute row for a new object under an
// explicit, pre-allocated id. created_at and modified_at are set to
// now; the owner defaults to the caller.
func (s *Store) InsertAttributes(ctx context.Context, caller auth.Caller, id int64, p AttrParams) (*Attributes, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	owner, err := s.checkOwner(ctx, caller, p.OwnerID)
	if err != nil {
		return nil, err
	}
	now := s.clk.Now()

	var a Attributes
	err = s.q.QueryRow(ctx,
		`INSERT INTO objects (object_id, object_type, object_name, object_description, owner_id,
			is_published, display_in_feed, feed_timestamp, show_description, created_at, modified_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		 RETURNING `+attrColumns,
		id, p.ObjectType, p.ObjectName, p.ObjectDescription, owner,
		p.IsPublished, p.DisplayInFeed, p.FeedTimestamp, p.ShowDescription, now,
	).Scan(&a.ObjectID, &a.ObjectType, &a.ObjectName, &a.ObjectDescription, &a.OwnerID,
		&a.IsPublished, &a.DisplayInFeed, &a.FeedTimestamp, &a.ShowDescription, &a.CreatedAt, &a.ModifiedAt)
	if err != nil {
		return nil, fmt.Errorf("object: insert attributes %d: %w", id, database.MapError(err))
	}
	a.CurrentTagIDs = []int64{}
	return &a, nil
}

// UpdateAttributes rewrites the attribute row of an existing object.
// The request's object_type is informational and must match the stored
// type. modified_at is bumped only when a field actually changed, so
// idempotent no-ops do not re-version the object.
func (s *Store) UpdateAttributes(ctx context.Context, caller auth.Caller, id int64, p AttrParams) (*Attributes, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	cur, err := s.getAttrs(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.ObjectType != p.ObjectType {
		return nil, apperr.BadRequestf("object %d has type %q, not %q", id, cur.ObjectType, p.ObjectType)
	}
	// An absent owner_id keeps the stored owner; only create defaults
	// the owner to the caller.
	owner := cur.OwnerID
	if p.OwnerID != 0 {
		owner, err = s.checkOwner(ctx, caller, p.OwnerID)
		if err != nil {
			return nil, err
		}
	}

	changed := cur.ObjectName != p.ObjectName ||
		cur.ObjectDescription != p.ObjectDescription ||
		cur.OwnerID != owner ||
		cur.IsPublished != p.IsPublished ||
		cur.DisplayInFeed != p.DisplayInFeed ||
		!timePtrEqual(cur.FeedTimestamp, p.FeedTimestamp) ||
		cur.ShowDescription != p.ShowDescription
	if !changed {
		return cur, nil
	}

	modifiedAt := s.clk.Now()
	err = s.q.QueryRow(ctx,
		`UPDATE objects SET object_name = $2, object_description = $3, owner_id = $4,
			is_published = $5, display_in_feed = $6, feed_timestamp = $7,
			show_description = $8, modified_at = $9
		 WHERE object_id = $1
		 RETURNING `+attrColumns,
		id, p.ObjectName, p.ObjectDescription, owner,
		p.IsPublished, p.DisplayInFeed, p.FeedTimestamp, p.ShowDescription, modifiedAt,
	).Scan(&cur.ObjectID, &cur.ObjectType, &cur.ObjectName, &cur.ObjectDescription, &cur.OwnerID,
		&cur.IsPublished, &cur.DisplayInFeed, &cur.FeedTimestamp, &cur.ShowDescription, &cur.CreatedAt, &cur.ModifiedAt)
	if err != nil {
		return nil, fmt.Errorf("object: update attributes %d: %w", id, database.MapError(err))
	}
	return cur, nil
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (s *Store) getAttrs(ctx context.Context, id int64) (*Attributes, error) {
	var a Attributes
	err := s.q.QueryRow(ctx,
		`SELECT `+attrColumns+` FROM objects WHERE object_id = $1`, id,
	).Scan(&a.ObjectID, &a.ObjectType, &a.ObjectName, &a.ObjectDescription, &a.OwnerID,
		&a.IsPublished, &a.DisplayInFeed, &a.FeedTimestamp, &a.ShowDescription, &a.CreatedAt, &a.ModifiedAt)
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFoundf("object %d does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("object: get attributes %d: %w", id, database.MapError(err))
	}
	return &a, nil
}

// GetAttributes returns attribute records with current tag ids for the
// given ids, in input order. Missing ids are omitted.
func (s *Store) GetAttributes(ctx context.Context, ids []int64) ([]Attributes, error) {
	if len(ids) == 0 {
		return []Attributes{}, nil
	}
	rows, err := s.q.Query(ctx,
		`SELECT `+attrColumns+` FROM objects WHERE object_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("object: get attributes: %w", database.MapError(err))
	}
	byID := map[int64]Attributes{}
	for rows.Next() {
		var a Attributes
		if err := rows.Scan(&a.ObjectID, &a.ObjectType, &a.ObjectName, &a.ObjectDescription, &a.OwnerID,
			&a.IsPublished, &a.DisplayInFeed, &a.FeedTimestamp, &a.ShowDescription, &a.CreatedAt, &a.ModifiedAt); err != nil {
			rows.Close()
			return nil, err
		}
		a.CurrentTagIDs = []int64{}
		byID[a.ObjectID] = a
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tagRows, err := s.q.Query(ctx,
		`SELECT object_id, tag_id FROM objects_tags WHERE object_id = ANY($1) ORDER BY tag_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("object: get tag ids: %w", database.MapError(err))
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var objID, tagID int64
		if err := tagRows.Scan(&objID, &tagID); err != nil {
			return nil, err
		}
		if a, ok := byID[objID]; ok {
			a.CurrentTagIDs = append(a.CurrentTagIDs, tagID)
			byID[objID] = a
		}
	}
	if err := tagRows.Err(); err != nil {
		return nil, err
	}

	out := []Attributes{}
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// TypesOf returns the stored object types for the given ids. Missing
// ids are absent from the map.
func (s *Store) TypesOf(ctx context.Context, ids []int64) (map[int64]string, error) {
	if len(ids) == 0 {
		return map[int64]string{}, nil
	}
	rows, err := s.q.Query(ctx,
		`SELECT object_id, object_type FROM objects WHERE object_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("object: types of: %w", database.MapError(err))
	}
	defer rows.Close()

	types := map[int64]string{}
	for rows.Next() {
		var id int64
		var typ string
		if err := rows.Scan(&id, &typ); err != nil {
			return nil, err
		}
		types[id] = typ
	}
	return types, rows.Err()
}

// ApplyTagDelta applies added/removed tag ids to one object. Addition
// is idempotent; removal is silent on tags not currently applied.
func (s *Store) ApplyTagDelta(ctx context.Context, objectID int64, addedTagIDs, removedTagIDs []int64) error {
	if len(addedTagIDs) > 0 {
		_, err := s.q.Exec(ctx,
			`INSERT INTO objects_tags (object_id, tag_id)
			 SELECT $1, unnest($2::bigint[])
			 ON CONFLICT DO NOTHING`, objectID, addedTagIDs)
		if err != nil {
			return fmt.Errorf("object: add tags to %d: %w", objectID, database.MapError(err))
		}
	}
	if len(removedTagIDs) > 0 {
		_, err := s.q.Exec(ctx,
			`DELETE FROM objects_tags WHERE object_id = $1 AND tag_id = ANY($2)`,
			objectID, removedTagIDs)
		if err != nil {
			return fmt.Errorf("object: remove tags from %d: %w", objectID, database.MapError(err))
		}
	}
	return nil
}
