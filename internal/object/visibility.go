package object

import (
	"context"
	"fmt"

	"github.com/taghive/taghive/internal/auth"
	"github.com/taghive/taghive/internal/database"
)

// visibleCond is the shared SQL predicate of the visibility filter: an
// object is visible to non-admins iff it is published and carries no
// non-published tag. Every read path (view, paging, search, hierarchy)
// uses this one predicate.
const visibleCond = `objects.is_published AND NOT EXISTS (
	SELECT 1 FROM objects_tags ot
	JOIN tags t ON t.tag_id = ot.tag_id
	WHERE ot.object_id = objects.object_id AND NOT t.is_published)`

// VisibleObjectIDs computes the subset of candidate ids the caller may
// see. Admins see every existing id; other callers pass the visibility
// predicate. Returns a set; callers that need ordering re-intersect
// with their input.
func (s *Store) VisibleObjectIDs(ctx context.Context, caller auth.Caller, ids []int64) (map[int64]struct{}, error) {
	if len(ids) == 0 {
		return map[int64]struct{}{}, nil
	}

	query := `SELECT object_id FROM objects WHERE object_id = ANY($1)`
	if !caller.IsAdmin() {
		query += ` AND ` + visibleCond
	}

	rows, err := s.q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("object: visible ids: %w", database.MapError(err))
	}
	defer rows.Close()

	visible := map[int64]struct{}{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		visible[id] = struct{}{}
	}
	return visible, rows.Err()
}
