package object

import (
	"context"
	"fmt"
	"strings"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/auth"
	"github.com/taghive/taghive/internal/database"
)

// PageParams selects one page of object ids.
type PageParams struct {
	Page                    int      `json:"page"`
	ItemsPerPage            int      `json:"items_per_page"`
	OrderBy                 string   `json:"order_by"`
	SortOrder               string   `json:"sort_order"`
	FilterText              string   `json:"filter_text"`
	ObjectTypes             []string `json:"object_types"`
	TagsFilter              []int64  `json:"tags_filter"`
	ShowOnlyDisplayedInFeed bool     `json:"show_only_displayed_in_feed"`
}

// Page is one page of object ids plus the filtered total.
type Page struct {
	TotalItems int     `json:"total_items"`
	ObjectIDs  []int64 `json:"object_ids"`
}

func (p *PageParams) validate() error {
	if p.Page < 1 || p.ItemsPerPage < 1 {
		return apperr.BadRequestf("page and items_per_page must be positive")
	}
	if p.OrderBy == "" {
		p.OrderBy = "object_name"
	}
	switch p.OrderBy {
	case "object_name", "modified_at", "feed_timestamp":
	default:
		return apperr.BadRequestf("order_by must be object_name, modified_at or feed_timestamp")
	}
	if p.SortOrder == "" {
		p.SortOrder = "asc"
	}
	if p.SortOrder != "asc" && p.SortOrder != "desc" {
		return apperr.BadRequestf("sort_order must be asc or desc")
	}
	for _, t := range p.ObjectTypes {
		if !ValidType(t) {
			return apperr.BadRequestf("unknown object_type %q", t)
		}
	}
	return nil
}

// PageIDs returns one page of object ids under the caller's visibility
// and the request's filters.
func (s *Store) PageIDs(ctx context.Context, caller auth.Caller, p PageParams) (*Page, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	where := []string{"TRUE"}
	args := []any{}
	if !caller.IsAdmin() {
		where = append(where, visibleCond)
	}
	if p.FilterText != "" {
		args = append(args, "%"+escapeLikePattern(p.FilterText)+"%")
		where = append(where, fmt.Sprintf("object_name ILIKE $%d", len(args)))
	}
	if len(p.ObjectTypes) > 0 {
		args = append(args, p.ObjectTypes)
		where = append(where, fmt.Sprintf("object_type = ANY($%d)", len(args)))
	}
	if len(p.TagsFilter) > 0 {
		args = append(args, p.TagsFilter, len(dedupInt64(p.TagsFilter)))
		where = append(where, fmt.Sprintf(
			`object_id IN (SELECT object_id FROM objects_tags
				WHERE tag_id = ANY($%d) GROUP BY object_id
				HAVING COUNT(DISTINCT tag_id) = $%d)`, len(args)-1, len(args)))
	}
	if p.ShowOnlyDisplayedInFeed {
		where = append(where, "display_in_feed")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM objects WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("object: page count: %w", database.MapError(err))
	}

	dir := "ASC"
	if p.SortOrder == "desc" {
		dir = "DESC"
	}
	var order string
	switch p.OrderBy {
	case "object_name":
		order = "LOWER(object_name) " + dir
	case "modified_at":
		order = "modified_at " + dir + ", LOWER(object_name) ASC"
	case "feed_timestamp":
		// Objects without a feed timestamp sort by modified_at instead.
		order = "COALESCE(feed_timestamp, modified_at) " + dir + ", LOWER(object_name) ASC"
	}

	args = append(args, p.ItemsPerPage, (p.Page-1)*p.ItemsPerPage)
	rows, err := s.q.Query(ctx, fmt.Sprintf(
		`SELECT object_id FROM objects WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		cond, order, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("object: page ids: %w", database.MapError(err))
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &Page{TotalItems: total, ObjectIDs: ids}, nil
}

func escapeLikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SearchByPrefix returns up to maxItems object ids whose name starts
// with prefix (case-insensitive), under the caller's visibility.
func (s *Store) SearchByPrefix(ctx context.Context, caller auth.Caller, prefix string, maxItems int) ([]int64, error) {
	if prefix == "" || len(prefix) > 255 {
		return nil, apperr.BadRequestf("query_text must be 1..255 characters")
	}
	if maxItems < 1 {
		return nil, apperr.BadRequestf("maximum_values must be positive")
	}

	query := `SELECT object_id FROM objects WHERE object_name ILIKE $1`
	if !caller.IsAdmin() {
		query += ` AND ` + visibleCond
	}
	query += ` ORDER BY LOWER(object_name) LIMIT $2`

	rows, err := s.q.Query(ctx, query, escapeLikePattern(prefix)+"%", maxItems)
	if err != nil {
		return nil, fmt.Errorf("object: search: %w", database.MapError(err))
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

// Delete hard-deletes objects. With deleteSubobjects set, immediate
// subobjects of the deleted composites are also deleted unless another
// surviving composite still references them. Returns every id removed.
func (s *Store) Delete(ctx context.Context, ids []int64, deleteSubobjects bool) ([]int64, error) {
	ids = dedupInt64(ids)
	if len(ids) == 0 {
		return nil, apperr.BadRequestf("object_ids must not be empty")
	}

	types, err := s.TypesOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := types[id]; !ok {
			return nil, apperr.NotFoundf("object %d does not exist", id)
		}
	}

	var candidates []int64
	if deleteSubobjects {
		deleting := map[int64]struct{}{}
		for _, id := range ids {
			deleting[id] = struct{}{}
		}
		rows, err := s.q.Query(ctx,
			`SELECT DISTINCT subobject_id FROM composite_subobjects WHERE object_id = ANY($1)`, ids)
		if err != nil {
			return nil, fmt.Errorf("object: collect subobjects: %w", database.MapError(err))
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			if _, alreadyDeleting := deleting[id]; !alreadyDeleting {
				candidates = append(candidates, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	deleted, err := s.DeleteObjects(ctx, ids)
	if err != nil {
		return nil, err
	}

	// With the parents gone, delete the orphaned subobjects; ids still
	// referenced by other composites are spared.
	if len(candidates) > 0 {
		more, err := s.ProcessFullyDeleted(ctx, candidates)
		if err != nil {
			return nil, err
		}
		deleted = append(deleted, more...)
	}
	return deleted, nil
}
