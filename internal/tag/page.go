package tag

import (
	"context"
	"fmt"
	"strings"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/auth"
	"github.com/taghive/taghive/internal/database"
)

// PageParams selects one page of tag ids.
type PageParams struct {
	Page         int    `json:"page"`
	ItemsPerPage int    `json:"items_per_page"`
	OrderBy      string `json:"order_by"`
	SortOrder    string `json:"sort_order"`
	FilterText   string `json:"filter_text"`
}

// Page is one page of tag ids plus the filtered total.
type Page struct {
	TotalItems int     `json:"total_items"`
	TagIDs     []int64 `json:"tag_ids"`
}

func (p *PageParams) validate() error {
	if p.Page < 1 || p.ItemsPerPage < 1 {
		return apperr.BadRequestf("page and items_per_page must be positive")
	}
	if p.OrderBy == "" {
		p.OrderBy = "tag_name"
	}
	if p.OrderBy != "tag_name" && p.OrderBy != "modified_at" {
		return apperr.BadRequestf("order_by must be tag_name or modified_at")
	}
	if p.SortOrder == "" {
		p.SortOrder = "asc"
	}
	if p.SortOrder != "asc" && p.SortOrder != "desc" {
		return apperr.BadRequestf("sort_order must be asc or desc")
	}
	return nil
}

// escapeLike escapes LIKE wildcards in user-supplied filter text.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// PageIDs returns one page of tag ids. filter_text is a
// case-insensitive substring filter on tag_name. Non-admin callers see
// only published tags.
func (s *Store) PageIDs(ctx context.Context, caller auth.Caller, p PageParams) (*Page, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	where := []string{"TRUE"}
	args := []any{}
	if !caller.IsAdmin() {
		where = append(where, "is_published")
	}
	if p.FilterText != "" {
		args = append(args, "%"+escapeLike(p.FilterText)+"%")
		where = append(where, fmt.Sprintf("tag_name ILIKE $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM tags WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("tag: page count: %w", database.MapError(err))
	}

	dir := "ASC"
	if p.SortOrder == "desc" {
		dir = "DESC"
	}
	order := "LOWER(tag_name) " + dir
	if p.OrderBy == "modified_at" {
		order = "modified_at " + dir + ", LOWER(tag_name) ASC"
	}

	args = append(args, p.ItemsPerPage, (p.Page-1)*p.ItemsPerPage)
	rows, err := s.q.Query(ctx, fmt.Sprintf(
		`SELECT tag_id FROM tags WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		cond, order, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("tag: page ids: %w", database.MapError(err))
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
	return &Page{TotalItems: total, TagIDs: ids}, nil
}

// SearchByPrefix returns up to maxItems tag ids whose name starts with
// prefix (case-insensitive). Non-admin callers see only published tags.
func (s *Store) SearchByPrefix(ctx context.Context, caller auth.Caller, prefix string, maxItems int) ([]int64, error) {
	if prefix == "" || len(prefix) > 255 {
		return nil, apperr.BadRequestf("query_text must be 1..255 characters")
	}
	if maxItems < 1 {
		return nil, apperr.BadRequestf("maximum_values must be positive")
	}

	query := `SELECT tag_id FROM tags WHERE tag_name ILIKE $1`
	if !caller.IsAdmin() {
		query += ` AND is_published`
	}
	query += ` ORDER BY LOWER(tag_name) LIMIT $2`

	rows, err := s.q.Query(ctx, query, escapeLike(prefix)+"%", maxItems)
	if err != nil {
		return nil, fmt.Errorf("tag: search: %w", database.MapError(err))
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
