package search

import (
	"context"
	"fmt"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/auth"
	"github.com/taghive/taghive/internal/database"
)

// QueryParams is one page of a global search request.
type QueryParams struct {
	QueryText    string `json:"query_text"`
	Page         int    `json:"page"`
	ItemsPerPage int    `json:"items_per_page"`
}

// ResultItem is one ranked hit, an object or a tag.
type ResultItem struct {
	ItemID   int64  `json:"item_id"`
	ItemType string `json:"item_type"`
}

// Result is one page of ranked hits with the unfiltered total.
type Result struct {
	Items      []ResultItem `json:"items"`
	TotalItems int          `json:"total_items"`
}

func (p QueryParams) validate() error {
	if l := len(p.QueryText); l < 1 || l > 255 {
		return apperr.BadRequestf("query_text must be 1..255 characters")
	}
	if p.Page < 1 || p.ItemsPerPage < 1 {
		return apperr.BadRequestf("page and items_per_page must be positive")
	}
	return nil
}

// Non-admin visibility over searchable rows: object rows need a
// published object with no unpublished tag, tag rows a published tag.
const searchVisibleCond = `(
	(s.object_id IS NOT NULL AND o.is_published AND NOT EXISTS (
		SELECT 1 FROM objects_tags ot
		JOIN tags vt ON vt.tag_id = ot.tag_id
		WHERE ot.object_id = s.object_id AND NOT vt.is_published))
	OR (s.tag_id IS NOT NULL AND t.is_published)
)`

// Query runs one ranked full-text query over object and tag
// searchables. An empty page is NotFound.
func Query(ctx context.Context, q database.Querier, caller auth.Caller, p QueryParams) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	cond := "TRUE"
	if !caller.IsAdmin() {
		cond = searchVisibleCond
	}

	rows, err := q.Query(ctx, fmt.Sprintf(
		`SELECT COALESCE(s.object_id, s.tag_id),
			CASE WHEN s.object_id IS NOT NULL THEN 'object' ELSE 'tag' END,
			COUNT(*) OVER ()
		 FROM searchables s
		 LEFT JOIN objects o ON o.object_id = s.object_id
		 LEFT JOIN tags t ON t.tag_id = s.tag_id
		 WHERE s.ts @@ plainto_tsquery('simple', $1) AND %s
		 ORDER BY ts_rank(s.ts, plainto_tsquery('simple', $1)) DESC,
			COALESCE(s.object_id, s.tag_id) ASC
		 LIMIT $2 OFFSET $3`, cond),
		p.QueryText, p.ItemsPerPage, (p.Page-1)*p.ItemsPerPage)
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", database.MapError(err))
	}
	defer rows.Close()

	res := &Result{Items: []ResultItem{}}
	for rows.Next() {
		var it ResultItem
		if err := rows.Scan(&it.ItemID, &it.ItemType, &res.TotalItems); err != nil {
			return nil, err
		}
		res.Items = append(res.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(res.Items) == 0 {
		return nil, apperr.NotFoundf("nothing matched the query")
	}
	return res, nil
}
