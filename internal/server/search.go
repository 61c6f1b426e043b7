package server

import (
	"github.com/labstack/echo/v4"

	"github.com/taghive/taghive/internal/search"
)

// handleSearch runs the global ranked search across objects and tags.
func (s *Server) handleSearch(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var p search.QueryParams
	if err := bindJSON(c, &p); err != nil {
		return nil, err
	}
	res, err := search.Query(c.Request().Context(), rc.q, rc.caller, p)
	if err != nil {
		return nil, err
	}
	return map[string]any{"items": res.Items, "total_items": res.TotalItems}, nil
}
