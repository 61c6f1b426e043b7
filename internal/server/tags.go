package server

import (
	"github.com/labstack/echo/v4"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/tag"
)

type tagPayload struct {
	TagID            int64   `json:"tag_id,omitempty"`
	TagName          string  `json:"tag_name"`
	TagDescription   string  `json:"tag_description"`
	IsPublished      bool    `json:"is_published"`
	AddedObjectIDs   []int64 `json:"added_object_ids,omitempty"`
	RemovedObjectIDs []int64 `json:"removed_object_ids,omitempty"`
}

type tagRequest struct {
	Tag tagPayload `json:"tag"`
}

func (s *Server) handleTagsAdd(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req tagRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if req.Tag.TagID != 0 {
		return nil, apperr.BadRequestf("tag_id must not be set when adding a tag")
	}

	t, err := tag.NewStore(rc.q, s.clk).Add(c.Request().Context(), tag.AddParams{
		TagName:        req.Tag.TagName,
		TagDescription: req.Tag.TagDescription,
		IsPublished:    req.Tag.IsPublished,
		AddedObjectIDs: req.Tag.AddedObjectIDs,
	})
	if err != nil {
		return nil, err
	}
	rc.enqueueTags(t.TagID)
	rc.enqueueObjects(t.CurrentObjectIDs...)
	return map[string]any{"tag": t}, nil
}

func (s *Server) handleTagsUpdate(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req tagRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if req.Tag.TagID <= 0 {
		return nil, apperr.BadRequestf("tag_id is required")
	}

	t, err := tag.NewStore(rc.q, s.clk).Update(c.Request().Context(), req.Tag.TagID, tag.UpdateParams{
		TagName:          req.Tag.TagName,
		TagDescription:   req.Tag.TagDescription,
		IsPublished:      req.Tag.IsPublished,
		AddedObjectIDs:   req.Tag.AddedObjectIDs,
		RemovedObjectIDs: req.Tag.RemovedObjectIDs,
	})
	if err != nil {
		return nil, err
	}
	rc.enqueueTags(t.TagID)
	rc.enqueueObjects(req.Tag.AddedObjectIDs...)
	rc.enqueueObjects(req.Tag.RemovedObjectIDs...)
	return map[string]any{"tag": t}, nil
}

type tagIDsRequest struct {
	TagIDs []int64 `json:"tag_ids"`
}

func (s *Server) handleTagsView(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req tagIDsRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if len(req.TagIDs) == 0 || len(req.TagIDs) > 1000 {
		return nil, apperr.BadRequestf("tag_ids must contain 1..1000 ids")
	}

	tags, err := tag.NewStore(rc.q, s.clk).GetMany(c.Request().Context(), rc.caller, req.TagIDs)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, apperr.NotFoundf("no matching tags")
	}
	return map[string]any{"tags": tags}, nil
}

func (s *Server) handleTagsDelete(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req tagIDsRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if len(req.TagIDs) == 0 || len(req.TagIDs) > 1000 {
		return nil, apperr.BadRequestf("tag_ids must contain 1..1000 ids")
	}

	// Objects carrying the tags re-index without the deleted names.
	store := tag.NewStore(rc.q, s.clk)
	touched, err := store.ObjectIDsForTags(c.Request().Context(), req.TagIDs)
	if err != nil {
		return nil, err
	}
	deleted, err := store.Delete(c.Request().Context(), req.TagIDs)
	if err != nil {
		return nil, err
	}
	rc.enqueueObjects(touched...)
	return map[string]any{"deleted_tag_ids": deleted}, nil
}

func (s *Server) handleTagsPage(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var p tag.PageParams
	if err := bindJSON(c, &p); err != nil {
		return nil, err
	}
	page, err := tag.NewStore(rc.q, s.clk).PageIDs(c.Request().Context(), rc.caller, p)
	if err != nil {
		return nil, err
	}
	return map[string]any{"total_items": page.TotalItems, "tag_ids": page.TagIDs}, nil
}

type prefixSearchRequest struct {
	QueryText     string `json:"query_text"`
	MaximumValues int    `json:"maximum_values"`
}

func (s *Server) handleTagsSearch(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req prefixSearchRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	ids, err := tag.NewStore(rc.q, s.clk).SearchByPrefix(
		c.Request().Context(), rc.caller, req.QueryText, req.MaximumValues)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperr.NotFoundf("no matching tags")
	}
	return map[string]any{"tag_ids": ids}, nil
}
