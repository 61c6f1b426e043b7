package server

import (
	"github.com/labstack/echo/v4"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/object"
	"github.com/taghive/taghive/internal/tag"
)

type singleObjectRequest struct {
	Object object.UpsertItem `json:"object"`
}

// handleObjectsAdd creates one object. A thin wrapper over the bulk
// pipeline with a single new item.
func (s *Server) handleObjectsAdd(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req singleObjectRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if req.Object.ObjectID > 0 {
		return nil, apperr.BadRequestf("object_id must not be set when adding an object")
	}
	if req.Object.ObjectID == 0 {
		req.Object.ObjectID = -1
	}
	return s.runBulkUpsert(c, rc, []object.UpsertItem{req.Object}, nil)
}

// handleObjectsUpdate rewrites one existing object, bulk pipeline
// underneath.
func (s *Server) handleObjectsUpdate(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req singleObjectRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if req.Object.ObjectID <= 0 {
		return nil, apperr.BadRequestf("object_id is required")
	}
	return s.runBulkUpsert(c, rc, []object.UpsertItem{req.Object}, nil)
}

type bulkUpsertRequest struct {
	Objects          []object.UpsertItem `json:"objects"`
	DeletedObjectIDs []int64             `json:"deleted_object_ids,omitempty"`

	// Accepted alias kept for older clients.
	FullyDeletedSubobjectIDs []int64 `json:"fully_deleted_subobject_ids,omitempty"`
}

func (s *Server) handleObjectsBulkUpsert(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req bulkUpsertRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	deleted := append(req.DeletedObjectIDs, req.FullyDeletedSubobjectIDs...)
	return s.runBulkUpsert(c, rc, req.Objects, deleted)
}

func (s *Server) runBulkUpsert(c echo.Context, rc *reqCtx, items []object.UpsertItem, deletedIDs []int64) (map[string]any, error) {
	store := object.NewStore(rc.q, s.clk)
	res, err := store.BulkUpsert(c.Request().Context(), rc.caller, items, deletedIDs)
	if err != nil {
		return nil, err
	}
	rc.enqueueObjects(res.UpsertedObjectIDs...)
	rc.enqueueTags(res.UpsertedTagIDs...)
	return map[string]any{
		"objects_attributes_and_tags": res.ObjectsAttributesAndTags,
		"objects_data":                res.ObjectsData,
		"new_object_ids_map":          res.NewObjectIDsMap,
		"deleted_object_ids":          res.DeletedObjectIDs,
	}, nil
}

type objectsViewRequest struct {
	ObjectIDs     []int64 `json:"object_ids,omitempty"`
	ObjectDataIDs []int64 `json:"object_data_ids,omitempty"`
}

// handleObjectsView returns attribute records for object_ids and typed
// data payloads for object_data_ids, both under the caller's
// visibility.
func (s *Server) handleObjectsView(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req objectsViewRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if len(req.ObjectIDs) == 0 && len(req.ObjectDataIDs) == 0 {
		return nil, apperr.BadRequestf("object_ids or object_data_ids is required")
	}
	if len(req.ObjectIDs) > 1000 || len(req.ObjectDataIDs) > 1000 {
		return nil, apperr.BadRequestf("at most 1000 ids per list")
	}

	ctx := c.Request().Context()
	store := object.NewStore(rc.q, s.clk)

	attrIDs, err := store.VisibleObjectIDs(ctx, rc.caller, req.ObjectIDs)
	if err != nil {
		return nil, err
	}
	dataIDs, err := store.VisibleObjectIDs(ctx, rc.caller, req.ObjectDataIDs)
	if err != nil {
		return nil, err
	}

	attrs, err := store.GetAttributes(ctx, intersect(req.ObjectIDs, attrIDs))
	if err != nil {
		return nil, err
	}
	data, err := store.GetData(ctx, intersect(req.ObjectDataIDs, dataIDs))
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 && len(data) == 0 {
		return nil, apperr.NotFoundf("no matching objects")
	}
	return map[string]any{
		"objects_attributes_and_tags": attrs,
		"objects_data":                data,
	}, nil
}

// intersect keeps the ids present in the allowed set, preserving input
// order and dropping duplicates.
func intersect(ids []int64, allowed map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(ids))
	seen := map[int64]struct{}{}
	for _, id := range ids {
		if _, ok := allowed[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type updateTagsRequest struct {
	ObjectIDs     []int64   `json:"object_ids"`
	AddedTags     []tag.Ref `json:"added_tags,omitempty"`
	RemovedTagIDs []int64   `json:"removed_tag_ids,omitempty"`
}

func (s *Server) handleObjectsUpdateTags(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req updateTagsRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if len(req.ObjectIDs) == 0 || len(req.ObjectIDs) > 1000 {
		return nil, apperr.BadRequestf("object_ids must contain 1..1000 ids")
	}

	store := object.NewStore(rc.q, s.clk)
	addedIDs, createdIDs, err := store.UpdateTags(
		c.Request().Context(), req.ObjectIDs, req.AddedTags, req.RemovedTagIDs)
	if err != nil {
		return nil, err
	}
	rc.enqueueObjects(req.ObjectIDs...)
	rc.enqueueTags(createdIDs...)
	return map[string]any{
		"tag_updates": map[string]any{
			"added_tag_ids":   addedIDs,
			"removed_tag_ids": req.RemovedTagIDs,
			"created_tag_ids": createdIDs,
		},
	}, nil
}

func (s *Server) handleObjectsPage(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var p object.PageParams
	if err := bindJSON(c, &p); err != nil {
		return nil, err
	}
	page, err := object.NewStore(rc.q, s.clk).PageIDs(c.Request().Context(), rc.caller, p)
	if err != nil {
		return nil, err
	}
	return map[string]any{"total_items": page.TotalItems, "object_ids": page.ObjectIDs}, nil
}

func (s *Server) handleObjectsSearch(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req prefixSearchRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	ids, err := object.NewStore(rc.q, s.clk).SearchByPrefix(
		c.Request().Context(), rc.caller, req.QueryText, req.MaximumValues)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperr.NotFoundf("no matching objects")
	}
	return map[string]any{"object_ids": ids}, nil
}

type hierarchyRequest struct {
	ObjectID int64 `json:"object_id"`
}

func (s *Server) handleObjectsHierarchy(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req hierarchyRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if req.ObjectID <= 0 {
		return nil, apperr.BadRequestf("object_id is required")
	}

	els, err := object.NewStore(rc.q, s.clk).TraverseHierarchy(c.Request().Context(), rc.caller, req.ObjectID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"composite_object_ids":     els.CompositeIDs,
		"non_composite_object_ids": els.NonCompositeIDs,
	}, nil
}

type objectsDeleteRequest struct {
	ObjectIDs        []int64 `json:"object_ids"`
	DeleteSubobjects bool    `json:"delete_subobjects,omitempty"`
}

func (s *Server) handleObjectsDelete(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req objectsDeleteRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if len(req.ObjectIDs) == 0 || len(req.ObjectIDs) > 1000 {
		return nil, apperr.BadRequestf("object_ids must contain 1..1000 ids")
	}

	deleted, err := object.NewStore(rc.q, s.clk).Delete(
		c.Request().Context(), req.ObjectIDs, req.DeleteSubobjects)
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted_object_ids": deleted}, nil
}
