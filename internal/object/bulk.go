package object

import (
	"context"
	"encoding/json"
	"time"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/auth"
	"github.com/taghive/taghive/internal/tag"
)

// Request-level caps.
const (
	maxBulkItems         = 1000
	maxTagsPerItem       = 100
	maxTagsPerRequest    = 1000
	maxDeletedPerRequest = 1000
)

// UpsertItem is one object in a bulk upsert. object_id > 0 updates an
// existing object; object_id <= 0 is a placeholder for a new one,
// materialized into a real id before any cross-reference is persisted.
type UpsertItem struct {
	ObjectID          int64           `json:"object_id"`
	ObjectType        string          `json:"object_type"`
	ObjectName        string          `json:"object_name"`
	ObjectDescription string          `json:"object_description"`
	OwnerID           int64           `json:"owner_id,omitempty"`
	IsPublished       bool            `json:"is_published"`
	DisplayInFeed     bool            `json:"display_in_feed"`
	FeedTimestamp     *time.Time      `json:"feed_timestamp"`
	ShowDescription   bool            `json:"show_description"`
	ObjectData        json.RawMessage `json:"object_data,omitempty"`
	AddedTags         []tag.Ref       `json:"added_tags,omitempty"`
	RemovedTagIDs     []int64         `json:"removed_tag_ids,omitempty"`
}

func (it *UpsertItem) attrParams() AttrParams {
	return AttrParams{
		ObjectType:        it.ObjectType,
		ObjectName:        it.ObjectName,
		ObjectDescription: it.ObjectDescription,
		OwnerID:           it.OwnerID,
		IsPublished:       it.IsPublished,
		DisplayInFeed:     it.DisplayInFeed,
		FeedTimestamp:     it.FeedTimestamp,
		ShowDescription:   it.ShowDescription,
	}
}

// BulkUpsertResult is the response of the bulk pipeline. The map keys
// are the request's placeholder ids.
type BulkUpsertResult struct {
	ObjectsAttributesAndTags []Attributes    `json:"objects_attributes_and_tags"`
	ObjectsData              []DataRecord    `json:"objects_data"`
	NewObjectIDsMap          map[int64]int64 `json:"new_object_ids_map"`
	DeletedObjectIDs         []int64         `json:"deleted_object_ids"`

	// Enqueue bookkeeping for the post-commit indexer hook.
	UpsertedObjectIDs []int64 `json:"-"`
	UpsertedTagIDs    []int64 `json:"-"`
}

// validateBulk checks the structural constraints and caps of a bulk
// request without touching the database.
func validateBulk(items []UpsertItem, deletedIDs []int64) error {
	if len(items) == 0 && len(deletedIDs) == 0 {
		return apperr.BadRequestf("request contains no objects to upsert or delete")
	}
	if len(items) > maxBulkItems {
		return apperr.BadRequestf("at most %d objects per request", maxBulkItems)
	}
	if len(deletedIDs) > maxDeletedPerRequest {
		return apperr.BadRequestf("at most %d deleted_object_ids per request", maxDeletedPerRequest)
	}

	totalAdded, totalRemoved := 0, 0
	seen := map[int64]struct{}{}
	for i := range items {
		it := &items[i]
		if _, dup := seen[it.ObjectID]; dup {
			return apperr.BadRequestf("duplicate object_id %d in request", it.ObjectID)
		}
		seen[it.ObjectID] = struct{}{}

		if len(it.AddedTags) > maxTagsPerItem {
			return apperr.BadRequestf("at most %d added_tags per object", maxTagsPerItem)
		}
		if len(it.RemovedTagIDs) > maxTagsPerItem {
			return apperr.BadRequestf("at most %d removed_tag_ids per object", maxTagsPerItem)
		}
		totalAdded += len(it.AddedTags)
		totalRemoved += len(it.RemovedTagIDs)
	}
	if totalAdded > maxTagsPerRequest {
		return apperr.BadRequestf("at most %d added_tags per request", maxTagsPerRequest)
	}
	if totalRemoved > maxTagsPerRequest {
		return apperr.BadRequestf("at most %d removed_tag_ids per request", maxTagsPerRequest)
	}
	return nil
}

// remapSubobjectIDs rewrites placeholder subobject ids inside a parsed
// composite payload through the placeholder map. A negative id without
// a mapping is a BadRequest.
func remapSubobjectIDs(d *CompositeData, idMap map[int64]int64) error {
	for i := range d.Subobjects {
		ref := &d.Subobjects[i]
		if ref.SubobjectID > 0 {
			continue
		}
		mapped, ok := idMap[ref.SubobjectID]
		if !ok {
			return apperr.BadRequestf("subobject placeholder %d is not created in this request", ref.SubobjectID)
		}
		ref.SubobjectID = mapped
	}
	return nil
}

// BulkUpsert runs the full pipeline for a bulk request inside the
// caller's transaction: structural validation, tag-reference
// resolution, placeholder materialization, attribute upserts for every
// item, reference rewriting, data upserts and tag deltas in input
// order, and full deletions. Any error aborts the whole transaction.
func (s *Store) BulkUpsert(ctx context.Context, caller auth.Caller, items []UpsertItem, deletedIDs []int64) (*BulkUpsertResult, error) {
	if err := validateBulk(items, deletedIDs); err != nil {
		return nil, err
	}

	res := &BulkUpsertResult{
		ObjectsAttributesAndTags: []Attributes{},
		ObjectsData:              []DataRecord{},
		NewObjectIDsMap:          map[int64]int64{},
		DeletedObjectIDs:         []int64{},
	}

	// Materialize placeholders before anything that can reference them.
	for i := range items {
		if items[i].ObjectID > 0 {
			continue
		}
		newID, err := s.AllocateID(ctx)
		if err != nil {
			return nil, err
		}
		res.NewObjectIDsMap[items[i].ObjectID] = newID
	}

	// The live set: every id upserted by this request.
	liveSet := map[int64]struct{}{}
	liveIDs := make([]int64, 0, len(items))
	for i := range items {
		id := items[i].ObjectID
		if id <= 0 {
			id = res.NewObjectIDsMap[id]
		}
		liveSet[id] = struct{}{}
		liveIDs = append(liveIDs, id)
	}

	// Attribute rows for every item come first so that each
	// materialized id exists before any composite payload in the
	// request references it.
	for i := range items {
		it := &items[i]
		isNew := it.ObjectID <= 0
		id := it.ObjectID
		if isNew {
			id = res.NewObjectIDsMap[id]
		}

		if isNew {
			if len(it.ObjectData) == 0 {
				return nil, apperr.BadRequestf("object_data is required for new objects")
			}
			if _, err := s.InsertAttributes(ctx, caller, id, it.attrParams()); err != nil {
				return nil, err
			}
		} else {
			if _, err := s.UpdateAttributes(ctx, caller, id, it.attrParams()); err != nil {
				return nil, err
			}
		}
	}

	dataPresent := map[int64]struct{}{}
	for i := range items {
		it := &items[i]
		id := it.ObjectID
		if id <= 0 {
			id = res.NewObjectIDsMap[id]
		}

		if len(it.ObjectData) > 0 {
			data, err := ParseData(it.ObjectType, it.ObjectData, id)
			if err != nil {
				return nil, err
			}
			if composite, ok := data.(*CompositeData); ok {
				if err := remapSubobjectIDs(composite, res.NewObjectIDsMap); err != nil {
					return nil, err
				}
			}
			if err := s.WriteData(ctx, id, data, liveSet); err != nil {
				return nil, err
			}
			dataPresent[id] = struct{}{}
		}

		if len(it.AddedTags) > 0 || len(it.RemovedTagIDs) > 0 {
			addedIDs, createdIDs, err := s.tags.ResolveRefs(ctx, it.AddedTags)
			if err != nil {
				return nil, err
			}
			if err := s.ApplyTagDelta(ctx, id, addedIDs, it.RemovedTagIDs); err != nil {
				return nil, err
			}
			res.UpsertedTagIDs = append(res.UpsertedTagIDs, createdIDs...)
		}
	}

	// Full deletions run last so "still referenced as a subobject"
	// reflects the request's final graph.
	if len(deletedIDs) > 0 {
		for _, id := range deletedIDs {
			if id <= 0 {
				return nil, apperr.BadRequestf("deleted_object_ids must be positive (placeholder %d)", id)
			}
			if _, live := liveSet[id]; live {
				return nil, apperr.BadRequestf("object %d is both upserted and deleted in one request", id)
			}
		}
		deleted, err := s.ProcessFullyDeleted(ctx, deletedIDs)
		if err != nil {
			return nil, err
		}
		res.DeletedObjectIDs = deleted
	}

	attrs, err := s.GetAttributes(ctx, liveIDs)
	if err != nil {
		return nil, err
	}
	res.ObjectsAttributesAndTags = attrs

	dataIDs := make([]int64, 0, len(dataPresent))
	for _, id := range liveIDs {
		if _, ok := dataPresent[id]; ok {
			dataIDs = append(dataIDs, id)
		}
	}
	records, err := s.GetData(ctx, dataIDs)
	if err != nil {
		return nil, err
	}
	res.ObjectsData = records

	res.UpsertedObjectIDs = liveIDs
	return res, nil
}

// UpdateTags applies one tag delta to many objects. Every object id
// must exist. Returns the resolved added ids, the removed ids, and the
// ids of tags created by string resolution.
func (s *Store) UpdateTags(ctx context.Context, objectIDs []int64, added []tag.Ref, removedTagIDs []int64) (addedIDs, createdTagIDs []int64, err error) {
	if len(objectIDs) == 0 || len(objectIDs) > maxBulkItems {
		return nil, nil, apperr.BadRequestf("object_ids must contain 1..%d ids", maxBulkItems)
	}
	if len(added) > maxTagsPerRequest || len(removedTagIDs) > maxTagsPerRequest {
		return nil, nil, apperr.BadRequestf("at most %d tag changes per request", maxTagsPerRequest)
	}

	types, err := s.TypesOf(ctx, objectIDs)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range objectIDs {
		if _, ok := types[id]; !ok {
			return nil, nil, apperr.BadRequestf("object %d does not exist", id)
		}
	}

	addedIDs, createdTagIDs, err = s.tags.ResolveRefs(ctx, added)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range objectIDs {
		if err := s.ApplyTagDelta(ctx, id, addedIDs, removedTagIDs); err != nil {
			return nil, nil, err
		}
	}
	return addedIDs, createdTagIDs, nil
}
