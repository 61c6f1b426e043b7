package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/tag"
)

func TestValidateBulkDuplicates(t *testing.T) {
	err := validateBulk([]UpsertItem{{ObjectID: 5}, {ObjectID: 5}}, nil)
	assert.True(t, apperr.Is(err, apperr.BadRequest))

	err = validateBulk([]UpsertItem{{ObjectID: -1}, {ObjectID: -1}}, nil)
	assert.True(t, apperr.Is(err, apperr.BadRequest))

	assert.NoError(t, validateBulk([]UpsertItem{{ObjectID: -1}, {ObjectID: -2}, {ObjectID: 5}}, nil))
}

func TestValidateBulkCaps(t *testing.T) {
	items := make([]UpsertItem, maxBulkItems+1)
	for i := range items {
		items[i].ObjectID = int64(i + 1)
	}
	assert.True(t, apperr.Is(validateBulk(items, nil), apperr.BadRequest))

	refs := make([]tag.Ref, maxTagsPerItem+1)
	for i := range refs {
		refs[i] = tag.Ref{ID: int64(i + 1)}
	}
	err := validateBulk([]UpsertItem{{ObjectID: 1, AddedTags: refs}}, nil)
	assert.True(t, apperr.Is(err, apperr.BadRequest))

	// 11 items x 100 tags exceeds the request-wide cap of 1000.
	wide := make([]UpsertItem, 11)
	for i := range wide {
		wide[i].ObjectID = int64(i + 1)
		wide[i].AddedTags = make([]tag.Ref, maxTagsPerItem)
		for j := range wide[i].AddedTags {
			wide[i].AddedTags[j] = tag.Ref{ID: int64(j + 1)}
		}
	}
	assert.True(t, apperr.Is(validateBulk(wide, nil), apperr.BadRequest))

	deleted := make([]int64, maxDeletedPerRequest+1)
	assert.True(t, apperr.Is(validateBulk([]UpsertItem{{ObjectID: 1}}, deleted), apperr.BadRequest))

	assert.True(t, apperr.Is(validateBulk(nil, nil), apperr.BadRequest))
}

func TestRemapSubobjectIDs(t *testing.T) {
	d := &CompositeData{
		DisplayMode: DisplayBasic,
		Subobjects: []SubobjectRef{
			{SubobjectID: 110, Column: 0, Row: 0},
			{SubobjectID: -1, Column: 0, Row: 1},
		},
	}
	idMap := map[int64]int64{-1: 2}
	require.NoError(t, remapSubobjectIDs(d, idMap))
	assert.Equal(t, int64(110), d.Subobjects[0].SubobjectID)
	assert.Equal(t, int64(2), d.Subobjects[1].SubobjectID)
}

func TestRemapSubobjectIDsUnknownPlaceholder(t *testing.T) {
	d := &CompositeData{
		DisplayMode: DisplayBasic,
		Subobjects:  []SubobjectRef{{SubobjectID: -7}},
	}
	err := remapSubobjectIDs(d, map[int64]int64{-1: 2})
	assert.True(t, apperr.Is(err, apperr.BadRequest))
}
