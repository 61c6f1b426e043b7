package object

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taghive/taghive/internal/apperr"
)

func TestParseDataLink(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid https", `{"link":"https://example.com/page","show_description_as_link":true}`, false},
		{"valid http", `{"link":"http://example.com"}`, false},
		{"relative url", `{"link":"/just/a/path"}`, true},
		{"wrong scheme", `{"link":"ftp://example.com"}`, true},
		{"missing host", `{"link":"https://"}`, true},
		{"unknown field", `{"link":"https://example.com","surprise":1}`, true},
		{"empty payload", ``, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseData(TypeLink, json.RawMessage(tt.raw), 0)
			if tt.wantErr {
				assert.True(t, apperr.Is(err, apperr.BadRequest))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseDataToDoList(t *testing.T) {
	raw := `{"sort_type":"state","items":[
		{"item_number":3,"item_state":"active","item_text":"a","commentary":"","indent":0,"is_expanded":true},
		{"item_number":7,"item_state":"completed","item_text":"b","commentary":"done","indent":1,"is_expanded":false}
	]}`
	d, err := ParseData(TypeToDoList, json.RawMessage(raw), 0)
	require.NoError(t, err)
	list := d.(*ToDoListData)
	assert.Equal(t, SortState, list.SortType)
	assert.Len(t, list.Items, 2)

	_, err = ParseData(TypeToDoList, json.RawMessage(`{"sort_type":"alphabetic","items":[]}`), 0)
	assert.True(t, apperr.Is(err, apperr.BadRequest))

	_, err = ParseData(TypeToDoList, json.RawMessage(
		`{"sort_type":"default","items":[{"item_number":0,"item_state":"paused","item_text":"x"}]}`), 0)
	assert.True(t, apperr.Is(err, apperr.BadRequest))
}

func TestParseDataComposite(t *testing.T) {
	valid := `{"display_mode":"multicolumn","numerate_chapters":false,"subobjects":[
		{"subobject_id":11,"column":0,"row":0,"selected_tab":0,"is_expanded":true},
		{"subobject_id":-1,"column":1,"row":0,"selected_tab":0,"is_expanded":true}
	]}`
	d, err := ParseData(TypeComposite, json.RawMessage(valid), 5)
	require.NoError(t, err)
	comp := d.(*CompositeData)
	require.Len(t, comp.Subobjects, 2)
	// Omitted tri-state overrides default to inherit.
	assert.Equal(t, TriInherit, comp.Subobjects[0].ShowDescriptionComposite)
	assert.Equal(t, TriInherit, comp.Subobjects[0].ShowDescriptionAsLinkComposite)

	t.Run("self reference", func(t *testing.T) {
		raw := `{"display_mode":"basic","subobjects":[{"subobject_id":5,"column":0,"row":0}]}`
		_, err := ParseData(TypeComposite, json.RawMessage(raw), 5)
		assert.True(t, apperr.Is(err, apperr.BadRequest))
	})

	t.Run("duplicate subobject id", func(t *testing.T) {
		raw := `{"display_mode":"basic","subobjects":[
			{"subobject_id":7,"column":0,"row":0},
			{"subobject_id":7,"column":1,"row":0}
		]}`
		_, err := ParseData(TypeComposite, json.RawMessage(raw), 0)
		assert.True(t, apperr.Is(err, apperr.BadRequest))
	})

	t.Run("duplicate grid position", func(t *testing.T) {
		raw := `{"display_mode":"basic","subobjects":[
			{"subobject_id":7,"column":0,"row":0},
			{"subobject_id":8,"column":0,"row":0}
		]}`
		_, err := ParseData(TypeComposite, json.RawMessage(raw), 0)
		assert.True(t, apperr.Is(err, apperr.BadRequest))
	})

	t.Run("unknown display mode", func(t *testing.T) {
		raw := `{"display_mode":"mosaic","subobjects":[]}`
		_, err := ParseData(TypeComposite, json.RawMessage(raw), 0)
		assert.True(t, apperr.Is(err, apperr.BadRequest))
	})
}

func TestAttrParamsValidate(t *testing.T) {
	ok := AttrParams{ObjectType: TypeMarkdown, ObjectName: "note"}
	assert.NoError(t, ok.Validate())

	bad := AttrParams{ObjectType: "folder", ObjectName: "note"}
	assert.True(t, apperr.Is(bad.Validate(), apperr.BadRequest))

	unnamed := AttrParams{ObjectType: TypeMarkdown}
	assert.True(t, apperr.Is(unnamed.Validate(), apperr.BadRequest))
}
