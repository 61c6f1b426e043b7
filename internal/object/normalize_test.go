package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pos(id int64, col, row int) SubobjectRef {
	return SubobjectRef{SubobjectID: id, Column: col, Row: row}
}

func TestNormalizePositions(t *testing.T) {
	tests := []struct {
		name string
		in   []SubobjectRef
		want []SubobjectRef
	}{
		{
			name: "already normalized",
			in:   []SubobjectRef{pos(1, 0, 0), pos(2, 0, 1), pos(3, 1, 0)},
			want: []SubobjectRef{pos(1, 0, 0), pos(2, 0, 1), pos(3, 1, 0)},
		},
		{
			name: "gaps collapse",
			in:   []SubobjectRef{pos(1, 2, 5), pos(2, 2, 9), pos(3, 7, 3)},
			want: []SubobjectRef{pos(1, 0, 0), pos(2, 0, 1), pos(3, 1, 0)},
		},
		{
			name: "row order preserved within column",
			in:   []SubobjectRef{pos(1, 0, 8), pos(2, 0, 2), pos(3, 0, 5)},
			want: []SubobjectRef{pos(1, 0, 2), pos(2, 0, 0), pos(3, 0, 1)},
		},
		{
			name: "column order by original value",
			in:   []SubobjectRef{pos(1, 9, 0), pos(2, 1, 0), pos(3, 4, 0)},
			want: []SubobjectRef{pos(1, 2, 0), pos(2, 0, 0), pos(3, 1, 0)},
		},
		{
			name: "empty",
			in:   []SubobjectRef{},
			want: []SubobjectRef{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizePositions(tc.in))
		})
	}
}

func TestNormalizePositionsProducesDenseGrid(t *testing.T) {
	refs := []SubobjectRef{
		pos(1, 3, 10), pos(2, 3, 4), pos(3, 8, 0), pos(4, 8, 7), pos(5, 8, 2),
	}
	NormalizePositions(refs)

	rowsPerColumn := map[int][]bool{}
	for _, r := range refs {
		for len(rowsPerColumn[r.Column]) <= r.Row {
			rowsPerColumn[r.Column] = append(rowsPerColumn[r.Column], false)
		}
		assert.False(t, rowsPerColumn[r.Column][r.Row], "duplicate position")
		rowsPerColumn[r.Column][r.Row] = true
	}
	for col := 0; col < len(rowsPerColumn); col++ {
		rows, ok := rowsPerColumn[col]
		assert.True(t, ok, "column %d missing", col)
		for row, seen := range rows {
			assert.True(t, seen, "row %d of column %d missing", row, col)
		}
	}
}

func TestRenumberToDoItems(t *testing.T) {
	items := []ToDoItem{
		{ItemNumber: 7, ItemText: "first"},
		{ItemNumber: 2, ItemText: "second"},
		{ItemNumber: 9, ItemText: "third"},
	}
	RenumberToDoItems(items)
	for i, it := range items {
		assert.Equal(t, i, it.ItemNumber)
	}
	assert.Equal(t, "first", items[0].ItemText)
}

func TestCompositeDataValidate(t *testing.T) {
	base := CompositeData{DisplayMode: DisplayBasic}

	d := base
	d.Subobjects = []SubobjectRef{pos(5, 0, 0), pos(5, 0, 1)}
	assert.Error(t, d.Validate(0), "duplicate subobject id")

	d = base
	d.Subobjects = []SubobjectRef{pos(5, 0, 0), pos(6, 0, 0)}
	assert.Error(t, d.Validate(0), "duplicate position")

	d = base
	d.Subobjects = []SubobjectRef{pos(42, 0, 0)}
	assert.Error(t, d.Validate(42), "self reference")
	assert.NoError(t, d.Validate(41))

	d = base
	d.DisplayMode = "mosaic"
	assert.Error(t, d.Validate(0), "unknown display mode")
}
