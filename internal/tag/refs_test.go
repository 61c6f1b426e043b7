package tag

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefUnmarshal(t *testing.T) {
	var refs []Ref
	err := json.Unmarshal([]byte(`[1, "books", 42, "Books"]`), &refs)
	require.NoError(t, err)
	assert.Equal(t, []Ref{{ID: 1}, {Name: "books"}, {ID: 42}, {Name: "Books"}}, refs)
}

func TestRefUnmarshalRejectsBadValues(t *testing.T) {
	for _, raw := range []string{`0`, `-5`, `""`, `1.5`, `true`, `{}`} {
		var r Ref
		assert.Error(t, json.Unmarshal([]byte(raw), &r), "input %s", raw)
	}
}

func TestSplitRefsDedup(t *testing.T) {
	ids, names := splitRefs([]Ref{
		{ID: 3}, {Name: "Books"}, {ID: 3}, {Name: "books"}, {Name: "BOOKS"},
		{ID: 7}, {Name: "music"},
	})
	assert.Equal(t, []int64{3, 7}, ids)
	// Case-insensitive dedup keeps the first spelling.
	assert.Equal(t, []string{"Books", "music"}, names)
}
