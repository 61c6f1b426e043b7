package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taghive/taghive/internal/apperr"
)

func TestSplitHeaders(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		headers string
		rest    string
	}{
		{
			name:    "headers and body",
			text:    "# Title\nSome body text.\n## Section\nMore text.",
			headers: "Title\nSection",
			rest:    "Some body text.\nMore text.",
		},
		{
			name:    "no headers",
			text:    "just\nplain text",
			headers: "",
			rest:    "just\nplain text",
		},
		{
			name:    "hash without space is not a header",
			text:    "#hashtag here",
			headers: "",
			rest:    "#hashtag here",
		},
		{
			name:    "seven hashes is not a header",
			text:    "####### too deep",
			headers: "",
			rest:    "####### too deep",
		},
		{
			name:    "indented header counts",
			text:    "  ## Trimmed\nbody",
			headers: "Trimmed",
			rest:    "body",
		},
		{
			name:    "blank lines dropped",
			text:    "# A\n\n\nb\n",
			headers: "A",
			rest:    "b",
		},
		{
			name:    "empty input",
			text:    "",
			headers: "",
			rest:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, r := splitHeaders(tt.text)
			assert.Equal(t, tt.headers, h)
			assert.Equal(t, tt.rest, r)
		})
	}
}

func TestDocumentZones(t *testing.T) {
	var doc Document
	doc.addA("Name")
	doc.addA("")
	doc.addA("Header")
	doc.addB("  body  ")
	doc.addC("note")

	assert.Equal(t, "Name\nHeader", doc.TextA)
	assert.Equal(t, "body", doc.TextB)
	assert.Equal(t, "note", doc.TextC)
}

func TestQueryParamsValidate(t *testing.T) {
	ok := QueryParams{QueryText: "go", Page: 1, ItemsPerPage: 10}
	assert.NoError(t, ok.validate())

	for name, p := range map[string]QueryParams{
		"empty query":    {QueryText: "", Page: 1, ItemsPerPage: 10},
		"zero page":      {QueryText: "go", Page: 0, ItemsPerPage: 10},
		"zero page size": {QueryText: "go", Page: 1, ItemsPerPage: 0},
	} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, apperr.Is(p.validate(), apperr.BadRequest))
		})
	}
}

func TestIndexerDisabledEnqueueIsNoop(t *testing.T) {
	ix := &Indexer{enabled: false, ch: make(chan Item, 1)}
	ix.Enqueue(Item{Kind: KindObject, ID: 1}, Item{Kind: KindTag, ID: 2})
	assert.Empty(t, ix.ch)
}

func TestCollapseDeduplicates(t *testing.T) {
	ix := &Indexer{enabled: true, ch: make(chan Item, 8)}
	ix.ch <- Item{Kind: KindObject, ID: 1}
	ix.ch <- Item{Kind: KindTag, ID: 1}
	ix.ch <- Item{Kind: KindObject, ID: 2}

	batch := ix.collapse(Item{Kind: KindObject, ID: 1})
	assert.Equal(t, []Item{
		{Kind: KindObject, ID: 1},
		{Kind: KindTag, ID: 1},
		{Kind: KindObject, ID: 2},
	}, batch)
}
