// Package object implements the content-object core: attribute and
// payload persistence for the four object types, the visibility filter,
// the composite graph engine, and the bulk upsert orchestrator.
//
// Object types:
//   - link:       a URL with display options
//   - markdown:   a raw markdown note
//   - to_do_list: an ordered, indentable item list
//   - composite:  a grid of references to other objects (subobjects)
//
// The composite graph is stored as an adjacency table, not a tree.
// Cycles are permitted on disk; every traversal carries a visited set
// and a depth bound.
package object

import (
	"net/url"
	"time"

	"github.com/taghive/taghive/internal/apperr"
)

// Valid object types. The type of an object never changes after
// creation.
const (
	TypeLink      = "link"
	TypeMarkdown  = "markdown"
	TypeToDoList  = "to_do_list"
	TypeComposite = "composite"
)

// ValidType reports whether t is one of the four object types.
func ValidType(t string) bool {
	switch t {
	case TypeLink, TypeMarkdown, TypeToDoList, TypeComposite:
		return true
	}
	return false
}

// Attributes is the type-independent part of an object.
type Attributes struct {
	ObjectID          int64      `json:"object_id"`
	ObjectType        string     `json:"object_type"`
	ObjectName        string     `json:"object_name"`
	ObjectDescription string     `json:"object_description"`
	OwnerID           int64      `json:"owner_id"`
	IsPublished       bool       `json:"is_published"`
	DisplayInFeed     bool       `json:"display_in_feed"`
	FeedTimestamp     *time.Time `json:"feed_timestamp"`
	ShowDescription   bool       `json:"show_description"`
	CreatedAt         time.Time  `json:"created_at"`
	ModifiedAt        time.Time  `json:"modified_at"`
	// CurrentTagIDs reflects the objects_tags state after the request.
	CurrentTagIDs []int64 `json:"current_tag_ids"`
}

// AttrParams is the mutable attribute set supplied by a caller.
type AttrParams struct {
	ObjectType        string     `json:"object_type"`
	ObjectName        string     `json:"object_name"`
	ObjectDescription string     `json:"object_description"`
	OwnerID           int64      `json:"owner_id,omitempty"`
	IsPublished       bool       `json:"is_published"`
	DisplayInFeed     bool       `json:"display_in_feed"`
	FeedTimestamp     *time.Time `json:"feed_timestamp"`
	ShowDescription   bool       `json:"show_description"`
}

// Validate checks the value constraints of the attribute set.
func (p *AttrParams) Validate() error {
	if !ValidType(p.ObjectType) {
		return apperr.BadRequestf("unknown object_type %q", p.ObjectType)
	}
	if p.ObjectName == "" || len(p.ObjectName) > 255 {
		return apperr.BadRequestf("object_name must be 1..255 characters")
	}
	if p.OwnerID < 0 {
		return apperr.BadRequestf("owner_id must be a positive integer")
	}
	return nil
}

// LinkData is the payload of a link object.
type LinkData struct {
	Link                  string `json:"link"`
	ShowDescriptionAsLink bool   `json:"show_description_as_link"`
}

// Validate enforces an absolute http/https URL. The grammar is
// deliberately conservative: url.Parse plus a scheme and host check.
func (d *LinkData) Validate() error {
	u, err := url.Parse(d.Link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.BadRequestf("link must be a valid absolute http(s) URL")
	}
	return nil
}

// MarkdownData is the payload of a markdown object.
type MarkdownData struct {
	RawText string `json:"raw_text"`
}

func (d *MarkdownData) Validate() error {
	if d.RawText == "" {
		return apperr.BadRequestf("raw_text must not be empty")
	}
	return nil
}

// To-do list sort types and item states.
const (
	SortDefault = "default"
	SortState   = "state"

	ItemActive    = "active"
	ItemCompleted = "completed"
	ItemOptional  = "optional"
	ItemCancelled = "cancelled"
)

// ToDoItem is one entry of a to-do list. Item numbers are normalized on
// write to 0..n-1 preserving the caller's order.
type ToDoItem struct {
	ItemNumber int    `json:"item_number"`
	ItemState  string `json:"item_state"`
	ItemText   string `json:"item_text"`
	Commentary string `json:"commentary"`
	Indent     int    `json:"indent"`
	IsExpanded bool   `json:"is_expanded"`
}

// ToDoListData is the payload of a to_do_list object.
type ToDoListData struct {
	SortType string     `json:"sort_type"`
	Items    []ToDoItem `json:"items"`
}

func (d *ToDoListData) Validate() error {
	if d.SortType != SortDefault && d.SortType != SortState {
		return apperr.BadRequestf("sort_type must be default or state")
	}
	for i := range d.Items {
		it := &d.Items[i]
		if it.ItemNumber < 0 {
			return apperr.BadRequestf("item_number must be >= 0")
		}
		if it.Indent < 0 {
			return apperr.BadRequestf("indent must be >= 0")
		}
		switch it.ItemState {
		case ItemActive, ItemCompleted, ItemOptional, ItemCancelled:
		default:
			return apperr.BadRequestf("unknown item_state %q", it.ItemState)
		}
	}
	return nil
}

// Composite display modes and subobject tri-state display overrides.
const (
	DisplayBasic        = "basic"
	DisplayMulticolumn  = "multicolumn"
	DisplayGroupedLinks = "grouped_links"
	DisplayChapters     = "chapters"

	TriYes     = "yes"
	TriNo      = "no"
	TriInherit = "inherit"
)

func validTriState(v string) bool {
	return v == TriYes || v == TriNo || v == TriInherit
}

// SubobjectRef places a subobject in a composite's grid.
type SubobjectRef struct {
	SubobjectID                    int64  `json:"subobject_id"`
	Column                         int    `json:"column"`
	Row                            int    `json:"row"`
	SelectedTab                    int    `json:"selected_tab"`
	IsExpanded                     bool   `json:"is_expanded"`
	ShowDescriptionComposite       string `json:"show_description_composite"`
	ShowDescriptionAsLinkComposite string `json:"show_description_as_link_composite"`
}

// CompositeData is the payload of a composite object.
type CompositeData struct {
	DisplayMode      string         `json:"display_mode"`
	NumerateChapters bool           `json:"numerate_chapters"`
	Subobjects       []SubobjectRef `json:"subobjects"`
}

// Validate checks value constraints and the in-request uniqueness
// invariants: no duplicate subobject ids, no duplicate (column,row)
// pairs, and the composite may not reference itself as an immediate
// child (selfID; pass 0 to skip the self check).
func (d *CompositeData) Validate(selfID int64) error {
	switch d.DisplayMode {
	case DisplayBasic, DisplayMulticolumn, DisplayGroupedLinks, DisplayChapters:
	default:
		return apperr.BadRequestf("unknown display_mode %q", d.DisplayMode)
	}

	seenIDs := map[int64]struct{}{}
	seenPos := map[[2]int]struct{}{}
	for i := range d.Subobjects {
		ref := &d.Subobjects[i]
		if ref.SubobjectID == 0 {
			return apperr.BadRequestf("subobject_id must be a non-zero integer")
		}
		if selfID != 0 && ref.SubobjectID == selfID {
			return apperr.BadRequestf("composite cannot reference itself as a subobject")
		}
		if ref.Column < 0 || ref.Row < 0 || ref.SelectedTab < 0 {
			return apperr.BadRequestf("column, row and selected_tab must be >= 0")
		}
		if ref.ShowDescriptionComposite == "" {
			ref.ShowDescriptionComposite = TriInherit
		}
		if ref.ShowDescriptionAsLinkComposite == "" {
			ref.ShowDescriptionAsLinkComposite = TriInherit
		}
		if !validTriState(ref.ShowDescriptionComposite) || !validTriState(ref.ShowDescriptionAsLinkComposite) {
			return apperr.BadRequestf("display overrides must be yes, no or inherit")
		}
		if _, dup := seenIDs[ref.SubobjectID]; dup {
			return apperr.BadRequestf("duplicate subobject_id %d", ref.SubobjectID)
		}
		seenIDs[ref.SubobjectID] = struct{}{}
		pos := [2]int{ref.Column, ref.Row}
		if _, dup := seenPos[pos]; dup {
			return apperr.BadRequestf("duplicate subobject position (%d, %d)", ref.Column, ref.Row)
		}
		seenPos[pos] = struct{}{}
	}
	return nil
}
