package object

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/database"
)

// DataRecord pairs an object id with its typed payload for view
// responses.
type DataRecord struct {
	ObjectID   int64  `json:"object_id"`
	ObjectType string `json:"object_type"`
	ObjectData any    `json:"object_data"`
}

// ParseData decodes a raw payload into the typed variant for
// objectType and validates it. Unknown fields are a BadRequest.
// selfID is the object the payload belongs to (composites may not
// reference themselves); pass 0 for objects not yet allocated.
func ParseData(objectType string, raw json.RawMessage, selfID int64) (any, error) {
	if len(raw) == 0 {
		return nil, apperr.BadRequestf("object_data is required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	switch objectType {
	case TypeLink:
		var d LinkData
		if err := dec.Decode(&d); err != nil {
			return nil, apperr.BadRequestf("invalid link data: %v", err)
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		return &d, nil
	case TypeMarkdown:
		var d MarkdownData
		if err := dec.Decode(&d); err != nil {
			return nil, apperr.BadRequestf("invalid markdown data: %v", err)
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		return &d, nil
	case TypeToDoList:
		var d ToDoListData
		if err := dec.Decode(&d); err != nil {
			return nil, apperr.BadRequestf("invalid to-do list data: %v", err)
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		return &d, nil
	case TypeComposite:
		var d CompositeData
		if err := dec.Decode(&d); err != nil {
			return nil, apperr.BadRequestf("invalid composite data: %v", err)
		}
		if err := d.Validate(selfID); err != nil {
			return nil, err
		}
		return &d, nil
	}
	return nil, apperr.BadRequestf("unknown object_type %q", objectType)
}

// WriteData persists a typed payload for an object. The attribute
// service has already pinned the object's type, so each writer knows
// its target tables. Composite payloads additionally need the set of
// ids created earlier in the same transaction; see UpsertComposite.
func (s *Store) WriteData(ctx context.Context, id int64, data any, createdInTx map[int64]struct{}) error {
	switch d := data.(type) {
	case *LinkData:
		return s.writeLink(ctx, id, d)
	case *MarkdownData:
		return s.writeMarkdown(ctx, id, d)
	case *ToDoListData:
		return s.writeToDoList(ctx, id, d)
	case *CompositeData:
		return s.UpsertComposite(ctx, id, d, createdInTx)
	}
	return fmt.Errorf("object: write data %d: unsupported payload %T", id, data)
}

func (s *Store) writeLink(ctx context.Context, id int64, d *LinkData) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO links (object_id, link, show_description_as_link)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (object_id) DO UPDATE
		 SET link = EXCLUDED.link, show_description_as_link = EXCLUDED.show_description_as_link`,
		id, d.Link, d.ShowDescriptionAsLink)
	if err != nil {
		return fmt.Errorf("object: write link %d: %w", id, database.MapError(err))
	}
	return nil
}

func (s *Store) writeMarkdown(ctx context.Context, id int64, d *MarkdownData) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO markdown (object_id, raw_text)
		 VALUES ($1, $2)
		 ON CONFLICT (object_id) DO UPDATE SET raw_text = EXCLUDED.raw_text`,
		id, d.RawText)
	if err != nil {
		return fmt.Errorf("object: write markdown %d: %w", id, database.MapError(err))
	}
	return nil
}

func (s *Store) writeToDoList(ctx context.Context, id int64, d *ToDoListData) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO to_do_lists (object_id, sort_type)
		 VALUES ($1, $2)
		 ON CONFLICT (object_id) DO UPDATE SET sort_type = EXCLUDED.sort_type`,
		id, d.SortType)
	if err != nil {
		return fmt.Errorf("object: write to-do list %d: %w", id, database.MapError(err))
	}

	// Items are replaced wholesale; numbering restarts at 0 in the
	// caller's order.
	if _, err := s.q.Exec(ctx,
		`DELETE FROM to_do_list_items WHERE object_id = $1`, id); err != nil {
		return fmt.Errorf("object: clear to-do items %d: %w", id, database.MapError(err))
	}
	RenumberToDoItems(d.Items)
	for _, it := range d.Items {
		_, err := s.q.Exec(ctx,
			`INSERT INTO to_do_list_items (object_id, item_number, item_state, item_text, commentary, indent, is_expanded)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, it.ItemNumber, it.ItemState, it.ItemText, it.Commentary, it.Indent, it.IsExpanded)
		if err != nil {
			return fmt.Errorf("object: write to-do item %d/%d: %w", id, it.ItemNumber, database.MapError(err))
		}
	}
	return nil
}

// GetData returns typed payload records for the given ids, in input
// order. Missing ids are omitted.
func (s *Store) GetData(ctx context.Context, ids []int64) ([]DataRecord, error) {
	if len(ids) == 0 {
		return []DataRecord{}, nil
	}
	types, err := s.TypesOf(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := []DataRecord{}
	for _, id := range ids {
		typ, ok := types[id]
		if !ok {
			continue
		}
		var data any
		switch typ {
		case TypeLink:
			data, err = s.readLink(ctx, id)
		case TypeMarkdown:
			data, err = s.readMarkdown(ctx, id)
		case TypeToDoList:
			data, err = s.readToDoList(ctx, id)
		case TypeComposite:
			data, err = s.ReadComposite(ctx, id)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, DataRecord{ObjectID: id, ObjectType: typ, ObjectData: data})
	}
	return out, nil
}

func (s *Store) readLink(ctx context.Context, id int64) (*LinkData, error) {
	var d LinkData
	err := s.q.QueryRow(ctx,
		`SELECT link, show_description_as_link FROM links WHERE object_id = $1`, id,
	).Scan(&d.Link, &d.ShowDescriptionAsLink)
	if err != nil {
		return nil, fmt.Errorf("object: read link %d: %w", id, database.MapError(err))
	}
	return &d, nil
}

func (s *Store) readMarkdown(ctx context.Context, id int64) (*MarkdownData, error) {
	var d MarkdownData
	err := s.q.QueryRow(ctx,
		`SELECT raw_text FROM markdown WHERE object_id = $1`, id).Scan(&d.RawText)
	if err != nil {
		return nil, fmt.Errorf("object: read markdown %d: %w", id, database.MapError(err))
	}
	return &d, nil
}

func (s *Store) readToDoList(ctx context.Context, id int64) (*ToDoListData, error) {
	var d ToDoListData
	err := s.q.QueryRow(ctx,
		`SELECT sort_type FROM to_do_lists WHERE object_id = $1`, id).Scan(&d.SortType)
	if err != nil {
		return nil, fmt.Errorf("object: read to-do list %d: %w", id, database.MapError(err))
	}

	rows, err := s.q.Query(ctx,
		`SELECT item_number, item_state, item_text, commentary, indent, is_expanded
		 FROM to_do_list_items WHERE object_id = $1 ORDER BY item_number`, id)
	if err != nil {
		return nil, fmt.Errorf("object: read to-do items %d: %w", id, database.MapError(err))
	}
	defer rows.Close()

	d.Items = []ToDoItem{}
	for rows.Next() {
		var it ToDoItem
		if err := rows.Scan(&it.ItemNumber, &it.ItemState, &it.ItemText, &it.Commentary, &it.Indent, &it.IsExpanded); err != nil {
			return nil, err
		}
		d.Items = append(d.Items, it)
	}
	return &d, rows.Err()
}
