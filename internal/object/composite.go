package object

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/database"
)

// UpsertComposite rewrites a composite's subobject grid and properties.
//
// Every referenced subobject must already exist or have been created
// earlier in the same transaction (createdInTx). The previous subobject
// rows are replaced wholesale, which both drops removed subobjects and
// sidesteps position-uniqueness conflicts during renumbering. Positions
// are normalized before insert.
func (s *Store) UpsertComposite(ctx context.Context, id int64, d *CompositeData, createdInTx map[int64]struct{}) error {
	if err := d.Validate(id); err != nil {
		return err
	}

	refIDs := make([]int64, 0, len(d.Subobjects))
	for _, ref := range d.Subobjects {
		if _, ok := createdInTx[ref.SubobjectID]; ok {
			continue
		}
		refIDs = append(refIDs, ref.SubobjectID)
	}
	if len(refIDs) > 0 {
		var count int
		err := s.q.QueryRow(ctx,
			`SELECT COUNT(*) FROM objects WHERE object_id = ANY($1)`, refIDs).Scan(&count)
		if err != nil {
			return fmt.Errorf("object: check subobjects of %d: %w", id, database.MapError(err))
		}
		if count != len(refIDs) {
			return apperr.BadRequestf("subobjects reference non-existent objects")
		}
	}

	if _, err := s.q.Exec(ctx,
		`DELETE FROM composite_subobjects WHERE object_id = $1`, id); err != nil {
		return fmt.Errorf("object: clear subobjects of %d: %w", id, database.MapError(err))
	}

	NormalizePositions(d.Subobjects)
	for _, ref := range d.Subobjects {
		_, err := s.q.Exec(ctx,
			`INSERT INTO composite_subobjects
				(object_id, subobject_id, "column", "row", selected_tab, is_expanded,
				 show_description_composite, show_description_as_link_composite)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id, ref.SubobjectID, ref.Column, ref.Row, ref.SelectedTab, ref.IsExpanded,
			ref.ShowDescriptionComposite, ref.ShowDescriptionAsLinkComposite)
		if err != nil {
			return fmt.Errorf("object: write subobject %d of %d: %w", ref.SubobjectID, id, database.MapError(err))
		}
	}

	_, err := s.q.Exec(ctx,
		`INSERT INTO composite_properties (object_id, display_mode, numerate_chapters)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (object_id) DO UPDATE
		 SET display_mode = EXCLUDED.display_mode, numerate_chapters = EXCLUDED.numerate_chapters`,
		id, d.DisplayMode, d.NumerateChapters)
	if err != nil {
		return fmt.Errorf("object: write composite properties %d: %w", id, database.MapError(err))
	}
	return nil
}

// ReadComposite loads a composite payload: properties plus the grid in
// column-then-row order.
func (s *Store) ReadComposite(ctx context.Context, id int64) (*CompositeData, error) {
	var d CompositeData
	err := s.q.QueryRow(ctx,
		`SELECT display_mode, numerate_chapters FROM composite_properties WHERE object_id = $1`, id,
	).Scan(&d.DisplayMode, &d.NumerateChapters)
	if err == pgx.ErrNoRows {
		// A composite upserted without properties falls back to basic.
		d.DisplayMode = DisplayBasic
	} else if err != nil {
		return nil, fmt.Errorf("object: read composite %d: %w", id, database.MapError(err))
	}

	rows, err := s.q.Query(ctx,
		`SELECT subobject_id, "column", "row", selected_tab, is_expanded,
			show_description_composite, show_description_as_link_composite
		 FROM composite_subobjects WHERE object_id = $1
		 ORDER BY "column", "row"`, id)
	if err != nil {
		return nil, fmt.Errorf("object: read subobjects of %d: %w", id, database.MapError(err))
	}
	defer rows.Close()

	d.Subobjects = []SubobjectRef{}
	for rows.Next() {
		var ref SubobjectRef
		if err := rows.Scan(&ref.SubobjectID, &ref.Column, &ref.Row, &ref.SelectedTab, &ref.IsExpanded,
			&ref.ShowDescriptionComposite, &ref.ShowDescriptionAsLinkComposite); err != nil {
			return nil, err
		}
		d.Subobjects = append(d.Subobjects, ref)
	}
	return &d, rows.Err()
}

// referencedAsSubobject returns the subset of candidate ids that some
// composite still references.
func (s *Store) referencedAsSubobject(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	if len(ids) == 0 {
		return map[int64]struct{}{}, nil
	}
	rows, err := s.q.Query(ctx,
		`SELECT DISTINCT subobject_id FROM composite_subobjects WHERE subobject_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("object: referenced as subobject: %w", database.MapError(err))
	}
	defer rows.Close()

	referenced := map[int64]struct{}{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		referenced[id] = struct{}{}
	}
	return referenced, rows.Err()
}

// ProcessFullyDeleted hard-deletes the candidate ids that no surviving
// composite references. Ids still present as a subobject of any
// composite are spared. Runs after all subobject rewrites of the
// request, so "surviving" reflects the request's final state. Returns
// the ids actually deleted.
func (s *Store) ProcessFullyDeleted(ctx context.Context, candidates []int64) ([]int64, error) {
	candidates = dedupInt64(candidates)
	if len(candidates) == 0 {
		return []int64{}, nil
	}

	referenced, err := s.referencedAsSubobject(ctx, candidates)
	if err != nil {
		return nil, err
	}
	toDelete := make([]int64, 0, len(candidates))
	for _, id := range candidates {
		if _, spared := referenced[id]; !spared {
			toDelete = append(toDelete, id)
		}
	}
	return s.DeleteObjects(ctx, toDelete)
}

// DeleteObjects hard-deletes objects; payload rows, tag links,
// subobject rows, and searchables follow by cascade. Returns the ids
// actually deleted.
func (s *Store) DeleteObjects(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}
	rows, err := s.q.Query(ctx,
		`DELETE FROM objects WHERE object_id = ANY($1) RETURNING object_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("object: delete: %w", database.MapError(err))
	}
	defer rows.Close()

	deleted := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}

func dedupInt64(ids []int64) []int64 {
	seen := map[int64]struct{}{}
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
