package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/taghive/taghive/internal/clock"
	"github.com/taghive/taghive/internal/database"
)

// Reconcile modes.
const (
	ModeFull    = "full"
	ModeMissing = "missing"
)

// Reconciler rebuilds searchable rows offline: everything in full mode,
// only absent or stale rows in missing mode. It shares the zone builder
// with the live indexer so both paths produce identical documents.
type Reconciler struct {
	q       database.Querier
	clk     clock.Clock
	log     *zap.Logger
	enabled bool
}

func NewReconciler(q database.Querier, clk clock.Clock, log *zap.Logger, enabled bool) *Reconciler {
	return &Reconciler{q: q, clk: clk, log: log, enabled: enabled}
}

// Run reconciles all searchables in the given mode. Returns the number
// of rows rebuilt.
func (r *Reconciler) Run(ctx context.Context, mode string) (int, error) {
	if mode != ModeFull && mode != ModeMissing {
		return 0, fmt.Errorf("search: unknown reconcile mode %q", mode)
	}
	if !r.enabled {
		r.log.Info("search: searchables updates disabled, skipping reconcile")
		return 0, nil
	}

	objectIDs, err := r.staleIDs(ctx, mode, KindObject)
	if err != nil {
		return 0, err
	}
	tagIDs, err := r.staleIDs(ctx, mode, KindTag)
	if err != nil {
		return 0, err
	}

	rebuilt := 0
	ix := NewIndexer(r.q, r.clk, r.log, true)
	for _, id := range objectIDs {
		if err := ix.Process(ctx, Item{Kind: KindObject, ID: id}); err != nil {
			return rebuilt, err
		}
		rebuilt++
	}
	for _, id := range tagIDs {
		if err := ix.Process(ctx, Item{Kind: KindTag, ID: id}); err != nil {
			return rebuilt, err
		}
		rebuilt++
	}
	r.log.Info("search: reconcile finished",
		zap.String("mode", mode),
		zap.Int("objects", len(objectIDs)), zap.Int("tags", len(tagIDs)))
	return rebuilt, nil
}

func (r *Reconciler) staleIDs(ctx context.Context, mode string, kind Kind) ([]int64, error) {
	var query string
	switch {
	case kind == KindObject && mode == ModeFull:
		query = `SELECT object_id FROM objects ORDER BY object_id`
	case kind == KindObject && mode == ModeMissing:
		query = `SELECT o.object_id FROM objects o
			LEFT JOIN searchables s ON s.object_id = o.object_id
			WHERE s.object_id IS NULL OR o.modified_at > s.modified_at
			ORDER BY o.object_id`
	case kind == KindTag && mode == ModeFull:
		query = `SELECT tag_id FROM tags ORDER BY tag_id`
	case kind == KindTag && mode == ModeMissing:
		query = `SELECT t.tag_id FROM tags t
			LEFT JOIN searchables s ON s.tag_id = t.tag_id
			WHERE s.tag_id IS NULL OR t.modified_at > s.modified_at
			ORDER BY t.tag_id`
	}

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: enumerate stale %s rows: %w", kind, database.MapError(err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
