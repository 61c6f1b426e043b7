package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taghive/taghive/internal/clock"
	"github.com/taghive/taghive/internal/database"
)

// Kind discriminates the two searchable entity kinds.
type Kind string

const (
	KindObject Kind = "object"
	KindTag    Kind = "tag"
)

// Item is one pending index rebuild.
type Item struct {
	Kind Kind
	ID   int64
}

const (
	queueCapacity  = 1024
	maxAttempts    = 4
	initialBackoff = 100 * time.Millisecond
	drainTimeout   = 5 * time.Second
)

// Indexer keeps searchable rows in sync with their source entities.
// Mutating requests enqueue items only after their transaction commits;
// a single worker goroutine collapses duplicates and rebuilds rows.
type Indexer struct {
	q       database.Querier
	clk     clock.Clock
	log     *zap.Logger
	enabled bool
	ch      chan Item
	done    chan struct{}
}

func NewIndexer(q database.Querier, clk clock.Clock, log *zap.Logger, enabled bool) *Indexer {
	return &Indexer{
		q:       q,
		clk:     clk,
		log:     log,
		enabled: enabled,
		ch:      make(chan Item, queueCapacity),
		done:    make(chan struct{}),
	}
}

// Enqueue submits items for reindexing. Never blocks a request: when
// the queue is full the item is dropped and the reconcile job picks it
// up later.
func (ix *Indexer) Enqueue(items ...Item) {
	if !ix.enabled {
		return
	}
	for _, it := range items {
		select {
		case ix.ch <- it:
		default:
			ix.log.Warn("search: queue full, dropping item",
				zap.String("kind", string(it.Kind)), zap.Int64("id", it.ID))
		}
	}
}

// Start runs the worker until ctx is cancelled, then drains the
// remaining queue for a bounded grace period. Call from its own
// goroutine; Wait blocks until the drain finishes.
func (ix *Indexer) Start(ctx context.Context) {
	defer close(ix.done)
	if !ix.enabled {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			ix.drain()
			return
		case it := <-ix.ch:
			batch := ix.collapse(it)
			for _, pending := range batch {
				ix.processWithRetry(ctx, pending)
			}
		}
	}
}

// Wait blocks until the worker has exited.
func (ix *Indexer) Wait() {
	<-ix.done
}

// collapse pops everything currently queued and deduplicates it,
// preserving first-seen order.
func (ix *Indexer) collapse(first Item) []Item {
	seen := map[Item]struct{}{first: {}}
	batch := []Item{first}
	for {
		select {
		case it := <-ix.ch:
			if _, dup := seen[it]; !dup {
				seen[it] = struct{}{}
				batch = append(batch, it)
			}
		default:
			return batch
		}
	}
}

func (ix *Indexer) processWithRetry(ctx context.Context, it Item) {
	backoff := initialBackoff
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = ix.Process(ctx, it); err == nil {
			return
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < maxAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	ix.log.Error("search: reindex failed, dropping item",
		zap.String("kind", string(it.Kind)), zap.Int64("id", it.ID), zap.Error(err))
}

func (ix *Indexer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case it := <-ix.ch:
			for _, pending := range ix.collapse(it) {
				if err := ix.Process(ctx, pending); err != nil {
					ix.log.Error("search: drain reindex failed",
						zap.String("kind", string(pending.Kind)), zap.Int64("id", pending.ID), zap.Error(err))
				}
			}
		default:
			return
		}
	}
}

// Process rebuilds one searchable row from current DB state. A source
// entity that no longer exists is a no-op: the FK cascade already
// removed its row.
func (ix *Indexer) Process(ctx context.Context, it Item) error {
	switch it.Kind {
	case KindObject:
		doc, ok, err := BuildObjectDocument(ctx, ix.q, it.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return upsertObjectSearchable(ctx, ix.q, it.ID, doc, ix.clk.Now())
	case KindTag:
		doc, ok, err := BuildTagDocument(ctx, ix.q, it.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return upsertTagSearchable(ctx, ix.q, it.ID, doc, ix.clk.Now())
	default:
		return fmt.Errorf("search: unknown item kind %q", it.Kind)
	}
}

func upsertObjectSearchable(ctx context.Context, q database.Querier, id int64, doc Document, now time.Time) error {
	_, err := q.Exec(ctx,
		`INSERT INTO searchables (object_id, modified_at, text_a, text_b, text_c)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (object_id) WHERE object_id IS NOT NULL DO UPDATE
		 SET modified_at = EXCLUDED.modified_at, text_a = EXCLUDED.text_a,
		     text_b = EXCLUDED.text_b, text_c = EXCLUDED.text_c`,
		id, now, doc.TextA, doc.TextB, doc.TextC)
	if err != nil {
		return fmt.Errorf("search: upsert object searchable %d: %w", id, database.MapError(err))
	}
	return nil
}

func upsertTagSearchable(ctx context.Context, q database.Querier, id int64, doc Document, now time.Time) error {
	_, err := q.Exec(ctx,
		`INSERT INTO searchables (tag_id, modified_at, text_a, text_b, text_c)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tag_id) WHERE tag_id IS NOT NULL DO UPDATE
		 SET modified_at = EXCLUDED.modified_at, text_a = EXCLUDED.text_a,
		     text_b = EXCLUDED.text_b, text_c = EXCLUDED.text_c`,
		id, now, doc.TextA, doc.TextB, doc.TextC)
	if err != nil {
		return fmt.Errorf("search: upsert tag searchable %d: %w", id, database.MapError(err))
	}
	return nil
}
