package object

import (
	"github.com/taghive/taghive/internal/clock"
	"github.com/taghive/taghive/internal/database"
	"github.com/taghive/taghive/internal/tag"
	"github.com/taghive/taghive/internal/user"
)

// Store provides object persistence and the object services. Bound to
// a querier, so the request surface decides transaction scope.
type Store struct {
	q     database.Querier
	clk   clock.Clock
	tags  *tag.Store
	users *user.Store
}

// NewStore creates an object Store bound to a querier (pool or
// transaction).
func NewStore(q database.Querier, clk clock.Clock) *Store {
	return &Store{
		q:     q,
		clk:   clk,
		tags:  tag.NewStore(q, clk),
		users: user.NewStore(q, clk),
	}
}

// Tags exposes the tag store sharing this store's querier. Used by the
// request surface for tag deltas inside the same transaction.
func (s *Store) Tags() *tag.Store { return s.tags }
