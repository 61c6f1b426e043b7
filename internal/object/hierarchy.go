package object

import (
	"context"
	"fmt"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/auth"
	"github.com/taghive/taghive/internal/database"
)

// maxHierarchyDepth bounds descent from the root (depth 0). The graph
// may contain cycles, so the visited set alone is not enough to bound
// work on malformed data; the depth cap is a hard stop.
const maxHierarchyDepth = 5

// HierarchyElements is the result of a hierarchy traversal: flat id
// sets of the reachable composites (root included) and non-composites.
type HierarchyElements struct {
	CompositeIDs    []int64 `json:"composite_object_ids"`
	NonCompositeIDs []int64 `json:"non_composite_object_ids"`
}

// hierarchyNode describes one visible object during traversal.
type hierarchyNode struct {
	isComposite bool
	children    []int64 // grid order; composites only
}

// nodeFetcher resolves a batch of ids to nodes. Ids the caller cannot
// see, or that do not exist, are absent from the result.
type nodeFetcher func(ctx context.Context, ids []int64) (map[int64]hierarchyNode, error)

// collectHierarchy walks the graph breadth-first from root. Each id is
// visited at most once, so cyclic graphs terminate; descent stops at
// maxHierarchyDepth and at nodes the fetcher omits.
func collectHierarchy(ctx context.Context, root int64, fetch nodeFetcher) (*HierarchyElements, error) {
	out := &HierarchyElements{CompositeIDs: []int64{}, NonCompositeIDs: []int64{}}
	visited := map[int64]struct{}{root: {}}
	level := []int64{root}

	for depth := 0; depth <= maxHierarchyDepth && len(level) > 0; depth++ {
		nodes, err := fetch(ctx, level)
		if err != nil {
			return nil, err
		}

		next := []int64{}
		for _, id := range level {
			node, ok := nodes[id]
			if !ok {
				continue // hidden or deleted mid-walk; not recursed into
			}
			if !node.isComposite {
				out.NonCompositeIDs = append(out.NonCompositeIDs, id)
				continue
			}
			out.CompositeIDs = append(out.CompositeIDs, id)
			if depth == maxHierarchyDepth {
				continue
			}
			for _, child := range node.children {
				if _, seen := visited[child]; seen {
					continue
				}
				visited[child] = struct{}{}
				next = append(next, child)
			}
		}
		level = next
	}
	return out, nil
}

// TraverseHierarchy produces the hierarchy elements reachable from a
// composite root, respecting the visibility filter. The root must
// exist (NotFound), be composite (BadRequest), and be visible to the
// caller (NotFound). Hidden subobjects are omitted and not recursed
// into.
func (s *Store) TraverseHierarchy(ctx context.Context, caller auth.Caller, rootID int64) (*HierarchyElements, error) {
	if rootID <= 0 {
		return nil, apperr.BadRequestf("object_id must be a positive integer")
	}

	root, err := s.getAttrs(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if root.ObjectType != TypeComposite {
		return nil, apperr.BadRequestf("object %d is not a composite", rootID)
	}
	visible, err := s.VisibleObjectIDs(ctx, caller, []int64{rootID})
	if err != nil {
		return nil, err
	}
	if _, ok := visible[rootID]; !ok {
		return nil, apperr.NotFoundf("object %d does not exist", rootID)
	}

	return collectHierarchy(ctx, rootID, func(ctx context.Context, ids []int64) (map[int64]hierarchyNode, error) {
		return s.fetchHierarchyNodes(ctx, caller, ids)
	})
}

// fetchHierarchyNodes loads visible nodes and, for composites, their
// children in grid order.
func (s *Store) fetchHierarchyNodes(ctx context.Context, caller auth.Caller, ids []int64) (map[int64]hierarchyNode, error) {
	visible, err := s.VisibleObjectIDs(ctx, caller, ids)
	if err != nil {
		return nil, err
	}
	visibleIDs := make([]int64, 0, len(visible))
	for id := range visible {
		visibleIDs = append(visibleIDs, id)
	}
	types, err := s.TypesOf(ctx, visibleIDs)
	if err != nil {
		return nil, err
	}

	nodes := map[int64]hierarchyNode{}
	composites := []int64{}
	for id, typ := range types {
		n := hierarchyNode{isComposite: typ == TypeComposite}
		if n.isComposite {
			composites = append(composites, id)
		}
		nodes[id] = n
	}
	if len(composites) == 0 {
		return nodes, nil
	}

	rows, err := s.q.Query(ctx,
		`SELECT object_id, subobject_id FROM composite_subobjects
		 WHERE object_id = ANY($1) ORDER BY object_id, "column", "row"`, composites)
	if err != nil {
		return nil, fmt.Errorf("object: hierarchy children: %w", database.MapError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var parent, child int64
		if err := rows.Scan(&parent, &child); err != nil {
			return nil, err
		}
		n := nodes[parent]
		n.children = append(n.children, child)
		nodes[parent] = n
	}
	return nodes, rows.Err()
}
