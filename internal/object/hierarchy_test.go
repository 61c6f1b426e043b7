package object

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGraph maps composite id -> ordered children; every other id is a
// non-composite leaf. hidden ids are omitted from fetches entirely.
type fakeGraph struct {
	children map[int64][]int64
	hidden   map[int64]bool
}

func (g fakeGraph) fetch(_ context.Context, ids []int64) (map[int64]hierarchyNode, error) {
	nodes := map[int64]hierarchyNode{}
	for _, id := range ids {
		if g.hidden[id] {
			continue
		}
		kids, composite := g.children[id]
		nodes[id] = hierarchyNode{isComposite: composite, children: kids}
	}
	return nodes, nil
}

func TestCollectHierarchyWithCycle(t *testing.T) {
	g := fakeGraph{children: map[int64][]int64{
		99999: {1, 2, 3, 4, 5},
		1:     {11, 12},
		2:     {},
		11:    {111, 112},
		111:   {1}, // cycle back to 1
	}}

	got, err := collectHierarchy(context.Background(), 99999, g.fetch)
	require.NoError(t, err)
	assert.Equal(t, []int64{99999, 1, 2, 11, 111}, got.CompositeIDs)
	assert.ElementsMatch(t, []int64{3, 4, 5, 12, 112}, got.NonCompositeIDs)
}

func TestCollectHierarchyCycleThroughRoot(t *testing.T) {
	g := fakeGraph{children: map[int64][]int64{
		10: {20},
		20: {10, 30},
	}}

	got, err := collectHierarchy(context.Background(), 10, g.fetch)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, got.CompositeIDs)
	assert.Equal(t, []int64{30}, got.NonCompositeIDs)
}

func TestCollectHierarchyDepthCutoff(t *testing.T) {
	// Chain of composites 0→1→…→7, each with one leaf child.
	g := fakeGraph{children: map[int64][]int64{}}
	for i := int64(0); i < 8; i++ {
		g.children[i] = []int64{i + 1, 100 + i}
	}

	got, err := collectHierarchy(context.Background(), 0, g.fetch)
	require.NoError(t, err)
	// Depths 0..5 only: composites 0..5 and their leaves; the leaf of
	// composite 5 sits at depth 6 and is cut off together with chain
	// node 6.
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5}, got.CompositeIDs)
	assert.ElementsMatch(t, []int64{100, 101, 102, 103, 104}, got.NonCompositeIDs)
}

func TestCollectHierarchyHiddenSubtreeOmitted(t *testing.T) {
	g := fakeGraph{
		children: map[int64][]int64{
			1: {2, 3},
			2: {4},
		},
		hidden: map[int64]bool{2: true},
	}

	got, err := collectHierarchy(context.Background(), 1, g.fetch)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, got.CompositeIDs)
	// 2 is hidden, and 4 is only reachable through it.
	assert.Equal(t, []int64{3}, got.NonCompositeIDs)
}

func TestCollectHierarchyDuplicateReferences(t *testing.T) {
	g := fakeGraph{children: map[int64][]int64{
		1: {2, 3},
		2: {5},
		3: {5},
	}}

	got, err := collectHierarchy(context.Background(), 1, g.fetch)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, got.CompositeIDs)
	// 5 is referenced by both 2 and 3 but appears once.
	assert.Equal(t, []int64{5}, got.NonCompositeIDs)
}
