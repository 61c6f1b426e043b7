package object

import "sort"

// NormalizePositions rewrites grid positions so that columns are
// exactly 0..m-1 and, within each column, rows are exactly 0..k-1,
// preserving the relative order the caller supplied. Operates in place
// and returns refs for convenience.
func NormalizePositions(refs []SubobjectRef) []SubobjectRef {
	if len(refs) == 0 {
		return refs
	}

	// Distinct columns in ascending order of their original value.
	colSet := map[int]struct{}{}
	for i := range refs {
		colSet[refs[i].Column] = struct{}{}
	}
	cols := make([]int, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}
	sort.Ints(cols)
	colIndex := make(map[int]int, len(cols))
	for i, c := range cols {
		colIndex[c] = i
	}

	// Within each column, order rows by original value; ties keep input
	// order.
	byColumn := map[int][]int{}
	for i := range refs {
		byColumn[refs[i].Column] = append(byColumn[refs[i].Column], i)
	}
	for _, idxs := range byColumn {
		sort.SliceStable(idxs, func(a, b int) bool {
			return refs[idxs[a]].Row < refs[idxs[b]].Row
		})
		for row, i := range idxs {
			refs[i].Row = row
		}
	}
	for i := range refs {
		refs[i].Column = colIndex[refs[i].Column]
	}
	return refs
}

// RenumberToDoItems rewrites item numbers to 0..n-1 preserving the
// caller's list order. Operates in place and returns items for
// convenience.
func RenumberToDoItems(items []ToDoItem) []ToDoItem {
	for i := range items {
		items[i].ItemNumber = i
	}
	return items
}
