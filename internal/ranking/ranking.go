// Package ranking computes the global species order used to break ties
// between equally good guesses.
package ranking

import (
	"slices"
	"sort"

	"github.com/phobologic/cladeguess/internal/taxonomy"
)

// Order returns every bound species label under the root of t, largest
// clades first. Within a node, child orders are sorted by descending size,
// then by comparing the child orders themselves; a node's own species comes
// after all of its descendants.
func Order(t *taxonomy.Tree) []string {
	root := t.Root()
	if root == nil {
		return nil
	}
	return orderNode(t, root)
}

func orderNode(t *taxonomy.Tree, n *taxonomy.Node) []string {
	var lists [][]string
	for _, c := range t.Children(n) {
		if c.NumLeaves() == 0 {
			continue
		}
		lists = append(lists, orderNode(t, c))
	}

	sort.SliceStable(lists, func(i, j int) bool {
		if len(lists[i]) != len(lists[j]) {
			return len(lists[i]) > len(lists[j])
		}
		return slices.Compare(lists[i], lists[j]) < 0
	})

	out := make([]string, 0, n.NumLeaves())
	for _, l := range lists {
		out = append(out, l...)
	}
	if n.Species != "" {
		out = append(out, n.Species)
	}
	return out
}

// Index maps each label of order to its position.
func Index(order []string) map[string]int {
	idx := make(map[string]int, len(order))
	for i, l := range order {
		idx[l] = i
	}
	return idx
}

// Sort orders labels in place by their position in idx. Labels missing from
// idx sort last, lexicographically.
func Sort(labels []string, idx map[string]int) {
	sort.SliceStable(labels, func(i, j int) bool {
		pi, oki := idx[labels[i]]
		pj, okj := idx[labels[j]]
		switch {
		case oki && okj:
			return pi < pj
		case oki != okj:
			return oki
		default:
			return labels[i] < labels[j]
		}
	})
}
