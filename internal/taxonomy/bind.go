package taxonomy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/phobologic/cladeguess/internal/model"
)

// Bind attaches each candidate to the node named by its scientific name and
// adds its label to the leaf set of that node and all of its ancestors.
// Binding the same pair twice is a no-op. Every pair is checked before any
// node changes, so a failed Bind leaves the tree as it was.
//
// A scientific name already carrying a different label fails with an error
// matching both ErrNotFound (no free node for the pair) and ErrDuplicate.
func (t *Tree) Bind(candidates []model.Candidate) error {
	nodeLabel := make(map[int]string)
	labelNode := make(map[string]int)
	var pending []*Node

	for _, c := range candidates {
		n, ok := t.Lookup(c.Scientific)
		if !ok {
			return fmt.Errorf("species %q: scientific name %q: %w", c.Label, c.Scientific, ErrNotFound)
		}
		current, seen := nodeLabel[n.ID]
		if !seen {
			current = n.Species
		}
		if current == c.Label && (seen || n.Species != "") {
			continue
		}
		if current != "" {
			return fmt.Errorf("scientific name %q bound to both %q and %q: %w: %w",
				c.Scientific, current, c.Label, ErrNotFound, ErrDuplicate)
		}
		id, dup := labelNode[c.Label]
		if !dup {
			id, dup = t.species[c.Label]
		}
		if dup {
			return fmt.Errorf("species %q bound to both %q and %q: %w", c.Label, t.nodes[id].Name, c.Scientific, ErrDuplicate)
		}

		nodeLabel[n.ID] = c.Label
		labelNode[c.Label] = n.ID
		pending = append(pending, n)
	}

	for _, n := range pending {
		label := nodeLabel[n.ID]
		n.Species = label
		t.species[label] = n.ID
		for cur := n; cur != nil; cur = t.Parent(cur) {
			cur.Leaves[label] = struct{}{}
		}
	}
	return nil
}

// Species returns the node a candidate label is bound to.
func (t *Tree) Species(label string) (*Node, bool) {
	id, ok := t.species[label]
	if !ok {
		return nil, false
	}
	return t.nodes[id], true
}

// Labels returns every bound candidate label in lexicographic order.
func (t *Tree) Labels() []string {
	out := make([]string, 0, len(t.species))
	for l := range t.species {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// LCAOf folds LCA over the species nodes of labels.
func (t *Tree) LCAOf(labels ...string) (*Node, error) {
	if len(labels) == 0 {
		return nil, errors.New("lca of no species")
	}
	var acc *Node
	for _, l := range labels {
		n, ok := t.Species(l)
		if !ok {
			return nil, fmt.Errorf("species %q: %w", l, ErrNotFound)
		}
		if acc == nil {
			acc = n
			continue
		}
		acc = t.LCA(acc, n)
	}
	return acc, nil
}
