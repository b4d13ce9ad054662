// Package taxonomy holds the classification tree: node ownership, the
// name registry, candidate binding and lowest-common-ancestor queries.
package taxonomy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a scientific name or species label has no node.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a name or label would be registered twice.
	ErrDuplicate = errors.New("duplicate")
)

const noParent = -1

// Node is a single clade in the classification tree.
type Node struct {
	ID    int
	Name  string
	Depth int
	// Species is the candidate label bound to this node, "" if none.
	Species string
	// Leaves holds every candidate label at or below this node.
	Leaves map[string]struct{}

	parent   int
	children []int
}

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool { return n.parent == noParent }

// NumLeaves returns the number of candidate labels at or below n.
func (n *Node) NumLeaves() int { return len(n.Leaves) }

// HasLeaf reports whether label is bound at or below n.
func (n *Node) HasLeaf(label string) bool {
	_, ok := n.Leaves[label]
	return ok
}

// SortedLeaves returns the candidate labels under n in lexicographic order.
func (n *Node) SortedLeaves() []string {
	out := make([]string, 0, len(n.Leaves))
	for l := range n.Leaves {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(depth=%d, leaves=%d)", n.Name, n.Depth, len(n.Leaves))
}

// Tree owns every node of one classification. Parents are stored as indices
// into nodes, so the tree holds no pointer cycles.
type Tree struct {
	nodes   []*Node
	byName  map[string]int
	species map[string]int
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{
		byName:  make(map[string]int),
		species: make(map[string]int),
	}
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.nodes) }

// Root returns the first node added, or nil for an empty tree.
func (t *Tree) Root() *Node {
	if len(t.nodes) == 0 {
		return nil
	}
	return t.nodes[0]
}

// Nodes returns all nodes in insertion (outline) order.
func (t *Tree) Nodes() []*Node { return t.nodes }

// AddRoot registers the root node. It must be the first node added.
func (t *Tree) AddRoot(name string, depth int) (*Node, error) {
	if len(t.nodes) != 0 {
		return nil, fmt.Errorf("root %q: tree already has root %q", name, t.nodes[0].Name)
	}
	return t.add(name, depth, noParent)
}

// AddChild registers a node named name as the last child of parent.
func (t *Tree) AddChild(parent *Node, name string, depth int) (*Node, error) {
	if parent == nil || parent.ID >= len(t.nodes) || t.nodes[parent.ID] != parent {
		return nil, fmt.Errorf("node %q: parent is not part of this tree", name)
	}
	if depth <= parent.Depth {
		return nil, fmt.Errorf("node %q: depth %d not below parent %q at depth %d", name, depth, parent.Name, parent.Depth)
	}
	n, err := t.add(name, depth, parent.ID)
	if err != nil {
		return nil, err
	}
	parent.children = append(parent.children, n.ID)
	return n, nil
}

func (t *Tree) add(name string, depth, parent int) (*Node, error) {
	if _, dup := t.byName[name]; dup {
		return nil, fmt.Errorf("node %q: %w", name, ErrDuplicate)
	}
	n := &Node{
		ID:     len(t.nodes),
		Name:   name,
		Depth:  depth,
		Leaves: make(map[string]struct{}),
		parent: parent,
	}
	t.nodes = append(t.nodes, n)
	t.byName[name] = n.ID
	return n, nil
}

// Lookup returns the node with the given scientific name.
func (t *Tree) Lookup(name string) (*Node, bool) {
	id, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.nodes[id], true
}

// Parent returns the parent of n, or nil for the root.
func (t *Tree) Parent(n *Node) *Node {
	if n.parent == noParent {
		return nil
	}
	return t.nodes[n.parent]
}

// Children returns the children of n in outline order.
func (t *Tree) Children(n *Node) []*Node {
	out := make([]*Node, len(n.children))
	for i, id := range n.children {
		out[i] = t.nodes[id]
	}
	return out
}

// Ancestors returns the chain from n up to and including the root.
func (t *Tree) Ancestors(n *Node) []*Node {
	var chain []*Node
	for cur := n; cur != nil; cur = t.Parent(cur) {
		chain = append(chain, cur)
	}
	return chain
}

// Lineage renders the root-first path of names ending at n, joined by "/".
func (t *Tree) Lineage(n *Node) string {
	chain := t.Ancestors(n)
	names := make([]string, len(chain))
	for i, a := range chain {
		names[len(chain)-1-i] = a.Name
	}
	return strings.Join(names, "/")
}

// LCA returns the deepest node that is an ancestor of both a and b.
//
// The deeper side is lifted until the depths meet, then both sides climb
// together. Outlines may skip indentation levels, so depths are compared on
// every step instead of only once: a node that is at least as deep as the
// other side and differs from it cannot be an ancestor of it.
func (t *Tree) LCA(a, b *Node) *Node {
	for a.ID != b.ID {
		switch {
		case a.Depth > b.Depth:
			a = t.Parent(a)
		case b.Depth > a.Depth:
			b = t.Parent(b)
		default:
			a, b = t.Parent(a), t.Parent(b)
		}
	}
	return a
}
