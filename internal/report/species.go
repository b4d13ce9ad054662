package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/phobologic/cladeguess/internal/taxonomy"
)

// WriteSpecies writes the species listing: clades without candidates are
// dropped and unbound single-child chains are collapsed into their child.
//
// A bound node with candidates below it prints both its label and its
// species count, then lists its children:
//
//	* Genus: genus (2 species)
//	  * Sub1: one
func WriteSpecies(w io.Writer, t *taxonomy.Tree) error {
	root := t.Root()
	if root == nil {
		return nil
	}

	var b strings.Builder
	var walk func(n *taxonomy.Node, indent int)
	walk = func(n *taxonomy.Node, indent int) {
		kids := visibleChildren(t, n)
		pad := strings.Repeat("  ", indent)
		switch {
		case n.Species != "" && len(kids) == 0:
			fmt.Fprintf(&b, "%s* %s: %s\n", pad, n.Name, n.Species)
		case n.Species != "":
			fmt.Fprintf(&b, "%s* %s: %s (%d species)\n", pad, n.Name, n.Species, n.NumLeaves())
		default:
			fmt.Fprintf(&b, "%s* %s: (%d species)\n", pad, n.Name, n.NumLeaves())
		}
		for _, c := range kids {
			walk(c, indent+1)
		}
	}
	walk(collapse(t, root), 0)

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteOutline writes the same pruned, collapsed tree as WriteSpecies in
// the outline format the parser reads.
func WriteOutline(w io.Writer, t *taxonomy.Tree) error {
	root := t.Root()
	if root == nil {
		return nil
	}

	var b strings.Builder
	var walk func(n *taxonomy.Node, prefix string)
	walk = func(n *taxonomy.Node, prefix string) {
		kids := visibleChildren(t, n)
		for i, c := range kids {
			marker, next := "+-", "| "
			if i == len(kids)-1 {
				marker, next = `\-`, "  "
			}
			fmt.Fprintf(&b, "%s%s%s\n", prefix, marker, c.Name)
			walk(c, prefix+next)
		}
	}
	top := collapse(t, root)
	fmt.Fprintln(&b, top.Name)
	walk(top, "")

	_, err := io.WriteString(w, b.String())
	return err
}

// collapse follows n down through unbound nodes with exactly one child that
// holds candidates.
func collapse(t *taxonomy.Tree, n *taxonomy.Node) *taxonomy.Node {
	for n.Species == "" {
		kids := nonEmptyChildren(t, n)
		if len(kids) != 1 {
			break
		}
		n = kids[0]
	}
	return n
}

func visibleChildren(t *taxonomy.Tree, n *taxonomy.Node) []*taxonomy.Node {
	kids := nonEmptyChildren(t, n)
	for i, c := range kids {
		kids[i] = collapse(t, c)
	}
	return kids
}

func nonEmptyChildren(t *taxonomy.Tree, n *taxonomy.Node) []*taxonomy.Node {
	var out []*taxonomy.Node
	for _, c := range t.Children(n) {
		if c.NumLeaves() > 0 {
			out = append(out, c)
		}
	}
	return out
}
