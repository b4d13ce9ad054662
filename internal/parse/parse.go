// Package parse reconstructs a taxonomy tree from an indented ASCII outline.
package parse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/phobologic/cladeguess/internal/taxonomy"
)

// ErrOrphan is returned when a line has no shallower node to attach to.
var ErrOrphan = errors.New("no parent in outline")

// Depth returns the depth and node name encoded by one outline line.
// A line with no marker and no root form yields an empty name.
func Depth(line string) (int, string) {
	if line == "" || !strings.ContainsRune(" |+\\", rune(line[0])) {
		return 0, strings.TrimSpace(line)
	}

	for i := 0; i+1 < len(line); i++ {
		if (line[i] == '+' || line[i] == '\\') && line[i+1] == '-' {
			return i/2 + 1, strings.TrimSpace(line[i+2:])
		}
	}
	return 0, ""
}

// Outline reads an outline from r and returns the tree it describes.
func Outline(r io.Reader) (*taxonomy.Tree, error) {
	t := taxonomy.New()

	// frontier maps depth to the most recently seen node at that depth.
	frontier := make(map[int]*taxonomy.Node)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		depth, name := Depth(line)
		if name == "" {
			continue
		}

		if t.Root() == nil {
			root, err := t.AddRoot(name, depth)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			frontier[depth] = root
			continue
		}

		parent := nearest(frontier, depth)
		if parent == nil {
			return nil, fmt.Errorf("line %d: %q at depth %d: %w", lineNo, name, depth, ErrOrphan)
		}
		n, err := t.AddChild(parent, name, depth)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		frontier[depth] = n
		for d := range frontier {
			if d > depth {
				delete(frontier, d)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading outline: %w", err)
	}
	if t.Root() == nil {
		return nil, errors.New("outline has no nodes")
	}
	return t, nil
}

// Lines parses an outline already split into lines.
func Lines(lines []string) (*taxonomy.Tree, error) {
	return Outline(strings.NewReader(strings.Join(lines, "\n")))
}

func nearest(frontier map[int]*taxonomy.Node, depth int) *taxonomy.Node {
	for d := depth - 1; d >= 0; d-- {
		if n, ok := frontier[d]; ok {
			return n
		}
	}
	return nil
}
