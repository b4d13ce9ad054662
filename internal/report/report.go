// Package report renders the species listing and the decision report, and
// verifies a guess tree before anything is written.
package report

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/phobologic/cladeguess/internal/decision"
	"github.com/phobologic/cladeguess/internal/model"
	"github.com/phobologic/cladeguess/internal/taxonomy"
)

// ErrInvariant is returned when a guess tree does not route every species
// to the single subtree consistent with the answers it produced.
var ErrInvariant = errors.New("decision tree invariant violated")

// Stats aggregates guess counts over the species resolved at or below a
// decision node.
type Stats struct {
	// Max is the worst-case number of guesses.
	Max int
	// Sum is the total number of guesses summed over every species.
	Sum int
	// Count is the number of species covered.
	Count int
}

// Avg returns the mean number of guesses per species.
func (s Stats) Avg() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Sum) / float64(s.Count)
}

// Combine returns the stats of a node whose own guess is followed by the
// given children.
func Combine(children ...Stats) Stats {
	s := Stats{Max: 1, Sum: 1, Count: 1}
	for _, c := range children {
		if c.Max+1 > s.Max {
			s.Max = c.Max + 1
		}
		s.Sum += c.Sum + c.Count
		s.Count += c.Count
	}
	return s
}

// Compute returns the stats for the subtree rooted at n.
func Compute(n *decision.Node) Stats {
	return collect(n, nil)
}

func collect(n *decision.Node, memo map[*decision.Node]Stats) Stats {
	children := make([]Stats, len(n.Branches))
	for i, b := range n.Branches {
		children[i] = collect(b, memo)
	}
	s := Combine(children...)
	if memo != nil {
		memo[n] = s
	}
	return s
}

// Check verifies root against the taxonomy it was built from:
//   - the root step concerns the taxonomy root;
//   - every guess is one of its step's candidates and is made exactly once;
//   - a step's guess and its branches partition its candidates;
//   - for every species at or below a step, the deepest LCA with any guess
//     made on the path to that step is the step's subject;
//   - the guesses cover universe exactly.
func Check(t *taxonomy.Tree, root *decision.Node, universe []string) error {
	if root == nil {
		return fmt.Errorf("%w: no decision tree", ErrInvariant)
	}
	if root.Subject != t.Root() {
		return fmt.Errorf("%w: root subject %s is not taxonomy root %s", ErrInvariant, root.Subject.Name, t.Root().Name)
	}

	guessed := make(map[string]struct{}, len(universe))
	if err := check(t, root, nil, guessed); err != nil {
		return err
	}

	for _, l := range universe {
		if _, ok := guessed[l]; !ok {
			return fmt.Errorf("%w: species %q is never guessed", ErrInvariant, l)
		}
	}
	if len(guessed) != len(universe) {
		return fmt.Errorf("%w: %d species guessed, universe has %d", ErrInvariant, len(guessed), len(universe))
	}
	return nil
}

func check(t *taxonomy.Tree, n *decision.Node, path []*taxonomy.Node, guessed map[string]struct{}) error {
	own := make(map[string]struct{}, len(n.Candidates))
	for _, c := range n.Candidates {
		own[c] = struct{}{}
	}
	if _, ok := own[n.Guess]; !ok {
		return fmt.Errorf("%w: %s: guess %q is not a candidate", ErrInvariant, n.Subject.Name, n.Guess)
	}
	if _, dup := guessed[n.Guess]; dup {
		return fmt.Errorf("%w: %s: %q guessed twice", ErrInvariant, n.Subject.Name, n.Guess)
	}
	guessed[n.Guess] = struct{}{}

	for _, c := range n.Candidates {
		s, ok := t.Species(c)
		if !ok {
			return fmt.Errorf("%w: %s: candidate %q is not bound", ErrInvariant, n.Subject.Name, c)
		}
		deepest := t.Root()
		for _, g := range path {
			if l := t.LCA(g, s); l.Depth > deepest.Depth {
				deepest = l
			}
		}
		if deepest != n.Subject {
			return fmt.Errorf("%w: %q placed under %s, previous guesses place it under %s",
				ErrInvariant, c, n.Subject.Name, deepest.Name)
		}
	}

	covered := map[string]struct{}{n.Guess: {}}
	for _, b := range n.Branches {
		for _, c := range b.Candidates {
			if _, dup := covered[c]; dup {
				return fmt.Errorf("%w: %s: %q appears in more than one branch", ErrInvariant, n.Subject.Name, c)
			}
			if _, ok := own[c]; !ok {
				return fmt.Errorf("%w: %s: branch %s holds foreign candidate %q", ErrInvariant, n.Subject.Name, b.Subject.Name, c)
			}
			covered[c] = struct{}{}
		}
	}
	if len(covered) != len(own) {
		return fmt.Errorf("%w: %s: branches cover %d of %d candidates", ErrInvariant, n.Subject.Name, len(covered), len(own))
	}

	g, _ := t.Species(n.Guess)
	next := append(path[:len(path):len(path)], g)
	for _, b := range n.Branches {
		if err := check(t, b, next, guessed); err != nil {
			return err
		}
	}
	return nil
}

// WriteDecisions checks root and then writes one line per decision node:
//
//	* <subject>: <guess> (max=<m>, avg=<a>, cnt=<n>)
//
// indented two spaces per level. Nothing is written if the check fails.
func WriteDecisions(w io.Writer, t *taxonomy.Tree, root *decision.Node, universe []string) error {
	if err := Check(t, root, universe); err != nil {
		return err
	}

	memo := make(map[*decision.Node]Stats)
	collect(root, memo)

	var b strings.Builder
	var emit func(n *decision.Node, depth int)
	emit = func(n *decision.Node, depth int) {
		s := memo[n]
		fmt.Fprintf(&b, "%s* %s: %s (max=%d, avg=%s, cnt=%d)\n",
			strings.Repeat("  ", depth), n.Subject.Name, n.Guess, s.Max, FormatAvg(s.Avg()), s.Count)
		for _, c := range n.Branches {
			emit(c, depth+1)
		}
	}
	emit(root, 0)

	_, err := io.WriteString(w, b.String())
	return err
}

// FormatAvg renders an average with four significant digits.
func FormatAvg(avg float64) string {
	return strconv.FormatFloat(avg, 'g', 4, 64)
}

// Summarize flattens a checked decision tree into report rows.
func Summarize(dataset, strategy string, t *taxonomy.Tree, root *decision.Node) *model.Summary {
	memo := make(map[*decision.Node]Stats)
	total := collect(root, memo)

	sum := &model.Summary{
		Dataset:    dataset,
		Strategy:   strategy,
		Species:    total.Count,
		MaxGuesses: total.Max,
		AvgGuesses: total.Avg(),
	}

	var walk func(n *decision.Node, depth int)
	walk = func(n *decision.Node, depth int) {
		s := memo[n]
		sum.Decisions = append(sum.Decisions, model.DecisionRow{
			Depth:   depth,
			Subject: n.Subject.Name,
			Guess:   n.Guess,
			Max:     s.Max,
			Avg:     s.Avg(),
			Count:   s.Count,
		})
		row := model.SpeciesRow{Label: n.Guess, Guesses: depth + 1}
		if sp, ok := t.Species(n.Guess); ok {
			row.Scientific = sp.Name
		}
		sum.Ranked = append(sum.Ranked, row)
		for _, c := range n.Branches {
			walk(c, depth+1)
		}
	}
	walk(root, 0)

	sort.SliceStable(sum.Ranked, func(i, j int) bool {
		if sum.Ranked[i].Guesses != sum.Ranked[j].Guesses {
			return sum.Ranked[i].Guesses < sum.Ranked[j].Guesses
		}
		return sum.Ranked[i].Label < sum.Ranked[j].Label
	})
	return sum
}
