// Package decision synthesizes the guess tree: at every step one species is
// guessed and the remaining candidates are bucketed by the lowest common
// ancestor of the guess and each candidate.
package decision

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/phobologic/cladeguess/internal/ranking"
	"github.com/phobologic/cladeguess/internal/taxonomy"
)

// ErrNoCandidates is returned when a step is asked to guess among nothing.
var ErrNoCandidates = errors.New("empty candidate set")

// Strategy selects how a guess is picked at each step.
type Strategy string

const (
	// Ordered guesses the first remaining candidate of the global order.
	Ordered Strategy = "ordered"
	// Greedy guesses the candidate whose bucket sizes, sorted descending,
	// are lexicographically smallest; candidates are tried in name order.
	Greedy Strategy = "greedy"
)

// Strategies lists the supported strategies.
var Strategies = []Strategy{Ordered, Greedy}

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range Strategies {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q (valid: %v)", s, Strategies)
}

// Node is one step of the guess tree.
type Node struct {
	// Subject is the clade every remaining candidate belongs to.
	Subject *taxonomy.Node
	Guess   string
	// Candidates are the species still possible at this step, Guess
	// included, in global order.
	Candidates []string
	// Branches holds one child per LCA outcome, sorted by subject name.
	Branches []*Node
}

// Size returns the number of decision nodes in the subtree rooted at n.
func (n *Node) Size() int {
	total := 1
	for _, b := range n.Branches {
		total += b.Size()
	}
	return total
}

// Builder synthesizes guess trees over a bound taxonomy.
type Builder struct {
	tree     *taxonomy.Tree
	index    map[string]int
	strategy Strategy
	logger   *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithStrategy overrides the default Ordered strategy.
func WithStrategy(s Strategy) Option {
	return func(b *Builder) { b.strategy = s }
}

// WithLogger attaches a logger for per-step debug output.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder returns a Builder that breaks ties by order.
func NewBuilder(t *taxonomy.Tree, order []string, opts ...Option) *Builder {
	b := &Builder{
		tree:     t,
		index:    ranking.Index(order),
		strategy: Ordered,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// BuildAll synthesizes the guess tree for every bound species, starting at
// the taxonomy root.
func (b *Builder) BuildAll() (*Node, error) {
	root := b.tree.Root()
	if root == nil {
		return nil, errors.New("empty taxonomy")
	}
	return b.Build(root, b.tree.Labels())
}

// Build synthesizes the guess tree for candidates, all of which are known to
// lie under subject.
func (b *Builder) Build(subject *taxonomy.Node, candidates []string) (*Node, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%s: %w", subject.Name, ErrNoCandidates)
	}

	cands := slices.Clone(candidates)
	ranking.Sort(cands, b.index)

	species := make(map[string]*taxonomy.Node, len(cands))
	for _, c := range cands {
		n, ok := b.tree.Species(c)
		if !ok {
			return nil, fmt.Errorf("candidate %q: %w", c, taxonomy.ErrNotFound)
		}
		species[c] = n
	}

	var (
		guess   string
		buckets []bucket
	)
	switch b.strategy {
	case Greedy:
		guess, buckets = b.greedy(cands, species)
	default:
		guess = cands[0]
		buckets = b.split(cands, guess, species)
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].outcome.Name < buckets[j].outcome.Name
	})

	b.logger.Debug("decision step",
		zap.String("subject", subject.Name),
		zap.String("guess", guess),
		zap.Int("candidates", len(cands)),
		zap.Int("outcomes", len(buckets)),
	)

	node := &Node{
		Subject:    subject,
		Guess:      guess,
		Candidates: cands,
		Branches:   make([]*Node, 0, len(buckets)),
	}
	for _, bk := range buckets {
		child, err := b.Build(bk.outcome, bk.labels)
		if err != nil {
			return nil, err
		}
		node.Branches = append(node.Branches, child)
	}
	return node, nil
}

type bucket struct {
	outcome *taxonomy.Node
	labels  []string
}

// split groups every candidate other than guess by LCA(guess, candidate).
// Buckets appear in the order their first member appears in cands.
func (b *Builder) split(cands []string, guess string, species map[string]*taxonomy.Node) []bucket {
	g := species[guess]
	pos := make(map[int]int)
	var out []bucket
	for _, other := range cands {
		if other == guess {
			continue
		}
		outcome := b.tree.LCA(g, species[other])
		i, ok := pos[outcome.ID]
		if !ok {
			i = len(out)
			pos[outcome.ID] = i
			out = append(out, bucket{outcome: outcome})
		}
		out[i].labels = append(out[i].labels, other)
	}
	return out
}

func (b *Builder) greedy(cands []string, species map[string]*taxonomy.Node) (string, []bucket) {
	byName := slices.Clone(cands)
	sort.Strings(byName)

	var (
		best        string
		bestBuckets []bucket
		bestSizes   []int
		found       bool
	)
	for _, guess := range byName {
		buckets := b.split(cands, guess, species)
		sizes := make([]int, len(buckets))
		for i, bk := range buckets {
			sizes[i] = len(bk.labels)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
		if !found || slices.Compare(sizes, bestSizes) < 0 {
			best, bestBuckets, bestSizes, found = guess, buckets, sizes, true
		}
	}
	return best, bestBuckets
}
