package pvacvector

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// pair is an ordered pair of peptide indexes.
type pair struct {
	from, to int
}

// Edge is a feasible junction: From can be followed by To using Spacer.
type Edge struct {
	From   int
	To     int
	Spacer Spacer
	Result *JunctionResult
}

// GraphConfig are the settings for resolving junctions.
type GraphConfig struct {
	// Threads bounds how many junctions are scored at once
	Threads int

	// Speculative scores every spacer of a pair at once instead of
	// stopping at the first that passes
	Speculative bool
}

// Graph is the feasibility graph over peptides. Pairs are resolved
// lazily, when the assembler first needs them.
type Graph struct {
	peptides []Peptide
	catalog  Catalog
	alleles  []string
	scorer   *Scorer
	conf     GraphConfig

	mu         sync.Mutex
	resolved   map[pair]bool
	edges      map[pair]*Edge
	infeasible map[pair]*InfeasibleError
}

// NewGraph returns a Graph without any resolved pairs.
func NewGraph(peptides []Peptide, catalog Catalog, alleles []string, scorer *Scorer, conf GraphConfig) *Graph {
	if conf.Threads < 1 {
		conf.Threads = 1
	}

	return &Graph{
		peptides:   peptides,
		catalog:    catalog,
		alleles:    alleles,
		scorer:     scorer,
		conf:       conf,
		resolved:   make(map[pair]bool),
		edges:      make(map[pair]*Edge),
		infeasible: make(map[pair]*InfeasibleError),
	}
}

// Len returns the number of peptides.
func (g *Graph) Len() int {
	return len(g.peptides)
}

// Peptide returns the peptide at index i.
func (g *Graph) Peptide(i int) Peptide {
	return g.peptides[i]
}

// Resolve scores every unresolved pair from a peptide in from to a peptide
// in to. It returns after all of them are resolved, or on the first error.
func (g *Graph) Resolve(ctx context.Context, from, to []int) error {
	var pending []pair

	g.mu.Lock()
	seen := make(map[pair]bool)
	for _, i := range from {
		for _, j := range to {
			p := pair{i, j}
			if i == j || g.resolved[p] || seen[p] {
				continue
			}
			seen[p] = true
			pending = append(pending, p)
		}
	}
	g.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.conf.Threads)

	if !g.conf.Speculative {
		for _, p := range pending {
			eg.Go(func() error {
				results, err := g.firstPassing(ctx, p)
				if err != nil {
					return err
				}
				g.record(p, results)
				return nil
			})
		}
		return eg.Wait()
	}

	// every spacer of every pair is its own task, under the same limit
	results := make([][]*JunctionResult, len(pending))
	for pi, p := range pending {
		results[pi] = make([]*JunctionResult, len(g.catalog))
		for si, spacer := range g.catalog {
			eg.Go(func() error {
				r, err := g.scorer.Score(ctx, g.peptides[p.from], g.peptides[p.to], spacer, g.alleles)
				if err != nil {
					return err
				}
				results[pi][si] = r
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for pi, p := range pending {
		g.record(p, results[pi])
	}
	return nil
}

// ResolveAll resolves every ordered pair.
func (g *Graph) ResolveAll(ctx context.Context) error {
	all := make([]int, len(g.peptides))
	for i := range all {
		all[i] = i
	}
	return g.Resolve(ctx, all, all)
}

// firstPassing scores spacers in rank order until one passes.
func (g *Graph) firstPassing(ctx context.Context, p pair) ([]*JunctionResult, error) {
	var results []*JunctionResult
	for _, spacer := range g.catalog {
		r, err := g.scorer.Score(ctx, g.peptides[p.from], g.peptides[p.to], spacer, g.alleles)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
		if r.Pass() {
			break
		}
	}
	return results, nil
}

// record stores a pair's edge, or why it has none.
func (g *Graph) record(p pair, results []*JunctionResult) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.resolved[p] {
		return
	}
	g.resolved[p] = true

	if best := selectEdge(results); best != nil {
		g.edges[p] = &Edge{From: p.from, To: p.to, Spacer: best.Spacer, Result: best}
		return
	}

	infeasible := &InfeasibleError{From: g.peptides[p.from].ID, To: g.peptides[p.to].ID}
	for _, r := range results {
		infeasible.Attempted = append(infeasible.Attempted, r.Spacer.String())
		infeasible.Violations = append(infeasible.Violations, r.Violations...)
	}
	g.infeasible[p] = infeasible
}

// Resolved reports whether the pair has been scored.
func (g *Graph) Resolved(from, to int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.resolved[pair{from, to}]
}

// Edge returns the edge from one peptide to another, if the pair is feasible.
func (g *Graph) Edge(from, to int) (*Edge, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.edges[pair{from, to}]
	return e, ok
}

// Successors returns the peptides, in input order, with an edge from peptide i.
func (g *Graph) Successors(i int) []int {
	g.mu.Lock()
	defer g.mu.Unlock()

	var next []int
	for j := range g.peptides {
		if _, ok := g.edges[pair{i, j}]; ok {
			next = append(next, j)
		}
	}
	return next
}

// Edges returns every resolved edge ordered by From, then To.
func (g *Graph) Edges() []*Edge {
	g.mu.Lock()
	defer g.mu.Unlock()

	edges := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(a, b int) bool {
		if edges[a].From != edges[b].From {
			return edges[a].From < edges[b].From
		}
		return edges[a].To < edges[b].To
	})
	return edges
}

// Infeasible returns every resolved pair without an edge, in input order.
func (g *Graph) Infeasible() []*InfeasibleError {
	g.mu.Lock()
	defer g.mu.Unlock()

	pairs := make([]pair, 0, len(g.infeasible))
	for p := range g.infeasible {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].from != pairs[b].from {
			return pairs[a].from < pairs[b].from
		}
		return pairs[a].to < pairs[b].to
	})

	errs := make([]*InfeasibleError, len(pairs))
	for i, p := range pairs {
		errs[i] = g.infeasible[p]
	}
	return errs
}

// Complete reports whether every ordered pair has been resolved.
func (g *Graph) Complete() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.peptides)
	return len(g.resolved) == n*(n-1)
}
