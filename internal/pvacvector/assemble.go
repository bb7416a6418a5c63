package pvacvector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Budget bounds the search for a vector.
type Budget struct {
	// MaxSteps is the most extensions of a partial vector to try
	MaxSteps int

	// Timeout for the whole search, zero for none
	Timeout time.Duration
}

// Vector is an ordering of every peptide with the spacers between them.
type Vector struct {
	Peptides []Peptide

	// Spacers[i] joins Peptides[i] and Peptides[i+1]
	Spacers []Spacer

	// Junctions[i] is the passing result for Spacers[i]
	Junctions []*JunctionResult
}

// Seq returns the vector's full amino acid sequence.
func (v *Vector) Seq() string {
	var b strings.Builder
	for i, p := range v.Peptides {
		if i > 0 {
			b.WriteString(v.Spacers[i-1].Seq)
		}
		b.WriteString(p.Seq)
	}
	return b.String()
}

// errBudget ends a search that has used all its steps.
var errBudget = errors.New("search budget exhausted")

// search is the state of one depth first search for a Hamiltonian path.
type search struct {
	g        *Graph
	visited  []bool
	path     []int
	steps    int
	maxSteps int

	// deadEnds counts, by peptide, partial vectors ending there with no way forward
	deadEnds map[int]int
}

// Assemble finds an ordering of the graph's peptides in which every
// adjacent pair has an edge. Starting peptides are tried in input order.
// Candidates for the next peptide are tried fewest-onward-options first,
// ties broken by input order, so the result is deterministic.
//
// When no vector is found the error is an *AssemblyError. A partial
// vector is never returned.
func Assemble(ctx context.Context, g *Graph, budget Budget) (*Vector, error) {
	n := g.Len()
	if n == 0 {
		return nil, fmt.Errorf("no peptides to assemble")
	}

	var searchCtx context.Context
	var cancel context.CancelFunc
	if budget.Timeout > 0 {
		searchCtx, cancel = context.WithTimeout(ctx, budget.Timeout)
	} else {
		searchCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel() // abandons any in-flight junction scoring

	s := &search{
		g:        g,
		visited:  make([]bool, n),
		maxSteps: budget.MaxSteps,
		deadEnds: make(map[int]int),
	}

	for start := 0; start < n; start++ {
		if err := s.step(); err != nil {
			return nil, s.fail(false)
		}

		s.push(start)
		found, err := s.extend(searchCtx)
		switch {
		case found:
			return s.vector(), nil
		case errors.Is(err, errBudget):
			return nil, s.fail(false)
		case err != nil && searchCtx.Err() != nil && ctx.Err() == nil:
			return nil, s.fail(false) // timed out
		case err != nil:
			return nil, err
		}
		s.pop()
	}

	return nil, s.fail(true)
}

// extend tries to grow the current path into a full vector.
func (s *search) extend(ctx context.Context) (bool, error) {
	n := s.g.Len()
	if len(s.path) == n {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	tail := s.path[len(s.path)-1]
	unvisited := s.unvisited()

	if err := s.g.Resolve(ctx, []int{tail}, unvisited); err != nil {
		return false, err
	}
	var candidates []int
	for _, j := range unvisited {
		if _, ok := s.g.Edge(tail, j); ok {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		s.deadEnds[tail]++
		return false, nil
	}

	// every candidate's onward pairs are needed to order them
	if len(unvisited) > 1 {
		if err := s.g.Resolve(ctx, candidates, unvisited); err != nil {
			return false, err
		}
	}

	options := make(map[int]int, len(candidates))
	for _, c := range candidates {
		for _, j := range unvisited {
			if j == c {
				continue
			}
			if _, ok := s.g.Edge(c, j); ok {
				options[c]++
			}
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return options[candidates[a]] < options[candidates[b]]
	})

	for _, c := range candidates {
		if err := s.step(); err != nil {
			return false, err
		}

		s.push(c)
		found, err := s.extend(ctx)
		if found || err != nil {
			return found, err
		}
		s.pop()
	}

	return false, nil
}

// step spends one unit of the budget.
func (s *search) step() error {
	if s.maxSteps > 0 && s.steps >= s.maxSteps {
		return errBudget
	}
	s.steps++
	return nil
}

func (s *search) push(i int) {
	s.visited[i] = true
	s.path = append(s.path, i)
}

func (s *search) pop() {
	last := s.path[len(s.path)-1]
	s.visited[last] = false
	s.path = s.path[:len(s.path)-1]
}

// unvisited returns the peptides not on the path, in input order.
func (s *search) unvisited() []int {
	var out []int
	for i, v := range s.visited {
		if !v {
			out = append(out, i)
		}
	}
	return out
}

// vector builds the result from a complete path.
func (s *search) vector() *Vector {
	v := &Vector{}
	for k, i := range s.path {
		v.Peptides = append(v.Peptides, s.g.Peptide(i))
		if k == 0 {
			continue
		}
		e, _ := s.g.Edge(s.path[k-1], i)
		v.Spacers = append(v.Spacers, e.Spacer)
		v.Junctions = append(v.Junctions, e.Result)
	}
	return v
}

// fail builds the diagnostics for a search that found nothing.
func (s *search) fail(exhaustive bool) *AssemblyError {
	err := &AssemblyError{
		Pairs:      s.g.Infeasible(),
		Steps:      s.steps,
		Exhaustive: exhaustive,
	}

	for i, count := range s.deadEnds {
		err.Blocking = append(err.Blocking, Blocking{ID: s.g.Peptide(i).ID, DeadEnds: count})
	}
	index := make(map[string]int, s.g.Len())
	for i := 0; i < s.g.Len(); i++ {
		index[s.g.Peptide(i).ID] = i
	}
	sort.Slice(err.Blocking, func(a, b int) bool {
		if err.Blocking[a].DeadEnds != err.Blocking[b].DeadEnds {
			return err.Blocking[a].DeadEnds > err.Blocking[b].DeadEnds
		}
		return index[err.Blocking[a].ID] < index[err.Blocking[b].ID]
	})

	return err
}
