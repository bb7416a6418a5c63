package pvacvector

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/tmooney/pVACtools/internal/filter"
)

// onlyPath lets A join B only through HH and B join C only directly, so
// A-HH-B-C is the single vector.
var onlyPath = []string{"AC", "CA", "AD", "DA", "DC", "HA", "DH", "HD", "CH"}

func newTestGraph(t *testing.T, p *dipeptides, peptides []Peptide, spacers []string, conf GraphConfig) *Graph {
	t.Helper()

	catalog, err := NewCatalog(spacers)
	if err != nil {
		t.Fatal(err)
	}
	scorer := NewScorer(p, ScorerConfig{Lengths: []int{8}, Thresholds: filter.Thresholds{Default: 500}})
	return NewGraph(peptides, catalog, alleles, scorer, conf)
}

// entries flattens a vector into peptide IDs and spacers.
func entries(v *Vector) []string {
	var out []string
	for i, p := range v.Peptides {
		out = append(out, p.ID)
		if i < len(v.Spacers) {
			out = append(out, v.Spacers[i].String())
		}
	}
	return out
}

func TestAssemble(t *testing.T) {
	tests := []struct {
		name      string
		forbidden []string
		spacers   []string
		peptides  []Peptide
		want      []string
	}{
		{
			"single peptide",
			nil,
			[]string{"None"},
			[]Peptide{pepA},
			[]string{"A"},
		},
		{
			"no binders, input order",
			nil,
			[]string{"None", "HH"},
			[]Peptide{pepA, pepB, pepC},
			[]string{"A", "None", "B", "None", "C"},
		},
		{
			"spacer needed at the first junction",
			[]string{"AC"},
			[]string{"None", "HH"},
			[]Peptide{pepA, pepB},
			[]string{"A", "HH", "B"},
		},
		{
			"preferred spacer wins when both pass",
			nil,
			[]string{"HH", "None"},
			[]Peptide{pepA, pepB},
			[]string{"A", "HH", "B"},
		},
		{
			"one feasible ordering",
			onlyPath,
			[]string{"None", "HH"},
			[]Peptide{pepC, pepB, pepA},
			[]string{"A", "HH", "B", "None", "C"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGraph(t, newDipeptides(tt.forbidden...), tt.peptides, tt.spacers, GraphConfig{Threads: 2})

			v, err := Assemble(context.Background(), g, Budget{MaxSteps: 1000})
			if err != nil {
				t.Fatal(err)
			}
			if got := entries(v); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Assemble() = %v, want %v", got, tt.want)
			}
			for i, r := range v.Junctions {
				if !r.Pass() || r.Spacer != v.Spacers[i] {
					t.Errorf("Assemble() junction %d = %+v, doesn't match spacer %s", i, r, v.Spacers[i])
				}
			}
		})
	}
}

func TestAssemble_seq(t *testing.T) {
	g := newTestGraph(t, newDipeptides(onlyPath...), []Peptide{pepA, pepB, pepC}, []string{"None", "HH"}, GraphConfig{})

	v, err := Assemble(context.Background(), g, Budget{})
	if err != nil {
		t.Fatal(err)
	}

	want := "AAAAAAAA" + "HH" + "CCCCCCCC" + "DDDDDDDD"
	if v.Seq() != want {
		t.Errorf("Vector.Seq() = %s, want %s", v.Seq(), want)
	}
}

func TestAssemble_infeasible(t *testing.T) {
	p := newDipeptides("AC", "CA", "AD", "DA", "CD", "DC")
	g := newTestGraph(t, p, []Peptide{pepA, pepB, pepC}, []string{"None"}, GraphConfig{Threads: 4})

	v, err := Assemble(context.Background(), g, Budget{MaxSteps: 1000})
	if v != nil {
		t.Fatalf("Assemble() returned a vector %v", entries(v))
	}

	var assemblyErr *AssemblyError
	if !errors.As(err, &assemblyErr) {
		t.Fatalf("Assemble() error = %v, want an *AssemblyError", err)
	}
	if !assemblyErr.Exhaustive {
		t.Error("Assemble() error isn't exhaustive")
	}

	wantBlocking := []Blocking{{"A", 1}, {"B", 1}, {"C", 1}}
	if !reflect.DeepEqual(assemblyErr.Blocking, wantBlocking) {
		t.Errorf("Assemble() blocking = %v, want %v", assemblyErr.Blocking, wantBlocking)
	}
	if len(assemblyErr.Pairs) != 6 {
		t.Errorf("Assemble() infeasible pairs = %d, want 6", len(assemblyErr.Pairs))
	}
	for _, pair := range assemblyErr.Pairs {
		if !reflect.DeepEqual(pair.Attempted, []string{"None"}) || len(pair.Violations) != 1 {
			t.Errorf("Assemble() pair %s -> %s attempted %v with %d violations", pair.From, pair.To, pair.Attempted, len(pair.Violations))
		}
	}
}

func TestAssemble_budget(t *testing.T) {
	g := newTestGraph(t, newDipeptides(), []Peptide{pepA, pepB, pepC}, []string{"None"}, GraphConfig{})

	_, err := Assemble(context.Background(), g, Budget{MaxSteps: 2})

	var assemblyErr *AssemblyError
	if !errors.As(err, &assemblyErr) {
		t.Fatalf("Assemble() error = %v, want an *AssemblyError", err)
	}
	if assemblyErr.Exhaustive {
		t.Error("Assemble() out of budget, but error is exhaustive")
	}
	if assemblyErr.Steps != 2 {
		t.Errorf("Assemble() steps = %d, want 2", assemblyErr.Steps)
	}
}

func TestAssemble_cancelled(t *testing.T) {
	g := newTestGraph(t, newDipeptides(), []Peptide{pepA, pepB}, []string{"None"}, GraphConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Assemble(ctx, g, Budget{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Assemble() error = %v, want context.Canceled", err)
	}
}

func TestAssemble_deterministic(t *testing.T) {
	peptides := []Peptide{
		pepA, pepB, pepC,
		{ID: "D", Seq: "EEEEEEEE"},
		{ID: "E", Seq: "FFFFFFFF"},
	}
	forbidden := []string{"AC", "CD", "DE", "EF", "FA", "HA"}

	var want []string
	for _, conf := range []GraphConfig{
		{Threads: 1},
		{Threads: 8},
		{Threads: 1, Speculative: true},
		{Threads: 8, Speculative: true},
	} {
		g := newTestGraph(t, newDipeptides(forbidden...), peptides, []string{"None", "HH", "AAY"}, conf)

		v, err := Assemble(context.Background(), g, Budget{})
		if err != nil {
			t.Fatalf("Assemble(%+v) error = %v", conf, err)
		}
		got := entries(v)
		if want == nil {
			want = got
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Assemble(%+v) = %v, want %v", conf, got, want)
		}
	}
}

func TestGraph_ResolveAll(t *testing.T) {
	type edge struct {
		from, to int
		spacer   string
	}
	edges := func(g *Graph) []edge {
		var out []edge
		for _, e := range g.Edges() {
			out = append(out, edge{e.From, e.To, e.Spacer.String()})
		}
		return out
	}

	peptides := []Peptide{pepA, pepB, pepC}
	sequential := newTestGraph(t, newDipeptides(onlyPath...), peptides, []string{"None", "HH"}, GraphConfig{Threads: 3})
	speculative := newTestGraph(t, newDipeptides(onlyPath...), peptides, []string{"None", "HH"}, GraphConfig{Threads: 3, Speculative: true})

	for _, g := range []*Graph{sequential, speculative} {
		if err := g.ResolveAll(context.Background()); err != nil {
			t.Fatal(err)
		}
		if !g.Complete() {
			t.Error("Graph.Complete() = false after ResolveAll()")
		}
	}

	want := []edge{{0, 1, "HH"}, {1, 2, "None"}}
	if got := edges(sequential); !reflect.DeepEqual(got, want) {
		t.Errorf("sequential edges = %v, want %v", got, want)
	}
	if got := edges(speculative); !reflect.DeepEqual(got, want) {
		t.Errorf("speculative edges = %v, want %v", got, want)
	}
	if got := sequential.Successors(0); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("Graph.Successors(0) = %v, want [1]", got)
	}
	if got := len(sequential.Infeasible()); got != 4 {
		t.Errorf("Graph.Infeasible() = %d pairs, want 4", got)
	}
}

func TestGraph_dedup(t *testing.T) {
	p := newDipeptides("AC", "DA")
	g := newTestGraph(t, p, []Peptide{pepA, pepB, pepC, {ID: "D", Seq: "AAAAAAAA"}}, []string{"None", "HH"}, GraphConfig{Threads: 8, Speculative: true})

	if err := g.ResolveAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.maxCalls() != 1 {
		t.Errorf("a window was predicted %d times, want once", p.maxCalls())
	}
}
