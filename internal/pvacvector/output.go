package pvacvector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmooney/pVACtools/config"
	"github.com/tmooney/pVACtools/internal/filter"
	"github.com/tmooney/pVACtools/internal/sink"
	"gopkg.in/yaml.v3"
)

// Score is an affinity or fold change. It's rounded to three decimals
// when serialized, and +Inf is written as "inf".
type Score float64

// MarshalJSON rounds the score.
func (s Score) MarshalJSON() ([]byte, error) {
	f := float64(s)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"inf"`), nil
	case math.IsInf(f, -1) || math.IsNaN(f):
		return nil, fmt.Errorf("failed to serialize score %v", f)
	}
	return json.Marshal(filter.Round(f))
}

// scores converts a map of raw values to Scores.
func scores(raw map[string]float64) map[string]Score {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]Score, len(raw))
	for k, v := range raw {
		out[k] = Score(v)
	}
	return out
}

// Entry is a peptide in the vector and the spacer after it.
type Entry struct {
	ID     string `json:"id"`
	Spacer string `json:"spacer,omitempty"`
}

// VectorOutput is the assembled vector.
type VectorOutput struct {
	Entries []Entry `json:"entries"`
	Seq     string  `json:"seq"`
}

// PeptideOutput is an input peptide.
type PeptideOutput struct {
	ID          string           `json:"id"`
	Seq         string           `json:"seq"`
	Mutation    string           `json:"mutation,omitempty"`
	Scores      map[string]Score `json:"scores,omitempty"`
	FoldChanges map[string]Score `json:"foldChanges,omitempty"`
}

// ViolationOutput is a junction window that binds an allele.
type ViolationOutput struct {
	Window    string `json:"window"`
	Allele    string `json:"allele"`
	Length    int    `json:"length"`
	IC50      Score  `json:"ic50"`
	Threshold Score  `json:"threshold"`
}

// JunctionOutput is a resolved pair of peptides.
type JunctionOutput struct {
	From       string            `json:"from"`
	To         string            `json:"to"`
	Spacer     string            `json:"spacer,omitempty"`
	Attempted  []string          `json:"attempted,omitempty"`
	Violations []ViolationOutput `json:"violations,omitempty"`
}

// FailureOutput is why no vector was found.
type FailureOutput struct {
	Reason     string           `json:"reason"`
	Exhaustive bool             `json:"exhaustive"`
	Steps      int              `json:"steps"`
	Blocking   []Blocking       `json:"blocking"`
	Pairs      []JunctionOutput `json:"pairs"`
}

// Output is a struct containing design results for the vector.
type Output struct {
	// RunID is unique to each run
	RunID string `json:"runId"`

	// Time, ex: "2018-01-01 20:41:00"
	Time string `json:"time"`

	// Execution is the number of seconds it took to execute the command
	Execution float64 `json:"execution"`

	// Status is "success" or "exhausted"
	Status string `json:"status"`

	// Alleles checked at every junction
	Alleles []string `json:"alleles"`

	// Vector is the assembled vector, if one was found
	Vector *VectorOutput `json:"vector,omitempty"`

	// Peptides that were assembled
	Peptides []PeptideOutput `json:"peptides"`

	// Dropped peptides that failed the peptide table filters
	Dropped []filter.Dropped `json:"dropped,omitempty"`

	// Junctions are the feasible pairs that were resolved
	Junctions []JunctionOutput `json:"junctions"`

	// Failure diagnostics, if no vector was found
	Failure *FailureOutput `json:"failure,omitempty"`
}

// newOutput collects a run's results.
func newOutput(
	peptides []Peptide,
	dropped []filter.Dropped,
	alleles []string,
	g *Graph,
	v *Vector,
	failure *AssemblyError,
	elapsed time.Duration,
) *Output {
	// store save time, using same format as log.Println https://golang.org/pkg/log/#Println
	t := time.Now()
	out := &Output{
		RunID: uuid.NewString(),
		Time: fmt.Sprintf(
			"%d/%02d/%02d %02d:%02d:%02d",
			t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(),
		),
		Execution: math.Round(elapsed.Seconds()*1000) / 1000,
		Status:    "success",
		Alleles:   alleles,
		Dropped:   dropped,
	}

	for _, p := range peptides {
		out.Peptides = append(out.Peptides, PeptideOutput{
			ID:          p.ID,
			Seq:         p.Seq,
			Mutation:    p.Mutation,
			Scores:      scores(p.Scores),
			FoldChanges: scores(p.FoldChanges),
		})
	}

	for _, e := range g.Edges() {
		out.Junctions = append(out.Junctions, JunctionOutput{
			From:   g.Peptide(e.From).ID,
			To:     g.Peptide(e.To).ID,
			Spacer: e.Spacer.String(),
		})
	}

	if v != nil {
		vo := &VectorOutput{Seq: v.Seq()}
		for i, p := range v.Peptides {
			entry := Entry{ID: p.ID}
			if i < len(v.Spacers) {
				entry.Spacer = v.Spacers[i].String()
			}
			vo.Entries = append(vo.Entries, entry)
		}
		out.Vector = vo
	}

	if failure != nil {
		out.Status = "exhausted"
		fo := &FailureOutput{
			Reason:     failure.Error(),
			Exhaustive: failure.Exhaustive,
			Steps:      failure.Steps,
			Blocking:   failure.Blocking,
		}
		for _, pair := range failure.Pairs {
			jo := JunctionOutput{From: pair.From, To: pair.To, Attempted: pair.Attempted}
			for _, violation := range pair.Violations {
				jo.Violations = append(jo.Violations, ViolationOutput{
					Window:    violation.Window,
					Allele:    violation.Allele,
					Length:    violation.Length,
					IC50:      Score(violation.IC50),
					Threshold: Score(violation.Threshold),
				})
			}
			fo.Pairs = append(fo.Pairs, jo)
		}
		out.Failure = fo
	}

	return out
}

// writeResults writes the JSON output, the vector's FASTA, the feasibility
// graph and a log of the run's settings.
func writeResults(ctx context.Context, snk *sink.Sink, filename string, out *Output, g *Graph, conf *config.Config) error {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize output: %w", err)
	}
	if err = snk.Write(ctx, filename, data, "application/json"); err != nil {
		return fmt.Errorf("failed to write the output: %w", err)
	}

	if out.Vector != nil {
		if err = snk.Write(ctx, base+".fa", vectorFASTA(out), "text/plain"); err != nil {
			return err
		}
	}

	if err = snk.Write(ctx, base+".dot", graphDOT(g), "text/vnd.graphviz"); err != nil {
		return err
	}

	inputs, err := yaml.Marshal(conf)
	if err != nil {
		return fmt.Errorf("failed to serialize inputs: %w", err)
	}
	return snk.Write(ctx, sink.Sibling(filename, "log", "inputs.yml"), inputs, "application/yaml")
}

// vectorFASTA returns the vector as FASTA. The header lists the peptides
// and spacers in order.
func vectorFASTA(out *Output) []byte {
	var parts []string
	for _, e := range out.Vector.Entries {
		parts = append(parts, e.ID)
		if e.Spacer != "" {
			parts = append(parts, e.Spacer)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, ">pvacvector_%s %s\n", out.RunID, strings.Join(parts, "|"))
	seq := out.Vector.Seq
	for i := 0; i < len(seq); i += 60 {
		end := i + 60
		if end > len(seq) {
			end = len(seq)
		}
		b.WriteString(seq[i:end] + "\n")
	}
	return []byte(b.String())
}

// graphDOT returns the resolved feasibility graph in Graphviz format.
// Edges are labelled with their spacer; infeasible pairs are dashed.
func graphDOT(g *Graph) []byte {
	var b strings.Builder
	b.WriteString("digraph vector {\n")
	for i := 0; i < g.Len(); i++ {
		fmt.Fprintf(&b, "  %q;\n", g.Peptide(i).ID)
	}

	var lines []string
	for _, e := range g.Edges() {
		lines = append(lines, fmt.Sprintf("  %q -> %q [label=%q];\n", g.Peptide(e.From).ID, g.Peptide(e.To).ID, e.Spacer.String()))
	}
	for _, inf := range g.Infeasible() {
		lines = append(lines, fmt.Sprintf("  %q -> %q [style=dashed, color=gray];\n", inf.From, inf.To))
	}
	sort.Strings(lines)
	b.WriteString(strings.Join(lines, ""))
	b.WriteString("}\n")
	return []byte(b.String())
}
