package pvacvector

import (
	"fmt"
	"strings"
)

// noSpacer is how the empty spacer is written in spacer lists.
const noSpacer = "None"

// Spacer is a short linker placed between two peptides. The empty
// spacer joins them directly.
type Spacer struct {
	Seq string

	// Rank is the spacer's position in its catalog; lower is preferred
	Rank int
}

// String returns the spacer's sequence, or "None" for the empty spacer.
func (s Spacer) String() string {
	if s.Seq == "" {
		return noSpacer
	}
	return s.Seq
}

// Catalog is an ordered list of spacers, most preferred first.
type Catalog []Spacer

// NewCatalog ranks spacers in the order passed. "None" (in any case) is
// the empty spacer. Duplicates and non-amino acid spacers are errors.
func NewCatalog(seqs []string) (Catalog, error) {
	var catalog Catalog
	seen := make(map[string]bool)

	for _, raw := range seqs {
		seq := strings.ToUpper(strings.TrimSpace(raw))
		if seq == "" {
			continue
		}
		if strings.EqualFold(seq, noSpacer) {
			seq = ""
		}

		if seen[seq] {
			return nil, fmt.Errorf("spacer %s is listed twice", Spacer{Seq: seq})
		}
		seen[seq] = true

		if seq != "" && !aminoAcids.MatchString(seq) {
			return nil, fmt.Errorf("spacer %q isn't an amino acid sequence", raw)
		}

		catalog = append(catalog, Spacer{Seq: seq, Rank: len(catalog)})
	}

	if len(catalog) == 0 {
		return nil, fmt.Errorf("no spacers: use %q to join peptides without one", noSpacer)
	}

	return catalog, nil
}

// ParseCatalog parses a comma separated spacer list, eg "None,AAY,HHHH".
func ParseCatalog(list string) (Catalog, error) {
	return NewCatalog(strings.Split(list, ","))
}

// String returns the catalog as a comma separated list.
func (c Catalog) String() string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.String()
	}
	return strings.Join(names, ",")
}

// selectEdge returns the passing result with the lowest spacer rank, or
// nil if none pass. The order of results doesn't matter.
func selectEdge(results []*JunctionResult) *JunctionResult {
	var best *JunctionResult
	for _, r := range results {
		if r == nil || !r.Pass() {
			continue
		}
		if best == nil || r.Spacer.Rank < best.Spacer.Rank {
			best = r
		}
	}
	return best
}
