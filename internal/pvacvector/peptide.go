package pvacvector

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/tmooney/pVACtools/internal/filter"
)

// aminoAcids matches a sequence of the 20 standard amino acids.
var aminoAcids = regexp.MustCompile(`^[ACDEFGHIKLMNPQRSTVWY]+$`)

// Peptide is a candidate antigen to place in the vector.
type Peptide struct {
	// ID is unique within a run, eg "MT.1.KRAS"
	ID string

	// Seq is the peptide's amino acid sequence
	Seq string

	// Mutation is the source mutation, if known
	Mutation string

	// Scores are the peptide's best IC50s by allele, from upstream filtering
	Scores map[string]float64

	// FoldChanges are WT / MT by allele, from upstream filtering
	FoldChanges map[string]float64
}

// readFASTA parses a multi-FASTA of peptides. The first word of a header
// is the peptide's ID, anything after it is kept as the mutation.
func readFASTA(path string) ([]Peptide, error) {
	dat, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var peptides []Peptide
	var seq strings.Builder
	flush := func() {
		if len(peptides) > 0 {
			peptides[len(peptides)-1].Seq = strings.ToUpper(seq.String())
		}
		seq.Reset()
	}

	for _, line := range strings.Split(string(dat), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "" || strings.HasPrefix(line, ";"):
			continue
		case strings.HasPrefix(line, ">"):
			flush()
			id, mutation := splitHeader(line[1:])
			peptides = append(peptides, Peptide{ID: id, Mutation: mutation})
		default:
			if len(peptides) == 0 {
				return nil, fmt.Errorf("failed to parse %s: sequence before the first header", path)
			}
			seq.WriteString(strings.Join(strings.Fields(line), ""))
		}
	}
	flush()

	return peptides, nil
}

// splitHeader splits a FASTA header on its first run of whitespace.
func splitHeader(header string) (id, rest string) {
	header = strings.TrimSpace(header)
	i := strings.IndexFunc(header, unicode.IsSpace)
	if i < 0 {
		return header, ""
	}
	return header[:i], strings.TrimSpace(header[i:])
}

// fromSelected makes peptides from rows of a filtered peptide table.
func fromSelected(selected []filter.Selected) []Peptide {
	peptides := make([]Peptide, len(selected))
	for i, s := range selected {
		peptides[i] = Peptide{
			ID:          s.ID,
			Seq:         s.Seq,
			Mutation:    s.Mutation,
			Scores:      s.Scores,
			FoldChanges: s.FoldChanges,
		}
	}
	return peptides
}

// validatePeptides checks IDs are unique and non-empty and sequences are amino acids.
func validatePeptides(peptides []Peptide) error {
	if len(peptides) == 0 {
		return fmt.Errorf("no peptides to assemble")
	}

	seen := make(map[string]bool)
	for _, p := range peptides {
		if p.ID == "" {
			return fmt.Errorf("peptide without an ID: %s", p.Seq)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate peptide ID %s", p.ID)
		}
		seen[p.ID] = true

		if !aminoAcids.MatchString(p.Seq) {
			return fmt.Errorf("peptide %s has an invalid sequence: %q", p.ID, p.Seq)
		}
	}

	return nil
}
