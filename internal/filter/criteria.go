package filter

import (
	"fmt"
	"sort"
)

// Criteria are the filters a table row must pass. Every comparison is on
// the raw, unrounded values.
type Criteria struct {
	// Thresholds for the MT score
	Thresholds Thresholds

	// MinimumFoldChange of WT / MT score. Zero disables the filter.
	MinimumFoldChange float64

	// ExpnVal is the gene expression a row must exceed, when it has one
	ExpnVal float64

	// NormalVAF is the normal VAF a row must be below, when it has one
	NormalVAF float64

	// MaxTSL is the highest transcript support level kept, when the row has the column
	MaxTSL int
}

// Check returns whether the row passes and, if it doesn't, why.
func (c Criteria) Check(r Row) (bool, string) {
	if threshold := c.Thresholds.For(r.Allele); !Binds(r.MTScore, threshold) {
		return false, fmt.Sprintf("MT score %v is not below %v for %s", r.MTScore, threshold, r.Allele)
	}

	if c.MinimumFoldChange > 0 {
		if r.WTScore == nil {
			return false, "no WT score for the fold change filter"
		}
		if fold := FoldChange(*r.WTScore, r.MTScore); fold < c.MinimumFoldChange {
			return false, fmt.Sprintf("fold change %v is below %v", fold, c.MinimumFoldChange)
		}
	}

	if r.Expression != nil && !(*r.Expression > c.ExpnVal) {
		return false, fmt.Sprintf("gene expression %v is not above %v", *r.Expression, c.ExpnVal)
	}

	if r.NormalVAF != nil && !(*r.NormalVAF < c.NormalVAF) {
		return false, fmt.Sprintf("normal VAF %v is not below %v", *r.NormalVAF, c.NormalVAF)
	}

	if r.TSLNA {
		return false, "transcript support level is NA"
	}
	if r.TSL != nil && *r.TSL > c.MaxTSL {
		return false, fmt.Sprintf("transcript support level %d is above %d", *r.TSL, c.MaxTSL)
	}

	return true, ""
}

// Dropped is a peptide that no row of passed the criteria.
type Dropped struct {
	ID      string   `json:"id"`
	Reasons []string `json:"reasons"`
}

// Selected is a peptide with at least one passing row.
type Selected struct {
	ID       string
	Seq      string
	Mutation string

	// Scores are the MT scores of the passing rows, by allele. The
	// lowest wins if an allele is repeated.
	Scores map[string]float64

	// FoldChanges are WT / MT for the rows in Scores that have a WT score
	FoldChanges map[string]float64
}

// Apply groups rows by peptide ID and keeps peptides with a passing row.
// Both results are in the order peptides first appear in rows.
func (c Criteria) Apply(rows []Row) (kept []Selected, dropped []Dropped, err error) {
	var order []string
	byID := make(map[string][]Row)
	for _, r := range rows {
		if prev, ok := byID[r.ID]; ok && prev[0].Seq != r.Seq {
			return nil, nil, fmt.Errorf("peptide %s has two sequences: %s and %s", r.ID, prev[0].Seq, r.Seq)
		}
		if _, ok := byID[r.ID]; !ok {
			order = append(order, r.ID)
		}
		byID[r.ID] = append(byID[r.ID], r)
	}

	for _, id := range order {
		group := byID[id]
		s := Selected{
			ID:          id,
			Seq:         group[0].Seq,
			Mutation:    group[0].Mutation,
			Scores:      map[string]float64{},
			FoldChanges: map[string]float64{},
		}

		reasons := map[string]bool{}
		for _, r := range group {
			ok, reason := c.Check(r)
			if !ok {
				reasons[reason] = true
				continue
			}
			if prev, seen := s.Scores[r.Allele]; !seen || r.MTScore < prev {
				s.Scores[r.Allele] = r.MTScore
				delete(s.FoldChanges, r.Allele)
				if r.WTScore != nil {
					s.FoldChanges[r.Allele] = FoldChange(*r.WTScore, r.MTScore)
				}
			}
		}

		if len(s.Scores) > 0 {
			kept = append(kept, s)
			continue
		}

		d := Dropped{ID: id}
		for reason := range reasons {
			d.Reasons = append(d.Reasons, reason)
		}
		sort.Strings(d.Reasons)
		dropped = append(dropped, d)
	}

	return kept, dropped, nil
}
