// Package filter is for the thresholds peptides must meet before they're
// considered for a vector: binding strength, fold change, expression,
// normal VAF and transcript support level.
package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FoldChange returns reference / altered. A zero altered value, including
// 0/0, is +Inf rather than an error or NaN.
func FoldChange(reference, altered float64) float64 {
	if altered == 0 {
		return math.Inf(1)
	}
	return reference / altered
}

// Round returns f rounded to three decimals, for serialization only.
// Infinities are returned unchanged.
func Round(f float64) float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return f
	}
	r, err := strconv.ParseFloat(fmt.Sprintf("%.3f", f), 64)
	if err != nil {
		return f
	}
	return r
}

// Thresholds are the IC50 cutoffs below which a peptide binds an allele.
type Thresholds struct {
	// Default cutoff for every allele without a specific one
	Default float64

	// Alleles are allele-specific cutoffs. Nil unless allele-specific
	// cutoffs were asked for.
	Alleles map[string]float64
}

// For returns the cutoff for allele. Allele names are matched case-insensitively.
func (t Thresholds) For(allele string) float64 {
	if cutoff, ok := t.Alleles[allele]; ok {
		return cutoff
	}
	if cutoff, ok := t.Alleles[strings.ToLower(allele)]; ok {
		return cutoff
	}
	return t.Default
}

// Binds reports whether an IC50 is a binder at threshold. Scores equal to
// the threshold don't bind.
func Binds(ic50, threshold float64) bool {
	return ic50 < threshold
}
