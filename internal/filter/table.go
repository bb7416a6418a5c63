package filter

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Row is one peptide/allele prediction from an upstream peptide table.
type Row struct {
	ID       string
	Seq      string
	Mutation string
	Allele   string

	// MTScore is the mutant peptide's IC50
	MTScore float64

	// WTScore is the wild type peptide's IC50, nil if NA or absent
	WTScore *float64

	// Expression is the gene expression value, nil if NA or absent
	Expression *float64

	// NormalVAF is the variant allele frequency in the normal sample, nil if NA or absent
	NormalVAF *float64

	// TSL is the transcript support level, nil if NA or absent
	TSL *int

	// TSLNA is set when the TSL column was present but NA
	TSLNA bool
}

// Columns of the peptide table.
const (
	ColID         = "ID"
	ColSequence   = "Sequence"
	ColMutation   = "Mutation"
	ColAllele     = "HLA Allele"
	ColMTScore    = "MT Score"
	ColWTScore    = "WT Score"
	ColExpression = "Gene Expression"
	ColNormalVAF  = "Normal VAF"
	ColTSL        = "Transcript Support Level"
)

// ReadTable parses a tab separated peptide table with a header row.
// ID, Sequence, HLA Allele and MT Score are required; other columns are optional.
func ReadTable(r io.Reader) ([]Row, error) {
	tsv := csv.NewReader(r)
	tsv.Comma = '\t'
	tsv.Comment = '#'
	tsv.FieldsPerRecord = -1
	tsv.LazyQuotes = true

	header, err := tsv.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read peptide table header: %w", err)
	}

	cols := make(map[string]int)
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{ColID, ColSequence, ColAllele, ColMTScore} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("peptide table is missing the %q column", required)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := tsv.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read peptide table line %d: %w", line, err)
		}

		get := func(col string) (string, bool) {
			i, ok := cols[col]
			if !ok || i >= len(record) {
				return "", false
			}
			return strings.TrimSpace(record[i]), true
		}

		row := Row{}
		row.ID, _ = get(ColID)
		row.Seq, _ = get(ColSequence)
		row.Mutation, _ = get(ColMutation)
		row.Allele, _ = get(ColAllele)
		row.Seq = strings.ToUpper(row.Seq)
		if row.ID == "" || row.Seq == "" || row.Allele == "" {
			return nil, fmt.Errorf("peptide table line %d: ID, Sequence and HLA Allele are required", line)
		}

		mt, _ := get(ColMTScore)
		if row.MTScore, err = parseScore(mt); err != nil {
			return nil, fmt.Errorf("peptide table line %d: MT Score: %w", line, err)
		}

		for col, dst := range map[string]**float64{
			ColWTScore:    &row.WTScore,
			ColExpression: &row.Expression,
			ColNormalVAF:  &row.NormalVAF,
		} {
			if *dst, err = optionalFloat(get(col)); err != nil {
				return nil, fmt.Errorf("peptide table line %d: %s: %w", line, col, err)
			}
		}

		if tsl, ok := get(ColTSL); ok {
			if isNA(tsl) {
				row.TSLNA = true
			} else {
				level, err := strconv.Atoi(tsl)
				if err != nil {
					return nil, fmt.Errorf("peptide table line %d: %s: %w", line, ColTSL, err)
				}
				row.TSL = &level
			}
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// parseScore parses a required, non-negative value.
func parseScore(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || math.IsNaN(f) {
		return 0, fmt.Errorf("%v is not a valid score", s)
	}
	return f, nil
}

// optionalFloat parses a value that may be absent or NA.
func optionalFloat(s string, present bool) (*float64, error) {
	if !present || isNA(s) {
		return nil, nil
	}
	f, err := parseScore(s)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func isNA(s string) bool {
	return s == "" || strings.EqualFold(s, "NA") || strings.EqualFold(s, "N/A")
}
