package predict

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// mhcflurry predicts with the mhcflurry-predict executable.
type mhcflurry struct {
	spec

	bin string
}

// Predict runs mhcflurry-predict for a single peptide and parses its CSV output.
func (m *mhcflurry) Predict(ctx context.Context, seq, allele string, length int) (float64, error) {
	fail := func(transient bool, err error) (float64, error) {
		return 0, &InvocationError{Method: m.name, Allele: allele, Seq: seq, Transient: transient, Err: err}
	}

	cmd := exec.CommandContext(ctx, m.bin, "--alleles", allele, "--peptides", seq)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return fail(true, fmt.Errorf("%v: %s", err, firstLine(stderr.Bytes())))
	}

	ic50, err := parseMHCflurry(out, seq)
	if err != nil {
		return fail(false, err)
	}
	return ic50, nil
}

// parseMHCflurry returns the affinity for seq from mhcflurry-predict's CSV.
// Newer releases name the column mhcflurry_affinity, older ones mhcflurry_prediction.
func parseMHCflurry(out []byte, seq string) (float64, error) {
	r := csv.NewReader(bytes.NewReader(out))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("failed to read mhcflurry output: %w", err)
	}
	if len(records) < 2 {
		return 0, fmt.Errorf("no mhcflurry predictions for %s", seq)
	}

	affinityCol, peptideCol := -1, -1
	for i, h := range records[0] {
		switch strings.TrimSpace(h) {
		case "mhcflurry_affinity", "mhcflurry_prediction":
			affinityCol = i
		case "peptide":
			peptideCol = i
		}
	}
	if affinityCol < 0 {
		return 0, fmt.Errorf("no affinity column in mhcflurry header: %v", records[0])
	}

	for _, row := range records[1:] {
		if affinityCol >= len(row) {
			continue
		}
		if peptideCol >= 0 && peptideCol < len(row) && !strings.EqualFold(row[peptideCol], seq) {
			continue
		}
		return strconv.ParseFloat(strings.TrimSpace(row[affinityCol]), 64)
	}

	return 0, fmt.Errorf("no mhcflurry prediction for %s", seq)
}
