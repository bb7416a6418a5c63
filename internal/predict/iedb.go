package predict

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/semaphore"
)

// iedbAlleles rewrites class II allele names the way IEDB expects them.
var iedbAlleles = strings.NewReplacer("-DPB", "/DPB", "-DQB", "/DQB")

// apiURL returns the endpoint for a class of methods.
func apiURL(root string, class Class) string {
	root = strings.TrimSuffix(root, "/")
	if class == ClassII {
		return root + "/mhcii/"
	}
	return root + "/mhci/"
}

// localScript returns the path to the standalone IEDB predictor for a class of methods.
func localScript(installDir string, class Class) string {
	if class == ClassII {
		return filepath.Join(installDir, "mhc_ii", "mhc_II_binding.py")
	}
	return filepath.Join(installDir, "mhc_i", "src", "predict_binding.py")
}

// iedbAPI predicts through IEDB's REST API.
type iedbAPI struct {
	spec

	url    string
	client *http.Client
	sem    *semaphore.Weighted
}

// Predict POSTs seq to IEDB and parses the tab separated response.
func (m *iedbAPI) Predict(ctx context.Context, seq, allele string, length int) (float64, error) {
	fail := func(transient bool, err error) (float64, error) {
		return 0, &InvocationError{Method: m.name, Allele: allele, Seq: seq, Transient: transient, Err: err}
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer m.sem.Release(1)

	form := url.Values{}
	form.Set("sequence_text", seq)
	form.Set("method", m.iedb)
	form.Set("allele", iedbAlleles.Replace(allele))
	form.Set("user_tool", "pVac-seq")
	if m.class == ClassI {
		form.Set("length", strconv.Itoa(length))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fail(false, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return fail(ctx.Err() == nil, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(true, err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("IEDB responded %s: %s", resp.Status, firstLine(body))
		return fail(resp.StatusCode >= 500, err)
	}

	ic50, err := parseIEDB(body, seq)
	if err != nil {
		return fail(false, err)
	}
	return ic50, nil
}

// iedbLocal predicts with a standalone IEDB install.
type iedbLocal struct {
	spec

	python string
	script string
	tmpDir string
	keep   bool
}

// Predict writes seq to a temporary FASTA and runs the IEDB script against it.
func (m *iedbLocal) Predict(ctx context.Context, seq, allele string, length int) (float64, error) {
	fail := func(transient bool, err error) (float64, error) {
		return 0, &InvocationError{Method: m.name, Allele: allele, Seq: seq, Transient: transient, Err: err}
	}

	in, err := os.CreateTemp(m.tmpDir, "pvacvector-*.fa")
	if err != nil {
		return fail(false, err)
	}
	if !m.keep {
		defer os.Remove(in.Name())
	}
	if _, err = fmt.Fprintf(in, ">1\n%s\n", seq); err != nil {
		in.Close()
		return fail(false, err)
	}
	if err = in.Close(); err != nil {
		return fail(false, err)
	}

	args := []string{m.script, m.iedb, allele}
	if m.class == ClassI {
		args = append(args, strconv.Itoa(length))
	}
	args = append(args, in.Name())

	cmd := exec.CommandContext(ctx, m.python, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return fail(true, fmt.Errorf("%v: %s", err, firstLine(stderr.Bytes())))
	}

	ic50, err := parseIEDB(out, seq)
	if err != nil {
		return fail(false, err)
	}
	return ic50, nil
}

// parseIEDB returns the lowest ic50 for seq from IEDB's tab separated output.
// Anything before the header row, which starts with "allele", is ignored.
func parseIEDB(out []byte, seq string) (float64, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	ic50Col, peptideCol := -1, -1
	best, rows := math.Inf(1), 0
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")

		if ic50Col < 0 {
			if !strings.HasPrefix(line, "allele") {
				continue
			}
			for i, f := range fields {
				switch strings.TrimSpace(f) {
				case "ic50", "ann_ic50":
					if ic50Col < 0 {
						ic50Col = i
					}
				case "peptide":
					peptideCol = i
				}
			}
			if ic50Col < 0 {
				return 0, fmt.Errorf("no ic50 column in IEDB header: %q", line)
			}
			continue
		}

		if ic50Col >= len(fields) {
			continue
		}
		if peptideCol >= 0 && peptideCol < len(fields) && !strings.EqualFold(fields[peptideCol], seq) {
			continue
		}

		ic50, err := strconv.ParseFloat(strings.TrimSpace(fields[ic50Col]), 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse ic50 %q: %w", fields[ic50Col], err)
		}
		if ic50 < 0 {
			return 0, fmt.Errorf("negative ic50 %v for %s", ic50, seq)
		}

		rows++
		if ic50 < best {
			best = ic50
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}

	if ic50Col < 0 {
		return 0, fmt.Errorf("no IEDB header row in output: %q", firstLine(out))
	}
	if rows == 0 {
		return 0, fmt.Errorf("no IEDB predictions for %s", seq)
	}
	return best, nil
}

// firstLine returns the first line of out, for error messages.
func firstLine(out []byte) string {
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if len(line) > 200 {
		line = line[:200]
	}
	return line
}
