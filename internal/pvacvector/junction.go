package pvacvector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tmooney/pVACtools/internal/filter"
	"github.com/tmooney/pVACtools/internal/predict"
	"github.com/tmooney/pVACtools/internal/task"
)

// JunctionKey identifies one junction scoring task.
type JunctionKey struct {
	From   string
	To     string
	Spacer string

	// Alleles is the sorted, comma joined allele set
	Alleles string
}

// Violation is a junction window predicted to bind an allele.
type Violation struct {
	Window    string
	Allele    string
	Length    int
	IC50      float64
	Threshold float64
}

// JunctionResult is the verdict on joining two peptides with a spacer.
type JunctionResult struct {
	Key    JunctionKey
	Spacer Spacer

	// Verdicts are whether each allele is free of junction binders
	Verdicts map[string]bool

	// Violations are the first binding window found for each failing allele
	Violations []Violation

	// Windows is how many windows were scored
	Windows int
}

// Pass is true if no allele has a junction binder.
func (r *JunctionResult) Pass() bool {
	return len(r.Violations) == 0
}

// window is the key of one prediction.
type window struct {
	seq    string
	allele string
	length int
}

// ScorerConfig are the settings for scoring junctions.
type ScorerConfig struct {
	// Lengths are the epitope lengths to check
	Lengths []int

	// Thresholds below which a window binds
	Thresholds filter.Thresholds

	// Retries of transient predictor failures, with linear Backoff
	Retries int
	Backoff time.Duration

	// Metrics for the junction and prediction executors, optional
	Metrics *task.Metrics
}

// Scorer checks junctions for new binders. Junctions and individual
// predictions each run at most once per key.
type Scorer struct {
	predictor  predict.Predictor
	lengths    []int
	thresholds filter.Thresholds

	junctions   *task.Executor[JunctionKey, *JunctionResult]
	predictions *task.Executor[window, float64]
}

// NewScorer returns a Scorer that asks p about junction windows.
func NewScorer(p predict.Predictor, conf ScorerConfig) *Scorer {
	lengths := append([]int(nil), conf.Lengths...)
	sort.Ints(lengths)

	return &Scorer{
		predictor:  p,
		lengths:    lengths,
		thresholds: conf.Thresholds,
		junctions: task.New[JunctionKey, *JunctionResult](
			task.WithName("junction"),
			task.WithMetrics(conf.Metrics),
		),
		predictions: task.New[window, float64](
			task.WithName("prediction"),
			task.WithMetrics(conf.Metrics),
			task.WithRetries(conf.Retries, conf.Backoff),
			task.WithRetryIf(predict.IsTransient),
		),
	}
}

// Score returns whether any window spanning the junction of a, spacer and b
// binds one of the alleles.
func (s *Scorer) Score(ctx context.Context, a, b Peptide, spacer Spacer, alleles []string) (*JunctionResult, error) {
	sorted := append([]string(nil), alleles...)
	sort.Strings(sorted)

	key := JunctionKey{
		From:    a.ID,
		To:      b.ID,
		Spacer:  spacer.Seq,
		Alleles: strings.Join(sorted, ","),
	}

	return s.junctions.Submit(ctx, key, func(ctx context.Context) (*JunctionResult, error) {
		return s.score(ctx, key, a, b, spacer, sorted)
	})
}

// score checks each allele's windows, stopping at its first binder.
func (s *Scorer) score(ctx context.Context, key JunctionKey, a, b Peptide, spacer Spacer, alleles []string) (*JunctionResult, error) {
	result := &JunctionResult{
		Key:      key,
		Spacer:   spacer,
		Verdicts: make(map[string]bool, len(alleles)),
	}

	for _, allele := range alleles {
		threshold := s.thresholds.For(allele)
		result.Verdicts[allele] = true

		supported := false
	lengths:
		for _, length := range s.lengths {
			if !predict.Supports(s.predictor, allele, length) {
				continue
			}
			supported = true

			for _, w := range seamWindows(a.Seq, spacer.Seq, b.Seq, length) {
				ic50, err := s.predict(ctx, w, allele, length)
				if err != nil {
					return nil, err
				}
				result.Windows++

				if filter.Binds(ic50, threshold) {
					result.Verdicts[allele] = false
					result.Violations = append(result.Violations, Violation{
						Window:    w,
						Allele:    allele,
						Length:    length,
						IC50:      ic50,
						Threshold: threshold,
					})
					break lengths
				}
			}
		}

		if !supported {
			return nil, fmt.Errorf("%s at lengths %v: %w", allele, s.lengths, predict.ErrUnsupported)
		}
	}

	return result, nil
}

// predict returns the IC50 of one window, shared across every junction containing it.
func (s *Scorer) predict(ctx context.Context, seq, allele string, length int) (float64, error) {
	return s.predictions.Submit(ctx, window{seq, allele, length}, func(ctx context.Context) (float64, error) {
		return s.predictor.Predict(ctx, seq, allele, length)
	})
}

// seamWindows returns every window of length that spans the junction of
// left, spacer and right. The seam is the last length-1 residues of left,
// the spacer, and the first length-1 residues of right, so every window in
// it includes the junction and every junction-spanning window is in it.
func seamWindows(left, spacer, right string, length int) []string {
	if length < 1 {
		return nil
	}

	if len(left) > length-1 {
		left = left[len(left)-(length-1):]
	}
	if len(right) > length-1 {
		right = right[:length-1]
	}
	seam := left + spacer + right

	var windows []string
	for i := 0; i+length <= len(seam); i++ {
		windows = append(windows, seam[i:i+length])
	}
	return windows
}
