// Package predict is for estimating how strongly a peptide binds an HLA allele.
//
// Every predictor returns an IC50 in nM: lower values are stronger binders.
// Predictors are opaque collaborators; this package only knows how to call
// them (IEDB's REST API, IEDB's standalone tools, MHCflurry) and how to
// combine their answers.
package predict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Predictor returns the IC50 (nM) of seq, a peptide of the given length, for allele.
type Predictor interface {
	Predict(ctx context.Context, seq, allele string, length int) (float64, error)
}

// Supporter is implemented by predictors that only cover some alleles or lengths.
type Supporter interface {
	Supports(allele string, length int) bool
}

// Method is a named prediction algorithm.
type Method interface {
	Predictor
	Supporter

	// Name is the method's name, eg "NetMHCpan"
	Name() string
}

// ErrUnsupported is returned when no predictor covers an allele/length pair.
var ErrUnsupported = errors.New("unsupported allele or epitope length")

// InvocationError is a failed call to an external predictor.
type InvocationError struct {
	// Method that was called
	Method string

	// Allele and Seq that were being predicted
	Allele string
	Seq    string

	// Transient errors (timeouts, 5xx responses, crashed processes) may succeed on retry
	Transient bool

	Err error
}

// Error describes the failed invocation.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s failed on %s for %s: %v", e.Method, e.Seq, e.Allele, e.Err)
}

// Unwrap returns the underlying error.
func (e *InvocationError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is an InvocationError worth retrying.
func IsTransient(err error) bool {
	var ie *InvocationError
	return errors.As(err, &ie) && ie.Transient
}

// Supports reports whether p can predict for the allele and length.
// Predictors that don't implement Supporter are assumed to cover everything.
func Supports(p Predictor, allele string, length int) bool {
	if s, ok := p.(Supporter); ok {
		return s.Supports(allele, length)
	}
	return true
}

// Metric combines the scores of multiple methods into one.
type Metric string

const (
	// Median of every supporting method's score
	Median Metric = "median"

	// Lowest (strongest binding) score across supporting methods
	Lowest Metric = "lowest"
)

// ParseMetric returns the Metric with the name passed.
func ParseMetric(name string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(name))) {
	case Median, "":
		return Median, nil
	case Lowest:
		return Lowest, nil
	}
	return "", fmt.Errorf("unknown top score metric %q: expected median or lowest", name)
}

// Ensemble combines the methods that support an allele and length with a Metric.
type Ensemble struct {
	Methods []Method
	Metric  Metric
}

// NewEnsemble returns an Ensemble of methods combined with metric.
func NewEnsemble(methods []Method, metric Metric) *Ensemble {
	return &Ensemble{Methods: methods, Metric: metric}
}

// Name describes the ensemble, eg "median(NetMHC,SMM)". It's stable for a
// given method list so it can key cached predictions.
func (e *Ensemble) Name() string {
	names := make([]string, len(e.Methods))
	for i, m := range e.Methods {
		names[i] = m.Name()
	}
	return fmt.Sprintf("%s(%s)", e.Metric, strings.Join(names, ","))
}

// Supports is true if any method supports the allele and length.
func (e *Ensemble) Supports(allele string, length int) bool {
	for _, m := range e.Methods {
		if m.Supports(allele, length) {
			return true
		}
	}
	return false
}

// Predict calls every supporting method, in order, and combines their scores.
func (e *Ensemble) Predict(ctx context.Context, seq, allele string, length int) (float64, error) {
	var scores []float64
	for _, m := range e.Methods {
		if !m.Supports(allele, length) {
			continue
		}

		score, err := m.Predict(ctx, seq, allele, length)
		if err != nil {
			return 0, err
		}
		scores = append(scores, score)
	}

	if len(scores) == 0 {
		return 0, fmt.Errorf("%s with length %d: %w", allele, length, ErrUnsupported)
	}

	return combine(scores, e.Metric), nil
}

// combine reduces scores with the metric passed.
func combine(scores []float64, metric Metric) float64 {
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	if metric == Lowest {
		return sorted[0]
	}

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
