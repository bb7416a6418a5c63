// Package pvacvector assembles peptides into a single vector while keeping
// new binders out of the junctions between them.
package pvacvector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tmooney/pVACtools/config"
	"github.com/tmooney/pVACtools/internal/predict"
	"github.com/tmooney/pVACtools/internal/sink"
	"github.com/tmooney/pVACtools/internal/store"
	"github.com/tmooney/pVACtools/internal/task"
)

// VectorCmd is the root of the `pvacvector vector` functionality
//
// the goal is to find an ordering of the input peptides with:
//  1. every peptide exactly once
//  2. no junction epitope predicted to bind any of the alleles
//  3. the most preferred spacer at each junction
func VectorCmd(cmd *cobra.Command, args []string) error {
	flags, conf, err := parseCmdFlags(cmd, args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	_, err = Run(ctx, flags.in, flags.out, conf)
	return err
}

// Run builds the configured predictor and assembles the peptides at in,
// writing results to out. The returned error is an *AssemblyError if the
// run completed without finding a vector; the output is still written.
func Run(ctx context.Context, in, out string, conf *config.Config) (*Output, error) {
	predictor, closePredictor, err := newPredictor(ctx, conf)
	if err != nil {
		return nil, err
	}
	defer closePredictor()

	return run(ctx, in, out, conf, predictor)
}

// newPredictor combines the configured prediction algorithms, cached if asked for.
func newPredictor(ctx context.Context, conf *config.Config) (predict.Predictor, func() error, error) {
	noop := func() error { return nil }

	metric, err := predict.ParseMetric(conf.TopScoreMetric)
	if err != nil {
		return nil, noop, err
	}

	methods, err := predict.New(conf.PredictionAlgorithms, predict.Options{
		IEDBInstallDir: conf.IEDBInstallDirectory,
		IEDBURL:        conf.IEDBURL,
		MaxRequests:    int64(conf.MaxRequests),
		MHCflurry:      conf.MHCflurry,
		KeepTmpFiles:   conf.KeepTmpFiles,
	})
	if err != nil {
		return nil, noop, err
	}
	ensemble := predict.NewEnsemble(methods, metric)

	if conf.Cache == "" {
		return ensemble, noop, nil
	}

	cache, err := store.Open(ctx, conf.Cache, ensemble.Name(), ensemble)
	if err != nil {
		return nil, noop, err
	}
	return cache, cache.Close, nil
}

// run assembles the peptides at in with predictor p and writes the results.
func run(ctx context.Context, in, out string, conf *config.Config, p predict.Predictor) (*Output, error) {
	start := time.Now()

	peptides, dropped, err := readPeptides(in, conf)
	if err != nil {
		return nil, err
	}
	if err = validatePeptides(peptides); err != nil {
		return nil, err
	}
	if len(conf.Alleles) == 0 {
		return nil, fmt.Errorf("no alleles to check junctions against")
	}
	if len(conf.EpitopeLengths) == 0 {
		return nil, fmt.Errorf("no epitope lengths to check junctions at")
	}

	catalog, err := NewCatalog(conf.Spacers)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics := task.NewMetrics(reg)

	scorer := NewScorer(p, ScorerConfig{
		Lengths:    conf.EpitopeLengths,
		Thresholds: conf.Thresholds(),
		Retries:    conf.IEDBRetries,
		Backoff:    conf.IEDBRetryBackoff,
		Metrics:    metrics,
	})
	graph := NewGraph(peptides, catalog, conf.Alleles, scorer, GraphConfig{
		Threads:     conf.Threads,
		Speculative: conf.Speculative,
	})

	if conf.Verbose {
		fmt.Printf(
			"assembling %d peptides with spacers %s against %d alleles\n",
			len(peptides), catalog, len(conf.Alleles),
		)
	}

	vector, assembleErr := Assemble(ctx, graph, Budget{MaxSteps: conf.MaxSteps, Timeout: conf.Timeout})
	var failure *AssemblyError
	if assembleErr != nil && !errors.As(assembleErr, &failure) {
		return nil, assembleErr
	}

	if conf.Verbose {
		feasible := len(graph.Edges())
		fmt.Printf(
			"resolved %s junctions (%s feasible), %s predictions\n",
			humanize.Comma(int64(feasible+len(graph.Infeasible()))),
			humanize.Comma(int64(feasible)),
			humanize.Comma(int64(scorer.predictions.Len())),
		)
		if failure != nil {
			fmt.Printf("no vector after %s steps\n", humanize.Comma(int64(failure.Steps)))
		}
	}

	output := newOutput(peptides, dropped, conf.Alleles, graph, vector, failure, time.Since(start))
	if err := writeResults(ctx, sink.New(conf.Sink), out, output, graph, conf); err != nil {
		return output, err
	}
	if conf.Metrics != "" {
		if err := prometheus.WriteToTextfile(conf.Metrics, reg); err != nil {
			return output, fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	if conf.Verbose && vector != nil {
		fmt.Printf("%s\n", vector.Seq())
	}

	return output, assembleErr
}
