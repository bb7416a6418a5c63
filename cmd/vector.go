package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tmooney/pVACtools/internal/pvacvector"
)

// vectorCmd is for assembling peptides into a single vector with
// binder-free junctions
var vectorCmd = &cobra.Command{
	Use:                        "vector [peptides.fa]",
	Short:                      "Assemble peptides into a vector without junction binders",
	RunE:                       pvacvector.VectorCmd,
	SuggestionsMinimumDistance: 4,
	Aliases:                    []string{"run", "assemble"},
	Example:                    "  pvacvector vector --in peptides.fa --alleles HLA-A*02:01,HLA-B*07:02 -e 8,9,10",
	Long: `
Order peptides into a single vector, placing a spacer between each pair, so that
no epitope spanning a junction is predicted to bind the patient's alleles.

Each junction gets the most preferred spacer (earliest in --spacers) that keeps
it binder-free. If no ordering works, the command exits with status 2 and the
output lists the peptides and pairs that blocked the search.

Peptides are read from a FASTA file or, with a .tsv input, from a peptide table
that is filtered by binding, fold change, expression, normal VAF and transcript
support level first.`,
}

// set flags
func init() {
	RootCmd.AddCommand(vectorCmd)

	f := vectorCmd.Flags()

	// Flags for specifying the paths to the input file and output file
	f.StringP("in", "i", "", "input FASTA or peptide table (.tsv)")
	f.StringP("out", "o", "", "output file name (local path or s3://bucket/key)")
	f.String("peptide-table", "", "peptide table (.tsv) to filter and assemble")

	// junction checks
	f.StringSliceP("alleles", "a", nil, "comma separated HLA alleles to check junctions against")
	f.IntSliceP("epitope-lengths", "e", []int{8, 9, 10, 11}, "lengths of the junction epitopes")
	f.StringSliceP("prediction-algorithms", "p", []string{"NetMHCpan"}, "binding predictors, see 'pvacvector ls methods'")
	f.StringSlice("spacers", nil, "spacers to try, most preferred first ('None' for no spacer)")
	f.Float64P("binding-threshold", "b", 500, "IC50 (nM) below which an epitope binds")
	f.Bool("allele-specific-binding-thresholds", false, "use the allele-specific cutoffs where available")
	f.StringP("top-score-metric", "m", "median", "combine predictors by their 'median' or 'lowest' IC50")

	// prediction backends
	f.IntP("threads", "t", 1, "junctions to score at once")
	f.String("iedb-install-directory", "", "local IEDB tools, instead of the IEDB API")
	f.String("iedb-url", "", "IEDB API root URL")
	f.IntP("iedb-retries", "r", 5, "retries of transient prediction failures")
	f.Int("max-requests", 4, "concurrent prediction requests")
	f.Bool("keep-tmp-files", false, "keep the predictors' intermediate files")
	f.String("cache", "", "prediction cache: a SQLite file or postgres:// URL")
	f.String("metrics", "", "file to write Prometheus metrics to")

	// search
	f.Int("max-steps", 1000000, "most extensions of a partial vector to try (0 for no limit)")
	f.Duration("timeout", 0, "time limit on the search (0 for none)")
	f.Bool("speculative", false, "score every spacer of a pair at once")

	// peptide table filters
	f.Float64("expn-val", 1, "gene expression a peptide must exceed")
	f.Float64("normal-vaf", 0.02, "normal VAF a peptide must be below")
	f.Int("maximum-transcript-support-level", 1, "highest transcript support level kept")
	f.Float64("minimum-fold-change", 0, "minimum WT / MT fold change (0 to disable)")

	for _, name := range []string{
		"alleles",
		"epitope-lengths",
		"prediction-algorithms",
		"spacers",
		"binding-threshold",
		"allele-specific-binding-thresholds",
		"top-score-metric",
		"threads",
		"iedb-install-directory",
		"iedb-url",
		"iedb-retries",
		"max-requests",
		"keep-tmp-files",
		"cache",
		"metrics",
		"max-steps",
		"timeout",
		"speculative",
		"expn-val",
		"normal-vaf",
		"maximum-transcript-support-level",
		"minimum-fold-change",
	} {
		viper.BindPFlag(name, f.Lookup(name))
	}
}
