package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tmooney/pVACtools/internal/pvacvector"
)

// listCmd is for listing the predictors, spacers and cutoffs a run can use.
var listCmd = &cobra.Command{
	Use:                        "ls",
	Short:                      "List prediction methods, spacers or allele cutoffs",
	SuggestionsMinimumDistance: 2,
	Long:                       `List the prediction methods, spacers or allele-specific cutoffs available to 'pvacvector vector'.`,
	Aliases:                    []string{"list", "find"},
}

// methodsListCmd is for listing the binding predictors.
var methodsListCmd = &cobra.Command{
	Use:                        "methods",
	Short:                      "List the binding prediction methods",
	RunE:                       pvacvector.MethodsCmd,
	SuggestionsMinimumDistance: 2,
	Long: `List each prediction method with its MHC class and supported epitope lengths.
IEDB methods run through the IEDB API unless --iedb-install-directory is set.`,
	Aliases: []string{"method", "algorithms"},
}

// spacersListCmd is for listing the spacers in preference order.
var spacersListCmd = &cobra.Command{
	Use:                        "spacers",
	Short:                      "List the spacers, most preferred first",
	RunE:                       pvacvector.SpacersCmd,
	SuggestionsMinimumDistance: 2,
	Long:                       `List the spacers tried at each junction, from settings, in the order they're tried.`,
	Aliases:                    []string{"spacer"},
}

// cutoffsListCmd is for listing allele-specific binding cutoffs.
var cutoffsListCmd = &cobra.Command{
	Use:                        "cutoffs [allele]",
	Short:                      "List allele-specific binding cutoffs",
	RunE:                       pvacvector.CutoffsCmd,
	SuggestionsMinimumDistance: 2,
	Example:                    "  pvacvector ls cutoffs A*02",
	Long: `List the allele-specific IC50 cutoffs used with --allele-specific-binding-thresholds.

'pvacvector ls cutoffs' without any arguments logs every cutoff.`,
	Aliases: []string{"cutoff", "thresholds"},
}

// set flags
func init() {
	listCmd.AddCommand(methodsListCmd)
	listCmd.AddCommand(spacersListCmd)
	listCmd.AddCommand(cutoffsListCmd)

	RootCmd.AddCommand(listCmd)
}
