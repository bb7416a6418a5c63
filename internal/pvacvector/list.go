package pvacvector

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tmooney/pVACtools/config"
	"github.com/tmooney/pVACtools/internal/predict"
)

// MethodsCmd logs the binding predictors with their MHC class and lengths.
func MethodsCmd(cmd *cobra.Command, args []string) error {
	return writeLines(cmd, "METHOD\tCLASS\tLENGTHS\tBACKEND", predict.Describe())
}

// SpacersCmd logs the configured spacers, most preferred first.
func SpacersCmd(cmd *cobra.Command, args []string) error {
	conf, err := config.New()
	if err != nil {
		return err
	}

	catalog, err := NewCatalog(conf.Spacers)
	if err != nil {
		return err
	}

	var lines []string
	for _, s := range catalog {
		lines = append(lines, fmt.Sprintf("%d\t%s", s.Rank+1, s))
	}
	return writeLines(cmd, "RANK\tSPACER", lines)
}

// CutoffsCmd logs the allele-specific binding cutoffs. With arguments,
// only the alleles containing one of them are logged.
func CutoffsCmd(cmd *cobra.Command, args []string) error {
	conf, err := config.New()
	if err != nil {
		return err
	}

	var lines []string
	for _, line := range conf.Cutoffs() {
		if len(args) == 0 || containsAny(line, args) {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return fmt.Errorf("no allele-specific cutoffs match %s", strings.Join(args, ", "))
	}
	return writeLines(cmd, "ALLELE\tCUTOFF", lines)
}

// writeLines aligns tab separated lines under a header.
func writeLines(cmd *cobra.Command, header string, lines []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, header)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return w.Flush()
}

func containsAny(line string, subs []string) bool {
	line = strings.ToUpper(line)
	for _, s := range subs {
		if strings.Contains(line, strings.ToUpper(s)) {
			return true
		}
	}
	return false
}
