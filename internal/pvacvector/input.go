package pvacvector

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tmooney/pVACtools/config"
	"github.com/tmooney/pVACtools/internal/filter"
)

var (
	// stderr is for logging to Stderr (without an annoying timestamp)
	stderr = log.New(os.Stderr, "", 0)
)

// Flags contains parsed cobra Flags like "in" and "out".
type Flags struct {
	// the name of the file to read peptides from
	in string

	// the name of the file to write the output to
	out string
}

// inputParser contains methods for parsing flags from the input &cobra.Command.
type inputParser struct{}

// parseCmdFlags gathers the in path, out path, etc from a cobra cmd object
// and returns them with the Config they were bound into.
func parseCmdFlags(cmd *cobra.Command, args []string) (*Flags, *config.Config, error) {
	var err error
	fs := &Flags{}
	p := inputParser{}

	table, _ := cmd.Flags().GetString("peptide-table")
	if table != "" && !strings.EqualFold(filepath.Ext(table), ".tsv") {
		return nil, nil, fmt.Errorf("peptide table %s isn't a .tsv file", table)
	}

	if fs.in, err = cmd.Flags().GetString("in"); fs.in == "" || err != nil {
		if table != "" {
			fs.in = table
		} else if len(args) > 0 {
			fs.in = args[0]
		} else if fs.in, err = p.guessInput(); err != nil {
			cmd.Help()
			return nil, nil, err
		}
	}

	if fs.out, err = cmd.Flags().GetString("out"); fs.out == "" || err != nil {
		fs.out = p.guessOutput(fs.in)
	}

	c, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	return fs, c, nil
}

// guessInput returns the first FASTA or TSV file in the current directory.
// Is used if the user hasn't specified an input file.
func (p *inputParser) guessInput() (in string, err error) {
	dir, _ := filepath.Abs(".")
	files, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(file.Name()))
		if ext == ".fa" || ext == ".fasta" || ext == ".tsv" {
			return file.Name(), nil
		}
	}

	return "", fmt.Errorf("failed: no input argument set and no fasta or tsv file found in %s", dir)
}

// guessOutput gets an output path from an input path (if no output path is
// specified). It uses the same name as the input path to create an output.
func (p *inputParser) guessOutput(in string) (out string) {
	ext := filepath.Ext(in)
	noExt := in[0 : len(in)-len(ext)]
	return noExt + ".vector.json"
}

// readPeptides reads the peptides to assemble. A .tsv input is a peptide
// table and is filtered first; anything else is read as FASTA.
func readPeptides(path string, conf *config.Config) ([]Peptide, []filter.Dropped, error) {
	if !strings.EqualFold(filepath.Ext(path), ".tsv") {
		peptides, err := readFASTA(path)
		return peptides, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := filter.ReadTable(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	kept, dropped, err := conf.Criteria().Apply(rows)
	if err != nil {
		return nil, nil, err
	}
	for _, d := range dropped {
		stderr.Printf("warning: dropping %s: %s", d.ID, strings.Join(d.Reasons, "; "))
	}

	return fromSelected(kept), dropped, nil
}
