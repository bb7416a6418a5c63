package predict

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// Class is the MHC class an allele or method belongs to.
type Class int

const (
	// ClassI alleles are HLA-A, -B, -C and friends
	ClassI Class = iota + 1

	// ClassII alleles are DR, DP and DQ
	ClassII
)

// String returns "I" or "II".
func (c Class) String() string {
	if c == ClassII {
		return "II"
	}
	return "I"
}

// ClassOf guesses the class of an allele from its name.
func ClassOf(allele string) Class {
	a := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(allele), "HLA-"))
	for _, prefix := range []string{"DR", "DP", "DQ", "H2-I", "H-2-I"} {
		if strings.HasPrefix(a, prefix) {
			return ClassII
		}
	}
	return ClassI
}

// spec describes one named method.
type spec struct {
	// name as it's passed on the command line
	name string

	// iedb is the method's name in IEDB's tools, empty if it isn't an IEDB method
	iedb string

	// class of alleles the method predicts for
	class Class

	// minLength and maxLength bound the supported epitope lengths
	minLength, maxLength int
}

// Name returns the method's command line name.
func (s spec) Name() string {
	return s.name
}

// Supports is true if the allele's class and length fit the method.
func (s spec) Supports(allele string, length int) bool {
	return ClassOf(allele) == s.class && length >= s.minLength && length <= s.maxLength
}

// specs are the recognized prediction methods, by lowercased name.
var specs = map[string]spec{
	"netmhc":      {"NetMHC", "ann", ClassI, 8, 15},
	"netmhcpan":   {"NetMHCpan", "netmhcpan", ClassI, 8, 15},
	"smmpmbec":    {"SMMPMBEC", "smmpmbec", ClassI, 8, 15},
	"smm":         {"SMM", "smm", ClassI, 8, 15},
	"netmhccons":  {"NetMHCcons", "netmhccons", ClassI, 8, 15},
	"pickpocket":  {"PickPocket", "pickpocket", ClassI, 8, 15},
	"mhcflurry":   {"MHCflurry", "", ClassI, 8, 14},
	"netmhciipan": {"NetMHCIIpan", "NetMHCIIpan", ClassII, 15, 15},
	"nnalign":     {"NNalign", "nn_align", ClassII, 15, 15},
	"smmalign":    {"SMMalign", "smm_align", ClassII, 15, 15},
}

// Names returns the recognized method names, sorted.
func Names() []string {
	var names []string
	for _, s := range specs {
		names = append(names, s.name)
	}
	sort.Strings(names)
	return names
}

// Describe returns a line per method with its class and supported lengths.
func Describe() []string {
	var lines []string
	for _, name := range Names() {
		s := specs[strings.ToLower(name)]
		backend := "IEDB"
		if s.iedb == "" {
			backend = "local"
		}
		lines = append(lines, fmt.Sprintf("%s\tclass %s\t%d-%d\t%s", s.name, s.class, s.minLength, s.maxLength, backend))
	}
	return lines
}

// DefaultIEDBURL is the root of IEDB's prediction REST API.
const DefaultIEDBURL = "http://tools-cluster-interface.iedb.org/tools_api"

// Options configure how methods reach their backends.
type Options struct {
	// IEDBInstallDir is the root of a local IEDB standalone install. When set,
	// IEDB methods run locally instead of through the REST API.
	IEDBInstallDir string

	// IEDBURL overrides DefaultIEDBURL
	IEDBURL string

	// MaxRequests caps concurrent IEDB API requests. Defaults to 4.
	MaxRequests int64

	// Client for IEDB API requests. Defaults to one with a 5 minute timeout.
	Client *http.Client

	// Python interpreter for local IEDB tools. Defaults to "python".
	Python string

	// MHCflurry is the path to mhcflurry-predict. Defaults to "mhcflurry-predict".
	MHCflurry string

	// TmpDir for the local tools' input files. Defaults to os.TempDir().
	TmpDir string

	// KeepTmpFiles leaves the local tools' input files on disk
	KeepTmpFiles bool
}

// New returns the methods with the names passed, in the order passed.
func New(names []string, opts Options) ([]Method, error) {
	if opts.IEDBURL == "" {
		opts.IEDBURL = DefaultIEDBURL
	}
	if opts.MaxRequests < 1 {
		opts.MaxRequests = 4
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Minute}
	}
	if opts.Python == "" {
		opts.Python = "python"
	}
	if opts.MHCflurry == "" {
		opts.MHCflurry = "mhcflurry-predict"
	}
	if opts.TmpDir == "" {
		opts.TmpDir = os.TempDir()
	}

	// one limit across every API-backed method
	sem := semaphore.NewWeighted(opts.MaxRequests)

	seen := make(map[string]bool)
	var methods []Method
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		s, ok := specs[key]
		if !ok {
			return nil, fmt.Errorf("unknown prediction algorithm %q, see 'pvacvector ls methods'", name)
		}

		switch {
		case s.iedb == "":
			methods = append(methods, &mhcflurry{spec: s, bin: opts.MHCflurry})
		case opts.IEDBInstallDir != "":
			methods = append(methods, &iedbLocal{
				spec:   s,
				python: opts.Python,
				script: localScript(opts.IEDBInstallDir, s.class),
				tmpDir: opts.TmpDir,
				keep:   opts.KeepTmpFiles,
			})
		default:
			methods = append(methods, &iedbAPI{
				spec:   s,
				url:    apiURL(opts.IEDBURL, s.class),
				client: opts.Client,
				sem:    sem,
			})
		}
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no prediction algorithms chosen")
	}

	return methods, nil
}
