// Package config is for app wide settings that are unmarshalled
// from Viper (see: /cmd)
package config

import (
	"bytes"
	_ "embed" // settings.yaml
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tmooney/pVACtools/internal/filter"
	"github.com/tmooney/pVACtools/internal/sink"
)

// settings are the defaults, overridden by a --settings file, PVACVECTOR_ env vars and flags.
//
//go:embed settings.yaml
var settings []byte

// Config is the root-level settings struct and is a mix
// of settings available in settings.yaml and those
// available from the command line
type Config struct {
	// whether to log progress to stdout
	Verbose bool `mapstructure:"verbose" yaml:"verbose"`

	// HLA alleles checked at every junction
	Alleles []string `mapstructure:"alleles" yaml:"alleles"`

	// lengths of the junction epitopes
	EpitopeLengths []int `mapstructure:"epitope-lengths" yaml:"epitope-lengths"`

	// names of the binding predictors to use
	PredictionAlgorithms []string `mapstructure:"prediction-algorithms" yaml:"prediction-algorithms"`

	// spacers, most preferred first
	Spacers []string `mapstructure:"spacers" yaml:"spacers"`

	// IC50 below which an epitope binds
	BindingThreshold float64 `mapstructure:"binding-threshold" yaml:"binding-threshold"`

	// whether to use AlleleCutoffs for the alleles they cover
	AlleleSpecificBindingThresholds bool `mapstructure:"allele-specific-binding-thresholds" yaml:"allele-specific-binding-thresholds"`

	// allele-specific IC50 cutoffs. viper lowercases the keys
	AlleleCutoffs map[string]float64 `mapstructure:"allele-cutoffs" yaml:"-"`

	// median or lowest
	TopScoreMetric string `mapstructure:"top-score-metric" yaml:"top-score-metric"`

	// junctions scored at once
	Threads int `mapstructure:"threads" yaml:"threads"`

	// prediction backends
	IEDBInstallDirectory string        `mapstructure:"iedb-install-directory" yaml:"iedb-install-directory"`
	IEDBURL              string        `mapstructure:"iedb-url" yaml:"iedb-url"`
	IEDBRetries          int           `mapstructure:"iedb-retries" yaml:"iedb-retries"`
	IEDBRetryBackoff     time.Duration `mapstructure:"iedb-retry-backoff" yaml:"iedb-retry-backoff"`
	MaxRequests          int           `mapstructure:"max-requests" yaml:"max-requests"`
	MHCflurry            string        `mapstructure:"mhcflurry" yaml:"mhcflurry"`
	KeepTmpFiles         bool          `mapstructure:"keep-tmp-files" yaml:"keep-tmp-files"`

	// search budget
	MaxSteps    int           `mapstructure:"max-steps" yaml:"max-steps"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Speculative bool          `mapstructure:"speculative" yaml:"speculative"`

	// prediction cache DSN and metrics output
	Cache   string `mapstructure:"cache" yaml:"cache"`
	Metrics string `mapstructure:"metrics" yaml:"metrics"`

	// peptide table filters
	ExpnVal                       float64 `mapstructure:"expn-val" yaml:"expn-val"`
	NormalVAF                     float64 `mapstructure:"normal-vaf" yaml:"normal-vaf"`
	MaximumTranscriptSupportLevel int     `mapstructure:"maximum-transcript-support-level" yaml:"maximum-transcript-support-level"`
	MinimumFoldChange             float64 `mapstructure:"minimum-fold-change" yaml:"minimum-fold-change"`

	// S3 settings for s3:// outputs
	Sink sink.Config `mapstructure:",squash" yaml:",inline"`
}

// New returns a new Config struct populated by Viper settings: the
// embedded settings.yaml, an optional --settings file, PVACVECTOR_
// environment variables and command line flags, in increasing priority.
func New() (*Config, error) {
	viper.SetConfigType("yaml")
	if err := viper.ReadConfig(bytes.NewReader(settings)); err != nil {
		return nil, fmt.Errorf("failed to read default settings: %w", err)
	}

	if userSettings := viper.GetString("settings"); userSettings != "" {
		viper.SetConfigFile(userSettings)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file %s: %w", userSettings, err)
		}
	}

	viper.SetEnvPrefix("pvacvector")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &c, c.validate()
}

// validate checks the settings that would otherwise fail deep in a run.
func (c *Config) validate() error {
	if c.BindingThreshold <= 0 {
		return fmt.Errorf("binding-threshold must be positive, got %v", c.BindingThreshold)
	}
	for _, l := range c.EpitopeLengths {
		if l < 1 {
			return fmt.Errorf("invalid epitope length %d", l)
		}
	}
	if c.Threads < 1 {
		c.Threads = 1
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("max-steps can't be negative")
	}
	if c.IEDBRetries < 0 {
		c.IEDBRetries = 0
	}
	return nil
}

// Thresholds returns the binding cutoffs: allele-specific ones if they
// were asked for, otherwise BindingThreshold for every allele.
func (c *Config) Thresholds() filter.Thresholds {
	t := filter.Thresholds{Default: c.BindingThreshold}
	if !c.AlleleSpecificBindingThresholds {
		return t
	}

	t.Alleles = make(map[string]float64, len(c.AlleleCutoffs))
	for allele, cutoff := range c.AlleleCutoffs {
		t.Alleles[strings.ToLower(allele)] = cutoff
	}
	return t
}

// Criteria returns the peptide table filters.
func (c *Config) Criteria() filter.Criteria {
	return filter.Criteria{
		Thresholds:        c.Thresholds(),
		MinimumFoldChange: c.MinimumFoldChange,
		ExpnVal:           c.ExpnVal,
		NormalVAF:         c.NormalVAF,
		MaxTSL:            c.MaximumTranscriptSupportLevel,
	}
}

// Cutoffs returns the allele-specific cutoffs as "allele\tcutoff" lines, sorted by allele.
func (c *Config) Cutoffs() []string {
	var lines []string
	for allele, cutoff := range c.AlleleCutoffs {
		lines = append(lines, fmt.Sprintf("%s\t%v", strings.ToUpper(allele), cutoff))
	}
	sort.Strings(lines)
	return lines
}
