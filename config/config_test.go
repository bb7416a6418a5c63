// Package config is for app wide settings that are unmarshalled
// from Viper (see: /cmd)
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestNew_defaults(t *testing.T) {
	viper.Reset()

	c, err := New()
	if err != nil {
		t.Fatal(err)
	}

	wantSpacers := []string{"None", "AAY", "HHHH", "GGS", "GPGPG", "HHAA", "AAL", "HH", "HHC", "HHH", "HHHD", "HHL", "HHHC"}
	if !reflect.DeepEqual(c.Spacers, wantSpacers) {
		t.Errorf("New() spacers = %v, want %v", c.Spacers, wantSpacers)
	}
	if !reflect.DeepEqual(c.EpitopeLengths, []int{8, 9, 10, 11}) {
		t.Errorf("New() epitope lengths = %v", c.EpitopeLengths)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"binding threshold", c.BindingThreshold, 500.0},
		{"threads", c.Threads, 1},
		{"iedb retries", c.IEDBRetries, 5},
		{"retry backoff", c.IEDBRetryBackoff, time.Minute},
		{"top score metric", c.TopScoreMetric, "median"},
		{"normal vaf", c.NormalVAF, 0.02},
		{"max steps", c.MaxSteps, 1000000},
		{"s3 region", c.Sink.Region, "us-east-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.want) {
				t.Errorf("New() %s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestNew_settingsFile(t *testing.T) {
	viper.Reset()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	custom := "threads: 8\nspacers: [HH, None]\nbinding-threshold: 250\ntimeout: 90s\n"
	if err := os.WriteFile(path, []byte(custom), 0644); err != nil {
		t.Fatal(err)
	}
	viper.Set("settings", path)

	c, err := New()
	if err != nil {
		t.Fatal(err)
	}

	if c.Threads != 8 || c.BindingThreshold != 250 || c.Timeout != 90*time.Second {
		t.Errorf("New() = threads %d, threshold %v, timeout %v", c.Threads, c.BindingThreshold, c.Timeout)
	}
	if !reflect.DeepEqual(c.Spacers, []string{"HH", "None"}) {
		t.Errorf("New() spacers = %v", c.Spacers)
	}
	// untouched settings keep their defaults
	if c.IEDBRetries != 5 {
		t.Errorf("New() iedb retries = %d, want 5", c.IEDBRetries)
	}
}

func TestNew_invalid(t *testing.T) {
	viper.Reset()
	viper.Set("binding-threshold", -1)

	if _, err := New(); err == nil {
		t.Error("New() accepted a negative binding threshold")
	}
}

func TestConfig_Thresholds(t *testing.T) {
	cutoffs := map[string]float64{"hla-a*02:01": 255, "hla-b*07:02": 687}

	tests := []struct {
		name          string
		alleleSpecifc bool
		allele        string
		want          float64
	}{
		{"global threshold", false, "HLA-A*02:01", 500},
		{"allele-specific", true, "HLA-A*02:01", 255},
		{"allele-specific, other allele", true, "HLA-B*07:02", 687},
		{"allele without a cutoff", true, "HLA-C*07:02", 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{
				BindingThreshold:                500,
				AlleleSpecificBindingThresholds: tt.alleleSpecifc,
				AlleleCutoffs:                   cutoffs,
			}
			if got := c.Thresholds().For(tt.allele); got != tt.want {
				t.Errorf("Config.Thresholds().For() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_Cutoffs(t *testing.T) {
	viper.Reset()

	c, err := New()
	if err != nil {
		t.Fatal(err)
	}

	lines := c.Cutoffs()
	if len(lines) == 0 || lines[0] != "HLA-A*01:01\t884" {
		t.Errorf("Config.Cutoffs() = %v", lines)
	}
}
