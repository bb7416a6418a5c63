// Package cmd is for command line interactions with the pvacvector application
package cmd

import (
	"errors"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tmooney/pVACtools/internal/pvacvector"
)

// stderr is for logging to Stderr (without an annoying timestamp)
var stderr = log.New(os.Stderr, "", 0)

// RootCmd represents the base command when called without any subcommands.
var RootCmd = &cobra.Command{
	Use: "pvacvector",
	Short: `Assemble neoantigen peptides into a single vaccine vector.
Peptides are ordered, and joined with spacers, so that no junction creates a new binder`,
	Version:       "0.1.0",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
//
// The exit status is 2 if the run finished without finding a vector, 1 on any other error.
func Execute() {
	err := RootCmd.Execute()
	if err == nil {
		return
	}

	stderr.Printf("error: %v", err)

	var assemblyErr *pvacvector.AssemblyError
	if errors.As(err, &assemblyErr) {
		os.Exit(2)
	}
	os.Exit(1)
}

// set persistent flags
func init() {
	RootCmd.PersistentFlags().StringP("settings", "s", "", "settings file to merge over the defaults")
	RootCmd.PersistentFlags().BoolP("verbose", "v", false, "whether to log progress to stdout")

	viper.BindPFlag("settings", RootCmd.PersistentFlags().Lookup("settings"))
	viper.BindPFlag("verbose", RootCmd.PersistentFlags().Lookup("verbose"))
}
