// Package cmd contains the CLI commands for evtxhunter.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Used for flags
	verbose bool
	output  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "evtxhunter",
	Short: "evtxhunter - SIGMA-style detection over decoded Windows event logs",
	Long: `evtxhunter compiles SIGMA-style detection rules and runs them over
already-decoded Windows Event Log records (JSON or JSONL), matching field
conditions and aggregating over time windows to produce alerts.

Examples:
  # Run detection over a directory of decoded records
  evtxhunter scan ./records --rules ./rules --config ./evtxhunter.yaml

  # Validate a rule directory without running a scan
  evtxhunter rules validate ./rules

  # Search decoded records for a keyword, independent of rules
  evtxhunter search ./records --keyword mimikatz`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json, plain)")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// GetOutput returns the output format.
func GetOutput() string {
	return output
}

// PrintError prints an error message and exits if fatal is true.
func PrintError(msg string, fatal bool) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
	if fatal {
		os.Exit(1)
	}
}

// PrintVerbose prints a message only if verbose mode is enabled.
func PrintVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}
