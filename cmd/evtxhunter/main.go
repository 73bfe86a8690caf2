// Command evtxhunter runs SIGMA-style detection over decoded Windows event
// records: compiling rules, matching and aggregating over a batch of
// records, and reporting emitted alerts.
package main

import (
	"fmt"
	"os"

	"github.com/evtxhunter/evtxhunter/cmd/evtxhunter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
