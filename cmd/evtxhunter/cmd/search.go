package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/evtxhunter/evtxhunter/internal/events"
	"github.com/evtxhunter/evtxhunter/internal/recordio"
	"github.com/evtxhunter/evtxhunter/internal/search"
)

var (
	searchKeywords []string
	searchRegex    string
	searchFilters  []string
	searchIgnCase  bool
	searchAliasFl  string
)

var searchCmd = &cobra.Command{
	Use:   "search <dir-or-file>",
	Short: "Search decoded event records by keyword, regex, or field filter",
	Long: `search scans already-decoded event records for keyword or regex
matches among those that pass every field:value filter, independent of
the rule engine.

Examples:
  evtxhunter search ./records --keyword mimikatz
  evtxhunter search ./records --regex "(?i)invoke-"
  evtxhunter search ./records --filter EventID:4625 --keyword failed`,
	Args: cobra.ExactArgs(1),
	Run:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringArrayVar(&searchKeywords, "keyword", nil, "keyword to search for (repeatable)")
	searchCmd.Flags().StringVar(&searchRegex, "regex", "", "regular expression to search for")
	searchCmd.Flags().StringArrayVar(&searchFilters, "filter", nil, `field:value filter, e.g. "Channel:Security" (repeatable)`)
	searchCmd.Flags().BoolVar(&searchIgnCase, "ignore-case", true, "no effect: keywords always match case-insensitively, and --regex runs against the lowercased record text")
	searchCmd.Flags().StringVar(&searchAliasFl, "alias-file", "", "eventkey_alias.txt-style field alias file")
}

func runSearch(cmd *cobra.Command, args []string) {
	recordPath := args[0]

	aliases := events.NewAliasTable()
	if searchAliasFl != "" {
		var err error
		aliases, err = events.LoadFile(searchAliasFl)
		if err != nil {
			PrintError(fmt.Sprintf("load alias file: %v", err), true)
			return
		}
	}

	records, err := recordio.LoadPath(recordPath, aliases)
	if err != nil {
		PrintError(fmt.Sprintf("load records: %v", err), true)
		return
	}
	PrintVerbose("loaded %d records from %s", len(records), recordPath)

	results, err := search.Run(records, aliases, search.Options{
		Keywords:   searchKeywords,
		Regex:      searchRegex,
		Filters:    search.ParseFilters(searchFilters),
		IgnoreCase: searchIgnCase,
	})
	if err != nil {
		PrintError(fmt.Sprintf("search: %v", err), true)
		return
	}

	outputSearchResults(results)
}

func outputSearchResults(results []search.Result) {
	switch GetOutput() {
	case "json":
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			PrintError(fmt.Sprintf("marshal JSON: %v", err), true)
			return
		}
		fmt.Println(string(data))
	case "plain":
		for _, r := range results {
			fmt.Printf("%s %s %s %s\n", r.Timestamp, r.Channel, r.EventID, r.AllFields)
		}
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "TIMESTAMP\tCHANNEL\tEVENTID\tHOSTNAME\tSOURCE\n")
		fmt.Fprintf(w, "---------\t-------\t-------\t--------\t------\n")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Timestamp, r.Channel, r.EventID, r.Hostname, r.SourceFile)
		}
		w.Flush()
		fmt.Printf("\nmatches: %d\n", len(results))
	}
}
