package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/evtxhunter/evtxhunter/internal/config"
	"github.com/evtxhunter/evtxhunter/internal/detect"
	"github.com/evtxhunter/evtxhunter/internal/events"
	"github.com/evtxhunter/evtxhunter/internal/notifier"
	"github.com/evtxhunter/evtxhunter/internal/pivot"
	"github.com/evtxhunter/evtxhunter/internal/recordio"
	"github.com/evtxhunter/evtxhunter/internal/ruleload"
	"github.com/evtxhunter/evtxhunter/internal/sigma"
)

var (
	scanConfigPath string
	scanRulesDir   string
	scanAliasFile  string
	scanExclusion  string
	scanMinLevel   string
	scanNoisy      bool
	scanBatchSize  int
	scanLimit      int
	scanWatch      bool

	scanNotifySlack string
	scanNotifyTeams string
	scanNotifyEmail []string
	scanSMTPHost    string
	scanSMTPPort    int
	scanSMTPUser    string
	scanSMTPFrom    string

	scanPivotCategories []string
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir-or-file>",
	Short: "Run detection rules over decoded event records",
	Long: `scan loads a compiled rule set and runs it over already-decoded
Windows event records (JSON or JSONL), matching field conditions and
aggregating over time windows, printing a summary of the run and the
alerts it emitted.

Examples:
  evtxhunter scan ./records --rules ./rules
  evtxhunter scan ./records --config ./evtxhunter.yaml -o json`,
	Args: cobra.ExactArgs(1),
	Run:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanConfigPath, "config", "", "path to evtxhunter.yaml (defaults applied if omitted)")
	scanCmd.Flags().StringVar(&scanRulesDir, "rules", "", "rule directory (overrides config)")
	scanCmd.Flags().StringVar(&scanAliasFile, "alias-file", "", "eventkey_alias.txt-style field alias file")
	scanCmd.Flags().StringVar(&scanExclusion, "exclusion-file", "", "rule exclusion/noisy-tag file")
	scanCmd.Flags().StringVar(&scanMinLevel, "min-level", "", "minimum rule level to load (overrides config)")
	scanCmd.Flags().BoolVar(&scanNoisy, "enable-noisy", false, "load rules tagged noisy")
	scanCmd.Flags().IntVar(&scanBatchSize, "batch-size", 0, "records per batch (overrides config)")
	scanCmd.Flags().IntVar(&scanLimit, "limit", 20, "alerts to print (0 = all)")
	scanCmd.Flags().BoolVar(&scanWatch, "watch", false, "after the first scan, re-run detection whenever a rule file changes")

	scanCmd.Flags().StringVar(&scanNotifySlack, "notify-slack", "", "Slack incoming webhook URL")
	scanCmd.Flags().StringVar(&scanNotifyTeams, "notify-teams", "", "Microsoft Teams incoming webhook URL")
	scanCmd.Flags().StringArrayVar(&scanNotifyEmail, "notify-email", nil, "email recipient (repeatable)")
	scanCmd.Flags().StringVar(&scanSMTPHost, "smtp-host", "", "SMTP server host")
	scanCmd.Flags().IntVar(&scanSMTPPort, "smtp-port", 587, "SMTP server port")
	scanCmd.Flags().StringVar(&scanSMTPUser, "smtp-user", "", "SMTP username")
	scanCmd.Flags().StringVar(&scanSMTPFrom, "smtp-from", "", "SMTP from address")

	scanCmd.Flags().StringArrayVar(&scanPivotCategories, "pivot-category", nil, `pivot keyword category "Name:Field1,Field2" (repeatable)`)
}

func runScan(cmd *cobra.Command, args []string) {
	recordPath := args[0]

	cfg, err := loadScanConfig()
	if err != nil {
		PrintError(err.Error(), true)
		return
	}

	aliases := events.NewAliasTable()
	if cfg.AliasFile != "" {
		aliases, err = events.LoadFile(cfg.AliasFile)
		if err != nil {
			PrintError(fmt.Sprintf("load alias file: %v", err), true)
			return
		}
	}

	var exclusions *ruleload.ExclusionList
	if cfg.Rules.ExclusionFile != "" {
		exclusions, err = ruleload.LoadExclusionFile(cfg.Rules.ExclusionFile)
		if err != nil {
			PrintError(fmt.Sprintf("load exclusion file: %v", err), true)
			return
		}
	}

	minLevel, err := sigma.ParseLevel(cfg.Rules.MinLevel)
	if err != nil {
		PrintError(fmt.Sprintf("min level: %v", err), true)
		return
	}

	loadOpts := ruleload.Options{
		Directory:   cfg.Rules.Directory,
		Exclusions:  exclusions,
		MinLevel:    minLevel,
		EnableNoisy: cfg.Rules.EnableNoisy,
		Verbose:     IsVerbose(),
	}

	rules, loadStats, err := ruleload.Load(loadOpts)
	if err != nil {
		PrintError(fmt.Sprintf("load rules: %v", err), true)
		return
	}
	PrintVerbose("loaded %d rules (%d seen, %d parse failed, %d excluded)",
		loadStats.Loaded, loadStats.FilesSeen, loadStats.ParseFailed, loadStats.Excluded)
	if len(rules) == 0 {
		PrintError("zero rules loaded, nothing to scan with", true)
		return
	}

	records, err := recordio.LoadPath(recordPath, aliases)
	if err != nil {
		PrintError(fmt.Sprintf("load records: %v", err), true)
		return
	}
	PrintVerbose("loaded %d records from %s", len(records), recordPath)

	eventIDFilter, err := parseEventIDFilter(cfg.EventIDFilter)
	if err != nil {
		PrintError(err.Error(), true)
		return
	}

	dispatcher, err := buildDispatcher(scanNotifySlack, scanNotifyTeams, scanNotifyEmail, scanSMTPHost, scanSMTPPort, scanSMTPUser, scanSMTPFrom)
	if err != nil {
		PrintError(err.Error(), true)
		return
	}
	if dispatcher != nil {
		defer dispatcher.Close()
	}

	runDetectionPass(rules, aliases, records, cfg, eventIDFilter, dispatcher)

	if !scanWatch {
		return
	}

	watcher, err := ruleload.NewWatcher(loadOpts)
	if err != nil {
		PrintError(fmt.Sprintf("watch rule directory: %v", err), true)
		return
	}
	defer watcher.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("\nwatching %s for rule changes (ctrl-c to stop)...\n", cfg.Rules.Directory)
	for {
		select {
		case reloaded := <-watcher.Reloaded:
			fmt.Println("\nrule change detected, re-running scan...")
			runDetectionPass(reloaded, aliases, records, cfg, eventIDFilter, dispatcher)
		case <-sigChan:
			return
		}
	}
}

// runDetectionPass runs one orchestrator pass over records with the given
// rule set, dispatches any emitted alerts, and prints the result. Used both
// for the initial scan and for each rescan triggered by --watch.
func runDetectionPass(rules []*sigma.RuleNode, aliases *events.AliasTable, records []*events.Record, cfg *config.Config, eventIDFilter map[int64]bool, dispatcher *notifier.Dispatcher) {
	orch := detect.NewOrchestrator(rules, aliases, detect.Options{
		BatchSize:     cfg.BatchSize,
		EventIDFilter: eventIDFilter,
		DedupAlerts:   true,
	})

	collector := buildPivotCollector(scanPivotCategories)
	if collector != nil {
		for _, rec := range records {
			collector.Insert(rec, aliases)
		}
	}

	stats, err := orch.Run(context.Background(), records)
	if err != nil {
		PrintError(fmt.Sprintf("run detection: %v", err), true)
		return
	}

	rows := orch.Store.Rows()
	if dispatcher != nil {
		for i := range rows {
			if err := dispatcher.DispatchAll(context.Background(), &rows[i]); err != nil {
				PrintVerbose("notification error for %s: %v", rows[i].RuleID, err)
			}
		}
	}

	outputScanResult(stats, rows)
	if collector != nil {
		outputPivotResult(collector)
	}
}

// buildPivotCollector parses --pivot-category flags of the form
// "Name:Field1,Field2" into a registered pivot.Collector. It returns nil
// when no categories were configured.
func buildPivotCollector(raw []string) *pivot.Collector {
	if len(raw) == 0 {
		return nil
	}
	collector := pivot.NewCollector()
	for _, spec := range raw {
		name, fieldList, ok := strings.Cut(spec, ":")
		if !ok || name == "" || fieldList == "" {
			PrintVerbose("skipping malformed pivot category %q", spec)
			continue
		}
		collector.AddCategory(name, strings.Split(fieldList, ","))
	}
	return collector
}

func outputPivotResult(collector *pivot.Collector) {
	categories := collector.Categories()
	if len(categories) == 0 {
		return
	}

	if GetOutput() == "json" {
		out := make(map[string][]string, len(categories))
		for _, name := range categories {
			out[name] = collector.Keywords(name)
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			PrintError(fmt.Sprintf("marshal JSON: %v", err), true)
			return
		}
		fmt.Println(string(data))
		return
	}

	fmt.Println("\npivot keywords:")
	for _, name := range categories {
		fmt.Printf("  %s: %s\n", name, strings.Join(collector.Keywords(name), ", "))
	}
}

func loadScanConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if scanConfigPath != "" {
		cfg, err = config.Load(scanConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.Default()
	}

	if scanRulesDir != "" {
		cfg.Rules.Directory = scanRulesDir
	}
	if scanAliasFile != "" {
		cfg.AliasFile = scanAliasFile
	}
	if scanExclusion != "" {
		cfg.Rules.ExclusionFile = scanExclusion
	}
	if scanMinLevel != "" {
		cfg.Rules.MinLevel = scanMinLevel
	}
	if scanNoisy {
		cfg.Rules.EnableNoisy = true
	}
	if scanBatchSize > 0 {
		cfg.BatchSize = scanBatchSize
	}
	cfg.Verbose = IsVerbose()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// parseEventIDFilter builds the event-ID whitelist from eventid_filter. The
// value is either the path of an existing file such as target_event_IDs.txt,
// listing IDs one per line (blank lines and lines starting with '#' are
// skipped), or an inline comma-separated list such as "4625,4688,1102". An
// empty string means no filter.
func parseEventIDFilter(raw string) (map[int64]bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if data, err := os.ReadFile(raw); err == nil {
		var ids []string
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				ids = append(ids, line)
			}
		}
		raw = strings.Join(ids, ",")
	}
	out := make(map[int64]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("eventid_filter: invalid event id %q", part)
		}
		out[id] = true
	}
	return out, nil
}

func outputScanResult(stats detect.RunStats, rows []detect.AlertRow) {
	if scanLimit > 0 && len(rows) > scanLimit {
		rows = rows[:scanLimit]
	}

	switch GetOutput() {
	case "json":
		outputScanJSON(stats, rows)
	case "plain":
		outputScanPlain(stats, rows)
	default:
		outputScanTable(stats, rows)
	}
}

func outputScanJSON(stats detect.RunStats, rows []detect.AlertRow) {
	data, err := json.MarshalIndent(struct {
		Stats  detect.RunStats  `json:"stats"`
		Alerts []detect.AlertRow `json:"alerts"`
	}{stats, rows}, "", "  ")
	if err != nil {
		PrintError(fmt.Sprintf("marshal JSON: %v", err), true)
		return
	}
	fmt.Println(string(data))
}

func outputScanPlain(stats detect.RunStats, rows []detect.AlertRow) {
	for _, row := range rows {
		fmt.Printf("%s [%s] %s (%s) on %s: %s\n",
			row.Timestamp.Format("2006-01-02T15:04:05Z07:00"), row.RuleLevel, row.RuleTitle, row.RuleID, row.Computer, row.Details)
	}
	fmt.Printf("records_seen=%d records_filtered=%d alerts_emitted=%d alerts_deduped=%d failed_rules=%d\n",
		stats.RecordsSeen, stats.RecordsFiltered, stats.AlertsEmitted, stats.AlertsDeduped, len(stats.FailedRules))
}

func outputScanTable(stats detect.RunStats, rows []detect.AlertRow) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TIMESTAMP\tLEVEL\tRULE\tCHANNEL\tCOMPUTER\tDETAILS\n")
	fmt.Fprintf(w, "---------\t-----\t----\t-------\t--------\t-------\n")
	for _, row := range rows {
		details := row.Details
		if len(details) > 80 {
			details = details[:77] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Timestamp.Format("2006-01-02 15:04:05"), row.RuleLevel, row.RuleID, row.Channel, row.Computer, details)
	}
	w.Flush()

	fmt.Printf("\nrecords seen: %d, filtered: %d, alerts emitted: %d, deduped: %d\n",
		stats.RecordsSeen, stats.RecordsFiltered, stats.AlertsEmitted, stats.AlertsDeduped)
	if len(stats.FailedRules) > 0 {
		fmt.Printf("rules failed: %s\n", strings.Join(stats.FailedRules, ", "))
	}
}
