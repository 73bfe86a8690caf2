// Package ruleload walks a rule directory, compiles every YAML file into a
// sigma.RuleNode, and applies the exclusion/status/level filters a
// detection run is configured with.
package ruleload

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/evtxhunter/evtxhunter/internal/sigma"
)

// Options configures one rule-directory load.
type Options struct {
	Directory       string
	Exclusions      *ExclusionList
	MinLevel        sigma.Level
	EnableNoisy     bool
	ExcludeStatuses map[sigma.Status]bool
	Verbose         bool
}

// Stats tallies what happened to every YAML file the walk encountered,
// per the rule loader's §4.7 contract.
type Stats struct {
	FilesSeen      int
	Loaded         int
	ParseFailed    int
	Excluded       int
	Noisy          int
	BelowMinLevel  int
	ExcludedStatus int
	ByStatus       map[sigma.Status]int
	ByLevel        map[sigma.Level]int
}

func newStats() Stats {
	return Stats{
		ByStatus: make(map[sigma.Status]int),
		ByLevel:  make(map[sigma.Level]int),
	}
}

// skipDir reports whether a directory should be pruned entirely: hidden
// directories, .git, and tool/test fixture subtrees.
func skipDir(name string) bool {
	if name == ".git" {
		return true
	}
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "tests", "testdata", "fixtures", ".github":
		return true
	}
	return false
}

// Load walks opts.Directory, compiling and filtering every rule file it
// finds. It never aborts on a single bad file -- every failure is counted
// in Stats and, when opts.Verbose, logged -- so one malformed rule never
// blocks the rest of the rule set from loading.
func Load(opts Options) ([]*sigma.RuleNode, Stats, error) {
	stats := newStats()
	var rules []*sigma.RuleNode

	minRank, ok := opts.MinLevel.Rank()
	if !ok {
		minRank = 0
	}

	walkErr := filepath.WalkDir(opts.Directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != opts.Directory && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}

		stats.FilesSeen++
		rule, skipped := loadOne(path, opts, minRank, &stats)
		if skipped {
			return nil
		}
		if rule == nil {
			return nil
		}
		rules = append(rules, rule)
		stats.Loaded++
		stats.ByStatus[rule.Status]++
		stats.ByLevel[rule.Level]++
		return nil
	})
	if walkErr != nil {
		return nil, stats, fmt.Errorf("walk rule directory %s: %w", opts.Directory, walkErr)
	}

	return rules, stats, nil
}

// loadOne applies the §4.7 pipeline to a single file: parse, exclusion
// check, status check, level check.
func loadOne(path string, opts Options, minRank int, stats *Stats) (*sigma.RuleNode, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		stats.ParseFailed++
		if opts.Verbose {
			log.Printf("warning: rule %s: read failed: %v", path, err)
		}
		return nil, true
	}

	var raw sigma.RawRule
	if err := yaml.Unmarshal(data, &raw); err != nil {
		stats.ParseFailed++
		if opts.Verbose {
			log.Printf("warning: rule %s: yaml parse failed: %v", path, err)
		}
		return nil, true
	}

	rule, errs := sigma.InitRule(&raw, path)
	if len(errs) > 0 {
		stats.ParseFailed++
		if opts.Verbose {
			for _, e := range errs {
				log.Printf("warning: %v", e)
			}
		}
		return nil, true
	}

	if tag, found := opts.Exclusions.Lookup(rule.ID); found {
		switch tag {
		case TagExcludeRule:
			stats.Excluded++
			return nil, true
		case TagNoisy:
			if !opts.EnableNoisy {
				stats.Noisy++
				return nil, true
			}
		}
	}

	if opts.ExcludeStatuses[rule.Status] {
		stats.ExcludedStatus++
		return nil, true
	}

	if rank, ok := rule.Level.Rank(); ok && rank < minRank {
		stats.BelowMinLevel++
		return nil, true
	}

	return rule, false
}
