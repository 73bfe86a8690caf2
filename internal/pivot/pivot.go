// Package pivot collects candidate pivot keywords -- field values worth
// searching for elsewhere in a case -- from the records inserted into a
// Collector, skipping records whose own Level field is missing or too
// broad. It does not know whether a record matched any rule.
package pivot

import (
	"sort"
	"sync"

	"github.com/evtxhunter/evtxhunter/internal/events"
)

// excludedValues are placeholder/loopback values never worth pivoting on.
var excludedValues = map[string]bool{
	"-":         true,
	"127.0.0.1": true,
	"::1":       true,
}

// excludedLevels are values of a record's Level field too broad to bother
// collecting keywords for.
var excludedLevels = map[string]bool{
	"informational": true,
	"undefined":     true,
	"-":             true,
	"":              true,
}

// Category is a named group of fields whose values accumulate into one
// keyword set, e.g. "Ip Addresses" collecting from SourceIp/DestinationIp.
type Category struct {
	Name     string
	Fields   []string
	keywords map[string]bool
}

// Collector accumulates pivot keywords across a run, keyed by category.
type Collector struct {
	mu         sync.Mutex
	categories map[string]*Category
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{categories: make(map[string]*Category)}
}

// AddCategory registers a category. Fields are alias names resolved
// against each inserted record.
func (c *Collector) AddCategory(name string, fields []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories[name] = &Category{Name: name, Fields: fields, keywords: make(map[string]bool)}
}

// Insert examines one record and, unless its Level is too broad to be
// useful, adds every category field's resolved value to that category's
// keyword set (skipping placeholder/loopback values).
func (c *Collector) Insert(rec *events.Record, aliases *events.AliasTable) {
	level, ok := aliases.GetString("Level", rec)
	if !ok || excludedLevels[level] {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cat := range c.categories {
		for _, field := range cat.Fields {
			value, ok := aliases.GetString(field, rec)
			if !ok || value == "" || excludedValues[value] {
				continue
			}
			cat.keywords[value] = true
		}
	}
}

// Keywords returns the sorted keyword set collected for a category, or nil
// if the category was never registered.
func (c *Collector) Keywords(category string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cat, ok := c.categories[category]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(cat.keywords))
	for k := range cat.keywords {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Categories returns every registered category name, sorted.
func (c *Collector) Categories() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.categories))
	for name := range c.categories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
