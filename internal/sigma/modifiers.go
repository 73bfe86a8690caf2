// Package sigma implements the SIGMA-style rule core: modifier chains,
// selection clauses, the condition compiler, the aggregation-clause parser,
// and the rule node that ties them together.
package sigma

import (
	"encoding/base64"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/evtxhunter/evtxhunter/internal/events"
)

// baseKind is the primary comparison a field matcher performs. One is
// chosen per modifier chain: the last base modifier wins, except that
// "contains" after "base64offset" keeps base64offset, whose variants are
// already matched as substrings. "all" and "cased" are flags layered on
// top of it.
type baseKind int

const (
	baseEquals baseKind = iota
	baseContains
	baseStartswith
	baseEndswith
	baseRegex
	baseBase64Offset
	baseCIDR
	baseGT
	baseGE
	baseLT
	baseLE
)

// FieldMatcher is the compiled form of one `field[|mods]: pattern(s)` entry
// in a selection clause. Compiling once at rule-init time means the hot
// matching path never re-parses a modifier string or re-compiles a regex.
type FieldMatcher struct {
	Field string
	kind  baseKind
	all   bool
	cased bool

	patterns []string         // raw patterns, for base64offset/cidr/numeric/literal/glob paths
	regexes  []*regexp.Regexp // compiled when kind == baseRegex or a pattern needs glob matching
	cidrs    []*net.IPNet     // compiled when kind == baseCIDR
	numbers  []float64        // parsed when kind is a numeric comparator
}

// CompileField parses a "Field|mod1|mod2" key and its pattern list into a
// FieldMatcher. An unknown modifier fails rule-init with a descriptive
// error, per the matcher primitives contract.
func CompileField(rawKey string, patterns []string) (*FieldMatcher, error) {
	parts := strings.Split(rawKey, "|")
	fm := &FieldMatcher{Field: parts[0], patterns: patterns}

	haveBase := false
	for _, mod := range parts[1:] {
		switch mod {
		case "contains":
			if fm.kind != baseBase64Offset {
				fm.kind = baseContains
			}
			haveBase = true
		case "startswith":
			fm.kind, haveBase = baseStartswith, true
		case "endswith":
			fm.kind, haveBase = baseEndswith, true
		case "re":
			fm.kind, haveBase = baseRegex, true
		case "base64offset":
			fm.kind, haveBase = baseBase64Offset, true
		case "cidr":
			fm.kind, haveBase = baseCIDR, true
		case "gt":
			fm.kind, haveBase = baseGT, true
		case "ge":
			fm.kind, haveBase = baseGE, true
		case "lt":
			fm.kind, haveBase = baseLT, true
		case "le":
			fm.kind, haveBase = baseLE, true
		case "all":
			fm.all = true
		case "cased":
			fm.cased = true
		default:
			return nil, fmt.Errorf("unknown modifier %q on field %q", mod, parts[0])
		}
	}
	if !haveBase {
		fm.kind = baseEquals
	}

	if err := fm.compilePatterns(); err != nil {
		return nil, fmt.Errorf("field %q: %w", rawKey, err)
	}
	return fm, nil
}

func (fm *FieldMatcher) compilePatterns() error {
	switch fm.kind {
	case baseRegex:
		fm.regexes = make([]*regexp.Regexp, len(fm.patterns))
		for i, p := range fm.patterns {
			expr := p
			if !fm.cased {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile("^(?:" + expr + ")$")
			if err != nil {
				return fmt.Errorf("invalid regex %q: %w", p, err)
			}
			fm.regexes[i] = re
		}
	case baseCIDR:
		fm.cidrs = make([]*net.IPNet, len(fm.patterns))
		for i, p := range fm.patterns {
			_, network, err := net.ParseCIDR(p)
			if err != nil {
				return fmt.Errorf("invalid cidr %q: %w", p, err)
			}
			fm.cidrs[i] = network
		}
	case baseGT, baseGE, baseLT, baseLE:
		fm.numbers = make([]float64, len(fm.patterns))
		for i, p := range fm.patterns {
			n, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return fmt.Errorf("invalid numeric pattern %q: %w", p, err)
			}
			fm.numbers[i] = n
		}
	case baseEquals:
		// Glob-compile any pattern containing a wildcard; exact patterns
		// stay as plain strings for a fast-path string comparison.
		fm.regexes = make([]*regexp.Regexp, len(fm.patterns))
		for i, p := range fm.patterns {
			if strings.ContainsAny(p, "*?") {
				re, err := compileGlob(p, fm.cased)
				if err != nil {
					return fmt.Errorf("invalid glob pattern %q: %w", p, err)
				}
				fm.regexes[i] = re
			}
		}
	}
	return nil
}

// compileGlob turns a SIGMA-style `*`/`?` pattern into an anchored regex.
func compileGlob(pattern string, cased bool) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	expr := sb.String()
	if !cased {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}

// Match evaluates the matcher against a record's resolved value for
// fm.Field. present reports whether the field was found at all; per §4.3,
// a missing field is never satisfied.
func (fm *FieldMatcher) Match(value interface{}, present bool) bool {
	if !present {
		return false
	}

	hits := make([]bool, len(fm.patterns))
	for i := range fm.patterns {
		hits[i] = fm.matchOne(value, i)
	}
	if len(hits) == 0 {
		return false
	}
	if fm.all {
		for _, h := range hits {
			if !h {
				return false
			}
		}
		return true
	}
	for _, h := range hits {
		if h {
			return true
		}
	}
	return false
}

func (fm *FieldMatcher) matchOne(value interface{}, i int) bool {
	switch fm.kind {
	case baseContains, baseStartswith, baseEndswith:
		s := events.ToStringForm(value)
		pat := fm.patterns[i]
		if !fm.cased {
			s = strings.ToLower(s)
			pat = strings.ToLower(pat)
		}
		switch fm.kind {
		case baseContains:
			return strings.Contains(s, pat)
		case baseStartswith:
			return strings.HasPrefix(s, pat)
		default:
			return strings.HasSuffix(s, pat)
		}
	case baseRegex:
		return fm.regexes[i].MatchString(events.ToStringForm(value))
	case baseBase64Offset:
		s := events.ToStringForm(value)
		if !fm.cased {
			s = strings.ToLower(s)
		}
		for _, variant := range base64OffsetVariants(fm.patterns[i]) {
			v := variant
			if !fm.cased {
				v = strings.ToLower(v)
			}
			if strings.Contains(s, v) {
				return true
			}
		}
		return false
	case baseCIDR:
		ip := net.ParseIP(events.ToStringForm(value))
		if ip == nil {
			return false
		}
		return fm.cidrs[i].Contains(ip)
	case baseGT, baseGE, baseLT, baseLE:
		n, ok := events.ToFloat64(value)
		if !ok {
			return false
		}
		switch fm.kind {
		case baseGT:
			return n > fm.numbers[i]
		case baseGE:
			return n >= fm.numbers[i]
		case baseLT:
			return n < fm.numbers[i]
		default:
			return n <= fm.numbers[i]
		}
	default: // baseEquals
		if fm.regexes[i] != nil {
			return fm.regexes[i].MatchString(events.ToStringForm(value))
		}
		s := events.ToStringForm(value)
		pat := fm.patterns[i]
		if fm.cased {
			return s == pat
		}
		return strings.EqualFold(s, pat)
	}
}

// base64OffsetVariants returns the three byte-offset base64 encodings of
// pattern, matching SIGMA's base64offset modifier: the same substring
// encodes differently depending on which of the three positions mod 3 it
// starts at within a larger base64 blob, so all three must be tried.
func base64OffsetVariants(pattern string) []string {
	startTrim := [3]int{0, 2, 3}
	endTrim := [3]int{0, 3, 2}

	variants := make([]string, 3)
	for i := 0; i < 3; i++ {
		padded := make([]byte, i, i+len(pattern))
		padded = append(padded, []byte(pattern)...)
		encoded := base64.StdEncoding.EncodeToString(padded)

		start := startTrim[i]
		end := len(encoded) - endTrim[len(padded)%3]
		if start > len(encoded) {
			start = len(encoded)
		}
		if end < start {
			end = start
		}
		variants[i] = encoded[start:end]
	}
	return variants
}
