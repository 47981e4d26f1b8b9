// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

// Package redact masks credentials in free-form text before it is persisted,
// served or filed. Action stderr and upstream API errors are the usual
// carriers.
package redact

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

// Placeholder replaces every masked region.
const Placeholder = "[REDACTED]"

// Rule is a named credential pattern.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Match is one masked region. Location and Length are byte offsets into
// the normalized text.
type Match struct {
	Rule     string
	Location int
	Length   int
}

// Redactor applies a fixed rule set.
type Redactor struct {
	rules []Rule
}

// New validates rules and returns a Redactor.
func New(rules []Rule) (*Redactor, error) {
	for i, r := range rules {
		if r.Name == "" {
			return nil, pgerr.Errorf(pgerr.CodeRedactRuleInvalid, "rule %d has empty name", i)
		}
		if r.Pattern == nil {
			return nil, pgerr.Errorf(pgerr.CodeRedactRuleInvalid, "rule %d (%s) has nil pattern", i, r.Name)
		}
	}
	return &Redactor{rules: rules}, nil
}

// Compile turns operator-supplied expressions into rules named custom_N.
func Compile(patterns []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, pgerr.Wrap(err, pgerr.CodeRedactRuleInvalid, "compiling redaction pattern",
				pgerr.Field("index", i), pgerr.Field("pattern", p))
		}
		rules = append(rules, Rule{Name: fmt.Sprintf("custom_%d", i), Pattern: re})
	}
	return rules, nil
}

// WithDefaults returns a Redactor using the built-in rules plus extra
// patterns.
func WithDefaults(extra []string) (*Redactor, error) {
	custom, err := Compile(extra)
	if err != nil {
		return nil, err
	}
	return New(slices.Concat(DefaultRules(), custom))
}

// Default is the built-in Redactor.
var Default = sync.OnceValue(func() *Redactor {
	r, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return r
})

// invisible strips zero-width and formatting characters that would split a
// token and defeat the patterns.
var invisible = strings.NewReplacer(
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\ufeff", "",
	"\u00ad", "",
	"\u2060", "",
)

func normalize(s string) string {
	return norm.NFKC.String(invisible.Replace(s))
}

// Find normalizes s and reports every match against it.
func (r *Redactor) Find(s string) (string, []Match) {
	s = normalize(s)
	var matches []Match
	for _, rule := range r.rules {
		for _, loc := range rule.Pattern.FindAllStringIndex(s, -1) {
			matches = append(matches, Match{Rule: rule.Name, Location: loc[0], Length: loc[1] - loc[0]})
		}
	}
	return s, matches
}

// String returns s with every match replaced by Placeholder. Text without
// matches is returned unchanged, not normalized.
func (r *Redactor) String(s string) string {
	if r == nil || s == "" {
		return s
	}
	normalized, matches := r.Find(s)
	if len(matches) == 0 {
		return s
	}
	return mask(normalized, matches)
}

// mask replaces matched regions, merging overlaps.
func mask(s string, matches []Match) string {
	sorted := slices.Clone(matches)
	slices.SortFunc(sorted, func(a, b Match) int { return a.Location - b.Location })

	type span struct{ start, end int }
	spans := []span{{sorted[0].Location, sorted[0].Location + sorted[0].Length}}
	for _, m := range sorted[1:] {
		last := &spans[len(spans)-1]
		end := m.Location + m.Length
		if m.Location <= last.end {
			last.end = max(last.end, end)
			continue
		}
		spans = append(spans, span{m.Location, end})
	}

	var b strings.Builder
	b.Grow(len(s))
	pos := 0
	for _, sp := range spans {
		b.WriteString(s[pos:sp.start])
		b.WriteString(Placeholder)
		pos = min(sp.end, len(s))
	}
	b.WriteString(s[pos:])
	return b.String()
}
