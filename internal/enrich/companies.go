package enrich

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"MedMonitor/internal/domain"
	"MedMonitor/internal/ports"
)

const (
	defaultMatchThreshold   = 0.90
	defaultPartialThreshold = 0.85

	minKeywordHits = 2

	minSegmentRunes = 2
	maxSegmentRunes = 24
)

// LoadCompanies reads the company reference dataset, a JSON document of the
// form {"companies": [...]}. It fails fast on entries without a canonical
// name; the dataset is read-only for the lifetime of a run.
func LoadCompanies(path string) ([]domain.CompanyEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read company dataset %s: %w", path, err)
	}

	var payload struct {
		Companies []domain.CompanyEntry `json:"companies"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse company dataset %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(payload.Companies))
	for i, entry := range payload.Companies {
		if strings.TrimSpace(entry.Name) == "" {
			return nil, fmt.Errorf("company dataset %s: entry %d: missing canonical name", path, i)
		}
		if _, ok := seen[entry.Name]; ok {
			return nil, fmt.Errorf("company dataset %s: duplicate canonical name %q", path, entry.Name)
		}
		seen[entry.Name] = struct{}{}
	}
	return payload.Companies, nil
}

// MatcherOptions tunes the fuzzy strategies and the global blacklist.
type MatcherOptions struct {
	MatchThreshold   float64
	PartialThreshold float64
	Blacklist        []string
}

// Matcher resolves canonical company names mentioned in record text using a
// fixed strategy pipeline: manual override, metadata hints, exact name,
// alias, keyword association, fuzzy. The first strategy to find a company
// wins for that company; distinct companies from different strategies are
// all kept. Safe for concurrent use once constructed.
type Matcher struct {
	entries []domain.CompanyEntry
	byKey   map[string]string // lowered name/english name/alias -> canonical
	opts    MatcherOptions

	exact   *metrics.JaroWinkler
	partial *metrics.SorensenDice
}

var _ ports.CompanyMatcher = (*Matcher)(nil)

// NewMatcher indexes the dataset for lookup. Zero thresholds fall back to
// the defaults (~0.90 exact-style, ~0.85 partial).
func NewMatcher(entries []domain.CompanyEntry, opts MatcherOptions) *Matcher {
	if opts.MatchThreshold <= 0 {
		opts.MatchThreshold = defaultMatchThreshold
	}
	if opts.PartialThreshold <= 0 {
		opts.PartialThreshold = defaultPartialThreshold
	}

	byKey := map[string]string{}
	for _, entry := range entries {
		byKey[strings.ToLower(entry.Name)] = entry.Name
		if entry.EnglishName != "" {
			byKey[strings.ToLower(entry.EnglishName)] = entry.Name
		}
		for _, alias := range entry.Aliases {
			if alias != "" {
				byKey[strings.ToLower(alias)] = entry.Name
			}
		}
	}

	return &Matcher{
		entries: entries,
		byKey:   byKey,
		opts:    opts,
		exact:   metrics.NewJaroWinkler(),
		partial: metrics.NewSorensenDice(),
	}
}

// Canonical resolves an identifier (name, english name, or alias) to the
// canonical company name.
func (m *Matcher) Canonical(name string) (string, bool) {
	canonical, ok := m.byKey[strings.ToLower(strings.TrimSpace(name))]
	return canonical, ok
}

// Match returns the deduplicated, strategy-priority-ordered list of canonical
// company names found in the record text. An explicit companies_override in
// metadata bypasses all matching for the record.
func (m *Matcher) Match(title, summary, content string, metadata map[string]any) []string {
	if override := metaStrings(metadata, domain.MetaCompaniesOverride); len(override) > 0 {
		return m.normalize(override)
	}

	combined := strings.ToLower(strings.Join([]string{title, summary, content}, " "))
	if strings.TrimSpace(combined) == "" && len(metaStrings(metadata, domain.MetaCompanyHints)) == 0 {
		return nil
	}

	var ordered []found
	seen := map[string]struct{}{}
	add := func(name, matchedText string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		ordered = append(ordered, found{name: name, text: matchedText})
	}

	// Metadata hints, validated against the dataset.
	for _, hint := range metaStrings(metadata, domain.MetaCompanyHints) {
		if canonical, ok := m.Canonical(hint); ok {
			add(canonical, hint)
		}
	}

	// Exact canonical (and english) name substrings.
	for _, entry := range m.entries {
		if containsTerm(combined, entry.Name) || containsTerm(combined, entry.EnglishName) {
			add(entry.Name, entry.Name)
		}
	}

	// Alias substrings.
	for _, entry := range m.entries {
		for _, alias := range entry.Aliases {
			if containsTerm(combined, alias) {
				add(entry.Name, alias)
				break
			}
		}
	}

	// Keyword association; single-keyword matches are suppressed to bound
	// false positives.
	for _, entry := range m.entries {
		hits := 0
		first := ""
		for _, keyword := range entry.Keywords {
			if containsTerm(combined, keyword) {
				if first == "" {
					first = keyword
				}
				hits++
			}
		}
		if hits >= minKeywordHits {
			add(entry.Name, first)
		}
	}

	// Fuzzy, the least precise signal, only for companies nothing else found.
	segments := segmentText(combined)
	for _, entry := range m.entries {
		if _, ok := seen[entry.Name]; ok {
			continue
		}
		if segment, ok := m.fuzzyHit(segments, entry); ok {
			add(entry.Name, segment)
		}
	}

	return m.applyBlacklists(ordered, metadata)
}

type found struct {
	name string
	text string
}

func (m *Matcher) fuzzyHit(segments []string, entry domain.CompanyEntry) (string, bool) {
	terms := make([]string, 0, 2+len(entry.Aliases))
	terms = append(terms, strings.ToLower(entry.Name))
	if entry.EnglishName != "" {
		terms = append(terms, strings.ToLower(entry.EnglishName))
	}
	for _, alias := range entry.Aliases {
		terms = append(terms, strings.ToLower(alias))
	}

	for _, segment := range segments {
		for _, term := range terms {
			if strutil.Similarity(segment, term, m.exact) >= m.opts.MatchThreshold {
				return segment, true
			}
			if strutil.Similarity(segment, term, m.partial) >= m.opts.PartialThreshold {
				return segment, true
			}
		}
	}
	return "", false
}

// applyBlacklists suppresses matches last, regardless of which strategy
// produced them.
func (m *Matcher) applyBlacklists(ordered []found, metadata map[string]any) []string {
	nameBlacklist := map[string]struct{}{}
	for _, entry := range metaStrings(metadata, domain.MetaCompanyBlacklist) {
		name := entry
		if canonical, ok := m.Canonical(entry); ok {
			name = canonical
		}
		nameBlacklist[name] = struct{}{}
	}

	terms := append([]string{}, m.opts.Blacklist...)
	terms = append(terms, metaStrings(metadata, domain.MetaCompanyBlacklistTerms)...)

	names := make([]string, 0, len(ordered))
	for _, match := range ordered {
		if _, ok := nameBlacklist[match.name]; ok {
			continue
		}
		if textBlacklisted(match.text, terms) {
			continue
		}
		names = append(names, match.name)
	}
	return names
}

func (m *Matcher) normalize(names []string) []string {
	out := make([]string, 0, len(names))
	seen := map[string]struct{}{}
	for _, name := range names {
		canonical := strings.TrimSpace(name)
		if canonical == "" {
			continue
		}
		if resolved, ok := m.Canonical(canonical); ok {
			canonical = resolved
		}
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

func containsTerm(loweredText, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(loweredText, strings.ToLower(term))
}

func textBlacklisted(text string, terms []string) bool {
	lowered := strings.ToLower(text)
	for _, term := range terms {
		if term != "" && strings.Contains(lowered, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// segmentText splits text into fuzzy-match candidates on punctuation and
// whitespace, keeping segments of a sane length.
func segmentText(lowered string) []string {
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	segments := make([]string, 0, len(fields))
	for _, field := range fields {
		runes := len([]rune(field))
		if runes >= minSegmentRunes && runes <= maxSegmentRunes {
			segments = append(segments, field)
		}
	}
	return segments
}

// metaStrings reads a []string-ish metadata value tolerantly.
func metaStrings(metadata map[string]any, key string) []string {
	if metadata == nil {
		return nil
	}
	switch value := metadata[key].(type) {
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if value != "" {
			return []string{value}
		}
	}
	return nil
}
