package enrich

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MedMonitor/internal/domain"
)

func testEntries() []domain.CompanyEntry {
	return []domain.CompanyEntry{
		{
			Name:        "迈瑞医疗",
			EnglishName: "Mindray",
			Aliases:     []string{"深圳迈瑞"},
			Keywords:    []string{"监护仪", "超声设备"},
		},
		{
			Name:        "安图生物",
			EnglishName: "Autobio",
			Keywords:    []string{"化学发光", "免疫诊断"},
		},
		{
			Name:        "新产业生物",
			EnglishName: "Snibe",
		},
	}
}

func newTestMatcher(opts MatcherOptions) *Matcher {
	return NewMatcher(testEntries(), opts)
}

func TestMatchExactName(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(MatcherOptions{})
	got := m.Match("迈瑞医疗发布新款监护仪", "", "", nil)
	assert.Equal(t, []string{"迈瑞医疗"}, got)
}

func TestMatchEnglishNameCaseInsensitive(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(MatcherOptions{})
	got := m.Match("MINDRAY posts record quarterly revenue", "", "", nil)
	assert.Equal(t, []string{"迈瑞医疗"}, got)
}

func TestMatchAlias(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(MatcherOptions{})
	got := m.Match("深圳迈瑞中标省级采购项目", "", "", nil)
	assert.Equal(t, []string{"迈瑞医疗"}, got)
}

func TestMatchKeywordsRequireTwoHits(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(MatcherOptions{})

	one := m.Match("化学发光市场综述", "", "", nil)
	assert.Empty(t, one, "a single keyword hit must not match")

	two := m.Match("化学发光与免疫诊断双线增长", "", "", nil)
	assert.Equal(t, []string{"安图生物"}, two)
}

func TestMatchIsDeterministicAcrossRuns(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(MatcherOptions{})
	text := "安图生物与迈瑞医疗联合发布；Snibe 同日公告"

	first := m.Match(text, "", "", nil)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, m.Match(text, "", "", nil))
	}
	// Dataset order decides ties between same-strategy matches.
	require.Len(t, first, 3)
	assert.Equal(t, []string{"迈瑞医疗", "安图生物", "新产业生物"}, first)
}

func TestMatchHintsValidatedAgainstDataset(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(MatcherOptions{})
	metadata := map[string]any{
		domain.MetaCompanyHints: []any{"autobio", "Unknown Corp"},
	}
	got := m.Match("no mention of anyone", "", "", metadata)
	assert.Equal(t, []string{"安图生物"}, got, "hints resolve via alias table; unknown hints are dropped")
}

func TestMatchOverrideBypassesMatchingAndBlacklists(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(MatcherOptions{Blacklist: []string{"迈瑞"}})
	metadata := map[string]any{
		domain.MetaCompaniesOverride: []any{"mindray", "Unlisted Co", "mindray"},
	}
	got := m.Match("irrelevant text", "", "", metadata)
	assert.Equal(t, []string{"迈瑞医疗", "Unlisted Co"}, got,
		"override entries are canonicalized when known, kept verbatim otherwise, deduplicated")
}

func TestMatchNameBlacklist(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(MatcherOptions{})
	metadata := map[string]any{
		domain.MetaCompanyBlacklist: []any{"mindray"},
	}
	got := m.Match("迈瑞医疗与安图生物同台竞标", "", "", metadata)
	assert.Equal(t, []string{"安图生物"}, got, "blacklist entries resolve to canonical names")
}

func TestMatchTermBlacklistSuppressesMatchedText(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(MatcherOptions{Blacklist: []string{"深圳迈瑞"}})
	got := m.Match("深圳迈瑞公告", "", "", nil)
	assert.Empty(t, got, "a blacklisted matched-text term suppresses the match")
}

func TestMatchFuzzyOnlyForUnseenCompanies(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(MatcherOptions{MatchThreshold: 0.85})
	got := m.Match("mindrey announces new analyzer line", "", "", nil)
	assert.Equal(t, []string{"迈瑞医疗"}, got, "a near-miss segment should fuzzy-match the english name")
}

func TestMatchEmptyTextNoMetadata(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(MatcherOptions{})
	assert.Empty(t, m.Match("", "", "", nil))
}

func TestLoadCompanies(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "companies.json")
	payload := `{"companies":[
		{"name":"迈瑞医疗","english_name":"Mindray","aliases":["深圳迈瑞"]},
		{"name":"安图生物"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	entries, err := LoadCompanies(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "迈瑞医疗", entries[0].Name)
	assert.Equal(t, []string{"深圳迈瑞"}, entries[0].Aliases)
}

func TestLoadCompaniesFailsFast(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	missingName := filepath.Join(dir, "missing.json")
	require.NoError(t, os.WriteFile(missingName, []byte(`{"companies":[{"english_name":"X"}]}`), 0o600))
	_, err := LoadCompanies(missingName)
	assert.ErrorContains(t, err, "missing canonical name")

	duplicate := filepath.Join(dir, "dup.json")
	require.NoError(t, os.WriteFile(duplicate, []byte(`{"companies":[{"name":"A"},{"name":"A"}]}`), 0o600))
	_, err = LoadCompanies(duplicate)
	assert.ErrorContains(t, err, "duplicate canonical name")

	_, err = LoadCompanies(filepath.Join(dir, "absent.json"))
	assert.Error(t, err)
}
