package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"MedMonitor/internal/domain"
)

func TestClassifyMetadataOverride(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)
	metadata := map[string]any{domain.MetaCategoryOverride: "财报"}

	got := c.Classify("nmpa-approvals", "获批公告", "", "", metadata)
	assert.Equal(t, domain.CategoryFinancialReports, got,
		"override synonym beats source and keyword rules")
}

func TestClassifyInvalidOverrideFallsThrough(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)
	metadata := map[string]any{domain.MetaCategoryOverride: "not-a-category"}

	got := c.Classify("nmpa-approvals", "", "", "", metadata)
	assert.Equal(t, domain.CategoryProductLaunches, got)
}

func TestClassifySourceRuleBeatsKeywords(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)

	got := c.Classify("cninfo-announcements", "某公司中标集中采购项目", "", "", nil)
	assert.Equal(t, domain.CategoryFinancialReports, got,
		"source identity outranks textual cues")
}

func TestClassifyKeywordRules(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)

	cases := []struct {
		title string
		want  domain.Category
	}{
		{"2026年第一季度财报发布", domain.CategoryFinancialReports},
		{"新型分析仪获批上市", domain.CategoryProductLaunches},
		{"省际联盟带量采购结果公示", domain.CategoryProcurement},
		{"医保支付方式改革推进", domain.CategoryReimbursement},
		{"临床检验指南更新", domain.CategoryHealthCommission},
		{"体外诊断行业深度解析", domain.CategoryIndustryMedia},
	}
	for _, tc := range cases {
		got := c.Classify("generic-news", tc.title, "", "", nil)
		assert.Equal(t, tc.want, got, "title: %s", tc.title)
	}
}

func TestClassifyTitleOutweighsContent(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)

	got := c.Classify("generic-news", "公司年报摘要", "", "正文提到招标与采购细节", nil)
	assert.Equal(t, domain.CategoryFinancialReports, got,
		"a title match must short-circuit content inspection")
}

func TestClassifyContentOnlyMatch(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)

	got := c.Classify("generic-news", "今日公告", "", "详见中标结果与投标名单", nil)
	assert.Equal(t, domain.CategoryProcurement, got)
}

func TestClassifyUnknownDefault(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)

	got := c.Classify("generic-news", "天气预报", "", "", nil)
	assert.Equal(t, domain.CategoryUnknown, got)
}

func TestClassifyCustomRulesTakePrecedence(t *testing.T) {
	t.Parallel()

	c := NewClassifier(&RuleSet{
		Sources: map[string]domain.Category{
			"cninfo": domain.CategoryIndustryMedia,
		},
		Keywords: map[domain.Category][]string{
			domain.CategoryHealthCommission: {`专项整治`},
		},
	})

	bySource := c.Classify("cninfo-announcements", "", "", "", nil)
	assert.Equal(t, domain.CategoryIndustryMedia, bySource)

	byKeyword := c.Classify("generic-news", "检验试剂专项整治启动", "", "", nil)
	assert.Equal(t, domain.CategoryHealthCommission, byKeyword)
}

func TestNormalizeCategory(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)

	got, ok := c.NormalizeCategory("  Medical Insurance ")
	assert.True(t, ok)
	assert.Equal(t, domain.CategoryReimbursement, got)

	got, ok = c.NormalizeCategory("procurement")
	assert.True(t, ok)
	assert.Equal(t, domain.CategoryProcurement, got)

	_, ok = c.NormalizeCategory("nonsense")
	assert.False(t, ok)
}
