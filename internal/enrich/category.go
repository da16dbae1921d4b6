package enrich

import (
	"regexp"
	"sort"
	"strings"

	"MedMonitor/internal/domain"
	"MedMonitor/internal/ports"
)

// RuleSet is a custom classification rule bundle merged with (and taking
// precedence over) the built-in defaults at construction time.
type RuleSet struct {
	Sources  map[string]domain.Category
	Keywords map[domain.Category][]string
}

type keywordRule struct {
	category domain.Category
	patterns []*regexp.Regexp
}

// Classifier assigns a digest category per record: metadata override first,
// then source rules, then ordered keyword rules with title/summary inspected
// before content, `unknown` when nothing matches. Safe for concurrent use.
type Classifier struct {
	sourceRules  []sourceRule
	keywordRules []keywordRule
	synonyms     map[string]domain.Category
}

type sourceRule struct {
	pattern  string
	category domain.Category
}

var _ ports.Classifier = (*Classifier)(nil)

// Category evaluation order for keyword rules.
var categoryOrder = []domain.Category{
	domain.CategoryFinancialReports,
	domain.CategoryProductLaunches,
	domain.CategoryProcurement,
	domain.CategoryReimbursement,
	domain.CategoryHealthCommission,
	domain.CategoryIndustryMedia,
}

var builtinSourceRules = []sourceRule{
	{"cninfo", domain.CategoryFinancialReports},
	{"eastmoney", domain.CategoryFinancialReports},
	{"巨潮", domain.CategoryFinancialReports},
	{"financial", domain.CategoryFinancialReports},
	{"investor", domain.CategoryFinancialReports},
	{"nmpa", domain.CategoryProductLaunches},
	{"approval", domain.CategoryProductLaunches},
	{"nhsa", domain.CategoryReimbursement},
	{"医保", domain.CategoryReimbursement},
	{"nhc", domain.CategoryHealthCommission},
	{"卫健委", domain.CategoryHealthCommission},
	{"procurement", domain.CategoryProcurement},
	{"tender", domain.CategoryProcurement},
	{"招标", domain.CategoryProcurement},
	{"采购", domain.CategoryProcurement},
}

var builtinKeywordRules = map[domain.Category][]string{
	domain.CategoryFinancialReports: {
		`财报|年报|季报|业绩|营收|净利`,
		`财务报告|股东大会|投资者`,
		`financial\s+report|earnings|revenue|profit`,
	},
	domain.CategoryProductLaunches: {
		`获批|批准|注册证|NMPA|FDA`,
		`上市|新品|产品发布`,
		`launch|approval|clearance`,
	},
	domain.CategoryProcurement: {
		`招标|中标|投标|采购`,
		`集采|集中采购|带量采购`,
		`bidding|tender|procurement`,
	},
	domain.CategoryReimbursement: {
		`医保局|医疗保障局`,
		`医保.*目录|医保.*支付|医保.*谈判`,
		`DRG|DIP|reimbursement|medical\s+insurance`,
	},
	domain.CategoryHealthCommission: {
		`卫健委|卫生健康委`,
		`临床.*指南|诊疗.*规范|技术.*标准`,
		`health\s+commission|public\s+health`,
	},
	domain.CategoryIndustryMedia: {
		`行业.*分析|市场.*分析|趋势`,
		`专家.*解读|深度.*解析`,
		`industry\s+(analysis|report|news)`,
	},
}

// Synonyms accepted in metadata category overrides, normalized to the
// canonical enum values.
var categorySynonyms = map[string]domain.Category{
	"financial": domain.CategoryFinancialReports, "finance": domain.CategoryFinancialReports,
	"financial report": domain.CategoryFinancialReports, "财报": domain.CategoryFinancialReports,
	"财务": domain.CategoryFinancialReports, "业绩": domain.CategoryFinancialReports,
	"product": domain.CategoryProductLaunches, "launch": domain.CategoryProductLaunches,
	"approval": domain.CategoryProductLaunches, "产品上市": domain.CategoryProductLaunches,
	"获批": domain.CategoryProductLaunches,
	"bidding": domain.CategoryProcurement, "tender": domain.CategoryProcurement,
	"招标": domain.CategoryProcurement, "集中采购": domain.CategoryProcurement,
	"nhsa": domain.CategoryReimbursement, "medical insurance": domain.CategoryReimbursement,
	"医保": domain.CategoryReimbursement, "医保政策": domain.CategoryReimbursement,
	"nhc": domain.CategoryHealthCommission, "health commission": domain.CategoryHealthCommission,
	"卫健委": domain.CategoryHealthCommission,
	"industry": domain.CategoryIndustryMedia, "media": domain.CategoryIndustryMedia,
	"行业媒体": domain.CategoryIndustryMedia,
}

// NewClassifier compiles the rule tables. Custom rules, when supplied, are
// evaluated before the built-ins.
func NewClassifier(custom *RuleSet) *Classifier {
	c := &Classifier{synonyms: buildSynonyms()}

	if custom != nil {
		for pattern, category := range custom.Sources {
			c.sourceRules = append(c.sourceRules, sourceRule{strings.ToLower(pattern), category})
		}
		sortSourceRules(c.sourceRules)
	}
	c.sourceRules = append(c.sourceRules, builtinSourceRules...)

	if custom != nil {
		for _, category := range categoryOrder {
			if patterns, ok := custom.Keywords[category]; ok {
				c.keywordRules = append(c.keywordRules, compileRule(category, patterns))
			}
		}
	}
	for _, category := range categoryOrder {
		c.keywordRules = append(c.keywordRules, compileRule(category, builtinKeywordRules[category]))
	}

	return c
}

// Classify resolves the category for one record.
func (c *Classifier) Classify(sourceID string, title, summary, content string, metadata map[string]any) domain.Category {
	if override := metaString(metadata, domain.MetaCategoryOverride); override != "" {
		if category, ok := c.NormalizeCategory(override); ok {
			return category
		}
	}

	loweredSource := strings.ToLower(sourceID)
	for _, rule := range c.sourceRules {
		if strings.Contains(loweredSource, rule.pattern) {
			return rule.category
		}
	}

	// Title and summary weigh before content: a match there short-circuits
	// content inspection entirely.
	head := title + "\n" + summary
	if category, ok := c.matchKeywords(head); ok {
		return category
	}
	if category, ok := c.matchKeywords(content); ok {
		return category
	}

	return domain.CategoryUnknown
}

// NormalizeCategory maps a category string (canonical value or synonym) to
// the closed enum.
func (c *Classifier) NormalizeCategory(value string) (domain.Category, bool) {
	category, ok := c.synonyms[strings.ToLower(strings.TrimSpace(value))]
	return category, ok
}

func (c *Classifier) matchKeywords(text string) (domain.Category, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	for _, rule := range c.keywordRules {
		for _, pattern := range rule.patterns {
			if pattern.MatchString(text) {
				return rule.category, true
			}
		}
	}
	return "", false
}

func compileRule(category domain.Category, patterns []string) keywordRule {
	rule := keywordRule{category: category}
	for _, pattern := range patterns {
		rule.patterns = append(rule.patterns, regexp.MustCompile(`(?i)`+pattern))
	}
	return rule
}

// Custom source rules arrive as a map; a stable order keeps classification
// deterministic when patterns overlap.
func sortSourceRules(rules []sourceRule) {
	sort.Slice(rules, func(i, j int) bool { return rules[i].pattern < rules[j].pattern })
}

func buildSynonyms() map[string]domain.Category {
	synonyms := make(map[string]domain.Category, len(categorySynonyms)+len(categoryOrder)+1)
	for alias, category := range categorySynonyms {
		synonyms[alias] = category
	}
	for _, category := range categoryOrder {
		synonyms[string(category)] = category
	}
	synonyms[string(domain.CategoryUnknown)] = domain.CategoryUnknown
	return synonyms
}

func metaString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if value, ok := metadata[key].(string); ok {
		return value
	}
	return ""
}
