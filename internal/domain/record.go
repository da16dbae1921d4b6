package domain

import "time"

// SourceType enumerates the upstream source families fed into the pipeline.
type SourceType string

const (
	SourceFinancialReports SourceType = "financial_reports"
	SourceProductLaunches  SourceType = "product_launches"
	SourceReimbursement    SourceType = "reimbursement_policy"
	SourceHealthCommission SourceType = "health_commission_policy"
	SourceProcurement      SourceType = "procurement"
	SourceIndustryMedia    SourceType = "industry_media"
)

// Category is the closed set of digest categories assigned during enrichment.
type Category string

const (
	CategoryFinancialReports Category = "financial_reports"
	CategoryProductLaunches  Category = "product_launches"
	CategoryReimbursement    Category = "reimbursement_policy"
	CategoryHealthCommission Category = "health_commission_policy"
	CategoryProcurement      Category = "procurement"
	CategoryIndustryMedia    Category = "industry_media"
	CategoryUnknown          Category = "unknown"
)

// RawRecord is a single normalized item produced by a source adapter before
// enrichment. URL is always absolute and scheme-qualified; PublishDate, when
// set, is UTC. A zero PublishDate means the source did not provide one.
type RawRecord struct {
	SourceID    string
	SourceType  SourceType
	Title       string
	Summary     string
	ContentHTML string
	URL         string
	PublishDate time.Time
	Region      string
	Metadata    map[string]any
}

// Metadata keys recognized by the enrichment stage.
const (
	MetaCompaniesOverride     = "companies_override"      // []string, bypasses all matching
	MetaCompanyHints          = "company_hints"           // []string, validated candidates
	MetaCompanyBlacklist      = "company_blacklist"       // []string, canonical names to suppress
	MetaCompanyBlacklistTerms = "company_blacklist_terms" // []string, matched-text substrings to suppress
	MetaCategoryOverride      = "category_override"       // string, takes precedence over all rules
)

// EnrichedRecord is a RawRecord annotated with matched companies and a
// category. Constructed once per RawRecord and immutable afterwards.
type EnrichedRecord struct {
	RawRecord
	Companies []string
	Category  Category
	ScrapedAt time.Time
}

// CompanyEntry is reference data describing one company the matcher can
// resolve to. Name is the canonical unique key.
type CompanyEntry struct {
	Name        string   `json:"name"`
	EnglishName string   `json:"english_name,omitempty"`
	ExternalID  string   `json:"external_id,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}
