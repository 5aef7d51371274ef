package model

import (
	"time"
)

// PageSize is the number of contracts returned per list page
const PageSize = 10

// Contract represents an uploaded contract and everything derived from analyzing it
type Contract struct {
	ID             string       `json:"id"`
	Tenant         string       `json:"tenant"`
	Title          string       `json:"title"`
	Filename       string       `json:"filename"`
	FileKey        string       `json:"file_key"`
	UploadedAt     time.Time    `json:"uploaded_at"`
	Status         string       `json:"status"` // pending, analyzing, analyzed
	Analyzed       bool         `json:"analyzed"`
	AnalysisDate   *time.Time   `json:"analysis_date,omitempty"`
	ContractType   ContractType `json:"contract_type"`
	Parties        string       `json:"parties"`
	Duration       string       `json:"duration"`
	KeyObligations string       `json:"key_obligations"`
	RiskLevel      RiskLevel    `json:"risk_level"`
	ExtractedText  string       `json:"extracted_text,omitempty"`
	AIAnalysis     string       `json:"ai_analysis,omitempty"`
}

// ContractStatus constants
const (
	StatusPending   = "pending"
	StatusAnalyzing = "analyzing"
	StatusAnalyzed  = "analyzed"
)

// RiskClause is one problematic clause found during an analysis pass
type RiskClause struct {
	ID              string   `json:"id"`
	ContractID      string   `json:"contract_id"`
	ClauseText      string   `json:"clause_text"`
	RiskDescription string   `json:"risk_description"`
	Severity        Severity `json:"severity"`
	Recommendation  string   `json:"recommendation"`
}

// Deadline is one time-sensitive obligation found during an analysis pass
type Deadline struct {
	ID          string     `json:"id"`
	ContractID  string     `json:"contract_id"`
	Description string     `json:"description"`
	Date        *time.Time `json:"date,omitempty"`
	DaysNotice  *int       `json:"days_notice,omitempty"`
}

// Analysis is the outcome of one analysis pass. Storage writes it as a unit.
type Analysis struct {
	ContractType   ContractType
	Parties        string
	Duration       string
	KeyObligations string
	RiskLevel      RiskLevel
	AIAnalysis     string
	AnalyzedAt     time.Time
	RiskClauses    []RiskClause
	Deadlines      []Deadline
}

// Apply copies the analysis fields onto c and marks it analyzed.
func (a *Analysis) Apply(c *Contract) {
	at := a.AnalyzedAt
	c.ContractType = a.ContractType
	c.Parties = a.Parties
	c.Duration = a.Duration
	c.KeyObligations = a.KeyObligations
	c.RiskLevel = a.RiskLevel
	c.AIAnalysis = a.AIAnalysis
	c.Analyzed = true
	c.AnalysisDate = &at
	c.Status = StatusAnalyzed
}

// ResetAnalysis clears every analysis-derived field of c.
func ResetAnalysis(c *Contract) {
	c.Analyzed = false
	c.AnalysisDate = nil
	c.AIAnalysis = ""
	c.Parties = ""
	c.Duration = ""
	c.KeyObligations = ""
	c.RiskLevel = ""
	c.Status = StatusAnalyzing
}

// ContractFilter narrows a contract listing. Empty fields match everything.
type ContractFilter struct {
	Tenant       string
	ContractType ContractType
	RiskLevel    RiskLevel
}

// Matches reports whether c passes the filter
func (f ContractFilter) Matches(c *Contract) bool {
	if f.Tenant != "" && c.Tenant != f.Tenant {
		return false
	}
	if f.ContractType != "" && c.ContractType != f.ContractType {
		return false
	}
	if f.RiskLevel != "" && c.RiskLevel != f.RiskLevel {
		return false
	}
	return true
}

// Stats summarizes the contracts of a tenant
type Stats struct {
	Total    int         `json:"total_contracts"`
	Analyzed int         `json:"analyzed_contracts"`
	HighRisk int         `json:"high_risk_contracts"`
	Recent   []*Contract `json:"recent_contracts"`
}

// RecentLimit is how many contracts Stats.Recent carries
const RecentLimit = 5
