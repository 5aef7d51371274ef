package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AnTengye/contractrisk/model"
)

// ErrResponseParse matches any *ResponseParseError
var ErrResponseParse = errors.New("malformed AI response")

// ResponseParseError is returned when the AI text is not the expected JSON
type ResponseParseError struct {
	Cause error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("malformed AI response: %v", e.Cause)
}

func (e *ResponseParseError) Unwrap() error { return e.Cause }

func (e *ResponseParseError) Is(target error) bool {
	return target == ErrResponseParse
}

// flexString accepts any JSON value. Non-strings keep their compact JSON text.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return err
	}
	*s = flexString(buf.String())
	return nil
}

type rawClause struct {
	Clause         flexString `json:"clause"`
	Risk           flexString `json:"risk"`
	Severity       flexString `json:"severity"`
	Recommendation flexString `json:"recommendation"`
}

type rawDeadline struct {
	Description flexString `json:"description"`
	Timeframe   flexString `json:"timeframe"`
}

// errNotObject rejects JSON null, arrays and scalars where an object is expected
var errNotObject = errors.New("expected a JSON object")

func requireObject(data []byte) error {
	if len(data) == 0 || data[0] != '{' {
		return errNotObject
	}
	return nil
}

func (c *rawClause) UnmarshalJSON(data []byte) error {
	if err := requireObject(bytes.TrimSpace(data)); err != nil {
		return err
	}
	type plain rawClause
	return json.Unmarshal(data, (*plain)(c))
}

func (d *rawDeadline) UnmarshalJSON(data []byte) error {
	if err := requireObject(bytes.TrimSpace(data)); err != nil {
		return err
	}
	type plain rawDeadline
	return json.Unmarshal(data, (*plain)(d))
}

type rawReport struct {
	ContractType   flexString    `json:"contract_type"`
	Parties        flexString    `json:"parties"`
	Duration       flexString    `json:"duration"`
	KeyObligations flexString    `json:"key_obligations"`
	RiskLevel      flexString    `json:"risk_level"`
	RiskClauses    []rawClause   `json:"risk_clauses"`
	Deadlines      []rawDeadline `json:"deadlines"`
	Summary        flexString    `json:"summary"`
}

// Report is the decoded AI assessment. Absent strings are "", and a clause
// severity that is missing or outside the scale is low.
type Report struct {
	ContractType   string
	Parties        string
	Duration       string
	KeyObligations string
	RiskLevel      string
	RiskClauses    []ReportClause
	Deadlines      []ReportDeadline
	Summary        string
}

type ReportClause struct {
	Clause         string
	Risk           string
	Severity       model.Severity
	Recommendation string
}

type ReportDeadline struct {
	Description string
	Timeframe   string
}

// StripFences removes markdown code fences from a response that opens with ```json
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```json") {
		s = strings.ReplaceAll(s, "```json", "")
		s = strings.ReplaceAll(s, "```", "")
		s = strings.TrimSpace(s)
	}
	return s
}

// ParseResponse decodes the AI text into a Report. Anything but a JSON
// object at the top level, null included, is malformed.
func ParseResponse(raw string) (*Report, error) {
	data := []byte(StripFences(raw))
	if err := requireObject(data); err != nil {
		return nil, &ResponseParseError{Cause: err}
	}
	var r rawReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &ResponseParseError{Cause: err}
	}

	report := &Report{
		ContractType:   string(r.ContractType),
		Parties:        string(r.Parties),
		Duration:       string(r.Duration),
		KeyObligations: string(r.KeyObligations),
		RiskLevel:      string(r.RiskLevel),
		Summary:        string(r.Summary),
	}
	for _, c := range r.RiskClauses {
		severity, ok := model.ParseSeverity(string(c.Severity))
		if !ok {
			severity = model.RiskLow
		}
		report.RiskClauses = append(report.RiskClauses, ReportClause{
			Clause:         string(c.Clause),
			Risk:           string(c.Risk),
			Severity:       severity,
			Recommendation: string(c.Recommendation),
		})
	}
	for _, d := range r.Deadlines {
		report.Deadlines = append(report.Deadlines, ReportDeadline{
			Description: string(d.Description),
			Timeframe:   string(d.Timeframe),
		})
	}
	return report, nil
}

// RiskLevelFor derives the aggregate risk from the count of high or critical
// severities: 0 low, 1 medium, 2 high, 3 or more critical.
func RiskLevelFor(severities []model.Severity) model.RiskLevel {
	high := 0
	for _, s := range severities {
		if model.IsHigh(s) {
			high++
		}
	}
	switch {
	case high >= 3:
		return model.RiskCritical
	case high == 2:
		return model.RiskHigh
	case high == 1:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// BuildAnalysis turns a provider response into the record to persist. The
// contract type always comes from ClassifyContract over text. When the
// response is a failure or does not parse, the result has no children and a
// medium risk level, and parsed is false.
func BuildAnalysis(text string, resp Response, at time.Time) (analysis *model.Analysis, parsed bool) {
	analysis = &model.Analysis{
		ContractType: ClassifyContract(text),
		AIAnalysis:   resp.Display(),
		AnalyzedAt:   at,
	}

	if !resp.OK() {
		analysis.RiskLevel = model.RiskMedium
		return analysis, false
	}

	report, err := ParseResponse(resp.Text)
	if err != nil {
		analysis.RiskLevel = model.RiskMedium
		return analysis, false
	}

	analysis.Parties = report.Parties
	analysis.Duration = Truncate(report.Duration, MaxShortField)
	analysis.KeyObligations = report.KeyObligations

	severities := make([]model.Severity, 0, len(report.RiskClauses))
	for _, c := range report.RiskClauses {
		analysis.RiskClauses = append(analysis.RiskClauses, model.RiskClause{
			ClauseText:      c.Clause,
			RiskDescription: c.Risk,
			Severity:        c.Severity,
			Recommendation:  c.Recommendation,
		})
		severities = append(severities, c.Severity)
	}
	for _, d := range report.Deadlines {
		analysis.Deadlines = append(analysis.Deadlines, model.Deadline{
			Description: Truncate(d.Description, MaxShortField),
		})
	}
	analysis.RiskLevel = RiskLevelFor(severities)

	return analysis, true
}

// MaxShortField is the length limit of duration and deadline descriptions
const MaxShortField = 500
