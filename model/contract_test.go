package model

import (
	"errors"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func TestContractStatusConstants(t *testing.T) {
	statuses := []string{StatusPending, StatusAnalyzing, StatusAnalyzed}
	expected := []string{"pending", "analyzing", "analyzed"}

	for i, status := range statuses {
		if status != expected[i] {
			t.Errorf("Expected '%s', got '%s'", expected[i], status)
		}
	}
}

func TestAnalysisApplyAndReset(t *testing.T) {
	contract := &Contract{ID: "c1", Status: StatusPending}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	analysis := &Analysis{
		ContractType:   TypeService,
		Parties:        "Alfa S.r.l. e Beta S.p.A.",
		Duration:       "12 mesi",
		KeyObligations: "Manutenzione",
		RiskLevel:      RiskHigh,
		AIAnalysis:     "{}",
		AnalyzedAt:     at,
	}
	analysis.Apply(contract)

	if !contract.Analyzed || contract.AnalysisDate == nil {
		t.Fatal("Expected contract to be analyzed with a date")
	}
	if !contract.AnalysisDate.Equal(at) {
		t.Errorf("Expected analysis date %v, got %v", at, contract.AnalysisDate)
	}
	if contract.Status != StatusAnalyzed {
		t.Errorf("Expected status %s, got %s", StatusAnalyzed, contract.Status)
	}

	ResetAnalysis(contract)

	if contract.Analyzed || contract.AnalysisDate != nil {
		t.Error("Expected analysis flag and date to be cleared together")
	}
	if contract.RiskLevel != "" || contract.Parties != "" || contract.AIAnalysis != "" {
		t.Error("Expected analysis fields to be cleared")
	}
	if contract.Status != StatusAnalyzing {
		t.Errorf("Expected status %s, got %s", StatusAnalyzing, contract.Status)
	}
}

func TestContractFilterMatches(t *testing.T) {
	c := &Contract{Tenant: "t1", ContractType: TypeRental, RiskLevel: RiskLow}

	tests := []struct {
		name   string
		filter ContractFilter
		want   bool
	}{
		{"empty filter", ContractFilter{}, true},
		{"tenant match", ContractFilter{Tenant: "t1"}, true},
		{"tenant mismatch", ContractFilter{Tenant: "t2"}, false},
		{"type match", ContractFilter{ContractType: TypeRental}, true},
		{"type mismatch", ContractFilter{ContractType: TypeNDA}, false},
		{"risk mismatch", ContractFilter{RiskLevel: RiskHigh}, false},
		{"all match", ContractFilter{Tenant: "t1", ContractType: TypeRental, RiskLevel: RiskLow}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(c); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in    string
		want  Severity
		valid bool
	}{
		{"high", RiskHigh, true},
		{" Critical ", RiskCritical, true},
		{"LOW", RiskLow, true},
		{"severe", "severe", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseSeverity(tt.in)
		if ok != tt.valid || (ok && got != tt.want) {
			t.Errorf("ParseSeverity(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.valid)
		}
	}
}

func TestLabels(t *testing.T) {
	if TypeNDA.Label() != "Accordo di Riservatezza" {
		t.Errorf("Unexpected label %q", TypeNDA.Label())
	}
	if RiskCritical.Label() != "Critico" {
		t.Errorf("Unexpected label %q", RiskCritical.Label())
	}
	if ContractType("unknown").Valid() {
		t.Error("Expected unknown type to be invalid")
	}
}

func TestNotFoundError(t *testing.T) {
	err := ContractNotFound("abc")
	if !errors.Is(err, ErrNotFound) {
		t.Error("Expected errors.Is(err, ErrNotFound)")
	}
	var httpErr HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode() != 404 {
		t.Error("Expected 404 HTTPError")
	}
}

func TestValidationFailed(t *testing.T) {
	err := ValidationFailed(validation.Errors{
		"title": errors.New("Il titolo è obbligatorio"),
		"file":  errors.New("Il file è vuoto"),
	})
	if err.Message != "Il file è vuoto; Il titolo è obbligatorio" {
		t.Errorf("Unexpected message %q", err.Message)
	}
	if !errors.Is(err, ErrValidation) || err.StatusCode() != 400 {
		t.Error("Expected a 400 validation error")
	}

	if plain := ValidationFailed(errors.New("boom")); plain.Message != "boom" {
		t.Errorf("Expected plain error text, got %q", plain.Message)
	}
}
