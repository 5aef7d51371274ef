package model

import "strings"

// ContractType classifies a contract
type ContractType string

const (
	TypePurchase    ContractType = "purchase"
	TypeService     ContractType = "service"
	TypeEmployment  ContractType = "employment"
	TypeRental      ContractType = "rental"
	TypeNDA         ContractType = "nda"
	TypePartnership ContractType = "partnership"
	TypeLicense     ContractType = "license"
	TypeOther       ContractType = "other"
)

var contractTypeLabels = map[ContractType]string{
	TypePurchase:    "Contratto di Compravendita",
	TypeService:     "Contratto di Servizio",
	TypeEmployment:  "Contratto di Lavoro",
	TypeRental:      "Contratto di Locazione",
	TypeNDA:         "Accordo di Riservatezza",
	TypePartnership: "Contratto di Partnership",
	TypeLicense:     "Contratto di Licenza",
	TypeOther:       "Altro",
}

// ContractTypes lists every contract type in display order
var ContractTypes = []ContractType{
	TypePurchase, TypeService, TypeEmployment, TypeRental,
	TypeNDA, TypePartnership, TypeLicense, TypeOther,
}

// Valid reports whether t is a known contract type
func (t ContractType) Valid() bool {
	_, ok := contractTypeLabels[t]
	return ok
}

// Label returns the display label, or the raw value for unknown types
func (t ContractType) Label() string {
	if l, ok := contractTypeLabels[t]; ok {
		return l
	}
	return string(t)
}

// RiskLevel is the aggregate risk of a contract
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevels lists every risk level from lowest to highest
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

var riskLabels = map[RiskLevel]string{
	RiskLow:      "Basso",
	RiskMedium:   "Medio",
	RiskHigh:     "Alto",
	RiskCritical: "Critico",
}

// Valid reports whether l is a known risk level
func (l RiskLevel) Valid() bool {
	_, ok := riskLabels[l]
	return ok
}

// Label returns the display label
func (l RiskLevel) Label() string {
	if lbl, ok := riskLabels[l]; ok {
		return lbl
	}
	return string(l)
}

// Severity of a single risk clause. Shares the risk level scale.
type Severity = RiskLevel

// ParseSeverity matches s case-insensitively against the severity scale.
func ParseSeverity(s string) (Severity, bool) {
	l := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	return l, l.Valid()
}

// IsHigh reports whether the severity counts toward the aggregate risk level
func IsHigh(s Severity) bool {
	return s == RiskHigh || s == RiskCritical
}
