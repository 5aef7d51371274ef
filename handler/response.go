package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AnTengye/contractrisk/extract"
	"github.com/AnTengye/contractrisk/model"
	"github.com/gin-gonic/gin"
)

// ContractSummary is the list view of a contract, without text or raw analysis
type ContractSummary struct {
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	Filename          string             `json:"filename"`
	UploadedAt        time.Time          `json:"uploaded_at"`
	Status            string             `json:"status"`
	Analyzed          bool               `json:"analyzed"`
	AnalysisDate      *time.Time         `json:"analysis_date,omitempty"`
	ContractType      model.ContractType `json:"contract_type"`
	ContractTypeLabel string             `json:"contract_type_label"`
	RiskLevel         model.RiskLevel    `json:"risk_level"`
	RiskLevelLabel    string             `json:"risk_level_label"`
}

func summarize(c *model.Contract) ContractSummary {
	return ContractSummary{
		ID:                c.ID,
		Title:             c.Title,
		Filename:          c.Filename,
		UploadedAt:        c.UploadedAt,
		Status:            c.Status,
		Analyzed:          c.Analyzed,
		AnalysisDate:      c.AnalysisDate,
		ContractType:      c.ContractType,
		ContractTypeLabel: c.ContractType.Label(),
		RiskLevel:         c.RiskLevel,
		RiskLevelLabel:    c.RiskLevel.Label(),
	}
}

func summarizeAll(contracts []*model.Contract) []ContractSummary {
	result := make([]ContractSummary, len(contracts))
	for i, c := range contracts {
		result[i] = summarize(c)
	}
	return result
}

// ContractDetail is a contract with everything its analysis produced
type ContractDetail struct {
	*model.Contract
	ContractTypeLabel string             `json:"contract_type_label"`
	RiskLevelLabel    string             `json:"risk_level_label"`
	RiskClauses       []model.RiskClause `json:"risk_clauses"`
	Deadlines         []model.Deadline   `json:"deadlines"`
}

// StatsResponse summarizes the tenant's contracts
type StatsResponse struct {
	Total    int               `json:"total_contracts"`
	Analyzed int               `json:"analyzed_contracts"`
	HighRisk int               `json:"high_risk_contracts"`
	Recent   []ContractSummary `json:"recent_contracts"`
}

const (
	msgNotFound    = "Contratto non trovato"
	msgUnsupported = "Sono supportati solo file PDF e DOCX"
	msgExtraction  = "Errore nell'elaborazione del file"
)

// respondError maps domain errors to a status and a {"error": msg} body
func respondError(c *gin.Context, err error) {
	c.Error(err) //nolint:errcheck // recorded for the access log

	status, msg := classify(err)
	c.JSON(status, gin.H{"error": msg})
}

func classify(err error) (int, string) {
	var (
		httpErr    model.HTTPError
		formatErr  *extract.UnsupportedFormatError
		extractErr *extract.ExtractionError
	)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.As(err, &formatErr):
		return http.StatusUnsupportedMediaType, unsupportedMessage(formatErr.Ext)
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, msgUnsupported
	case errors.As(err, &extractErr) && extractErr.Cause != nil:
		return http.StatusUnprocessableEntity, msgExtraction + ": " + extractErr.Cause.Error()
	case errors.Is(err, extract.ErrExtraction):
		return http.StatusUnprocessableEntity, msgExtraction
	case errors.As(err, &httpErr):
		return httpErr.StatusCode(), httpErr.Error()
	default:
		return http.StatusInternalServerError, "Errore interno del server"
	}
}

func unsupportedMessage(ext string) string {
	if ext == "" {
		return msgUnsupported + " (file senza estensione)"
	}
	return fmt.Sprintf("%s (ricevuto %s)", msgUnsupported, ext)
}
