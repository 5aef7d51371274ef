package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/AnTengye/contractrisk/middleware"
	"github.com/AnTengye/contractrisk/model"
	"github.com/AnTengye/contractrisk/pkg/logger"
	"github.com/AnTengye/contractrisk/service"
	"github.com/gin-gonic/gin"
)

// ContractService is the contract lifecycle the handler drives.
// *service.UploadService implements it.
type ContractService interface {
	Upload(ctx context.Context, req service.UploadRequest) (*model.Contract, error)
	Get(ctx context.Context, tenant, id string) (*model.Contract, error)
	Reanalyze(ctx context.Context, tenant, id string) error
	Delete(ctx context.Context, tenant, id string) error
	Async() bool
}

type ContractHandler struct {
	contracts ContractService
	repo      service.ContractRepository
	maxBytes  int64
}

func NewContractHandler(contracts ContractService, repo service.ContractRepository, maxBytes int64) *ContractHandler {
	return &ContractHandler{
		contracts: contracts,
		repo:      repo,
		maxBytes:  maxBytes,
	}
}

// multipartOverhead is the room left for form fields around the file
const multipartOverhead = 1 << 20

// Upload handles contract file upload
func (h *ContractHandler) Upload(c *gin.Context) {
	tenant := middleware.GetTenant(c)

	// Refuse bodies far above the limit before parsing them
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Il file non può superare i %dMB", h.maxBytes/(1024*1024))})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nessun file fornito"})
		return
	}
	defer file.Close()

	contract, err := h.contracts.Upload(c.Request.Context(), service.UploadRequest{
		Tenant:   tenant,
		Title:    c.PostForm("title"),
		Filename: header.Filename,
		Size:     header.Size,
		Body:     file,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if h.contracts.Async() {
		status = http.StatusAccepted
	}
	c.JSON(status, summarize(contract))
}

// List returns one page of the tenant's contracts, newest first.
// Query: type, risk, page.
func (h *ContractHandler) List(c *gin.Context) {
	filter := model.ContractFilter{
		Tenant:       middleware.GetTenant(c),
		ContractType: model.ContractType(c.Query("type")),
		RiskLevel:    model.RiskLevel(c.Query("risk")),
	}

	// An invalid page number shows the first page
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	ctx := c.Request.Context()
	contracts, total, err := h.repo.List(ctx, filter, model.PageSize, (page-1)*model.PageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	totalPages := (total + model.PageSize - 1) / model.PageSize
	if totalPages == 0 {
		totalPages = 1
	}
	// A page past the end shows the last page
	if page > totalPages {
		page = totalPages
		contracts, total, err = h.repo.List(ctx, filter, model.PageSize, (page-1)*model.PageSize)
		if err != nil {
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"contracts":   summarizeAll(contracts),
		"total":       total,
		"page":        page,
		"page_size":   model.PageSize,
		"total_pages": totalPages,
	})
}

// Get returns a contract with its risk clauses and deadlines
func (h *ContractHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	contract, err := h.contracts.Get(ctx, middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	clauses, err := h.repo.RiskClauses(ctx, contract.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	deadlines, err := h.repo.Deadlines(ctx, contract.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ContractDetail{
		Contract:          contract,
		ContractTypeLabel: contract.ContractType.Label(),
		RiskLevelLabel:    contract.RiskLevel.Label(),
		RiskClauses:       clauses,
		Deadlines:         deadlines,
	})
}

// GetStatus returns the analysis status of a contract
func (h *ContractHandler) GetStatus(c *gin.Context) {
	contract, err := h.contracts.Get(c.Request.Context(), middleware.GetTenant(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":            contract.ID,
		"status":        contract.Status,
		"analyzed":      contract.Analyzed,
		"analysis_date": contract.AnalysisDate,
		"risk_level":    contract.RiskLevel,
	})
}

// Reanalyze discards the current analysis and runs it again.
// Answers {"status": "success"|"error", "message": ...}.
func (h *ContractHandler) Reanalyze(c *gin.Context) {
	id := c.Param("id")

	err := h.contracts.Reanalyze(c.Request.Context(), middleware.GetTenant(c), id)
	if err != nil {
		c.Error(err) //nolint:errcheck
		status, msg := classify(err)
		if status == http.StatusInternalServerError {
			msg = "Errore durante la rianalisi: " + err.Error()
		}
		logger.Warn(c.Request.Context(), "reanalysis failed", "contract_id", id, "error", err)
		c.JSON(status, gin.H{"status": "error", "message": msg})
		return
	}

	msg := "Rianalisi completata"
	if h.contracts.Async() {
		msg = "Rianalisi avviata"
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": msg})
}

// ReanalyzeNotAllowed answers the reanalyze URL for methods other than POST
func (h *ContractHandler) ReanalyzeNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"status": "error", "message": "Metodo non consentito"})
}

// Delete removes a contract, its analysis and its stored file
func (h *ContractHandler) Delete(c *gin.Context) {
	if err := h.contracts.Delete(c.Request.Context(), middleware.GetTenant(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contratto eliminato"})
}

// Stats returns the dashboard counters of the tenant
func (h *ContractHandler) Stats(c *gin.Context) {
	stats, err := h.repo.Stats(c.Request.Context(), middleware.GetTenant(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatsResponse{
		Total:    stats.Total,
		Analyzed: stats.Analyzed,
		HighRisk: stats.HighRisk,
		Recent:   summarizeAll(stats.Recent),
	})
}
