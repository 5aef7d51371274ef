package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/AnTengye/contractrisk/analysis"
	"github.com/AnTengye/contractrisk/extract"
	"github.com/AnTengye/contractrisk/model"
	"github.com/AnTengye/contractrisk/pkg/logger"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// MaxTitleLength is the longest accepted contract title, in characters
const MaxTitleLength = 200

// TextExtractor turns a stored file into text. *extract.Extractor implements it.
type TextExtractor interface {
	Extract(ctx context.Context, key string) (string, error)
}

// UploadRequest is one contract submitted for analysis
type UploadRequest struct {
	Tenant   string
	Title    string
	Filename string
	Size     int64
	Body     io.Reader
}

// UploadService takes contracts in, and owns their lifecycle afterwards
type UploadService struct {
	repo      ContractRepository
	files     FileStorage
	extractor TextExtractor
	scheduler analysis.Scheduler
	maxBytes  int64
	now       func() time.Time
}

func NewUploadService(repo ContractRepository, files FileStorage, extractor TextExtractor, scheduler analysis.Scheduler, maxBytes int64) *UploadService {
	return &UploadService{
		repo:      repo,
		files:     files,
		extractor: extractor,
		scheduler: scheduler,
		maxBytes:  maxBytes,
		now:       time.Now,
	}
}

// Async reports whether analyses finish after the request returns
func (s *UploadService) Async() bool {
	return s.scheduler.Async()
}

func (s *UploadService) validate(req *UploadRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.Title,
			validation.Required.Error("Il titolo è obbligatorio"),
			validation.By(func(any) error {
				if utf8.RuneCountInString(req.Title) > MaxTitleLength {
					return fmt.Errorf("Il titolo non può superare i %d caratteri", MaxTitleLength)
				}
				return nil
			}),
		),
		validation.Field(&req.Size,
			validation.Required.Error("Il file è vuoto"),
			validation.Max(s.maxBytes).Error(fmt.Sprintf("Il file non può superare i %dMB", s.maxBytes/(1024*1024))),
		),
	)
	if err != nil {
		return model.ValidationFailed(err)
	}

	if _, err := extract.FormatOf(req.Filename); err != nil {
		return err
	}
	return nil
}

// Upload validates, stores and extracts the document, creates the contract
// and submits its first analysis. Nothing is stored when validation or
// extraction fails.
func (s *UploadService) Upload(ctx context.Context, req UploadRequest) (*model.Contract, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	format, _ := extract.FormatOf(req.Filename)
	id := uuid.New().String()
	key := fmt.Sprintf("%s/%s/%s", req.Tenant, id, filepath.Base(req.Filename))

	if err := s.files.Save(ctx, key, req.Body, req.Size, format.ContentType()); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	text, err := s.extractor.Extract(ctx, key)
	if err != nil {
		s.removeFile(ctx, key)
		return nil, err
	}

	contract := &model.Contract{
		ID:            id,
		Tenant:        req.Tenant,
		Title:         req.Title,
		Filename:      filepath.Base(req.Filename),
		FileKey:       key,
		UploadedAt:    s.now(),
		Status:        model.StatusPending,
		ExtractedText: extract.Normalize(text),
	}
	if err := s.repo.Create(ctx, contract); err != nil {
		s.removeFile(ctx, key)
		return nil, fmt.Errorf("failed to create contract: %w", err)
	}
	logger.Info(ctx, "contract uploaded",
		"contract_id", id,
		"format", format,
		"size", req.Size,
		"text_length", utf8.RuneCountInString(contract.ExtractedText),
	)

	// a contract left pending here is picked up by Resume on the next start
	if err := s.submit(ctx, analysis.Job{Kind: analysis.JobAnalyze, ContractID: id}); err != nil {
		logger.Warn(ctx, "analysis not started", "contract_id", id, "error", err)
		return contract, nil
	}
	if s.scheduler.Async() {
		return contract, nil
	}
	return s.repo.Get(ctx, id)
}

// Reanalyze discards the analysis of a tenant's contract and runs it again
func (s *UploadService) Reanalyze(ctx context.Context, tenant, id string) error {
	if _, err := s.owned(ctx, tenant, id); err != nil {
		return err
	}
	return s.submit(ctx, analysis.Job{Kind: analysis.JobReanalyze, ContractID: id})
}

// Delete removes a tenant's contract with its children and stored file
func (s *UploadService) Delete(ctx context.Context, tenant, id string) error {
	contract, err := s.owned(ctx, tenant, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.removeFile(ctx, contract.FileKey)
	logger.Info(ctx, "contract deleted", "contract_id", id)
	return nil
}

// Get returns a tenant's contract. Contracts of other tenants are not found.
func (s *UploadService) Get(ctx context.Context, tenant, id string) (*model.Contract, error) {
	return s.owned(ctx, tenant, id)
}

func (s *UploadService) owned(ctx context.Context, tenant, id string) (*model.Contract, error) {
	contract, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if contract.Tenant != tenant {
		return nil, model.ContractNotFound(id)
	}
	return contract, nil
}

func (s *UploadService) submit(ctx context.Context, job analysis.Job) error {
	if !s.scheduler.Async() {
		// the analysis outlives a client that hangs up mid-request
		ctx = context.WithoutCancel(ctx)
	}
	return s.scheduler.Submit(ctx, job)
}

// RemoveFile deletes a stored file, logging failures. Used for evicted contracts.
func (s *UploadService) RemoveFile(ctx context.Context, key string) {
	s.removeFile(ctx, key)
}

func (s *UploadService) removeFile(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.files.Delete(ctx, key); err != nil {
		logger.Warn(ctx, "failed to delete stored file", "key", key, "error", err)
	}
}
