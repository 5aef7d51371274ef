package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AnTengye/contractrisk/model"
	"github.com/AnTengye/contractrisk/pkg/logger"
)

// ErrMissingText is the pipeline failure for a contract with no extracted text
var ErrMissingText = errors.New("Testo non disponibile per l'analisi")

// Store is the persistence the analyzer needs
type Store interface {
	Get(ctx context.Context, id string) (*model.Contract, error)
	MarkAnalyzing(ctx context.Context, id string) error
	// ResetAnalysis deletes every child and clears the analysis fields in one write
	ResetAnalysis(ctx context.Context, id string) error
	// SaveAnalysis writes fields and children and marks the contract analyzed in one write
	SaveAnalysis(ctx context.Context, id string, a *model.Analysis) error
}

// AIClient produces a provider response for a contract text
type AIClient interface {
	Analyze(ctx context.Context, text string) Response
}

// Analyzer runs the analysis pipeline for stored contracts
type Analyzer struct {
	store  Store
	client AIClient
	locks  *keyedMutex
	now    func() time.Time
}

func NewAnalyzer(store Store, client AIClient) *Analyzer {
	return &Analyzer{
		store:  store,
		client: client,
		locks:  newKeyedMutex(),
		now:    time.Now,
	}
}

// Analyze runs the pipeline for one contract. Pipeline failures end in a
// degraded analyzed record; only a missing contract or a storage failure
// is returned.
func (a *Analyzer) Analyze(ctx context.Context, id string) error {
	unlock := a.locks.Lock(id)
	defer unlock()

	ctx = logger.WithContract(ctx, id)
	if err := a.store.MarkAnalyzing(ctx, id); err != nil {
		return err
	}
	return a.run(ctx, id)
}

// Reanalyze discards the previous result and analyzes again
func (a *Analyzer) Reanalyze(ctx context.Context, id string) error {
	unlock := a.locks.Lock(id)
	defer unlock()

	ctx = logger.WithContract(ctx, id)
	if err := a.store.ResetAnalysis(ctx, id); err != nil {
		return err
	}
	logger.Info(ctx, "analysis reset")
	return a.run(ctx, id)
}

func (a *Analyzer) run(ctx context.Context, id string) error {
	contract, err := a.store.Get(ctx, id)
	if err != nil {
		return err
	}

	start := time.Now()
	analysis, outcome := a.pipeline(ctx, contract)

	// shutting down: leave the contract unfinished so it is picked up again
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := a.store.SaveAnalysis(ctx, id, analysis); err != nil {
		err = fmt.Errorf("failed to save analysis: %w", err)
		// one attempt to leave the contract in a terminal state
		if derr := a.store.SaveAnalysis(ctx, id, a.degraded(ctx, err)); derr != nil {
			logger.Error(ctx, "failed to save degraded analysis", "error", derr)
		} else {
			analysesTotal.WithLabelValues(outcomeFailed).Inc()
		}
		return err
	}
	analysesTotal.WithLabelValues(outcome).Inc()

	logger.Info(ctx, "analysis completed",
		"outcome", outcome,
		"contract_type", analysis.ContractType,
		"risk_level", analysis.RiskLevel,
		"risk_clauses", len(analysis.RiskClauses),
		"deadlines", len(analysis.Deadlines),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (a *Analyzer) pipeline(ctx context.Context, contract *model.Contract) (analysis *model.Analysis, outcome string) {
	defer func() {
		if r := recover(); r != nil {
			analysis, outcome = a.degraded(ctx, fmt.Errorf("panic: %v", r)), outcomeFailed
		}
	}()

	if strings.TrimSpace(contract.ExtractedText) == "" {
		return a.degraded(ctx, ErrMissingText), outcomeFailed
	}

	resp := a.client.Analyze(ctx, contract.ExtractedText)
	analysis, parsed := BuildAnalysis(contract.ExtractedText, resp, a.now())
	if !parsed {
		logger.Warn(ctx, "AI response not usable, using defaults", "provider_failed", !resp.OK())
		return analysis, outcomeFallback
	}
	return analysis, outcomeParsed
}

func (a *Analyzer) degraded(ctx context.Context, cause error) *model.Analysis {
	logger.Error(ctx, "analysis failed", "error", cause)
	return &model.Analysis{
		ContractType: model.TypeOther,
		RiskLevel:    model.RiskMedium,
		AIAnalysis:   "Errore nell'analisi automatica: " + cause.Error(),
		AnalyzedAt:   a.now(),
	}
}
