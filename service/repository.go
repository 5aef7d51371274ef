package service

import (
	"context"

	"github.com/AnTengye/contractrisk/model"
)

// ContractRepository stores contracts with their risk clauses and deadlines.
// Children are owned by their contract and deleted with it.
type ContractRepository interface {
	Create(ctx context.Context, c *model.Contract) error
	Get(ctx context.Context, id string) (*model.Contract, error)
	// List returns one page ordered by upload time, newest first, and the
	// number of contracts matching the filter.
	List(ctx context.Context, filter model.ContractFilter, limit, offset int) ([]*model.Contract, int, error)
	Delete(ctx context.Context, id string) error

	RiskClauses(ctx context.Context, contractID string) ([]model.RiskClause, error)
	// Deadlines are ordered by date, undated entries last
	Deadlines(ctx context.Context, contractID string) ([]model.Deadline, error)

	MarkAnalyzing(ctx context.Context, id string) error
	ResetAnalysis(ctx context.Context, id string) error
	SaveAnalysis(ctx context.Context, id string, a *model.Analysis) error
	// Unfinished lists contracts whose analysis has not completed, oldest first
	Unfinished(ctx context.Context) ([]*model.Contract, error)

	Stats(ctx context.Context, tenant string) (*model.Stats, error)
}
