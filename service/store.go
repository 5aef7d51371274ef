package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/AnTengye/contractrisk/config"
	"github.com/AnTengye/contractrisk/model"
	"github.com/google/uuid"
)

// ContractStore is an in-memory ContractRepository.
// Every read returns copies, every write happens under one lock.
type ContractStore struct {
	contracts    map[string]*model.Contract
	clauses      map[string][]model.RiskClause
	deadlines    map[string][]model.Deadline
	mu           sync.RWMutex
	maxContracts int // Maximum contracts to keep, 0 = unlimited
	onEvict      func(*model.Contract)
}

// NewContractStore creates a store that keeps at most cfg.MaxContracts contracts
func NewContractStore(cfg *config.StoreConfig) *ContractStore {
	maxContracts := cfg.MaxContracts
	if maxContracts < 0 {
		maxContracts = 0
	}
	slog.Info("contract store initialized", "driver", "memory", "max_contracts", maxContracts)

	return &ContractStore{
		contracts:    make(map[string]*model.Contract),
		clauses:      make(map[string][]model.RiskClause),
		deadlines:    make(map[string][]model.Deadline),
		maxContracts: maxContracts,
	}
}

// OnEvict registers a callback for contracts dropped by the size limit.
// It runs after the store lock is released.
func (s *ContractStore) OnEvict(fn func(*model.Contract)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = fn
}

func (s *ContractStore) Create(ctx context.Context, c *model.Contract) error {
	s.mu.Lock()
	cp := *c
	s.contracts[c.ID] = &cp
	evicted := s.cleanupIfNeeded()
	hook := s.onEvict
	s.mu.Unlock()

	if hook != nil {
		for _, e := range evicted {
			hook(e)
		}
	}
	return nil
}

func (s *ContractStore) Get(ctx context.Context, id string) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, model.ContractNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (s *ContractStore) List(ctx context.Context, filter model.ContractFilter, limit, offset int) ([]*model.Contract, int, error) {
	s.mu.RLock()
	var matched []*model.Contract
	for _, c := range s.contracts {
		if filter.Matches(c) {
			cp := *c
			matched = append(matched, &cp)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)

	total := len(matched)
	if offset >= total {
		return []*model.Contract{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func (s *ContractStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[id]; !ok {
		return model.ContractNotFound(id)
	}
	s.deleteLocked(id)
	return nil
}

func (s *ContractStore) RiskClauses(ctx context.Context, contractID string) ([]model.RiskClause, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.contracts[contractID]; !ok {
		return nil, model.ContractNotFound(contractID)
	}
	return append([]model.RiskClause{}, s.clauses[contractID]...), nil
}

func (s *ContractStore) Deadlines(ctx context.Context, contractID string) ([]model.Deadline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.contracts[contractID]; !ok {
		return nil, model.ContractNotFound(contractID)
	}
	return append([]model.Deadline{}, s.deadlines[contractID]...), nil
}

func (s *ContractStore) MarkAnalyzing(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return model.ContractNotFound(id)
	}
	c.Status = model.StatusAnalyzing
	return nil
}

func (s *ContractStore) ResetAnalysis(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return model.ContractNotFound(id)
	}
	model.ResetAnalysis(c)
	delete(s.clauses, id)
	delete(s.deadlines, id)
	return nil
}

func (s *ContractStore) SaveAnalysis(ctx context.Context, id string, a *model.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contracts[id]
	if !ok {
		return model.ContractNotFound(id)
	}

	clauses := make([]model.RiskClause, len(a.RiskClauses))
	for i, rc := range a.RiskClauses {
		rc.ID = uuid.New().String()
		rc.ContractID = id
		clauses[i] = rc
	}
	deadlines := make([]model.Deadline, len(a.Deadlines))
	for i, d := range a.Deadlines {
		d.ID = uuid.New().String()
		d.ContractID = id
		deadlines[i] = d
	}
	sortDeadlines(deadlines)

	a.Apply(c)
	s.clauses[id] = clauses
	s.deadlines[id] = deadlines
	return nil
}

func (s *ContractStore) Unfinished(ctx context.Context) ([]*model.Contract, error) {
	s.mu.RLock()
	var result []*model.Contract
	for _, c := range s.contracts {
		if !c.Analyzed {
			cp := *c
			result = append(result, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].UploadedAt.Before(result[j].UploadedAt)
	})
	return result, nil
}

func (s *ContractStore) Stats(ctx context.Context, tenant string) (*model.Stats, error) {
	s.mu.RLock()
	stats := &model.Stats{}
	var owned []*model.Contract
	for _, c := range s.contracts {
		if c.Tenant != tenant {
			continue
		}
		stats.Total++
		if c.Analyzed {
			stats.Analyzed++
		}
		if model.IsHigh(c.RiskLevel) {
			stats.HighRisk++
		}
		cp := *c
		owned = append(owned, &cp)
	}
	s.mu.RUnlock()

	sortNewestFirst(owned)
	if len(owned) > model.RecentLimit {
		owned = owned[:model.RecentLimit]
	}
	stats.Recent = owned
	return stats, nil
}

// Count returns the number of contracts in the store
func (s *ContractStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contracts)
}

// deleteLocked must be called with lock held
func (s *ContractStore) deleteLocked(id string) {
	delete(s.contracts, id)
	delete(s.clauses, id)
	delete(s.deadlines, id)
}

// cleanupIfNeeded removes oldest contracts if store exceeds maxContracts
// Must be called with lock held
func (s *ContractStore) cleanupIfNeeded() []*model.Contract {
	if s.maxContracts <= 0 || len(s.contracts) <= s.maxContracts {
		return nil
	}

	contracts := make([]*model.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		contracts = append(contracts, c)
	}
	sort.Slice(contracts, func(i, j int) bool {
		return contracts[i].UploadedAt.Before(contracts[j].UploadedAt)
	})

	removeCount := len(contracts) - s.maxContracts
	evicted := contracts[:removeCount]
	for _, c := range evicted {
		slog.Info("auto-cleaning old contract",
			"contract_id", c.ID,
			"uploaded_at", c.UploadedAt,
		)
		s.deleteLocked(c.ID)
	}
	return evicted
}

func sortNewestFirst(contracts []*model.Contract) {
	sort.SliceStable(contracts, func(i, j int) bool {
		if contracts[i].UploadedAt.Equal(contracts[j].UploadedAt) {
			return contracts[i].ID > contracts[j].ID
		}
		return contracts[i].UploadedAt.After(contracts[j].UploadedAt)
	})
}

func sortDeadlines(deadlines []model.Deadline) {
	sort.SliceStable(deadlines, func(i, j int) bool {
		a, b := deadlines[i].Date, deadlines[j].Date
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
}
