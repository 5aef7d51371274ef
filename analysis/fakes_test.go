package analysis

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AnTengye/contractrisk/model"
)

// memStore keeps contracts and their children in maps, one mutex per write
type memStore struct {
	mu        sync.Mutex
	contracts map[string]*model.Contract
	clauses   map[string][]model.RiskClause
	deadlines map[string][]model.Deadline
	saves     int
	saveErr   error
	failOnce  bool
}

func newMemStore(contracts ...*model.Contract) *memStore {
	s := &memStore{
		contracts: make(map[string]*model.Contract),
		clauses:   make(map[string][]model.RiskClause),
		deadlines: make(map[string][]model.Deadline),
	}
	for _, c := range contracts {
		s.contracts[c.ID] = c
	}
	return s
}

func (s *memStore) Get(ctx context.Context, id string) (*model.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, model.ContractNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) MarkAnalyzing(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return model.ContractNotFound(id)
	}
	c.Status = model.StatusAnalyzing
	return nil
}

func (s *memStore) ResetAnalysis(ctx context.Context, id string) error {
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

func (s *memStore) SaveAnalysis(ctx context.Context, id string, a *model.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveErr; err != nil {
		if s.failOnce {
			s.saveErr = nil
		}
		return err
	}
	c, ok := s.contracts[id]
	if !ok {
		return model.ContractNotFound(id)
	}
	a.Apply(c)
	s.clauses[id] = append([]model.RiskClause(nil), a.RiskClauses...)
	s.deadlines[id] = append([]model.Deadline(nil), a.Deadlines...)
	s.saves++
	return nil
}

func (s *memStore) Unfinished(ctx context.Context) ([]*model.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Contract
	for _, c := range s.contracts {
		if !c.Analyzed {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) children(id string) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clauses[id]), len(s.deadlines[id])
}

func (s *memStore) contract(id string) model.Contract {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.contracts[id]
}

// scriptedClient returns queued responses in order, repeating the last one
type scriptedClient struct {
	mu        sync.Mutex
	responses []Response
	calls     int
	delay     time.Duration
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	panicMsg  string
}

func (c *scriptedClient) Analyze(ctx context.Context, text string) Response {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		m := c.maxFlight.Load()
		if n <= m || c.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}

	if c.panicMsg != "" {
		panic(c.panicMsg)
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	c.calls++
	return c.responses[i]
}

func textResponse(s string) Response { return Response{Text: s} }
