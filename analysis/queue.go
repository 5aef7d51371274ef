package analysis

import (
	"context"

	"github.com/AnTengye/contractrisk/config"
	"github.com/AnTengye/contractrisk/model"
	"github.com/AnTengye/contractrisk/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// JobKind selects the analyzer entry point
type JobKind string

const (
	JobAnalyze   JobKind = "analyze"
	JobReanalyze JobKind = "reanalyze"
)

// Job asks for one contract to be analyzed
type Job struct {
	Kind       JobKind
	ContractID string
}

// Runner executes jobs. *Analyzer implements it.
type Runner interface {
	Analyze(ctx context.Context, id string) error
	Reanalyze(ctx context.Context, id string) error
}

// Scheduler accepts analysis jobs. Async reports whether Submit returns
// before the job has run.
type Scheduler interface {
	Submit(ctx context.Context, job Job) error
	Async() bool
}

func runJob(ctx context.Context, r Runner, job Job) error {
	if job.Kind == JobReanalyze {
		return r.Reanalyze(ctx, job.ContractID)
	}
	return r.Analyze(ctx, job.ContractID)
}

// Inline runs each job in the caller's goroutine
type Inline struct {
	runner Runner
}

func NewInline(runner Runner) *Inline {
	return &Inline{runner: runner}
}

func (i *Inline) Submit(ctx context.Context, job Job) error {
	return runJob(ctx, i.runner, job)
}

func (i *Inline) Async() bool { return false }

// Queue hands jobs to a fixed pool of workers over a bounded channel
type Queue struct {
	runner  Runner
	jobs    chan Job
	workers int
}

func NewQueue(runner Runner, cfg *config.AnalysisConfig) *Queue {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	size := cfg.QueueSize
	if size < 0 {
		size = 0
	}
	return &Queue{
		runner:  runner,
		jobs:    make(chan Job, size),
		workers: workers,
	}
}

// Submit blocks until the job is queued or ctx is done
func (q *Queue) Submit(ctx context.Context, job Job) error {
	select {
	case q.jobs <- job:
		queueDepth.Inc()
		logger.Debug(ctx, "analysis job queued", "contract_id", job.ContractID, "kind", job.Kind)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Async() bool { return true }

// Run processes jobs until ctx is cancelled. Queued jobs left behind are
// recovered by Resume on the next start.
func (q *Queue) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			q.work(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			queueDepth.Dec()
			if err := runJob(ctx, q.runner, job); err != nil {
				logger.Error(ctx, "analysis job failed",
					"contract_id", job.ContractID,
					"kind", job.Kind,
					"error", err,
				)
			}
		}
	}
}

// UnfinishedLister finds contracts whose analysis never completed
type UnfinishedLister interface {
	Unfinished(ctx context.Context) ([]*model.Contract, error)
}

// Resume queues every unfinished contract and returns how many were queued
func Resume(ctx context.Context, s Scheduler, store UnfinishedLister) (int, error) {
	contracts, err := store.Unfinished(ctx)
	if err != nil {
		return 0, err
	}
	for i, c := range contracts {
		if err := s.Submit(ctx, Job{Kind: JobAnalyze, ContractID: c.ID}); err != nil {
			return i, err
		}
	}
	if len(contracts) > 0 {
		logger.Info(ctx, "resumed unfinished analyses", "count", len(contracts))
	}
	return len(contracts), nil
}
