package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AnTengye/contractrisk/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu   sync.Mutex
	jobs []Job
	done chan struct{}
}

func newRecordingRunner(expected int) *recordingRunner {
	return &recordingRunner{done: make(chan struct{}, expected)}
}

func (r *recordingRunner) record(job Job) error {
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordingRunner) Analyze(ctx context.Context, id string) error {
	return r.record(Job{Kind: JobAnalyze, ContractID: id})
}

func (r *recordingRunner) Reanalyze(ctx context.Context, id string) error {
	return r.record(Job{Kind: JobReanalyze, ContractID: id})
}

func waitJobs(t *testing.T, r *recordingRunner, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for job %d", i+1)
		}
	}
}

func TestQueueRunsSubmittedJobs(t *testing.T) {
	runner := newRecordingRunner(2)
	q := NewQueue(runner, &config.AnalysisConfig{Workers: 2, QueueSize: 4})
	require.True(t, q.Async())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- q.Run(ctx) }()

	require.NoError(t, q.Submit(ctx, Job{Kind: JobAnalyze, ContractID: "c1"}))
	require.NoError(t, q.Submit(ctx, Job{Kind: JobReanalyze, ContractID: "c2"}))
	waitJobs(t, runner, 2)

	cancel()
	assert.NoError(t, <-errc)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.ElementsMatch(t, []Job{
		{Kind: JobAnalyze, ContractID: "c1"},
		{Kind: JobReanalyze, ContractID: "c2"},
	}, runner.jobs)
}

func TestQueueSubmitHonoursContext(t *testing.T) {
	q := NewQueue(newRecordingRunner(0), &config.AnalysisConfig{Workers: 1, QueueSize: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Submit(ctx, Job{Kind: JobAnalyze, ContractID: "c1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInlineRunsImmediately(t *testing.T) {
	runner := newRecordingRunner(1)
	s := NewInline(runner)
	require.False(t, s.Async())

	require.NoError(t, s.Submit(context.Background(), Job{Kind: JobReanalyze, ContractID: "c9"}))
	assert.Equal(t, []Job{{Kind: JobReanalyze, ContractID: "c9"}}, runner.jobs)
}

func TestResume(t *testing.T) {
	store := newMemStore(newContract("c1", "a"), newContract("c2", "b"))
	done := newContract("c3", "c")
	done.Analyzed = true
	store.contracts["c3"] = done

	runner := newRecordingRunner(2)
	n, err := Resume(context.Background(), NewInline(runner), store)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []Job{
		{Kind: JobAnalyze, ContractID: "c1"},
		{Kind: JobAnalyze, ContractID: "c2"},
	}, runner.jobs)
}
