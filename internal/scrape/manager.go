// Package scrape runs long bulk-collection jobs against the court search
// API: page through a filtered search, feed every page into the ingest
// worker, and expose monotone progress that survives polling.
package scrape

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"pravnyk/internal/adapters"
	"pravnyk/internal/ingest"
	"pravnyk/internal/logging"
	"pravnyk/internal/types"
)

// State is the lifecycle of one job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// maxErrorDetails caps the per-job error log; older entries roll off.
const maxErrorDetails = 100

// Searcher pages through court search results.
type Searcher interface {
	Search(ctx context.Context, params adapters.SearchParams) (*adapters.SearchPage, error)
}

// Ingestor consumes one page of document ids.
type Ingestor interface {
	IngestBatch(ctx context.Context, externalIDs []string) ingest.Report
	QueueDepth() int64
}

// Progress is the wire shape of a job's advancement. Values only ever
// grow, so repeated polls never observe regress.
type Progress struct {
	Processed   int     `json:"processed"`
	Total       int     `json:"total"`
	Errors      int     `json:"errors"`
	ProgressPct float64 `json:"progress_pct"`
}

// Job is one bulk collection run.
type Job struct {
	ID        string               `json:"id"`
	Params    adapters.SearchParams `json:"-"`
	State     State                `json:"state"`
	Progress  Progress             `json:"progress"`
	Error     string               `json:"error,omitempty"`
	Details   []string             `json:"error_details,omitempty"`
	StartedAt time.Time            `json:"started_at"`
	EndedAt   time.Time            `json:"ended_at,omitempty"`

	cancel context.CancelFunc
	done   chan struct{}
}

// Options tunes the manager.
type Options struct {
	PageSize      int           // search page size, default 50
	ThrottleDepth int64         // pause paging while the ingest queue is this deep, default 8
	PollInterval  time.Duration // throttle re-check interval, default 500ms
	SearchRate    rate.Limit    // search requests per second across all jobs, default 2
}

// Manager owns all scrape jobs.
type Manager struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	searcher Searcher
	ingestor Ingestor
	limiter  *rate.Limiter
	opts     Options
}

// NewManager builds a manager over the given search and ingest backends.
func NewManager(searcher Searcher, ingestor Ingestor, opts Options) *Manager {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.ThrottleDepth <= 0 {
		opts.ThrottleDepth = 8
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.SearchRate <= 0 {
		opts.SearchRate = 2
	}
	return &Manager{
		jobs:     make(map[string]*Job),
		searcher: searcher,
		ingestor: ingestor,
		limiter:  rate.NewLimiter(opts.SearchRate, 1),
		opts:     opts,
	}
}

// Start launches a new job and returns its initial snapshot.
func (m *Manager) Start(ctx context.Context, params adapters.SearchParams) (*Job, error) {
	const op = "scrape.Start"
	if m.searcher == nil || m.ingestor == nil {
		return nil, types.E(types.KindUnavailable, op, "scrape backends not configured")
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:        uuid.NewString(),
		Params:    params,
		State:     StateQueued,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	logging.Scrape("job %s queued (text=%q)", job.ID, params.Text)
	go m.run(jobCtx, job)

	return m.snapshot(job.ID), nil
}

// run pages through the search one page at a time, never holding more
// than a page of references in memory, and hands each page to the ingest
// worker.
func (m *Manager) run(ctx context.Context, job *Job) {
	defer close(job.done)
	defer job.cancel()

	m.update(job.ID, func(j *Job) { j.State = StateRunning })

	params := job.Params
	params.Limit = m.opts.PageSize

	for page := 1; ; page++ {
		if err := m.throttle(ctx); err != nil {
			m.fail(job.ID, err)
			return
		}
		if err := m.limiter.Wait(ctx); err != nil {
			m.fail(job.ID, err)
			return
		}

		params.Page = page
		result, err := m.searcher.Search(ctx, params)
		if err != nil {
			m.fail(job.ID, fmt.Errorf("search page %d: %w", page, err))
			return
		}

		ids := make([]string, 0, len(result.Items))
		for _, item := range result.Items {
			ids = append(ids, item.ID.String())
		}
		// Page references are dropped after this batch; only counters
		// survive.
		report := m.ingestor.IngestBatch(ctx, ids)

		m.update(job.ID, func(j *Job) {
			j.Progress.Processed += report.Processed + report.Cached
			j.Progress.Errors += report.Errors
			if result.Total > j.Progress.Total {
				j.Progress.Total = result.Total
			}
			j.Progress.ProgressPct = pct(j.Progress.Processed+j.Progress.Errors, j.Progress.Total)
			for _, detail := range report.ErrorDetails {
				j.Details = append(j.Details, detail)
				if len(j.Details) > maxErrorDetails {
					j.Details = j.Details[len(j.Details)-maxErrorDetails:]
				}
			}
		})

		if ctx.Err() != nil {
			m.fail(job.ID, ctx.Err())
			return
		}
		if len(result.Items) == 0 || (result.Pages > 0 && page >= result.Pages) {
			break
		}
	}

	m.update(job.ID, func(j *Job) {
		j.State = StateCompleted
		j.Progress.ProgressPct = 100
		j.EndedAt = time.Now()
	})
	logging.Scrape("job %s completed: %d processed, %d errors",
		job.ID, m.snapshot(job.ID).Progress.Processed, m.snapshot(job.ID).Progress.Errors)
}

// throttle waits while the ingest queue sits at or above the configured
// depth, so a scrape never starves interactive ingests.
func (m *Manager) throttle(ctx context.Context) error {
	for m.ingestor.QueueDepth() >= m.opts.ThrottleDepth {
		logging.Scrape("ingest queue depth %d, pausing scrape", m.ingestor.QueueDepth())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.opts.PollInterval):
		}
	}
	return nil
}

// Cancel requests cooperative cancellation. The job transitions to
// failed once its current page finishes.
func (m *Manager) Cancel(id string) bool {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	job.cancel()
	logging.Scrape("job %s cancellation requested", id)
	return true
}

// Get returns a snapshot of the job, or nil.
func (m *Manager) Get(id string) *Job {
	return m.snapshot(id)
}

// List returns snapshots of all jobs, newest first.
func (m *Manager) List() []*Job {
	m.mu.RLock()
	ids := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	out := make([]*Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.snapshot(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Wait blocks until the job finishes or ctx expires. Used by the CLI and
// by tests.
func (m *Manager) Wait(ctx context.Context, id string) error {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return types.E(types.KindNotFound, "scrape.Wait", "unknown job: "+id)
	}
	select {
	case <-job.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) fail(id string, err error) {
	m.update(id, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndedAt = time.Now()
	})
	logging.Scrape("job %s failed: %v", id, err)
}

func (m *Manager) update(id string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		fn(job)
	}
}

// snapshot copies the job under the lock so callers never race the
// runner.
func (m *Manager) snapshot(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	cp := *job
	cp.Details = append([]string(nil), job.Details...)
	cp.cancel = nil
	return &cp
}

func pct(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(done) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return p
}
