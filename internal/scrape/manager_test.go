package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"pravnyk/internal/adapters"
	"pravnyk/internal/ingest"
)

// go.opencensus.io starts a background worker in package init; goleak's
// documentation recommends ignoring it.
var ignoreOpenCensus = goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start")

// fakeSearcher serves a fixed corpus of ids in pages.
type fakeSearcher struct {
	ids      []string
	pageSize int
	fail     map[int]error // page -> error
	calls    atomic.Int32
}

func (f *fakeSearcher) Search(ctx context.Context, params adapters.SearchParams) (*adapters.SearchPage, error) {
	f.calls.Add(1)
	if err := f.fail[params.Page]; err != nil {
		return nil, err
	}
	start := (params.Page - 1) * f.pageSize
	end := start + f.pageSize
	if start > len(f.ids) {
		start = len(f.ids)
	}
	if end > len(f.ids) {
		end = len(f.ids)
	}
	page := &adapters.SearchPage{
		Total: len(f.ids),
		Page:  params.Page,
		Pages: (len(f.ids) + f.pageSize - 1) / f.pageSize,
	}
	for _, id := range f.ids[start:end] {
		page.Items = append(page.Items, adapters.SearchItem{ID: json.Number(id)})
	}
	return page, nil
}

// fakeIngestor records every batch and can simulate per-id failures and
// queue pressure.
type fakeIngestor struct {
	mu      sync.Mutex
	batches [][]string
	failIDs map[string]bool
	depth   atomic.Int64
	block   chan struct{} // when set, IngestBatch waits here once
}

func (f *fakeIngestor) QueueDepth() int64 { return f.depth.Load() }

func (f *fakeIngestor) IngestBatch(ctx context.Context, ids []string) ingest.Report {
	if f.block != nil {
		<-f.block
		f.block = nil
	}
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), ids...))
	f.mu.Unlock()

	var report ingest.Report
	for _, id := range ids {
		if f.failIDs[id] {
			report.Errors++
			report.ErrorDetails = append(report.ErrorDetails, id+": fetch failed")
		} else {
			report.Processed++
		}
	}
	return report
}

func waitForJob(t *testing.T, m *Manager, id string) *Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Wait(ctx, id); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return m.Get(id)
}

func TestScrapeJobLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	ids := make([]string, 7)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d", 1000+i)
	}
	searcher := &fakeSearcher{ids: ids, pageSize: 3}
	ingestor := &fakeIngestor{}
	m := NewManager(searcher, ingestor, Options{PageSize: 3})

	job, err := m.Start(context.Background(), adapters.SearchParams{Text: "споживач"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	final := waitForJob(t, m, job.ID)
	if final.State != StateCompleted {
		t.Fatalf("state = %s, want completed", final.State)
	}
	if final.Progress.Processed != 7 || final.Progress.Total != 7 {
		t.Fatalf("progress = %+v", final.Progress)
	}
	if final.Progress.ProgressPct != 100 {
		t.Fatalf("progress_pct = %v", final.Progress.ProgressPct)
	}
	if got := searcher.calls.Load(); got != 3 {
		t.Fatalf("search calls = %d, want 3 pages", got)
	}

	ingestor.mu.Lock()
	defer ingestor.mu.Unlock()
	if len(ingestor.batches) != 3 {
		t.Fatalf("batches = %d, want one per page", len(ingestor.batches))
	}
}

func TestScrapeJobRecordsErrors(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	searcher := &fakeSearcher{ids: []string{"1", "2", "3"}, pageSize: 3}
	ingestor := &fakeIngestor{failIDs: map[string]bool{"2": true}}
	m := NewManager(searcher, ingestor, Options{PageSize: 3})

	job, _ := m.Start(context.Background(), adapters.SearchParams{})
	final := waitForJob(t, m, job.ID)

	if final.State != StateCompleted {
		t.Fatalf("state = %s", final.State)
	}
	if final.Progress.Processed != 2 || final.Progress.Errors != 1 {
		t.Fatalf("progress = %+v", final.Progress)
	}
	if len(final.Details) != 1 {
		t.Fatalf("details = %v", final.Details)
	}
}

func TestScrapeJobSearchFailure(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	searcher := &fakeSearcher{
		ids:      []string{"1", "2", "3", "4"},
		pageSize: 2,
		fail:     map[int]error{2: fmt.Errorf("upstream 500")},
	}
	m := NewManager(searcher, &fakeIngestor{}, Options{PageSize: 2})

	job, _ := m.Start(context.Background(), adapters.SearchParams{})
	final := waitForJob(t, m, job.ID)

	if final.State != StateFailed {
		t.Fatalf("state = %s, want failed", final.State)
	}
	if final.Error == "" {
		t.Fatal("failed job must carry an error message")
	}
	// The first page still counted before the failure.
	if final.Progress.Processed != 2 {
		t.Fatalf("progress = %+v", final.Progress)
	}
}

func TestScrapeJobCancel(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d", i)
	}
	block := make(chan struct{})
	searcher := &fakeSearcher{ids: ids, pageSize: 10}
	ingestor := &fakeIngestor{block: block}
	m := NewManager(searcher, ingestor, Options{PageSize: 10})

	job, _ := m.Start(context.Background(), adapters.SearchParams{})

	if !m.Cancel(job.ID) {
		t.Fatal("Cancel returned false for a live job")
	}
	close(block)

	final := waitForJob(t, m, job.ID)
	if final.State != StateFailed {
		t.Fatalf("state = %s, want failed after cancel", final.State)
	}
	if m.Cancel("no-such-job") {
		t.Fatal("Cancel must return false for unknown jobs")
	}
}

func TestScrapeThrottlesOnQueueDepth(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	searcher := &fakeSearcher{ids: []string{"1", "2"}, pageSize: 2}
	ingestor := &fakeIngestor{}
	ingestor.depth.Store(10) // above the threshold

	m := NewManager(searcher, ingestor, Options{
		PageSize:      2,
		ThrottleDepth: 8,
		PollInterval:  10 * time.Millisecond,
	})

	job, _ := m.Start(context.Background(), adapters.SearchParams{})

	// While the queue stays deep, the job keeps waiting.
	time.Sleep(50 * time.Millisecond)
	if got := m.Get(job.ID).State; got != StateRunning {
		t.Fatalf("state = %s, want running while throttled", got)
	}
	if searcher.calls.Load() != 0 {
		t.Fatal("search must not run while throttled")
	}

	ingestor.depth.Store(0)
	final := waitForJob(t, m, job.ID)
	if final.State != StateCompleted {
		t.Fatalf("state = %s", final.State)
	}
}

func TestProgressMonotone(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	ids := make([]string, 30)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d", i)
	}
	searcher := &fakeSearcher{ids: ids, pageSize: 5}
	m := NewManager(searcher, &fakeIngestor{}, Options{PageSize: 5})

	job, _ := m.Start(context.Background(), adapters.SearchParams{})

	var last Progress
	deadline := time.After(5 * time.Second)
	for {
		snap := m.Get(job.ID)
		if snap.Progress.Processed < last.Processed || snap.Progress.ProgressPct < last.ProgressPct {
			t.Fatalf("progress went backwards: %+v after %+v", snap.Progress, last)
		}
		last = snap.Progress
		if snap.State == StateCompleted || snap.State == StateFailed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job did not finish")
		case <-time.After(time.Millisecond):
		}
	}
	if last.Processed != 30 {
		t.Fatalf("processed = %d", last.Processed)
	}
}
