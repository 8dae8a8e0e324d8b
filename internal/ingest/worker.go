// Package ingest drives the corpus pipeline for court decisions:
// fetch raw text, upsert the document row, extract sections, persist them
// transactionally, embed the reasoning and decision sections, and upsert
// vectors with a denormalized payload. Work runs under a process-wide
// semaphore and every step is upsert-idempotent, so a crashed batch can
// simply be re-run.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"pravnyk/internal/adapters"
	"pravnyk/internal/embedding"
	"pravnyk/internal/logging"
	"pravnyk/internal/sectionizer"
	"pravnyk/internal/store"
	"pravnyk/internal/types"
)

// DefaultConcurrency caps simultaneous document ingests.
const DefaultConcurrency = 10

// minFullTextLength is the idempotency threshold: a stored document with
// more text than this and at least one section is considered ingested.
const minFullTextLength = 100

// CourtSource fetches decision full text; the production implementation
// is the rate-limited search API client.
type CourtSource interface {
	GetFullText(ctx context.Context, docID string) (*adapters.FullText, error)
}

// Embedder produces fixed-dimension vectors for section chunks.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Worker orchestrates per-document ingestion.
type Worker struct {
	meta        *store.MetadataStore
	vectors     *store.VectorStore
	source      CourtSource
	sectionizer *sectionizer.Sectionizer
	embedder    Embedder

	sem           *semaphore.Weighted
	inFlight      atomic.Int64
	embedSections map[types.SectionType]bool
}

// Config configures a Worker.
type Config struct {
	Concurrency int
	// EmbedSections lists which section types get embedded. Empty selects
	// the default of DECISION and COURT_REASONING.
	EmbedSections []types.SectionType
}

// NewWorker creates an ingest worker.
func NewWorker(meta *store.MetadataStore, vectors *store.VectorStore, source CourtSource,
	sec *sectionizer.Sectionizer, embedder Embedder, cfg Config) *Worker {

	n := cfg.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	embed := map[types.SectionType]bool{}
	if len(cfg.EmbedSections) == 0 {
		embed[types.SectionDecision] = true
		embed[types.SectionReasoning] = true
	} else {
		for _, t := range cfg.EmbedSections {
			embed[t] = true
		}
	}
	return &Worker{
		meta:          meta,
		vectors:       vectors,
		source:        source,
		sectionizer:   sec,
		embedder:      embedder,
		sem:           semaphore.NewWeighted(int64(n)),
		embedSections: embed,
	}
}

// QueueDepth reports how many documents are currently being ingested,
// for backpressure decisions by bulk callers.
func (w *Worker) QueueDepth() int64 {
	return w.inFlight.Load()
}

// Report summarizes one batch.
type Report struct {
	Processed         int      `json:"processed"`
	Cached            int      `json:"cached"`
	Errors            int      `json:"errors"`
	SectionsCreated   int      `json:"sections_created"`
	EmbeddingsCreated int      `json:"embeddings_created"`
	DurationMS        int64    `json:"duration_ms"`
	ErrorDetails      []string `json:"error_details,omitempty"`
}

// IngestBatch ingests the given external document ids concurrently under
// the semaphore. Per-document failures are recorded and the batch
// advances; the returned report is always complete.
func (w *Worker) IngestBatch(ctx context.Context, externalIDs []string) Report {
	start := time.Now()
	timer := logging.StartTimer(logging.CategoryIngest, "IngestBatch")
	defer timer.Stop()

	var mu sync.Mutex
	var report Report
	var wg sync.WaitGroup

	for _, id := range externalIDs {
		wg.Add(1)
		w.inFlight.Add(1)
		go func(docID string) {
			defer wg.Done()
			defer w.inFlight.Add(-1)

			result, err := w.IngestOne(ctx, docID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Errors++
				report.ErrorDetails = append(report.ErrorDetails,
					fmt.Sprintf("%s: %v", docID, err))
			case result.Cached:
				report.Cached++
				report.Processed++
			default:
				report.Processed++
				report.SectionsCreated += result.Sections
				report.EmbeddingsCreated += result.Embeddings
			}
		}(id)
	}
	wg.Wait()

	report.DurationMS = time.Since(start).Milliseconds()
	logging.Ingest("batch done: processed=%d cached=%d errors=%d sections=%d embeddings=%d in %dms",
		report.Processed, report.Cached, report.Errors,
		report.SectionsCreated, report.EmbeddingsCreated, report.DurationMS)

	if err := w.meta.AppendEvent("ingest.batch_completed", report); err != nil {
		logging.Get(logging.CategoryIngest).Warn("failed to record batch event: %v", err)
	}
	return report
}

// Result describes one document's ingest outcome.
type Result struct {
	DocumentID string
	Cached     bool
	Sections   int
	Embeddings int
}

// IngestOne ingests a single document by external id. The full-text fetch
// happens before the semaphore is acquired, so rate-limit sleeps never
// hold an ingest slot.
func (w *Worker) IngestOne(ctx context.Context, externalID string) (Result, error) {
	const op = "ingest.IngestOne"

	// Idempotency: already fetched and sectionized means done.
	if doc, err := w.meta.GetDocumentByExternalID(externalID); err == nil {
		sections, serr := w.meta.SectionCount(doc.ID)
		if serr == nil && len(doc.FullText) > minFullTextLength && sections > 0 {
			logging.IngestDebug("document %s already ingested, skipping", externalID)
			return Result{DocumentID: doc.ID, Cached: true}, nil
		}
	}

	ft, err := w.source.GetFullText(ctx, externalID)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", externalID, err)
	}

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return Result{}, types.Wrap(types.KindDeadlineExceeded, op, err)
	}
	defer w.sem.Release(1)

	docID, err := w.meta.UpsertDocument(&types.Document{
		ExternalID:   externalID,
		Type:         types.DocCourtDecision,
		CaseNumber:   ft.CaseNumber,
		FullText:     ft.Text,
		FullTextHTML: ft.HTML,
	})
	if err != nil {
		return Result{}, fmt.Errorf("upsert %s: %w", externalID, err)
	}

	// Short documents are persisted but never sectionized or embedded.
	sections, err := w.sectionizer.Extract(ctx, ft.Text)
	if err != nil {
		return Result{}, fmt.Errorf("sectionize %s: %w", externalID, err)
	}
	if len(sections) == 0 {
		logging.IngestDebug("document %s produced no sections (%d chars)", externalID, len(ft.Text))
		return Result{DocumentID: docID}, nil
	}

	for i := range sections {
		sections[i].DocumentID = docID
	}
	if err := w.meta.ReplaceSections(docID, sections); err != nil {
		return Result{}, fmt.Errorf("persist sections of %s: %w", externalID, err)
	}

	embedded, err := w.embedDocument(ctx, docID)
	if err != nil {
		return Result{}, fmt.Errorf("embed %s: %w", externalID, err)
	}

	return Result{DocumentID: docID, Sections: len(sections), Embeddings: embedded}, nil
}

// embedDocument re-embeds the selected sections of a document: old vectors
// are deleted first, then each section is chunked, embedded, and upserted
// with a fresh payload snapshot.
func (w *Worker) embedDocument(ctx context.Context, docID string) (int, error) {
	if w.embedder == nil || w.vectors == nil {
		return 0, nil
	}

	doc, err := w.meta.GetDocument(docID)
	if err != nil {
		return 0, err
	}

	var selected []types.SectionType
	for t := range w.embedSections {
		selected = append(selected, t)
	}
	sections, err := w.meta.GetSections(docID, selected...)
	if err != nil {
		return 0, err
	}
	if len(sections) == 0 {
		return 0, nil
	}

	if _, err := w.vectors.DeleteByDocument(docID); err != nil {
		return 0, err
	}

	total := 0
	for _, sec := range sections {
		chunks := embedding.SplitForEmbedding(sec.Text,
			embedding.DefaultChunkSize, embedding.DefaultOverlapWords)
		if len(chunks) == 0 {
			continue
		}
		vecs, err := w.embedder.EmbedBatch(ctx, chunks)
		if err != nil {
			return total, err
		}
		for i, vec := range vecs {
			vectorID := uuid.NewString()
			payload := types.ChunkPayload{
				DocID:           docID,
				SectionType:     sec.Type,
				DocumentType:    doc.Type,
				Text:            chunks[i],
				Date:            doc.Date,
				Court:           doc.Court,
				Chamber:         doc.Chamber,
				CaseNumber:      doc.CaseNumber,
				DisputeCategory: doc.DisputeCategory,
				Outcome:         doc.Outcome,
			}
			if err := w.vectors.Upsert(vectorID, vec, payload); err != nil {
				return total, err
			}
			if err := w.meta.RecordChunk(sec.ID, vectorID, chunks[i], &payload); err != nil {
				return total, err
			}
			total++
		}
	}
	return total, nil
}
