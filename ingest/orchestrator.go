// Package ingest drives the sync pipeline: enumerate source pages, detect
// changes, and rebuild the vector collection page by page.
package ingest

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"bookrag/chunk"
	"bookrag/extract"
	"bookrag/model"
	"bookrag/store"
	"bookrag/types"
)

// ErrJobRunning means another sync job holds the ingestion slot. Triggers are
// rejected, never queued.
var ErrJobRunning = errors.New("an ingestion job is already running")

// PageLister enumerates the current source pages (sitemap or file listing).
type PageLister interface {
	ListPages(ctx context.Context) ([]string, error)
}

// PageExtractor turns one source page into text with heading structure.
type PageExtractor interface {
	Extract(ctx context.Context, url string) (*extract.Page, error)
}

type Orchestrator struct {
	lister    PageLister
	extractor PageExtractor
	chunker   *chunk.Chunker
	embedder  model.Embedder
	vectors   store.VectorStorer
	pages     store.PageStorer
	jobs      store.JobStorer
	workers   int
	logger    *slog.Logger
}

func NewOrchestrator(
	lister PageLister,
	extractor PageExtractor,
	chunker *chunk.Chunker,
	embedder model.Embedder,
	vectors store.VectorStorer,
	pages store.PageStorer,
	jobs store.JobStorer,
	workers int,
) *Orchestrator {
	if workers <= 0 {
		workers = 4
	}
	return &Orchestrator{
		lister:    lister,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		vectors:   vectors,
		pages:     pages,
		jobs:      jobs,
		workers:   workers,
		logger:    slog.Default(),
	}
}

type pageOutcome struct {
	created int
	updated int
	errRec  *types.ErrorRecord
}

// Run executes one sync job. Per-page failures are recorded and skipped over;
// only conditions that prevent the job from running at all (lock held, page
// enumeration failure, store down) produce a failed or rejected job.
func (o *Orchestrator) Run(ctx context.Context, forceRefresh bool) (*types.IngestionJob, error) {
	job := &types.IngestionJob{
		ID:        uuid.New(),
		StartTime: time.Now().UTC(),
		Status:    types.JobRunning,
	}

	acquired, err := o.jobs.TryAcquireLock(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("acquire job slot: %w", err)
	}
	if !acquired {
		return nil, ErrJobRunning
	}
	defer func() {
		if err := o.jobs.ReleaseLock(context.WithoutCancel(ctx)); err != nil {
			o.logger.Error("failed to release ingestion lock", "error", err.Error())
		}
	}()

	if err := o.jobs.SaveJob(ctx, *job); err != nil {
		return nil, fmt.Errorf("record job start: %w", err)
	}

	o.logger.Info("ingestion job started", "job_id", job.ID, "force_refresh", forceRefresh)

	urls, err := o.lister.ListPages(ctx)
	if err != nil {
		return o.finishFailed(ctx, job, fmt.Errorf("enumerate pages: %w", err))
	}
	known, err := o.pages.ListPages(ctx)
	if err != nil {
		return o.finishFailed(ctx, job, fmt.Errorf("load ingested page set: %w", err))
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, url := range urls {
		url := url
		rec, found := known[url]
		g.Go(func() error {
			out := o.processPage(gctx, url, forceRefresh, rec, found)
			mu.Lock()
			defer mu.Unlock()
			if out.errRec != nil {
				job.Errors = append(job.Errors, *out.errRec)
			} else {
				job.PagesProcessed++
				job.ChunksCreated += out.created
				job.ChunksUpdated += out.updated
			}
			return nil
		})
	}
	_ = g.Wait()

	// Pages that disappeared from the listing lose their chunks.
	current := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		current[u] = struct{}{}
	}
	for url := range known {
		if _, ok := current[url]; ok {
			continue
		}
		if err := o.removePage(ctx, url); err != nil {
			job.Errors = append(job.Errors, types.ErrorRecord{
				SourceURL: url,
				Kind:      "removal_error",
				Message:   err.Error(),
				Timestamp: time.Now().UTC(),
			})
			continue
		}
		o.logger.Info("removed page purged", "url", url, "job_id", job.ID)
	}

	job.Status = types.JobCompleted
	job.EndTime = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	o.persistOutcome(ctx, job)

	o.logger.Info("ingestion job completed",
		"job_id", job.ID,
		"pages_processed", job.PagesProcessed,
		"chunks_created", job.ChunksCreated,
		"chunks_updated", job.ChunksUpdated,
		"errors", len(job.Errors))
	return job, nil
}

// processPage runs extract, chunk, embed, and replace for one page. An
// unchanged content hash short-circuits unless the run forces a refresh.
func (o *Orchestrator) processPage(ctx context.Context, url string, force bool, rec types.PageRecord, known bool) pageOutcome {
	fail := func(kind string, err error) pageOutcome {
		o.logger.Warn("page failed", "url", url, "kind", kind, "error", err.Error())
		return pageOutcome{errRec: &types.ErrorRecord{
			SourceURL: url,
			Kind:      kind,
			Message:   err.Error(),
			Timestamp: time.Now().UTC(),
		}}
	}

	page, err := o.extractor.Extract(ctx, url)
	if err != nil {
		var fetchErr *extract.FetchError
		var parseErr *extract.ParseError
		switch {
		case errors.As(err, &fetchErr):
			return fail("fetch_error", err)
		case errors.As(err, &parseErr):
			return fail("parse_error", err)
		default:
			return fail("extract_error", err)
		}
	}

	hash := contentHash(page.Text)
	if known && !force && rec.ContentHash == hash {
		return pageOutcome{}
	}

	pieces := o.chunker.Split(page.Text)
	if len(pieces) == 0 {
		// Nothing retrievable (heading-only or whitespace page). Stale
		// chunks from an earlier version still get cleared.
		if err := o.vectors.DeleteBySource(ctx, url); err != nil {
			return fail("vector_store_error", fmt.Errorf("delete old chunks: %w", err))
		}
		if err := o.pages.SavePage(ctx, types.PageRecord{
			SourceURL:   url,
			ContentHash: hash,
			ChunkCount:  0,
			UpdatedAt:   time.Now().UTC(),
		}); err != nil {
			return fail("page_record_error", err)
		}
		o.logger.Info("page has no retrievable text, skipped", "url", url)
		return pageOutcome{}
	}

	// Embedding input carries the heading path so section context survives
	// into the vector space; the stored chunk content stays pure text.
	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = embedText(piece)
	}
	vectors, err := o.embedder.Embed(ctx, texts, model.IntentDocument)
	if err != nil {
		return fail("embedding_error", err)
	}

	now := time.Now().UTC()
	chunks := make([]types.DocumentChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = types.DocumentChunk{
			ID:          uuid.New(),
			SourceURL:   page.URL,
			SourceTitle: page.Title,
			HeadingPath: piece.HeadingPath,
			ChunkIndex:  piece.Index,
			TotalChunks: len(pieces),
			Content:     piece.Content,
			Embedding:   vectors[i],
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	// Changed pages are replaced wholesale: old chunk ids out, new ones in.
	if err := o.vectors.DeleteBySource(ctx, url); err != nil {
		return fail("vector_store_error", fmt.Errorf("delete old chunks: %w", err))
	}
	if err := o.vectors.UpsertChunks(ctx, chunks); err != nil {
		return fail("vector_store_error", fmt.Errorf("upsert chunks: %w", err))
	}
	if err := o.pages.SavePage(ctx, types.PageRecord{
		SourceURL:   url,
		ContentHash: hash,
		ChunkCount:  len(chunks),
		UpdatedAt:   now,
	}); err != nil {
		return fail("page_record_error", err)
	}

	o.logger.Info("page ingested", "url", url, "chunks", len(chunks), "changed", known)
	if known {
		return pageOutcome{updated: len(chunks)}
	}
	return pageOutcome{created: len(chunks)}
}

func (o *Orchestrator) removePage(ctx context.Context, url string) error {
	if err := o.vectors.DeleteBySource(ctx, url); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := o.pages.DeletePage(ctx, url); err != nil {
		return fmt.Errorf("delete page record: %w", err)
	}
	return nil
}

func (o *Orchestrator) finishFailed(ctx context.Context, job *types.IngestionJob, cause error) (*types.IngestionJob, error) {
	o.logger.Error("ingestion job failed", "job_id", job.ID, "error", cause.Error())
	job.Status = types.JobFailed
	job.EndTime = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	job.Errors = append(job.Errors, types.ErrorRecord{
		Kind:      "job_fatal",
		Message:   cause.Error(),
		Timestamp: time.Now().UTC(),
	})
	o.persistOutcome(ctx, job)
	return job, nil
}

func (o *Orchestrator) persistOutcome(ctx context.Context, job *types.IngestionJob) {
	ctx = context.WithoutCancel(ctx)
	if err := o.jobs.FinishJob(ctx, *job); err != nil {
		o.logger.Error("failed to persist job outcome", "job_id", job.ID, "error", err.Error())
	}
	for _, rec := range job.Errors {
		if err := o.jobs.AppendJobError(ctx, job.ID, rec); err != nil {
			o.logger.Error("failed to persist job error", "job_id", job.ID, "error", err.Error())
		}
	}
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func embedText(piece chunk.Chunk) string {
	if len(piece.HeadingPath) == 0 {
		return piece.Content
	}
	return strings.Join(piece.HeadingPath, " > ") + "\n\n" + piece.Content
}
