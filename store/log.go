package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"bookrag/types"
)

// JobStorer owns the single-running-job invariant and the ingestion job log.
// The running flag lives in a one-row table so the invariant survives process
// restarts and multiple server instances.
type JobStorer interface {
	TryAcquireLock(ctx context.Context, jobID uuid.UUID) (bool, error)
	ReleaseLock(ctx context.Context) error
	SaveJob(ctx context.Context, job types.IngestionJob) error
	FinishJob(ctx context.Context, job types.IngestionJob) error
	AppendJobError(ctx context.Context, jobID uuid.UUID, rec types.ErrorRecord) error
	GetJob(ctx context.Context, id uuid.UUID) (*types.IngestionJob, error)
}

// SessionStorer appends completed query sessions to the audit log. The
// pipeline never reads them back at runtime.
type SessionStorer interface {
	SaveSession(ctx context.Context, session types.QuerySession) error
}

// TryAcquireLock claims the ingestion slot. Returns false without error when
// another job already holds it.
func (p *PostgresStore) TryAcquireLock(ctx context.Context, jobID uuid.UUID) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE ingestion_state
		SET running = TRUE, job_id = $1, started_at = $2
		WHERE id = 1 AND running = FALSE`,
		jobID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("acquire ingestion lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresStore) ReleaseLock(ctx context.Context) error {
	_, err := p.pool.Exec(ctx,
		"UPDATE ingestion_state SET running = FALSE, job_id = NULL WHERE id = 1")
	if err != nil {
		return fmt.Errorf("release ingestion lock: %w", err)
	}
	return nil
}

func (p *PostgresStore) SaveJob(ctx context.Context, job types.IngestionJob) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO ingestion_jobs (id, start_time, end_time, status, pages_processed, chunks_created, chunks_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.StartTime, job.EndTime, job.Status,
		job.PagesProcessed, job.ChunksCreated, job.ChunksUpdated)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// FinishJob records the terminal transition. The row is never touched again
// afterwards.
func (p *PostgresStore) FinishJob(ctx context.Context, job types.IngestionJob) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE ingestion_jobs
		SET end_time = $2, status = $3, pages_processed = $4, chunks_created = $5, chunks_updated = $6
		WHERE id = $1`,
		job.ID, job.EndTime, job.Status,
		job.PagesProcessed, job.ChunksCreated, job.ChunksUpdated)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", job.ID, err)
	}
	return nil
}

func (p *PostgresStore) AppendJobError(ctx context.Context, jobID uuid.UUID, rec types.ErrorRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO ingestion_errors (job_id, source_url, kind, message, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		jobID, rec.SourceURL, rec.Kind, rec.Message, rec.Timestamp)
	return err
}

func (p *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*types.IngestionJob, error) {
	job := &types.IngestionJob{}
	err := p.pool.QueryRow(ctx, `
		SELECT id, start_time, end_time, status, pages_processed, chunks_created, chunks_updated
		FROM ingestion_jobs WHERE id = $1`, id).
		Scan(&job.ID, &job.StartTime, &job.EndTime, &job.Status,
			&job.PagesProcessed, &job.ChunksCreated, &job.ChunksUpdated)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT source_url, kind, message, created_at
		FROM ingestion_errors WHERE job_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rec types.ErrorRecord
		if err := rows.Scan(&rec.SourceURL, &rec.Kind, &rec.Message, &rec.Timestamp); err != nil {
			return nil, err
		}
		job.Errors = append(job.Errors, rec)
	}
	return job, rows.Err()
}

// retrievedRef is the compact per-chunk record stored with a session.
type retrievedRef struct {
	ChunkID   string  `json:"chunk_id"`
	SourceURL string  `json:"source_url"`
	Score     float64 `json:"score"`
}

func (p *PostgresStore) SaveSession(ctx context.Context, session types.QuerySession) error {
	if len(session.QueryEmbedding) != p.dimension {
		return fmt.Errorf("session %s: query embedding has %d dims, collection expects %d",
			session.ID, len(session.QueryEmbedding), p.dimension)
	}

	citations, err := json.Marshal(session.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	refs := make([]retrievedRef, len(session.RetrievedChunks))
	for i, sc := range session.RetrievedChunks {
		refs[i] = retrievedRef{
			ChunkID:   sc.Chunk.ID.String(),
			SourceURL: sc.Chunk.SourceURL,
			Score:     sc.Score,
		}
	}
	retrieved, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("marshal retrieved refs: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO query_sessions
			(id, query_text, query_embedding, answer, citations, retrieved, response_time_ms, score_threshold, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		session.ID, session.Query, pgvector.NewVector(session.QueryEmbedding),
		session.Answer, citations, retrieved,
		session.ResponseTimeMs, session.ScoreThreshold, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("save query session %s: %w", session.ID, err)
	}
	return nil
}
