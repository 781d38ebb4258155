// Package store persists the vector collection, the ingested-page ledger,
// and the append-only query/job logs in Postgres (pgvector for similarity).
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"bookrag/types"
)

// VectorStorer maintains the single cosine-similarity chunk collection.
type VectorStorer interface {
	UpsertChunks(ctx context.Context, chunks []types.DocumentChunk) error
	Search(ctx context.Context, vector []float32, topK int, threshold float64, sourceURL string) ([]types.ScoredChunk, error)
	DeleteBySource(ctx context.Context, sourceURL string) error
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) error
}

// PageStorer tracks which pages have been ingested and with what content hash.
type PageStorer interface {
	ListPages(ctx context.Context) (map[string]types.PageRecord, error)
	SavePage(ctx context.Context, rec types.PageRecord) error
	DeletePage(ctx context.Context, sourceURL string) error
}

type PostgresStore struct {
	pool      *pgxpool.Pool
	dimension int
	logger    *slog.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, dimension int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{
		pool:      pool,
		dimension: dimension,
		logger:    slog.Default(),
	}, nil
}

// Init creates the schema. The vector column size is fixed to the configured
// embedding dimension; a mismatch with an existing collection surfaces as an
// error here rather than at first upsert.
func (p *PostgresStore) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		source_url TEXT NOT NULL,
		source_title TEXT NOT NULL,
		heading_path TEXT[] NOT NULL DEFAULT '{}',
		chunk_index INT NOT NULL,
		total_chunks INT NOT NULL,
		content_text TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks
		USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
	CREATE INDEX IF NOT EXISTS idx_chunks_source_url ON chunks(source_url);

	CREATE TABLE IF NOT EXISTS ingested_pages (
		source_url TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		chunk_count INT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ingestion_state (
		id INT PRIMARY KEY CHECK (id = 1),
		running BOOLEAN NOT NULL DEFAULT FALSE,
		job_id UUID,
		started_at TIMESTAMPTZ
	);
	INSERT INTO ingestion_state (id, running) VALUES (1, FALSE)
		ON CONFLICT (id) DO NOTHING;

	CREATE TABLE IF NOT EXISTS ingestion_jobs (
		id UUID PRIMARY KEY,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		status TEXT NOT NULL,
		pages_processed INT NOT NULL DEFAULT 0,
		chunks_created INT NOT NULL DEFAULT 0,
		chunks_updated INT NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS ingestion_errors (
		id BIGSERIAL PRIMARY KEY,
		job_id UUID NOT NULL,
		source_url TEXT NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ingestion_errors_job ON ingestion_errors(job_id);

	CREATE TABLE IF NOT EXISTS query_sessions (
		id UUID PRIMARY KEY,
		query_text TEXT NOT NULL,
		query_embedding vector(%d) NOT NULL,
		answer TEXT NOT NULL,
		citations JSONB NOT NULL,
		retrieved JSONB NOT NULL,
		response_time_ms BIGINT NOT NULL,
		score_threshold DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	`, p.dimension, p.dimension)

	_, err := p.pool.Exec(ctx, query)
	return err
}

// UpsertChunks writes chunks in a single transaction, overwriting any
// existing entry with the same id.
func (p *PostgresStore) UpsertChunks(ctx context.Context, chunks []types.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
	INSERT INTO chunks
		(id, source_url, source_title, heading_path, chunk_index, total_chunks,
		 content_text, embedding, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO UPDATE SET
		source_url = EXCLUDED.source_url,
		source_title = EXCLUDED.source_title,
		heading_path = EXCLUDED.heading_path,
		chunk_index = EXCLUDED.chunk_index,
		total_chunks = EXCLUDED.total_chunks,
		content_text = EXCLUDED.content_text,
		embedding = EXCLUDED.embedding,
		updated_at = EXCLUDED.updated_at
	`
	for _, c := range chunks {
		if len(c.Embedding) != p.dimension {
			return fmt.Errorf("chunk %s: embedding has %d dims, collection expects %d",
				c.ID, len(c.Embedding), p.dimension)
		}
		if _, err := tx.Exec(ctx, query,
			c.ID, c.SourceURL, c.SourceTitle, c.HeadingPath, c.ChunkIndex, c.TotalChunks,
			c.Content, pgvector.NewVector(c.Embedding), c.CreatedAt, c.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	p.logger.Debug("chunks upserted", "count", len(chunks), "source", chunks[0].SourceURL)
	return nil
}

// Search returns the chunks most similar to the query vector, ranked by
// descending cosine similarity. Results below threshold are dropped; an empty
// result is not an error. A non-empty sourceURL restricts the search to one
// page.
func (p *PostgresStore) Search(ctx context.Context, vector []float32, topK int, threshold float64, sourceURL string) ([]types.ScoredChunk, error) {
	if len(vector) != p.dimension {
		return nil, fmt.Errorf("query vector has %d dims, collection expects %d",
			len(vector), p.dimension)
	}

	query := `
	SELECT id, source_url, source_title, heading_path, chunk_index, total_chunks,
	       content_text, created_at, updated_at,
	       1 - (embedding <=> $1) AS score
	FROM chunks
	WHERE ($2 = '' OR source_url = $2)
	ORDER BY embedding <=> $1
	LIMIT $3
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vector), sourceURL, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []types.ScoredChunk
	for rows.Next() {
		var sc types.ScoredChunk
		if err := rows.Scan(
			&sc.Chunk.ID, &sc.Chunk.SourceURL, &sc.Chunk.SourceTitle,
			&sc.Chunk.HeadingPath, &sc.Chunk.ChunkIndex, &sc.Chunk.TotalChunks,
			&sc.Chunk.Content, &sc.Chunk.CreatedAt, &sc.Chunk.UpdatedAt, &sc.Score,
		); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return filterByScore(results, threshold), nil
}

// filterByScore drops results below the threshold. Rows arrive ranked by
// similarity, so the ranking survives the filter.
func filterByScore(results []types.ScoredChunk, threshold float64) []types.ScoredChunk {
	filtered := results[:0]
	for _, sc := range results {
		if sc.Score >= threshold {
			filtered = append(filtered, sc)
		}
	}
	return filtered
}

func (p *PostgresStore) DeleteBySource(ctx context.Context, sourceURL string) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE source_url = $1", sourceURL)
	return err
}

func (p *PostgresStore) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, "DELETE FROM chunks WHERE id = ANY($1)", ids)
	return err
}

func (p *PostgresStore) ListPages(ctx context.Context) (map[string]types.PageRecord, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT source_url, content_hash, chunk_count, updated_at FROM ingested_pages")
	if err != nil {
		return nil, fmt.Errorf("list ingested pages: %w", err)
	}
	defer rows.Close()

	pages := make(map[string]types.PageRecord)
	for rows.Next() {
		var rec types.PageRecord
		if err := rows.Scan(&rec.SourceURL, &rec.ContentHash, &rec.ChunkCount, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		pages[rec.SourceURL] = rec
	}
	return pages, rows.Err()
}

func (p *PostgresStore) SavePage(ctx context.Context, rec types.PageRecord) error {
	query := `
	INSERT INTO ingested_pages (source_url, content_hash, chunk_count, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (source_url) DO UPDATE SET
		content_hash = EXCLUDED.content_hash,
		chunk_count = EXCLUDED.chunk_count,
		updated_at = EXCLUDED.updated_at
	`
	_, err := p.pool.Exec(ctx, query, rec.SourceURL, rec.ContentHash, rec.ChunkCount, rec.UpdatedAt)
	return err
}

func (p *PostgresStore) DeletePage(ctx context.Context, sourceURL string) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM ingested_pages WHERE source_url = $1", sourceURL)
	return err
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres connection pool closed")
	}
	return nil
}
