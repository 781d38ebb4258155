package types

import (
	"database/sql"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DocumentChunk is one retrievable unit of corpus text. Chunks are replaced
// wholesale when their source page changes: new ids in, old ids deleted.
type DocumentChunk struct {
	ID          uuid.UUID
	SourceURL   string
	SourceTitle string
	HeadingPath []string
	ChunkIndex  int
	TotalChunks int
	Content     string
	Embedding   []float32
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScoredChunk pairs a chunk with its cosine similarity to a query.
type ScoredChunk struct {
	Chunk DocumentChunk
	Score float64
}

// SourceCitation points from an answer back to the chunk that justifies it.
// RelevanceScore always equals the retrieval score of the underlying chunk.
type SourceCitation struct {
	SourceURL      string  `json:"source_url"`
	SourceTitle    string  `json:"source_title"`
	Excerpt        string  `json:"excerpt"`
	RelevanceScore float64 `json:"relevance_score"`
}

// QuerySession records one question and its resolution. Sessions are
// append-only once persisted.
type QuerySession struct {
	ID              uuid.UUID
	Query           string
	QueryEmbedding  []float32
	RetrievedChunks []ScoredChunk
	Answer          string
	Citations       []SourceCitation
	ResponseTimeMs  int64
	ScoreThreshold  float64
	CreatedAt       time.Time
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// ErrorRecord is a page-scoped ingestion failure. The job carries on past it.
type ErrorRecord struct {
	SourceURL string    `json:"source_url"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// IngestionJob is one run of the sync pipeline. EndTime is set only once the
// job reaches a terminal status, after which the record is never mutated.
type IngestionJob struct {
	ID             uuid.UUID
	StartTime      time.Time
	EndTime        sql.NullTime
	Status         JobStatus
	PagesProcessed int
	ChunksCreated  int
	ChunksUpdated  int
	Errors         []ErrorRecord
}

// PageRecord tracks what has been ingested for one source page, keyed by a
// sha256 hash of the extracted text so re-sync decisions survive clock skew.
type PageRecord struct {
	SourceURL   string
	ContentHash string
	ChunkCount  int
	UpdatedAt   time.Time
}

type Config struct {
	ListenAddr string
	SitemapURL string

	EmbedProvider  string // "cohere" or "openai"
	GenProvider    string // "openai" or "gemini"
	EmbedDimension int

	ChunkMinSize int
	ChunkMaxSize int
	ChunkOverlap int

	TopK           int
	ScoreThreshold float64

	QueryTimeout time.Duration
	FetchTimeout time.Duration
	PageWorkers  int

	IngestAPIKey string
}

// ConfigFromEnv builds the pipeline configuration from environment variables,
// falling back to defaults that match the deployed corpus setup.
func ConfigFromEnv() Config {
	return Config{
		ListenAddr:     getEnv("SERVER_ADDR", ":8080"),
		SitemapURL:     os.Getenv("BOOK_SITEMAP_URL"),
		EmbedProvider:  getEnv("EMBED_PROVIDER", "cohere"),
		GenProvider:    getEnv("GEN_PROVIDER", "openai"),
		EmbedDimension: getEnvInt("EMBED_DIMENSION", 1024),
		ChunkMinSize:   getEnvInt("CHUNK_MIN_SIZE", 500),
		ChunkMaxSize:   getEnvInt("CHUNK_MAX_SIZE", 800),
		ChunkOverlap:   getEnvInt("CHUNK_OVERLAP", 120),
		TopK:           getEnvInt("RETRIEVAL_TOP_K", 5),
		ScoreThreshold: getEnvFloat("RETRIEVAL_SCORE_THRESHOLD", 0.7),
		QueryTimeout:   time.Duration(getEnvInt("QUERY_TIMEOUT_SECONDS", 30)) * time.Second,
		FetchTimeout:   time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		PageWorkers:    getEnvInt("INGEST_PAGE_WORKERS", 4),
		IngestAPIKey:   os.Getenv("INGEST_API_KEY"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
