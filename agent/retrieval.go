// Package agent composes the query-time pipeline: retrieve, generate, cite.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bookrag/model"
	"bookrag/store"
	"bookrag/types"
)

// ErrRetrievalUnavailable means the query could not be embedded or searched
// after retries. The whole query fails with it.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable")

const (
	DefaultTopK           = 5
	MaxTopK               = 10
	DefaultScoreThreshold = 0.7
)

type RetrieveOptions struct {
	TopK      int     // 1-10, DefaultTopK when zero
	Threshold float64 // DefaultScoreThreshold when zero or negative
	SourceURL string  // non-empty restricts retrieval to one page
}

// RetrievalEngine embeds a query and searches the vector collection.
type RetrievalEngine struct {
	embedder model.Embedder
	vectors  store.VectorStorer
	logger   *slog.Logger
}

func NewRetrievalEngine(embedder model.Embedder, vectors store.VectorStorer) *RetrievalEngine {
	return &RetrievalEngine{
		embedder: embedder,
		vectors:  vectors,
		logger:   slog.Default(),
	}
}

// Retrieve returns chunks ranked by descending similarity, never below the
// threshold, along with the query vector itself so it can be recorded with
// the session. Zero matches is a successful empty result, not an error.
func (r *RetrievalEngine) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]types.ScoredChunk, []float32, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultScoreThreshold
	}

	vectors, err := r.embedder.Embed(ctx, []string{query}, model.IntentQuery)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: embed query: %v", ErrRetrievalUnavailable, err)
	}

	chunks, err := r.vectors.Search(ctx, vectors[0], topK, threshold, opts.SourceURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: vector search: %v", ErrRetrievalUnavailable, err)
	}

	r.logger.Debug("retrieval completed",
		"chunks", len(chunks), "top_k", topK, "threshold", threshold,
		"filtered", opts.SourceURL != "")
	return chunks, vectors[0], nil
}
