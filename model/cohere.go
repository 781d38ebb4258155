package model

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

const (
	cohereMaxBatch  = 96 // embed API per-call text limit
	cohereMaxTokens = 8192
)

// CohereEmbedder generates embeddings through the Cohere v2 embed API.
// Cohere distinguishes document and query embeddings, so the caller's intent
// tag is passed through as input_type.
type CohereEmbedder struct {
	url       string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
	logger    *slog.Logger
}

func NewCohereEmbedder(dimension int) *CohereEmbedder {
	url := os.Getenv("COHERE_API_URL")
	if url == "" {
		url = "https://api.cohere.com/v2/embed"
	}
	model := os.Getenv("COHERE_EMBED_MODEL")
	if model == "" {
		model = "embed-english-v3.0"
	}
	return &CohereEmbedder{
		url:       url,
		apiKey:    os.Getenv("COHERE_API_KEY"),
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: 60 * time.Second},
		logger:    slog.Default(),
	}
}

func (e *CohereEmbedder) Dimension() int { return e.dimension }

type cohereEmbedRequest struct {
	Model          string   `json:"model"`
	Texts          []string `json:"texts"`
	InputType      string   `json:"input_type"`
	EmbeddingTypes []string `json:"embedding_types"`
}

type cohereEmbedResponse struct {
	Embeddings struct {
		Float [][]float64 `json:"float"`
	} `json:"embeddings"`
}

func (e *CohereEmbedder) Embed(ctx context.Context, texts []string, intent Intent) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range batchTexts(texts, cohereMaxBatch, cohereMaxTokens) {
		req := cohereEmbedRequest{
			Model:          e.model,
			Texts:          batch,
			InputType:      string(intent),
			EmbeddingTypes: []string{"float"},
		}

		var resp cohereEmbedResponse
		err := withRetry(ctx, e.logger, "cohere embed", func() error {
			resp = cohereEmbedResponse{}
			return postJSON(ctx, e.client, e.url, map[string]string{
				"Authorization": "Bearer " + e.apiKey,
			}, req, &resp)
		})
		if err != nil {
			return nil, err
		}

		if len(resp.Embeddings.Float) != len(batch) {
			return nil, fmt.Errorf("cohere returned %d embeddings for %d texts",
				len(resp.Embeddings.Float), len(batch))
		}
		for _, vec := range resp.Embeddings.Float {
			if len(vec) != e.dimension {
				return nil, fmt.Errorf("%w: got %d, want %d",
					ErrDimensionMismatch, len(vec), e.dimension)
			}
			out = append(out, toFloat32(vec))
		}

		e.logger.Debug("embedded batch", "provider", "cohere",
			"texts", len(batch), "intent", string(intent))
	}
	return out, nil
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
