// Package model holds the hosted-model clients: embedding and generation are
// each a single interface with provider-specific adapters behind it.
package model

import (
	"context"
	"fmt"
)

// Intent tags what an embedding will be used for. Providers that distinguish
// document and query embeddings (Cohere) need the caller to pass it.
type Intent string

const (
	IntentDocument Intent = "search_document"
	IntentQuery    Intent = "search_query"
)

// Embedder converts text into fixed-dimension vectors. Implementations batch
// up to their per-call limit and validate the returned dimension before
// returning anything.
type Embedder interface {
	Embed(ctx context.Context, texts []string, intent Intent) ([][]float32, error)
	Dimension() int
}

// Generator synthesizes a natural-language answer from a system instruction
// and a prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// NewEmbedder selects an embedding provider adapter by name.
func NewEmbedder(provider string, dimension int) (Embedder, error) {
	switch provider {
	case "cohere":
		return NewCohereEmbedder(dimension), nil
	case "openai":
		return NewOpenAIEmbedder(dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

// NewGenerator selects a generation provider adapter by name.
func NewGenerator(provider string) (Generator, error) {
	switch provider {
	case "openai":
		return NewOpenAIGenerator(), nil
	case "gemini":
		return NewGeminiGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", provider)
	}
}
