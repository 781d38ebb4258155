package model

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"
)

const (
	openaiMaxBatch  = 2048
	openaiMaxTokens = 8192
)

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API.
// OpenAI does not distinguish document and query inputs, so the intent tag is
// accepted and ignored.
type OpenAIEmbedder struct {
	url       string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
	logger    *slog.Logger
}

func NewOpenAIEmbedder(dimension int) *OpenAIEmbedder {
	url := os.Getenv("OPENAI_API_URL")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	model := os.Getenv("OPENAI_EMBED_MODEL")
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIEmbedder{
		url:       url,
		apiKey:    os.Getenv("OPENAI_API_KEY"),
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: 60 * time.Second},
		logger:    slog.Default(),
	}
}

func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

type openaiEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string, _ Intent) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range batchTexts(texts, openaiMaxBatch, openaiMaxTokens) {
		req := openaiEmbedRequest{Model: e.model, Input: batch, Dimensions: e.dimension}

		var resp openaiEmbedResponse
		err := withRetry(ctx, e.logger, "openai embed", func() error {
			resp = openaiEmbedResponse{}
			return postJSON(ctx, e.client, e.url+"/embeddings", map[string]string{
				"Authorization": "Bearer " + e.apiKey,
			}, req, &resp)
		})
		if err != nil {
			return nil, err
		}

		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai returned %d embeddings for %d texts",
				len(resp.Data), len(batch))
		}
		sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
		for _, d := range resp.Data {
			if len(d.Embedding) != e.dimension {
				return nil, fmt.Errorf("%w: got %d, want %d",
					ErrDimensionMismatch, len(d.Embedding), e.dimension)
			}
			out = append(out, toFloat32(d.Embedding))
		}
	}
	return out, nil
}

// OpenAIGenerator produces answers through the chat completions API with a
// low, fixed temperature.
type OpenAIGenerator struct {
	url    string
	apiKey string
	model  string
	client *http.Client
	logger *slog.Logger
}

func NewOpenAIGenerator() *OpenAIGenerator {
	url := os.Getenv("OPENAI_API_URL")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	model := os.Getenv("OPENAI_CHAT_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIGenerator{
		url:    url,
		apiKey: os.Getenv("OPENAI_API_KEY"),
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: slog.Default(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiChatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type openaiChatResponse struct {
	Choices []struct {
		FinishReason string      `json:"finish_reason"`
		Message      chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *OpenAIGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	req := openaiChatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   500,
	}

	var resp openaiChatResponse
	err := withRetry(ctx, g.logger, "openai chat", func() error {
		resp = openaiChatResponse{}
		return postJSON(ctx, g.client, g.url+"/chat/completions", map[string]string{
			"Authorization": "Bearer " + g.apiKey,
		}, req, &resp)
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", fmt.Errorf("%w: content filtered", ErrRejected)
	}
	return choice.Message.Content, nil
}
