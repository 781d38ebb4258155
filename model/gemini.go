package model

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// GeminiGenerator produces answers through the Gemini generateContent API.
type GeminiGenerator struct {
	url    string
	apiKey string
	model  string
	client *http.Client
	logger *slog.Logger
}

func NewGeminiGenerator() *GeminiGenerator {
	url := os.Getenv("GEMINI_API_URL")
	if url == "" {
		url = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := os.Getenv("GEMINI_CHAT_MODEL")
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiGenerator{
		url:    url,
		apiKey: os.Getenv("GEMINI_API_KEY"),
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: slog.Default(),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		FinishReason string        `json:"finishReason"`
		Content      geminiContent `json:"content"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *GeminiGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
	}
	req.GenerationConfig.Temperature = 0.2
	req.GenerationConfig.MaxOutputTokens = 500

	url := fmt.Sprintf("%s/models/%s:generateContent", g.url, g.model)

	var resp geminiResponse
	err := withRetry(ctx, g.logger, "gemini generate", func() error {
		resp = geminiResponse{}
		return postJSON(ctx, g.client, url, map[string]string{
			"x-goog-api-key": g.apiKey,
		}, req, &resp)
	})
	if err != nil {
		return "", err
	}

	if resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", ErrRejected, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates returned", ErrUnavailable)
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == "SAFETY" || cand.FinishReason == "PROHIBITED_CONTENT" {
		return "", fmt.Errorf("%w: generation blocked: %s", ErrRejected, cand.FinishReason)
	}

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: empty candidate", ErrUnavailable)
	}
	return sb.String(), nil
}
