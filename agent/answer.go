package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bookrag/model"
	"bookrag/types"
)

var (
	// ErrGenerationUnavailable is a transient generation-service failure
	// that survived the retry budget.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrGenerationRejected is a non-retryable reject (content policy).
	ErrGenerationRejected = errors.New("generation rejected")
)

// NotFoundAnswer is the fixed response when the corpus has nothing relevant.
// It is an intentional non-error outcome, distinct from any failure message.
const NotFoundAnswer = "I could not find this information in the source material."

// ApologyAnswer is returned when the generation service rejects the request.
const ApologyAnswer = "I'm sorry, I couldn't generate an answer to that question. Please try rephrasing it."

const systemPrompt = `You are a helpful assistant for a technical documentation book.

Answer questions based ONLY on the provided context.

Rules:
1. Use only information from the provided context.
2. Do not add information from your general knowledge.
3. If the context does not contain enough information, say so explicitly.
4. Be concise and clear.
5. Mention the relevant section when appropriate.`

// AnswerAgent synthesizes an answer strictly grounded in retrieved chunks.
type AnswerAgent struct {
	generator model.Generator
	logger    *slog.Logger
}

func NewAnswerAgent(generator model.Generator) *AnswerAgent {
	return &AnswerAgent{
		generator: generator,
		logger:    slog.Default(),
	}
}

// Answer generates a grounded response. With no qualifying chunks it returns
// NotFoundAnswer without calling the model at all.
func (a *AnswerAgent) Answer(ctx context.Context, query string, chunks []types.ScoredChunk) (string, error) {
	if len(chunks) == 0 {
		a.logger.Info("no relevant chunks, returning not-found answer")
		return NotFoundAnswer, nil
	}

	prompt := fmt.Sprintf(`Context from the book:
%s

Question: %s

Answer the question based on the context provided above. Be concise and accurate.`,
		BuildContext(chunks), query)

	answer, err := a.generator.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrRejected):
			return "", fmt.Errorf("%w: %v", ErrGenerationRejected, err)
		case errors.Is(err, model.ErrUnavailable):
			return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
		default:
			return "", fmt.Errorf("generate answer: %w", err)
		}
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: model returned empty answer", ErrGenerationUnavailable)
	}
	return answer, nil
}

// BuildContext formats retrieved chunks for the generation prompt, one block
// per chunk with its source and section.
func BuildContext(chunks []types.ScoredChunk) string {
	parts := make([]string, len(chunks))
	for i, sc := range chunks {
		section := strings.Join(sc.Chunk.HeadingPath, " > ")
		if section == "" {
			section = sc.Chunk.SourceTitle
		}
		parts[i] = fmt.Sprintf("Source %d: %s\nSection: %s\n\n%s",
			i+1, sc.Chunk.SourceTitle, section, sc.Chunk.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}
