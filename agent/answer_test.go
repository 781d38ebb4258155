package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/model"
	"bookrag/types"
)

type fakeGenerator struct {
	answer     string
	err        error
	calls      int
	lastSystem string
	lastPrompt string
}

func (f *fakeGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	f.calls++
	f.lastSystem = system
	f.lastPrompt = prompt
	return f.answer, f.err
}

func TestAnswerGroundedInChunks(t *testing.T) {
	gen := &fakeGenerator{answer: "A PID loop adjusts output from error feedback."}
	agent := NewAnswerAgent(gen)

	chunks := []types.ScoredChunk{
		scored("https://book.example.com/docs/pid", "PID control adjusts output.", 0.9, "Control", "PID"),
	}
	answer, err := agent.Answer(context.Background(), "what is a PID loop?", chunks)
	require.NoError(t, err)
	assert.Equal(t, gen.answer, answer)

	assert.Contains(t, gen.lastSystem, "ONLY on the provided context")
	assert.Contains(t, gen.lastPrompt, "PID control adjusts output.")
	assert.Contains(t, gen.lastPrompt, "what is a PID loop?")
	assert.Contains(t, gen.lastPrompt, "Control > PID")
}

func TestAnswerNoChunksSkipsModel(t *testing.T) {
	gen := &fakeGenerator{answer: "should never be used"}
	agent := NewAnswerAgent(gen)

	answer, err := agent.Answer(context.Background(), "who won the world cup?", nil)
	require.NoError(t, err)
	assert.Equal(t, NotFoundAnswer, answer)
	assert.Zero(t, gen.calls, "generator must not be called without chunks")
}

func TestAnswerMapsRejection(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("%w: content filtered", model.ErrRejected)}
	agent := NewAnswerAgent(gen)

	_, err := agent.Answer(context.Background(), "q", []types.ScoredChunk{scored("u", "c", 0.8)})
	assert.ErrorIs(t, err, ErrGenerationRejected)
}

func TestAnswerMapsUnavailable(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("%w: timeout", model.ErrUnavailable)}
	agent := NewAnswerAgent(gen)

	_, err := agent.Answer(context.Background(), "q", []types.ScoredChunk{scored("u", "c", 0.8)})
	assert.ErrorIs(t, err, ErrGenerationUnavailable)
}

func TestAnswerEmptyCompletionIsUnavailable(t *testing.T) {
	gen := &fakeGenerator{answer: "   \n"}
	agent := NewAnswerAgent(gen)

	_, err := agent.Answer(context.Background(), "q", []types.ScoredChunk{scored("u", "c", 0.8)})
	assert.ErrorIs(t, err, ErrGenerationUnavailable)
}

func TestAnswerUnknownErrorPassesThrough(t *testing.T) {
	cause := errors.New("socket closed")
	gen := &fakeGenerator{err: cause}
	agent := NewAnswerAgent(gen)

	_, err := agent.Answer(context.Background(), "q", []types.ScoredChunk{scored("u", "c", 0.8)})
	assert.ErrorIs(t, err, cause)
}

func TestBuildContextNumbersSources(t *testing.T) {
	chunks := []types.ScoredChunk{
		scored("https://book.example.com/docs/a", "First chunk text.", 0.9, "Intro"),
		scored("https://book.example.com/docs/b", "Second chunk text.", 0.8),
	}

	ctx := BuildContext(chunks)
	assert.Contains(t, ctx, "Source 1: Robotics Book\nSection: Intro")
	assert.Contains(t, ctx, "Source 2: Robotics Book\nSection: Robotics Book")
	assert.Contains(t, ctx, "First chunk text.")
	assert.Contains(t, ctx, "\n\n---\n\n")
}
