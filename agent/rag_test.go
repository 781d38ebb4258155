package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/model"
	"bookrag/types"
)

type fakeSessionStore struct {
	saved []types.QuerySession
	err   error
}

func (f *fakeSessionStore) SaveSession(_ context.Context, session types.QuerySession) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, session)
	return nil
}

func newTestService(vectors *fakeVectorStore, gen *fakeGenerator, sessions *fakeSessionStore) *Service {
	return NewService(
		NewRetrievalEngine(&fakeEmbedder{dimension: 4}, vectors),
		NewAnswerAgent(gen),
		NewCitationAgent(),
		sessions,
		DefaultScoreThreshold,
	)
}

func TestServiceAnswersGroundedQuery(t *testing.T) {
	vectors := &fakeVectorStore{results: []types.ScoredChunk{
		scored("https://book.example.com/docs/pid", "PID control adjusts output.", 0.9, "Control"),
	}}
	gen := &fakeGenerator{answer: "A PID loop corrects error over time."}
	sessions := &fakeSessionStore{}

	session, err := newTestService(vectors, gen, sessions).Answer(
		context.Background(), "what is a PID loop?", QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, "A PID loop corrects error over time.", session.Answer)
	require.Len(t, session.Citations, 1)
	assert.Equal(t, "https://book.example.com/docs/pid", session.Citations[0].SourceURL)
	assert.Len(t, session.RetrievedChunks, 1)
	assert.Len(t, session.QueryEmbedding, 4, "the session keeps the query vector")
	assert.NotEqual(t, uuid.Nil, session.ID)
	assert.GreaterOrEqual(t, session.ResponseTimeMs, int64(0))

	require.Len(t, sessions.saved, 1)
	assert.Equal(t, session.ID, sessions.saved[0].ID)
	assert.Len(t, sessions.saved[0].QueryEmbedding, 4)
}

func TestServiceOutOfScopeQuestion(t *testing.T) {
	gen := &fakeGenerator{answer: "unused"}
	sessions := &fakeSessionStore{}

	session, err := newTestService(&fakeVectorStore{}, gen, sessions).Answer(
		context.Background(), "who won the world cup?", QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, NotFoundAnswer, session.Answer)
	assert.Empty(t, session.Citations)
	assert.Zero(t, gen.calls)
}

func TestServiceReusesRequestedSessionID(t *testing.T) {
	requested := uuid.New()
	gen := &fakeGenerator{answer: "ok"}

	session, err := newTestService(&fakeVectorStore{}, gen, &fakeSessionStore{}).Answer(
		context.Background(), "q", QueryOptions{SessionID: requested.String()})
	require.NoError(t, err)
	assert.Equal(t, requested, session.ID)
}

func TestServiceRejectionBecomesApology(t *testing.T) {
	vectors := &fakeVectorStore{results: []types.ScoredChunk{scored("u", "c", 0.9)}}
	gen := &fakeGenerator{err: fmt.Errorf("%w: policy", model.ErrRejected)}

	session, err := newTestService(vectors, gen, &fakeSessionStore{}).Answer(
		context.Background(), "q", QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, ApologyAnswer, session.Answer)
	assert.Empty(t, session.Citations)
	// The audit record still shows what was retrieved.
	assert.Len(t, session.RetrievedChunks, 1)
}

func TestServiceRetrievalFailureFailsQuery(t *testing.T) {
	vectors := &fakeVectorStore{err: errors.New("db down")}

	_, err := newTestService(vectors, &fakeGenerator{}, &fakeSessionStore{}).Answer(
		context.Background(), "q", QueryOptions{})
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)
}

func TestServiceGenerationFailureFailsQuery(t *testing.T) {
	vectors := &fakeVectorStore{results: []types.ScoredChunk{scored("u", "c", 0.9)}}
	gen := &fakeGenerator{err: fmt.Errorf("%w: timeout", model.ErrUnavailable)}

	_, err := newTestService(vectors, gen, &fakeSessionStore{}).Answer(
		context.Background(), "q", QueryOptions{})
	assert.ErrorIs(t, err, ErrGenerationUnavailable)
}

func TestServiceSessionSaveFailureIsNonFatal(t *testing.T) {
	gen := &fakeGenerator{answer: "ok"}
	sessions := &fakeSessionStore{err: errors.New("audit table gone")}
	vectors := &fakeVectorStore{results: []types.ScoredChunk{scored("u", "c", 0.9)}}

	session, err := newTestService(vectors, gen, sessions).Answer(
		context.Background(), "q", QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", session.Answer)
}
