package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bookrag/store"
	"bookrag/types"
)

type QueryOptions struct {
	MaxResults int
	SessionID  string
	SourceURL  string // bias retrieval toward one already-open page
}

// RAGService is the single query-time entry point: retrieve, then generate,
// then cite, as one unit. A timeout anywhere fails the whole query; partial
// results are never returned.
type RAGService interface {
	Answer(ctx context.Context, query string, opts QueryOptions) (*types.QuerySession, error)
}

type Service struct {
	retrieval *RetrievalEngine
	answers   *AnswerAgent
	citations *CitationAgent
	sessions  store.SessionStorer
	threshold float64
	logger    *slog.Logger
}

func NewService(retrieval *RetrievalEngine, answers *AnswerAgent, citations *CitationAgent, sessions store.SessionStorer, threshold float64) *Service {
	if threshold <= 0 {
		threshold = DefaultScoreThreshold
	}
	return &Service{
		retrieval: retrieval,
		answers:   answers,
		citations: citations,
		sessions:  sessions,
		threshold: threshold,
		logger:    slog.Default(),
	}
}

func (s *Service) Answer(ctx context.Context, query string, opts QueryOptions) (*types.QuerySession, error) {
	start := time.Now()

	chunks, queryVec, err := s.retrieval.Retrieve(ctx, query, RetrieveOptions{
		TopK:      opts.MaxResults,
		Threshold: s.threshold,
		SourceURL: opts.SourceURL,
	})
	if err != nil {
		return nil, err
	}

	rejected := false
	answer, err := s.answers.Answer(ctx, query, chunks)
	if err != nil {
		// A policy reject becomes a user-facing apology rather than an
		// HTTP error; everything else fails the query as a unit.
		if !errors.Is(err, ErrGenerationRejected) {
			return nil, err
		}
		s.logger.Warn("generation rejected", "error", err.Error())
		answer = ApologyAnswer
		rejected = true
	}

	// The audit record keeps what was retrieved even when the answer was
	// rejected; only the citations are withheld.
	var citations []types.SourceCitation
	if !rejected {
		citations = s.citations.Resolve(answer, chunks)
	}

	session := &types.QuerySession{
		ID:              sessionID(opts.SessionID),
		Query:           query,
		QueryEmbedding:  queryVec,
		RetrievedChunks: chunks,
		Answer:          answer,
		Citations:       citations,
		ResponseTimeMs:  time.Since(start).Milliseconds(),
		ScoreThreshold:  s.threshold,
		CreatedAt:       time.Now().UTC(),
	}

	if s.sessions != nil {
		if err := s.sessions.SaveSession(ctx, *session); err != nil {
			// The audit log must not fail the answer.
			s.logger.Warn("failed to persist query session",
				"session_id", session.ID, "error", err.Error())
		}
	}

	s.logger.Info("query answered",
		"session_id", session.ID,
		"chunks", len(session.RetrievedChunks),
		"citations", len(citations),
		"response_time_ms", session.ResponseTimeMs)
	return session, nil
}

func sessionID(requested string) uuid.UUID {
	if requested != "" {
		if id, err := uuid.Parse(requested); err == nil {
			return id
		}
	}
	return uuid.New()
}
