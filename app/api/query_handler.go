package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"bookrag/agent"
	"bookrag/types"
)

type QueryHandler struct {
	rag     agent.RAGService
	timeout time.Duration
}

func NewQueryHandler(rag agent.RAGService, timeout time.Duration) *QueryHandler {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &QueryHandler{rag: rag, timeout: timeout}
}

// HandleQuery answers one question against the ingested corpus. The whole
// pipeline runs under a single deadline; a timeout fails the query as a unit.
func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errs := types.Validate(&params); len(errs) > 0 {
		return NewValidationError(errs)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	session, err := h.rag.Answer(ctx, params.Query, agent.QueryOptions{
		MaxResults: params.MaxResults,
		SessionID:  params.SessionID,
	})
	if err != nil {
		return err
	}

	citations := session.Citations
	if citations == nil {
		citations = []types.SourceCitation{}
	}
	return c.JSON(types.QueryResponse{
		Answer:         session.Answer,
		Citations:      citations,
		ResponseTimeMs: session.ResponseTimeMs,
		SessionID:      session.ID.String(),
	})
}
