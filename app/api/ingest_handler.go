package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"bookrag/ingest"
	"bookrag/store"
	"bookrag/types"
)

type IngestHandler struct {
	orchestrator *ingest.Orchestrator
	jobs         store.JobStorer
	apiKey       string
}

func NewIngestHandler(orchestrator *ingest.Orchestrator, jobs store.JobStorer, apiKey string) *IngestHandler {
	return &IngestHandler{
		orchestrator: orchestrator,
		jobs:         jobs,
		apiKey:       apiKey,
	}
}

// HandleIngest triggers a sync run and blocks until it finishes. A second
// trigger while a job is running gets a 409 from the error handler.
func (h *IngestHandler) HandleIngest(c *fiber.Ctx) error {
	if h.apiKey != "" && c.Get("X-API-Key") != h.apiKey {
		return ErrUnAuthorized("missing or invalid API key")
	}

	var params types.IngestParams
	if len(c.Body()) > 0 {
		if c.BodyParser(&params) != nil {
			return ErrBadRequest()
		}
	}

	job, err := h.orchestrator.Run(c.UserContext(), params.ForceRefresh)
	if err != nil {
		return err
	}

	return c.JSON(jobResponse(job))
}

func (h *IngestHandler) HandleGetJob(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return NewError(fiber.StatusBadRequest, "invalid job id")
	}
	job, err := h.jobs.GetJob(c.UserContext(), id)
	if err != nil {
		return ErrNotFound("job")
	}
	return c.JSON(jobResponse(job))
}

func jobResponse(job *types.IngestionJob) types.IngestResponse {
	errs := job.Errors
	if errs == nil {
		errs = []types.ErrorRecord{}
	}
	return types.IngestResponse{
		JobID:          job.ID.String(),
		Status:         job.Status,
		PagesProcessed: job.PagesProcessed,
		ChunksCreated:  job.ChunksCreated,
		ChunksUpdated:  job.ChunksUpdated,
		Errors:         errs,
	}
}
