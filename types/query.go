package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

type QueryParams struct {
	Query      string `json:"query" validate:"required,min=1,max=2000"`
	SessionID  string `json:"session_id,omitempty" validate:"omitempty,uuid4"`
	MaxResults int    `json:"max_results,omitempty" validate:"omitempty,min=1,max=10"`
}

type IngestParams struct {
	ForceRefresh bool `json:"force_refresh"`
}

type QueryResponse struct {
	Answer         string           `json:"answer"`
	Citations      []SourceCitation `json:"citations"`
	ResponseTimeMs int64            `json:"response_time_ms"`
	SessionID      string           `json:"session_id"`
}

type IngestResponse struct {
	JobID          string        `json:"job_id"`
	Status         JobStatus     `json:"status"`
	PagesProcessed int           `json:"pages_processed"`
	ChunksCreated  int           `json:"chunks_created"`
	ChunksUpdated  int           `json:"chunks_updated"`
	Errors         []ErrorRecord `json:"errors"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *QueryParams) Validate() map[string]string {
	validate := validator.New()
	if err := validate.Struct(params); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}
