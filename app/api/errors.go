package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"bookrag/agent"
	"bookrag/ingest"
	"bookrag/model"
)

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{Code: code, Message: err}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusBadRequest,
		Errors: errors,
	}
}

// ErrorHandler maps pipeline error kinds onto the HTTP surface: invalid input
// is 400, a running-job conflict is 409, upstream trouble is 503, anything
// unexpected is 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if apiErr, ok := err.(Error); ok {
		return c.Status(apiErr.Code).JSON(apiErr)
	}
	if valErr, ok := err.(ValidationError); ok {
		return c.Status(valErr.Status).JSON(valErr)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(NewError(fiberErr.Code, fiberErr.Message))
	}

	switch {
	case errors.Is(err, ingest.ErrJobRunning):
		return c.Status(fiber.StatusConflict).
			JSON(NewError(fiber.StatusConflict, err.Error()))
	case errors.Is(err, agent.ErrRetrievalUnavailable),
		errors.Is(err, agent.ErrGenerationUnavailable),
		errors.Is(err, model.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusServiceUnavailable).
			JSON(NewError(fiber.StatusServiceUnavailable, err.Error()))
	}

	slog.Default().Error("request failed", "path", c.Path(), "error", err.Error())
	return c.Status(fiber.StatusInternalServerError).
		JSON(NewError(fiber.StatusInternalServerError, "internal server error"))
}

func ErrBadRequest() Error {
	return NewError(fiber.StatusBadRequest, "invalid JSON request")
}

func ErrUnAuthorized(msg string) Error {
	return NewError(fiber.StatusUnauthorized, msg)
}

func ErrNotFound(resource string) Error {
	return NewError(fiber.StatusNotFound, resource+" not found")
}
