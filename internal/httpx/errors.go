package httpx

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/AngelCh415/auction-tracker/internal/ingest"
	"github.com/AngelCh415/auction-tracker/internal/report"
	"github.com/AngelCh415/auction-tracker/internal/store"
)

// APIError is the JSON error body of every failed request.
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

func newAPIError(status int, code, msg string) *APIError {
	return &APIError{StatusCode: status, ErrorCode: code, Message: msg}
}

// toAPIError maps domain errors onto HTTP responses.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	var schemaErr *ingest.SchemaError
	var paramErr *report.ParamError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &schemaErr):
		e := newAPIError(http.StatusUnprocessableEntity, "SCHEMA_ERROR", err.Error())
		e.Details = map[string]string{"column": schemaErr.Column}
		return e
	case errors.As(err, &paramErr):
		e := newAPIError(http.StatusBadRequest, "INVALID_PARAMETER", err.Error())
		e.Details = map[string]string{"param": paramErr.Param}
		return e
	case errors.Is(err, ingest.ErrNoData):
		return newAPIError(http.StatusUnprocessableEntity, "NO_DATA", "no data in the uploaded reports")
	case errors.Is(err, store.ErrNotFound):
		return newAPIError(http.StatusNotFound, "NOT_FOUND", err.Error())
	}
	return newAPIError(http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	_ = render.Render(w, r, toAPIError(err))
}
