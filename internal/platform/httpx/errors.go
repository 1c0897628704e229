package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/kassa/internal/shared"
)

// MetaProvider is implemented by errors that carry structured detail for clients,
// such as the stock figures behind a shortfall.
type MetaProvider interface {
	ProblemMeta() map[string]any
}

// TypeProvider is implemented by errors that need a distinct problem type URI.
type TypeProvider interface {
	ProblemType() string
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	WriteProblem(w, ProblemFor(err))
}

// RespondErrorLogged is RespondError plus an error log line for server-side failures.
func RespondErrorLogged(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	p := ProblemFor(err)
	if p.Status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	WriteProblem(w, p)
}

// ProblemFor builds the problem document for err.
func ProblemFor(err error) ProblemDetail {
	p := ProblemDetail{Status: http.StatusInternalServerError, Title: "Internal Error"}
	switch {
	case errors.Is(err, shared.ErrValidation):
		p.Status, p.Title, p.Detail = http.StatusBadRequest, "Validation Failed", err.Error()
		var ve *shared.ValidationError
		if errors.As(err, &ve) {
			p.Errors = ve.Fields
		}
	case errors.Is(err, shared.ErrNotFound):
		p.Status, p.Title, p.Detail = http.StatusNotFound, "Not Found", err.Error()
	case errors.Is(err, shared.ErrConflict):
		p.Status, p.Title, p.Detail = http.StatusConflict, "Conflict", err.Error()
	case errors.Is(err, shared.ErrBusinessRule):
		p.Status, p.Title, p.Detail = http.StatusUnprocessableEntity, "Business Rule Violation", err.Error()
	case errors.Is(err, shared.ErrUnauthorized):
		p.Status, p.Title, p.Detail = http.StatusUnauthorized, "Unauthorized", err.Error()
	case errors.Is(err, shared.ErrForbidden):
		p.Status, p.Title, p.Detail = http.StatusForbidden, "Forbidden", err.Error()
	}
	var meta MetaProvider
	if errors.As(err, &meta) {
		p.Meta = meta.ProblemMeta()
	}
	var typed TypeProvider
	if errors.As(err, &typed) {
		p.Type = typed.ProblemType()
		if p.Detail == "" {
			p.Detail = err.Error()
		}
	}
	return p
}
