package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
	"github.com/markdave123-py/layoutflow/internal/services"
)

var validate = validator.New()

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var svcErr *core.ServiceError
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrMissingCredential):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrEncryptedDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrUniqueViolation):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidBatchSize),
		errors.Is(err, core.ErrDimensionMismatch),
		errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &svcErr), errors.Is(err, core.ErrMalformedSidecar):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log logger.ILogger, module string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(module, "request failed", map[string]interface{}{"status": status, "error": err.Error()})
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeBody decodes a JSON body into dst and runs its validate tags.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, services.ErrInvalidInput)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%v: %w", err, services.ErrInvalidInput)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer: %w", name, services.ErrInvalidInput)
	}
	return id, nil
}

// page reads offset and limit query parameters; missing or bad values are zero.
func page(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}
