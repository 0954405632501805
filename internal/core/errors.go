package core

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrEncryptedDocument  = errors.New("encrypted document")
	ErrMissingCredential  = errors.New("missing credential")
	ErrAssetExtraction    = errors.New("asset extraction failed")
	ErrMalformedSidecar   = errors.New("malformed sidecar")
	ErrUniqueViolation    = errors.New("unique constraint violation")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrNotFound           = errors.New("not found")
	ErrInvalidBatchSize   = errors.New("batch size must be positive")
	ErrServiceUnavailable = errors.New("service not configured")
)

// bodySnippetLen bounds the response body kept on a ServiceError.
const bodySnippetLen = 200

// ServiceError is a non-success response from an external service.
type ServiceError struct {
	Service string
	Status  int
	Body    string
}

// NewServiceError truncates body to the snippet length.
func NewServiceError(service string, status int, body []byte) *ServiceError {
	s := string(body)
	if r := []rune(s); len(r) > bodySnippetLen {
		s = string(r[:bodySnippetLen])
	}
	return &ServiceError{Service: service, Status: status, Body: s}
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.Status, e.Body)
}
