// Package crm serializes leads into CRM payloads and dispatches them to each
// property's destination, collecting one result per property.
package crm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation means the provider rejected the payload (400).
	ErrValidation = errors.New("crm validation error")
	// ErrCredential means the API key was rejected (401/403) or is missing locally.
	ErrCredential = errors.New("crm credential error")
	// ErrUnknownProperty means the provider does not know the property id (404).
	ErrUnknownProperty = errors.New("crm unknown property")
	// ErrTransient covers network failures, timeouts, 5xx and any other status.
	ErrTransient = errors.New("crm transient error")
)

// Error kinds stored on dispatch results and lead rows.
const (
	KindValidation = "validation"
	KindCredential = "credential"
	KindNotFound   = "not_found"
	KindTransient  = "transient"
)

// StatusError is a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("crm returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("crm returned status %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match the taxonomy sentinel for the status.
func (e *StatusError) Unwrap() error {
	return ClassifyStatus(e.StatusCode)
}

// ClassifyStatus maps a provider HTTP status to its taxonomy sentinel.
// 2xx maps to nil.
func ClassifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return ErrValidation
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrCredential
	case code == http.StatusNotFound:
		return ErrUnknownProperty
	default:
		return ErrTransient
	}
}

// ErrorKind returns the taxonomy tag for err. Unclassified errors count as transient.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrCredential):
		return KindCredential
	case errors.Is(err, ErrUnknownProperty):
		return KindNotFound
	default:
		return KindTransient
	}
}
