package domain

import "github.com/google/uuid"

// Outcome is the result of one CRM send attempt for one property.
type Outcome string

const (
	OutcomeCreated             Outcome = "created"
	OutcomeUpdated             Outcome = "updated"
	OutcomeSkippedDuplicate    Outcome = "skipped_duplicate"
	OutcomeSkippedUnconfigured Outcome = "skipped_unconfigured"
	OutcomeFailed              Outcome = "failed"
)

// DispatchResult describes what happened for one targeted property.
type DispatchResult struct {
	PropertyKey string    `json:"property_key"`
	Outcome     Outcome   `json:"outcome"`
	LeadID      uuid.UUID `json:"lead_id,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Failed reports whether the attempt failed.
func (r DispatchResult) Failed() bool {
	return r.Outcome == OutcomeFailed
}

// AnySucceeded reports whether at least one result is not a failure.
// Multi-property dispatch is best-effort per destination.
func AnySucceeded(results []DispatchResult) bool {
	for _, r := range results {
		if !r.Failed() {
			return true
		}
	}
	return false
}
