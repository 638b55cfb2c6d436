package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncStatus tracks a lead's state in its CRM destination.
type SyncStatus string

const (
	SyncPending      SyncStatus = "pending"
	SyncSending      SyncStatus = "sending"
	SyncSynced       SyncStatus = "synced"
	SyncFailed       SyncStatus = "failed"
	SyncUnconfigured SyncStatus = "unconfigured"
)

// Lead is a qualified prospect scoped to exactly one property.
// (Phone, PropertyKey) is unique.
type Lead struct {
	ID             uuid.UUID  `json:"id"`
	Phone          string     `json:"phone"`
	PropertyKey    string     `json:"property_key"`
	Name           string     `json:"name,omitempty"`
	Email          string     `json:"email,omitempty"`
	Tier           Tier       `json:"tier"`
	Confidence     int        `json:"confidence"`
	Extracted      Extraction `json:"extracted"`
	ConversationID string     `json:"conversation_id"`
	CRMLeadID      string     `json:"crm_lead_id,omitempty"`
	SyncStatus     SyncStatus `json:"sync_status"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	// Version increments on every qualification write; updates compare it.
	Version int `json:"-"`
}

// Prospect is the identity and qualification data that the live path and
// the auditor hand to dispatch before a lead row exists.
type Prospect struct {
	Phone          string
	Name           string
	Email          string
	ConversationID string
	Tier           Tier
	Confidence     int
	Extracted      Extraction
	Summary        string
}

// Prospect rebuilds the dispatch input from a stored lead.
func (l Lead) Prospect() Prospect {
	return Prospect{
		Phone:          l.Phone,
		Name:           l.Name,
		Email:          l.Email,
		ConversationID: l.ConversationID,
		Tier:           l.Tier,
		Confidence:     l.Confidence,
		Extracted:      l.Extracted,
	}
}

// Absorb folds a prospect's identity and extraction into an existing lead
// and reports whether anything changed. Tier is left to the qualification
// state machine.
func (l *Lead) Absorb(p Prospect) bool {
	changed := false

	if p.Name != "" && p.Name != l.Name {
		l.Name = p.Name
		changed = true
	}
	if p.Email != "" && p.Email != l.Email {
		l.Email = p.Email
		changed = true
	}
	if p.Confidence > l.Confidence {
		l.Confidence = p.Confidence
		changed = true
	}
	merged := l.Extracted.Merge(p.Extracted)
	if !merged.Equal(l.Extracted) {
		l.Extracted = merged
		changed = true
	}
	if l.ConversationID == "" && p.ConversationID != "" {
		l.ConversationID = p.ConversationID
		changed = true
	}
	return changed
}
