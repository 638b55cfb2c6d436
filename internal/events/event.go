// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"chable_leads_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// =============================================================================
// Lead Domain Events
// =============================================================================

// LeadDispatched is published when a lead was created in a property's CRM.
type LeadDispatched struct {
	BaseEvent
	LeadID         uuid.UUID `json:"leadId"`
	PropertyKey    string    `json:"propertyKey"`
	CRMLeadID      string    `json:"crmLeadId"`
	Phone          string    `json:"phone"`
	Name           string    `json:"name"`
	Tier           string    `json:"tier"`
	ConversationID string    `json:"conversationId"`
	Summary        string    `json:"summary"`
}

func (e LeadDispatched) EventName() string { return "leads.lead.dispatched" }

// LeadEscalated is published when an existing lead's tier rises.
type LeadEscalated struct {
	BaseEvent
	LeadID         uuid.UUID `json:"leadId"`
	PropertyKey    string    `json:"propertyKey"`
	Phone          string    `json:"phone"`
	Name           string    `json:"name"`
	FromTier       string    `json:"fromTier"`
	ToTier         string    `json:"toTier"`
	ConversationID string    `json:"conversationId"`
	Summary        string    `json:"summary"`
}

func (e LeadEscalated) EventName() string { return "leads.lead.escalated" }

// LeadDispatchFailed is published when a CRM send for a lead failed.
type LeadDispatchFailed struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	PropertyKey string    `json:"propertyKey"`
	ErrorKind   string    `json:"errorKind"`
	Error       string    `json:"error"`
}

func (e LeadDispatchFailed) EventName() string { return "leads.lead.dispatch_failed" }
