package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"chable_leads_backend/internal/leads/audit"
	"chable_leads_backend/internal/leads/domain"
	"chable_leads_backend/internal/leads/intake"
	"chable_leads_backend/internal/leads/repository"
	"chable_leads_backend/internal/leads/transport"
	"chable_leads_backend/internal/properties"
	"chable_leads_backend/internal/scheduler"
	"chable_leads_backend/platform/httpkit"
	"chable_leads_backend/platform/logger"
	"chable_leads_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidLeadID    = "invalid lead id"
	msgMissingConvID    = "conversation id is required"
)

// Intake is the live lead path.
type Intake interface {
	HandleMessage(ctx context.Context, msg intake.InboundMessage) (intake.Outcome, error)
	EndTurn(ctx context.Context, conversationID string) (intake.Outcome, error)
	InjectToProperties(ctx context.Context, conversationID string, keys []string) (intake.Outcome, error)
}

// MessageRecorder appends delivered messages to the conversation store.
type MessageRecorder interface {
	AppendMessage(ctx context.Context, in repository.NewMessage) error
}

// Auditor runs coverage audits.
type Auditor interface {
	Audit(ctx context.Context, scope audit.Scope) (audit.Report, error)
	ReplayFailed(ctx context.Context) (audit.Report, error)
	Coverage(ctx context.Context) (audit.CoverageReport, error)
}

// AuditQueue enqueues audits and replays on the background worker.
type AuditQueue interface {
	EnqueueAudit(ctx context.Context, payload scheduler.AuditPayload) (string, error)
	EnqueueReplay(ctx context.Context) (string, error)
}

// LeadStore reads leads and applies operator tier resets.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ListLeads(ctx context.Context, filter repository.LeadFilter) ([]domain.Lead, error)
	LeadStats(ctx context.Context) (repository.LeadStats, error)
	ResetTier(ctx context.Context, id uuid.UUID, tier domain.Tier) (domain.Lead, error)
}

// CRMClient is the read-only part of the CRM API used to test a property's
// credential.
type CRMClient interface {
	Search(ctx context.Context, credential, phone, email string) (string, error)
}

// Catalog exposes and reloads the property catalog.
type Catalog interface {
	Current() *properties.Catalog
	Reload() (*properties.Catalog, error)
}

// Blocklist manages blocked phone numbers.
type Blocklist interface {
	Add(ctx context.Context, number string) (string, error)
	Remove(ctx context.Context, number string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// Deps groups the handler's collaborators. AuditQueue, Blocklist and CRM may be nil.
type Deps struct {
	Intake      Intake
	Recorder    MessageRecorder
	Auditor     Auditor
	AuditQueue  AuditQueue
	Leads       LeadStore
	Catalog     Catalog
	Blocklist   Blocklist
	CRM         CRMClient
	CRMProvider string
	CRMTimeout  time.Duration
	DefaultDays int
	Log         *logger.Logger
}

// Handler handles HTTP requests for lead intake and administration.
type Handler struct {
	deps Deps
	val  *validator.Validator
}

// New creates a new leads handler.
func New(deps Deps, val *validator.Validator) *Handler {
	return &Handler{deps: deps, val: val}
}

// ReceiveMessage stores a delivered message and, for inbound messages, runs
// the live qualification path. CRM outcomes never change the status code.
// POST /api/v1/conversations/:conversationId/messages
func (h *Handler) ReceiveMessage(c *gin.Context) {
	conversationID := strings.TrimSpace(c.Param("conversationId"))
	if conversationID == "" {
		httpkit.Error(c, http.StatusBadRequest, msgMissingConvID, nil)
		return
	}
	var req transport.InboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}

	direction := req.Direction
	if direction == "" {
		direction = "inbound"
	}
	at := time.Now().UTC()
	if req.SentAt != nil {
		at = req.SentAt.UTC()
	}

	ctx := c.Request.Context()
	if h.deps.Recorder != nil {
		err := h.deps.Recorder.AppendMessage(ctx, repository.NewMessage{
			ConversationID: conversationID,
			Sender:         req.Sender,
			DisplayName:    strings.TrimSpace(req.SenderName),
			Direction:      direction,
			Body:           req.Body,
			At:             at,
		})
		if httpkit.HandleError(c, err) {
			return
		}
	}

	if direction != "inbound" {
		httpkit.Accepted(c, intake.Outcome{ConversationID: conversationID, Mode: intake.ModeMessage})
		return
	}

	outcome, err := h.deps.Intake.HandleMessage(ctx, intake.InboundMessage{
		ConversationID: conversationID,
		Sender:         req.Sender,
		SenderName:     req.SenderName,
		Body:           req.Body,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Accepted(c, outcome)
}

// EndTurn runs the whole-conversation check after the assistant replied.
// POST /api/v1/conversations/:conversationId/end-turn
func (h *Handler) EndTurn(c *gin.Context) {
	conversationID := strings.TrimSpace(c.Param("conversationId"))
	if conversationID == "" {
		httpkit.Error(c, http.StatusBadRequest, msgMissingConvID, nil)
		return
	}
	outcome, err := h.deps.Intake.EndTurn(c.Request.Context(), conversationID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Accepted(c, outcome)
}
