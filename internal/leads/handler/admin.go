package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"chable_leads_backend/internal/crm"
	"chable_leads_backend/internal/leads/audit"
	"chable_leads_backend/internal/leads/domain"
	"chable_leads_backend/internal/leads/qualification"
	"chable_leads_backend/internal/leads/repository"
	"chable_leads_backend/internal/leads/transport"
	"chable_leads_backend/internal/scheduler"
	"chable_leads_backend/platform/apperr"
	"chable_leads_backend/platform/httpkit"
	"chable_leads_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultLeadListLimit = 100
	defaultCRMTimeout    = 15 * time.Second
	// connectionTestPhone is searched for when testing a credential.
	connectionTestPhone = "+10000000000"
)

// ListLeads lists the newest leads, optionally filtered.
// GET /api/v1/admin/leads?property=&tier=&sync_status=&limit=N
func (h *Handler) ListLeads(c *gin.Context) {
	var q transport.LeadListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultLeadListLimit
	}

	leads, err := h.deps.Leads.ListLeads(c.Request.Context(), repository.LeadFilter{
		PropertyKey: q.PropertyKey,
		Tier:        domain.Tier(q.Tier),
		SyncStatus:  domain.SyncStatus(q.SyncStatus),
		Limit:       limit,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadListResponse(leads))
}

// LeadStats counts leads by property, tier and sync status.
// GET /api/v1/admin/leads/stats
func (h *Handler) LeadStats(c *gin.Context) {
	stats, err := h.deps.Leads.LeadStats(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, stats)
}

// CRMStatus reports the CRM provider and which properties carry a credential.
// GET /api/v1/admin/crm/status
func (h *Handler) CRMStatus(c *gin.Context) {
	httpkit.OK(c, transport.ToCRMStatusResponse(h.deps.CRMProvider, h.deps.Catalog.Current()))
}

// TestConnection checks a property's credential with a read-only CRM search.
// A rejected credential is reported in the body, not as an HTTP error.
// GET /api/v1/admin/crm/properties/:key/test
func (h *Handler) TestConnection(c *gin.Context) {
	prop, ok := h.deps.Catalog.Current().Get(c.Param("key"))
	if !ok {
		httpkit.HandleError(c, apperr.NotFound("property not found"))
		return
	}
	res := transport.ConnectionTestResponse{PropertyKey: prop.Key, CRMID: prop.CRMID, Configured: prop.Configured()}
	if !res.Configured {
		res.ErrorKind = crm.KindCredential
		res.Error = "no credential configured"
		httpkit.OK(c, res)
		return
	}
	if h.deps.CRM == nil {
		httpkit.HandleError(c, apperr.Unavailable("crm client is not configured"))
		return
	}

	timeout := h.deps.CRMTimeout
	if timeout <= 0 {
		timeout = defaultCRMTimeout
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	start := time.Now()
	_, err := h.deps.CRM.Search(ctx, prop.Credential(), connectionTestPhone, "")
	res.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		res.ErrorKind = crm.ErrorKind(err)
		res.Error = err.Error()
		h.deps.Log.WithContext(c.Request.Context()).Warn("crm connection test failed", "property_key", prop.Key, "error_kind", res.ErrorKind, "error", err)
	} else {
		res.Success = true
	}
	httpkit.OK(c, res)
}

// Coverage reports lead coverage over the conversation store.
// GET /api/v1/admin/leads/coverage
func (h *Handler) Coverage(c *gin.Context) {
	report, err := h.deps.Auditor.Coverage(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// TriggerAudit runs a coverage audit inline, or queues it with async=true.
// POST /api/v1/admin/leads/audit?mode=recent|historical&days=N&async=bool
func (h *Handler) TriggerAudit(c *gin.Context) {
	var q transport.AuditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}
	scope, err := audit.ParseScope(q.Mode, q.Days, h.deps.DefaultDays)
	if httpkit.HandleError(c, err) {
		return
	}

	if q.Async {
		if h.deps.AuditQueue == nil {
			httpkit.HandleError(c, apperr.Unavailable("background audits are not configured"))
			return
		}
		taskID, err := h.deps.AuditQueue.EnqueueAudit(c.Request.Context(), scheduler.AuditPayload{Mode: scope.Mode, Days: scope.Days})
		if err != nil {
			h.deps.Log.WithContext(c.Request.Context()).Error("enqueue audit failed", "error", err)
			httpkit.HandleError(c, apperr.Unavailable("could not queue audit"))
			return
		}
		httpkit.Accepted(c, transport.AuditQueuedResponse{TaskID: taskID, Mode: scope.Mode, Days: scope.Days})
		return
	}

	report, err := h.deps.Auditor.Audit(c.Request.Context(), scope)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// ReplayFailed re-sends leads whose last CRM dispatch failed, inline or
// queued with async=true.
// POST /api/v1/admin/leads/replay-failed?async=bool
func (h *Handler) ReplayFailed(c *gin.Context) {
	var q transport.AuditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if q.Async {
		if h.deps.AuditQueue == nil {
			httpkit.HandleError(c, apperr.Unavailable("background audits are not configured"))
			return
		}
		taskID, err := h.deps.AuditQueue.EnqueueReplay(c.Request.Context())
		if err != nil {
			h.deps.Log.WithContext(c.Request.Context()).Error("enqueue replay failed", "error", err)
			httpkit.HandleError(c, apperr.Unavailable("could not queue replay"))
			return
		}
		httpkit.Accepted(c, transport.AuditQueuedResponse{TaskID: taskID, Mode: "replay_failed"})
		return
	}

	report, err := h.deps.Auditor.ReplayFailed(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// ResetTier sets a lead's tier, the only way a tier can move down.
// POST /api/v1/admin/leads/:leadId/reset-tier
func (h *Handler) ResetTier(c *gin.Context) {
	id, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return
	}
	var req transport.ResetTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}

	ctx := c.Request.Context()
	lead, err := h.deps.Leads.GetByID(ctx, id)
	if err != nil {
		httpkit.HandleError(c, leadLookupError(err))
		return
	}
	transition, err := qualification.Reset(lead.Tier, domain.Tier(req.Tier))
	if err != nil {
		httpkit.HandleError(c, apperr.Validation(err.Error()))
		return
	}
	if !transition.Changed {
		httpkit.OK(c, transport.ToLeadResponse(lead))
		return
	}

	updated, err := h.deps.Leads.ResetTier(ctx, id, transition.To)
	if err != nil {
		httpkit.HandleError(c, leadLookupError(err))
		return
	}
	h.deps.Log.WithContext(ctx).Info("lead tier reset", "lead_id", id, "from", transition.From, "to", transition.To)
	httpkit.OK(c, transport.ToLeadResponse(updated))
}

// Inject dispatches a conversation's lead to explicit properties.
// POST /api/v1/admin/conversations/:conversationId/inject
func (h *Handler) Inject(c *gin.Context) {
	conversationID := strings.TrimSpace(c.Param("conversationId"))
	var req transport.InjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}

	catalog := h.deps.Catalog.Current()
	for _, key := range req.PropertyKeys {
		if _, ok := catalog.Get(key); !ok {
			httpkit.HandleError(c, apperr.Validation("unknown property: "+key))
			return
		}
	}

	outcome, err := h.deps.Intake.InjectToProperties(c.Request.Context(), conversationID, req.PropertyKeys)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, outcome)
}

// ListProperties lists the property catalog.
// GET /api/v1/admin/properties
func (h *Handler) ListProperties(c *gin.Context) {
	httpkit.OK(c, transport.ToPropertyResponses(h.deps.Catalog.Current()))
}

// ReloadProperties re-reads the catalog file. The old catalog stays active on error.
// POST /api/v1/admin/properties/reload
func (h *Handler) ReloadProperties(c *gin.Context) {
	catalog, err := h.deps.Catalog.Reload()
	if err != nil {
		httpkit.HandleError(c, apperr.Validation(err.Error()))
		return
	}
	h.deps.Log.WithContext(c.Request.Context()).Info("property catalog reloaded", "properties", len(catalog.All()))
	httpkit.OK(c, transport.ToPropertyResponses(catalog))
}

// ListBlocked lists blocked numbers.
// GET /api/v1/admin/blocklist
func (h *Handler) ListBlocked(c *gin.Context) {
	if !h.blocklistEnabled(c) {
		return
	}
	numbers, err := h.deps.Blocklist.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.BlocklistResponse{Numbers: numbers})
}

// Block adds a number to the blocklist.
// POST /api/v1/admin/blocklist/:phone
func (h *Handler) Block(c *gin.Context) {
	if !h.blocklistEnabled(c) {
		return
	}
	raw := c.Param("phone")
	if err := h.val.Var(raw, "required,e164able"); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}
	number, err := h.deps.Blocklist.Add(c.Request.Context(), raw)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.BlocklistEntryResponse{Number: number, Blocked: true})
}

// Unblock removes a number from the blocklist.
// DELETE /api/v1/admin/blocklist/:phone
func (h *Handler) Unblock(c *gin.Context) {
	if !h.blocklistEnabled(c) {
		return
	}
	removed, err := h.deps.Blocklist.Remove(c.Request.Context(), c.Param("phone"))
	if httpkit.HandleError(c, err) {
		return
	}
	if !removed {
		httpkit.HandleError(c, apperr.NotFound("number is not blocked"))
		return
	}
	httpkit.OK(c, transport.BlocklistEntryResponse{Number: c.Param("phone"), Blocked: false})
}

func (h *Handler) blocklistEnabled(c *gin.Context) bool {
	if h.deps.Blocklist == nil {
		httpkit.HandleError(c, apperr.Unavailable("blocklist is not configured"))
		return false
	}
	return true
}

func leadLookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("lead not found")
	}
	return err
}
