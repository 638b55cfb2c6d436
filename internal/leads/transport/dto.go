package transport

import (
	"time"

	"chable_leads_backend/internal/leads/domain"
	"chable_leads_backend/internal/properties"

	"github.com/google/uuid"
)

// Request DTOs
type InboundMessageRequest struct {
	Sender     string     `json:"sender" validate:"required,e164able"`
	SenderName string     `json:"sender_name,omitempty" validate:"max=200"`
	Direction  string     `json:"direction,omitempty" validate:"omitempty,oneof=inbound outbound"`
	Body       string     `json:"body" validate:"max=8000"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
}

type InjectRequest struct {
	PropertyKeys []string `json:"property_keys" validate:"required,min=1,max=10,dive,required,max=100"`
}

type ResetTierRequest struct {
	Tier string `json:"tier" validate:"required,oneof=cold warm hot"`
}

type AuditQuery struct {
	Mode  string `form:"mode" validate:"omitempty,oneof=recent historical"`
	Days  int    `form:"days" validate:"omitempty,min=1,max=3650"`
	Async bool   `form:"async"`
}

type LeadListQuery struct {
	PropertyKey string `form:"property" validate:"omitempty,max=100"`
	Tier        string `form:"tier" validate:"omitempty,oneof=cold warm hot"`
	SyncStatus  string `form:"sync_status" validate:"omitempty,oneof=pending sending synced failed unconfigured"`
	Limit       int    `form:"limit" validate:"omitempty,min=1,max=500"`
}

// Response DTOs
type LeadResponse struct {
	ID             uuid.UUID         `json:"id"`
	Phone          string            `json:"phone"`
	PropertyKey    string            `json:"property_key"`
	Name           string            `json:"name,omitempty"`
	Tier           domain.Tier       `json:"tier"`
	InterestLevel  string            `json:"interest_level"`
	Confidence     int               `json:"confidence"`
	Extracted      domain.Extraction `json:"extracted"`
	ConversationID string            `json:"conversation_id,omitempty"`
	CRMLeadID      string            `json:"crm_lead_id,omitempty"`
	SyncStatus     domain.SyncStatus `json:"sync_status"`
	LastError      string            `json:"last_error,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

type AuditQueuedResponse struct {
	TaskID string `json:"task_id"`
	Mode   string `json:"mode"`
	Days   int    `json:"days,omitempty"`
}

type PropertyResponse struct {
	Key          string                   `json:"key"`
	CRMID        int                      `json:"crm_id"`
	DisplayName  string                   `json:"display_name"`
	Configured   bool                     `json:"configured"`
	Default      bool                     `json:"default"`
	Aliases      []string                 `json:"aliases"`
	Regions      []string                 `json:"regions"`
	SalesContact *properties.SalesContact `json:"sales_contact,omitempty"`
}

type LeadListResponse struct {
	Leads []LeadResponse `json:"leads"`
	Total int            `json:"total"`
}

type CRMStatusResponse struct {
	Provider             string             `json:"provider"`
	Enabled              bool               `json:"enabled"`
	TotalProperties      int                `json:"total_properties"`
	ConfiguredProperties int                `json:"configured_properties"`
	Properties           []PropertyResponse `json:"properties"`
}

type ConnectionTestResponse struct {
	PropertyKey string `json:"property_key"`
	CRMID       int    `json:"crm_id"`
	Configured  bool   `json:"configured"`
	Success     bool   `json:"success"`
	ErrorKind   string `json:"error_kind,omitempty"`
	Error       string `json:"error,omitempty"`
	LatencyMS   int64  `json:"latency_ms"`
}

type BlocklistResponse struct {
	Numbers []string `json:"numbers"`
}

type BlocklistEntryResponse struct {
	Number  string `json:"number"`
	Blocked bool   `json:"blocked"`
}

func ToLeadResponse(l domain.Lead) LeadResponse {
	return LeadResponse{
		ID:             l.ID,
		Phone:          l.Phone,
		PropertyKey:    l.PropertyKey,
		Name:           l.Name,
		Tier:           l.Tier,
		InterestLevel:  l.Tier.InterestLevel(),
		Confidence:     l.Confidence,
		Extracted:      l.Extracted,
		ConversationID: l.ConversationID,
		CRMLeadID:      l.CRMLeadID,
		SyncStatus:     l.SyncStatus,
		LastError:      l.LastError,
		UpdatedAt:      l.UpdatedAt,
	}
}

func ToLeadListResponse(leads []domain.Lead) LeadListResponse {
	out := make([]LeadResponse, 0, len(leads))
	for _, l := range leads {
		out = append(out, ToLeadResponse(l))
	}
	return LeadListResponse{Leads: out, Total: len(out)}
}

func ToCRMStatusResponse(provider string, c *properties.Catalog) CRMStatusResponse {
	props := ToPropertyResponses(c)
	configured := 0
	for _, p := range props {
		if p.Configured {
			configured++
		}
	}
	return CRMStatusResponse{
		Provider:             provider,
		Enabled:              configured > 0,
		TotalProperties:      len(props),
		ConfiguredProperties: configured,
		Properties:           props,
	}
}

func ToPropertyResponses(c *properties.Catalog) []PropertyResponse {
	all := c.All()
	out := make([]PropertyResponse, 0, len(all))
	for _, p := range all {
		out = append(out, PropertyResponse{
			Key:          p.Key,
			CRMID:        p.CRMID,
			DisplayName:  p.DisplayName,
			Configured:   p.Configured(),
			Default:      p.Key == c.DefaultKey(),
			Aliases:      p.Aliases,
			Regions:      p.Regions,
			SalesContact: p.SalesContact,
		})
	}
	return out
}
