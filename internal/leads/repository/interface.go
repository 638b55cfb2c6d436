package repository

import (
	"context"
	"time"

	"chable_leads_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// LeadReader provides read-only access to leads.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	FindByPhoneProperty(ctx context.Context, phone, propertyKey string) (domain.Lead, error)
	ListByConversation(ctx context.Context, conversationID string) ([]domain.Lead, error)
	ListFailed(ctx context.Context, limit int) ([]domain.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]domain.Lead, error)
	LeadStats(ctx context.Context) (LeadStats, error)
}

// LeadWriter provides write operations on leads.
type LeadWriter interface {
	Insert(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	Update(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	MarkSynced(ctx context.Context, id uuid.UUID, crmLeadID string) error
	ClaimCreate(ctx context.Context, id uuid.UUID, lease time.Duration) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, status domain.SyncStatus, lastError string) error
	RecordTierChange(ctx context.Context, id uuid.UUID, from, to domain.Tier, reason string) error
	ResetTier(ctx context.Context, id uuid.UUID, tier domain.Tier) (domain.Lead, error)
}

// LeadFilter narrows ListLeads. Empty fields match every lead.
type LeadFilter struct {
	PropertyKey string
	Tier        domain.Tier
	SyncStatus  domain.SyncStatus
	Limit       int
}

// LeadStats are lead counts grouped for the admin dashboard. ByPlatform
// counts conversation threads by the messaging platform they came from.
type LeadStats struct {
	Total        int            `json:"total"`
	ByProperty   map[string]int `json:"by_property"`
	ByTier       map[string]int `json:"by_tier"`
	BySyncStatus map[string]int `json:"by_sync_status"`
	ByPlatform   map[string]int `json:"by_platform"`
}

// ConversationReader is the conversation source: ordered message history
// per conversation plus the scans the auditor needs.
type ConversationReader interface {
	GetThread(ctx context.Context, conversationID string) (Thread, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	ListAuditCandidates(ctx context.Context, since *time.Time) ([]Thread, error)
	CoverageStats(ctx context.Context) (CoverageStats, error)
}

// ConversationWriter records messages delivered by the messaging layer.
type ConversationWriter interface {
	AppendMessage(ctx context.Context, in NewMessage) error
}

// NewMessage is a message to append, creating its thread on first sight.
type NewMessage struct {
	ConversationID string
	Sender         string
	DisplayName    string
	Direction      string
	Body           string
	At             time.Time
}

// Thread is one conversation with a prospect.
type Thread struct {
	ID             int64
	ConversationID string
	Sender         string
	Platform       string
	DisplayName    string
	CreatedAt      time.Time
	LastMessageAt  *time.Time
}

// Message is one stored conversation message.
type Message struct {
	Direction string
	Body      string
	CreatedAt time.Time
}

// Inbound reports whether the prospect sent the message.
func (m Message) Inbound() bool {
	return m.Direction == "inbound"
}

// CoverageStats are raw thread counts used by the coverage report.
type CoverageStats struct {
	TotalThreads             int
	ThreadsWithLeads         int
	ThreadsWithConversations int
	ThreadsWithoutLeads      int
	MissingConversationIDs   []string
}

var (
	_ LeadReader         = (*Repository)(nil)
	_ LeadWriter         = (*Repository)(nil)
	_ ConversationReader = (*Repository)(nil)
	_ ConversationWriter = (*Repository)(nil)
)
