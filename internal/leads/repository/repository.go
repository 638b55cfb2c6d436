// Package repository provides PostgreSQL persistence for leads and the
// conversation store they are derived from.
package repository

import (
	"errors"

	"chable_leads_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert hits the (phone, property_key) unique constraint.
	ErrConflict = errors.New("lead already exists for phone and property")
	// ErrStale is returned when an update carries a version another writer already replaced.
	ErrStale = errors.New("lead was modified concurrently")
)

const (
	opFindByPhoneProperty = "leads.repository.find_by_phone_property"
	opInsert              = "leads.repository.insert"
	opUpdate              = "leads.repository.update"
	opMarkSynced          = "leads.repository.mark_synced"
	opClaimCreate         = "leads.repository.claim_create"
	opListLeads           = "leads.repository.list_leads"
	opLeadStats           = "leads.repository.lead_stats"
	opMarkFailed          = "leads.repository.mark_failed"
	opListByConversation  = "leads.repository.list_by_conversation"
	opListFailed          = "leads.repository.list_failed"
	opResetTier           = "leads.repository.reset_tier"
	opRecordTierChange    = "leads.repository.record_tier_change"
	opGetByID             = "leads.repository.get_by_id"
	opGetThread           = "leads.repository.get_thread"
	opListMessages        = "leads.repository.list_messages"
	opListAuditCandidates = "leads.repository.list_audit_candidates"
	opCoverageStats       = "leads.repository.coverage_stats"
	opAppendMessage       = "leads.repository.append_message"

	uniqueViolation = "23505"
)

// Repository implements the lead store and the conversation source over one pool.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func internal(op string, err error) error {
	return apperr.Internal(op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFoundOr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return internal(op, err)
}
