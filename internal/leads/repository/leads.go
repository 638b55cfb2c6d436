package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"chable_leads_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const leadColumns = `
	id, phone, property_key, COALESCE(name, ''), COALESCE(email, ''), tier, confidence,
	budget_min, budget_max, COALESCE(city_interest, ''), COALESCE(property_type, ''),
	COALESCE(project_interest, ''), COALESCE(urgency, ''), wants_visit, wants_call, wants_info,
	conversation_id, COALESCE(crm_lead_id, ''), sync_status, COALESCE(last_error, ''),
	created_at, updated_at, version`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var (
		l                    domain.Lead
		budgetMin, budgetMax *int64
		tier, status         string
	)
	err := row.Scan(
		&l.ID, &l.Phone, &l.PropertyKey, &l.Name, &l.Email, &tier, &l.Confidence,
		&budgetMin, &budgetMax, &l.Extracted.CityInterest, &l.Extracted.PropertyType,
		&l.Extracted.ProjectInterest, &l.Extracted.Urgency, &l.Extracted.WantsVisit, &l.Extracted.WantsCall, &l.Extracted.WantsInfo,
		&l.ConversationID, &l.CRMLeadID, &status, &l.LastError,
		&l.CreatedAt, &l.UpdatedAt, &l.Version,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	l.Tier = domain.Tier(tier)
	l.SyncStatus = domain.SyncStatus(status)
	l.Extracted.BudgetMin = toFloat(budgetMin)
	l.Extracted.BudgetMax = toFloat(budgetMax)
	return l, nil
}

func collectLeads(rows pgx.Rows) ([]domain.Lead, error) {
	defer rows.Close()
	items := make([]domain.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

func toFloat(v *int64) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func toInt(v *float64) *int64 {
	if v == nil {
		return nil
	}
	i := int64(*v)
	return &i
}

func nullable(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// GetByID returns the lead with id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	l, err := scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if err != nil {
		return domain.Lead{}, notFoundOr(opGetByID, err)
	}
	return l, nil
}

// FindByPhoneProperty looks up the unique lead for a (phone, property) pair.
func (r *Repository) FindByPhoneProperty(ctx context.Context, phone, propertyKey string) (domain.Lead, error) {
	l, err := scanLead(r.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE phone = $1 AND property_key = $2`, phone, propertyKey))
	if err != nil {
		return domain.Lead{}, notFoundOr(opFindByPhoneProperty, err)
	}
	return l, nil
}

// Insert creates a lead. A concurrent insert for the same (phone, property)
// pair surfaces as ErrConflict.
func (r *Repository) Insert(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if lead.SyncStatus == "" {
		lead.SyncStatus = domain.SyncPending
	}
	ex := lead.Extracted
	l, err := scanLead(r.pool.QueryRow(ctx, `
		INSERT INTO leads (
			id, phone, property_key, name, email, tier, confidence,
			budget_min, budget_max, city_interest, property_type, project_interest, urgency,
			wants_visit, wants_call, wants_info, conversation_id, sync_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING `+leadColumns,
		lead.ID, lead.Phone, lead.PropertyKey, nullable(lead.Name), nullable(lead.Email), string(lead.Tier), lead.Confidence,
		toInt(ex.BudgetMin), toInt(ex.BudgetMax), nullable(ex.CityInterest), nullable(ex.PropertyType),
		nullable(ex.ProjectInterest), nullable(ex.Urgency),
		ex.WantsVisit, ex.WantsCall, ex.WantsInfo, lead.ConversationID, string(lead.SyncStatus),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Lead{}, ErrConflict
		}
		return domain.Lead{}, internal(opInsert, err)
	}
	return l, nil
}

// Update writes the mutable qualification fields of a lead read at
// lead.Version. It returns ErrStale when the row changed since that read.
func (r *Repository) Update(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	ex := lead.Extracted
	l, err := scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads SET
			name = $2, email = $3, tier = $4, confidence = $5,
			budget_min = $6, budget_max = $7, city_interest = $8, property_type = $9,
			project_interest = $10, urgency = $11, wants_visit = $12, wants_call = $13, wants_info = $14,
			conversation_id = $15, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $16
		RETURNING `+leadColumns,
		lead.ID, nullable(lead.Name), nullable(lead.Email), string(lead.Tier), lead.Confidence,
		toInt(ex.BudgetMin), toInt(ex.BudgetMax), nullable(ex.CityInterest), nullable(ex.PropertyType),
		nullable(ex.ProjectInterest), nullable(ex.Urgency), ex.WantsVisit, ex.WantsCall, ex.WantsInfo,
		lead.ConversationID, lead.Version,
	))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, internal(opUpdate, err)
	}
	// Leads are never deleted, so a missed row is a version mismatch unless the id is unknown.
	if _, getErr := r.GetByID(ctx, lead.ID); getErr != nil {
		return domain.Lead{}, getErr
	}
	return domain.Lead{}, ErrStale
}

// ClaimCreate marks a lead as being sent so that exactly one dispatch creates
// it at the CRM. It fails when the lead already has a CRM id, was synced, or
// another claim younger than lease is in flight.
func (r *Repository) ClaimCreate(ctx context.Context, id uuid.UUID, lease time.Duration) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET sync_status = 'sending', updated_at = now()
		WHERE id = $1 AND crm_lead_id IS NULL
		  AND (sync_status NOT IN ('sending', 'synced')
		       OR (sync_status = 'sending' AND updated_at < now() - make_interval(secs => $2)))
	`, id, lease.Seconds())
	if err != nil {
		return false, internal(opClaimCreate, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkSynced records a successful CRM send.
func (r *Repository) MarkSynced(ctx context.Context, id uuid.UUID, crmLeadID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET crm_lead_id = COALESCE($2, crm_lead_id), sync_status = 'synced', last_error = NULL, updated_at = now()
		WHERE id = $1
	`, id, nullable(crmLeadID))
	if err != nil {
		return internal(opMarkSynced, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed records a failed or skipped CRM send.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, status domain.SyncStatus, lastError string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET sync_status = $2, last_error = $3, updated_at = now() WHERE id = $1
	`, id, string(status), nullable(lastError))
	if err != nil {
		return internal(opMarkFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByConversation returns every lead created from a conversation.
func (r *Repository) ListByConversation(ctx context.Context, conversationID string) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE conversation_id = $1 ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, internal(opListByConversation, err)
	}
	items, err := collectLeads(rows)
	if err != nil {
		return nil, internal(opListByConversation, err)
	}
	return items, nil
}

// ListFailed returns leads whose last CRM send failed, oldest first.
func (r *Repository) ListFailed(ctx context.Context, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE sync_status = 'failed' ORDER BY updated_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, internal(opListFailed, err)
	}
	items, err := collectLeads(rows)
	if err != nil {
		return nil, internal(opListFailed, err)
	}
	return items, nil
}

// ListLeads returns the newest leads matching filter.
func (r *Repository) ListLeads(ctx context.Context, filter LeadFilter) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE ($1 = '' OR property_key = $1)
		  AND ($2 = '' OR tier = $2)
		  AND ($3 = '' OR sync_status = $3)
		ORDER BY created_at DESC
		LIMIT $4`,
		filter.PropertyKey, string(filter.Tier), string(filter.SyncStatus), filter.Limit)
	if err != nil {
		return nil, internal(opListLeads, err)
	}
	items, err := collectLeads(rows)
	if err != nil {
		return nil, internal(opListLeads, err)
	}
	return items, nil
}

// LeadStats counts leads by property, tier and sync status, and threads by platform.
func (r *Repository) LeadStats(ctx context.Context) (LeadStats, error) {
	var (
		stats LeadStats
		err   error
	)
	if stats.ByProperty, err = r.countBy(ctx, `SELECT property_key, count(*) FROM leads GROUP BY property_key`); err != nil {
		return LeadStats{}, err
	}
	if stats.ByTier, err = r.countBy(ctx, `SELECT tier, count(*) FROM leads GROUP BY tier`); err != nil {
		return LeadStats{}, err
	}
	if stats.BySyncStatus, err = r.countBy(ctx, `SELECT sync_status, count(*) FROM leads GROUP BY sync_status`); err != nil {
		return LeadStats{}, err
	}
	if stats.ByPlatform, err = r.countBy(ctx, `SELECT sender_platform, count(*) FROM threads GROUP BY sender_platform`); err != nil {
		return LeadStats{}, err
	}
	for _, n := range stats.ByProperty {
		stats.Total += n
	}
	return stats, nil
}

func (r *Repository) countBy(ctx context.Context, query string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, internal(opLeadStats, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, internal(opLeadStats, err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, internal(opLeadStats, err)
	}
	return counts, nil
}

// RecordTierChange appends to the tier history.
func (r *Repository) RecordTierChange(ctx context.Context, id uuid.UUID, from, to domain.Tier, reason string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lead_tier_history (lead_id, old_tier, new_tier, reason) VALUES ($1, $2, $3, $4)
	`, id, string(from), string(to), reason)
	if err != nil {
		return internal(opRecordTierChange, err)
	}
	return nil
}

// ResetTier sets a lead's tier unconditionally and records the operator reset.
func (r *Repository) ResetTier(ctx context.Context, id uuid.UUID, tier domain.Tier) (domain.Lead, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Lead{}, internal(opResetTier, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var previous string
	if err := tx.QueryRow(ctx, `SELECT tier FROM leads WHERE id = $1 FOR UPDATE`, id).Scan(&previous); err != nil {
		return domain.Lead{}, notFoundOr(opResetTier, err)
	}
	l, err := scanLead(tx.QueryRow(ctx,
		`UPDATE leads SET tier = $2, version = version + 1, updated_at = now() WHERE id = $1 RETURNING `+leadColumns, id, string(tier)))
	if err != nil {
		return domain.Lead{}, internal(opResetTier, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO lead_tier_history (lead_id, old_tier, new_tier, reason) VALUES ($1, $2, $3, 'operator_reset')
	`, id, previous, string(tier)); err != nil {
		return domain.Lead{}, internal(opResetTier, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, internal(opResetTier, err)
	}
	return l, nil
}
