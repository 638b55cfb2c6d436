// Package dedup enforces one lead per (phone, property) pair and decides
// whether a qualifying signal creates a lead or updates the existing one.
package dedup

import (
	"context"
	"errors"
	"fmt"

	"chable_leads_backend/internal/leads/domain"
	"chable_leads_backend/internal/leads/qualification"
	"chable_leads_backend/internal/leads/repository"

	"github.com/google/uuid"
)

// Action is the gate's decision for a (phone, property) pair.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// maxUpdateAttempts bounds how often one update re-reads a lead that
// concurrent writers keep changing.
const maxUpdateAttempts = 5

// Store is the persistence the gate needs. Insert must return
// repository.ErrConflict when the unique (phone, property_key) constraint fires.
// Update must return repository.ErrStale when lead.Version is no longer current.
type Store interface {
	FindByPhoneProperty(ctx context.Context, phone, propertyKey string) (domain.Lead, error)
	Insert(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	Update(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	RecordTierChange(ctx context.Context, id uuid.UUID, from, to domain.Tier, reason string) error
}

// Decision is what the gate did and the resulting stored lead.
type Decision struct {
	Action       Action
	Lead         domain.Lead
	Changed      bool
	PreviousTier domain.Tier
}

// Escalated reports whether the stored tier rose during this decision.
func (d Decision) Escalated() bool {
	return d.Action == ActionUpdate && d.Lead.Tier.Rank() > d.PreviousTier.Rank()
}

// Gate runs the lookup then create-or-update sequence. The lookup is never
// cached: it runs on every call.
type Gate struct {
	store Store
}

// New creates a gate.
func New(store Store) *Gate {
	return &Gate{store: store}
}

// Apply stores p as the lead for propertyKey. When the insert loses a race
// against a concurrent create it re-reads the winner and updates it instead.
func (g *Gate) Apply(ctx context.Context, p domain.Prospect, propertyKey, reason string) (Decision, error) {
	existing, err := g.store.FindByPhoneProperty(ctx, p.Phone, propertyKey)
	switch {
	case err == nil:
		return g.update(ctx, existing, p, reason)
	case !errors.Is(err, repository.ErrNotFound):
		return Decision{}, fmt.Errorf("find lead: %w", err)
	}

	created, err := g.store.Insert(ctx, domain.Lead{
		Phone:          p.Phone,
		PropertyKey:    propertyKey,
		Name:           p.Name,
		Email:          p.Email,
		Tier:           qualification.Initial(p.Tier),
		Confidence:     p.Confidence,
		Extracted:      p.Extracted,
		ConversationID: p.ConversationID,
		SyncStatus:     domain.SyncPending,
	})
	if err == nil {
		return Decision{Action: ActionCreate, Lead: created, Changed: true, PreviousTier: created.Tier}, nil
	}
	if !errors.Is(err, repository.ErrConflict) {
		return Decision{}, fmt.Errorf("insert lead: %w", err)
	}

	winner, err := g.store.FindByPhoneProperty(ctx, p.Phone, propertyKey)
	if err != nil {
		return Decision{}, fmt.Errorf("find lead after conflict: %w", err)
	}
	return g.update(ctx, winner, p, reason)
}

// update merges p into existing and writes it back under the version read.
// A stale write re-reads the row and merges again, so a concurrent
// escalation is never overwritten with an older tier.
func (g *Gate) update(ctx context.Context, existing domain.Lead, p domain.Prospect, reason string) (Decision, error) {
	for attempt := 1; ; attempt++ {
		lead := existing
		changed := lead.Absorb(p)
		transition := qualification.Evaluate(existing.Tier, p.Tier, reason)
		if transition.Changed {
			lead.Tier = transition.To
			changed = true
		}
		if !changed {
			return Decision{Action: ActionUpdate, Lead: existing, PreviousTier: existing.Tier}, nil
		}

		stored, err := g.store.Update(ctx, lead)
		if errors.Is(err, repository.ErrStale) && attempt < maxUpdateAttempts {
			if existing, err = g.store.FindByPhoneProperty(ctx, existing.Phone, existing.PropertyKey); err != nil {
				return Decision{}, fmt.Errorf("re-read stale lead: %w", err)
			}
			continue
		}
		if err != nil {
			return Decision{}, fmt.Errorf("update lead: %w", err)
		}
		if transition.Changed {
			if err := g.store.RecordTierChange(ctx, stored.ID, transition.From, transition.To, transition.Reason); err != nil {
				return Decision{}, fmt.Errorf("record tier change: %w", err)
			}
		}
		return Decision{Action: ActionUpdate, Lead: stored, Changed: true, PreviousTier: existing.Tier}, nil
	}
}
