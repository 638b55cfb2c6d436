package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chable_leads_backend/internal/events"
	"chable_leads_backend/internal/leads/dedup"
	"chable_leads_backend/internal/leads/domain"
	"chable_leads_backend/internal/properties"
	"chable_leads_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Sink is a CRM destination API. Credentials are per property. Create may
// return "" when the provider accepts a lead without echoing its id; Search
// looks the id up by contact and returns "" when nothing matches.
type Sink interface {
	Create(ctx context.Context, credential string, payload Payload) (string, error)
	Update(ctx context.Context, credential, crmLeadID string, payload Payload) error
	Search(ctx context.Context, credential, phone, email string) (string, error)
}

// Gate decides create-vs-update for a (phone, property) pair and persists the lead.
type Gate interface {
	Apply(ctx context.Context, p domain.Prospect, propertyKey, reason string) (dedup.Decision, error)
}

// SyncRecorder stores the CRM outcome on the lead row. ClaimCreate succeeds
// for at most one caller until the claim is released by MarkSynced or
// MarkFailed, or lease expires.
type SyncRecorder interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	ClaimCreate(ctx context.Context, id uuid.UUID, lease time.Duration) (bool, error)
	MarkSynced(ctx context.Context, id uuid.UUID, crmLeadID string) error
	MarkFailed(ctx context.Context, id uuid.UUID, status domain.SyncStatus, lastError string) error
}

// Options configures a Dispatcher. ClaimLease defaults to twice Timeout.
type Options struct {
	Timeout     time.Duration
	ClaimLease  time.Duration
	Concurrency int
	Now         func() time.Time
}

// Dispatcher sends one lead to a set of properties. Destinations are
// independent: a failure on one never affects another, and nothing is retried inline.
type Dispatcher struct {
	catalog *properties.Registry
	gate    Gate
	sink    Sink
	sync    SyncRecorder
	bus     events.Bus
	log     *logger.Logger
	opts    Options
}

// NewDispatcher creates a dispatcher. bus may be nil.
func NewDispatcher(catalog *properties.Registry, gate Gate, sink Sink, sync SyncRecorder, bus events.Bus, log *logger.Logger, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = 2 * opts.Timeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{catalog: catalog, gate: gate, sink: sink, sync: sync, bus: bus, log: log, opts: opts}
}

// Dispatch sends p to every property in keys and returns one result per
// distinct key, in the order given. It never returns an error: failures are
// reported per property.
func (d *Dispatcher) Dispatch(ctx context.Context, p domain.Prospect, keys []string, reason string) []domain.DispatchResult {
	keys = distinct(keys)
	results := make([]domain.DispatchResult, len(keys))

	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)
	for i, key := range keys {
		g.Go(func() error {
			results[i] = d.dispatchOne(ctx, p, key, reason)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, p domain.Prospect, key, reason string) (result domain.DispatchResult) {
	result.PropertyKey = key
	defer func() {
		if r := recover(); r != nil {
			result = failed(key, uuid.Nil, fmt.Errorf("dispatch panic: %v", r))
		}
		var err error
		if result.Error != "" {
			err = errors.New(result.Error)
		}
		d.log.WithContext(ctx).LeadDispatch(key, string(result.Outcome), result.ErrorKind, err)
	}()

	prop, ok := d.catalog.Current().Get(key)
	if !ok {
		return failed(key, uuid.Nil, fmt.Errorf("%w: %q is not in the catalog", ErrUnknownProperty, key))
	}
	if !prop.Configured() {
		return domain.DispatchResult{PropertyKey: prop.Key, Outcome: domain.OutcomeSkippedUnconfigured}
	}

	decision, err := d.gate.Apply(ctx, p, prop.Key, reason)
	if err != nil {
		return failed(prop.Key, uuid.Nil, err)
	}
	lead := decision.Lead
	if decision.Escalated() && lead.Tier == domain.TierHot {
		d.publish(ctx, events.LeadEscalated{
			BaseEvent:      events.NewBaseEvent(),
			LeadID:         lead.ID,
			PropertyKey:    lead.PropertyKey,
			Phone:          lead.Phone,
			Name:           lead.Name,
			FromTier:       string(decision.PreviousTier),
			ToTier:         string(lead.Tier),
			ConversationID: lead.ConversationID,
			Summary:        p.Summary,
		})
	}

	skipped := domain.DispatchResult{PropertyKey: prop.Key, Outcome: domain.OutcomeSkippedDuplicate, LeadID: lead.ID}
	if lead.CRMLeadID != "" && !decision.Changed && lead.SyncStatus == domain.SyncSynced {
		return skipped
	}

	callCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	if lead.CRMLeadID == "" {
		switch {
		case lead.SyncStatus == domain.SyncSynced:
			// Synced without an id: the provider accepted a create earlier.
			lead.CRMLeadID = d.recoverID(callCtx, prop, lead)
			if lead.CRMLeadID == "" {
				return skipped
			}
			if markErr := d.sync.MarkSynced(ctx, lead.ID, lead.CRMLeadID); markErr != nil {
				d.log.Error("record recovered crm id", "lead_id", lead.ID, "property_key", prop.Key, "error", markErr)
			}
			if !decision.Changed {
				return skipped
			}
		default:
			claimed, err := d.sync.ClaimCreate(ctx, lead.ID, d.opts.ClaimLease)
			if err != nil {
				return failed(prop.Key, lead.ID, fmt.Errorf("claim crm create: %w", err))
			}
			if !claimed {
				// Another dispatch owns the create; only follow up with an
				// update once it has landed and this call changed the lead.
				current, err := d.sync.GetByID(ctx, lead.ID)
				if err != nil {
					return failed(prop.Key, lead.ID, fmt.Errorf("reload claimed lead: %w", err))
				}
				if current.CRMLeadID == "" || !decision.Changed {
					return skipped
				}
				lead = current
			}
		}
	}

	payload := BuildPayload(lead, prop.CRMID, p.Summary, d.opts.Now())
	outcome := domain.OutcomeUpdated
	crmLeadID := lead.CRMLeadID
	if crmLeadID == "" {
		outcome = domain.OutcomeCreated
		crmLeadID, err = d.sink.Create(callCtx, prop.Credential(), payload)
		if err == nil && crmLeadID == "" {
			crmLeadID = d.recoverID(callCtx, prop, lead)
		}
	} else {
		err = d.sink.Update(callCtx, prop.Credential(), crmLeadID, payload)
	}

	if err != nil {
		res := failed(prop.Key, lead.ID, err)
		if markErr := d.sync.MarkFailed(ctx, lead.ID, domain.SyncFailed, err.Error()); markErr != nil {
			d.log.Error("record dispatch failure", "lead_id", lead.ID, "property_key", prop.Key, "error", markErr)
		}
		d.publish(ctx, events.LeadDispatchFailed{
			BaseEvent:   events.NewBaseEvent(),
			LeadID:      lead.ID,
			PropertyKey: prop.Key,
			ErrorKind:   res.ErrorKind,
			Error:       res.Error,
		})
		return res
	}

	if markErr := d.sync.MarkSynced(ctx, lead.ID, crmLeadID); markErr != nil {
		d.log.Error("record dispatch success", "lead_id", lead.ID, "property_key", prop.Key, "crm_lead_id", crmLeadID, "error", markErr)
	}
	if outcome == domain.OutcomeCreated {
		d.publish(ctx, events.LeadDispatched{
			BaseEvent:      events.NewBaseEvent(),
			LeadID:         lead.ID,
			PropertyKey:    prop.Key,
			CRMLeadID:      crmLeadID,
			Phone:          lead.Phone,
			Name:           lead.Name,
			Tier:           string(lead.Tier),
			ConversationID: lead.ConversationID,
			Summary:        p.Summary,
		})
	}
	return domain.DispatchResult{PropertyKey: prop.Key, Outcome: outcome, LeadID: lead.ID}
}

// recoverID asks the CRM for the id of a lead it accepted without echoing one.
// Failures are logged and yield "".
func (d *Dispatcher) recoverID(ctx context.Context, prop properties.Property, lead domain.Lead) string {
	id, err := d.sink.Search(ctx, prop.Credential(), lead.Phone, lead.Email)
	if err != nil {
		d.log.Warn("search crm lead", "lead_id", lead.ID, "property_key", prop.Key, "error", err)
		return ""
	}
	return id
}

func (d *Dispatcher) publish(ctx context.Context, event events.Event) {
	if d.bus != nil {
		d.bus.Publish(ctx, event)
	}
}

func failed(key string, leadID uuid.UUID, err error) domain.DispatchResult {
	return domain.DispatchResult{
		PropertyKey: key,
		Outcome:     domain.OutcomeFailed,
		LeadID:      leadID,
		ErrorKind:   ErrorKind(err),
		Error:       err.Error(),
	}
}

func distinct(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
