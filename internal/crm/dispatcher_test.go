package crm

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"chable_leads_backend/internal/events"
	"chable_leads_backend/internal/leads/dedup"
	"chable_leads_backend/internal/leads/domain"
	"chable_leads_backend/internal/leads/repository"
	"chable_leads_backend/internal/properties"
	"chable_leads_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu    sync.Mutex
	leads map[string]domain.Lead
}

func newFakeStore() *fakeStore { return &fakeStore{leads: make(map[string]domain.Lead)} }

func (s *fakeStore) FindByPhoneProperty(_ context.Context, phone, key string) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[phone+"|"+key]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return l, nil
}

func (s *fakeStore) Insert(_ context.Context, l domain.Lead) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[l.Phone+"|"+l.PropertyKey]; ok {
		return domain.Lead{}, repository.ErrConflict
	}
	l.ID = uuid.New()
	s.leads[l.Phone+"|"+l.PropertyKey] = l
	return l, nil
}

func (s *fakeStore) Update(_ context.Context, l domain.Lead) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.leads[l.Phone+"|"+l.PropertyKey]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	if current.Version != l.Version {
		return domain.Lead{}, repository.ErrStale
	}
	// Sync columns are owned by the recorder methods.
	l.CRMLeadID, l.SyncStatus, l.LastError = current.CRMLeadID, current.SyncStatus, current.LastError
	l.Version++
	s.leads[l.Phone+"|"+l.PropertyKey] = l
	return l, nil
}

func (s *fakeStore) RecordTierChange(context.Context, uuid.UUID, domain.Tier, domain.Tier, string) error {
	return nil
}

func (s *fakeStore) byID(id uuid.UUID) (string, domain.Lead) {
	for k, l := range s.leads {
		if l.ID == id {
			return k, l
		}
	}
	return "", domain.Lead{}
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, l := s.byID(id)
	if k == "" {
		return domain.Lead{}, repository.ErrNotFound
	}
	return l, nil
}

func (s *fakeStore) ClaimCreate(_ context.Context, id uuid.UUID, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, l := s.byID(id)
	if k == "" {
		return false, repository.ErrNotFound
	}
	if l.CRMLeadID != "" || l.SyncStatus == domain.SyncSending || l.SyncStatus == domain.SyncSynced {
		return false, nil
	}
	l.SyncStatus = domain.SyncSending
	s.leads[k] = l
	return true, nil
}

func (s *fakeStore) MarkSynced(_ context.Context, id uuid.UUID, crmLeadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, l := s.byID(id)
	if k == "" {
		return repository.ErrNotFound
	}
	if crmLeadID != "" {
		l.CRMLeadID = crmLeadID
	}
	l.SyncStatus = domain.SyncSynced
	l.LastError = ""
	s.leads[k] = l
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id uuid.UUID, status domain.SyncStatus, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, l := s.byID(id)
	if k == "" {
		return repository.ErrNotFound
	}
	l.SyncStatus = status
	l.LastError = lastError
	s.leads[k] = l
	return nil
}

type fakeSink struct {
	mu       sync.Mutex
	creates  map[int]int
	updates  map[int]int
	searches int
	failures map[int]error
	// createDelay keeps a create in flight so concurrent dispatches overlap.
	createDelay time.Duration
	// withoutIDs makes Create accept leads without echoing an id.
	withoutIDs bool
	// known maps phone to the id Search reports for it.
	known map[string]string
}

func newFakeSink() *fakeSink {
	return &fakeSink{creates: map[int]int{}, updates: map[int]int{}, failures: map[int]error{}, known: map[string]string{}}
}

func (s *fakeSink) Create(_ context.Context, _ string, p Payload) (string, error) {
	if s.createDelay > 0 {
		time.Sleep(s.createDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[p.PropertyID]; err != nil {
		return "", err
	}
	s.creates[p.PropertyID]++
	if s.withoutIDs {
		return "", nil
	}
	return "crm-" + p.Contact.Phone, nil
}

func (s *fakeSink) Search(_ context.Context, _, phone, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches++
	return s.known[phone], nil
}

func (s *fakeSink) Update(_ context.Context, _ string, _ string, p Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[p.PropertyID]; err != nil {
		return err
	}
	s.updates[p.PropertyID]++
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func testRegistry(t *testing.T) *properties.Registry {
	t.Helper()
	catalog, err := properties.New([]properties.Property{
		{Key: "yucatan", CRMID: 24610, CredentialEnv: "KEY_YUCATAN"},
		{Key: "costalegre", CRMID: 24609, CredentialEnv: "KEY_COSTALEGRE"},
		{Key: "valle_de_guadalupe", CRMID: 24611, CredentialEnv: "KEY_VALLE"},
		{Key: "residencias", CRMID: 24608, CredentialEnv: "KEY_RESIDENCIAS"},
	}, "residencias", func(name string) (string, bool) {
		v, ok := map[string]string{"KEY_YUCATAN": "y", "KEY_VALLE": "v", "KEY_RESIDENCIAS": "r"}[name]
		return v, ok
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return properties.NewRegistry(catalog, "", nil)
}

type harness struct {
	store *fakeStore
	sink  *fakeSink
	bus   *recordingBus
	d     *Dispatcher
}

func newHarness(t *testing.T) harness {
	store := newFakeStore()
	sink := newFakeSink()
	bus := &recordingBus{}
	d := NewDispatcher(testRegistry(t), dedup.New(store), sink, store, bus, logger.Nop(), Options{
		Timeout: time.Second,
		Now:     func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	return harness{store: store, sink: sink, bus: bus, d: d}
}

func hotProspect() domain.Prospect {
	budget := 500000.0
	return domain.Prospect{
		Phone:          "+573162892694",
		ConversationID: "conv-1",
		Tier:           domain.TierHot,
		Confidence:     80,
		Extracted:      domain.Extraction{BudgetMax: &budget, WantsVisit: true},
	}
}

func TestDispatchCredentialRejectedIsFailed(t *testing.T) {
	h := newHarness(t)
	h.sink.failures[24610] = &StatusError{StatusCode: http.StatusUnauthorized}

	results := h.d.Dispatch(context.Background(), hotProspect(), []string{"yucatan"}, "message")

	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	r := results[0]
	if r.PropertyKey != "yucatan" || r.Outcome != domain.OutcomeFailed || r.ErrorKind != KindCredential {
		t.Fatalf("unexpected result %+v", r)
	}
	_, stored := h.store.byID(r.LeadID)
	if stored.SyncStatus != domain.SyncFailed || stored.LastError == "" {
		t.Fatalf("expected lead to be marked failed, got %+v", stored)
	}
}

func TestDispatchIsolatesDestinations(t *testing.T) {
	h := newHarness(t)
	h.sink.failures[24611] = &StatusError{StatusCode: http.StatusServiceUnavailable}

	results := h.d.Dispatch(context.Background(), hotProspect(), []string{"yucatan", "costalegre", "valle_de_guadalupe", "yucatan"}, "message")

	want := map[string]domain.Outcome{
		"yucatan":            domain.OutcomeCreated,
		"costalegre":         domain.OutcomeSkippedUnconfigured,
		"valle_de_guadalupe": domain.OutcomeFailed,
	}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %+v", len(want), results)
	}
	for _, r := range results {
		if r.Outcome != want[r.PropertyKey] {
			t.Fatalf("%s: expected %s, got %s", r.PropertyKey, want[r.PropertyKey], r.Outcome)
		}
	}
	if !domain.AnySucceeded(results) {
		t.Fatalf("expected best-effort success")
	}
	if _, err := h.store.FindByPhoneProperty(context.Background(), "+573162892694", "costalegre"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unconfigured destination must not get a lead row")
	}
}

func TestDispatchTwiceCreatesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.d.Dispatch(ctx, hotProspect(), []string{"yucatan"}, "message")
	second := h.d.Dispatch(ctx, hotProspect(), []string{"yucatan"}, "message")

	if first[0].Outcome != domain.OutcomeCreated {
		t.Fatalf("expected created, got %s", first[0].Outcome)
	}
	if second[0].Outcome != domain.OutcomeSkippedDuplicate {
		t.Fatalf("expected skipped_duplicate, got %s", second[0].Outcome)
	}
	if h.sink.creates[24610] != 1 {
		t.Fatalf("expected exactly one CRM create, got %d", h.sink.creates[24610])
	}

	enriched := hotProspect()
	enriched.Name = "Ana López"
	third := h.d.Dispatch(ctx, enriched, []string{"yucatan"}, "message")
	if third[0].Outcome != domain.OutcomeUpdated || h.sink.updates[24610] != 1 {
		t.Fatalf("expected update after enrichment, got %s (%d updates)", third[0].Outcome, h.sink.updates[24610])
	}
}

func TestDispatchRetriesFailedLeadAsCreate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.sink.failures[24610] = &StatusError{StatusCode: http.StatusBadGateway}
	h.d.Dispatch(ctx, hotProspect(), []string{"yucatan"}, "message")

	delete(h.sink.failures, 24610)
	results := h.d.Dispatch(ctx, hotProspect(), []string{"yucatan"}, "replay")
	if results[0].Outcome != domain.OutcomeCreated {
		t.Fatalf("expected replay to create, got %s", results[0].Outcome)
	}
}

func TestDispatchUnknownPropertyFails(t *testing.T) {
	h := newHarness(t)
	results := h.d.Dispatch(context.Background(), hotProspect(), []string{"atlantis"}, "message")
	if results[0].Outcome != domain.OutcomeFailed || results[0].ErrorKind != KindNotFound {
		t.Fatalf("unexpected result %+v", results[0])
	}
}

func TestDispatchPublishesCreatedEvent(t *testing.T) {
	h := newHarness(t)
	h.d.Dispatch(context.Background(), hotProspect(), []string{"yucatan"}, "message")

	if len(h.bus.events) != 1 {
		t.Fatalf("expected one event, got %d", len(h.bus.events))
	}
	e, ok := h.bus.events[0].(events.LeadDispatched)
	if !ok || e.PropertyKey != "yucatan" || e.CRMLeadID != "crm-+573162892694" {
		t.Fatalf("unexpected event %+v", h.bus.events[0])
	}
}

func TestBuildPayloadPlaceholdersAndMapping(t *testing.T) {
	budget := 500000.0
	lead := domain.Lead{
		Phone:          "+573162892694",
		Tier:           domain.TierHot,
		ConversationID: "conv-1",
		Extracted:      domain.Extraction{BudgetMax: &budget, WantsVisit: true, CityInterest: "merida"},
	}
	p := BuildPayload(lead, 24610, "summary", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	if p.Contact.FirstName == "" || p.Contact.LastName == "" {
		t.Fatalf("expected placeholder names, got %+v", p.Contact)
	}
	if p.Contact.Source != "WhatsApp" || p.Metadata.Platform != "WhatsApp" {
		t.Fatalf("unexpected source/platform %+v", p)
	}
	if p.LeadDetails.InterestLevel != "high" || !p.LeadDetails.VisitRequested || *p.LeadDetails.BudgetMax != 500000 {
		t.Fatalf("unexpected lead details %+v", p.LeadDetails)
	}
	if p.Metadata.CreatedAt != "2026-01-02T03:04:05Z" || p.Metadata.ConversationSummary != "summary" {
		t.Fatalf("unexpected metadata %+v", p.Metadata)
	}

	first, last := splitName("María José de la Fuente")
	if first != "María" || last != "José de la Fuente" {
		t.Fatalf("unexpected split %q %q", first, last)
	}
	if _, last := splitName("Ana"); last == "" {
		t.Fatalf("single name must get a placeholder last name")
	}
}

func TestClassifyStatus(t *testing.T) {
	if ClassifyStatus(http.StatusCreated) != nil {
		t.Fatalf("2xx must not classify as error")
	}
	if !errors.Is(&StatusError{StatusCode: http.StatusForbidden}, ErrCredential) {
		t.Fatalf("403 must be a credential error")
	}
	if ErrorKind(errors.New("boom")) != KindTransient {
		t.Fatalf("unclassified errors must be transient")
	}
}

func TestDispatchConcurrentCallsCreateOnce(t *testing.T) {
	h := newHarness(t)
	h.sink.createDelay = 50 * time.Millisecond

	outcomes := make([]domain.Outcome, 2)
	var wg sync.WaitGroup
	for i := range outcomes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = h.d.Dispatch(context.Background(), hotProspect(), []string{"yucatan"}, "message")[0].Outcome
		}()
	}
	wg.Wait()

	if h.sink.creates[24610] != 1 {
		t.Fatalf("expected one provider create, got %d (outcomes %v)", h.sink.creates[24610], outcomes)
	}
	created := 0
	for _, o := range outcomes {
		switch o {
		case domain.OutcomeCreated:
			created++
		case domain.OutcomeSkippedDuplicate, domain.OutcomeUpdated:
		default:
			t.Fatalf("unexpected outcome %s", o)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one created outcome, got %v", outcomes)
	}
	stored, err := h.store.FindByPhoneProperty(context.Background(), "+573162892694", "yucatan")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.SyncStatus != domain.SyncSynced || stored.CRMLeadID == "" {
		t.Fatalf("expected synced lead with crm id, got %+v", stored)
	}
}

func TestDispatchWithoutProviderIDNeverCreatesTwice(t *testing.T) {
	h := newHarness(t)
	h.sink.withoutIDs = true
	ctx := context.Background()

	first := h.d.Dispatch(ctx, hotProspect(), []string{"yucatan"}, "message")
	second := h.d.Dispatch(ctx, hotProspect(), []string{"yucatan"}, "message")

	if first[0].Outcome != domain.OutcomeCreated {
		t.Fatalf("expected created, got %s", first[0].Outcome)
	}
	if second[0].Outcome != domain.OutcomeSkippedDuplicate {
		t.Fatalf("expected skipped_duplicate, got %s", second[0].Outcome)
	}
	if h.sink.creates[24610] != 1 {
		t.Fatalf("expected one provider create, got %d", h.sink.creates[24610])
	}

	enriched := hotProspect()
	enriched.Name = "Ana López"
	third := h.d.Dispatch(ctx, enriched, []string{"yucatan"}, "message")
	if third[0].Outcome != domain.OutcomeSkippedDuplicate || h.sink.creates[24610] != 1 {
		t.Fatalf("expected no second create while the crm id is unknown, got %s (%d creates)", third[0].Outcome, h.sink.creates[24610])
	}
}

func TestDispatchRecoversProviderIDThroughSearch(t *testing.T) {
	h := newHarness(t)
	h.sink.withoutIDs = true
	ctx := context.Background()

	h.d.Dispatch(ctx, hotProspect(), []string{"yucatan"}, "message")
	h.sink.known["+573162892694"] = "lasso-77"

	enriched := hotProspect()
	enriched.Name = "Ana López"
	results := h.d.Dispatch(ctx, enriched, []string{"yucatan"}, "message")

	if results[0].Outcome != domain.OutcomeUpdated || h.sink.updates[24610] != 1 {
		t.Fatalf("expected update against the recovered id, got %s (%d updates)", results[0].Outcome, h.sink.updates[24610])
	}
	if h.sink.creates[24610] != 1 {
		t.Fatalf("expected one provider create, got %d", h.sink.creates[24610])
	}
	_, stored := h.store.byID(results[0].LeadID)
	if stored.CRMLeadID != "lasso-77" {
		t.Fatalf("expected recovered crm id to be stored, got %q", stored.CRMLeadID)
	}
}

func TestDispatchStoresIDFoundRightAfterCreate(t *testing.T) {
	h := newHarness(t)
	h.sink.withoutIDs = true
	h.sink.known["+573162892694"] = "lasso-91"

	results := h.d.Dispatch(context.Background(), hotProspect(), []string{"yucatan"}, "message")

	if results[0].Outcome != domain.OutcomeCreated {
		t.Fatalf("expected created, got %s", results[0].Outcome)
	}
	_, stored := h.store.byID(results[0].LeadID)
	if stored.CRMLeadID != "lasso-91" || stored.SyncStatus != domain.SyncSynced {
		t.Fatalf("expected searched id to be stored, got %+v", stored)
	}
}
