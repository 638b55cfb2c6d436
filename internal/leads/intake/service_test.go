package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chable_leads_backend/internal/leads/classifier"
	"chable_leads_backend/internal/leads/domain"
	"chable_leads_backend/internal/leads/repository"
	"chable_leads_backend/platform/apperr"
	"chable_leads_backend/platform/logger"
)

type fakeConversations struct {
	threads  map[string]repository.Thread
	messages map[string][]repository.Message
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{
		threads:  make(map[string]repository.Thread),
		messages: make(map[string][]repository.Message),
	}
}

func (f *fakeConversations) add(id, sender string, inbound ...string) {
	f.threads[id] = repository.Thread{ConversationID: id, Sender: sender, DisplayName: "Ana López", CreatedAt: time.Now()}
	for _, body := range inbound {
		f.messages[id] = append(f.messages[id], repository.Message{Direction: "inbound", Body: body})
	}
}

func (f *fakeConversations) GetThread(_ context.Context, id string) (repository.Thread, error) {
	t, ok := f.threads[id]
	if !ok {
		return repository.Thread{}, repository.ErrNotFound
	}
	return t, nil
}

func (f *fakeConversations) ListMessages(_ context.Context, id string) ([]repository.Message, error) {
	return f.messages[id], nil
}

type fakeLeads struct {
	byConversation map[string][]domain.Lead
}

func (f *fakeLeads) ListByConversation(_ context.Context, id string) ([]domain.Lead, error) {
	return f.byConversation[id], nil
}

type fakeRouter struct {
	key                 string
	gotProject, gotCity string
}

func (r *fakeRouter) Resolve(project, city string) string {
	r.gotProject, r.gotCity = project, city
	return r.key
}

type dispatchCall struct {
	prospect domain.Prospect
	keys     []string
	reason   string
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (d *fakeDispatcher) Dispatch(_ context.Context, p domain.Prospect, keys []string, reason string) []domain.DispatchResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{prospect: p, keys: keys, reason: reason})
	results := make([]domain.DispatchResult, 0, len(keys))
	for _, k := range keys {
		results = append(results, domain.DispatchResult{PropertyKey: k, Outcome: domain.OutcomeCreated})
	}
	return results
}

type fakeBlocklist struct {
	blocked map[string]bool
	err     error
}

func (b *fakeBlocklist) IsBlocked(_ context.Context, number string) (bool, error) {
	return b.blocked[number], b.err
}

type fixture struct {
	svc           *Service
	conversations *fakeConversations
	leads         *fakeLeads
	router        *fakeRouter
	dispatcher    *fakeDispatcher
	blocklist     *fakeBlocklist
}

func newFixture() *fixture {
	f := &fixture{
		conversations: newFakeConversations(),
		leads:         &fakeLeads{byConversation: make(map[string][]domain.Lead)},
		router:        &fakeRouter{key: "yucatan"},
		dispatcher:    &fakeDispatcher{},
		blocklist:     &fakeBlocklist{blocked: make(map[string]bool)},
	}
	vocab := classifier.NewVocabulary(classifier.DefaultCities, []string{"Chablé Yucatán", "Chablé Valle"})
	f.svc = New(Deps{
		Conversations: f.conversations,
		Leads:         f.leads,
		Classifier:    classifier.New(vocab, classifier.Options{}),
		Router:        f.router,
		Dispatcher:    f.dispatcher,
		Blocklist:     f.blocklist,
		Log:           logger.Nop(),
	}, DefaultPolicy())
	return f
}

func TestHandleMessageBelowThresholdDoesNotDispatch(t *testing.T) {
	f := newFixture()
	out, err := f.svc.HandleMessage(context.Background(), InboundMessage{
		ConversationID: "c1", Sender: "5566752552", Body: "Hola, quiero información",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Qualified || len(f.dispatcher.calls) != 0 {
		t.Fatalf("information alone must not dispatch: %+v", out)
	}
	if !out.Signal.ShowsInterest {
		t.Fatalf("expected interest to be detected")
	}
}

func TestHandleMessageAboveThresholdDispatchesToRoutedProperty(t *testing.T) {
	f := newFixture()
	out, err := f.svc.HandleMessage(context.Background(), InboundMessage{
		ConversationID: "c1",
		Sender:         "+52 55 6675 2552",
		SenderName:     "Ana",
		Body:           "Quiero agendar una visita a Chablé Yucatán, ¿cuánto cuesta?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Qualified || len(f.dispatcher.calls) != 1 {
		t.Fatalf("expected one dispatch, got %+v", out)
	}
	call := f.dispatcher.calls[0]
	if call.reason != ModeMessage || len(call.keys) != 1 || call.keys[0] != "yucatan" {
		t.Fatalf("unexpected dispatch call: %+v", call)
	}
	if call.prospect.Phone != "+525566752552" {
		t.Fatalf("expected normalized phone, got %q", call.prospect.Phone)
	}
	if call.prospect.Tier != domain.TierHot {
		t.Fatalf("expected hot prospect, got %s", call.prospect.Tier)
	}
	if call.prospect.Summary == "" {
		t.Fatalf("expected a summary")
	}
	if f.router.gotProject == "" {
		t.Fatalf("expected project interest to reach the router")
	}
}

func TestHandleMessageBlockedSenderIsIgnored(t *testing.T) {
	f := newFixture()
	f.blocklist.blocked["+525566752552"] = true

	out, err := f.svc.HandleMessage(context.Background(), InboundMessage{
		ConversationID: "c1", Sender: "5566752552", Body: "Quiero agendar una visita urgente",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Blocked || len(f.dispatcher.calls) != 0 {
		t.Fatalf("blocked sender must not dispatch: %+v", out)
	}
}

func TestHandleMessageBlocklistOutageFailsOpen(t *testing.T) {
	f := newFixture()
	f.blocklist.err = errors.New("redis down")

	out, err := f.svc.HandleMessage(context.Background(), InboundMessage{
		ConversationID: "c1", Sender: "5566752552", Body: "Quiero agendar una visita urgente",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Blocked || len(f.dispatcher.calls) != 1 {
		t.Fatalf("expected dispatch despite blocklist error: %+v", out)
	}
}

func TestHandleMessageEnrichesExistingLeads(t *testing.T) {
	f := newFixture()
	f.leads.byConversation["c1"] = []domain.Lead{{PropertyKey: "costalegre", Tier: domain.TierCold}}

	out, err := f.svc.HandleMessage(context.Background(), InboundMessage{
		ConversationID: "c1", Sender: "5566752552", Body: "es urgente",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Qualified || len(f.dispatcher.calls) != 1 {
		t.Fatalf("expected enrichment dispatch, got %+v", out)
	}
	call := f.dispatcher.calls[0]
	if len(call.keys) != 1 || call.keys[0] != "costalegre" {
		t.Fatalf("expected existing property only, got %v", call.keys)
	}
	if call.prospect.Tier != domain.TierHot {
		t.Fatalf("expected urgency to escalate to hot, got %s", call.prospect.Tier)
	}
}

func TestHandleMessageRequiresConversationID(t *testing.T) {
	f := newFixture()
	_, err := f.svc.HandleMessage(context.Background(), InboundMessage{Body: "hola"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEndTurnQualifiesCumulativeConversation(t *testing.T) {
	f := newFixture()
	f.conversations.add("c2", "5566752552",
		"Hola, quiero información",
		"¿Dónde está ubicado?",
		"¿Tiene alberca?",
	)

	out, err := f.svc.EndTurn(context.Background(), "c2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Signal.Confidence < 60 {
		t.Fatalf("expected conversation confidence >= 60, got %d", out.Signal.Confidence)
	}
	if !out.Qualified || len(f.dispatcher.calls) != 1 {
		t.Fatalf("expected one dispatch, got %+v", out)
	}
	if got := f.dispatcher.calls[0].reason; got != ModeConversation {
		t.Fatalf("expected conversation reason, got %q", got)
	}
	if got := f.dispatcher.calls[0].prospect.Name; got != "Ana López" {
		t.Fatalf("expected thread display name, got %q", got)
	}
}

func TestEndTurnSkipsConversationsWithLeads(t *testing.T) {
	f := newFixture()
	f.conversations.add("c2", "5566752552", "Quiero agendar una visita urgente")
	f.leads.byConversation["c2"] = []domain.Lead{{PropertyKey: "yucatan"}}

	out, err := f.svc.EndTurn(context.Background(), "c2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.dispatcher.calls) != 0 || !out.Qualified {
		t.Fatalf("expected no dispatch for an already qualified conversation: %+v", out)
	}
}

func TestEndTurnBelowThreshold(t *testing.T) {
	f := newFixture()
	f.conversations.add("c3", "5566752552", "hola", "gracias")

	out, err := f.svc.EndTurn(context.Background(), "c3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Qualified || len(f.dispatcher.calls) != 0 {
		t.Fatalf("expected no dispatch: %+v", out)
	}
}

func TestInjectToProperties(t *testing.T) {
	f := newFixture()
	f.conversations.add("c4", "5566752552", "hola")

	out, err := f.svc.InjectToProperties(context.Background(), "c4", []string{"yucatan", "costalegre"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Results) != 2 || len(f.dispatcher.calls) != 1 {
		t.Fatalf("expected one dispatch to two properties, got %+v", out)
	}
	if got := f.dispatcher.calls[0].reason; got != ModeManual {
		t.Fatalf("expected manual reason, got %q", got)
	}
}

func TestInjectToPropertiesErrors(t *testing.T) {
	f := newFixture()
	f.conversations.add("c5", "5566752552", "hola")
	f.blocklist.blocked["+525566752552"] = true

	if _, err := f.svc.InjectToProperties(context.Background(), "c5", nil); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for empty keys, got %v", err)
	}
	if _, err := f.svc.InjectToProperties(context.Background(), "missing", []string{"yucatan"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.InjectToProperties(context.Background(), "c5", []string{"yucatan"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected blocked sender to be rejected, got %v", err)
	}
	if len(f.dispatcher.calls) != 0 {
		t.Fatalf("expected no dispatch, got %d", len(f.dispatcher.calls))
	}
}

func TestReplayRedispatchesStoredLead(t *testing.T) {
	f := newFixture()
	f.conversations.add("c6", "5566752552", "Quiero agendar una visita")
	lead := domain.Lead{Phone: "+525566752552", PropertyKey: "costalegre", Tier: domain.TierHot, ConversationID: "c6"}

	out, err := f.svc.Replay(context.Background(), lead)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Results) != 1 || len(f.dispatcher.calls) != 1 {
		t.Fatalf("expected one replay dispatch, got %+v", out)
	}
	call := f.dispatcher.calls[0]
	if call.keys[0] != "costalegre" || call.reason != ModeAudit || call.prospect.Tier != domain.TierHot {
		t.Fatalf("unexpected replay call: %+v", call)
	}
}
