// Package intake runs the live lead path: every inbound message is classified
// and, once it qualifies, routed and dispatched to the CRM. CRM failures are
// recorded but never returned to the messaging layer.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chable_leads_backend/internal/leads/classifier"
	"chable_leads_backend/internal/leads/domain"
	"chable_leads_backend/internal/leads/repository"
	"chable_leads_backend/internal/summary"
	"chable_leads_backend/platform/apperr"
	"chable_leads_backend/platform/logger"
	"chable_leads_backend/platform/phone"
)

// Modes recorded on outcomes and used as tier-change reasons.
const (
	ModeMessage      = "message"
	ModeConversation = "conversation"
	ModeManual       = "manual"
	ModeAudit        = "audit"
)

// Conversations is the conversation source.
type Conversations interface {
	GetThread(ctx context.Context, conversationID string) (repository.Thread, error)
	ListMessages(ctx context.Context, conversationID string) ([]repository.Message, error)
}

// Leads lists the leads already created from a conversation.
type Leads interface {
	ListByConversation(ctx context.Context, conversationID string) ([]domain.Lead, error)
}

// Classifier scores messages and transcripts.
type Classifier interface {
	ClassifyMessage(text string) domain.InterestSignal
	ClassifyConversation(messages []classifier.Message) domain.InterestSignal
}

// Router resolves interests to one property key.
type Router interface {
	Resolve(projectInterest, cityInterest string) string
}

// Dispatcher sends a prospect to a set of properties.
type Dispatcher interface {
	Dispatch(ctx context.Context, p domain.Prospect, keys []string, reason string) []domain.DispatchResult
}

// Blocklist reports numbers that must never become leads.
type Blocklist interface {
	IsBlocked(ctx context.Context, number string) (bool, error)
}

// Summarizer produces the CRM conversation summary.
type Summarizer interface {
	Summarize(ctx context.Context, turns []summary.Turn) string
}

// Policy holds the injection thresholds.
type Policy struct {
	MessageThreshold      int
	ConversationThreshold int
	PhoneRegion           string
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{MessageThreshold: 50, ConversationThreshold: 60, PhoneRegion: phone.DefaultRegion}
}

// InboundMessage is a prospect message delivered by the messaging layer.
type InboundMessage struct {
	ConversationID string
	Sender         string
	SenderName     string
	Body           string
}

// Outcome describes what the live path did with a message or conversation.
type Outcome struct {
	ConversationID string                  `json:"conversation_id"`
	Mode           string                  `json:"mode"`
	Signal         domain.InterestSignal   `json:"signal"`
	Blocked        bool                    `json:"blocked,omitempty"`
	Qualified      bool                    `json:"qualified"`
	Results        []domain.DispatchResult `json:"results,omitempty"`
}

// Service is the live-path orchestrator.
type Service struct {
	conversations Conversations
	leads         Leads
	classifier    Classifier
	router        Router
	dispatcher    Dispatcher
	blocklist     Blocklist
	summarizer    Summarizer
	policy        Policy
	log           *logger.Logger
}

// Deps groups the collaborators of Service.
type Deps struct {
	Conversations Conversations
	Leads         Leads
	Classifier    Classifier
	Router        Router
	Dispatcher    Dispatcher
	Blocklist     Blocklist
	Summarizer    Summarizer
	Log           *logger.Logger
}

// New creates the service. Blocklist and Summarizer are optional.
func New(deps Deps, policy Policy) *Service {
	if policy.PhoneRegion == "" {
		policy.PhoneRegion = phone.DefaultRegion
	}
	return &Service{
		conversations: deps.Conversations,
		leads:         deps.Leads,
		classifier:    deps.Classifier,
		router:        deps.Router,
		dispatcher:    deps.Dispatcher,
		blocklist:     deps.Blocklist,
		summarizer:    deps.Summarizer,
		policy:        policy,
		log:           deps.Log,
	}
}

// HandleMessage classifies one inbound message. Conversations that already
// produced leads are enriched and escalated; otherwise a lead is created once
// the message clears the per-message threshold.
func (s *Service) HandleMessage(ctx context.Context, msg InboundMessage) (Outcome, error) {
	ctx = context.WithValue(ctx, logger.ConversationIDKey, msg.ConversationID)
	out := Outcome{ConversationID: msg.ConversationID, Mode: ModeMessage}
	if strings.TrimSpace(msg.ConversationID) == "" {
		return out, apperr.Validation("conversation id is required")
	}

	number := phone.NormalizeE164In(msg.Sender, s.policy.PhoneRegion)
	if s.isBlocked(ctx, number) {
		out.Blocked = true
		return out, nil
	}

	signal := s.classifier.ClassifyMessage(msg.Body)
	out.Signal = signal
	s.log.WithContext(ctx).Classification(msg.ConversationID, ModeMessage, signal.Confidence, string(signal.Tier()))
	if !signal.ShowsInterest {
		return out, nil
	}

	existing, err := s.leads.ListByConversation(ctx, msg.ConversationID)
	if err != nil {
		return out, fmt.Errorf("list conversation leads: %w", err)
	}

	var keys []string
	switch {
	case len(existing) > 0:
		keys = propertyKeys(existing)
		if signal.Extracted.ProjectInterest != "" || signal.Extracted.CityInterest != "" {
			keys = append(keys, s.router.Resolve(signal.Extracted.ProjectInterest, signal.Extracted.CityInterest))
		}
	case signal.Confidence >= s.policy.MessageThreshold:
		keys = []string{s.router.Resolve(signal.Extracted.ProjectInterest, signal.Extracted.CityInterest)}
	default:
		return out, nil
	}

	out.Qualified = true
	p := domain.Prospect{
		Phone:          number,
		Name:           strings.TrimSpace(msg.SenderName),
		ConversationID: msg.ConversationID,
		Tier:           signal.Tier(),
		Confidence:     signal.Confidence,
		Extracted:      signal.Extracted,
	}
	p.Summary = s.summarize(ctx, msg.ConversationID, []summary.Turn{{Inbound: true, Body: msg.Body}})
	out.Results = s.dispatcher.Dispatch(ctx, p, keys, ModeMessage)
	return out, nil
}

// EndTurn gives a conversation without leads a second, stricter chance: the
// whole transcript is classified and must clear the conversation threshold.
func (s *Service) EndTurn(ctx context.Context, conversationID string) (Outcome, error) {
	ctx = context.WithValue(ctx, logger.ConversationIDKey, conversationID)
	existing, err := s.leads.ListByConversation(ctx, conversationID)
	if err != nil {
		return Outcome{ConversationID: conversationID, Mode: ModeConversation}, fmt.Errorf("list conversation leads: %w", err)
	}
	if len(existing) > 0 {
		return Outcome{ConversationID: conversationID, Mode: ModeConversation, Qualified: true}, nil
	}

	thread, err := s.thread(ctx, conversationID)
	if err != nil {
		return Outcome{ConversationID: conversationID, Mode: ModeConversation}, err
	}
	return s.QualifyThread(ctx, thread, ModeConversation)
}

// QualifyThread classifies a thread's transcript in conversation mode and
// dispatches it to its routed property when it clears the conversation threshold.
func (s *Service) QualifyThread(ctx context.Context, thread repository.Thread, reason string) (Outcome, error) {
	out := Outcome{ConversationID: thread.ConversationID, Mode: ModeConversation}
	number := phone.NormalizeE164In(thread.Sender, s.policy.PhoneRegion)
	if s.isBlocked(ctx, number) {
		out.Blocked = true
		return out, nil
	}

	messages, err := s.conversations.ListMessages(ctx, thread.ConversationID)
	if err != nil {
		return out, fmt.Errorf("list messages: %w", err)
	}
	signal := s.classifier.ClassifyConversation(toClassifierMessages(messages))
	out.Signal = signal
	s.log.WithContext(ctx).Classification(thread.ConversationID, ModeConversation, signal.Confidence, string(signal.Tier()))
	if signal.Confidence < s.policy.ConversationThreshold {
		return out, nil
	}

	out.Qualified = true
	p := s.prospect(ctx, thread, number, signal, messages)
	key := s.router.Resolve(signal.Extracted.ProjectInterest, signal.Extracted.CityInterest)
	out.Results = s.dispatcher.Dispatch(ctx, p, []string{key}, reason)
	return out, nil
}

// InjectToProperties dispatches a conversation's lead to explicit properties,
// regardless of thresholds. Each destination succeeds or fails on its own.
func (s *Service) InjectToProperties(ctx context.Context, conversationID string, keys []string) (Outcome, error) {
	ctx = context.WithValue(ctx, logger.ConversationIDKey, conversationID)
	out := Outcome{ConversationID: conversationID, Mode: ModeManual}
	if len(keys) == 0 {
		return out, apperr.Validation("at least one property key is required")
	}

	thread, err := s.thread(ctx, conversationID)
	if err != nil {
		return out, err
	}
	number := phone.NormalizeE164In(thread.Sender, s.policy.PhoneRegion)
	if s.isBlocked(ctx, number) {
		out.Blocked = true
		return out, apperr.Validation("sender is on the blocklist")
	}

	messages, err := s.conversations.ListMessages(ctx, conversationID)
	if err != nil {
		return out, fmt.Errorf("list messages: %w", err)
	}
	signal := s.classifier.ClassifyConversation(toClassifierMessages(messages))
	out.Signal = signal
	out.Qualified = true
	out.Results = s.dispatcher.Dispatch(ctx, s.prospect(ctx, thread, number, signal, messages), keys, ModeManual)
	return out, nil
}

// Replay re-sends a stored lead to its property, typically after a failed
// CRM call. Blocked senders are reported and left untouched.
func (s *Service) Replay(ctx context.Context, lead domain.Lead) (Outcome, error) {
	ctx = context.WithValue(ctx, logger.ConversationIDKey, lead.ConversationID)
	out := Outcome{ConversationID: lead.ConversationID, Mode: ModeAudit, Qualified: true}
	if s.isBlocked(ctx, lead.Phone) {
		out.Blocked = true
		return out, nil
	}

	p := lead.Prospect()
	if lead.ConversationID != "" {
		p.Summary = s.summarize(ctx, lead.ConversationID, nil)
	}
	out.Results = s.dispatcher.Dispatch(ctx, p, []string{lead.PropertyKey}, ModeAudit)
	return out, nil
}

func (s *Service) thread(ctx context.Context, conversationID string) (repository.Thread, error) {
	thread, err := s.conversations.GetThread(ctx, conversationID)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Thread{}, apperr.NotFound("conversation not found")
	}
	if err != nil {
		return repository.Thread{}, fmt.Errorf("get thread: %w", err)
	}
	return thread, nil
}

func (s *Service) prospect(ctx context.Context, thread repository.Thread, number string, signal domain.InterestSignal, messages []repository.Message) domain.Prospect {
	return domain.Prospect{
		Phone:          number,
		Name:           strings.TrimSpace(thread.DisplayName),
		ConversationID: thread.ConversationID,
		Tier:           signal.Tier(),
		Confidence:     signal.Confidence,
		Extracted:      signal.Extracted,
		Summary:        s.summarizeMessages(ctx, messages),
	}
}

func (s *Service) isBlocked(ctx context.Context, number string) bool {
	if s.blocklist == nil {
		return false
	}
	blocked, err := s.blocklist.IsBlocked(ctx, number)
	if err != nil {
		// Fail open: a Redis outage must not stop lead capture.
		s.log.WithContext(ctx).Warn("blocklist check failed", "error", err)
		return false
	}
	return blocked
}

func (s *Service) summarize(ctx context.Context, conversationID string, fallback []summary.Turn) string {
	messages, err := s.conversations.ListMessages(ctx, conversationID)
	if err != nil || len(messages) == 0 {
		return s.summarizeTurns(ctx, fallback)
	}
	return s.summarizeMessages(ctx, messages)
}

func (s *Service) summarizeMessages(ctx context.Context, messages []repository.Message) string {
	turns := make([]summary.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, summary.Turn{Inbound: m.Inbound(), Body: m.Body})
	}
	return s.summarizeTurns(ctx, turns)
}

func (s *Service) summarizeTurns(ctx context.Context, turns []summary.Turn) string {
	if s.summarizer == nil {
		return summary.Digest(turns)
	}
	return s.summarizer.Summarize(ctx, turns)
}

func toClassifierMessages(messages []repository.Message) []classifier.Message {
	out := make([]classifier.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, classifier.Message{Inbound: m.Inbound(), Body: m.Body})
	}
	return out
}

func propertyKeys(leads []domain.Lead) []string {
	keys := make([]string, 0, len(leads))
	for _, l := range leads {
		keys = append(keys, l.PropertyKey)
	}
	return keys
}
