// Package audit repairs missed lead injections. It rescans conversations that
// never produced a lead, replays leads whose CRM send failed, and reports how
// much of the conversation store is covered by leads.
package audit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"chable_leads_backend/internal/leads/domain"
	"chable_leads_backend/internal/leads/intake"
	"chable_leads_backend/internal/leads/repository"
	"chable_leads_backend/platform/apperr"
	"chable_leads_backend/platform/logger"
)

// Scope modes.
const (
	ModeRecent     = "recent"
	ModeHistorical = "historical"
)

const defaultReplayLimit = 200

// Scope selects the conversations an audit pass scans.
type Scope struct {
	Mode string `json:"mode"`
	Days int    `json:"days,omitempty"`
}

// Recent scopes the pass to conversations active in the last days.
func Recent(days int) Scope { return Scope{Mode: ModeRecent, Days: days} }

// Historical scopes the pass to the full history.
func Historical() Scope { return Scope{Mode: ModeHistorical} }

// ParseScope validates a mode string and day count from an admin request or task payload.
func ParseScope(mode string, days, defaultDays int) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeRecent:
		if days <= 0 {
			days = defaultDays
		}
		if days <= 0 {
			return Scope{}, apperr.Validation("days must be positive")
		}
		return Recent(days), nil
	case ModeHistorical:
		return Historical(), nil
	default:
		return Scope{}, apperr.Validation(fmt.Sprintf("unknown audit mode %q", mode))
	}
}

// Report summarizes one audit pass.
type Report struct {
	Scope          Scope     `json:"scope"`
	ThreadsScanned int       `json:"threads_scanned"`
	LeadsFixed     int       `json:"leads_fixed"`
	LeadsReplayed  int       `json:"leads_replayed"`
	Blocked        int       `json:"blocked"`
	Errors         []string  `json:"errors"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// CoverageReport describes how many conversations have produced leads.
type CoverageReport struct {
	TotalThreads                  int      `json:"total_threads"`
	ThreadsWithLeads              int      `json:"threads_with_leads"`
	ThreadsWithConversations      int      `json:"threads_with_conversations"`
	ThreadsWithoutLeads           int      `json:"threads_without_leads"`
	LeadCoveragePercentage        float64  `json:"lead_coverage_percentage"`
	MissingLeadsFromConversations int      `json:"missing_leads_from_conversations"`
	MissingConversationIDs        []string `json:"missing_conversation_ids"`
}

// Conversations lists audit candidates and coverage counts.
type Conversations interface {
	ListAuditCandidates(ctx context.Context, since *time.Time) ([]repository.Thread, error)
	CoverageStats(ctx context.Context) (repository.CoverageStats, error)
}

// FailedLeads lists leads whose last CRM send failed.
type FailedLeads interface {
	ListFailed(ctx context.Context, limit int) ([]domain.Lead, error)
}

// Qualifier runs a conversation or a stored lead through the live path.
type Qualifier interface {
	QualifyThread(ctx context.Context, thread repository.Thread, reason string) (intake.Outcome, error)
	Replay(ctx context.Context, lead domain.Lead) (intake.Outcome, error)
}

// Auditor runs audit passes.
type Auditor struct {
	conversations Conversations
	failed        FailedLeads
	qualifier     Qualifier
	log           *logger.Logger
	now           func() time.Time
	replayLimit   int
}

// New creates an Auditor.
func New(conversations Conversations, failed FailedLeads, qualifier Qualifier, log *logger.Logger) *Auditor {
	return &Auditor{
		conversations: conversations,
		failed:        failed,
		qualifier:     qualifier,
		log:           log,
		now:           time.Now,
		replayLimit:   defaultReplayLimit,
	}
}

// Audit rescans conversations in scope that have inbound messages but no lead
// and dispatches the ones that clear the conversation threshold. Only leads
// that were created or updated in the CRM count as fixed, so a second pass
// over unchanged data fixes nothing. One conversation failing never aborts the pass.
func (a *Auditor) Audit(ctx context.Context, scope Scope) (Report, error) {
	report := Report{Scope: scope, StartedAt: a.now(), Errors: make([]string, 0)}

	var since *time.Time
	switch scope.Mode {
	case ModeRecent:
		if scope.Days <= 0 {
			return report, apperr.Validation("days must be positive")
		}
		t := a.now().AddDate(0, 0, -scope.Days)
		since = &t
	case ModeHistorical:
	default:
		return report, apperr.Validation(fmt.Sprintf("unknown audit mode %q", scope.Mode))
	}

	threads, err := a.conversations.ListAuditCandidates(ctx, since)
	if err != nil {
		return report, fmt.Errorf("list audit candidates: %w", err)
	}

	for _, thread := range threads {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("audit interrupted: %v", err))
			break
		}
		report.ThreadsScanned++

		out, err := a.qualifier.QualifyThread(ctx, thread, intake.ModeAudit)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", thread.ConversationID, err))
			continue
		}
		if out.Blocked {
			report.Blocked++
			continue
		}
		report.LeadsFixed += countDelivered(out.Results)
		report.Errors = append(report.Errors, resultErrors(thread.ConversationID, out.Results)...)
	}

	a.replay(ctx, &report)

	report.FinishedAt = a.now()
	a.log.WithContext(ctx).Info("lead audit finished",
		"mode", scope.Mode,
		"days", scope.Days,
		"threads_scanned", report.ThreadsScanned,
		"leads_fixed", report.LeadsFixed,
		"leads_replayed", report.LeadsReplayed,
		"errors", len(report.Errors),
	)
	return report, nil
}

// ReplayFailed re-sends only the leads whose last CRM send failed.
func (a *Auditor) ReplayFailed(ctx context.Context) (Report, error) {
	report := Report{Scope: Scope{Mode: "replay"}, StartedAt: a.now(), Errors: make([]string, 0)}
	a.replay(ctx, &report)
	report.FinishedAt = a.now()
	a.log.WithContext(ctx).Info("failed lead replay finished",
		"leads_replayed", report.LeadsReplayed,
		"errors", len(report.Errors),
	)
	return report, nil
}

func (a *Auditor) replay(ctx context.Context, report *Report) {
	if a.failed == nil || ctx.Err() != nil {
		return
	}
	leads, err := a.failed.ListFailed(ctx, a.replayLimit)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("list failed leads: %v", err))
		return
	}
	for _, lead := range leads {
		if ctx.Err() != nil {
			return
		}
		out, err := a.qualifier.Replay(ctx, lead)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("replay %s: %v", lead.ID, err))
			continue
		}
		if out.Blocked {
			report.Blocked++
			continue
		}
		report.LeadsReplayed += countDelivered(out.Results)
		report.Errors = append(report.Errors, resultErrors(lead.ConversationID, out.Results)...)
	}
}

// Coverage reports the share of conversations that produced at least one lead.
func (a *Auditor) Coverage(ctx context.Context) (CoverageReport, error) {
	stats, err := a.conversations.CoverageStats(ctx)
	if err != nil {
		return CoverageReport{}, fmt.Errorf("coverage stats: %w", err)
	}
	ids := stats.MissingConversationIDs
	if ids == nil {
		ids = []string{}
	}
	return CoverageReport{
		TotalThreads:                  stats.TotalThreads,
		ThreadsWithLeads:              stats.ThreadsWithLeads,
		ThreadsWithConversations:      stats.ThreadsWithConversations,
		ThreadsWithoutLeads:           stats.ThreadsWithoutLeads,
		LeadCoveragePercentage:        percentage(stats.ThreadsWithLeads, stats.TotalThreads),
		MissingLeadsFromConversations: stats.ThreadsWithoutLeads,
		MissingConversationIDs:        ids,
	}, nil
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}

func countDelivered(results []domain.DispatchResult) int {
	n := 0
	for _, r := range results {
		if r.Outcome == domain.OutcomeCreated || r.Outcome == domain.OutcomeUpdated {
			n++
		}
	}
	return n
}

func resultErrors(conversationID string, results []domain.DispatchResult) []string {
	var out []string
	for _, r := range results {
		if r.Failed() {
			out = append(out, fmt.Sprintf("%s/%s: %s", conversationID, r.PropertyKey, r.Error))
		}
	}
	return out
}
