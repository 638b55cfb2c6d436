package scheduler

import (
	"context"
	"errors"
	"fmt"

	"chable_leads_backend/internal/leads/audit"
	"chable_leads_backend/platform/apperr"
	"chable_leads_backend/platform/config"
	"chable_leads_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// replayCron is how often failed CRM sends are retried.
const replayCron = "@every 1h"

// Auditor runs coverage audits and failed-lead replays.
type Auditor interface {
	Audit(ctx context.Context, scope audit.Scope) (audit.Report, error)
	ReplayFailed(ctx context.Context) (audit.Report, error)
}

type Worker struct {
	server      *asynq.Server
	scheduler   *asynq.Scheduler
	mux         *asynq.ServeMux
	auditor     Auditor
	defaultDays int
	log         *logger.Logger
}

// WorkerConfig combines the settings the worker needs.
type WorkerConfig interface {
	config.SchedulerConfig
	config.LeadPolicyConfig
}

func NewWorker(cfg WorkerConfig, auditor Auditor, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := queueName(cfg)
	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 2
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	periodic := asynq.NewScheduler(opt, &asynq.SchedulerOpts{})
	auditTask, err := NewLeadAuditTask(AuditPayload{Mode: audit.ModeRecent, Days: cfg.GetAuditDefaultDays()})
	if err != nil {
		return nil, err
	}
	if _, err := periodic.Register(cfg.GetAuditCron(), auditTask, asynq.Queue(queue), asynq.Unique(uniqueWindow)); err != nil {
		return nil, fmt.Errorf("register audit schedule %q: %w", cfg.GetAuditCron(), err)
	}
	if _, err := periodic.Register(replayCron, NewReplayFailedTask(), asynq.Queue(queue), asynq.Unique(uniqueWindow)); err != nil {
		return nil, fmt.Errorf("register replay schedule: %w", err)
	}

	w := &Worker{
		server:      server,
		scheduler:   periodic,
		auditor:     auditor,
		defaultDays: cfg.GetAuditDefaultDays(),
		log:         log,
	}
	w.mux = w.routes()
	return w, nil
}

func (w *Worker) routes() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskLeadAudit, w.handleLeadAudit)
	mux.HandleFunc(TaskReplayFailed, w.handleReplayFailed)
	return mux
}

// Run serves tasks and the periodic schedule until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	if err := w.scheduler.Start(); err != nil {
		w.log.Error("periodic scheduler failed to start", "error", err)
	}

	go func() {
		<-ctx.Done()
		w.scheduler.Shutdown()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleLeadAudit(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadAuditPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	scope, err := audit.ParseScope(payload.Mode, payload.Days, w.defaultDays)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	report, err := w.auditor.Audit(ctx, scope)
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}
	w.log.Info("lead audit task done",
		"mode", scope.Mode,
		"threads_scanned", report.ThreadsScanned,
		"leads_fixed", report.LeadsFixed,
		"leads_replayed", report.LeadsReplayed,
		"errors", len(report.Errors),
	)
	return nil
}

func (w *Worker) handleReplayFailed(ctx context.Context, _ *asynq.Task) error {
	report, err := w.auditor.ReplayFailed(ctx)
	if err != nil {
		return err
	}
	if len(report.Errors) > 0 {
		w.log.Warn("failed lead replay left errors", "errors", len(report.Errors))
	}
	return nil
}

// IsSkipRetry reports whether a handler error was marked as permanent.
func IsSkipRetry(err error) bool {
	return errors.Is(err, asynq.SkipRetry)
}
