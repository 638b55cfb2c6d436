// Package leads provides the lead detection and CRM routing bounded context.
// This file wires the classifier, router, dedup gate, dispatcher, intake
// service and auditor, and registers the HTTP routes.
package leads

import (
	"chable_leads_backend/internal/crm"
	"chable_leads_backend/internal/crm/lasso"
	"chable_leads_backend/internal/events"
	apphttp "chable_leads_backend/internal/http"
	"chable_leads_backend/internal/leads/audit"
	"chable_leads_backend/internal/leads/classifier"
	"chable_leads_backend/internal/leads/dedup"
	"chable_leads_backend/internal/leads/handler"
	"chable_leads_backend/internal/leads/intake"
	"chable_leads_backend/internal/leads/repository"
	"chable_leads_backend/internal/properties"
	"chable_leads_backend/internal/summary"
	"chable_leads_backend/platform/config"
	"chable_leads_backend/platform/logger"
	"chable_leads_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ModuleConfig combines the config interfaces the module reads.
type ModuleConfig interface {
	config.LeadPolicyConfig
	config.CRMConfig
	config.OpenAIConfig
}

// Blocklist is the blocked-number store used by intake and the admin routes.
type Blocklist interface {
	intake.Blocklist
	handler.Blocklist
}

// Options holds the optional collaborators of the module.
type Options struct {
	// Blocklist may be nil when Redis is not configured.
	Blocklist Blocklist
	// AuditQueue may be nil; async audits are then rejected.
	AuditQueue handler.AuditQueue
	// Sink overrides the Lasso client, mainly for tests.
	Sink crm.Sink
}

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler  *handler.Handler
	intake   *intake.Service
	auditor  *audit.Auditor
	repo     *repository.Repository
	registry *properties.Registry
}

// NewModule creates and initializes the leads module with all its dependencies.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, registry *properties.Registry, val *validator.Validator, cfg ModuleConfig, log *logger.Logger, opts Options) *Module {
	repo := repository.New(pool)
	catalog := registry.Current()

	cities := append(append([]string{}, classifier.DefaultCities...), catalog.Regions()...)
	detector := classifier.New(
		classifier.NewVocabulary(cities, catalog.ProjectNames()),
		classifier.Options{SkipOpeningMessage: cfg.GetSkipOpeningMessage()},
	)

	sink := opts.Sink
	if sink == nil {
		sink = lasso.NewClient(lasso.WithBaseURL(cfg.GetLassoBaseURL()), lasso.WithTimeout(cfg.GetCRMTimeout()))
	}
	dispatcher := crm.NewDispatcher(registry, dedup.New(repo), sink, repo, eventBus, log, crm.Options{
		Timeout:     cfg.GetCRMTimeout(),
		Concurrency: cfg.GetDispatchConcurrency(),
	})

	deps := intake.Deps{
		Conversations: repo,
		Leads:         repo,
		Classifier:    detector,
		Router:        properties.NewRouter(registry, log),
		Dispatcher:    dispatcher,
		Summarizer:    summary.New(cfg, log),
		Log:           log,
	}
	if opts.Blocklist != nil {
		deps.Blocklist = opts.Blocklist
	}
	svc := intake.New(deps, intake.Policy{
		MessageThreshold:      cfg.GetMessageThreshold(),
		ConversationThreshold: cfg.GetConversationThreshold(),
		PhoneRegion:           cfg.GetDefaultPhoneRegion(),
	})
	auditor := audit.New(repo, repo, svc, log)

	handlerDeps := handler.Deps{
		Intake:      svc,
		Recorder:    repo,
		Auditor:     auditor,
		AuditQueue:  opts.AuditQueue,
		Leads:       repo,
		Catalog:     registry,
		CRM:         sink,
		CRMProvider: "lasso",
		CRMTimeout:  cfg.GetCRMTimeout(),
		DefaultDays: cfg.GetAuditDefaultDays(),
		Log:         log,
	}
	if opts.Blocklist != nil {
		handlerDeps.Blocklist = opts.Blocklist
	}

	return &Module{
		handler:  handler.New(handlerDeps, val),
		intake:   svc,
		auditor:  auditor,
		repo:     repo,
		registry: registry,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Intake returns the live-path service.
func (m *Module) Intake() *intake.Service {
	return m.intake
}

// Auditor returns the coverage auditor for the scheduler and CLI.
func (m *Module) Auditor() *audit.Auditor {
	return m.auditor
}

// Repository returns the repository for direct access if needed.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts lead routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	conversations := ctx.Protected.Group("/conversations/:conversationId")
	conversations.POST("/messages", m.handler.ReceiveMessage)
	conversations.POST("/end-turn", m.handler.EndTurn)

	ctx.Admin.GET("/leads", m.handler.ListLeads)
	ctx.Admin.GET("/leads/stats", m.handler.LeadStats)
	ctx.Admin.GET("/leads/coverage", m.handler.Coverage)
	ctx.Admin.POST("/leads/audit", m.handler.TriggerAudit)
	ctx.Admin.POST("/leads/replay-failed", m.handler.ReplayFailed)
	ctx.Admin.POST("/leads/:leadId/reset-tier", m.handler.ResetTier)
	ctx.Admin.POST("/conversations/:conversationId/inject", m.handler.Inject)
	ctx.Admin.GET("/properties", m.handler.ListProperties)
	ctx.Admin.POST("/properties/reload", m.handler.ReloadProperties)
	ctx.Admin.GET("/crm/status", m.handler.CRMStatus)
	ctx.Admin.GET("/crm/properties/:key/test", m.handler.TestConnection)
	ctx.Admin.GET("/blocklist", m.handler.ListBlocked)
	ctx.Admin.POST("/blocklist/:phone", m.handler.Block)
	ctx.Admin.DELETE("/blocklist/:phone", m.handler.Unblock)
}
