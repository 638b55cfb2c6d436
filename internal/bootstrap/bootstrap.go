// Package bootstrap holds the infrastructure wiring shared by the binaries:
// database startup, the property catalog, Redis-backed stores and the
// notification fan-out.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"chable_leads_backend/internal/blocklist"
	"chable_leads_backend/internal/events"
	"chable_leads_backend/internal/leads"
	"chable_leads_backend/internal/notification"
	"chable_leads_backend/internal/properties"
	"chable_leads_backend/internal/scheduler"
	"chable_leads_backend/internal/whatsapp"
	"chable_leads_backend/platform/config"
	"chable_leads_backend/platform/db"
	"chable_leads_backend/platform/logger"
	"chable_leads_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	retryAttempts  = 5
	retryBaseDelay = 2 * time.Second
)

// Runtime is the wired lead engine plus the resources a binary must release.
type Runtime struct {
	Pool      *pgxpool.Pool
	Bus       *events.InMemoryBus
	Registry  *properties.Registry
	Leads     *leads.Module
	Validator *validator.Validator

	closers []func() error
}

// Options toggles the optional parts of the runtime.
type Options struct {
	// Migrate runs the schema migrations after connecting.
	Migrate bool
	// AuditQueue connects the asynq client for background audits.
	AuditQueue bool
}

// Start connects the database, loads the catalog and wires the leads module
// together with its optional Redis, WhatsApp and AMQP collaborators.
func Start(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*Runtime, error) {
	rt := &Runtime{Validator: validator.New()}

	if err := WithRetry(ctx, log, "database connection", retryAttempts, retryBaseDelay, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		rt.Pool = p
		return nil
	}); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	rt.closers = append(rt.closers, func() error { rt.Pool.Close(); return nil })
	log.Info("database connection established")

	if opts.Migrate {
		if err := WithRetry(ctx, log, "database migrations", retryAttempts, retryBaseDelay, func() error {
			return db.RunMigrations(ctx, rt.Pool, log)
		}); err != nil {
			rt.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		log.Info("database migrations complete")
	}

	catalog, err := properties.LoadFile(cfg.GetPropertiesFile(), os.LookupEnv)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Registry = properties.NewRegistry(catalog, cfg.GetPropertiesFile(), os.LookupEnv)
	logCatalog(log, catalog)

	rt.Bus = events.NewInMemoryBus(log)

	publisher, err := notification.NewAMQPPublisher(ctx, cfg, log)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("connect event broker: %w", err)
	}
	if publisher != nil {
		rt.closers = append(rt.closers, publisher.Close)
	}
	newNotifications(rt.Registry, whatsapp.NewClient(cfg, log), publisher, log).RegisterHandlers(rt.Bus)

	moduleOpts := leads.Options{}
	if store := initBlocklist(cfg, log); store != nil {
		rt.closers = append(rt.closers, store.Close)
		moduleOpts.Blocklist = store
	}
	if opts.AuditQueue {
		if queue := initAuditQueue(cfg, log); queue != nil {
			rt.closers = append(rt.closers, queue.Close)
			moduleOpts.AuditQueue = queue
		}
	}

	rt.Leads = leads.NewModule(rt.Pool, rt.Bus, rt.Registry, rt.Validator, cfg, log, moduleOpts)
	return rt, nil
}

// Close waits for in-flight event handlers, then releases resources in
// reverse order of acquisition.
func (rt *Runtime) Close() {
	if rt.Bus != nil {
		rt.Bus.Wait()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
	rt.closers = nil
}

// newNotifications keeps typed nil clients out of the module's interfaces.
func newNotifications(registry *properties.Registry, wa *whatsapp.Client, publisher *notification.AMQPPublisher, log *logger.Logger) *notification.Module {
	var sender notification.WhatsAppSender
	if wa != nil {
		sender = wa
	} else {
		log.Warn("WhatsApp gateway not configured; sales contacts will not be notified")
	}
	var pub notification.Publisher
	if publisher != nil {
		pub = publisher
	}
	return notification.New(registry, sender, pub, log)
}

func initBlocklist(cfg config.BlocklistConfig, log *logger.Logger) *blocklist.Store {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; blocklist disabled")
		return nil
	}
	store, err := blocklist.NewFromConfig(cfg)
	if err != nil {
		log.Error("failed to initialize blocklist", "error", err)
		return nil
	}
	return store
}

func initAuditQueue(cfg config.SchedulerConfig, log *logger.Logger) *scheduler.Client {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; background audits disabled")
		return nil
	}
	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize audit queue client", "error", err)
		return nil
	}
	return client
}

func logCatalog(log *logger.Logger, catalog *properties.Catalog) {
	for _, p := range catalog.All() {
		if !p.Configured() {
			log.Warn("property has no CRM credential; leads will be stored as unconfigured", "property_key", p.Key)
		}
	}
	log.Info("property catalog loaded", "properties", len(catalog.All()), "default", catalog.DefaultKey())
}

// WithRetry runs fn up to attempts times with quadratic backoff.
func WithRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
