package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"chable_leads_backend/internal/bootstrap"
	"chable_leads_backend/internal/scheduler"
	"chable_leads_backend/platform/config"
	"chable_leads_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "queue", cfg.GetAsynqQueueName(), "audit_cron", cfg.GetAuditCron())

	if cfg.GetRedisURL() == "" {
		panic("REDIS_URL is required for the scheduler")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Start(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		log.Error("failed to start lead engine", "error", err)
		panic("failed to start lead engine: " + err.Error())
	}
	defer rt.Close()

	worker, err := scheduler.NewWorker(cfg, rt.Leads.Auditor(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	log.Info("scheduler stopped")
}
