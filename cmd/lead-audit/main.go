// Command lead-audit runs one coverage audit from the shell and prints the
// report as JSON. Exit status is non-zero when any thread failed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chable_leads_backend/internal/bootstrap"
	"chable_leads_backend/internal/leads/audit"
	"chable_leads_backend/platform/config"
	"chable_leads_backend/platform/logger"
)

func main() {
	mode := flag.String("mode", audit.ModeRecent, "audit mode: recent or historical")
	days := flag.Int("days", 0, "lookback window in days for recent mode (0 uses LEAD_AUDIT_DEFAULT_DAYS)")
	coverage := flag.Bool("coverage", false, "print the coverage report instead of running an audit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env)

	scope, err := audit.ParseScope(*mode, *days, cfg.GetAuditDefaultDays())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Start(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		log.Error("failed to start lead engine", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	var out any
	failed := false
	if *coverage {
		report, err := rt.Leads.Auditor().Coverage(ctx)
		if err != nil {
			log.Error("coverage failed", "error", err)
			os.Exit(1)
		}
		out = report
	} else {
		report, err := rt.Leads.Auditor().Audit(ctx, scope)
		if err != nil {
			log.Error("audit failed", "error", err)
			failed = true
		}
		failed = failed || len(report.Errors) > 0
		out = report
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Error("failed to write report", "error", err)
		os.Exit(1)
	}
	if failed {
		rt.Close()
		os.Exit(1)
	}
}
