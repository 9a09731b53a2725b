// Package sched runs the periodic maintenance cycle on a cron schedule.
package sched

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/supertedai/memgate/internal/engine"
)

const cycleTimeout = 10 * time.Minute

// Runner owns the cron scheduler for background maintenance. The engine's
// own single-flight guard means an overlapping trigger (cron plus a manual
// API call) is skipped, not queued.
type Runner struct {
	cron   *cron.Cron
	engine *engine.Engine
}

// New builds a Runner from a standard 5-field cron expression.
func New(eng *engine.Engine, schedule string) (*Runner, error) {
	r := &Runner{
		cron:   cron.New(),
		engine: eng,
	}

	if _, err := r.cron.AddFunc(schedule, r.runCycle); err != nil {
		return nil, fmt.Errorf("parse maintenance schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start begins scheduling. Non-blocking; jobs run in cron's goroutine.
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop halts scheduling and waits for a running job to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Runner) runCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	report, err := r.engine.RunMaintenanceCycle(ctx)
	if err != nil {
		if errors.Is(err, engine.ErrMaintenanceRunning) {
			log.Printf("sched: maintenance already running, skipping")
			return
		}
		log.Printf("sched: maintenance cycle: %v", err)
		return
	}
	log.Printf("sched: maintenance done: decayed=%d pruned=%d promoted=%d",
		report.Decayed, report.Pruned, report.Promoted)
}
