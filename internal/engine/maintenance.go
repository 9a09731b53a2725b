package engine

import (
	"context"
	"errors"
	"log"

	"github.com/supertedai/memgate/internal/store"
)

// ErrMaintenanceRunning is returned when a maintenance cycle is requested
// while one is already in flight. Single active run per job.
var ErrMaintenanceRunning = errors.New("maintenance cycle already running")

// MaintenanceReport summarizes one maintenance cycle.
type MaintenanceReport struct {
	Decayed     int                `json:"decayed"`
	Pruned      int                `json:"pruned"`
	Promoted    int                `json:"promoted"`
	Adaptations []store.Adaptation `json:"adaptations"`
}

// RunMaintenanceCycle runs the periodic batch job: temporal decay, unused
// decay, session retention pruning, promotion of recurring chunks, fact
// re-embedding, then the adaptation loop (verify earlier changes, propose
// and apply new ones). Steps degrade independently — a failing step is
// logged and skipped, never aborting the cycle.
func (e *Engine) RunMaintenanceCycle(ctx context.Context) (*MaintenanceReport, error) {
	select {
	case e.maintenanceRunning <- struct{}{}:
	default:
		return nil, ErrMaintenanceRunning
	}
	defer func() { <-e.maintenanceRunning }()

	report := &MaintenanceReport{}

	decayed, pruned, err := e.ApplyTemporalDecay()
	if err != nil {
		log.Printf("maintenance: temporal decay: %v", err)
	}
	report.Decayed += decayed
	report.Pruned += pruned

	decayed, pruned, err = e.DecayUnusedChunks(e.cfg.UnusedDays)
	if err != nil {
		log.Printf("maintenance: unused decay: %v", err)
	}
	report.Decayed += decayed
	report.Pruned += pruned

	sessionCounts, err := e.PruneOldConversations(e.cfg.RetentionDays)
	if err != nil {
		log.Printf("maintenance: prune sessions: %v", err)
	}
	for sid, n := range sessionCounts {
		log.Printf("maintenance: pruned session %s (%d chunks)", sid, n)
		report.Pruned += n
	}

	promoted, err := e.PromoteRecurring(ctx)
	if err != nil {
		log.Printf("maintenance: promote: %v", err)
	}
	report.Promoted = promoted

	if n, err := e.EmbedMissingFacts(ctx); err != nil {
		log.Printf("maintenance: embed missing facts: %v", err)
	} else if n > 0 {
		log.Printf("maintenance: embedded %d facts", n)
	}

	settled, err := e.VerifyPending(24)
	if err != nil {
		log.Printf("maintenance: verify adaptations: %v", err)
	}
	report.Adaptations = append(report.Adaptations, settled...)

	proposals, err := e.Evaluate(24)
	if err != nil {
		log.Printf("maintenance: evaluate: %v", err)
	}
	for i := range proposals {
		if err := e.Apply(&proposals[i]); err != nil {
			log.Printf("maintenance: apply adaptation: %v", err)
			continue
		}
		report.Adaptations = append(report.Adaptations, proposals[i])
	}

	log.Printf("maintenance: decayed=%d pruned=%d promoted=%d adaptations=%d",
		report.Decayed, report.Pruned, report.Promoted, len(report.Adaptations))
	return report, nil
}
