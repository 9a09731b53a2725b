package engine

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/supertedai/memgate/internal/store"
)

// Adaptation thresholds. Override rates outside the band propose a
// sensitivity change; verification keeps a change only when the rate moves
// by at least minDelta.
const (
	overrideRateHigh = 0.40
	overrideRateLow  = 0.02
	adaptStep        = 0.05
	minDelta         = 0.02
	minObservations  = 10
)

// thresholdBounds clamp proposals so a runaway loop can't tune the
// relevance threshold out of its useful range.
const (
	relevanceFloor   = 0.30
	relevanceCeiling = 0.90
)

type baselineMetrics struct {
	OverrideRate      float64 `json:"override_rate"`
	ContradictionRate float64 `json:"contradiction_rate"`
	Observations      int     `json:"observations"`
}

// Evaluate aggregates enforcement metrics over the window and proposes
// parameter changes as pending adaptations. A high override rate means the
// engine is second-guessing the model too often, so the relevance threshold
// goes up (fewer candidates judged); a near-zero rate while the conversation
// visits domains that hold longterm facts means enforcement may be asleep,
// so the threshold comes down.
func (e *Engine) Evaluate(windowHours int) ([]store.Adaptation, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	cutoff := time.Now().Add(-time.Duration(windowHours) * time.Hour).UnixMilli()

	overrideRate, overrides, err := e.DB.MetricAverage(MetricOverride, cutoff)
	if err != nil {
		return nil, err
	}
	if overrides < minObservations {
		return nil, nil
	}

	contradictionRate, _, err := e.DB.MetricAverage(MetricContradiction, cutoff)
	if err != nil {
		return nil, err
	}

	baseline, err := json.Marshal(baselineMetrics{
		OverrideRate:      overrideRate,
		ContradictionRate: contradictionRate,
		Observations:      overrides,
	})
	if err != nil {
		return nil, fmt.Errorf("encode baseline: %w", err)
	}

	// Do not stack proposals for a parameter that is still unverified.
	pending, err := e.DB.PendingAdaptations()
	if err != nil {
		return nil, err
	}
	pendingParams := make(map[string]bool, len(pending))
	for _, p := range pending {
		pendingParams[p.Parameter] = true
	}

	current := e.Params.get(ParamRelevanceThreshold)
	var proposals []store.Adaptation

	switch {
	case overrideRate > overrideRateHigh && current < relevanceCeiling:
		proposals = append(proposals, store.Adaptation{
			Parameter: ParamRelevanceThreshold,
			OldValue:  current,
			NewValue:  clamp(current+adaptStep, relevanceFloor, relevanceCeiling),
			Reason: fmt.Sprintf("override rate %.2f above %.2f, raising relevance threshold",
				overrideRate, overrideRateHigh),
			Baseline: string(baseline),
		})
	case overrideRate < overrideRateLow && current > relevanceFloor:
		// A near-zero rate only signals dormant enforcement when the window's
		// conversation actually touched a domain where longterm facts exist.
		// A quiet week of small talk in other domains is not evidence.
		active, err := e.longtermDomainsInWindow(cutoff)
		if err != nil {
			return nil, err
		}
		if len(active) > 0 {
			proposals = append(proposals, store.Adaptation{
				Parameter: ParamRelevanceThreshold,
				OldValue:  current,
				NewValue:  clamp(current-adaptStep, relevanceFloor, relevanceCeiling),
				Reason: fmt.Sprintf("override rate %.2f below %.2f with longterm facts in active domains %v, lowering relevance threshold",
					overrideRate, overrideRateLow, active),
				Baseline: string(baseline),
			})
		}
	}

	var recorded []store.Adaptation
	for i := range proposals {
		if pendingParams[proposals[i].Parameter] {
			continue
		}
		if err := e.DB.InsertAdaptation(&proposals[i]); err != nil {
			return recorded, err
		}
		recorded = append(recorded, proposals[i])
	}

	return recorded, nil
}

// Apply writes a pending adaptation's new value into the live parameter
// registry. The record stays pending until Verify settles it.
func (e *Engine) Apply(record *store.Adaptation) error {
	if record.Result != store.AdaptPending {
		return fmt.Errorf("apply adaptation %d: result is %s, not pending", record.ID, record.Result)
	}
	if err := e.Params.Set(record.Parameter, record.NewValue); err != nil {
		return fmt.Errorf("apply adaptation %d: %w", record.ID, err)
	}
	log.Printf("adaptation %d applied: %s %.3f -> %.3f (%s)",
		record.ID, record.Parameter, record.OldValue, record.NewValue, record.Reason)
	return nil
}

// Verify re-measures the metric behind an applied adaptation and settles the
// record: improved keeps the change, degraded reverts the parameter to
// exactly its old value and logs a regression metric, anything in between is
// neutral and also kept.
func (e *Engine) Verify(record *store.Adaptation, windowHours int) (string, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	cutoff := time.Now().Add(-time.Duration(windowHours) * time.Hour).UnixMilli()

	var baseline baselineMetrics
	if err := json.Unmarshal([]byte(record.Baseline), &baseline); err != nil {
		return "", fmt.Errorf("decode baseline for adaptation %d: %w", record.ID, err)
	}

	overrideRate, count, err := e.DB.MetricAverage(MetricOverride, cutoff)
	if err != nil {
		return "", err
	}
	if count < minObservations {
		// Not enough signal yet. Leave the record pending.
		return store.AdaptPending, nil
	}

	// Improvement means the rate moved back toward the healthy band.
	delta := distanceFromBand(overrideRate) - distanceFromBand(baseline.OverrideRate)

	result := store.AdaptNeutral
	switch {
	case delta < -minDelta:
		result = store.AdaptImproved
	case delta > minDelta:
		result = store.AdaptDegraded
	}

	if result == store.AdaptDegraded {
		if err := e.Params.Set(record.Parameter, record.OldValue); err != nil {
			return "", fmt.Errorf("revert adaptation %d: %w", record.ID, err)
		}
		if err := e.DB.RecordMetric(MetricRegression, 1); err != nil {
			log.Printf("verify: record metric: %v", err)
		}
		log.Printf("adaptation %d regressed: %s reverted to %.3f",
			record.ID, record.Parameter, record.OldValue)
	}

	if err := e.DB.SetAdaptationResult(record.ID, result); err != nil {
		return "", err
	}
	record.Result = result
	return result, nil
}

// VerifyPending settles every adaptation still awaiting verification.
// Called from the maintenance cycle after proposals from earlier cycles
// have had a window to prove themselves.
func (e *Engine) VerifyPending(windowHours int) ([]store.Adaptation, error) {
	pending, err := e.DB.PendingAdaptations()
	if err != nil {
		return nil, err
	}

	var settled []store.Adaptation
	for i := range pending {
		result, err := e.Verify(&pending[i], windowHours)
		if err != nil {
			log.Printf("verify adaptation %d: %v", pending[i].ID, err)
			continue
		}
		if result != store.AdaptPending {
			settled = append(settled, pending[i])
		}
	}
	return settled, nil
}

// longtermDomainsInWindow returns the domains that both hold longterm facts
// and were visited by turns since the cutoff, sorted for stable reasons.
func (e *Engine) longtermDomainsInWindow(cutoff int64) ([]string, error) {
	longterm, err := e.DB.FactsByAuthority(store.AuthorityLongterm)
	if err != nil {
		return nil, err
	}
	if len(longterm) == 0 {
		return nil, nil
	}

	turnDomains, err := e.DB.TurnDomainsSince(cutoff)
	if err != nil {
		return nil, err
	}

	factDomains := make(map[string]bool, len(longterm))
	for _, f := range longterm {
		factDomains[f.Domain] = true
	}

	var active []string
	for _, d := range turnDomains {
		if factDomains[d] {
			active = append(active, d)
		}
	}
	sort.Strings(active)
	return active, nil
}

// distanceFromBand measures how far an override rate sits outside the
// healthy [low, high] band; zero inside it.
func distanceFromBand(rate float64) float64 {
	switch {
	case rate > overrideRateHigh:
		return rate - overrideRateHigh
	case rate < overrideRateLow:
		return overrideRateLow - rate
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
