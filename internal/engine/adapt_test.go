package engine

import (
	"testing"

	"github.com/supertedai/memgate/internal/store"
)

func recordOverrides(t *testing.T, eng *Engine, ones, zeros int) {
	t.Helper()
	for i := 0; i < ones; i++ {
		if err := eng.DB.RecordMetric(MetricOverride, 1); err != nil {
			t.Fatalf("RecordMetric: %v", err)
		}
	}
	for i := 0; i < zeros; i++ {
		if err := eng.DB.RecordMetric(MetricOverride, 0); err != nil {
			t.Fatalf("RecordMetric: %v", err)
		}
	}
}

func TestEvaluateProposesOnHighOverrideRate(t *testing.T) {
	eng := testEngine(t, nil)

	// 12 of 20 turns overridden: 0.6, well above the band.
	recordOverrides(t, eng, 12, 8)

	proposals, err := eng.Evaluate(24)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(proposals) != 1 {
		t.Fatalf("proposals = %d, want 1", len(proposals))
	}

	p := proposals[0]
	if p.Parameter != ParamRelevanceThreshold {
		t.Errorf("parameter = %q, want %q", p.Parameter, ParamRelevanceThreshold)
	}
	if p.NewValue <= p.OldValue {
		t.Errorf("high override rate should raise the threshold: %f -> %f", p.OldValue, p.NewValue)
	}
	if p.Result != store.AdaptPending {
		t.Errorf("result = %q, want pending", p.Result)
	}
}

func recordTurnInDomain(t *testing.T, eng *Engine, domain string) {
	t.Helper()
	turn := &store.Turn{SessionID: "s1", Domain: domain}
	if err := eng.DB.InsertTurn(turn); err != nil {
		t.Fatalf("InsertTurn: %v", err)
	}
}

func TestEvaluateProposesOnLowOverrideRateWithLongtermFacts(t *testing.T) {
	eng := testEngine(t, nil)

	putLongterm(t, eng, "user_name", "Morten", "My name is Morten", 0.9)
	recordOverrides(t, eng, 0, 20)
	recordTurnInDomain(t, eng, "personal")

	proposals, err := eng.Evaluate(24)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(proposals) != 1 {
		t.Fatalf("proposals = %d, want 1", len(proposals))
	}
	if proposals[0].NewValue >= proposals[0].OldValue {
		t.Errorf("dormant enforcement should lower the threshold: %f -> %f",
			proposals[0].OldValue, proposals[0].NewValue)
	}
}

func TestEvaluateSilentWhenLongtermDomainsUnvisited(t *testing.T) {
	eng := testEngine(t, nil)

	// Longterm facts exist, but the window's turns never entered their
	// domain — the quiet override rate carries no signal.
	putLongterm(t, eng, "user_name", "Morten", "My name is Morten", 0.9)
	recordOverrides(t, eng, 0, 20)
	recordTurnInDomain(t, eng, "technical")

	proposals, err := eng.Evaluate(24)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(proposals) != 0 {
		t.Errorf("proposals = %v, want none when longterm domains saw no turns", proposals)
	}
}

func TestEvaluateSilentWithoutLongtermFacts(t *testing.T) {
	eng := testEngine(t, nil)

	recordOverrides(t, eng, 0, 20)

	proposals, err := eng.Evaluate(24)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(proposals) != 0 {
		t.Errorf("proposals = %v, want none without longterm facts", proposals)
	}
}

func TestEvaluateNeedsEnoughObservations(t *testing.T) {
	eng := testEngine(t, nil)

	recordOverrides(t, eng, 5, 0)

	proposals, err := eng.Evaluate(24)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(proposals) != 0 {
		t.Errorf("proposals = %v, want none for a thin sample", proposals)
	}
}

func TestApplyAndVerifyDegradedReverts(t *testing.T) {
	eng := testEngine(t, nil)

	recordOverrides(t, eng, 12, 8)

	proposals, err := eng.Evaluate(24)
	if err != nil || len(proposals) != 1 {
		t.Fatalf("Evaluate: %v (%d proposals)", err, len(proposals))
	}
	record := proposals[0]

	if err := eng.Apply(&record); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, _ := eng.Params.Get(ParamRelevanceThreshold)
	if got != record.NewValue {
		t.Fatalf("param = %f, want %f after apply", got, record.NewValue)
	}

	// The override rate worsens after the change.
	recordOverrides(t, eng, 40, 0)

	result, err := eng.Verify(&record, 24)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result != store.AdaptDegraded {
		t.Fatalf("result = %q, want degraded", result)
	}

	// Reverted to exactly the pre-change value.
	got, _ = eng.Params.Get(ParamRelevanceThreshold)
	if got != record.OldValue {
		t.Errorf("param = %f, want %f after revert", got, record.OldValue)
	}

	stored, _ := eng.DB.GetAdaptation(record.ID)
	if stored.Result != store.AdaptDegraded {
		t.Errorf("stored result = %q, want degraded", stored.Result)
	}

	regressions, _ := eng.DB.MetricsSince(MetricRegression, 0)
	if len(regressions) != 1 {
		t.Errorf("regression metrics = %d, want 1", len(regressions))
	}
}

func TestVerifyImprovedKeepsChange(t *testing.T) {
	eng := testEngine(t, nil)

	recordOverrides(t, eng, 12, 8)
	proposals, _ := eng.Evaluate(24)
	record := proposals[0]
	eng.Apply(&record)

	// The rate falls back inside the band: enough zeros to dilute.
	recordOverrides(t, eng, 0, 40)

	result, err := eng.Verify(&record, 24)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result != store.AdaptImproved {
		t.Errorf("result = %q, want improved", result)
	}

	got, _ := eng.Params.Get(ParamRelevanceThreshold)
	if got != record.NewValue {
		t.Errorf("param = %f, improved change must be kept", got)
	}
}

func TestEvaluateSkipsParamsWithPendingAdaptation(t *testing.T) {
	eng := testEngine(t, nil)

	recordOverrides(t, eng, 12, 8)

	first, err := eng.Evaluate(24)
	if err != nil || len(first) != 1 {
		t.Fatalf("Evaluate: %v (%d)", err, len(first))
	}

	second, err := eng.Evaluate(24)
	if err != nil {
		t.Fatalf("Evaluate again: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("stacked proposal on pending parameter: %v", second)
	}
}
