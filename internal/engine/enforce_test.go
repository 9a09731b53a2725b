package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/supertedai/memgate/internal/llm"
)

func TestHandleTurnOverridesContradictingDraft(t *testing.T) {
	// No LLM: the slot pattern check alone must catch the conflict and the
	// fallback synthesis must state the stored fact.
	eng := testEngine(t, nil)
	ctx := context.Background()

	putLongterm(t, eng, "user_name", "Morten", "My name is Morten", 0.9)

	decision, err := eng.HandleTurn(ctx, "What is my name?", "My name is Alex", "sess-1")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if !decision.WasOverridden {
		t.Fatal("expected override")
	}
	if !strings.Contains(decision.FinalAnswer, "Morten") {
		t.Errorf("answer %q does not contain Morten", decision.FinalAnswer)
	}
	if strings.Contains(decision.FinalAnswer, "Alex") {
		t.Errorf("answer %q still contains Alex", decision.FinalAnswer)
	}
	if decision.ConflictReason == "" {
		t.Error("conflict_reason not set")
	}
	if len(decision.FactsUsed) == 0 || decision.FactsUsed[0] != "user_name" {
		t.Errorf("facts_used = %v, want [user_name]", decision.FactsUsed)
	}
}

func TestHandleTurnNoFalseOverrideOnSmallTalk(t *testing.T) {
	eng := testEngine(t, nil)
	ctx := context.Background()

	putLongterm(t, eng, "user_name", "Morten", "My name is Morten", 0.9)

	decision, err := eng.HandleTurn(ctx, "Hi", "Hello!", "sess-1")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if decision.WasOverridden {
		t.Error("small talk must not be overridden")
	}
	if decision.FinalAnswer != "Hello!" {
		t.Errorf("answer = %q, want Hello! untouched", decision.FinalAnswer)
	}
	if strings.Contains(decision.FinalAnswer, "Morten") {
		t.Error("fact leaked into small talk reply")
	}
}

func TestHandleTurnTrustsConsistentDraft(t *testing.T) {
	eng := testEngine(t, nil)
	ctx := context.Background()

	putLongterm(t, eng, "user_name", "Morten", "My name is Morten", 0.9)

	decision, err := eng.HandleTurn(ctx, "What is my name?", "Your name is Morten", "sess-1")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if decision.WasOverridden {
		t.Errorf("consistent draft overridden: %+v", decision)
	}
	if decision.FinalAnswer != "Your name is Morten" {
		t.Errorf("answer = %q, want draft untouched", decision.FinalAnswer)
	}
}

func TestHandleTurnMultiFactSynthesis(t *testing.T) {
	mock := &llm.MockClient{
		Responses: []*llm.Response{
			{Content: "CONTRADICTION"},
			{Content: "CONTRADICTION"},
			{Content: "CONTRADICTION"},
			{Content: "Your children are Anna, Ben and Cara."},
		},
	}
	eng := testEngine(t, mock)
	ctx := context.Background()

	putLongterm(t, eng, "child_1", "Anna", "My children include Anna", 0.9)
	putLongterm(t, eng, "child_2", "Ben", "My children include Ben", 0.9)
	putLongterm(t, eng, "child_3", "Cara", "My children include Cara", 0.9)

	// Keyword embeddings rank these lower than a dedicated embedding
	// service would, so widen the candidate gate for this scenario.
	if err := eng.Params.Set(ParamRelevanceThreshold, 0.30); err != nil {
		t.Fatalf("set threshold: %v", err)
	}

	decision, err := eng.HandleTurn(ctx, "Who are my children?", "You don't have any children.", "sess-1")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if !decision.WasOverridden {
		t.Fatal("expected override")
	}
	for _, name := range []string{"Anna", "Ben", "Cara"} {
		if !strings.Contains(decision.FinalAnswer, name) {
			t.Errorf("answer %q missing %s", decision.FinalAnswer, name)
		}
	}
	if len(decision.FactsUsed) != 3 {
		t.Errorf("facts_used = %v, want all three children", decision.FactsUsed)
	}

	// The synthesis prompt must carry every fact, not just the first.
	last := mock.Calls[len(mock.Calls)-1]
	for _, name := range []string{"Anna", "Ben", "Cara"} {
		if !strings.Contains(last, name) {
			t.Errorf("synthesis prompt missing %s", name)
		}
	}
}

func TestHandleTurnOracleFailureIsConservative(t *testing.T) {
	mock := &llm.MockClient{Err: context.DeadlineExceeded}
	eng := testEngine(t, mock)
	ctx := context.Background()

	putLongterm(t, eng, "child_1", "Anna", "My children include Anna", 0.9)
	eng.Params.Set(ParamRelevanceThreshold, 0.30)

	decision, err := eng.HandleTurn(ctx, "Who are my children?", "You don't have any children.", "sess-1")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	if decision.WasOverridden {
		t.Error("oracle failure must default to no contradiction")
	}
	if decision.FinalAnswer != "You don't have any children." {
		t.Errorf("answer = %q, want draft", decision.FinalAnswer)
	}
	if decision.DegradedNote == "" {
		t.Error("degraded enforcement not noted")
	}
}

func TestHandleTurnCommitsChunkAndTurn(t *testing.T) {
	eng := testEngine(t, nil)
	ctx := context.Background()

	if _, err := eng.HandleTurn(ctx, "I moved to Bergen last month", "Noted!", "sess-1"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	live, err := eng.DB.LiveChunks("sess-1")
	if err != nil {
		t.Fatalf("LiveChunks: %v", err)
	}
	if len(live) != 1 {
		t.Fatalf("chunks = %d, want 1", len(live))
	}
	if !strings.Contains(live[0].Text, "Bergen") {
		t.Errorf("chunk text = %q", live[0].Text)
	}

	turns, err := eng.DB.RecentTurns("sess-1", 5)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 1 {
		t.Errorf("turns = %d, want 1", len(turns))
	}

	sess, _ := eng.DB.GetSession("sess-1")
	if sess == nil || sess.TurnCount != 1 {
		t.Errorf("session not touched: %+v", sess)
	}
}

func TestHandleTurnCancelledBeforeCommit(t *testing.T) {
	eng := testEngine(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := eng.HandleTurn(ctx, "What is my name?", "draft", "sess-1"); err == nil {
		t.Fatal("expected error for cancelled turn")
	}

	live, _ := eng.DB.LiveChunks("sess-1")
	if len(live) != 0 {
		t.Error("abandoned turn left side effects")
	}
	turns, _ := eng.DB.RecentTurns("sess-1", 5)
	if len(turns) != 0 {
		t.Error("abandoned turn recorded a trace")
	}
}

func TestHandleTurnEmptyMessage(t *testing.T) {
	eng := testEngine(t, nil)

	if _, err := eng.HandleTurn(context.Background(), "   ", "draft", "sess-1"); err == nil {
		t.Fatal("expected error for empty message")
	}
}
