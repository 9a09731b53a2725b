package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/supertedai/memgate/internal/store"
)

func TestStoreChunkDefaults(t *testing.T) {
	eng := testEngine(t, nil)

	chunk, err := eng.StoreChunk(context.Background(), "sess-1", "we set up the database", "technical")
	if err != nil {
		t.Fatalf("StoreChunk: %v", err)
	}
	if chunk.MemoryClass != store.ClassShortTerm {
		t.Errorf("memory_class = %q, want short_term", chunk.MemoryClass)
	}
	if chunk.RelevanceDecay != 1.0 {
		t.Errorf("relevance_decay = %f, want 1.0", chunk.RelevanceDecay)
	}

	cv, err := eng.DB.GetChunkVector(chunk.ID)
	if err != nil || cv == nil {
		t.Errorf("chunk vector not saved: %v", err)
	}
}

func TestStoreChunkBumpsSeenOnRecurrence(t *testing.T) {
	eng := testEngine(t, nil)
	ctx := context.Background()

	first, err := eng.StoreChunk(ctx, "sess-1", "my name is Morten", "personal")
	if err != nil {
		t.Fatalf("StoreChunk: %v", err)
	}

	second, err := eng.StoreChunk(ctx, "sess-1", "my name is Morten", "personal")
	if err != nil {
		t.Fatalf("StoreChunk recurrence: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("recurrence created a new chunk: %s != %s", second.ID, first.ID)
	}
	if second.SeenCount != 2 {
		t.Errorf("seen_count = %d, want 2", second.SeenCount)
	}

	live, _ := eng.DB.LiveChunks("sess-1")
	if len(live) != 1 {
		t.Errorf("chunks = %d, want 1", len(live))
	}
}

func TestStoreChunkRecurrenceAcrossSessions(t *testing.T) {
	eng := testEngine(t, nil)
	ctx := context.Background()

	// The same claim restated in a fresh session each day is one claim.
	first, err := eng.StoreChunk(ctx, "monday", "I am vegetarian and never eat meat", "personal")
	if err != nil {
		t.Fatalf("StoreChunk: %v", err)
	}
	for _, sess := range []string{"tuesday", "wednesday"} {
		chunk, err := eng.StoreChunk(ctx, sess, "I am vegetarian and never eat meat", "personal")
		if err != nil {
			t.Fatalf("StoreChunk %s: %v", sess, err)
		}
		if chunk.ID != first.ID {
			t.Fatalf("session %s created a new chunk: %s != %s", sess, chunk.ID, first.ID)
		}
	}

	merged, _ := eng.DB.GetChunk(first.ID)
	if merged.SeenCount != 3 {
		t.Errorf("seen_count = %d, want 3", merged.SeenCount)
	}

	promoted, err := eng.PromoteRecurring(ctx)
	if err != nil {
		t.Fatalf("PromoteRecurring: %v", err)
	}
	if promoted != 1 {
		t.Errorf("promoted = %d, want 1", promoted)
	}

	facts, _ := eng.DB.AllFacts()
	if len(facts) != 1 {
		t.Fatalf("facts = %d, want 1", len(facts))
	}
	if facts[0].Text != "I am vegetarian and never eat meat" {
		t.Errorf("fact text = %q", facts[0].Text)
	}
}

func TestQueryChunksRanksBySimilarity(t *testing.T) {
	eng := testEngine(t, nil)
	ctx := context.Background()

	eng.StoreChunk(ctx, "sess-1", "we migrated the database to sqlite", "technical")
	eng.StoreChunk(ctx, "sess-1", "lunch plans for friday with the team", "personal")

	results, err := eng.QueryChunks(ctx, "sqlite database migration", 5, "sess-1")
	if err != nil {
		t.Fatalf("QueryChunks: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if results[0].Chunk.Text != "we migrated the database to sqlite" {
		t.Errorf("top result = %q", results[0].Chunk.Text)
	}
}

func TestApplyTemporalDecayExponential(t *testing.T) {
	eng := testEngine(t, nil)
	ctx := context.Background()

	chunk, err := eng.StoreChunk(ctx, "sess-1", "transient detail", "general")
	if err != nil {
		t.Fatalf("StoreChunk: %v", err)
	}

	// Age the decay anchor three periods into the past.
	anchor := time.Now().Add(-3 * decayPeriod).UnixMilli()
	if err := eng.DB.SetChunkDecay(chunk.ID, 1.0, anchor); err != nil {
		t.Fatalf("SetChunkDecay: %v", err)
	}

	decayed, pruned, err := eng.ApplyTemporalDecay()
	if err != nil {
		t.Fatalf("ApplyTemporalDecay: %v", err)
	}
	if decayed != 1 || pruned != 0 {
		t.Errorf("decayed=%d pruned=%d, want 1/0", decayed, pruned)
	}

	found, _ := eng.DB.GetChunk(chunk.ID)
	want := math.Pow(0.95, 3)
	if math.Abs(found.RelevanceDecay-want) > 1e-9 {
		t.Errorf("relevance_decay = %f, want %f", found.RelevanceDecay, want)
	}
	if found.RelevanceDecay >= 1.0 {
		t.Error("decay must be strictly decreasing")
	}
}

func TestApplyTemporalDecayIdempotentPerPeriod(t *testing.T) {
	eng := testEngine(t, nil)
	ctx := context.Background()

	chunk, _ := eng.StoreChunk(ctx, "sess-1", "transient detail", "general")
	anchor := time.Now().Add(-1 * decayPeriod).UnixMilli()
	eng.DB.SetChunkDecay(chunk.ID, 1.0, anchor)

	if _, _, err := eng.ApplyTemporalDecay(); err != nil {
		t.Fatalf("ApplyTemporalDecay: %v", err)
	}
	after1, _ := eng.DB.GetChunk(chunk.ID)

	// Second sweep inside the same period must not decay again.
	if _, _, err := eng.ApplyTemporalDecay(); err != nil {
		t.Fatalf("ApplyTemporalDecay again: %v", err)
	}
	after2, _ := eng.DB.GetChunk(chunk.ID)

	if after1.RelevanceDecay != after2.RelevanceDecay {
		t.Errorf("double decay within one period: %f -> %f", after1.RelevanceDecay, after2.RelevanceDecay)
	}
}

func TestDecayPrunesBelowMinRelevance(t *testing.T) {
	eng := testEngine(t, nil)
	ctx := context.Background()

	chunk, _ := eng.StoreChunk(ctx, "sess-1", "ancient trivia about sqlite", "general")
	// 60 periods: 0.95^60 ~= 0.046, below the 0.1 floor.
	anchor := time.Now().Add(-60 * decayPeriod).UnixMilli()
	eng.DB.SetChunkDecay(chunk.ID, 1.0, anchor)

	_, pruned, err := eng.ApplyTemporalDecay()
	if err != nil {
		t.Fatalf("ApplyTemporalDecay: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	gone, _ := eng.DB.GetChunk(chunk.ID)
	if gone != nil {
		t.Error("pruned chunk still present")
	}

	results, err := eng.QueryChunks(ctx, "sqlite trivia", 5, "sess-1")
	if err != nil {
		t.Fatalf("QueryChunks: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("pruned chunk still retrievable: %v", results)
	}
}

func TestDecayUnusedChunks(t *testing.T) {
	eng := testEngine(t, nil)
	ctx := context.Background()

	chunk, _ := eng.StoreChunk(ctx, "sess-1", "stale context nobody asks about", "general")
	past := time.Now().Add(-30 * decayPeriod).UnixMilli()
	if _, err := eng.DB.Exec(`UPDATE chunks SET last_accessed = ? WHERE id = ?`, past, chunk.ID); err != nil {
		t.Fatalf("age chunk: %v", err)
	}

	decayed, _, err := eng.DecayUnusedChunks(14)
	if err != nil {
		t.Fatalf("DecayUnusedChunks: %v", err)
	}
	if decayed != 1 {
		t.Errorf("decayed = %d, want 1", decayed)
	}

	found, _ := eng.DB.GetChunk(chunk.ID)
	if math.Abs(found.RelevanceDecay-0.8) > 1e-9 {
		t.Errorf("relevance_decay = %f, want 0.8", found.RelevanceDecay)
	}
}

func TestPruneOldConversations(t *testing.T) {
	eng := testEngine(t, nil)
	ctx := context.Background()

	eng.DB.TouchSession("old-sess")
	eng.StoreChunk(ctx, "old-sess", "ancient chat", "general")
	eng.StoreChunk(ctx, "old-sess", "more ancient chat", "general")

	past := time.Now().Add(-200 * decayPeriod).UnixMilli()
	if _, err := eng.DB.Exec(`UPDATE sessions SET last_active_at = ?`, past); err != nil {
		t.Fatalf("age session: %v", err)
	}

	counts, err := eng.PruneOldConversations(90)
	if err != nil {
		t.Fatalf("PruneOldConversations: %v", err)
	}
	if counts["old-sess"] != 2 {
		t.Errorf("counts = %v, want old-sess:2", counts)
	}

	live, _ := eng.DB.LiveChunks("old-sess")
	if len(live) != 0 {
		t.Errorf("chunks survived session pruning: %v", live)
	}
}

func TestPromoteRecurringChunk(t *testing.T) {
	eng := testEngine(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := eng.StoreChunk(ctx, "sess-1", "my name is Morten", "personal"); err != nil {
			t.Fatalf("StoreChunk: %v", err)
		}
	}

	promoted, err := eng.PromoteRecurring(ctx)
	if err != nil {
		t.Fatalf("PromoteRecurring: %v", err)
	}
	if promoted != 1 {
		t.Fatalf("promoted = %d, want 1", promoted)
	}

	fact, err := eng.GetFact("user_name")
	if err != nil {
		t.Fatalf("GetFact: %v", err)
	}
	if fact == nil {
		t.Fatal("promotion did not create the fact")
	}
	if fact.Value.Render() != "Morten" {
		t.Errorf("value = %q, want Morten", fact.Value.Render())
	}

	live, _ := eng.DB.LiveChunks("sess-1")
	if len(live) != 1 || live[0].MemoryClass != store.ClassPromoted {
		t.Errorf("chunk not marked promoted: %+v", live)
	}

	// Promoted chunks are exempt from decay sweeps from now on.
	decayable, _ := eng.DB.DecayableChunks()
	if len(decayable) != 0 {
		t.Errorf("promoted chunk still decayable: %v", decayable)
	}
}

func TestPromoteRecurringRetiresChunkOnAuthorityConflict(t *testing.T) {
	eng := testEngine(t, nil)
	ctx := context.Background()

	putLongterm(t, eng, "user_name", "Morten", "My name is Morten", 0.9)

	// Three sightings give promotion confidence 0.8, below the stored 0.9.
	for i := 0; i < 3; i++ {
		if _, err := eng.StoreChunk(ctx, "sess-1", "my name is Alex", "personal"); err != nil {
			t.Fatalf("StoreChunk: %v", err)
		}
	}

	promoted, err := eng.PromoteRecurring(ctx)
	if err != nil {
		t.Fatalf("PromoteRecurring: %v", err)
	}
	if promoted != 0 {
		t.Errorf("promoted = %d, want 0 against a stronger longterm fact", promoted)
	}

	fact, _ := eng.GetFact("user_name")
	if fact.Value.Render() != "Morten" {
		t.Errorf("longterm fact overwritten: %q", fact.Value.Render())
	}

	// The losing chunk is retired, not left for the next sweep to retry.
	decayable, _ := eng.DB.DecayableChunks()
	if len(decayable) != 0 {
		t.Errorf("conflicted chunk still in the sweep: %v", decayable)
	}

	promoted, err = eng.PromoteRecurring(ctx)
	if err != nil {
		t.Fatalf("PromoteRecurring again: %v", err)
	}
	if promoted != 0 {
		t.Errorf("second sweep promoted = %d, want 0", promoted)
	}
}
