package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supertedai/memgate/internal/store"
)

const decayPeriod = 24 * time.Hour

// unusedDecayFraction is the extra reduction applied to chunks that have not
// been accessed within the usage window, on top of normal temporal decay.
const unusedDecayFraction = 0.20

// duplicateSimilarity is the cosine similarity above which a new chunk is
// treated as a recurrence of an existing claim rather than stored again.
const duplicateSimilarity = 0.92

// ScoredChunk is a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk      store.Chunk
	Similarity float64
	Score      float64 // similarity weighted by relevance_decay
}

// StoreChunk embeds and persists a piece of dialogue as a short-term chunk.
// If the same claim already exists in the pool (near-identical text or
// near-duplicate embedding), the existing chunk's seen_count is bumped
// instead — recurrence is what earns promotion to a fact.
func (e *Engine) StoreChunk(ctx context.Context, sessionID, text, domain string) (*store.Chunk, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("store chunk: empty text")
	}
	if domain == "" {
		domain = generalDomain
	}

	vec, embErr := e.embed(ctx, text)
	if embErr != nil {
		log.Printf("store chunk: embed failed, keyword-only chunk: %v", embErr)
	}

	if existing, err := e.findDuplicateChunk(text, vec); err != nil {
		log.Printf("store chunk: duplicate scan: %v", err)
	} else if existing != nil {
		if _, err := e.DB.BumpChunkSeen(existing.ID); err != nil {
			return nil, err
		}
		return e.DB.GetChunk(existing.ID)
	}

	chunk := &store.Chunk{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Text:      text,
		Domain:    domain,
	}
	if err := e.DB.InsertChunk(chunk); err != nil {
		return nil, err
	}

	if embErr == nil {
		if err := e.DB.SaveChunkVector(chunk.ID, vec, e.Embedder.Model()); err != nil {
			log.Printf("store chunk: save vector: %v", err)
		}
	}

	return chunk, nil
}

// findDuplicateChunk looks for an existing live chunk carrying the same
// claim. The scan covers the whole pool, not just the current session — a
// claim restated in a fresh session each day is exactly the recurrence that
// earns promotion. Embedding comparison when available, bigram overlap
// otherwise.
func (e *Engine) findDuplicateChunk(text string, vec []float64) (*store.Chunk, error) {
	chunks, err := e.DB.LiveChunks("")
	if err != nil {
		return nil, err
	}

	for i := range chunks {
		if textNearIdentical(chunks[i].Text, text) {
			return &chunks[i], nil
		}
	}

	if len(vec) == 0 {
		return nil, nil
	}
	for i := range chunks {
		cv, err := e.DB.GetChunkVector(chunks[i].ID)
		if err != nil || cv == nil {
			continue
		}
		if CosineSimilarity(vec, cv.Embedding) >= duplicateSimilarity {
			return &chunks[i], nil
		}
	}
	return nil, nil
}

// QueryChunks embeds the query and returns the topK live chunks by cosine
// similarity, optionally scoped to a session. Results are scored by
// similarity * relevance_decay so faded context ranks below fresh context,
// and each returned chunk is touched.
func (e *Engine) QueryChunks(ctx context.Context, query string, topK int, sessionID string) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = 5
	}

	queryVec, err := e.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	chunks, err := e.DB.LiveChunks(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	minRelevance := e.Params.get(ParamMinRelevance)

	var results []ScoredChunk
	for i := range chunks {
		if chunks[i].RelevanceDecay < minRelevance {
			continue
		}
		cv, err := e.DB.GetChunkVector(chunks[i].ID)
		if err != nil || cv == nil {
			continue
		}
		sim := CosineSimilarity(queryVec, cv.Embedding)
		score := sim * chunks[i].RelevanceDecay
		if score <= 0 {
			continue
		}
		results = append(results, ScoredChunk{Chunk: chunks[i], Similarity: sim, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	for _, r := range results {
		if err := e.DB.TouchChunk(r.Chunk.ID); err != nil {
			log.Printf("query chunks: touch %s: %v", r.Chunk.ID, err)
		}
	}

	return results, nil
}

// ApplyTemporalDecay multiplies each short-term chunk's relevance_decay by
// decay_rate^elapsedPeriods, where periods are whole days since the chunk's
// last decay anchor. Anchoring on last_decay_at makes the sweep idempotent
// within a period — calling twice in the same day decays once. Chunks that
// fall below min_relevance are deleted. Returns (decayed, pruned).
func (e *Engine) ApplyTemporalDecay() (int, int, error) {
	chunks, err := e.DB.DecayableChunks()
	if err != nil {
		return 0, 0, err
	}

	decayRate := e.Params.get(ParamDecayRate)
	minRelevance := e.Params.get(ParamMinRelevance)
	now := time.Now().UnixMilli()
	periodMs := decayPeriod.Milliseconds()

	decayed, pruned := 0, 0
	for i := range chunks {
		periods := (now - chunks[i].LastDecayAt) / periodMs
		if periods < 1 {
			continue
		}

		newRelevance := chunks[i].RelevanceDecay * math.Pow(decayRate, float64(periods))
		newAnchor := chunks[i].LastDecayAt + periods*periodMs

		if newRelevance < minRelevance {
			if err := e.DB.DeleteChunk(chunks[i].ID); err != nil {
				return decayed, pruned, err
			}
			pruned++
			continue
		}

		if err := e.DB.SetChunkDecay(chunks[i].ID, newRelevance, newAnchor); err != nil {
			return decayed, pruned, err
		}
		decayed++
	}

	return decayed, pruned, nil
}

// DecayUnusedChunks applies an extra fractional reduction to chunks not
// accessed within usageDays, then re-applies the prune threshold. Graceful
// forgetting for context nothing asks about, without waiting out the full
// decay curve. Returns (decayed, pruned).
func (e *Engine) DecayUnusedChunks(usageDays int) (int, int, error) {
	if usageDays <= 0 {
		usageDays = e.cfg.UnusedDays
	}

	chunks, err := e.DB.DecayableChunks()
	if err != nil {
		return 0, 0, err
	}

	minRelevance := e.Params.get(ParamMinRelevance)
	cutoff := time.Now().Add(-time.Duration(usageDays) * decayPeriod).UnixMilli()

	decayed, pruned := 0, 0
	for i := range chunks {
		if chunks[i].LastAccessed >= cutoff {
			continue
		}

		newRelevance := chunks[i].RelevanceDecay * (1 - unusedDecayFraction)
		if newRelevance < minRelevance {
			if err := e.DB.DeleteChunk(chunks[i].ID); err != nil {
				return decayed, pruned, err
			}
			pruned++
			continue
		}

		if err := e.DB.SetChunkDecay(chunks[i].ID, newRelevance, chunks[i].LastDecayAt); err != nil {
			return decayed, pruned, err
		}
		decayed++
	}

	return decayed, pruned, nil
}

// PruneOldConversations deletes all chunks of sessions whose last activity
// is older than daysThreshold. Returns deleted-chunk counts per session for
// audit.
func (e *Engine) PruneOldConversations(daysThreshold int) (map[string]int, error) {
	if daysThreshold <= 0 {
		daysThreshold = e.cfg.RetentionDays
	}

	cutoff := time.Now().Add(-time.Duration(daysThreshold) * decayPeriod).UnixMilli()
	sessions, err := e.DB.StaleSessions(cutoff)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(sessions))
	for _, sid := range sessions {
		n, err := e.DB.DeleteSessionChunks(sid)
		if err != nil {
			return counts, err
		}
		if err := e.DB.DeleteSession(sid); err != nil {
			return counts, err
		}
		counts[sid] = n
	}

	return counts, nil
}

// Promote converts a recurring chunk into a fact and marks the chunk
// promoted. Promoted chunks are exempt from decay — the fact supersedes
// them, and the chunk row documents where the fact came from.
func (e *Engine) Promote(ctx context.Context, chunk *store.Chunk) (*store.Fact, error) {
	in := promotionInput(chunk)

	fact, err := e.PutFact(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("promote chunk %s: %w", chunk.ID, err)
	}

	if err := e.DB.SetChunkClass(chunk.ID, store.ClassPromoted); err != nil {
		return nil, err
	}
	chunk.MemoryClass = store.ClassPromoted
	return fact, nil
}

// promotionInput derives the fact write for a promoted chunk. When the chunk
// text carries a recognizable slot assertion ("my name is …"), the slot
// becomes the fact key so later turns hit the same upsert target; otherwise
// the chunk id anchors a free-form observation.
func promotionInput(chunk *store.Chunk) PutFactInput {
	confidence := 0.5 + 0.1*float64(chunk.SeenCount)
	if confidence > 0.9 {
		confidence = 0.9
	}

	if slots := extractSlots(chunk.Text); len(slots) > 0 {
		return PutFactInput{
			Key:        slots[0].Key,
			Value:      store.StringValue(slots[0].Value),
			Domain:     chunk.Domain,
			FactType:   slots[0].FactType,
			Authority:  store.AuthorityProvisional,
			Confidence: confidence,
			Text:       chunk.Text,
		}
	}

	return PutFactInput{
		Key:        "observation_" + chunk.ID[:8],
		Value:      store.StringValue(chunk.Text),
		Domain:     chunk.Domain,
		FactType:   store.FactOther,
		Authority:  store.AuthorityProvisional,
		Confidence: confidence,
		Text:       chunk.Text,
	}
}

// PromoteRecurring sweeps the pool for chunks whose claim has recurred at
// least promotion_threshold times and promotes them. Run from the
// maintenance cycle.
func (e *Engine) PromoteRecurring(ctx context.Context) (int, error) {
	chunks, err := e.DB.DecayableChunks()
	if err != nil {
		return 0, err
	}

	threshold := int(e.Params.get(ParamPromotionThreshold))
	promoted := 0
	for i := range chunks {
		if chunks[i].SeenCount < threshold {
			continue
		}
		if _, err := e.Promote(ctx, &chunks[i]); err != nil {
			if errors.Is(err, ErrAuthorityConflict) {
				// A stronger longterm fact already holds this claim. Retire
				// the chunk so the sweep does not retry it every cycle.
				if derr := e.DB.SetChunkClass(chunks[i].ID, store.ClassDiscarded); derr != nil {
					log.Printf("promote recurring: discard %s: %v", chunks[i].ID, derr)
				}
				continue
			}
			log.Printf("promote recurring: %v", err)
			continue
		}
		promoted++
	}

	return promoted, nil
}

// textNearIdentical returns true if two strings are near-identical by bigram
// overlap (Jaccard > 0.95). Cheap duplicate guard, no embeddings needed.
func textNearIdentical(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}

	bigramsA := bigrams(a)
	bigramsB := bigrams(b)
	if len(bigramsA) == 0 || len(bigramsB) == 0 {
		return a == b
	}

	shared := 0
	for bg := range bigramsA {
		if bigramsB[bg] {
			shared++
		}
	}

	union := len(bigramsA) + len(bigramsB) - shared
	if union == 0 {
		return true
	}

	similarity := float64(shared) / float64(union) // Jaccard index
	return similarity > 0.95
}

func bigrams(s string) map[string]bool {
	if len(s) < 2 {
		return nil
	}
	m := make(map[string]bool, len(s)-1)
	for i := 0; i < len(s)-1; i++ {
		m[s[i:i+2]] = true
	}
	return m
}
