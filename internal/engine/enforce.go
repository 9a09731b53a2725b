package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/supertedai/memgate/internal/llm"
	"github.com/supertedai/memgate/internal/store"
)

// EnforcementDecision is the outcome of one conversational turn.
type EnforcementDecision struct {
	FinalAnswer    string       `json:"final_answer"`
	WasOverridden  bool         `json:"was_overridden"`
	ConflictReason string       `json:"conflict_reason,omitempty"`
	FactsUsed      []string     `json:"facts_used,omitempty"`
	Domain         DomainSignal `json:"domain"`
	DegradedNote   string       `json:"degraded_note,omitempty"`
}

// candidate is a retrieved fact or chunk, normalized for judging.
type candidate struct {
	text       string
	similarity float64
	fact       *store.Fact
	chunk      *store.Chunk
}

// HandleTurn runs the enforcement state machine for one turn:
// retrieve facts and chunks for the user message, judge whether the drafted
// reply contradicts any sufficiently relevant candidate, and either trust
// the draft or override it with an answer synthesized from memory. The turn
// is then committed to the context pool and the trace tables.
//
// A well-formed call always yields a decision: collaborator failures degrade
// to the pattern-matching path and are noted, never raised. Cancellation
// before the commit phase abandons the turn with no side effects.
func (e *Engine) HandleTurn(ctx context.Context, userMessage, assistantDraft, sessionID string) (*EnforcementDecision, error) {
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return nil, fmt.Errorf("handle turn: empty user message")
	}

	decision := &EnforcementDecision{FinalAnswer: assistantDraft}

	signal, turnVec := e.Classify(ctx, userMessage, sessionID)
	decision.Domain = signal

	// Small talk short-circuits enforcement entirely. Greetings get the
	// draft back untouched; stored facts have no business in "hello".
	if !isSmallTalk(userMessage) {
		candidates, err := e.retrieve(ctx, userMessage, sessionID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			log.Printf("handle turn: retrieve: %v", err)
			decision.DegradedNote = "memory retrieval unavailable, draft passed through"
		} else {
			e.judge(ctx, decision, candidates, userMessage, assistantDraft)
		}
	}

	if err := ctx.Err(); err != nil {
		// Abandoned turn, nothing committed.
		return nil, err
	}

	e.commitTurn(ctx, decision, userMessage, sessionID, turnVec)
	return decision, nil
}

// retrieve runs the fact and chunk queries concurrently and merges the
// results into one ranked list. Facts outrank chunks at equal similarity
// because facts are authoritative.
func (e *Engine) retrieve(ctx context.Context, query, sessionID string) ([]candidate, error) {
	var facts []ScoredFact
	var chunks []ScoredChunk

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		facts, err = e.QueryFacts(gctx, query, 10)
		return err
	})
	g.Go(func() error {
		var err error
		chunks, err = e.QueryChunks(gctx, query, 10, sessionID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(facts)+len(chunks))
	for i := range facts {
		candidates = append(candidates, candidate{
			text:       facts[i].Fact.Text,
			similarity: facts[i].Similarity,
			fact:       &facts[i].Fact,
		})
	}
	for i := range chunks {
		candidates = append(candidates, candidate{
			text:       chunks[i].Chunk.Text,
			similarity: chunks[i].Similarity,
			chunk:      &chunks[i].Chunk,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].similarity != candidates[j].similarity {
			return candidates[i].similarity > candidates[j].similarity
		}
		return candidates[i].fact != nil && candidates[j].fact == nil
	})

	return candidates, nil
}

// judge walks the relevant candidates looking for a contradiction between
// the draft and stored memory. A contradicting longterm fact triggers an
// override; anything less leaves the draft in place.
func (e *Engine) judge(ctx context.Context, decision *EnforcementDecision, candidates []candidate, userMessage, draft string) {
	threshold := e.Params.get(ParamRelevanceThreshold)
	draftSlots := extractSlots(draft)

	var relevant []candidate
	for _, c := range candidates {
		if c.similarity >= threshold {
			relevant = append(relevant, c)
		}
	}
	if len(relevant) == 0 {
		return
	}

	if reason := e.checkInconsistentFacts(relevant); reason != "" {
		decision.ConflictReason = reason
	}

	var conflicting *candidate
	var conflictKey string
	degraded := false

	for i := range relevant {
		c := &relevant[i]
		key, contradicts := patternContradiction(c, draftSlots)
		if !contradicts && !key.conclusive {
			verdict, err := e.llmContradiction(ctx, c.text, draft)
			if err != nil {
				// Oracle down: conservative default is no contradiction.
				degraded = true
				continue
			}
			contradicts = verdict
			key.name = factKey(c)
		}
		if !contradicts {
			continue
		}

		if err := e.DB.RecordMetric(MetricContradiction, 1); err != nil {
			log.Printf("judge: record metric: %v", err)
		}

		// Only an authoritative fact can overrule the draft.
		if c.fact != nil && c.fact.Authority == store.AuthorityLongterm {
			if conflicting == nil || betterConflict(c.fact, conflicting.fact) {
				conflicting = c
				conflictKey = key.name
			}
		}
	}

	if degraded {
		decision.DegradedNote = "contradiction oracle unavailable, pattern matching only"
		if err := e.DB.RecordMetric(MetricDegraded, 1); err != nil {
			log.Printf("judge: record metric: %v", err)
		}
	}

	if conflicting == nil {
		return
	}

	decision.WasOverridden = true
	if decision.ConflictReason == "" {
		decision.ConflictReason = fmt.Sprintf("draft contradicts longterm fact %q (%s)",
			conflicting.fact.Key, conflictKey)
	}
	decision.FinalAnswer = e.synthesize(ctx, decision, relevant, userMessage)
}

// conflictHint carries what the pattern check learned even when it found no
// conflict: conclusive means both sides asserted the same slot and agreed,
// so no oracle escalation is needed.
type conflictHint struct {
	name       string
	conclusive bool
}

// patternContradiction is the fast check: the candidate and the draft both
// assert a value for the same key-like slot but the values differ. The
// candidate's slots come from its text, and for facts also from the fact
// key itself.
func patternContradiction(c *candidate, draftSlots []slot) (conflictHint, bool) {
	if len(draftSlots) == 0 {
		return conflictHint{}, false
	}

	candSlots := extractSlots(c.text)
	if c.fact != nil {
		candSlots = append(candSlots, slot{Key: c.fact.Key, Value: c.fact.Value.Render()})
	}

	if key, conflict := slotsConflict(candSlots, draftSlots); conflict {
		return conflictHint{name: key, conclusive: true}, true
	}

	// Same slot asserted on both sides with agreeing values: settled,
	// do not burn an oracle call on it.
	for _, cs := range candSlots {
		for _, ds := range draftSlots {
			if cs.Key == ds.Key {
				return conflictHint{name: cs.Key, conclusive: true}, false
			}
		}
	}

	return conflictHint{}, false
}

// llmContradiction escalates an inconclusive pattern check to the LLM
// oracle. Anything but an unambiguous CONTRADICTION reads as consistent.
func (e *Engine) llmContradiction(ctx context.Context, candidateText, draft string) (bool, error) {
	if e.LLM == nil {
		return false, ErrCollaboratorUnavailable
	}
	resp, err := e.LLM.Complete(ctx, llm.ContradictionPrompt(candidateText, draft))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err)
	}
	if resp == nil {
		return false, ErrCollaboratorUnavailable
	}
	return llm.ParseVerdict(resp.Content), nil
}

// checkInconsistentFacts looks for two longterm facts asserting different
// values for the same slot. The store can't hold two rows under one key, but
// two keys can still claim the same slot in their texts. The tie-break
// (confidence, then recency) happens in betterConflict; here the condition
// is surfaced so the adaptation loop sees it.
func (e *Engine) checkInconsistentFacts(relevant []candidate) string {
	type claim struct {
		fact  *store.Fact
		value string
	}
	claims := map[string][]claim{}

	for i := range relevant {
		f := relevant[i].fact
		if f == nil || f.Authority != store.AuthorityLongterm {
			continue
		}
		for _, s := range extractSlots(f.Text) {
			claims[s.Key] = append(claims[s.Key], claim{fact: f, value: s.Value})
		}
	}

	for slotKey, cs := range claims {
		for i := 1; i < len(cs); i++ {
			if !strings.EqualFold(cs[i].value, cs[0].value) {
				if err := e.DB.RecordMetric(MetricInconsistentFacts, 1); err != nil {
					log.Printf("judge: record metric: %v", err)
				}
				return fmt.Sprintf("inconsistent longterm facts %q and %q disagree on %s",
					cs[0].fact.Key, cs[i].fact.Key, slotKey)
			}
		}
	}
	return ""
}

// betterConflict prefers the fact with higher confidence, then the more
// recently updated one.
func betterConflict(a, b *store.Fact) bool {
	if b == nil {
		return true
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.UpdatedAt > b.UpdatedAt
}

// synthesize builds the override answer from every relevant fact, not just
// the first conflict. With the LLM down the fact renderings are joined
// directly — stilted, but correct.
func (e *Engine) synthesize(ctx context.Context, decision *EnforcementDecision, relevant []candidate, question string) string {
	var texts []string
	for i := range relevant {
		f := relevant[i].fact
		if f == nil {
			continue
		}
		texts = append(texts, f.Text)
		decision.FactsUsed = append(decision.FactsUsed, f.Key)
	}
	if len(texts) == 0 {
		return decision.FinalAnswer
	}

	if e.LLM != nil {
		resp, err := e.LLM.Complete(ctx, llm.SynthesisPrompt(texts, question))
		if err == nil && resp != nil && strings.TrimSpace(resp.Content) != "" {
			return strings.TrimSpace(resp.Content)
		}
		log.Printf("synthesize: llm fallback: %v", err)
	}

	decision.DegradedNote = "synthesis oracle unavailable, facts stated verbatim"
	return strings.Join(texts, " ")
}

// commitTurn is the EMIT phase: the turn joins the context pool and the
// trace tables. Failures here are logged, not returned — the caller already
// has its answer.
func (e *Engine) commitTurn(ctx context.Context, decision *EnforcementDecision, userMessage, sessionID string, turnVec []float64) {
	if sessionID != "" {
		if _, err := e.DB.TouchSession(sessionID); err != nil {
			log.Printf("commit turn: touch session: %v", err)
		}
	}

	turnText := fmt.Sprintf("user: %s\nassistant: %s", userMessage, decision.FinalAnswer)
	if _, err := e.StoreChunk(ctx, sessionID, turnText, decision.Domain.PrimaryDomain); err != nil {
		log.Printf("commit turn: store chunk: %v", err)
	}

	turn := &store.Turn{
		SessionID:      sessionID,
		Domain:         decision.Domain.PrimaryDomain,
		Confidence:     decision.Domain.Confidence,
		Entropy:        decision.Domain.Entropy,
		Drift:          decision.Domain.Drift,
		Overridden:     decision.WasOverridden,
		ConflictReason: decision.ConflictReason,
		Degraded:       decision.DegradedNote != "",
		Embedding:      turnVec,
	}
	if err := e.DB.InsertTurn(turn); err != nil {
		log.Printf("commit turn: insert turn: %v", err)
	}

	overrideVal := 0.0
	if decision.WasOverridden {
		overrideVal = 1.0
	}
	if err := e.DB.RecordMetric(MetricOverride, overrideVal); err != nil {
		log.Printf("commit turn: record metric: %v", err)
	}
}

// factKey names a candidate for conflict reasons.
func factKey(c *candidate) string {
	if c.fact != nil {
		return c.fact.Key
	}
	return "context"
}
