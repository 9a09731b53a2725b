package engine

import (
	"fmt"
	"log"

	"github.com/supertedai/memgate/internal/store"
)

// RecordFeedback applies a user signal to a stored fact or chunk. The id is
// resolved as a chunk first (chunk ids are uuids), then as a fact key.
// Useful boosts the target's standing; wrong halves a fact's confidence or
// discards a chunk outright. Facts are never deleted here — a longterm fact
// marked wrong keeps its row with reduced confidence so the next write can
// supersede it.
func (e *Engine) RecordFeedback(id, signal, context string) error {
	if signal != store.SignalUseful && signal != store.SignalWrong {
		return fmt.Errorf("record feedback: unknown signal %q", signal)
	}

	if chunk, err := e.DB.GetChunk(id); err == nil && chunk != nil {
		return e.chunkFeedback(chunk, signal, context)
	}

	if fact, err := e.DB.GetFactByKey(id); err == nil && fact != nil {
		return e.factFeedback(fact, signal, context)
	}

	return fmt.Errorf("%w: %q", ErrFeedbackTargetNotFound, id)
}

func (e *Engine) chunkFeedback(chunk *store.Chunk, signal, context string) error {
	if err := e.DB.InsertFeedback(&store.Feedback{
		TargetKind: store.TargetChunk,
		TargetID:   chunk.ID,
		Signal:     signal,
		Context:    context,
	}); err != nil {
		return err
	}

	switch signal {
	case store.SignalUseful:
		// Useful context earns its keep: reset decay and refresh access.
		if err := e.DB.SetChunkDecay(chunk.ID, 1.0, chunk.LastDecayAt); err != nil {
			return err
		}
		return e.DB.TouchChunk(chunk.ID)
	case store.SignalWrong:
		return e.DB.SetChunkClass(chunk.ID, store.ClassDiscarded)
	}
	return nil
}

func (e *Engine) factFeedback(fact *store.Fact, signal, context string) error {
	if err := e.DB.InsertFeedback(&store.Feedback{
		TargetKind: store.TargetFact,
		TargetID:   fact.Key,
		Signal:     signal,
		Context:    context,
	}); err != nil {
		return err
	}

	switch signal {
	case store.SignalUseful:
		confidence := fact.Confidence + 0.05
		if confidence > 1.0 {
			confidence = 1.0
		}
		if err := e.DB.SetFactConfidence(fact.ID, confidence); err != nil {
			return err
		}
		return e.DB.TouchFact(fact.ID)
	case store.SignalWrong:
		confidence := fact.Confidence / 2
		log.Printf("feedback: fact %q marked wrong, confidence %.2f -> %.2f",
			fact.Key, fact.Confidence, confidence)
		return e.DB.SetFactConfidence(fact.ID, confidence)
	}
	return nil
}
