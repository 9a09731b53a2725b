package engine

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/supertedai/memgate/internal/store"
)

// PutFactInput carries one fact write.
type PutFactInput struct {
	Key        string
	Value      store.FactValue
	Domain     string
	FactType   string
	Authority  string
	Confidence float64
	Text       string
}

// ScoredFact is a fact with its similarity to a query.
type ScoredFact struct {
	Fact       store.Fact
	Similarity float64
}

// PutFact upserts a fact under its key. Writing an existing key replaces
// value, text and embedding and bumps updated_at. The one guarded case:
// a longterm fact is never overwritten by a write with strictly lower
// confidence — that returns ErrAuthorityConflict and leaves the fact alone.
func (e *Engine) PutFact(ctx context.Context, in PutFactInput) (*store.Fact, error) {
	if in.Key == "" {
		return nil, fmt.Errorf("put fact: empty key")
	}
	if in.FactType == "" {
		in.FactType = store.FactOther
	}
	if in.Authority == "" {
		in.Authority = store.AuthorityProvisional
	}
	if in.Domain == "" {
		in.Domain = generalDomain
	}

	existing, err := e.DB.GetFactByKey(in.Key)
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.Authority == store.AuthorityLongterm && in.Confidence < existing.Confidence {
		return nil, fmt.Errorf("fact %q (confidence %.2f vs stored %.2f): %w",
			in.Key, in.Confidence, existing.Confidence, ErrAuthorityConflict)
	}

	var fact *store.Fact
	if existing != nil {
		existing.Value = in.Value
		existing.Domain = in.Domain
		existing.FactType = in.FactType
		existing.Authority = in.Authority
		existing.Confidence = in.Confidence
		existing.Text = in.Text
		if err := e.DB.UpdateFact(existing); err != nil {
			return nil, err
		}
		fact = existing
	} else {
		fact = &store.Fact{
			Key:        in.Key,
			Value:      in.Value,
			Domain:     in.Domain,
			FactType:   in.FactType,
			Authority:  in.Authority,
			Confidence: in.Confidence,
			Text:       in.Text,
		}
		if err := e.DB.InsertFact(fact); err != nil {
			return nil, err
		}
	}

	// Embedding failure leaves the fact stored but unsearchable until the
	// next maintenance cycle re-embeds it.
	if vec, err := e.embed(ctx, fact.Text); err != nil {
		log.Printf("put fact: embed %s: %v", fact.Key, err)
	} else if err := e.DB.SaveFactVector(fact.ID, vec, e.Embedder.Model()); err != nil {
		log.Printf("put fact: save vector %s: %v", fact.Key, err)
	}

	return fact, nil
}

// GetFact returns the fact stored under key, or nil.
func (e *Engine) GetFact(key string) (*store.Fact, error) {
	return e.DB.GetFactByKey(key)
}

// QueryFacts embeds the query and returns the topK facts ranked purely by
// cosine similarity. No domain or fact_type filtering happens here — a fact
// stored under a different domain tag than the query must still surface;
// domain comes back as metadata for the caller to weigh. Returned facts are
// touched (access_count, last_accessed).
func (e *Engine) QueryFacts(ctx context.Context, query string, topK int) ([]ScoredFact, error) {
	if topK <= 0 {
		topK = 5
	}

	queryVec, err := e.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	vectors, err := e.DB.AllFactVectors()
	if err != nil {
		return nil, fmt.Errorf("load fact vectors: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	var results []ScoredFact
	for _, v := range vectors {
		sim := CosineSimilarity(queryVec, v.Embedding)
		if sim <= 0 {
			continue
		}
		fact, err := e.DB.GetFactByID(v.FactID)
		if err != nil {
			return nil, err
		}
		if fact == nil {
			continue
		}
		results = append(results, ScoredFact{Fact: *fact, Similarity: sim})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}

	for _, r := range results {
		if err := e.DB.TouchFact(r.Fact.ID); err != nil {
			log.Printf("query facts: touch %s: %v", r.Fact.Key, err)
		}
	}

	return results, nil
}

// EmbedMissingFacts embeds facts that have no vector or whose vector was
// produced by a different model. Run from the maintenance cycle.
func (e *Engine) EmbedMissingFacts(ctx context.Context) (int, error) {
	if e.Embedder == nil {
		return 0, nil
	}

	facts, err := e.DB.AllFacts()
	if err != nil {
		return 0, fmt.Errorf("list facts: %w", err)
	}

	embedded := 0
	for i := range facts {
		existing, err := e.DB.GetFactVector(facts[i].ID)
		if err != nil {
			log.Printf("embed missing: get vector for %s: %v", facts[i].Key, err)
			continue
		}
		if existing != nil && existing.Model == e.Embedder.Model() {
			continue
		}

		vec, err := e.embed(ctx, facts[i].Text)
		if err != nil {
			log.Printf("embed missing: %s: %v", facts[i].Key, err)
			continue
		}
		if err := e.DB.SaveFactVector(facts[i].ID, vec, e.Embedder.Model()); err != nil {
			log.Printf("embed missing: save %s: %v", facts[i].Key, err)
			continue
		}
		embedded++
	}

	return embedded, nil
}
