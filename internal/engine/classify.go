package engine

import (
	"context"
	"log"
	"sync"
)

const generalDomain = "general"

// domainSeeds anchor each domain's centroid. The classifier embeds the seed
// phrases with whatever embedder the engine carries, so centroids follow the
// embedding space rather than a fixed vocabulary.
var domainSeeds = map[string][]string{
	"personal": {
		"my name is and I live in",
		"my birthday my family my partner my kids",
		"I am years old and my hobby is",
	},
	"work": {
		"my job my team the project deadline at the office",
		"my manager the sprint the deploy the meeting",
		"the client contract invoice quarterly report",
	},
	"technical": {
		"the server config database migration bug in the code",
		"install the package compile error stack trace",
		"api endpoint returns json http request timeout",
	},
	"health": {
		"doctor appointment medication symptoms allergy",
		"diet exercise sleep stress blood pressure",
	},
	"finance": {
		"bank account budget savings mortgage payment",
		"invest stocks portfolio tax return",
	},
}

// DomainSignal is the classifier's read on a single turn: the domain the
// text most likely belongs to, how sure the classifier is, how scattered the
// session has been across topics, and how far this turn moved from the last.
type DomainSignal struct {
	PrimaryDomain string  `json:"primary_domain"`
	Confidence    float64 `json:"confidence"`
	Entropy       float64 `json:"entropy"`
	Drift         float64 `json:"drift"`
}

// classifier scores text against lazily-built domain centroids.
type classifier struct {
	engine *Engine

	mu        sync.Mutex
	centroids map[string][]float64
}

func newClassifier(e *Engine) *classifier {
	return &classifier{engine: e}
}

// reset drops cached centroids. Called when the engine swaps embedders, since
// centroids from one embedding space are meaningless in another.
func (c *classifier) reset() {
	c.mu.Lock()
	c.centroids = nil
	c.mu.Unlock()
}

// ensureCentroids embeds the seed phrases once and averages them per domain.
func (c *classifier) ensureCentroids(ctx context.Context) (map[string][]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.centroids != nil {
		return c.centroids, nil
	}

	centroids := make(map[string][]float64, len(domainSeeds))
	for domain, seeds := range domainSeeds {
		var sum []float64
		for _, seed := range seeds {
			vec, err := c.engine.embed(ctx, seed)
			if err != nil {
				return nil, err
			}
			if sum == nil {
				sum = make([]float64, len(vec))
			}
			for i := range vec {
				sum[i] += vec[i]
			}
		}
		for i := range sum {
			sum[i] /= float64(len(seeds))
		}
		normalize(sum)
		centroids[domain] = sum
	}

	c.centroids = centroids
	return centroids, nil
}

// Classify embeds the text and scores it against each domain centroid.
// Low-confidence classifications fall back to "general" and record a metric
// rather than forcing a guess — a wrong domain filter hides the right facts.
// Entropy and drift come from the session's recent turn embeddings; neither
// failing is fatal to classification. The turn embedding is returned so the
// caller can persist it without re-embedding.
func (e *Engine) Classify(ctx context.Context, text, sessionID string) (DomainSignal, []float64) {
	signal := DomainSignal{PrimaryDomain: generalDomain}

	vec, err := e.embed(ctx, text)
	if err != nil {
		log.Printf("classify: embed failed, using %q: %v", generalDomain, err)
		return signal, nil
	}

	centroids, err := e.classifier.ensureCentroids(ctx)
	if err != nil {
		log.Printf("classify: centroids unavailable, using %q: %v", generalDomain, err)
		return signal, vec
	}

	best, bestSim := generalDomain, 0.0
	for domain, centroid := range centroids {
		sim := CosineSimilarity(vec, centroid)
		if sim > bestSim {
			best, bestSim = domain, sim
		}
	}

	signal.Confidence = bestSim
	if bestSim >= e.Params.get(ParamMinClassifyConf) {
		signal.PrimaryDomain = best
	} else {
		if err := e.DB.RecordMetric(MetricLowConfidence, bestSim); err != nil {
			log.Printf("classify: record metric: %v", err)
		}
	}

	signal.Entropy, signal.Drift = e.sessionDispersion(sessionID, vec)
	return signal, vec
}

// sessionDispersion computes entropy (1 - mean pairwise cosine similarity of
// the session's recent turn embeddings, including this one) and drift
// (cosine distance from the previous turn). A single-turn session has zero
// of both.
func (e *Engine) sessionDispersion(sessionID string, current []float64) (entropy, drift float64) {
	if sessionID == "" {
		return 0, 0
	}

	turns, err := e.DB.RecentTurns(sessionID, 10)
	if err != nil {
		log.Printf("classify: recent turns: %v", err)
		return 0, 0
	}

	vecs := [][]float64{current}
	for _, t := range turns {
		if len(t.Embedding) == len(current) {
			vecs = append(vecs, t.Embedding)
		}
	}

	if len(vecs) >= 2 {
		drift = CosineDistance(current, vecs[1])
	}

	if len(vecs) >= 2 {
		var sum float64
		var pairs int
		for i := 0; i < len(vecs); i++ {
			for j := i + 1; j < len(vecs); j++ {
				sum += CosineSimilarity(vecs[i], vecs[j])
				pairs++
			}
		}
		entropy = 1 - sum/float64(pairs)
		if entropy < 0 {
			entropy = 0
		}
	}

	return entropy, drift
}
