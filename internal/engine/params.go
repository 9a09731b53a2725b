package engine

import (
	"fmt"
	"sync"

	"github.com/supertedai/memgate/internal/config"
)

// Tunable parameter names. The adaptation loop addresses parameters by name
// so that any change can be reverted to exactly its previous value.
const (
	ParamRelevanceThreshold = "ee.relevance_threshold"
	ParamDecayRate          = "dcp.decay_rate"
	ParamMinRelevance       = "dcp.min_relevance"
	ParamPromotionThreshold = "dcp.promotion_threshold"
	ParamMinClassifyConf    = "dc.min_confidence"
)

// Params is the registry of tunable thresholds shared by the components.
// All access goes through Get/Set; the adaptation loop is the only writer
// after startup.
type Params struct {
	mu     sync.RWMutex
	values map[string]float64
}

// NewParams seeds the registry from config.
func NewParams(cfg config.MemoryConfig) *Params {
	return &Params{
		values: map[string]float64{
			ParamRelevanceThreshold: cfg.RelevanceThreshold,
			ParamDecayRate:          cfg.DecayRate,
			ParamMinRelevance:       cfg.MinRelevance,
			ParamPromotionThreshold: float64(cfg.PromotionThreshold),
			ParamMinClassifyConf:    cfg.MinClassifyConf,
		},
	}
}

// Get returns the current value of a named parameter.
func (p *Params) Get(name string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	return v, nil
}

// Set writes a new value for a named parameter.
func (p *Params) Set(name string, value float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.values[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}
	p.values[name] = value
	return nil
}

// get is the internal read path for hot loops; it assumes the name exists.
func (p *Params) get(name string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.values[name]
}
