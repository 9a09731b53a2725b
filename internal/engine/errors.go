package engine

import "errors"

// ErrAuthorityConflict is returned when a write would downgrade a longterm
// fact with lower confidence. The stored fact is left untouched.
var ErrAuthorityConflict = errors.New("authority conflict: longterm fact cannot be overwritten with lower confidence")

// ErrCollaboratorUnavailable wraps failures of the embedding or LLM
// collaborators. Callers recover locally — a turn is never failed for it.
var ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

// ErrUnknownParameter is returned when the adaptation loop addresses a
// parameter that is not registered.
var ErrUnknownParameter = errors.New("unknown tunable parameter")

// ErrFeedbackTargetNotFound is returned when a feedback signal names an id
// that matches neither a chunk nor a fact.
var ErrFeedbackTargetNotFound = errors.New("feedback target not found")

// Metric names emitted by the engine. The adaptation loop reads these.
const (
	MetricOverride          = "override"
	MetricContradiction     = "contradiction"
	MetricInconsistentFacts = "inconsistent_facts"
	MetricLowConfidence     = "low_confidence_classification"
	MetricDegraded          = "enforcement_degraded"
	MetricRegression        = "adaptation_regression"
)
