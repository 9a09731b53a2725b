package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/supertedai/memgate/internal/engine"
	"github.com/supertedai/memgate/internal/store"
)

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID      string `json:"session_id"`
		UserMessage    string `json:"user_message"`
		AssistantDraft string `json:"assistant_draft"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserMessage == "" {
		jsonError(w, http.StatusBadRequest, "user_message required")
		return
	}

	decision, err := s.engine.HandleTurn(r.Context(), req.UserMessage, req.AssistantDraft, req.SessionID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(decision)
}

func (s *Server) handlePutFact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key        string          `json:"key"`
		Value      json.RawMessage `json:"value"`
		ValueKind  string          `json:"value_kind"`
		Domain     string          `json:"domain"`
		FactType   string          `json:"fact_type"`
		Authority  string          `json:"authority"`
		Confidence float64         `json:"confidence"`
		Text       string          `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Key == "" {
		jsonError(w, http.StatusBadRequest, "key required")
		return
	}

	value, err := decodeFactValue(req.Value, req.ValueKind)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	fact, err := s.engine.PutFact(r.Context(), engine.PutFactInput{
		Key:        req.Key,
		Value:      value,
		Domain:     req.Domain,
		FactType:   req.FactType,
		Authority:  req.Authority,
		Confidence: req.Confidence,
		Text:       req.Text,
	})
	if err != nil {
		if errors.Is(err, engine.ErrAuthorityConflict) {
			jsonError(w, http.StatusConflict, err.Error())
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(factJSON(fact))
}

func (s *Server) handleGetFact(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	fact, err := s.engine.GetFact(key)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if fact == nil {
		jsonError(w, http.StatusNotFound, "fact not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(factJSON(fact))
}

func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request) {
	// ?q= runs a semantic query; without it, a plain listing.
	if query := r.URL.Query().Get("q"); query != "" {
		scored, err := s.engine.QueryFacts(r.Context(), query, 10)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]map[string]any, 0, len(scored))
		for i := range scored {
			f := factJSON(&scored[i].Fact)
			f["similarity"] = scored[i].Similarity
			out = append(out, f)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"facts": out})
		return
	}

	facts, err := s.db.AllFacts()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]any, 0, len(facts))
	for i := range facts {
		out = append(out, factJSON(&facts[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"facts": out})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID      string `json:"id"`
		Signal  string `json:"signal"`
		Context string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ID == "" || req.Signal == "" {
		jsonError(w, http.StatusBadRequest, "id and signal required")
		return
	}

	if err := s.engine.RecordFeedback(req.ID, req.Signal, req.Context); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrFeedbackTargetNotFound) {
			status = http.StatusNotFound
		}
		jsonError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.RunMaintenanceCycle(r.Context())
	if err != nil {
		if errors.Is(err, engine.ErrMaintenanceRunning) {
			jsonError(w, http.StatusConflict, err.Error())
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	cutoff := time.Now().Add(-24 * time.Hour).UnixMilli()

	stats, err := s.db.TurnStatsSince(cutoff)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	overrideRate, _, err := s.db.MetricAverage(engine.MetricOverride, cutoff)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"window_hours":  24,
		"turns":         stats.Turns,
		"overrides":     stats.Overrides,
		"conflicts":     stats.Conflicts,
		"degraded":      stats.Degraded,
		"override_rate": overrideRate,
	})
}

// jsonError writes an error body as real JSON. Error strings can carry
// quotes (fact values end up in them), so the body is always encoded, never
// concatenated.
func jsonError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func factJSON(f *store.Fact) map[string]any {
	return map[string]any{
		"key":          f.Key,
		"value":        f.Value.Render(),
		"value_kind":   string(f.Value.Kind),
		"domain":       f.Domain,
		"fact_type":    f.FactType,
		"authority":    f.Authority,
		"confidence":   f.Confidence,
		"text":         f.Text,
		"access_count": f.AccessCount,
		"created_at":   f.CreatedAt,
		"updated_at":   f.UpdatedAt,
	}
}

// decodeFactValue maps a JSON value (plus optional explicit kind) onto the
// closed set of fact value shapes.
func decodeFactValue(raw json.RawMessage, kind string) (store.FactValue, error) {
	if len(raw) == 0 {
		return store.StringValue(""), nil
	}

	if kind == "date" {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return store.FactValue{}, errors.New("date value must be a string")
		}
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return store.FactValue{}, errors.New("date value must be YYYY-MM-DD")
		}
		return store.DateValue(t), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return store.StringValue(s), nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return store.NumberValue(n), nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return store.ListValue(list), nil
	}

	return store.FactValue{}, errors.New("value must be a string, number, date or list of strings")
}
