package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quantlab/papertrader/internal/agent"
	"github.com/quantlab/papertrader/internal/domain"
)

// AgentService defines the methods the agent handler requires from the
// decision runner.
type AgentService interface {
	Status(ctx context.Context) (agent.Status, error)
	Run(ctx context.Context) error
}

// AgentHandler serves agent control and introspection endpoints.
type AgentHandler struct {
	runner    AgentService
	settings  domain.SettingsStore
	reasoning domain.ReasoningStore
	history   domain.HistoryStore
	logger    *slog.Logger
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(runner AgentService, settings domain.SettingsStore, reasoning domain.ReasoningStore, history domain.HistoryStore, logger *slog.Logger) *AgentHandler {
	return &AgentHandler{
		runner:    runner,
		settings:  settings,
		reasoning: reasoning,
		history:   history,
		logger:    logger,
	}
}

// Status returns the runner state and the current agent settings.
// GET /api/agent/status
func (h *AgentHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.runner.Status(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: agent status failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load agent status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// updateSettingsRequest carries a partial settings update. Absent fields keep
// their stored value; stop_loss_pct and take_profit_pct accept null to clear
// the exit rule, which is why they are double pointers after decoding.
type updateSettingsRequest struct {
	Enabled         *bool                   `json:"enabled"`
	IncludeVolatile *bool                   `json:"include_volatile"`
	FullControl     *bool                   `json:"full_control"`
	StopLossPct     jsonOptional[float64]   `json:"stop_loss_pct"`
	TakeProfitPct   jsonOptional[float64]   `json:"take_profit_pct"`
	ConfidenceFloor *float64                `json:"confidence_floor"`
	Weights         *domain.EnsembleWeights `json:"weights"`
}

// jsonOptional distinguishes "field absent" from "field explicitly null".
type jsonOptional[T any] struct {
	Set   bool
	Value *T
}

func (o *jsonOptional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// UpdateSettings applies a partial update to the persisted agent settings.
// POST /api/agent/status
func (h *AgentHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	current, err := h.settings.Get(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: load settings failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	if req.Enabled != nil {
		current.Enabled = *req.Enabled
	}
	if req.IncludeVolatile != nil {
		current.IncludeVolatile = *req.IncludeVolatile
	}
	if req.FullControl != nil {
		current.FullControl = *req.FullControl
	}
	if req.StopLossPct.Set {
		current.StopLossPct = req.StopLossPct.Value
	}
	if req.TakeProfitPct.Set {
		current.TakeProfitPct = req.TakeProfitPct.Value
	}
	if req.ConfidenceFloor != nil {
		current.ConfidenceFloor = *req.ConfidenceFloor
	}
	if req.Weights != nil {
		current.Weights = *req.Weights
	}

	if msg := validateSettings(current); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	current.UpdatedAt = time.Now().UTC()

	updated, err := h.settings.Update(r.Context(), current)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: update settings failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func validateSettings(s domain.AgentSettings) string {
	if s.ConfidenceFloor < 0 || s.ConfidenceFloor > 1 {
		return "confidence_floor must be between 0 and 1"
	}
	if s.StopLossPct != nil && (*s.StopLossPct <= 0 || *s.StopLossPct > 100) {
		return "stop_loss_pct must be between 0 and 100"
	}
	if s.TakeProfitPct != nil && (*s.TakeProfitPct <= 0 || *s.TakeProfitPct > 1000) {
		return "take_profit_pct must be between 0 and 1000"
	}
	w := s.Weights
	if w.Momentum < 0 || w.MeanReversion < 0 || w.Sentiment < 0 || w.Macro < 0 {
		return "weights must be non-negative"
	}
	if w.Sum() <= 0 {
		return "weights must sum to a positive value"
	}
	return ""
}

// Run triggers one decision cycle synchronously. A trigger that lands while a
// cycle is in flight gets 409 rather than queueing behind it.
// POST /api/agent/run
func (h *AgentHandler) Run(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Run(r.Context()); err != nil {
		switch {
		case errors.Is(err, domain.ErrCycleRunning):
			writeError(w, http.StatusConflict, "a cycle is already running")
		case errors.Is(err, domain.ErrAgentDisabled):
			writeError(w, http.StatusUnprocessableEntity, "agent is disabled")
		default:
			h.logger.ErrorContext(r.Context(), "handler: manual cycle failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "cycle failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// listReasoningResponse wraps the reasoning trail response.
type listReasoningResponse struct {
	Entries []domain.ReasoningEntry `json:"entries"`
}

// Reasoning returns newest-first reasoning trail entries, optionally filtered
// by symbol.
// GET /api/agent/reasoning?symbol=AAPL&limit=50&offset=0
func (h *AgentHandler) Reasoning(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	opts := parseListOpts(r)

	entries, err := h.reasoning.List(r.Context(), symbol, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list reasoning failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list reasoning entries")
		return
	}
	if entries == nil {
		entries = []domain.ReasoningEntry{}
	}
	writeJSON(w, http.StatusOK, listReasoningResponse{Entries: entries})
}

// listHistoryResponse wraps the decision audit trail response.
type listHistoryResponse struct {
	Entries []domain.HistoryEntry `json:"entries"`
}

// History returns the decision audit trail, newest first.
// GET /api/agent/history?limit=50&offset=0
func (h *AgentHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.history.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list history failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list history entries")
		return
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, listHistoryResponse{Entries: entries})
}
