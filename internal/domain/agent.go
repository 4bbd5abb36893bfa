package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EnsembleWeights are the fixed mixing weights for the four signal slots.
// They must sum to 1.0.
type EnsembleWeights struct {
	Momentum      float64 `json:"momentum" toml:"momentum"`
	MeanReversion float64 `json:"mean_reversion" toml:"mean_reversion"`
	Sentiment     float64 `json:"sentiment" toml:"sentiment"`
	Macro         float64 `json:"macro" toml:"macro"`
}

// DefaultWeights returns the production ensemble mix.
func DefaultWeights() EnsembleWeights {
	return EnsembleWeights{Momentum: 0.40, MeanReversion: 0.20, Sentiment: 0.30, Macro: 0.10}
}

// Sum returns the total of the four weights.
func (w EnsembleWeights) Sum() float64 {
	return w.Momentum + w.MeanReversion + w.Sentiment + w.Macro
}

// AgentSettings is the persisted singleton configuration read at the start of
// every agent cycle. Nil StopLossPct/TakeProfitPct mean the exit rule is
// disabled, not zero.
type AgentSettings struct {
	Enabled         bool
	IncludeVolatile bool
	FullControl     bool
	StopLossPct     *float64
	TakeProfitPct   *float64
	ConfidenceFloor float64
	Weights         EnsembleWeights
	UpdatedAt       time.Time
}

// ReasoningStep labels one entry in the per-decision reasoning trail.
type ReasoningStep string

const (
	StepStart      ReasoningStep = "start"
	StepSignal     ReasoningStep = "signal"
	StepEnsemble   ReasoningStep = "ensemble"
	StepGuardrail  ReasoningStep = "guardrail"
	StepStopLoss   ReasoningStep = "stop_loss"
	StepTakeProfit ReasoningStep = "take_profit"
	StepExecute    ReasoningStep = "execute"
	StepUniverse   ReasoningStep = "universe"
	StepError      ReasoningStep = "error"
)

// StepData is the structured payload attached to a reasoning entry. Each step
// type has its own tagged variant so the audit trail stays queryable instead
// of accreting loose JSON blobs.
type StepData interface {
	StepKind() string
}

// SignalBreakdownData records the full ensemble breakdown for a decision.
type SignalBreakdownData struct {
	Composite     float64              `json:"composite"`
	AvgConfidence float64              `json:"avg_confidence"`
	AgreeCount    int                  `json:"agree_count"`
	Dampened      bool                 `json:"dampened"`
	Contributions []SignalContribution `json:"contributions"`
}

func (SignalBreakdownData) StepKind() string { return "signal_breakdown" }

// GuardrailHitData records a hard override that forced Hold.
type GuardrailHitData struct {
	Guardrail string  `json:"guardrail"`
	Observed  float64 `json:"observed"`
	Limit     float64 `json:"limit"`
}

func (GuardrailHitData) StepKind() string { return "guardrail_hit" }

// ExitTriggeredData records an automatic stop-loss or take-profit sell.
type ExitTriggeredData struct {
	Rule         string  `json:"rule"` // "stop_loss" or "take_profit"
	PnLPct       float64 `json:"pnl_pct"`
	ThresholdPct float64 `json:"threshold_pct"`
	Quantity     string  `json:"quantity"`
	Price        string  `json:"price"`
}

func (ExitTriggeredData) StepKind() string { return "exit_triggered" }

// ExecutionData records an attempted ledger operation.
type ExecutionData struct {
	OrderID  string `json:"order_id,omitempty"`
	Side     string `json:"side"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
	Rejected string `json:"rejected,omitempty"`
}

func (ExecutionData) StepKind() string { return "execution" }

// UniverseData records how the cycle's symbol universe was assembled.
type UniverseData struct {
	Watchlist int      `json:"watchlist"`
	Normal    int      `json:"normal"`
	Volatile  int      `json:"volatile"`
	Held      int      `json:"held"`
	Symbols   []string `json:"symbols"`
}

func (UniverseData) StepKind() string { return "universe" }

// ErrorData records a per-symbol failure that did not abort the cycle.
type ErrorData struct {
	Error string `json:"error"`
}

func (ErrorData) StepKind() string { return "error" }

// ReasoningEntry is one append-only line in the agent's reasoning trail.
type ReasoningEntry struct {
	ID        string
	Symbol    string
	Step      ReasoningStep
	Message   string
	Data      StepData
	CreatedAt time.Time
}

type stepEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalStepData serializes a StepData variant with its kind tag. A nil
// payload marshals to an empty envelope.
func MarshalStepData(d StepData) ([]byte, error) {
	if d == nil {
		return json.Marshal(stepEnvelope{Kind: "none", Data: json.RawMessage("{}")})
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal step data: %w", err)
	}
	return json.Marshal(stepEnvelope{Kind: d.StepKind(), Data: raw})
}

// UnmarshalStepData decodes a tagged envelope back into its concrete variant.
// Unknown kinds decode to nil without error so old rows stay readable.
func UnmarshalStepData(b []byte) (StepData, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var env stepEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("unmarshal step envelope: %w", err)
	}

	var (
		d   StepData
		err error
	)
	switch env.Kind {
	case "signal_breakdown":
		var v SignalBreakdownData
		err = json.Unmarshal(env.Data, &v)
		d = v
	case "guardrail_hit":
		var v GuardrailHitData
		err = json.Unmarshal(env.Data, &v)
		d = v
	case "exit_triggered":
		var v ExitTriggeredData
		err = json.Unmarshal(env.Data, &v)
		d = v
	case "execution":
		var v ExecutionData
		err = json.Unmarshal(env.Data, &v)
		d = v
	case "universe":
		var v UniverseData
		err = json.Unmarshal(env.Data, &v)
		d = v
	case "error":
		var v ErrorData
		err = json.Unmarshal(env.Data, &v)
		d = v
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal step data %q: %w", env.Kind, err)
	}
	return d, nil
}

// HistoryEntry is one append-only row in the agent's decision audit trail. An
// entry is written for every non-Hold decision and for automatic exits,
// whether or not the ledger accepted the trade.
type HistoryEntry struct {
	ID                 string
	Symbol             string
	Action             Action
	PositionSize       float64
	Reason             string
	Executed           bool
	OrderID            *string
	GuardrailTriggered bool
	CreatedAt          time.Time
}

// WatchlistItem is a user-tracked symbol.
type WatchlistItem struct {
	Symbol      string
	CompanyName string
	AddedAt     time.Time
}
