package domain

import "time"

// SignalSource identifies one of the four ensemble signal slots.
type SignalSource string

const (
	SignalMomentum      SignalSource = "momentum"
	SignalMeanReversion SignalSource = "mean_reversion"
	SignalSentiment     SignalSource = "sentiment"
	SignalMacro         SignalSource = "macro"
)

// SignalOutput is one provider's view of a symbol: a directional score in
// [-1, 1] (negative bearish) and a confidence in [0, 1]. Outputs are produced
// fresh per decision and never persisted.
type SignalOutput struct {
	Source     SignalSource
	Score      float64
	Confidence float64
}

// Neutral returns the zero-information output substituted when a provider
// fails or times out. Zero confidence pulls the ensemble toward Hold.
func Neutral(source SignalSource) SignalOutput {
	return SignalOutput{Source: source}
}

// SignalSet bundles the four ensemble inputs for one decision.
type SignalSet struct {
	Momentum      SignalOutput
	MeanReversion SignalOutput
	Sentiment     SignalOutput
	Macro         SignalOutput
}

// All returns the signals in canonical weight order.
func (s SignalSet) All() [4]SignalOutput {
	return [4]SignalOutput{s.Momentum, s.MeanReversion, s.Sentiment, s.Macro}
}

// Action is the ensemble's verdict for a symbol.
type Action string

const (
	ActionBuy  Action = "Buy"
	ActionSell Action = "Sell"
	ActionHold Action = "Hold"
)

// SignalContribution records how one signal entered the composite.
type SignalContribution struct {
	Source       SignalSource `json:"source"`
	Score        float64      `json:"score"`
	Confidence   float64      `json:"confidence"`
	Weight       float64      `json:"weight"`
	Contribution float64      `json:"contribution"`
}

// Decision is the immutable output of one orchestrator run. PositionSize is a
// fraction of investable cash for a Buy and a fraction of the held quantity
// for a Sell.
type Decision struct {
	Symbol             string
	Timestamp          time.Time
	Composite          float64
	Action             Action
	PositionSize       float64
	AvgConfidence      float64
	AgreeCount         int
	Reason             string
	GuardrailTriggered bool
	Dampened           bool
	Breakdown          []SignalContribution
}
