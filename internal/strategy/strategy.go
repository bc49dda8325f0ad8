// Package strategy evaluates a registry of independent signal
// strategies against the live market state of each active window,
// simulates fills by walking captured book depth, and maintains the
// resulting paper positions and bankroll.
package strategy

import (
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

// EvalContext carries everything a strategy may look at in one cycle.
// Missing inputs are flagged explicitly so EvaluateMarketState can bail
// out instead of working on zero values.
type EvalContext struct {
	Window       domain.Window
	Composite    domain.CompositeSnapshot
	HasComposite bool
	OpenPrice    float64 // composite observed at window open
	HasOpenPrice bool
	UpBook       domain.OrderBook
	HasUpBook    bool
	DownBook     domain.OrderBook
	HasDownBook  bool
	Spread       domain.Spread
	HasSpread    bool
	Now          time.Time
}

// MarketState is the typed snapshot of decision-relevant facts, computed
// once per strategy per window per cycle and shared by all variations.
type MarketState struct {
	Symbol             string
	SecondsSinceOpen   float64
	CompositeDeltaPct  float64 // composite vs window-open composite
	BookMid            float64 // mid of the UP token book
	Conviction         float64 // distance of the implied mid from 0.5
	Imbalance          float64 // (bidDepth-askDepth)/(bidDepth+askDepth) at 5%
	ContrarianDepthUSD float64 // depth available to enter the favored side
	CompositeAge       time.Duration
	DivergencePct      float64
	DivergenceDir      domain.Direction
	Favored            domain.TradeSide // side this state argues for
	Votes              int              // only used by the majority strategy
}

// VariationParams is one named parameter set of a strategy. Many
// variations share a single MarketState computation per cycle.
type VariationParams struct {
	Name            string
	MinDeltaPct     float64
	MinImbalance    float64
	MaxConviction   float64
	MinDepthUSD     float64
	MaxCompositeAge time.Duration
	MinDivergence   float64
	MinVotes        int
}

// Strategy is a self-contained signal unit. All three methods are pure:
// eligibility gate, state derivation, and a parameterized threshold test.
type Strategy interface {
	Name() string

	// AppliesTo gates by instrument and by timing: offset is how far
	// into the window the engine evaluates signals.
	AppliesTo(asset string, offset time.Duration) bool

	// EvaluateMarketState derives the decision-relevant snapshot.
	// Returns false when a required input is missing.
	EvaluateMarketState(ec EvalContext) (*MarketState, bool)

	// ShouldFire tests the state against one variation's thresholds.
	ShouldFire(state *MarketState, params VariationParams) bool
}

// withinWindow is the shared timing gate: signals are evaluated only
// after the offset into the window and with enough time left to matter.
const minRemainingToFire = 60 * time.Second

func withinWindow(ec EvalContext, offset time.Duration) bool {
	since := ec.Window.SecondsSinceOpen(ec.Now)
	if since < offset.Seconds() {
		return false
	}
	return ec.Window.TimeToClose(ec.Now) >= minRemainingToFire
}
