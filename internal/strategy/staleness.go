package strategy

import (
	"math"
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

// StaleQuote trades the lag between the reference feed and the implied
// market: when the divergence tracker reports the market trailing a
// fresh oracle move, the strategy buys the side the oracle implies
// before the market catches up.
type StaleQuote struct {
	assets map[string]bool
}

// NewStaleQuote creates the strategy for the given instruments.
func NewStaleQuote(assets []string) *StaleQuote {
	s := &StaleQuote{assets: make(map[string]bool, len(assets))}
	for _, a := range assets {
		s.assets[a] = true
	}
	return s
}

func (s *StaleQuote) Name() string { return "stale_quote" }

func (s *StaleQuote) AppliesTo(asset string, _ time.Duration) bool {
	return s.assets[asset]
}

// EvaluateMarketState needs the divergence spread, the composite (for
// freshness) and the UP book. ALIGNED states produce no signal.
func (s *StaleQuote) EvaluateMarketState(ec EvalContext) (*MarketState, bool) {
	if !ec.HasSpread || !ec.HasComposite || !ec.HasUpBook {
		return nil, false
	}
	if ec.Spread.Direction == domain.DirectionAligned {
		return nil, false
	}
	mid := ec.UpBook.Midpoint()
	if mid == 0 {
		return nil, false
	}

	// UI lagging a rising oracle → market underprices UP; UI leading →
	// market overprices it.
	favored := domain.SideUp
	depth := ec.UpBook.AskDepthUSD(0.05)
	if ec.Spread.Direction == domain.DirectionUILeading {
		favored = domain.SideDown
		depth = downAskDepthUSD(ec.UpBook)
		if ec.HasDownBook {
			depth = ec.DownBook.AskDepthUSD(0.05)
		}
	}

	return &MarketState{
		Symbol:             ec.Window.Symbol,
		SecondsSinceOpen:   ec.Window.SecondsSinceOpen(ec.Now),
		BookMid:            mid,
		Conviction:         math.Abs(mid - 0.5),
		ContrarianDepthUSD: depth,
		CompositeAge:       ec.Now.Sub(ec.Composite.At),
		DivergencePct:      ec.Spread.Pct,
		DivergenceDir:      ec.Spread.Direction,
		Favored:            favored,
	}, true
}

// ShouldFire requires the divergence to clear the variation threshold
// on a fresh composite: a stale reference is noise, not signal.
func (s *StaleQuote) ShouldFire(state *MarketState, params VariationParams) bool {
	if math.Abs(state.DivergencePct) < params.MinDivergence {
		return false
	}
	if params.MaxCompositeAge > 0 && state.CompositeAge > params.MaxCompositeAge {
		return false
	}
	return state.ContrarianDepthUSD >= params.MinDepthUSD
}
