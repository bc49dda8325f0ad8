package strategy

import (
	"math"
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

// BookImbalance reads pressure from the UP token book: a book much
// heavier on the bid side implies buyers of UP outnumber sellers, which
// favors UP (and symmetrically for the ask side).
type BookImbalance struct {
	assets map[string]bool
}

// NewBookImbalance creates the strategy for the given instruments.
func NewBookImbalance(assets []string) *BookImbalance {
	s := &BookImbalance{assets: make(map[string]bool, len(assets))}
	for _, a := range assets {
		s.assets[a] = true
	}
	return s
}

func (s *BookImbalance) Name() string { return "book_imbalance" }

// AppliesTo gates by instrument only; imbalance is meaningful at any
// point of the window.
func (s *BookImbalance) AppliesTo(asset string, _ time.Duration) bool {
	return s.assets[asset]
}

// EvaluateMarketState needs only the UP book with both sides present.
func (s *BookImbalance) EvaluateMarketState(ec EvalContext) (*MarketState, bool) {
	if !ec.HasUpBook {
		return nil, false
	}

	bidDepth := ec.UpBook.BidDepthUSD(0.05)
	askDepth := ec.UpBook.AskDepthUSD(0.05)
	total := bidDepth + askDepth
	if total == 0 {
		return nil, false
	}
	mid := ec.UpBook.Midpoint()
	if mid == 0 {
		return nil, false
	}

	imbalance := (bidDepth - askDepth) / total
	favored := domain.SideUp
	depth := askDepth // entering UP consumes asks
	if imbalance < 0 {
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
		Imbalance:          imbalance,
		ContrarianDepthUSD: depth,
		Favored:            favored,
	}, true
}

// ShouldFire requires the imbalance to clear the variation threshold
// with entry depth available.
func (s *BookImbalance) ShouldFire(state *MarketState, params VariationParams) bool {
	if math.Abs(state.Imbalance) < params.MinImbalance {
		return false
	}
	if params.MaxConviction > 0 && state.Conviction > params.MaxConviction {
		return false
	}
	return state.ContrarianDepthUSD >= params.MinDepthUSD
}
