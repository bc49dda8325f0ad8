package strategy

import (
	"math"
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

// VWAPContrarian fades the intra-window move: when the composite price
// has run up hard since the window opened, the implied market tends to
// overprice the continuation, so the strategy favors the opposite side.
type VWAPContrarian struct {
	assets map[string]bool
}

// NewVWAPContrarian creates the strategy for the given instruments.
func NewVWAPContrarian(assets []string) *VWAPContrarian {
	s := &VWAPContrarian{assets: make(map[string]bool, len(assets))}
	for _, a := range assets {
		s.assets[a] = true
	}
	return s
}

func (s *VWAPContrarian) Name() string { return "vwap_contrarian" }

// AppliesTo gates by instrument and by timing: fading a move makes no
// sense in the first minutes of the window, before a move exists.
func (s *VWAPContrarian) AppliesTo(asset string, offset time.Duration) bool {
	return s.assets[asset] && offset >= 2*time.Minute
}

// EvaluateMarketState needs the composite, the window-open composite and
// the UP book; anything missing means no state.
func (s *VWAPContrarian) EvaluateMarketState(ec EvalContext) (*MarketState, bool) {
	if !ec.HasComposite || !ec.HasOpenPrice || !ec.HasUpBook || ec.OpenPrice == 0 {
		return nil, false
	}

	deltaPct := (ec.Composite.Price - ec.OpenPrice) / ec.OpenPrice
	mid := ec.UpBook.Midpoint()
	if mid == 0 {
		return nil, false
	}

	// Contrarian: composite up → favor DOWN, composite down → favor UP.
	favored := domain.SideDown
	contrarianDepth := ec.DownBook.AskDepthUSD(0.05)
	if !ec.HasDownBook {
		contrarianDepth = downAskDepthUSD(ec.UpBook)
	}
	if deltaPct < 0 {
		favored = domain.SideUp
		contrarianDepth = ec.UpBook.AskDepthUSD(0.05)
	}

	return &MarketState{
		Symbol:             ec.Window.Symbol,
		SecondsSinceOpen:   ec.Window.SecondsSinceOpen(ec.Now),
		CompositeDeltaPct:  deltaPct,
		BookMid:            mid,
		Conviction:         math.Abs(mid - 0.5),
		ContrarianDepthUSD: contrarianDepth,
		CompositeAge:       ec.Now.Sub(ec.Composite.At),
		Favored:            favored,
	}, true
}

// ShouldFire requires a big enough move, a market that has not already
// priced it in (conviction cap), and depth to actually enter.
func (s *VWAPContrarian) ShouldFire(state *MarketState, params VariationParams) bool {
	if math.Abs(state.CompositeDeltaPct) < params.MinDeltaPct {
		return false
	}
	if params.MaxConviction > 0 && state.Conviction > params.MaxConviction {
		return false
	}
	if state.ContrarianDepthUSD < params.MinDepthUSD {
		return false
	}
	if params.MaxCompositeAge > 0 && state.CompositeAge > params.MaxCompositeAge {
		return false
	}
	return true
}

// downAskDepthUSD approximates DOWN-side ask depth from the UP bids when
// the DOWN book was not captured independently.
func downAskDepthUSD(up domain.OrderBook) float64 {
	asks := domain.DerivedDownAsks(up.SortedBids())
	ob := domain.OrderBook{Asks: asks}
	return ob.AskDepthUSD(0.05)
}
