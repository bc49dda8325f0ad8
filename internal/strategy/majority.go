package strategy

import (
	"math"
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

// MajorityVote composes the primitive strategies: each member that
// produces a state casts a vote for its favored side, and the composite
// fires only when enough members agree. One shared state computation
// per member per cycle, same as standalone evaluation.
type MajorityVote struct {
	members []Strategy
}

// NewMajorityVote wraps the given member strategies.
func NewMajorityVote(members ...Strategy) *MajorityVote {
	return &MajorityVote{members: members}
}

func (s *MajorityVote) Name() string { return "majority_vote" }

// AppliesTo delegates: the composite applies wherever any member does.
func (s *MajorityVote) AppliesTo(asset string, offset time.Duration) bool {
	for _, m := range s.members {
		if m.AppliesTo(asset, offset) {
			return true
		}
	}
	return false
}

// EvaluateMarketState tallies member votes and rebuilds the state for
// the winning side. Inheriting a member's state would be wrong: depth
// and conviction have to describe the side the composite would actually
// enter, not whichever dissenting member produced a state first.
func (s *MajorityVote) EvaluateMarketState(ec EvalContext) (*MarketState, bool) {
	up, down := 0, 0
	for _, m := range s.members {
		st, ok := m.EvaluateMarketState(ec)
		if !ok {
			continue
		}
		switch st.Favored {
		case domain.SideUp:
			up++
		case domain.SideDown:
			down++
		}
	}
	if up == down || !ec.HasUpBook {
		return nil, false
	}
	mid := ec.UpBook.Midpoint()
	if mid == 0 {
		return nil, false
	}

	favored, votes := domain.SideUp, up
	if down > up {
		favored, votes = domain.SideDown, down
	}

	state := &MarketState{
		Symbol:             ec.Window.Symbol,
		SecondsSinceOpen:   ec.Window.SecondsSinceOpen(ec.Now),
		BookMid:            mid,
		Conviction:         math.Abs(mid - 0.5),
		ContrarianDepthUSD: entryDepthUSD(ec, favored),
		Favored:            favored,
		Votes:              votes,
	}
	if ec.HasComposite {
		state.CompositeAge = ec.Now.Sub(ec.Composite.At)
		if ec.HasOpenPrice && ec.OpenPrice != 0 {
			state.CompositeDeltaPct = (ec.Composite.Price - ec.OpenPrice) / ec.OpenPrice
		}
	}
	return state, true
}

// entryDepthUSD is the ask depth available to enter the given side,
// deriving the DOWN levels from the UP book when no capture exists.
func entryDepthUSD(ec EvalContext, side domain.TradeSide) float64 {
	if side == domain.SideUp {
		return ec.UpBook.AskDepthUSD(0.05)
	}
	if ec.HasDownBook {
		return ec.DownBook.AskDepthUSD(0.05)
	}
	return downAskDepthUSD(ec.UpBook)
}

// ShouldFire requires the winning side to reach the vote quorum.
func (s *MajorityVote) ShouldFire(state *MarketState, params VariationParams) bool {
	quorum := params.MinVotes
	if quorum <= 0 {
		quorum = 2
	}
	if state.Votes < quorum {
		return false
	}
	return state.ContrarianDepthUSD >= params.MinDepthUSD
}
