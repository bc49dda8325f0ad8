package strategy

import "time"

// Entry is one registered strategy with its named variations.
type Entry struct {
	Strategy   Strategy
	Variations []VariationParams
}

// Registry is the closed, typed set the engine iterates each cycle.
type Registry struct {
	entries []Entry
}

// NewRegistry builds the production registry for the tracked assets:
// the three primitives plus a majority-vote composite over them, each
// with a conservative and an aggressive variation.
func NewRegistry(assets []string) *Registry {
	contrarian := NewVWAPContrarian(assets)
	imbalance := NewBookImbalance(assets)
	stale := NewStaleQuote(assets)

	return &Registry{entries: []Entry{
		{
			Strategy: contrarian,
			Variations: []VariationParams{
				{
					Name:            "fade_20bps",
					MinDeltaPct:     0.002,
					MaxConviction:   0.25,
					MinDepthUSD:     200,
					MaxCompositeAge: 10 * time.Second,
				},
				{
					Name:            "fade_50bps",
					MinDeltaPct:     0.005,
					MaxConviction:   0.35,
					MinDepthUSD:     100,
					MaxCompositeAge: 10 * time.Second,
				},
			},
		},
		{
			Strategy: imbalance,
			Variations: []VariationParams{
				{Name: "lean_60", MinImbalance: 0.2, MaxConviction: 0.3, MinDepthUSD: 200},
				{Name: "lean_80", MinImbalance: 0.6, MaxConviction: 0.4, MinDepthUSD: 100},
			},
		},
		{
			Strategy: stale,
			Variations: []VariationParams{
				{
					Name:            "lag_30bps",
					MinDivergence:   0.003,
					MinDepthUSD:     150,
					MaxCompositeAge: 5 * time.Second,
				},
			},
		},
		{
			Strategy: NewMajorityVote(contrarian, imbalance, stale),
			Variations: []VariationParams{
				{Name: "two_of_three", MinVotes: 2, MinDepthUSD: 150},
			},
		},
	}}
}

// NewRegistryWith builds a registry from explicit entries (tests).
func NewRegistryWith(entries ...Entry) *Registry {
	return &Registry{entries: entries}
}

// Entries returns the registered strategies in registration order.
func (r *Registry) Entries() []Entry {
	return r.entries
}
