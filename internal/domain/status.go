package domain

import "time"

// StatusReport es el resumen de un ciclo del watcher para el notifier.
type StatusReport struct {
	At             time.Time
	ActiveWindows  int
	Composites     []CompositeSnapshot
	Spreads        []Spread
	OpenTrades     []SimulatedTrade
	ClosedToday    int
	RealizedPnL    float64
	Bankroll       float64
	Assertions     []Assertion
	BreachesActive int
}
