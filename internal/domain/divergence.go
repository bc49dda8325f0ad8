package domain

import "time"

// PriceSource identifica el origen de un precio en el tracker de divergencia.
type PriceSource string

const (
	// SourceUI es el precio implícito del mercado (lo que "ve" el mercado).
	SourceUI PriceSource = "ui"
	// SourceOracle es el precio de referencia independiente (composite multi-venue).
	SourceOracle PriceSource = "oracle"
)

// Direction clasifica el signo de la divergencia.
type Direction string

const (
	DirectionAligned   Direction = "ALIGNED"
	DirectionUILeading Direction = "UI_LEADING"
	DirectionUILagging Direction = "UI_LAGGING"
)

// Spread es el estado de divergencia de un símbolo tras una actualización.
type Spread struct {
	Symbol      string
	UIPrice     float64
	OraclePrice float64
	Raw         float64 // ui - oracle
	Pct         float64 // raw / oracle; 0 si oracle es 0
	Direction   Direction
	Breached    bool
	At          time.Time
}

// BreachEventKind distingue inicio y fin de breach.
type BreachEventKind string

const (
	BreachStarted BreachEventKind = "STARTED"
	BreachEnded   BreachEventKind = "ENDED"
)

// BreachEvent se emite SOLO en las transiciones de entrada/salida de
// breach (edge-triggered, nunca en cada tick dentro del breach).
type BreachEvent struct {
	Symbol        string
	Kind          BreachEventKind
	Spread        Spread
	StartedAt     time.Time
	SpreadAtStart float64       // pct en el momento de entrar en breach
	Duration      time.Duration // solo en ENDED
}
