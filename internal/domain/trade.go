package domain

import "time"

// TradeSide es el lado de una operación simulada sobre una ventana.
type TradeSide string

const (
	SideUp   TradeSide = "UP"
	SideDown TradeSide = "DOWN"
)

// SimulatedTrade es una operación de paper trading: creada cuando una
// variación de estrategia dispara y la orden simulada se rellena contra
// la profundidad capturada; cerrada en la resolución de la ventana o
// por una regla de salida.
type SimulatedTrade struct {
	ID         string
	Strategy   string
	Variation  string
	Symbol     string
	Slug       string
	Side       TradeSide
	TokenID    string
	OpenEpoch  int64
	Shares     float64
	EntryPrice float64 // precio medio del fill simulado
	Cost       float64 // shares × entry
	EntryFee   float64
	ExitFee    float64
	OpenedAt   time.Time
	ClosedAt   *time.Time
	ExitPrice  float64
	ExitReason string // "settlement" | "early_exit" | "expired_no_data"
	Realized   float64
	Won        bool
}

// IsOpen devuelve true si el trade sigue abierto.
func (t SimulatedTrade) IsOpen() bool { return t.ClosedAt == nil }

// SettlePnL es el pnl realizado en settlement:
// payout de resolución − coste de entrada − fees.
func SettlePnL(payout, cost, fees float64) float64 {
	return payout - cost - fees
}

// EarlyExitPnL es el pnl realizado de una salida anticipada:
// proceeds simulados − coste de entrada − fee de entrada − fee de salida.
func EarlyExitPnL(proceeds, cost, entryFee, exitFee float64) float64 {
	return proceeds - cost - entryFee - exitFee
}

// FillResult es el resultado de caminar la profundidad capturada.
// El remanente sin fill se reporta explícitamente, nunca se asume cero.
type FillResult struct {
	Requested  float64
	Filled     float64
	Unfilled   float64
	AvgPrice   float64 // media ponderada por size de los niveles consumidos
	Cost       float64 // suma de price×size consumido
	LevelsUsed int
}

// Complete devuelve true si el fill cubrió todo lo solicitado.
func (f FillResult) Complete() bool { return f.Unfilled == 0 }

// WalkBook consume niveles en orden de book (mejor primero) hasta agotar
// las shares pedidas o la profundidad disponible. Los niveles deben venir
// ya ordenados (SortedBids / SortedAsks / DerivedDownBids sobre asks
// ordenados).
func WalkBook(levels []BookLevel, shares float64) FillResult {
	res := FillResult{Requested: shares}
	if shares <= 0 {
		return res
	}

	remaining := shares
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		if lvl.Size <= 0 || lvl.Price <= 0 {
			continue
		}
		take := lvl.Size
		if take > remaining {
			take = remaining
		}
		res.Filled += take
		res.Cost += take * lvl.Price
		res.LevelsUsed++
		remaining -= take
	}

	res.Unfilled = remaining
	if res.Filled > 0 {
		res.AvgPrice = res.Cost / res.Filled
	}
	return res
}
