package domain

import "time"

// PriceTick es la observación de un venue sobre un activo en un instante.
// Inmutable una vez capturado; se acumula en un buffer acotado y se
// persiste en batches.
type PriceTick struct {
	Venue  string
	Symbol string
	Price  float64
	Bid    float64
	Ask    float64
	Volume float64 // volumen 24h reportado por el venue
	At     time.Time
}

// CompositeSnapshot es el agregado multi-venue de un símbolo en un ciclo:
// precio medio ponderado por volumen, número de venues y volumen total.
// Derivado, no persistido de forma independiente: se recalcula en cada
// ciclo de ingestión.
type CompositeSnapshot struct {
	Symbol      string
	Price       float64
	VenueCount  int
	TotalVolume float64
	At          time.Time
}

// Composite calcula el snapshot compuesto de un símbolo a partir de los
// ticks válidos del ciclo actual. Pondera por volumen; si ningún venue
// reporta volumen usa la media simple. Devuelve false si no hay ticks.
func Composite(symbol string, ticks []PriceTick, at time.Time) (CompositeSnapshot, bool) {
	var weighted, totalVol, sum float64
	count := 0
	for _, t := range ticks {
		if t.Symbol != symbol || t.Price <= 0 {
			continue
		}
		weighted += t.Price * t.Volume
		totalVol += t.Volume
		sum += t.Price
		count++
	}
	if count == 0 {
		return CompositeSnapshot{}, false
	}

	price := sum / float64(count)
	if totalVol > 0 {
		price = weighted / totalVol
	}
	return CompositeSnapshot{
		Symbol:      symbol,
		Price:       price,
		VenueCount:  count,
		TotalVolume: totalVol,
		At:          at,
	}, true
}
