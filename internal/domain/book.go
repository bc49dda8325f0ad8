package domain

import (
	"sort"
	"time"
)

// BookLevel es un nivel de precio del orderbook.
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBook representa el libro de órdenes de un token tal como lo
// devuelve el CLOB. No se asume ningún orden en los niveles: los best
// se calculan por scan lineal.
type OrderBook struct {
	TokenID string
	Bids    []BookLevel
	Asks    []BookLevel
}

// Empty devuelve true si el book no tiene ni bids ni asks.
// Un book vacío se trata como "sin datos" y no se persiste.
func (ob OrderBook) Empty() bool {
	return len(ob.Bids) == 0 && len(ob.Asks) == 0
}

// BestBid devuelve el mayor bid por scan lineal. 0 si no hay bids.
func (ob OrderBook) BestBid() float64 {
	best := 0.0
	for _, b := range ob.Bids {
		if b.Price > best {
			best = b.Price
		}
	}
	return best
}

// BestAsk devuelve el menor ask por scan lineal. 0 si no hay asks.
func (ob OrderBook) BestAsk() float64 {
	best := 0.0
	for _, a := range ob.Asks {
		if a.Price <= 0 {
			continue
		}
		if best == 0 || a.Price < best {
			best = a.Price
		}
	}
	return best
}

// Midpoint devuelve el punto medio entre best bid y best ask.
// Devuelve 0 si falta cualquiera de los dos lados.
func (ob OrderBook) Midpoint() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread devuelve el spread del book (ask - bid). 0 si falta un lado.
func (ob OrderBook) Spread() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// BidDepthUSD suma price×size de los bids dentro del umbral relativo
// al best bid (threshold 0.01 = bids a menos de 1% del mejor precio).
func (ob OrderBook) BidDepthUSD(threshold float64) float64 {
	best := ob.BestBid()
	if best == 0 {
		return 0
	}
	floor := best * (1 - threshold)
	var total float64
	for _, b := range ob.Bids {
		if b.Price >= floor {
			total += b.Price * b.Size
		}
	}
	return total
}

// AskDepthUSD suma price×size de los asks dentro del umbral relativo
// al best ask.
func (ob OrderBook) AskDepthUSD(threshold float64) float64 {
	best := ob.BestAsk()
	if best == 0 {
		return 0
	}
	ceil := best * (1 + threshold)
	var total float64
	for _, a := range ob.Asks {
		if a.Price > 0 && a.Price <= ceil {
			total += a.Price * a.Size
		}
	}
	return total
}

// SortedBids devuelve una copia de los bids ordenados de mayor a menor
// precio, lista para consumir caminando el book.
func (ob OrderBook) SortedBids() []BookLevel {
	out := make([]BookLevel, len(ob.Bids))
	copy(out, ob.Bids)
	sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	return out
}

// SortedAsks devuelve una copia de los asks ordenados de menor a mayor precio.
func (ob OrderBook) SortedAsks() []BookLevel {
	out := make([]BookLevel, len(ob.Asks))
	copy(out, ob.Asks)
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

// DerivedDownBids deriva los bids del token DOWN a partir de los asks
// del token UP: vender DOWN a (1 - ask) con el mismo size. Se usa cuando
// el book del token DOWN no se captura de forma independiente.
func DerivedDownBids(upAsks []BookLevel) []BookLevel {
	return complementLevels(upAsks)
}

// DerivedDownAsks deriva los asks del token DOWN a partir de los bids
// del token UP: comprar DOWN a (1 - bid) con el mismo size.
func DerivedDownAsks(upBids []BookLevel) []BookLevel {
	return complementLevels(upBids)
}

// complementLevels espeja niveles al token complementario (precio 1-p).
// Espera niveles ya ordenados de mejor a peor: el espejo preserva ese orden.
func complementLevels(levels []BookLevel) []BookLevel {
	out := make([]BookLevel, 0, len(levels))
	for _, l := range levels {
		if l.Price <= 0 || l.Price >= 1 {
			continue
		}
		out = append(out, BookLevel{Price: 1 - l.Price, Size: l.Size})
	}
	return out
}

// BookSnapshot es la captura agregada del book de un token en un ciclo.
// Superseded por el siguiente snapshot del mismo token.
type BookSnapshot struct {
	ID           string // uuid por captura; enlaza las filas L2
	TokenID      string
	BestBid      float64
	BestAsk      float64
	Spread       float64
	Mid          float64
	BidDepth1Pct float64 // USD dentro de 1% del best bid
	BidDepth5Pct float64
	AskDepth1Pct float64
	AskDepth5Pct float64
	BidLevels    int
	AskLevels    int
	At           time.Time
}

// BookLevelRow es una fila L2 persistida, enlazada a su snapshot por id.
type BookLevelRow struct {
	SnapshotID string
	TokenID    string
	Side       string // "bid" | "ask"
	Rank       int    // 0 = best
	Price      float64
	Size       float64
	At         time.Time
}
