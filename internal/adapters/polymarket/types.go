package polymarket

import (
	"encoding/json"
	"io"
)

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- Gamma API ---

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket contiene la metadata de un mercado up/down.
// Gamma devuelve varios campos como strings JSON: los numéricos van en
// json.Number y los arrays (clobTokenIds, outcomes, outcomePrices)
// vienen doblemente codificados como string.
type gammaMarket struct {
	ConditionID   string      `json:"conditionId"`
	Question      string      `json:"question"`
	Slug          string      `json:"slug"`
	EndDateISO    string      `json:"endDateIso"`
	EndDate       string      `json:"endDate"`
	Volume24h     json.Number `json:"volume24hr"`
	Liquidity     json.Number `json:"liquidityNum"`
	ClobTokenIDs  string      `json:"clobTokenIds"`
	Outcomes      string      `json:"outcomes"`
	OutcomePrices string      `json:"outcomePrices"`
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
}

// decodeNestedStrings decodifica un array JSON codificado como string
// ("[\"a\",\"b\"]" → ["a","b"]). Devuelve nil si el campo está vacío o malformado.
func decodeNestedStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// --- CLOB API ---

// orderBookResponse es la respuesta de GET /book.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// --- data-api ---

// dataPosition es una posición reportada por GET /positions.
type dataPosition struct {
	Asset string  `json:"asset"` // token id
	Size  float64 `json:"size"`
}

func decodeJSON(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}
