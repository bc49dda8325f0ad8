package polymarket

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
)

// mapGammaWindow convierte un gammaMarket DTO a domain.Window.
// El strike NO se parsea aquí: lo extrae discovery de la question.
func mapGammaWindow(gm gammaMarket) (domain.Window, error) {
	end, err := parseGammaTime(gm)
	if err != nil {
		return domain.Window{}, err
	}

	w := domain.Window{
		Slug:        gm.Slug,
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		CloseEpoch:  end.Unix(),
		OpenEpoch:   end.Unix() - int64(domain.WindowDuration.Seconds()),
		Active:      gm.Active,
		Closed:      gm.Closed,
		FetchedAt:   time.Now().UTC(),
	}

	if v, err := gm.Volume24h.Float64(); err == nil {
		w.Volume24h = v
	}
	if v, err := gm.Liquidity.Float64(); err == nil {
		w.Liquidity = v
	}

	tokens := decodeNestedStrings(gm.ClobTokenIDs)
	outcomes := decodeNestedStrings(gm.Outcomes)
	prices := decodeNestedStrings(gm.OutcomePrices)

	// Por convención Gamma lista primero el outcome "Up"; si los outcomes
	// vienen etiquetados se respeta la etiqueta.
	upIdx, downIdx := 0, 1
	for i, o := range outcomes {
		switch strings.ToLower(o) {
		case "up", "yes":
			upIdx = i
		case "down", "no":
			downIdx = i
		}
	}

	if len(tokens) > upIdx {
		w.UpTokenID = tokens[upIdx]
	}
	if len(tokens) > downIdx {
		w.DownTokenID = tokens[downIdx]
	}
	if len(prices) > upIdx {
		if p, err := strconv.ParseFloat(prices[upIdx], 64); err == nil {
			w.ImpliedMid = p
		}
	}

	return w, nil
}

// parseGammaTime devuelve el end timestamp del mercado. Gamma publica
// endDateIso (fecha) y endDate (instante completo); se prefiere endDate.
func parseGammaTime(gm gammaMarket) (time.Time, error) {
	if gm.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, gm.EndDate); err == nil {
			return t.UTC(), nil
		}
	}
	if gm.EndDateISO != "" {
		if t, err := time.Parse("2006-01-02", gm.EndDateISO); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("market %q: no parseable end date", gm.Slug)
}

// mapOrderBook convierte la respuesta raw del CLOB a domain.OrderBook.
func mapOrderBook(tokenID string, resp orderBookResponse) domain.OrderBook {
	ob := domain.OrderBook{TokenID: tokenID}
	for _, b := range resp.Bids {
		ob.Bids = append(ob.Bids, domain.BookLevel{
			Price: parsePrice(b.Price),
			Size:  parsePrice(b.Size),
		})
	}
	for _, a := range resp.Asks {
		ob.Asks = append(ob.Asks, domain.BookLevel{
			Price: parsePrice(a.Price),
			Size:  parsePrice(a.Size),
		})
	}
	return ob
}

// parsePrice convierte un string de precio a float64.
func parsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
