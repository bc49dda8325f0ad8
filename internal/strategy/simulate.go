package strategy

import (
	"github.com/alejandrodnm/polywatch/internal/domain"
)

// Fill simulation: orders are filled by walking the captured depth
// level-by-level (domain.WalkBook). The DOWN token book is usually not
// captured independently; its levels are derived from the complementary
// UP book at 1−price and walked the same way.

// entryLevels returns the ask levels consumed when buying the side,
// best first. ok is false when no usable book exists.
func entryLevels(side domain.TradeSide, up domain.OrderBook, upOK bool, down domain.OrderBook, downOK bool) ([]domain.BookLevel, bool) {
	switch side {
	case domain.SideUp:
		if !upOK || len(up.Asks) == 0 {
			return nil, false
		}
		return up.SortedAsks(), true
	case domain.SideDown:
		if downOK && len(down.Asks) > 0 {
			return down.SortedAsks(), true
		}
		if !upOK || len(up.Bids) == 0 {
			return nil, false
		}
		return domain.DerivedDownAsks(up.SortedBids()), true
	}
	return nil, false
}

// exitLevels returns the bid levels consumed when selling the side.
func exitLevels(side domain.TradeSide, up domain.OrderBook, upOK bool, down domain.OrderBook, downOK bool) ([]domain.BookLevel, bool) {
	switch side {
	case domain.SideUp:
		if !upOK || len(up.Bids) == 0 {
			return nil, false
		}
		return up.SortedBids(), true
	case domain.SideDown:
		if downOK && len(down.Bids) > 0 {
			return down.SortedBids(), true
		}
		if !upOK || len(up.Asks) == 0 {
			return nil, false
		}
		return domain.DerivedDownBids(up.SortedAsks()), true
	}
	return nil, false
}

// simulateEntry sizes the order in USD at the best available level and
// walks the depth. Returns false when there is no book to fill against.
func simulateEntry(side domain.TradeSide, usd float64, up domain.OrderBook, upOK bool, down domain.OrderBook, downOK bool) (domain.FillResult, bool) {
	levels, ok := entryLevels(side, up, upOK, down, downOK)
	if !ok || len(levels) == 0 || usd <= 0 {
		return domain.FillResult{}, false
	}
	best := levels[0].Price
	if best <= 0 {
		return domain.FillResult{}, false
	}
	shares := usd / best
	return domain.WalkBook(levels, shares), true
}

// simulateExit sells the given shares into the bid depth.
func simulateExit(side domain.TradeSide, shares float64, up domain.OrderBook, upOK bool, down domain.OrderBook, downOK bool) (domain.FillResult, bool) {
	levels, ok := exitLevels(side, up, upOK, down, downOK)
	if !ok || len(levels) == 0 {
		return domain.FillResult{}, false
	}
	return domain.WalkBook(levels, shares), true
}

// sideMark returns the current mark (mid) of the side's token, deriving
// the DOWN mark as 1−upMid when the DOWN book is missing.
func sideMark(side domain.TradeSide, up domain.OrderBook, upOK bool, down domain.OrderBook, downOK bool) (float64, bool) {
	switch side {
	case domain.SideUp:
		if !upOK {
			return 0, false
		}
		mid := up.Midpoint()
		return mid, mid > 0
	case domain.SideDown:
		if downOK {
			if mid := down.Midpoint(); mid > 0 {
				return mid, true
			}
		}
		if !upOK {
			return 0, false
		}
		mid := up.Midpoint()
		if mid <= 0 || mid >= 1 {
			return 0, false
		}
		return 1 - mid, true
	}
	return 0, false
}
