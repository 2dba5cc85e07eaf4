// Package depth implements the volume-weighted average price primitive
// shared by both scanners. All functions are pure and deterministic.
package depth

import (
	"math"

	"github.com/arbwatch/arbwatch/internal/models"
)

// VWAP sweeps levels in order until targetNotional (quote units) is
// consumed and returns the effective fill price. When the side cannot
// absorb the full notional the result covers all available liquidity with
// FullyFilled false.
func VWAP(levels []models.DepthLevel, targetNotional float64) models.VWAPResult {
	if len(levels) == 0 || targetNotional <= 0 {
		return models.VWAPResult{}
	}

	var cumNotional, cumAmount float64
	for i, lv := range levels {
		levelNotional := lv.Price * lv.Amount
		if cumNotional+levelNotional >= targetNotional {
			remaining := targetNotional - cumNotional
			partialAmount := remaining / lv.Price
			totalAmount := cumAmount + partialAmount
			weighted := cumNotional + lv.Price*partialAmount
			return models.VWAPResult{
				Price:       weighted / totalAmount,
				Volume:      totalAmount,
				LevelsUsed:  i + 1,
				FullyFilled: true,
			}
		}
		cumNotional += levelNotional
		cumAmount += lv.Amount
	}

	if cumAmount == 0 {
		return models.VWAPResult{}
	}
	return models.VWAPResult{
		Price:       cumNotional / cumAmount,
		Volume:      cumAmount,
		LevelsUsed:  len(levels),
		FullyFilled: false,
	}
}

// BuyVWAP computes the effective price of buying targetNotional against
// the asks (sorted ascending).
func BuyVWAP(asks []models.DepthLevel, targetNotional float64) models.VWAPResult {
	return VWAP(asks, targetNotional)
}

// SellVWAP computes the effective price of selling targetNotional against
// the bids (sorted descending).
func SellVWAP(bids []models.DepthLevel, targetNotional float64) models.VWAPResult {
	return VWAP(bids, targetNotional)
}

// SpendQuote simulates spending quoteAmount against the asks (sorted
// ascending) and returns the base quantity received. filled is false when
// the side cannot absorb the full amount.
func SpendQuote(asks []models.DepthLevel, quoteAmount float64) (baseOut float64, levelsUsed int, filled bool) {
	r := VWAP(asks, quoteAmount)
	return r.Volume, r.LevelsUsed, r.FullyFilled
}

// SpendBase simulates selling baseAmount against the bids (sorted
// descending) and returns the quote proceeds. The amount converts to a
// quote notional at the best bid; the bids must hold that much resting
// liquidity for filled to be true.
func SpendBase(bids []models.DepthLevel, baseAmount float64) (quoteOut float64, levelsUsed int, filled bool) {
	if len(bids) == 0 || baseAmount <= 0 {
		return 0, 0, false
	}
	r := VWAP(bids, bids[0].Price*baseAmount)
	return r.Price * r.Volume, r.LevelsUsed, r.FullyFilled
}

// AfterFees applies the taker rate to a fill price. Buys pay more, sells
// receive less. Unfilled results yield 0.
func AfterFees(r models.VWAPResult, feeRate float64, side models.Side) float64 {
	if !r.FullyFilled || r.Price <= 0 {
		return 0
	}
	if side == models.SideBuy {
		return r.Price * (1 + feeRate)
	}
	return r.Price * (1 - feeRate)
}

// SufficientDepth reports whether the first maxLevels levels carry at
// least minNotional of resting liquidity.
func SufficientDepth(levels []models.DepthLevel, minNotional float64, maxLevels int) bool {
	if len(levels) == 0 {
		return false
	}
	if maxLevels > 0 && len(levels) > maxLevels {
		levels = levels[:maxLevels]
	}
	var total float64
	for _, lv := range levels {
		total += lv.Price * lv.Amount
	}
	return total >= minNotional
}

// Slippage estimates the cost of filling targetNotional versus the best
// level, in basis points. Unfillable targets return +Inf.
func Slippage(levels []models.DepthLevel, targetNotional float64) float64 {
	if len(levels) == 0 {
		return math.Inf(1)
	}
	best := levels[0].Price
	r := VWAP(levels, targetNotional)
	if !r.FullyFilled || r.Price <= 0 {
		return math.Inf(1)
	}
	return math.Abs(r.Price-best) / best * 10000
}
