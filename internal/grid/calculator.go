// Package grid computes price ladders for the strategy engine. It is pure:
// no state, no I/O, no logging.
package grid

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"weex-grid-bot-go/internal/models"
)

// ComputeGrid derives the grid bounds and level prices from the current
// market price. Bounds are currentPrice*(1∓rangeFraction), each snapped down
// to the tick size. Levels are spaced by equal percentage steps between the
// bounds; candidates that land within tickSize/2 of an already accepted price
// are dropped, so the result may hold fewer than count prices. The list is
// ascending for long and descending for short.
func ComputeGrid(currentPrice float64, direction models.Direction, count int, rangeFraction, tickSize float64) (lower, upper float64, prices []float64, err error) {
	if !direction.Valid() {
		return 0, 0, nil, &models.ValidationError{Field: "direction", Reason: "must be long or short"}
	}

	lower = SnapToTick(currentPrice*(1-rangeFraction), tickSize)
	upper = SnapToTick(currentPrice*(1+rangeFraction), tickSize)

	prices = percentageLadder(lower, upper, count, tickSize)

	if direction == models.Short {
		sort.Sort(sort.Reverse(sort.Float64Slice(prices)))
	} else {
		sort.Float64s(prices)
	}

	return lower, upper, prices, nil
}

// percentageLadder spreads count prices between the bounds with a constant
// percentage step relative to the lower bound.
func percentageLadder(lower, upper float64, count int, tickSize float64) []float64 {
	if count < 2 {
		return []float64{lower}
	}

	totalChange := (upper - lower) / lower
	step := totalChange / float64(count-1)

	tolerance := tickSize / 2
	prices := make([]float64, 0, count)
	for i := 0; i < count; i++ {
		candidate := SnapToTick(lower*(1+float64(i)*step), tickSize)

		duplicate := false
		for _, p := range prices {
			if math.Abs(candidate-p) < tolerance {
				duplicate = true
				break
			}
		}
		if !duplicate {
			prices = append(prices, candidate)
		}
	}
	return prices
}

// ShouldRebuild reports whether the price has left the grid's range. Prices
// exactly on a bound do not trigger a rebuild.
func ShouldRebuild(currentPrice, upper, lower float64) bool {
	return currentPrice > upper || currentPrice < lower
}

// SnapToTick floors the price to the nearest tick multiple, then rounds away
// the float error at the tick's implied decimal precision.
func SnapToTick(price, tickSize float64) float64 {
	snapped := math.Floor(price/tickSize) * tickSize
	factor := math.Pow(10, float64(tickDecimals(tickSize)))
	return math.Round(snapped*factor) / factor
}

// tickDecimals is the number of decimal places in the tick size's shortest
// representation; 0 for tick sizes of 1 and above.
func tickDecimals(tickSize float64) int {
	if tickSize >= 1 {
		return 0
	}
	s := strconv.FormatFloat(tickSize, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// NextTarget finds the close price for a position opened at filledPrice: the
// smallest grid price strictly above it for long, the largest strictly below
// for short. ok is false when no qualifying price exists, in which case the
// level stays in holding with no close order.
func NextTarget(filledPrice float64, prices []float64, direction models.Direction) (target float64, ok bool) {
	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)

	if direction == models.Long {
		for _, p := range sorted {
			if p > filledPrice {
				return p, true
			}
		}
		return 0, false
	}

	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i] < filledPrice {
			return sorted[i], true
		}
	}
	return 0, false
}
