package engine

import (
	"time"

	"go.uber.org/zap"

	"weex-grid-bot-go/internal/grid"
	"weex-grid-bot-go/internal/models"
)

// handleTicker updates the tracked price and rebuilds the ladder when the
// market walks strictly outside the grid bounds.
func (e *Engine) handleTicker(ev models.TickerEvent) {
	price := parsePrice(ev.Last)
	if price <= 0 {
		return
	}
	e.state.CurrentPrice = price

	if grid.ShouldRebuild(price, e.state.UpperBound, e.state.LowerBound) {
		e.logger.Info("price left grid range, rebuilding",
			zap.Float64("price", price),
			zap.Float64("lower", e.state.LowerBound),
			zap.Float64("upper", e.state.UpperBound))
		e.rebuild(price)
	}
}

// rebuild recenters the ladder around the current price. Levels that hold a
// position keep it: their close targets claim matching rungs of the new grid,
// and any holder whose price falls outside the new ladder is retained as an
// extra level until its close fills.
func (e *Engine) rebuild(price float64) {
	for _, lvl := range e.state.GridLevels {
		if lvl.State != models.Empty && lvl.State != models.Opening {
			continue
		}
		if lvl.OpenOrderID != "" {
			e.gateway.Cancel(lvl.OpenOrderID)
			lvl.OpenOrderID = ""
		}
		lvl.State = models.Empty
	}

	lower, upper, prices, err := grid.ComputeGrid(price, e.cfg.Direction, e.cfg.GridCount, e.cfg.PriceRange, e.tickSize)
	if err != nil {
		e.logger.Error("grid recomputation failed", zap.Error(err))
		return
	}

	// Close targets of live positions own their rung: drop new prices that
	// would collide with a pending close.
	owed := make([]float64, 0)
	for _, lvl := range e.state.GridLevels {
		if lvl.HoldsPosition() && lvl.CloseTargetPrice > 0 {
			owed = append(owed, lvl.CloseTargetPrice)
		}
	}
	filtered := make([]float64, 0, len(prices))
	for _, p := range prices {
		collides := false
		for _, t := range owed {
			if diff := p - t; diff < e.tickSize/2 && diff > -e.tickSize/2 {
				collides = true
				break
			}
		}
		if !collides {
			filtered = append(filtered, p)
		}
	}

	existing := make(map[float64]*models.GridLevel, len(e.state.GridLevels))
	for _, lvl := range e.state.GridLevels {
		existing[lvl.Price] = lvl
	}

	kept := make(map[float64]bool, len(filtered))
	levels := make([]*models.GridLevel, 0, len(filtered))
	for _, p := range filtered {
		kept[p] = true
		if lvl, ok := existing[p]; ok {
			levels = append(levels, lvl)
		} else {
			levels = append(levels, models.NewGridLevel(p, e.cfg.SizePerGrid, e.cfg.Direction))
		}
	}
	for _, lvl := range e.state.GridLevels {
		if lvl.HoldsPosition() && !kept[lvl.Price] {
			levels = append(levels, lvl)
		}
	}

	e.state.GridLevels = levels
	e.state.LowerBound = lower
	e.state.UpperBound = upper

	for _, lvl := range e.state.GridLevels {
		if lvl.State != models.Empty {
			continue
		}
		if err := e.gateway.PlaceOpen(lvl); err != nil {
			e.logger.Error("open order failed during rebuild",
				zap.Float64("price", lvl.Price), zap.Error(err))
		}
	}

	e.persist()
	e.logger.Info("grid rebuilt",
		zap.Float64("lower", lower), zap.Float64("upper", upper),
		zap.Int("levels", len(e.state.GridLevels)))
}

// handleOrder routes a private order update to the level that owns the order
// id. Updates that match no level are ignored.
func (e *Engine) handleOrder(ev models.OrderEvent) {
	if ev.OrderID == "" {
		return
	}
	for _, lvl := range e.state.GridLevels {
		switch {
		case lvl.State == models.Opening && lvl.OpenOrderID == ev.OrderID:
			e.onOpenOrderUpdate(lvl, ev)
		case lvl.State == models.Closing && lvl.CloseOrderID == ev.OrderID:
			e.onCloseOrderUpdate(lvl, ev)
		default:
			continue
		}
		e.persist()
		return
	}
}

// onOpenOrderUpdate lands a filled open in HOLDING before attempting the
// close, so a failed close placement still leaves the position tracked.
func (e *Engine) onOpenOrderUpdate(lvl *models.GridLevel, ev models.OrderEvent) {
	switch {
	case ev.Status == models.StatusFilled:
		filled := parsePrice(ev.PriceAvg)
		if filled <= 0 {
			filled = parsePrice(ev.Price)
		}
		if filled <= 0 {
			filled = lvl.Price
		}
		lvl.FilledPrice = filled
		lvl.FilledTime = ev.CreateTime
		if lvl.FilledTime == 0 {
			lvl.FilledTime = time.Now().UnixMilli()
		}
		lvl.OpenOrderID = ""
		lvl.State = models.Holding
		e.logger.Info("open order filled",
			zap.Float64("level", lvl.Price), zap.Float64("filled", filled))

		e.placeClose(lvl)

	case models.IsTerminalFailure(ev.Status):
		e.logger.Warn("open order failed",
			zap.Float64("level", lvl.Price), zap.String("status", ev.Status))
		lvl.OpenOrderID = ""
		lvl.State = models.Empty
	}
}

// onCloseOrderUpdate completes a round trip: credit the realized profit,
// reset the level, and rearm it at its original price.
func (e *Engine) onCloseOrderUpdate(lvl *models.GridLevel, ev models.OrderEvent) {
	switch {
	case ev.Status == models.StatusFilled:
		profit := parsePrice(ev.TotalProfits)
		lvl.RealizedPnL += profit
		e.state.RealizedPnL += profit
		lvl.CloseOrderID = ""
		lvl.State = models.Empty
		lvl.ClearFill()
		e.logger.Info("close order filled",
			zap.Float64("level", lvl.Price),
			zap.Float64("profit", profit),
			zap.Float64("total_pnl", e.state.RealizedPnL))

		if err := e.gateway.PlaceOpen(lvl); err != nil {
			e.logger.Error("rearm open order failed",
				zap.Float64("level", lvl.Price), zap.Error(err))
		}

	case models.IsTerminalFailure(ev.Status):
		e.logger.Warn("close order failed, position still held",
			zap.Float64("level", lvl.Price), zap.String("status", ev.Status))
		lvl.CloseOrderID = ""
		lvl.State = models.Holding
	}
}

// placeClose picks the next ladder rung past the fill and requests the close.
// The level stays HOLDING on failure; the health tick retries it.
func (e *Engine) placeClose(lvl *models.GridLevel) {
	prices := make([]float64, 0, len(e.state.GridLevels))
	for _, l := range e.state.GridLevels {
		prices = append(prices, l.Price)
	}
	target, ok := grid.NextTarget(lvl.FilledPrice, prices, e.cfg.Direction)
	if !ok {
		e.logger.Warn("no close target beyond fill, holding position",
			zap.Float64("filled", lvl.FilledPrice))
		return
	}
	if err := e.gateway.PlaceClose(lvl, target); err != nil {
		e.logger.Error("close order placement failed",
			zap.Float64("level", lvl.Price), zap.Float64("target", target), zap.Error(err))
	}
}

// handlePosition treats any position push as a cue to re-evaluate the
// stop-loss. The event payload itself is advisory; the floating PnL query is
// the source of truth.
func (e *Engine) handlePosition(_ models.PositionEvent) {
	e.checkStopLoss()
}

func (e *Engine) checkStopLoss() {
	if e.state.StopLossTriggered || e.cfg.StopLossAmount <= 0 {
		return
	}
	pnl := e.gateway.FloatingPnL()
	if pnl > -e.cfg.StopLossAmount {
		return
	}
	e.logger.Warn("stop-loss threshold breached",
		zap.Float64("floating_pnl", pnl),
		zap.Float64("threshold", -e.cfg.StopLossAmount))
	e.triggerStopLoss()
}

// triggerStopLoss flattens everything. The triggered flag only flips after
// BOTH the cancel-all and the close-all succeed; a partial failure leaves
// state untouched so the next check retries the full sequence.
func (e *Engine) triggerStopLoss() {
	canceled := e.gateway.CancelAll()
	closed := e.gateway.CloseAllPositions()
	if !canceled || !closed {
		e.logger.Error("stop-loss liquidation incomplete, will retry",
			zap.Bool("canceled", canceled), zap.Bool("closed", closed))
		return
	}

	e.state.StopLossTriggered = true
	e.halted.Store(true)
	for _, lvl := range e.state.GridLevels {
		lvl.State = models.Empty
		lvl.OpenOrderID = ""
		lvl.CloseOrderID = ""
	}
	e.persist()
	e.logger.Warn("stop-loss executed, strategy halted",
		zap.Float64("realized_pnl", e.state.RealizedPnL))
	e.signalStop()
}

// handleHealthTick repairs levels the happy path left behind: HOLDING levels
// without a close order get one, EMPTY levels without an open order get one,
// and the stop-loss is re-evaluated in case position pushes went quiet.
func (e *Engine) handleHealthTick() {
	if e.state.StopLossTriggered {
		return
	}

	repaired := false
	for _, lvl := range e.state.GridLevels {
		switch {
		case lvl.State == models.Holding && lvl.CloseOrderID == "" && lvl.FilledPrice > 0:
			e.placeClose(lvl)
			repaired = repaired || lvl.State == models.Closing
		case lvl.State == models.Empty && lvl.OpenOrderID == "":
			if err := e.gateway.PlaceOpen(lvl); err != nil {
				e.logger.Error("open order retry failed",
					zap.Float64("level", lvl.Price), zap.Error(err))
			} else {
				repaired = true
			}
		}
	}
	if repaired {
		e.persist()
	}

	e.checkStopLoss()
}
