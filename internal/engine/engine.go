// Package engine drives the per-level order state machines for one
// single-direction grid strategy instance.
package engine

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"weex-grid-bot-go/internal/exchange"
	"weex-grid-bot-go/internal/feed"
	"weex-grid-bot-go/internal/gateway"
	"weex-grid-bot-go/internal/grid"
	"weex-grid-bot-go/internal/models"
	"weex-grid-bot-go/internal/persistence"
)

// defaultTickSize is the conservative fallback when contract info is
// unavailable at startup.
const defaultTickSize = 0.01

// defaultHealthInterval backs the health tick when the configuration leaves
// the interval unset. Zero would make time.NewTicker panic in the loop.
const defaultHealthInterval = 30 * time.Second

type eventKind int

const (
	evTicker eventKind = iota
	evOrder
	evPosition
)

type event struct {
	kind     eventKind
	ticker   models.TickerEvent
	order    models.OrderEvent
	position models.PositionEvent
}

// Engine owns the strategy state. Every mutation happens on the single
// consumer goroutine fed by the event channel; feed callbacks only enqueue.
// This serialization is a hard precondition: the order handler scans and
// mutates the level collection without locking.
type Engine struct {
	cfg     *models.Config
	ex      exchange.Exchange
	gateway *gateway.Gateway
	feed    *feed.Adapter
	repo    persistence.StateRepository
	logger  *zap.Logger

	state          *models.StrategyState
	tickSize       float64
	healthInterval time.Duration

	running  atomic.Bool
	halted   atomic.Bool
	events   chan event
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu sync.Mutex // guards snapshot access to state from outside the loop
}

// New validates the configuration and builds an engine. A ValidationError
// here is fatal to startup.
func New(cfg *models.Config, ex exchange.Exchange, gw *gateway.Gateway, fd *feed.Adapter, repo persistence.StateRepository, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	interval := time.Duration(cfg.HealthCheckIntervalSec) * time.Second
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &Engine{
		cfg:            cfg,
		ex:             ex,
		gateway:        gw,
		feed:           fd,
		repo:           repo,
		logger:         logger,
		tickSize:       defaultTickSize,
		healthInterval: interval,
		events:         make(chan event, 1024),
		stopChan:       make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

// Start restores or initializes the grid, subscribes to the feed, and runs
// the event loop. It fails when no price is obtainable or when any initial
// open order cannot be placed.
func (e *Engine) Start() error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("engine already running")
	}

	e.fetchTickSize()

	if err := e.restoreOrInitialize(); err != nil {
		e.running.Store(false)
		return fmt.Errorf("strategy initialization failed: %w", err)
	}

	if err := e.subscribe(); err != nil {
		e.running.Store(false)
		return fmt.Errorf("feed subscription failed: %w", err)
	}

	go e.run()

	e.logger.Info("grid strategy started",
		zap.String("symbol", e.cfg.Symbol),
		zap.String("direction", string(e.cfg.Direction)),
		zap.Float64("price", e.state.CurrentPrice),
		zap.Float64("lower", e.state.LowerBound),
		zap.Float64("upper", e.state.UpperBound),
		zap.Int("levels", len(e.state.GridLevels)))
	return nil
}

// Stop is cooperative: it flips the running flag, closes the feed, and
// writes a final state save. In-flight REST calls are not aborted.
func (e *Engine) Stop() {
	e.signalStop()
	<-e.done

	if err := e.feed.Close(); err != nil {
		e.logger.Warn("feed close failed", zap.Error(err))
	}
	e.persist()
	e.logSummary()
	e.logger.Info("grid strategy stopped")
}

// Done closes when the event loop has exited, either after Stop or after a
// completed stop-loss halted the strategy.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Halted reports whether the stop-loss flushed the strategy. It reads an
// atomic mirror of the state flag, so it is safe to call at any time.
func (e *Engine) Halted() bool {
	return e.halted.Load()
}

// Snapshot returns a deep copy of the strategy state. The loop goroutine
// mutates state fields without holding mu, so a snapshot taken while the
// loop is running may straddle a mutation; call it after Stop returns or
// Done closes for a consistent view.
func (e *Engine) Snapshot() *models.StrategyState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

func (e *Engine) signalStop() {
	e.stopOnce.Do(func() {
		e.running.Store(false)
		close(e.stopChan)
	})
}

// fetchTickSize caches the symbol's tick size, keeping the conservative
// default when the contract query fails.
func (e *Engine) fetchTickSize() {
	contract, err := e.ex.GetContract(e.cfg.Symbol)
	if err != nil {
		e.logger.Warn("contract info unavailable, using default tick size",
			zap.Float64("tick_size", defaultTickSize), zap.Error(err))
		return
	}
	tick, err := strconv.ParseFloat(contract.TickSize, 64)
	if err != nil || tick <= 0 {
		e.logger.Warn("unparseable tick size, using default",
			zap.String("value", contract.TickSize))
		return
	}
	e.tickSize = tick
	e.logger.Info("fetched tick size", zap.String("symbol", e.cfg.Symbol), zap.Float64("tick_size", tick))
}

func (e *Engine) restoreOrInitialize() error {
	stored, err := e.repo.Load()
	if err != nil {
		e.logger.Error("state load failed, starting fresh", zap.Error(err))
		stored = nil
	}
	if stored != nil {
		return e.restore(stored)
	}
	return e.initializeNew()
}

// restore adopts persisted state and verifies every level that claims a
// resting order against the live order status. Stale levels are forcibly
// reset: OPENING falls back to EMPTY, CLOSING to HOLDING.
func (e *Engine) restore(stored *models.StrategyState) error {
	e.logger.Info("restoring strategy from persisted state",
		zap.Float64("price", stored.CurrentPrice),
		zap.Float64("realized_pnl", stored.RealizedPnL),
		zap.Int("levels", len(stored.GridLevels)))

	e.setState(stored)

	modified := false
	for _, lvl := range e.state.GridLevels {
		switch {
		case lvl.State == models.Opening && lvl.OpenOrderID != "":
			status, err := e.gateway.OrderStatus(lvl.OpenOrderID)
			if err != nil || !models.IsResting(status) {
				e.logger.Warn("restored open order no longer resting, resetting level",
					zap.Float64("price", lvl.Price), zap.String("status", status), zap.Error(err))
				lvl.State = models.Empty
				lvl.OpenOrderID = ""
				modified = true
			}
		case lvl.State == models.Closing && lvl.CloseOrderID != "":
			status, err := e.gateway.OrderStatus(lvl.CloseOrderID)
			if err != nil || !models.IsResting(status) {
				e.logger.Warn("restored close order no longer resting, resetting level",
					zap.Float64("price", lvl.Price), zap.String("status", status), zap.Error(err))
				lvl.State = models.Holding
				lvl.CloseOrderID = ""
				modified = true
			}
		}
	}
	if modified {
		e.persist()
	}
	return nil
}

// initializeNew builds a fresh grid around the current market price and
// places the initial open order on every level. Startup fails unless all of
// them place.
func (e *Engine) initializeNew() error {
	ticker, err := e.ex.GetTicker(e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("fetch ticker: %w", err)
	}
	price, err := strconv.ParseFloat(ticker.Last, 64)
	if err != nil || price <= 0 {
		return fmt.Errorf("no usable market price in ticker (last=%q)", ticker.Last)
	}

	lower, upper, prices, err := grid.ComputeGrid(price, e.cfg.Direction, e.cfg.GridCount, e.cfg.PriceRange, e.tickSize)
	if err != nil {
		return err
	}

	levels := make([]*models.GridLevel, 0, len(prices))
	for _, p := range prices {
		levels = append(levels, models.NewGridLevel(p, e.cfg.SizePerGrid, e.cfg.Direction))
	}

	e.setState(&models.StrategyState{
		Version:        models.StateVersion,
		Symbol:         e.cfg.Symbol,
		Direction:      e.cfg.Direction,
		GridCount:      e.cfg.GridCount,
		SizePerGrid:    e.cfg.SizePerGrid,
		PriceRange:     e.cfg.PriceRange,
		StopLossAmount: e.cfg.StopLossAmount,
		MarginMode:     e.cfg.MarginMode,
		CurrentPrice:   price,
		LowerBound:     lower,
		UpperBound:     upper,
		GridLevels:     levels,
		StartTime:      time.Now().UnixMilli(),
	})

	placed := 0
	for _, lvl := range e.state.GridLevels {
		if err := e.gateway.PlaceOpen(lvl); err != nil {
			e.logger.Error("initial open order failed", zap.Float64("price", lvl.Price), zap.Error(err))
			continue
		}
		placed++
	}
	if placed != len(e.state.GridLevels) {
		return fmt.Errorf("only %d/%d initial orders placed", placed, len(e.state.GridLevels))
	}

	e.persist()
	e.logger.Info("initialized new grid", zap.Int("levels", len(e.state.GridLevels)),
		zap.Float64("lower", lower), zap.Float64("upper", upper))
	return nil
}

func (e *Engine) subscribe() error {
	if err := e.feed.Connect(); err != nil {
		return err
	}
	if err := e.feed.SubscribeTicker(e.cfg.Symbol, func(ev models.TickerEvent) {
		e.enqueue(event{kind: evTicker, ticker: ev})
	}); err != nil {
		return err
	}
	if err := e.feed.SubscribeOrders(func(ev models.OrderEvent) {
		e.enqueue(event{kind: evOrder, order: ev})
	}); err != nil {
		return err
	}
	return e.feed.SubscribePositions(func(ev models.PositionEvent) {
		e.enqueue(event{kind: evPosition, position: ev})
	})
}

func (e *Engine) enqueue(ev event) {
	if !e.running.Load() {
		return
	}
	select {
	case e.events <- ev:
	case <-e.stopChan:
	}
}

// run is the single consumer loop. The health tick shares it, so close
// retries and the stop-loss safety net mutate state under the same
// serialization as feed events.
func (e *Engine) run() {
	defer close(e.done)

	healthTicker := time.NewTicker(e.healthInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case ev := <-e.events:
			e.dispatch(ev)
		case <-healthTicker.C:
			e.handleHealthTick()
		}
	}
}

func (e *Engine) dispatch(ev event) {
	switch ev.kind {
	case evTicker:
		e.handleTicker(ev.ticker)
	case evOrder:
		e.handleOrder(ev.order)
	case evPosition:
		e.handlePosition(ev.position)
	}
}

func (e *Engine) setState(s *models.StrategyState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.halted.Store(s.StopLossTriggered)
}

// persist writes through the repository. Failures are logged and never halt
// the strategy; the in-memory state stays authoritative.
func (e *Engine) persist() {
	e.mu.Lock()
	e.state.LastUpdate = time.Now().UnixMilli()
	snapshot := e.state.Clone()
	e.mu.Unlock()
	if err := e.repo.Save(snapshot); err != nil {
		e.logger.Error("state save failed", zap.Error(err))
	}
}

func (e *Engine) logSummary() {
	runtime := time.Duration(time.Now().UnixMilli()-e.state.StartTime) * time.Millisecond

	counts := map[models.GridState]int{}
	for _, lvl := range e.state.GridLevels {
		counts[lvl.State]++
	}

	e.logger.Info("strategy summary",
		zap.String("symbol", e.state.Symbol),
		zap.String("direction", string(e.state.Direction)),
		zap.Duration("runtime", runtime),
		zap.Float64("realized_pnl", e.state.RealizedPnL),
		zap.Bool("stop_loss_triggered", e.state.StopLossTriggered),
		zap.Int("empty", counts[models.Empty]),
		zap.Int("opening", counts[models.Opening]),
		zap.Int("holding", counts[models.Holding]),
		zap.Int("closing", counts[models.Closing]))
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
