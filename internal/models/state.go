package models

// StateVersion tags the persisted state document for future migrations.
const StateVersion = "1.0"

// GridState is the lifecycle state of a single grid level.
type GridState string

const (
	// Empty: no order, no position.
	Empty GridState = "empty"
	// Opening: an open order is resting on the book.
	Opening GridState = "opening"
	// Holding: the position is filled and no close order exists yet.
	Holding GridState = "holding"
	// Closing: a close order is resting on the book.
	Closing GridState = "closing"
)

// GridLevel is one rung of the price ladder with its own order lifecycle.
// At most one of OpenOrderID/CloseOrderID is set at a time, matching State.
type GridLevel struct {
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Direction Direction `json:"direction"`
	State     GridState `json:"state"`

	OpenOrderID  string `json:"open_order_id,omitempty"`
	CloseOrderID string `json:"close_order_id,omitempty"`

	FilledPrice      float64 `json:"filled_price,omitempty"`
	FilledTime       int64   `json:"filled_time,omitempty"` // unix millis
	CloseTargetPrice float64 `json:"close_target_price,omitempty"`

	RealizedPnL float64 `json:"realized_pnl"`
}

// NewGridLevel returns a fresh EMPTY level at the given price.
func NewGridLevel(price, size float64, direction Direction) *GridLevel {
	return &GridLevel{
		Price:     price,
		Size:      size,
		Direction: direction,
		State:     Empty,
	}
}

// ClearFill resets the fill bookkeeping after a position is fully closed.
func (g *GridLevel) ClearFill() {
	g.FilledPrice = 0
	g.FilledTime = 0
	g.CloseTargetPrice = 0
}

// HoldsPosition reports whether the level still owes the market a close.
func (g *GridLevel) HoldsPosition() bool {
	return g.State == Holding || g.State == Closing
}

// StrategyState is the full persisted record of one strategy instance.
// It is owned and mutated exclusively by the engine's event loop; the
// persistence layer only serializes copies of it.
type StrategyState struct {
	Version        string    `json:"version"`
	Symbol         string    `json:"symbol"`
	Direction      Direction `json:"direction"`
	GridCount      int       `json:"grid_count"`
	SizePerGrid    float64   `json:"size_per_grid"`
	PriceRange     float64   `json:"price_range_percent"`
	StopLossAmount float64   `json:"stop_loss_amount"`
	MarginMode     int       `json:"margin_mode"`

	CurrentPrice float64 `json:"current_price"`
	UpperBound   float64 `json:"upper_bound"`
	LowerBound   float64 `json:"lower_bound"`

	GridLevels  []*GridLevel `json:"grid_levels"`
	RealizedPnL float64      `json:"realized_pnl"`

	StartTime         int64 `json:"start_time"`  // unix millis
	LastUpdate        int64 `json:"last_update"` // unix millis
	StopLossTriggered bool  `json:"stop_loss_triggered"`
}

// Clone returns a deep copy safe to hand to the persistence layer while the
// event loop keeps mutating the original.
func (s *StrategyState) Clone() *StrategyState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.GridLevels = make([]*GridLevel, len(s.GridLevels))
	for i, lvl := range s.GridLevels {
		if lvl != nil {
			levelCopy := *lvl
			cp.GridLevels[i] = &levelCopy
		}
	}
	return &cp
}
