package models

import (
	"encoding/json"
	"fmt"
)

// Direction is the single trading direction a grid instance manages.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Valid reports whether the direction is one of the two supported values.
func (d Direction) Valid() bool {
	return d == Long || d == Short
}

// Margin modes as the exchange encodes them.
const (
	MarginCross    = 1
	MarginIsolated = 3
)

// Order statuses as delivered by the trade endpoints and the order stream.
const (
	StatusLive            = "live"
	StatusOpen            = "open"
	StatusPartiallyFilled = "partially_filled"
	StatusFilled          = "filled"
	StatusCanceled        = "canceled"
	StatusExpired         = "expired"
	StatusRejected        = "rejected"
)

// IsResting reports whether an order with this status is still working on the
// book (fully or partially unfilled).
func IsResting(status string) bool {
	return status == StatusLive || status == StatusOpen || status == StatusPartiallyFilled
}

// IsTerminalFailure reports whether the order ended without filling.
func IsTerminalFailure(status string) bool {
	return status == StatusCanceled || status == StatusExpired || status == StatusRejected
}

// Config holds all runtime parameters for one strategy instance.
type Config struct {
	Symbol         string    `json:"symbol"`
	Direction      Direction `json:"direction"`
	GridCount      int       `json:"grid_count"`
	SizePerGrid    float64   `json:"size_per_grid"`
	PriceRange     float64   `json:"price_range_percent"` // fraction, e.g. 0.03 for 3%
	StopLossAmount float64   `json:"stop_loss_amount"`    // 0 disables the stop-loss
	MarginMode     int       `json:"margin_mode"`

	APIBaseURL string `json:"api_base_url"`
	WSURL      string `json:"ws_url"`

	StatePath string `json:"state_path"` // JSON state file (default backend)
	DBPath    string `json:"db_path"`    // when set, Badger replaces the file backend

	HealthCheckIntervalSec int `json:"health_check_interval_sec"`

	LogConfig LogConfig `json:"log"`
}

// Validate checks the strategy parameters. A failure here is fatal to startup.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if !c.Direction.Valid() {
		return &ValidationError{Field: "direction", Reason: fmt.Sprintf("must be %q or %q, got %q", Long, Short, c.Direction)}
	}
	if c.GridCount < 2 {
		return &ValidationError{Field: "grid_count", Reason: "must be at least 2"}
	}
	if c.SizePerGrid <= 0 {
		return &ValidationError{Field: "size_per_grid", Reason: "must be positive"}
	}
	if c.PriceRange <= 0 || c.PriceRange > 1 {
		return &ValidationError{Field: "price_range_percent", Reason: "must be in (0, 1]"}
	}
	if c.MarginMode != MarginCross && c.MarginMode != MarginIsolated {
		return &ValidationError{Field: "margin_mode", Reason: "must be 1 (cross) or 3 (isolated)"}
	}
	return nil
}

// LogConfig mirrors the logger setup options.
type LogConfig struct {
	Level      string `json:"level"`
	Output     string `json:"output"` // "console", "file", "both"
	File       string `json:"file"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

// ValidationError reports bad strategy configuration.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

// APIError is an error payload returned by the exchange REST surface.
type APIError struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange error: code=%s msg=%s", e.Code, e.Msg)
}

// GatewayErrorKind classifies order-gateway failures.
type GatewayErrorKind string

const (
	GatewayNetwork    GatewayErrorKind = "network"
	GatewayAuth       GatewayErrorKind = "auth"
	GatewayValidation GatewayErrorKind = "validation"
	GatewayExchange   GatewayErrorKind = "exchange"
)

// GatewayError wraps a failed gateway call. Callers log it and treat the
// operation as not having happened.
type GatewayError struct {
	Kind GatewayErrorKind
	Op   string
	Err  error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Ticker is the market ticker response. Numeric fields arrive as strings.
type Ticker struct {
	Symbol string `json:"symbol"`
	Last   string `json:"last"`
	BestB  string `json:"best_bid"`
	BestA  string `json:"best_ask"`
	Ts     int64  `json:"timestamp"`
}

// Contract holds trading rules for a single symbol.
type Contract struct {
	Symbol      string `json:"symbol"`
	TickSize    string `json:"tick_size"`
	SizeStep    string `json:"size_increment"`
	MinSize     string `json:"min_size"`
	PricePlaces int    `json:"price_places"`
}

// PlaceOrderRequest carries everything the trade endpoint needs for one order.
type PlaceOrderRequest struct {
	Symbol     string `json:"symbol"`
	ClientOID  string `json:"client_oid"`
	Size       string `json:"size"`
	OrderKind  string `json:"order_type"`  // "0" limit
	PriceMode  string `json:"match_price"` // "0" limit price, "1" market
	Price      string `json:"price"`
	Side       string `json:"type"` // 1 open long, 2 open short, 3 close long, 4 close short
	MarginMode int    `json:"margin_mode"`
}

// PlaceOrderResponse is the trade endpoint acknowledgement.
type PlaceOrderResponse struct {
	OrderID   string `json:"order_id"`
	ClientOID string `json:"client_oid"`
}

// OrderDetail is the single-order query response.
type OrderDetail struct {
	OrderID    string `json:"orderId"`
	ClientOID  string `json:"clientOid"`
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	Price      string `json:"price"`
	PriceAvg   string `json:"priceAvg"`
	Size       string `json:"size"`
	FilledQty  string `json:"filledQty"`
	CreateTime int64  `json:"createTime"`
	UpdateTime int64  `json:"updateTime"`
}

// Position is one entry of the position query response.
type Position struct {
	Symbol        string `json:"symbol"`
	HoldSide      string `json:"holdSide"`
	Size          string `json:"size"`
	AvgOpenPrice  string `json:"averageOpenPrice"`
	UnrealizedPnl string `json:"unrealizePnl"`
	MarginMode    string `json:"marginMode"`
	UpdateTime    int64  `json:"utime"`
}

// StreamMessage is the raw envelope every feed payload arrives in.
type StreamMessage struct {
	Channel string          `json:"channel"`
	Symbol  string          `json:"symbol,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// TickerEvent is the decoded ticker stream payload.
type TickerEvent struct {
	Symbol string `json:"symbol"`
	Last   string `json:"last"`
	Ts     int64  `json:"timestamp"`
}

// OrderEvent is one per-order update from the private order stream. It is a
// single-order delta, not a snapshot.
type OrderEvent struct {
	OrderID      string `json:"orderId"`
	ClientOID    string `json:"clientOid"`
	Symbol       string `json:"symbol"`
	Status       string `json:"status"`
	Price        string `json:"price"`
	PriceAvg     string `json:"priceAvg"`
	Size         string `json:"size"`
	CreateTime   int64  `json:"createTime"`
	TotalProfits string `json:"totalProfits"` // realized PnL booked by this fill
}

// PositionEvent is one per-position update from the private position stream.
type PositionEvent struct {
	Symbol        string `json:"symbol"`
	HoldSide      string `json:"holdSide"`
	Size          string `json:"size"`
	UnrealizedPnl string `json:"unrealizePnl"`
	Ts            int64  `json:"timestamp"`
}
