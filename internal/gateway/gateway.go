// Package gateway translates grid-level intent into exchange order calls.
package gateway

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jxskiss/base62"
	"go.uber.org/zap"

	"weex-grid-bot-go/internal/exchange"
	"weex-grid-bot-go/internal/models"
)

// Exchange side codes: open/close per direction.
var sideCodes = map[models.Direction]struct{ open, close string }{
	models.Long:  {open: "1", close: "3"},
	models.Short: {open: "2", close: "4"},
}

// Gateway issues open/close/cancel requests and position queries for one
// symbol. It mutates the passed grid level only after the exchange confirmed
// the corresponding order, so a failed call leaves the level untouched.
type Gateway struct {
	exchange   exchange.Exchange
	symbol     string
	marginMode int
	logger     *zap.Logger
	now        func() time.Time
}

func New(ex exchange.Exchange, symbol string, marginMode int, logger *zap.Logger) *Gateway {
	return &Gateway{
		exchange:   ex,
		symbol:     symbol,
		marginMode: marginMode,
		logger:     logger,
		now:        time.Now,
	}
}

// PlaceOpen submits the opening limit order for an EMPTY level. On success
// the level transitions to OPENING and carries the exchange order id.
func (g *Gateway) PlaceOpen(level *models.GridLevel) error {
	if level.State != models.Empty {
		return &models.GatewayError{
			Kind: models.GatewayValidation,
			Op:   "place open",
			Err:  fmt.Errorf("level at %v is %s, not empty", level.Price, level.State),
		}
	}

	resp, err := g.exchange.PlaceOrder(&models.PlaceOrderRequest{
		Symbol:     g.symbol,
		ClientOID:  g.ClientOID("open", level.Price),
		Size:       formatFloat(level.Size),
		OrderKind:  "0",
		PriceMode:  "0",
		Price:      formatFloat(level.Price),
		Side:       sideCodes[level.Direction].open,
		MarginMode: g.marginMode,
	})
	if err != nil {
		return g.wrap("place open", err)
	}
	if resp.OrderID == "" {
		return &models.GatewayError{
			Kind: models.GatewayExchange,
			Op:   "place open",
			Err:  errors.New("no order id in response"),
		}
	}

	level.OpenOrderID = resp.OrderID
	level.State = models.Opening
	g.logger.Info("placed open order",
		zap.String("direction", string(level.Direction)),
		zap.Float64("price", level.Price),
		zap.String("order_id", resp.OrderID))
	return nil
}

// PlaceClose submits the closing limit order for a HOLDING level at
// targetPrice. On success the level transitions to CLOSING.
func (g *Gateway) PlaceClose(level *models.GridLevel, targetPrice float64) error {
	if level.State != models.Holding {
		return &models.GatewayError{
			Kind: models.GatewayValidation,
			Op:   "place close",
			Err:  fmt.Errorf("level at %v is %s, not holding", level.Price, level.State),
		}
	}

	resp, err := g.exchange.PlaceOrder(&models.PlaceOrderRequest{
		Symbol:     g.symbol,
		ClientOID:  g.ClientOID("close", targetPrice),
		Size:       formatFloat(level.Size),
		OrderKind:  "0",
		PriceMode:  "0",
		Price:      formatFloat(targetPrice),
		Side:       sideCodes[level.Direction].close,
		MarginMode: g.marginMode,
	})
	if err != nil {
		return g.wrap("place close", err)
	}
	if resp.OrderID == "" {
		return &models.GatewayError{
			Kind: models.GatewayExchange,
			Op:   "place close",
			Err:  errors.New("no order id in response"),
		}
	}

	level.CloseOrderID = resp.OrderID
	level.CloseTargetPrice = targetPrice
	level.State = models.Closing
	g.logger.Info("placed close order",
		zap.String("direction", string(level.Direction)),
		zap.Float64("target", targetPrice),
		zap.Float64("filled", level.FilledPrice),
		zap.String("order_id", resp.OrderID))
	return nil
}

// Cancel is best effort; failures are logged, never raised.
func (g *Gateway) Cancel(orderID string) bool {
	if err := g.exchange.CancelOrder(orderID); err != nil {
		g.logger.Error("cancel order failed", zap.String("order_id", orderID), zap.Error(err))
		return false
	}
	g.logger.Info("canceled order", zap.String("order_id", orderID))
	return true
}

// CancelAll cancels every resting order on the symbol; best effort.
func (g *Gateway) CancelAll() bool {
	if err := g.exchange.CancelAllOrders(g.symbol); err != nil {
		g.logger.Error("cancel all orders failed", zap.Error(err))
		return false
	}
	g.logger.Info("canceled all orders", zap.String("symbol", g.symbol))
	return true
}

// CloseAllPositions flattens every open position on the symbol; best effort.
func (g *Gateway) CloseAllPositions() bool {
	if err := g.exchange.CloseAllPositions(g.symbol); err != nil {
		g.logger.Error("close all positions failed", zap.Error(err))
		return false
	}
	g.logger.Info("closed all positions", zap.String("symbol", g.symbol))
	return true
}

// OrderStatus fetches the live status of one order.
func (g *Gateway) OrderStatus(orderID string) (string, error) {
	detail, err := g.exchange.GetOrderDetail(orderID)
	if err != nil {
		return "", g.wrap("order status", err)
	}
	return detail.Status, nil
}

// FloatingPnL sums unrealized PnL over all open positions for the symbol.
// It returns 0 on any query or parse failure: the value gates the stop-loss
// check, which must never itself crash the event loop.
func (g *Gateway) FloatingPnL() float64 {
	positions, err := g.exchange.GetPositions(g.symbol)
	if err != nil {
		g.logger.Error("position query failed, floating PnL unknown", zap.Error(err))
		return 0
	}

	total := 0.0
	for _, pos := range positions {
		pnl, err := strconv.ParseFloat(pos.UnrealizedPnl, 64)
		if err != nil {
			g.logger.Error("unparseable unrealized PnL", zap.String("value", pos.UnrealizedPnl))
			return 0
		}
		total += pnl
	}
	return total
}

// ClientOID derives a client order id from the order purpose, symbol,
// timestamp, and integer-truncated price. The timestamp is base62-compacted
// to stay within exchange id limits. The engine matches events on exchange
// ids only; this exists for idempotent debugging.
func (g *Gateway) ClientOID(purpose string, price float64) string {
	ts := string(base62.FormatInt(g.now().UnixMilli()))
	return fmt.Sprintf("grid-%s-%s-%s-%d", purpose, strings.ToLower(g.symbol), ts, int64(price))
}

// wrap classifies an exchange error for the caller's log line.
func (g *Gateway) wrap(op string, err error) error {
	kind := models.GatewayNetwork
	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		kind = models.GatewayExchange
	}
	return &models.GatewayError{Kind: kind, Op: op, Err: err}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
