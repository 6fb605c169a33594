// Package feed delivers market and account events to the engine. The Adapter
// is a thin subscription façade over a Stream; it decodes each payload's data
// envelope once, so consumers only ever see typed events.
package feed

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"weex-grid-bot-go/internal/models"
)

// Stream channels.
const (
	ChannelTicker    = "ticker"
	ChannelOrders    = "orders"
	ChannelPositions = "positions"
)

// Stream is the external streaming interface the adapter wraps. Handlers for
// all subscriptions are invoked from a single reader goroutine, so delivery
// is serialized; consumers rely on this and must not be called concurrently.
type Stream interface {
	Connect() error
	Close() error

	// IsPrivate reports whether the connection is authenticated. Order and
	// position channels require a private stream.
	IsPrivate() bool

	Subscribe(channel, symbol string, handler func(models.StreamMessage)) error
}

// Adapter wires typed callbacks onto stream channels.
type Adapter struct {
	stream Stream
	logger *zap.Logger
}

func NewAdapter(stream Stream, logger *zap.Logger) *Adapter {
	return &Adapter{stream: stream, logger: logger}
}

func (a *Adapter) Connect() error {
	return a.stream.Connect()
}

func (a *Adapter) Close() error {
	return a.stream.Close()
}

// SubscribeTicker registers a callback for last-price updates.
func (a *Adapter) SubscribeTicker(symbol string, cb func(models.TickerEvent)) error {
	return a.stream.Subscribe(ChannelTicker, symbol, func(msg models.StreamMessage) {
		var event models.TickerEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			a.logger.Warn("dropping malformed ticker payload", zap.Error(err))
			return
		}
		cb(event)
	})
}

// SubscribeOrders registers a callback for per-order updates. Fails fast on
// an unauthenticated stream.
func (a *Adapter) SubscribeOrders(cb func(models.OrderEvent)) error {
	if !a.stream.IsPrivate() {
		return fmt.Errorf("order channel requires an authenticated stream")
	}
	return a.stream.Subscribe(ChannelOrders, "", func(msg models.StreamMessage) {
		var event models.OrderEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			a.logger.Warn("dropping malformed order payload", zap.Error(err))
			return
		}
		if event.OrderID == "" {
			a.logger.Warn("order update without orderId, ignoring")
			return
		}
		cb(event)
	})
}

// SubscribePositions registers a callback for per-position updates. Fails
// fast on an unauthenticated stream.
func (a *Adapter) SubscribePositions(cb func(models.PositionEvent)) error {
	if !a.stream.IsPrivate() {
		return fmt.Errorf("position channel requires an authenticated stream")
	}
	return a.stream.Subscribe(ChannelPositions, "", func(msg models.StreamMessage) {
		var event models.PositionEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			a.logger.Warn("dropping malformed position payload", zap.Error(err))
			return
		}
		cb(event)
	})
}
