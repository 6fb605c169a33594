package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"weex-grid-bot-go/internal/models"
)

// fakeStream captures subscriptions and lets tests push raw messages.
type fakeStream struct {
	private  bool
	handlers map[string]func(models.StreamMessage)
}

func newFakeStream(private bool) *fakeStream {
	return &fakeStream{private: private, handlers: map[string]func(models.StreamMessage){}}
}

func (f *fakeStream) Connect() error  { return nil }
func (f *fakeStream) Close() error    { return nil }
func (f *fakeStream) IsPrivate() bool { return f.private }

func (f *fakeStream) Subscribe(channel, symbol string, handler func(models.StreamMessage)) error {
	f.handlers[channel] = handler
	return nil
}

func (f *fakeStream) push(channel string, data string) {
	f.handlers[channel](models.StreamMessage{Channel: channel, Data: json.RawMessage(data)})
}

func TestSubscribeTickerDecodes(t *testing.T) {
	stream := newFakeStream(false)
	adapter := NewAdapter(stream, zap.NewNop())

	var got models.TickerEvent
	require.NoError(t, adapter.SubscribeTicker("cmt_btcusdt", func(ev models.TickerEvent) {
		got = ev
	}))

	stream.push(ChannelTicker, `{"symbol":"cmt_btcusdt","last":"50123.4"}`)
	assert.Equal(t, "50123.4", got.Last)

	// Malformed payloads are dropped, not delivered.
	got = models.TickerEvent{}
	stream.push(ChannelTicker, `{"last":`)
	assert.Empty(t, got.Last)
}

func TestSubscribeOrdersRequiresPrivateStream(t *testing.T) {
	adapter := NewAdapter(newFakeStream(false), zap.NewNop())

	err := adapter.SubscribeOrders(func(models.OrderEvent) {})
	assert.ErrorContains(t, err, "authenticated")

	err = adapter.SubscribePositions(func(models.PositionEvent) {})
	assert.ErrorContains(t, err, "authenticated")
}

func TestSubscribeOrdersDropsEventsWithoutID(t *testing.T) {
	stream := newFakeStream(true)
	adapter := NewAdapter(stream, zap.NewNop())

	var events []models.OrderEvent
	require.NoError(t, adapter.SubscribeOrders(func(ev models.OrderEvent) {
		events = append(events, ev)
	}))

	stream.push(ChannelOrders, `{"orderId":"o-1","status":"filled","totalProfits":"12.5"}`)
	stream.push(ChannelOrders, `{"status":"filled"}`)

	require.Len(t, events, 1)
	assert.Equal(t, "o-1", events[0].OrderID)
	assert.Equal(t, "12.5", events[0].TotalProfits)
}

func TestSubscribePositionsDecodes(t *testing.T) {
	stream := newFakeStream(true)
	adapter := NewAdapter(stream, zap.NewNop())

	var got models.PositionEvent
	require.NoError(t, adapter.SubscribePositions(func(ev models.PositionEvent) {
		got = ev
	}))

	stream.push(ChannelPositions, `{"symbol":"cmt_btcusdt","unrealizePnl":"-42.1"}`)
	assert.Equal(t, "-42.1", got.UnrealizedPnl)
}
