package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"weex-grid-bot-go/internal/models"
)

// fakeExchange records requests and plays back canned responses.
type fakeExchange struct {
	placeReqs []*models.PlaceOrderRequest
	placeResp *models.PlaceOrderResponse
	placeErr  error

	cancelErr    error
	cancelAllErr error
	closeAllErr  error

	detail    *models.OrderDetail
	detailErr error

	positions    []models.Position
	positionsErr error
}

func (f *fakeExchange) GetTicker(symbol string) (*models.Ticker, error) {
	return &models.Ticker{Symbol: symbol, Last: "50000"}, nil
}

func (f *fakeExchange) GetContract(symbol string) (*models.Contract, error) {
	return &models.Contract{Symbol: symbol, TickSize: "0.1"}, nil
}

func (f *fakeExchange) PlaceOrder(req *models.PlaceOrderRequest) (*models.PlaceOrderResponse, error) {
	f.placeReqs = append(f.placeReqs, req)
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	if f.placeResp != nil {
		return f.placeResp, nil
	}
	return &models.PlaceOrderResponse{OrderID: "order-1", ClientOID: req.ClientOID}, nil
}

func (f *fakeExchange) CancelOrder(string) error       { return f.cancelErr }
func (f *fakeExchange) CancelAllOrders(string) error   { return f.cancelAllErr }
func (f *fakeExchange) CloseAllPositions(string) error { return f.closeAllErr }

func (f *fakeExchange) GetOrderDetail(string) (*models.OrderDetail, error) {
	return f.detail, f.detailErr
}

func (f *fakeExchange) GetPositions(string) ([]models.Position, error) {
	return f.positions, f.positionsErr
}

func newTestGateway(fx *fakeExchange) *Gateway {
	return New(fx, "cmt_btcusdt", models.MarginCross, zap.NewNop())
}

func TestPlaceOpenTransitionsLevel(t *testing.T) {
	fx := &fakeExchange{}
	gw := newTestGateway(fx)
	level := models.NewGridLevel(49250, 0.01, models.Long)

	require.NoError(t, gw.PlaceOpen(level))

	assert.Equal(t, models.Opening, level.State)
	assert.Equal(t, "order-1", level.OpenOrderID)

	require.Len(t, fx.placeReqs, 1)
	req := fx.placeReqs[0]
	assert.Equal(t, "1", req.Side, "long open side code")
	assert.Equal(t, "49250", req.Price)
	assert.Equal(t, "0.01", req.Size)
	assert.Equal(t, "0", req.OrderKind)
	assert.Equal(t, "0", req.PriceMode)
	assert.Equal(t, models.MarginCross, req.MarginMode)
}

func TestPlaceOpenShortSideCode(t *testing.T) {
	fx := &fakeExchange{}
	gw := newTestGateway(fx)
	level := models.NewGridLevel(49250, 0.01, models.Short)

	require.NoError(t, gw.PlaceOpen(level))
	assert.Equal(t, "2", fx.placeReqs[0].Side)
}

func TestPlaceOpenRejectsNonEmptyLevel(t *testing.T) {
	fx := &fakeExchange{}
	gw := newTestGateway(fx)
	level := models.NewGridLevel(49250, 0.01, models.Long)
	level.State = models.Holding

	err := gw.PlaceOpen(level)
	var gErr *models.GatewayError
	require.True(t, errors.As(err, &gErr))
	assert.Equal(t, models.GatewayValidation, gErr.Kind)
	assert.Empty(t, fx.placeReqs, "exchange must not be called")
	assert.Equal(t, models.Holding, level.State)
}

func TestPlaceOpenNoOrderIDLeavesLevelUntouched(t *testing.T) {
	fx := &fakeExchange{placeResp: &models.PlaceOrderResponse{}}
	gw := newTestGateway(fx)
	level := models.NewGridLevel(49250, 0.01, models.Long)

	err := gw.PlaceOpen(level)
	var gErr *models.GatewayError
	require.True(t, errors.As(err, &gErr))
	assert.Equal(t, models.GatewayExchange, gErr.Kind)
	assert.Equal(t, models.Empty, level.State)
	assert.Empty(t, level.OpenOrderID)
}

func TestPlaceOpenExchangeErrorClassified(t *testing.T) {
	fx := &fakeExchange{placeErr: &models.APIError{Code: "40015", Msg: "balance insufficient"}}
	gw := newTestGateway(fx)
	level := models.NewGridLevel(49250, 0.01, models.Long)

	err := gw.PlaceOpen(level)
	var gErr *models.GatewayError
	require.True(t, errors.As(err, &gErr))
	assert.Equal(t, models.GatewayExchange, gErr.Kind)
	assert.Equal(t, models.Empty, level.State)
}

func TestPlaceCloseTransitionsLevel(t *testing.T) {
	fx := &fakeExchange{}
	gw := newTestGateway(fx)
	level := models.NewGridLevel(49250, 0.01, models.Long)
	level.State = models.Holding
	level.FilledPrice = 49250

	require.NoError(t, gw.PlaceClose(level, 50000))

	assert.Equal(t, models.Closing, level.State)
	assert.Equal(t, "order-1", level.CloseOrderID)
	assert.Equal(t, 50000.0, level.CloseTargetPrice)
	assert.Equal(t, "3", fx.placeReqs[0].Side, "long close side code")
	assert.Equal(t, "50000", fx.placeReqs[0].Price)
}

func TestPlaceCloseRejectsNonHoldingLevel(t *testing.T) {
	fx := &fakeExchange{}
	gw := newTestGateway(fx)
	level := models.NewGridLevel(49250, 0.01, models.Long)

	err := gw.PlaceClose(level, 50000)
	var gErr *models.GatewayError
	require.True(t, errors.As(err, &gErr))
	assert.Equal(t, models.GatewayValidation, gErr.Kind)
	assert.Empty(t, fx.placeReqs)
}

func TestCancelBestEffort(t *testing.T) {
	assert.True(t, newTestGateway(&fakeExchange{}).Cancel("o-1"))
	assert.False(t, newTestGateway(&fakeExchange{cancelErr: errors.New("timeout")}).Cancel("o-1"))
}

func TestCancelAllAndCloseAll(t *testing.T) {
	fx := &fakeExchange{}
	gw := newTestGateway(fx)
	assert.True(t, gw.CancelAll())
	assert.True(t, gw.CloseAllPositions())

	fx.cancelAllErr = errors.New("timeout")
	fx.closeAllErr = errors.New("timeout")
	assert.False(t, gw.CancelAll())
	assert.False(t, gw.CloseAllPositions())
}

func TestOrderStatus(t *testing.T) {
	fx := &fakeExchange{detail: &models.OrderDetail{OrderID: "o-1", Status: models.StatusPartiallyFilled}}
	gw := newTestGateway(fx)

	status, err := gw.OrderStatus("o-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartiallyFilled, status)

	fx.detail = nil
	fx.detailErr = errors.New("timeout")
	_, err = gw.OrderStatus("o-1")
	assert.Error(t, err)
}

func TestFloatingPnLSumsPositions(t *testing.T) {
	fx := &fakeExchange{positions: []models.Position{
		{UnrealizedPnl: "-12.5"},
		{UnrealizedPnl: "2.25"},
	}}
	assert.InDelta(t, -10.25, newTestGateway(fx).FloatingPnL(), 1e-9)
}

func TestFloatingPnLFailsSafeToZero(t *testing.T) {
	assert.Zero(t, newTestGateway(&fakeExchange{positionsErr: errors.New("timeout")}).FloatingPnL())
	assert.Zero(t, newTestGateway(&fakeExchange{positions: []models.Position{{UnrealizedPnl: "n/a"}}}).FloatingPnL())
	assert.Zero(t, newTestGateway(&fakeExchange{}).FloatingPnL(), "no positions means no floating PnL")
}

func TestClientOIDDeterministic(t *testing.T) {
	gw := newTestGateway(&fakeExchange{})
	fixed := time.UnixMilli(1700000000000)
	gw.now = func() time.Time { return fixed }

	oid := gw.ClientOID("open", 49250.7)
	assert.Equal(t, oid, gw.ClientOID("open", 49250.7))
	assert.Contains(t, oid, "grid-open-cmt_btcusdt-")
	assert.Regexp(t, `-49250$`, oid, "price is integer-truncated")
}
