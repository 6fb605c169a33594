package exchange

import "weex-grid-bot-go/internal/models"

// Exchange is the trade/account/market query surface the strategy consumes.
// The engine only ever talks to this interface, which keeps the REST wire
// protocol swappable and the engine testable.
type Exchange interface {
	GetTicker(symbol string) (*models.Ticker, error)
	GetContract(symbol string) (*models.Contract, error)

	PlaceOrder(req *models.PlaceOrderRequest) (*models.PlaceOrderResponse, error)
	CancelOrder(orderID string) error
	CancelAllOrders(symbol string) error
	CloseAllPositions(symbol string) error

	GetOrderDetail(orderID string) (*models.OrderDetail, error)
	GetPositions(symbol string) ([]models.Position, error)
}
