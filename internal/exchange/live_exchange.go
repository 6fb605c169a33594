package exchange

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"weex-grid-bot-go/internal/models"
)

const apiCodeOK = "00000"

// LiveExchange talks to the real exchange REST API.
type LiveExchange struct {
	apiKey     string
	secretKey  string
	passphrase string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewLiveExchange builds a REST client. Credentials may be empty for
// public-only access (ticker, contract info).
func NewLiveExchange(apiKey, secretKey, passphrase, baseURL string, logger *zap.Logger) *LiveExchange {
	return &LiveExchange{
		apiKey:     apiKey,
		secretKey:  secretKey,
		passphrase: passphrase,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// apiResponse is the envelope every endpoint answers with.
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// doRequest sends one API call and unwraps the response envelope. Signed
// requests carry the HMAC headers the private endpoints require.
func (e *LiveExchange) doRequest(method, endpoint string, query url.Values, body interface{}, signed bool) (json.RawMessage, error) {
	requestPath := endpoint
	if len(query) > 0 {
		requestPath = endpoint + "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	req, err := http.NewRequest(method, e.baseURL+requestPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		if e.apiKey == "" || e.secretKey == "" {
			return nil, fmt.Errorf("endpoint %s requires API credentials", endpoint)
		}
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		req.Header.Set("ACCESS-KEY", e.apiKey)
		req.Header.Set("ACCESS-SIGN", e.sign(timestamp, method, requestPath, payload))
		req.Header.Set("ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("ACCESS-PASSPHRASE", e.passphrase)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	if envelope.Code != "" && envelope.Code != apiCodeOK {
		return nil, &models.APIError{Code: envelope.Code, Msg: envelope.Msg}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed, status %d: %s", resp.StatusCode, string(raw))
	}

	return envelope.Data, nil
}

// sign computes base64(HMAC-SHA256(timestamp + method + requestPath + body)).
func (e *LiveExchange) sign(timestamp, method, requestPath string, body []byte) string {
	h := hmac.New(sha256.New, []byte(e.secretKey))
	h.Write([]byte(timestamp))
	h.Write([]byte(method))
	h.Write([]byte(requestPath))
	h.Write(body)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (e *LiveExchange) GetTicker(symbol string) (*models.Ticker, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	data, err := e.doRequest("GET", "/capi/v2/market/ticker", query, nil, false)
	if err != nil {
		return nil, err
	}

	var ticker models.Ticker
	if err := json.Unmarshal(data, &ticker); err != nil {
		return nil, fmt.Errorf("parse ticker: %w", err)
	}
	return &ticker, nil
}

func (e *LiveExchange) GetContract(symbol string) (*models.Contract, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	data, err := e.doRequest("GET", "/capi/v2/market/contracts", query, nil, false)
	if err != nil {
		return nil, err
	}

	// The endpoint answers with a list even when filtered by symbol.
	var contracts []models.Contract
	if err := json.Unmarshal(data, &contracts); err != nil {
		return nil, fmt.Errorf("parse contracts: %w", err)
	}
	for i := range contracts {
		if contracts[i].Symbol == symbol {
			return &contracts[i], nil
		}
	}
	return nil, fmt.Errorf("no contract info for %s", symbol)
}

func (e *LiveExchange) PlaceOrder(req *models.PlaceOrderRequest) (*models.PlaceOrderResponse, error) {
	data, err := e.doRequest("POST", "/capi/v2/order/placeOrder", nil, req, true)
	if err != nil {
		return nil, err
	}

	var resp models.PlaceOrderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse place order response: %w", err)
	}
	return &resp, nil
}

func (e *LiveExchange) CancelOrder(orderID string) error {
	body := map[string]string{"orderId": orderID}
	_, err := e.doRequest("POST", "/capi/v2/order/cancel_order", nil, body, true)
	return err
}

func (e *LiveExchange) CancelAllOrders(symbol string) error {
	body := map[string]string{"symbol": symbol, "cancelOrderType": "normal"}
	_, err := e.doRequest("POST", "/capi/v2/order/cancel_all", nil, body, true)
	return err
}

func (e *LiveExchange) CloseAllPositions(symbol string) error {
	body := map[string]string{"symbol": symbol}
	_, err := e.doRequest("POST", "/capi/v2/order/close_positions", nil, body, true)
	return err
}

func (e *LiveExchange) GetOrderDetail(orderID string) (*models.OrderDetail, error) {
	query := url.Values{}
	query.Set("orderId", orderID)
	data, err := e.doRequest("GET", "/capi/v2/order/detail", query, nil, true)
	if err != nil {
		return nil, err
	}

	var detail models.OrderDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, fmt.Errorf("parse order detail: %w", err)
	}
	return &detail, nil
}

func (e *LiveExchange) GetPositions(symbol string) ([]models.Position, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	data, err := e.doRequest("GET", "/capi/v2/account/position/singlePosition", query, nil, true)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Position []models.Position `json:"position"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse positions: %w", err)
	}
	return wrapper.Position, nil
}
