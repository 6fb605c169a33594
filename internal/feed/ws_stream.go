package feed

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"weex-grid-bot-go/internal/models"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	reconnectDelay = 5 * time.Second
)

// wsStream is the live websocket implementation of Stream. It maintains the
// connection, authenticates when credentials are present, and redials with
// resubscription whenever a read fails. All handlers run on the single read
// goroutine.
type wsStream struct {
	url        string
	apiKey     string
	secretKey  string
	passphrase string
	logger     *zap.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	handlers      map[string]func(models.StreamMessage)
	subscriptions []subscribeArg

	stopChan chan struct{}
	started  bool
}

type subscribeArg struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol,omitempty"`
}

type wsRequest struct {
	Op   string         `json:"op"`
	Args []subscribeArg `json:"args,omitempty"`
}

// NewWSStream builds a live stream. Empty credentials give a public-only
// connection; order/position subscriptions will then be rejected by the
// adapter.
func NewWSStream(url, apiKey, secretKey, passphrase string, logger *zap.Logger) Stream {
	return &wsStream{
		url:        url,
		apiKey:     apiKey,
		secretKey:  secretKey,
		passphrase: passphrase,
		logger:     logger,
		handlers:   map[string]func(models.StreamMessage){},
		stopChan:   make(chan struct{}),
	}
}

func (s *wsStream) IsPrivate() bool {
	return s.apiKey != "" && s.secretKey != ""
}

func (s *wsStream) Connect() error {
	if err := s.dial(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.started {
		s.started = true
		go s.run()
	}
	s.mu.Unlock()
	return nil
}

func (s *wsStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return s.conn.Close()
	}
	return nil
}

func (s *wsStream) Subscribe(channel, symbol string, handler func(models.StreamMessage)) error {
	arg := subscribeArg{Channel: channel, Symbol: symbol}

	s.mu.Lock()
	s.handlers[handlerKey(channel, symbol)] = handler
	s.subscriptions = append(s.subscriptions, arg)
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("stream not connected")
	}
	return s.writeJSON(wsRequest{Op: "subscribe", Args: []subscribeArg{arg}})
}

func handlerKey(channel, symbol string) string {
	if symbol == "" {
		return channel
	}
	return channel + ":" + symbol
}

// dial establishes the connection and replays login plus any existing
// subscriptions.
func (s *wsStream) dial() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	subs := make([]subscribeArg, len(s.subscriptions))
	copy(subs, s.subscriptions)
	s.mu.Unlock()

	if s.IsPrivate() {
		if err := s.login(); err != nil {
			conn.Close()
			return err
		}
	}
	if len(subs) > 0 {
		if err := s.writeJSON(wsRequest{Op: "subscribe", Args: subs}); err != nil {
			conn.Close()
			return err
		}
	}
	return nil
}

// login authenticates the connection before any private subscription.
func (s *wsStream) login() error {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	h := hmac.New(sha256.New, []byte(s.secretKey))
	h.Write([]byte(timestamp + "GET" + "/user/verify"))
	sign := base64.StdEncoding.EncodeToString(h.Sum(nil))

	login := struct {
		Op   string `json:"op"`
		Args []struct {
			APIKey     string `json:"apiKey"`
			Passphrase string `json:"passphrase"`
			Timestamp  string `json:"timestamp"`
			Sign       string `json:"sign"`
		} `json:"args"`
	}{Op: "login"}
	login.Args = append(login.Args, struct {
		APIKey     string `json:"apiKey"`
		Passphrase string `json:"passphrase"`
		Timestamp  string `json:"timestamp"`
		Sign       string `json:"sign"`
	}{s.apiKey, s.passphrase, timestamp, sign})

	return s.writeJSON(login)
}

func (s *wsStream) writeJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("stream not connected")
	}
	return s.conn.WriteJSON(v)
}

// run keeps the connection alive, redialing until Close.
func (s *wsStream) run() {
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		if err := s.readLoop(); err != nil {
			s.logger.Warn("websocket read failed, reconnecting", zap.Error(err))
		}

		select {
		case <-s.stopChan:
			return
		case <-time.After(reconnectDelay):
		}

		if err := s.dial(); err != nil {
			s.logger.Warn("websocket reconnect failed", zap.Error(err))
		}
	}
}

// readLoop pumps messages off one connection until it breaks. Pings keep the
// read deadline moving; a missed pong window fails the read and triggers a
// redial in run.
func (s *wsStream) readLoop() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("stream not connected")
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()
	pingStop := make(chan struct{})
	defer close(pingStop)

	go func() {
		for {
			select {
			case <-pingTicker.C:
				// WriteControl is safe alongside WriteJSON on another goroutine.
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-pingStop:
				return
			case <-s.stopChan:
				return
			}
		}
	}()

	for {
		select {
		case <-s.stopChan:
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg models.StreamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Debug("ignoring non-envelope frame", zap.ByteString("frame", raw))
			continue
		}
		if msg.Channel == "" {
			continue // ack or pong frame
		}

		s.mu.Lock()
		handler := s.handlers[handlerKey(msg.Channel, msg.Symbol)]
		if handler == nil {
			handler = s.handlers[msg.Channel]
		}
		s.mu.Unlock()

		if handler != nil {
			handler(msg)
		}
	}
}
