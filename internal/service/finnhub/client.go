package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"ShortScan/internal/domain/models"
	drepo "ShortScan/internal/domain/repository"
	applogger "ShortScan/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements a MarketStream backed by the Finnhub trade WebSocket.
type Client struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// New creates a new Finnhub MarketStream.
func New(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, l *applogger.Logger) drepo.MarketStream {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            l,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.websocketURL)
	if err != nil {
		return fmt.Errorf("finnhub url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.apiKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("finnhub connected", applogger.String("url", c.websocketURL))
	return nil
}

// Subscribe subscribes to configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("finnhub not connected")
	}
	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.log.Info("finnhub subscribed", applogger.Int("symbols", len(c.symbols)))
	return nil
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// decodeTrades extracts trades from one frame; non-trade frames yield nil.
func decodeTrades(b []byte) []*models.Trade {
	var m fhMessage
	if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
		return nil
	}
	out := make([]*models.Trade, 0, len(m.Data))
	for _, d := range m.Data {
		out = append(out, &models.Trade{Symbol: d.S, Timestamp: d.T, Price: d.P, Volume: d.V})
	}
	return out
}

// Read streams Trade events and errors until ctx is done or the connection fails.
func (c *Client) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	trades := make(chan *models.Trade, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if c.pingInterval > 0 {
		go func() {
			ticker := time.NewTicker(c.pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.mu.Lock()
					if c.conn == conn && conn != nil {
						_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
					}
					c.mu.Unlock()
				}
			}
		}()
	}

	go func() {
		defer close(trades)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("finnhub conn nil")
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("finnhub read: %w", err)
				return
			}
			for _, t := range decodeTrades(b) {
				select {
				case trades <- t:
				case <-ctx.Done():
					return
				default:
					c.log.Warn("finnhub trade dropped", applogger.String("symbol", t.Symbol))
				}
			}
		}
	}()

	return trades, errs
}

// Reconnect closes and reconnects after the configured delay.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
