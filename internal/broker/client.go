// Package broker implements the single authenticated session BrokerClient
// (C1) keeps with the broker's streaming API: request/response correlation
// over one websocket, a token-bucket call limiter, and bounded-backoff
// reconnects that re-authorize before replaying subscriptions (spec §4.1).
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Config controls dial targets, timeouts and backoff.
type Config struct {
	WSURL            string
	AppID            string
	RequestTimeout   time.Duration
	ConnectTimeout   time.Duration
	MaxReconnectWait time.Duration
}

// Client is one persistent bidirectional session. All calls are
// request/response, correlated by req_id and multiplexed through a single
// pending-request map, so many concurrent logical callers may each have a
// request in flight; frame writes are serialized by writeMu. Connect returns
// early once a connection exists, but two first Connect calls made at the
// same time are not serialized and may both dial.
type Client struct {
	cfg     Config
	limiter *rate.Limiter

	mu      sync.Mutex
	conn    *websocket.Conn
	token   string
	pending map[string]chan json.RawMessage
	writeMu sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// New builds a disconnected client; call Connect before issuing requests.
func New(cfg Config) *Client {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.MaxReconnectWait == 0 {
		cfg.MaxReconnectWait = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(8), 8), // broker calls per second, bursting to 8
		pending: make(map[string]chan json.RawMessage),
		closeCh: make(chan struct{}),
	}
}

// Connect dials the websocket and starts the read loop. Idempotent: calling
// it again on an already-connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	u, err := url.Parse(c.cfg.WSURL)
	if err != nil {
		return fmt.Errorf("broker: parse ws url: %w", err)
	}
	q := u.Query()
	if c.cfg.AppID != "" {
		q.Set("app_id", c.cfg.AppID)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return &NetError{Err: err}
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Close shuts the session down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// readLoop dispatches every inbound frame to its waiting caller by req_id,
// and reconnects with bounded exponential backoff on read failure.
func (c *Client) readLoop(conn *websocket.Conn) {
	attempt := 0
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}

			log.Printf("[broker] read error: %v, reconnecting", err)
			newConn, reauthErr := c.reconnect(attempt)
			if reauthErr != nil {
				log.Printf("[broker] reconnect failed permanently: %v", reauthErr)
				return
			}
			conn = newConn
			attempt = 0
			continue
		}

		var envelope struct {
			ReqID string `json:"req_id"`
		}
		if err := json.Unmarshal(msg, &envelope); err != nil {
			log.Printf("[broker] malformed frame: %v", err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[envelope.ReqID]
		c.mu.Unlock()
		if !ok {
			continue // unsolicited push (e.g. subscription tick); ignored outside C9's streaming path
		}
		ch <- json.RawMessage(msg)
	}
}

// reconnect retries the dial with exponential backoff capped at
// MaxReconnectWait, then re-authorizes the previous token if one was set.
func (c *Client) reconnect(attempt int) (*websocket.Conn, error) {
	delay := time.Second
	for {
		select {
		case <-c.closeCh:
			return nil, fmt.Errorf("broker: closed during reconnect")
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		u, _ := url.Parse(c.cfg.WSURL)
		q := u.Query()
		if c.cfg.AppID != "" {
			q.Set("app_id", c.cfg.AppID)
		}
		u.RawQuery = q.Encode()

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		cancel()
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			token := c.token
			c.mu.Unlock()
			if token != "" {
				// reconnect runs on the read loop, which must be free to deliver
				// the authorize response, so the request goes out on its own goroutine.
				go func() {
					if _, authErr := c.send(context.Background(), authorizeRequest{Authorize: token}); authErr != nil {
						log.Printf("[broker] re-authorize after reconnect failed: %v", authErr)
					}
				}()
			}
			return conn, nil
		}

		attempt++
		delay *= 2
		if delay > c.cfg.MaxReconnectWait {
			delay = c.cfg.MaxReconnectWait
		}
	}
}

// send issues one request and blocks for the matching response, respecting
// the configured rate limit and request timeout.
func (c *Client) send(ctx context.Context, req any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &NetError{Err: err}
	}

	reqID := uuid.NewString()
	withID, err := injectReqID(req, reqID)
	if err != nil {
		return nil, err
	}

	respCh := make(chan json.RawMessage, 1)
	c.mu.Lock()
	conn := c.conn
	c.pending[reqID] = respCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}()

	if conn == nil {
		return nil, &NetError{Err: fmt.Errorf("not connected")}
	}

	c.writeMu.Lock()
	err = conn.WriteJSON(withID)
	c.writeMu.Unlock()
	if err != nil {
		return nil, &NetError{Err: err}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	select {
	case resp := <-respCh:
		return resp, nil
	case <-timeoutCtx.Done():
		return nil, &NetError{Err: timeoutCtx.Err()}
	}
}

// injectReqID marshals req to a map and stamps req_id, since Go structs
// can't have a field added dynamically.
func injectReqID(req any, reqID string) (map[string]any, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("broker: marshal request: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["req_id"] = reqID
	return m, nil
}
