// Package ha publishes hub state to Home Assistant over its WebSocket API.
// The hub only calls services (input_boolean mirrors of entity states); it
// never reads Home Assistant state back.
package ha

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

// HAClient defines the interface for Home Assistant WebSocket client
type HAClient interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	CallService(ctx context.Context, domain, service string, data map[string]any) error
	SetInputBoolean(ctx context.Context, name string, value bool) error
}

// Client implements HAClient interface
type Client struct {
	url    string
	token  string
	logger *zap.Logger

	conn      *websocket.Conn
	connected bool
	connMu    sync.RWMutex
	writeMu   sync.Mutex // Protects websocket writes

	msgID   int
	msgIDMu sync.Mutex

	pending   map[int]chan Message
	pendingMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	reconnect bool
}

// NewClient creates a new Home Assistant WebSocket client
func NewClient(url, token string, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:       url,
		token:     token,
		logger:    logger.Named("ha"),
		pending:   make(map[int]chan Message),
		ctx:       ctx,
		cancel:    cancel,
		reconnect: true,
	}
}

// Connect dials Home Assistant and runs the auth handshake
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.connected {
		return fmt.Errorf("already connected")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	if err := authenticate(conn, c.token); err != nil {
		conn.Close()
		return err
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.conn = conn
	c.connected = true
	c.reconnect = true
	c.logger.Info("Connected to Home Assistant", zap.String("url", c.url))

	go c.receiveMessages(c.ctx, conn)
	return nil
}

func authenticate(conn *websocket.Conn, token string) error {
	var authRequired Message
	if err := conn.ReadJSON(&authRequired); err != nil {
		return fmt.Errorf("failed to read auth_required: %w", err)
	}
	if authRequired.Type != "auth_required" {
		return fmt.Errorf("expected auth_required, got %s", authRequired.Type)
	}

	if err := conn.WriteJSON(AuthMessage{Type: "auth", AccessToken: token}); err != nil {
		return fmt.Errorf("failed to send auth: %w", err)
	}

	var authResponse Message
	if err := conn.ReadJSON(&authResponse); err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}

	switch authResponse.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return fmt.Errorf("authentication failed: invalid token")
	default:
		return fmt.Errorf("expected auth_ok, got %s", authResponse.Type)
	}
}

// Disconnect closes the WebSocket connection and stops reconnecting
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.reconnect = false
	c.cancel()

	if !c.connected {
		return nil
	}
	c.connected = false

	if c.conn != nil {
		c.writeMu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.conn.Close()
		c.conn = nil
	}

	c.logger.Info("Disconnected from Home Assistant")
	return nil
}

// IsConnected returns true if client is connected
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

func (c *Client) nextMsgID() int {
	c.msgIDMu.Lock()
	defer c.msgIDMu.Unlock()
	c.msgID++
	return c.msgID
}

// send writes req and waits for the result with the same id
func (c *Client) send(ctx context.Context, req *CallServiceRequest) (*Message, error) {
	c.connMu.RLock()
	conn, connected, clientCtx := c.conn, c.connected, c.ctx
	c.connMu.RUnlock()
	if !connected {
		return nil, fmt.Errorf("not connected")
	}

	respChan := make(chan Message, 1)
	c.pendingMu.Lock()
	c.pending[req.ID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.ID)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()

	select {
	case resp := <-respChan:
		if resp.Success != nil && !*resp.Success {
			if resp.Error != nil {
				return nil, fmt.Errorf("HA error: %s - %s", resp.Error.Code, resp.Error.Message)
			}
			return nil, fmt.Errorf("request failed")
		}
		return &resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("timeout waiting for response")
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-clientCtx.Done():
		return nil, fmt.Errorf("client disconnected")
	}
}

// receiveMessages routes results to their waiting callers until the connection drops
func (c *Client) receiveMessages(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			c.logger.Error("Failed to read message", zap.Error(err))
			c.handleDisconnect()
			return
		}

		if msg.ID == 0 {
			continue
		}

		c.pendingMu.Lock()
		if ch, ok := c.pending[msg.ID]; ok {
			select {
			case ch <- msg:
			default:
				c.logger.Warn("Response channel full", zap.Int("msg_id", msg.ID))
			}
		}
		c.pendingMu.Unlock()
	}
}

func (c *Client) handleDisconnect() {
	c.connMu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	reconnect := c.reconnect
	ctx := c.ctx
	c.connMu.Unlock()

	c.logger.Warn("Connection lost")

	if reconnect {
		go c.attemptReconnect(ctx)
	}
}

// attemptReconnect tries to reconnect with exponential backoff
func (c *Client) attemptReconnect(ctx context.Context) {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Attempting to reconnect...")

		if err := c.Connect(ctx); err != nil {
			c.logger.Error("Reconnection failed", zap.Error(err))
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		c.logger.Info("Reconnected successfully")
		return
	}
}

// CallService calls a Home Assistant service
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	_, err := c.send(ctx, &CallServiceRequest{
		ID:          c.nextMsgID(),
		Type:        "call_service",
		Domain:      domain,
		Service:     service,
		ServiceData: data,
	})
	return err
}

// SetInputBoolean turns input_boolean.<name> on or off
func (c *Client) SetInputBoolean(ctx context.Context, name string, value bool) error {
	return setInputBoolean(ctx, c, name, value)
}

func setInputBoolean(ctx context.Context, c HAClient, name string, value bool) error {
	service := "turn_off"
	if value {
		service = "turn_on"
	}

	return c.CallService(ctx, "input_boolean", service, map[string]any{
		"entity_id": fmt.Sprintf("input_boolean.%s", name),
	})
}
