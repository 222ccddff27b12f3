package notify

import (
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/careflow/patientqueue/internal/api"
	apperrors "github.com/careflow/patientqueue/internal/errors"
	"github.com/careflow/patientqueue/internal/logging"
	"github.com/careflow/patientqueue/internal/models"
)

// ConnState is the push client's connection state. Transitions are driven
// only by open/close/error events and online/offline signals.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateBackoff
)

// String returns the state name for logs.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	}
	return "unknown"
}

// PushConfig holds the push client settings.
type PushConfig struct {
	// URL is the WebSocket endpoint; user_id and token are appended as
	// query parameters.
	URL string

	// Credentials identify this client to the push server.
	Credentials api.Credentials

	// ReconnectInterval is the base delay between reconnect attempts.
	ReconnectInterval time.Duration

	// MaxReconnectAttempts bounds consecutive failed attempts before the
	// client gives up until the next online transition.
	MaxReconnectAttempts int
}

// pushMessage is the inbound frame shape. Type discriminates handling;
// only "notification" is recognized.
type pushMessage struct {
	Type             string                 `json:"type"`
	Title            string                 `json:"title"`
	Message          string                 `json:"message"`
	NotificationType string                 `json:"notification_type"`
	Data             map[string]interface{} `json:"data"`
}

// PushClient maintains a WebSocket connection to the notification server,
// reconnecting with linear backoff, and appends inbound notifications to
// the local feed.
type PushClient struct {
	cfg    PushConfig
	feed   *Feed
	dialer *websocket.Dialer

	mu         sync.Mutex
	state      ConnState
	attempt    int
	conn       *websocket.Conn
	retryTimer *time.Timer
	closed     bool
}

// NewPushClient creates a push client that appends notifications to feed.
func NewPushClient(cfg PushConfig, feed *Feed) *PushClient {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 3 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}

	return &PushClient{
		cfg:    cfg,
		feed:   feed,
		dialer: websocket.DefaultDialer,
		state:  StateDisconnected,
	}
}

// Connect starts the connection attempt. It returns immediately; progress
// is observable through State and the feed.
func (c *PushClient) Connect() {
	c.mu.Lock()
	if c.closed || c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	c.stopRetryTimerLocked()
	c.state = StateConnecting
	c.mu.Unlock()

	go c.dial()
}

// Close tears the connection down and stops all reconnection.
func (c *PushClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopRetryTimerLocked()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

// State returns the current connection state.
func (c *PushClient) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the consecutive failed reconnect attempts so far.
func (c *PushClient) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Send writes an arbitrary JSON frame to the server.
func (c *PushClient) Send(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return apperrors.New(apperrors.ErrSocketClosed, "push connection is not open")
	}
	return conn.WriteJSON(v)
}

// HandleOnline short-circuits backoff: the attempt counter resets and, if
// the client is not connected, it retries immediately.
func (c *PushClient) HandleOnline() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.attempt = 0
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	c.stopRetryTimerLocked()
	c.state = StateConnecting
	c.mu.Unlock()

	logging.Info("online transition, reconnecting push client", nil)
	go c.dial()
}

// HandleOffline is a no-op; the socket closes on its own and the close
// handler drives the state machine.
func (c *PushClient) HandleOffline() {
	logging.Debug("offline transition, awaiting socket close", nil)
}

// backoffDelay returns the reconnect delay for the given attempt number
// (1-based): interval x min(attempt, 3).
func (c *PushClient) backoffDelay(attempt int) time.Duration {
	factor := attempt
	if factor > 3 {
		factor = 3
	}
	return c.cfg.ReconnectInterval * time.Duration(factor)
}

// connectURL builds the endpoint URL with user id and auth token.
func (c *PushClient) connectURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("user_id", c.cfg.Credentials.UserID)
	q.Set("token", c.cfg.Credentials.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// dial performs one connection attempt and, on success, starts the read
// loop.
func (c *PushClient) dial() {
	endpoint, err := c.connectURL()
	if err != nil {
		logging.ErrorWithCode("invalid push endpoint", string(apperrors.ErrSocketConnect), err, nil)
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}

	conn, _, err := c.dialer.Dial(endpoint, nil)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		c.mu.Unlock()
		logging.Warn("push connection attempt failed", map[string]interface{}{
			"error": err.Error(),
		})
		c.scheduleReconnect()
		return
	}

	c.conn = conn
	c.state = StateConnected
	c.attempt = 0
	c.mu.Unlock()

	logging.Info("push connection established", nil)
	go c.readLoop(conn)
}

// readLoop consumes inbound frames until the connection drops.
func (c *PushClient) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.onDisconnect(conn, err)
			return
		}
		c.handleMessage(data)
	}
}

// handleMessage parses one inbound frame. Notification frames feed the
// local list; anything else is logged only.
func (c *PushClient) handleMessage(data []byte) {
	var msg pushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logging.Warn("invalid push frame", map[string]interface{}{"error": err.Error()})
		return
	}

	if msg.Type != "notification" {
		logging.Debug("unrecognized push frame", map[string]interface{}{"type": msg.Type})
		return
	}

	ntype := models.NotificationType(msg.NotificationType)
	c.feed.Add(msg.Title, msg.Message, ntype)
}

// onDisconnect drives the state machine after a read failure or close.
func (c *PushClient) onDisconnect(conn *websocket.Conn, err error) {
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	if c.closed {
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		logging.Info("push connection closed normally", nil)
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}

	logging.Warn("push connection lost", map[string]interface{}{"error": err.Error()})
	c.scheduleReconnect()
}

// scheduleReconnect arms the backoff timer for the next attempt, or gives
// up after the configured maximum and surfaces a terminal notification.
func (c *PushClient) scheduleReconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.attempt++
	if c.attempt > c.cfg.MaxReconnectAttempts {
		c.state = StateDisconnected
		attempts := c.attempt - 1
		c.mu.Unlock()

		logging.ErrorWithCode("push reconnection exhausted", string(apperrors.ErrSocketGaveUp), nil,
			map[string]interface{}{"attempts": attempts})
		c.feed.Add("Connection failed",
			"Real-time notifications are unavailable. They will resume when the connection recovers.",
			models.NotificationError)
		return
	}

	delay := c.backoffDelay(c.attempt)
	c.state = StateBackoff
	c.stopRetryTimerLocked()
	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.closed || c.state != StateBackoff {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.mu.Unlock()
		c.dial()
	})
	attempt := c.attempt
	c.mu.Unlock()

	logging.Info("push reconnect scheduled", map[string]interface{}{
		"attempt": attempt,
		"delay":   delay.String(),
	})
}

// stopRetryTimerLocked cancels a pending backoff timer. Callers hold mu.
func (c *PushClient) stopRetryTimerLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}
