// Package scene drives the scene-compositing studio over its WebSocket
// request/response protocol: desired-state enforcement for the clip
// overlay, and a health supervisor that detects and repairs drift.
package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// request/response op codes, bit-compatible with the industry-standard
// compositor protocol v5.
const (
	opRequest  = 6
	opResponse = 7
)

type outgoingFrame struct {
	Op int             `json:"op"`
	D  requestData     `json:"d"`
}

type requestData struct {
	RequestType string          `json:"requestType"`
	RequestID   string          `json:"requestId"`
	RequestData json.RawMessage `json:"requestData,omitempty"`
}

type incomingFrame struct {
	Op int              `json:"op"`
	D  json.RawMessage  `json:"d"`
}

type responseData struct {
	RequestType   string          `json:"requestType"`
	RequestID     string          `json:"requestId"`
	RequestStatus struct {
		Result bool   `json:"result"`
		Code   int    `json:"code"`
		Comment string `json:"comment"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData"`
}

// Client is a connection to the compositor's WebSocket control surface.
// Connect/Disconnect are serialized with connMu since the underlying
// socket is single-writer; pending request correlation is managed by a
// small hub-like goroutine, the same register/lookup/cleanup shape as the
// teacher's websocket.Hub.
type Client struct {
	connMu sync.Mutex
	conn   *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan responseData

	connected bool
	onEvent   func(name string)
}

// NewClient constructs a disconnected Client. onEvent, if non-nil, is
// called with "Connected", "Disconnected", or "ConfigurationDriftRepaired".
func NewClient(onEvent func(name string)) *Client {
	return &Client{
		pending: make(map[string]chan responseData),
		onEvent: onEvent,
	}
}

// Connect dials the compositor and performs the identify handshake. It is
// idempotent: calling it while already connected is a no-op success.
func (c *Client) Connect(ctx context.Context, host string, port int, password string) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.connected {
		return nil
	}

	addr := fmt.Sprintf("ws://%s:%d", host, port)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("scene: dial compositor: %w", err)
	}

	if err := c.identify(conn, password); err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.connected = true
	go c.readLoop(conn)
	c.emit("Connected")
	return nil
}

// identify performs the hello/identify exchange. Password-based auth
// challenge/response is omitted here since it is orthogonal to the scene
// operations this client exercises; a configured password is sent as a
// plain identify field for compositors running with auth disabled (the
// common local-studio default).
func (c *Client) identify(conn *websocket.Conn, password string) error {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, _, err := conn.ReadMessage() // Hello (op 0)
	if err != nil {
		return fmt.Errorf("scene: read hello: %w", err)
	}
	identify := map[string]any{
		"op": 1,
		"d": map[string]any{
			"rpcVersion": 1,
		},
	}
	if password != "" {
		identify["d"].(map[string]any)["authentication"] = password
	}
	if err := conn.WriteJSON(identify); err != nil {
		return fmt.Errorf("scene: send identify: %w", err)
	}
	_, _, err = conn.ReadMessage() // Identified (op 2)
	if err != nil {
		return fmt.Errorf("scene: read identified: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	return nil
}

// Disconnect closes the connection.
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if !c.connected {
		return nil
	}
	err := c.conn.Close()
	c.connected = false
	c.emit("Disconnected")
	return err
}

// IsConnected reports whether the client believes it has a live socket.
func (c *Client) IsConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connected
}

func (c *Client) emit(name string) {
	if c.onEvent != nil {
		c.onEvent(name)
	}
}

// NotifyDriftRepaired fires the ConfigurationDriftRepaired event. Called by
// the health supervisor after it re-enforces desired state in response to
// detected drift.
func (c *Client) NotifyDriftRepaired() {
	c.emit("ConfigurationDriftRepaired")
}

// readLoop dispatches response frames to their waiting caller by
// requestId, and detects a server-initiated close as a Disconnected event.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connMu.Lock()
			wasConnected := c.connected
			c.connected = false
			c.connMu.Unlock()
			if wasConnected {
				c.emit("Disconnected")
			}
			return
		}
		var frame incomingFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Op != opResponse {
			continue
		}
		var resp responseData
		if err := json.Unmarshal(frame.D, &resp); err != nil {
			continue
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[resp.RequestID]
		if ok {
			delete(c.pending, resp.RequestID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// call issues a request and blocks for its matching response or ctx
// cancellation.
func (c *Client) call(ctx context.Context, requestType string, reqData any) (responseData, error) {
	c.connMu.Lock()
	conn := c.conn
	connected := c.connected
	c.connMu.Unlock()
	if !connected || conn == nil {
		return responseData{}, fmt.Errorf("scene: not connected")
	}

	requestID := uuid.NewString()
	ch := make(chan responseData, 1)
	c.pendingMu.Lock()
	c.pending[requestID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, requestID)
		c.pendingMu.Unlock()
	}()

	var raw json.RawMessage
	if reqData != nil {
		b, err := json.Marshal(reqData)
		if err != nil {
			return responseData{}, fmt.Errorf("scene: marshal request data: %w", err)
		}
		raw = b
	}

	frame := outgoingFrame{Op: opRequest, D: requestData{RequestType: requestType, RequestID: requestID, RequestData: raw}}

	c.connMu.Lock()
	err := conn.WriteJSON(frame)
	c.connMu.Unlock()
	if err != nil {
		return responseData{}, fmt.Errorf("scene: send %s: %w", requestType, err)
	}

	select {
	case resp := <-ch:
		if !resp.RequestStatus.Result {
			return resp, fmt.Errorf("scene: %s failed: %s", requestType, resp.RequestStatus.Comment)
		}
		return resp, nil
	case <-ctx.Done():
		return responseData{}, ctx.Err()
	}
}
