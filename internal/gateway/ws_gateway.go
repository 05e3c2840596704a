package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/fleet-bridge/internal/models"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// AuthFunc verifies executor agent credentials on upgrade and returns
// the executor id they belong to.
type AuthFunc func(apiKey, apiSecret string) (string, error)

// WSGateway is the websocket hub remote executor agents dial into.
// It implements Gateway: its connection map is the live-connection
// ground truth the monitor loop reconciles against.
type WSGateway struct {
	upgrader     websocket.Upgrader
	authenticate AuthFunc

	conns map[string]*agentConn
	mu    sync.RWMutex

	// OnHeartbeat and OnResponse receive inbound agent frames.
	// OnDisconnect fires once per dropped connection; all remote
	// failure modes (timeouts, malformed frames, vanished peers)
	// surface through it and never through a command-level error.
	OnHeartbeat  func(hb Heartbeat)
	OnResponse   func(executorID string, resp Response)
	OnDisconnect func(executorID string)
}

// agentConn is one live executor agent connection. The send channel is
// never closed; shutdown is signalled through done so a concurrent
// trySend can race a close without panicking.
type agentConn struct {
	executorID string
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

// trySend queues a frame without blocking. It returns false when the
// connection is closing or the buffer is full.
func (ac *agentConn) trySend(data []byte) bool {
	select {
	case <-ac.done:
		return false
	default:
	}
	select {
	case ac.send <- data:
		return true
	case <-ac.done:
		return false
	default:
		return false
	}
}

// NewWSGateway creates a websocket gateway authenticating upgrades
// with the given AuthFunc.
func NewWSGateway(authenticate AuthFunc) *WSGateway {
	return &WSGateway{
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		authenticate: authenticate,
		conns:        make(map[string]*agentConn),
	}
}

// HandleUpgrade upgrades an executor agent's HTTP request to a
// websocket connection. Credentials travel in X-API-KEY/X-API-SECRET.
func (g *WSGateway) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get("X-API-KEY")
	apiSecret := r.Header.Get("X-API-SECRET")
	if apiKey == "" || apiSecret == "" {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}

	executorID, err := g.authenticate(apiKey, apiSecret)
	if err != nil {
		log.Printf("[Gateway] Rejected connection with key %s...: %v", truncateKey(apiKey), err)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] Upgrade failed for executor %s: %v", executorID, err)
		return
	}

	ac := &agentConn{
		executorID: executorID,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}

	g.mu.Lock()
	if old, ok := g.conns[executorID]; ok {
		// A reconnect replaces the stale socket
		old.close()
	}
	g.conns[executorID] = ac
	g.mu.Unlock()

	log.Printf("[Gateway] Executor %s connected", executorID)

	go g.writePump(ac)
	go g.readPump(ac)
}

// ConnectedExecutors returns the ids of all live connections
func (g *WSGateway) ConnectedExecutors() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.conns))
	for id := range g.conns {
		ids = append(ids, id)
	}
	return ids
}

// IsConnected reports whether an executor has a live connection
func (g *WSGateway) IsConnected(executorID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.conns[executorID]
	return ok
}

// SendCommand makes a synchronous best-effort push to one executor.
// It returns false if the executor is not connected or its send
// buffer is full; it never waits for the remote acknowledgment.
func (g *WSGateway) SendCommand(executorID string, cmd *models.TradeCommand) bool {
	g.mu.RLock()
	ac, ok := g.conns[executorID]
	g.mu.RUnlock()
	if !ok {
		return false
	}

	req := Request{
		ID:      cmd.ID,
		Command: string(cmd.Type),
	}
	if cmd.Payload != "" {
		req.Parameters = json.RawMessage(cmd.Payload)
	}

	data, err := json.Marshal(req)
	if err != nil {
		log.Printf("[Gateway] Failed to marshal command %s: %v", cmd.ID, err)
		return false
	}

	if !ac.trySend(data) {
		log.Printf("[Gateway] Direct push dropped for executor %s (closing or buffer full)", executorID)
		return false
	}
	return true
}

// EmergencyStopAll broadcasts a stop frame to every live socket,
// bypassing the delivery queue entirely.
func (g *WSGateway) EmergencyStopAll(reason string) {
	params, _ := json.Marshal(map[string]string{"action": "close_all_positions", "reason": reason})
	data, _ := json.Marshal(Request{
		Command:    WireEmergencyStop,
		Parameters: params,
	})

	g.mu.RLock()
	conns := make([]*agentConn, 0, len(g.conns))
	for _, ac := range g.conns {
		conns = append(conns, ac)
	}
	g.mu.RUnlock()

	for _, ac := range conns {
		if !ac.trySend(data) {
			log.Printf("[Gateway] Emergency stop push dropped for executor %s (closing or buffer full)", ac.executorID)
		}
	}
	log.Printf("[Gateway] Emergency stop broadcast to %d executors: %s", len(conns), reason)
}

// Close tears down every live connection
func (g *WSGateway) Close() {
	g.mu.Lock()
	for _, ac := range g.conns {
		ac.close()
	}
	g.conns = make(map[string]*agentConn)
	g.mu.Unlock()
}

// inboundFrame is the envelope agents push to the platform. Frames
// carrying a status are command responses; frames carrying heartbeat
// fields are heartbeats.
type inboundFrame struct {
	ID      string          `json:"id,omitempty"`
	Status  string          `json:"status,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`

	ExecutorID       string `json:"executorId,omitempty"`
	ActiveStrategies int    `json:"activeStrategies,omitempty"`
	OpenPositions    int    `json:"openPositions,omitempty"`
	Timestamp        int64  `json:"timestamp,omitempty"`
}

func (g *WSGateway) readPump(ac *agentConn) {
	defer g.drop(ac)

	ac.conn.SetReadLimit(maxMessageSize)
	ac.conn.SetReadDeadline(time.Now().Add(pongWait))
	ac.conn.SetPongHandler(func(string) error {
		ac.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := ac.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Gateway] Executor %s read error: %v", ac.executorID, err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Malformed payloads are tolerated; the peer stays connected
			log.Printf("[Gateway] Malformed frame from executor %s: %v", ac.executorID, err)
			continue
		}

		switch {
		case frame.Status != "":
			if g.OnResponse != nil {
				g.OnResponse(ac.executorID, Response{
					ID:      frame.ID,
					Status:  frame.Status,
					Data:    frame.Data,
					Message: frame.Message,
				})
			}
		case frame.Timestamp != 0 || frame.ExecutorID != "":
			if g.OnHeartbeat != nil {
				g.OnHeartbeat(Heartbeat{
					ExecutorID:       ac.executorID,
					Status:           "active",
					ActiveStrategies: frame.ActiveStrategies,
					OpenPositions:    frame.OpenPositions,
					Timestamp:        frame.Timestamp,
				})
			}
		}
	}
}

func (g *WSGateway) writePump(ac *agentConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ac.conn.Close()
	}()

	for {
		select {
		case data := <-ac.send:
			ac.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ac.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ac.done:
			ac.conn.SetWriteDeadline(time.Now().Add(writeWait))
			ac.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			ac.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ac.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drop unregisters a connection and fires the disconnection callback
// exactly once.
func (g *WSGateway) drop(ac *agentConn) {
	g.mu.Lock()
	current, ok := g.conns[ac.executorID]
	if ok && current == ac {
		delete(g.conns, ac.executorID)
	}
	g.mu.Unlock()

	ac.close()

	if ok && current == ac {
		log.Printf("[Gateway] Executor %s disconnected", ac.executorID)
		if g.OnDisconnect != nil {
			g.OnDisconnect(ac.executorID)
		}
	}
}

func (ac *agentConn) close() {
	ac.closeOnce.Do(func() {
		close(ac.done)
		ac.conn.Close()
	})
}

func truncateKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8]
}
