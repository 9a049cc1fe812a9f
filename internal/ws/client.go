package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tableflow/api/internal/auth"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// CloseResync is sent when the hub dropped a slow subscriber. The client
	// must fetch a snapshot and reconnect.
	CloseResync = 4000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (we validate via JWT)
	},
}

// Client represents a single WebSocket connection
type Client struct {
	conn *websocket.Conn
	sub  *Subscription

	// gorilla allows one concurrent writer
	writeMu sync.Mutex
}

func (c *Client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// deliver is the subscription callback.
func (c *Client) deliver(ev Event) {
	message, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := c.write(websocket.TextMessage, message); err != nil {
		// The read pump sees the closed socket and releases the subscription.
		c.conn.Close()
	}
}

// ReadPump waits for the peer to go away. Clients don't send messages, we
// just detect disconnects. Every exit path releases the subscription.
func (c *Client) ReadPump() {
	defer func() {
		c.sub.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			return
		}
	}
}

// WritePump keeps the connection alive with pings and closes it when the
// subscription ends.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.sub.Done():
			code, text := websocket.CloseNormalClosure, ""
			if c.sub.Dropped() {
				code, text = CloseResync, "resync"
			}
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, text)) //nolint:errcheck
			return

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.sub.Close()
				return
			}
		}
	}
}

// ServeWS handles WebSocket requests from clients
// Endpoint: WS /ws/tenants/{tid}?token=JWT
func ServeWS(hub *Hub, jwtSecret string, w http.ResponseWriter, r *http.Request) {
	// 1. Extract token from query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	// 2. Validate JWT
	claims, err := auth.ValidateToken(jwtSecret, tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	// 3. Extract tenant ID from URL
	tenantID, err := uuid.Parse(chi.URLParam(r, "tid"))
	if err != nil {
		http.Error(w, "invalid tenant id", http.StatusBadRequest)
		return
	}

	// 4. Tokens are scoped to one tenant
	if claims.TenantID != tenantID {
		http.Error(w, "tenant access denied", http.StatusForbidden)
		return
	}

	// 5. Upgrade to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	// 6. Subscribe; the first frame is sync.required
	client := &Client{conn: conn}
	client.sub = hub.Subscribe(tenantID, client.deliver)

	// 7. Start pumps in separate goroutines
	go client.WritePump()
	go client.ReadPump()
}
