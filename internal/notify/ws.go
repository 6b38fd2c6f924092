package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ariefcatur/go-foodcourt-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1024
)

// Client frames.
const (
	MsgJoin   = "join"
	MsgLeave  = "leave"
	MsgJoined = "joined"
	MsgLeft   = "left"
	MsgError  = "error"
)

type ControlMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Gateway upgrades HTTP requests to websocket subscribers.
type Gateway struct {
	Registry   *Registry
	Log        *slog.Logger
	SendBuffer int
	Upgrader   websocket.Upgrader
}

func NewGateway(reg *Registry, log *slog.Logger, sendBuffer int) *Gateway {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Gateway{
		Registry:   reg,
		Log:        log,
		SendBuffer: sendBuffer,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and runs the connection until it closes.
// actor is the identity the transport attached to the handshake.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, actor orders.Actor) {
	ws, err := g.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.Log.WarnContext(r.Context(), "websocket upgrade", "err", err)
		return
	}
	c := &Conn{
		id:    uuid.NewString(),
		actor: actor,
		ws:    ws,
		send:  make(chan []byte, g.SendBuffer),
		gw:    g,
	}
	g.Log.Info("websocket connected", "conn_id", c.id, "user_id", actor.UserID, "role", actor.Role)
	go c.writePump()
	c.readPump()
}

// Conn is a websocket Subscriber.
type Conn struct {
	id    string
	actor orders.Actor
	ws    *websocket.Conn
	gw    *Gateway

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Conn) control(m ControlMessage) {
	b, _ := json.Marshal(m)
	c.Send(b)
}

func (c *Conn) readPump() {
	defer func() {
		c.gw.Registry.Leave(c.id)
		c.shutdown()
		c.gw.Log.Info("websocket disconnected", "conn_id", c.id)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.gw.Log.Warn("websocket read", "conn_id", c.id, "err", err)
			}
			return
		}

		var msg ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.control(ControlMessage{Type: MsgError, Error: "invalid message"})
			continue
		}
		switch msg.Type {
		case MsgJoin:
			if !orders.CanSubscribe(c.actor, msg.Channel) {
				c.control(ControlMessage{Type: MsgError, Channel: msg.Channel, Error: "forbidden"})
				continue
			}
			c.gw.Registry.Join(c, msg.Channel)
			c.control(ControlMessage{Type: MsgJoined, Channel: msg.Channel})
		case MsgLeave:
			c.gw.Registry.Leave(c.id)
			c.control(ControlMessage{Type: MsgLeft})
		default:
			c.control(ControlMessage{Type: MsgError, Error: "unknown message type"})
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Connection is shutting down.
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
