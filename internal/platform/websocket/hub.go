// Package websocket provides the WebSocket transport for the streaming API.
// It owns connection upgrade and the per-connection read/write pumps; message
// semantics live behind the Router interface.
package websocket

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Router consumes inbound frames and connection lifecycle events.
type Router interface {
	HandleMessage(client *Client, data []byte)
	HandleDisconnect(client *Client)
}

// Client represents a single WebSocket connection. Outbound frames go
// through a bounded Send channel; when it is full the frame is dropped for
// this connection only.
type Client struct {
	ID   string
	Send chan []byte

	conn      Conn
	dropped   atomic.Int64
	closeOnce sync.Once
}

// NewClient wraps a connection with a send buffer of the given capacity.
func NewClient(conn Conn, buffer int) *Client {
	return &Client{
		ID:   uuid.New().String(),
		Send: make(chan []byte, buffer),
		conn: conn,
	}
}

// Enqueue offers a frame to the client without blocking. Returns false when
// the buffer is full and the frame was dropped.
func (c *Client) Enqueue(data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Dropped returns how many frames this connection has dropped.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// CloseSend closes the Send channel exactly once, ending the write pump.
func (c *Client) CloseSend() {
	c.closeOnce.Do(func() { close(c.Send) })
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler handles HTTP-to-WebSocket upgrades and runs the pumps.
type Handler struct {
	router Router
	buffer int
	log    zerolog.Logger
}

// NewHandler creates a handler bound to the given router.
func NewHandler(router Router, buffer int, log zerolog.Logger) *Handler {
	if buffer <= 0 {
		buffer = 256
	}
	return &Handler{router: router, buffer: buffer, log: log}
}

// RegisterRoutes registers the WebSocket endpoint on the provided Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect)
}

// HandleConnect upgrades an HTTP connection to WebSocket and starts the
// read/write pumps.
func (h *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(&gorillaConnAdapter{ws}, h.buffer)
	h.log.Debug().Str("client_id", client.ID).Msg("websocket connected")

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// readPump reads frames from the connection and hands them to the router.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.router.HandleDisconnect(client)
		client.conn.Close()
		h.log.Debug().Str("client_id", client.ID).
			Int64("dropped_frames", client.Dropped()).Msg("websocket disconnected")
	}()

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			break
		}
		h.router.HandleMessage(client, message)
	}
}

// writePump drains the Send channel to the connection until it is closed.
func (h *Handler) writePump(client *Client) {
	for message := range client.Send {
		if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
	client.conn.Close()
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy the Conn interface.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
