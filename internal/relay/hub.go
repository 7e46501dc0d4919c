package relay

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBufferSize = 256
	maxRedialWait  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub relays messages between browser clients and one upstream WebSocket.
// Client frames are forwarded upstream; upstream frames go to every client.
type Hub struct {
	upstreamURL string
	dialer      *websocket.Dialer
	redialWait  time.Duration

	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	outbound   chan []byte
	count      chan chan int
	done       chan struct{}
}

// NewHub creates a hub that dials upstreamURL once Run is called
func NewHub(upstreamURL string) *Hub {
	return &Hub{
		upstreamURL: upstreamURL,
		dialer:      websocket.DefaultDialer,
		redialWait:  250 * time.Millisecond,
		clients:     make(map[*client]struct{}),
		register:    make(chan *client),
		unregister:  make(chan *client),
		broadcast:   make(chan []byte, sendBufferSize),
		outbound:    make(chan []byte, sendBufferSize),
		count:       make(chan chan int),
		done:        make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled. It must be running before
// ServeHTTP accepts clients.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	go h.runUpstream(ctx)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			slog.Debug("relay client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				slog.Debug("relay client disconnected", "clients", len(h.clients))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// too slow; drop it rather than stall every other client
					delete(h.clients, c)
					close(c.send)
				}
			}

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// Clients returns the number of connected browser clients
func (h *Hub) Clients() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// ServeHTTP upgrades the request and attaches the connection as a client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("relay websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// forward queues a client message for the upstream process
func (h *Hub) forward(msg []byte) {
	select {
	case h.outbound <- msg:
	default:
		slog.Warn("relay upstream queue full, dropping client message")
	}
}

// runUpstream keeps a connection to the upstream process, redialling until ctx is done
func (h *Hub) runUpstream(ctx context.Context) {
	wait := h.redialWait
	for {
		conn, _, err := h.dialer.DialContext(ctx, h.upstreamURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Debug("relay upstream not reachable yet", "url", h.upstreamURL, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			wait = min(wait*2, maxRedialWait)
			continue
		}

		slog.Info("relay upstream connected", "url", h.upstreamURL)
		wait = h.redialWait
		h.pumpUpstream(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("relay upstream disconnected", "url", h.upstreamURL)
	}
}

// pumpUpstream moves frames in both directions until the connection fails or ctx is done
func (h *Hub) pumpUpstream(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	readErr := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case h.broadcast <- msg:
			case <-ctx.Done():
				readErr <- ctx.Err()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-readErr:
			return
		case msg := <-h.outbound:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Warn("relay upstream write failed", "error", err)
				return
			}
		}
	}
}
