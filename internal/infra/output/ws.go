package output

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"feed_go/internal/domain"
	"feed_go/internal/infra"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"
)

const (
	wsSendBuffer   = 1024
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
	wsPongWait     = 90 * time.Second
)

type wsClient struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// WSHub broadcasts market pictures as JSON to every connected browser.
// Only records whose code is in the exchange display set are sent. A
// client whose buffer is full is disconnected rather than slowing the
// pipeline.
type WSHub struct {
	upgrader websocket.Upgrader
	filter   func(*domain.Record) bool
	lookup   domain.InstrumentLookup
	metrics  *infra.Metrics

	mu      sync.RWMutex
	clients map[uuid.UUID]*wsClient

	srv *http.Server
}

// NewWSHub creates a hub for ex. Serve it with Handler or Start.
func NewWSHub(ex domain.Exchange, lookup domain.InstrumentLookup, metrics *infra.Metrics) *WSHub {
	return &WSHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 65536,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		filter:  displayFilter(ex),
		lookup:  lookup,
		metrics: metrics,
		clients: make(map[uuid.UUID]*wsClient),
	}
}

// Start listens on addr in the background until Close.
func (h *WSHub) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return domain.NewFatalNetworkError("ws listen "+addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	h.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("WebSocket server stopped", slog.Any("error", err))
		}
	}()
	slog.Info("WebSocket server listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// ServeHTTP upgrades the request and registers the client.
func (h *WSHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &wsClient{id: uuid.New(), conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.metrics.IncrementClients()
	slog.Info("WebSocket client connected", slog.String("client", c.id.String()), slog.String("remote", r.RemoteAddr))

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Clients returns the number of connected clients.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WSHub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()
	if ok {
		c.close()
		h.metrics.DecrementClients()
		slog.Info("WebSocket client disconnected", slog.String("client", c.id.String()))
	}
}

// readLoop only services control frames; client messages are ignored.
func (h *WSHub) readLoop(c *wsClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

func (h *WSHub) Name() string { return "ws" }

// Write encodes rec once and queues it for every client.
func (h *WSHub) Write(rec *domain.Record) error {
	if !h.filter(rec) {
		return nil
	}
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n == 0 {
		return nil
	}

	msg, err := sonnet.Marshal(viewOf(rec, h.lookup))
	if err != nil {
		return err
	}

	var slow []*wsClient
	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("Dropping slow WebSocket client", slog.String("client", c.id.String()))
		h.remove(c)
	}
	return nil
}

// Close disconnects every client and stops the listener.
func (h *WSHub) Close() error {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[uuid.UUID]*wsClient)
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
		h.metrics.DecrementClients()
	}

	if h.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.srv.Shutdown(ctx)
}
