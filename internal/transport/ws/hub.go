// Package ws streams scheduler events to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marcus/idlecrew/internal/events"
	"github.com/marcus/idlecrew/internal/logging"
)

const (
	writeWait   = 5 * time.Second
	readWait    = 60 * time.Second
	sendBuffer  = 256
	closeWait   = 500 * time.Millisecond
	maxReadSize = 4 * 1024
)

// BoardFunc returns the current board view served on the snapshot endpoint.
type BoardFunc func(ctx context.Context) (any, error)

// Hub fans flushed events out to every connected client. It implements
// events.Observer.
type Hub struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader
	board    BoardFunc
	loopback bool

	mu      sync.Mutex
	clients map[uint64]chan []byte
	nextID  atomic.Uint64
	dropped atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithBoard serves fn's result on the snapshot endpoint.
func WithBoard(fn BoardFunc) Option {
	return func(h *Hub) { h.board = fn }
}

// WithLoopbackOnly rejects connections that do not come from a loopback
// address.
func WithLoopbackOnly(on bool) Option {
	return func(h *Hub) { h.loopback = on }
}

// WithLogger overrides the hub logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		logger:  logging.Component("ws"),
		clients: make(map[uint64]chan []byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Notify encodes e and queues it for every client. Slow clients lose events
// rather than block the scheduler.
func (h *Hub) Notify(e events.Event) {
	b, err := json.Marshal(e)
	if err != nil {
		h.logger.Errorf("encode event %s: %v", e.Type, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, out := range h.clients {
		select {
		case out <- b:
		default:
			h.dropped.Add(1)
			h.logger.Debugf("client %d: send buffer full, dropping %s", id, e.Type)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many event deliveries were skipped for slow clients.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) join() (uint64, chan []byte) {
	id := h.nextID.Add(1)
	out := make(chan []byte, sendBuffer)
	h.mu.Lock()
	h.clients[id] = out
	h.mu.Unlock()
	h.logger.Infof("client %d connected", id)
	return id, out
}

func (h *Hub) leave(id uint64) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
	h.logger.Infof("client %d disconnected", id)
}

// Handler returns a mux with the event stream at /events and the board
// snapshot at /board.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", h.EventsHandler())
	mux.HandleFunc("/board", h.BoardHandler())
	return mux
}

// BoardHandler serves the current board as JSON.
func (h *Hub) BoardHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !h.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if h.board == nil {
			http.Error(rw, "no board", http.StatusNotFound)
			return
		}
		view, err := h.board(r.Context())
		if err != nil {
			h.logger.Errorf("board snapshot: %v", err)
			http.Error(rw, "board unavailable", http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(view)
	}
}

// EventsHandler upgrades the request and streams events until the client
// goes away.
func (h *Hub) EventsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !h.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			h.logger.Warnf("upgrade: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()
		conn.SetReadLimit(maxReadSize)

		id, out := h.join()
		defer h.leave(id)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Clients only send keepalives; any read error ends the session.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(closeWait):
		}
	}
}

func (h *Hub) allowed(r *http.Request) bool {
	return !h.loopback || isLoopbackRemote(r.RemoteAddr)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Server runs the hub on an address.
type Server struct {
	hub  *Hub
	http *http.Server
}

// NewServer binds hub to addr.
func NewServer(addr string, hub *Hub) *Server {
	return &Server{
		hub: hub,
		http: &http.Server{
			Addr:              addr,
			Handler:           hub.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Serve listens on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.hub.logger.Infof("listening on %s", ln.Addr())
	if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections and waits for handlers up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
