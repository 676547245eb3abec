package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// HandlerFunc processes a client message. Handlers run on their own goroutine
// per message and may block on CLI calls.
type HandlerFunc func(c *Conn, msg *ClientMessage)

// Server manages WebSocket connections and message dispatch.
type Server struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}

	handlers     map[string]HandlerFunc
	connectFn    func(c *Conn)
	disconnectFn func(c *Conn)

	presenceMu sync.Mutex
	presenceFn func(watching bool)
	watching   bool
}

func NewServer() *Server {
	return &Server{
		conns:    make(map[*Conn]struct{}),
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers a handler for a named event.
func (s *Server) Handle(event string, fn HandlerFunc) {
	s.handlers[event] = fn
}

// HandleConnect registers a callback that fires when a new connection is
// established, before the read pump starts.
func (s *Server) HandleConnect(fn func(c *Conn)) {
	s.connectFn = fn
}

// OnDisconnect registers a callback that fires when a connection is removed.
func (s *Server) OnDisconnect(fn func(c *Conn)) {
	s.disconnectFn = fn
}

// OnPresenceChange registers a callback that fires whenever the answer to
// AnyWatching flips.
func (s *Server) OnPresenceChange(fn func(watching bool)) {
	s.presenceMu.Lock()
	s.presenceFn = fn
	s.presenceMu.Unlock()
}

// ServeHTTP upgrades the HTTP request to a WebSocket connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("ws accept", "err", err)
		return
	}

	c := newConn(ws, s)
	s.add(c)

	slog.Debug("ws connected", "conn", c.ID(), "remote", r.RemoteAddr)

	if s.connectFn != nil {
		s.connectFn(c)
	}

	// Block on the read pump; this goroutine is owned by net/http.
	c.readPump(r.Context())
}

// UpgradeHandler returns an http.Handler that upgrades to WebSocket.
func (s *Server) UpgradeHandler() http.Handler {
	return s
}

// Broadcast marshals one push event and sends it to all authenticated
// connections.
func Broadcast[T any](s *Server, event string, data T) {
	b, err := json.Marshal(ServerMessage[T]{Event: event, Data: data})
	if err != nil {
		slog.Error("ws marshal broadcast", "event", event, "err", err)
		return
	}
	s.BroadcastAuthenticatedBytes(b)
}

// BroadcastAuthenticatedBytes sends pre-marshaled JSON bytes to all
// authenticated connections.
func (s *Server) BroadcastAuthenticatedBytes(data []byte) {
	for _, c := range s.snapshot() {
		if c.Authenticated() {
			c.writeRaw(data)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// HasAuthenticatedConns reports whether at least one authenticated client
// is connected.
func (s *Server) HasAuthenticatedConns() bool {
	for _, c := range s.snapshot() {
		if c.Authenticated() {
			return true
		}
	}
	return false
}

// AnyWatching reports whether any authenticated client has its UI visible.
func (s *Server) AnyWatching() bool {
	for _, c := range s.snapshot() {
		if c.Watching() {
			return true
		}
	}
	return false
}

// ForEachConn iterates over all connections. The callback must not block.
func (s *Server) ForEachConn(fn func(*Conn)) {
	for _, c := range s.snapshot() {
		fn(c)
	}
}

// CloseAll closes every connection.
func (s *Server) CloseAll() {
	for _, c := range s.snapshot() {
		c.Close()
	}
}

func (s *Server) snapshot() []*Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *Server) add(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) remove(c *Conn) {
	s.mu.Lock()
	_, ok := s.conns[c]
	delete(s.conns, c)
	s.mu.Unlock()
	if !ok {
		return
	}

	if s.disconnectFn != nil {
		s.disconnectFn(c)
	}
	s.notifyPresence()

	slog.Debug("ws disconnected", "conn", c.ID(), "remaining", s.ConnectionCount())
}

// notifyPresence recomputes AnyWatching and fires the presence callback when
// it changed.
func (s *Server) notifyPresence() {
	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()

	now := s.AnyWatching()
	if now == s.watching {
		return
	}
	s.watching = now
	if s.presenceFn != nil {
		s.presenceFn(now)
	}
}

func (s *Server) dispatch(c *Conn, msg *ClientMessage) {
	// Each message gets its own goroutine so a slow CLI call does not block
	// the read pump.
	go s.Dispatch(c, msg)
}

// Dispatch looks up and invokes the handler for the given message event.
func (s *Server) Dispatch(c *Conn, msg *ClientMessage) {
	h, ok := s.handlers[msg.Event]
	if !ok {
		slog.Warn("ws unknown event", "event", msg.Event)
		if msg.ID != nil {
			SendAck(c, *msg.ID, ErrorResponse{OK: false, Msg: "unknown event: " + msg.Event})
		}
		return
	}
	h(c, msg)
}
