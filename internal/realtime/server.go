// Package realtime serves the two client-facing planes: the request/
// response control API for session lifecycle, and the streaming WebSocket
// plane for terminal I/O. Session management is only ever possible through
// the control API; the streaming plane rejects lifecycle events outright.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"termhub/internal/control"
	"termhub/internal/protocol"
	"termhub/internal/session"
	"termhub/internal/workspace"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second

	sendBufferSize = 256
)

// rejectManagementMsg is returned for lifecycle events on the streaming
// plane. This is a policy boundary, not a convenience.
const rejectManagementMsg = "session management must use the control API"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Local tool; the UI is served from the same process.
	},
}

// Server wires the dispatcher, registry, metadata mirror, and workspace
// watcher to HTTP and WebSocket endpoints.
type Server struct {
	dispatcher *control.Dispatcher
	registry   *session.Registry
	mirror     *session.MetadataStore
	workspace  *workspace.Watcher
	staticDir  string

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New creates a realtime server. The workspace watcher may be nil, in
// which case the directories endpoint reports an empty workspace.
func New(dispatcher *control.Dispatcher, registry *session.Registry, mirror *session.MetadataStore, ws *workspace.Watcher, staticDir string) *Server {
	return &Server{
		dispatcher: dispatcher,
		registry:   registry,
		mirror:     mirror,
		workspace:  ws,
		staticDir:  staticDir,
		clients:    make(map[*client]struct{}),
	}
}

// broadcast enqueues an event on every connected streaming client. Slow
// clients drop frames; broadcast never blocks.
func (s *Server) broadcast(env protocol.Envelope) {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.enqueue(env)
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// Router returns the HTTP handler with all routes configured.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/terminal", s.handleTerminal)
		r.Get("/directories", s.handleDirectories)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleListSessions)
			r.Delete("/{id}", s.handleCloseSession)
		})
	})

	if s.staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.staticDir)))
	}

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// client is one streaming-plane connection. The inbound event loop
// (readPump) and the outbound writer (writePump) run independently; the
// per-session forwarders feed the writer without ever blocking the reader.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	forwarders map[string]*forwarder
	wg         sync.WaitGroup
}

// forwarder drains one session's PTY into this connection. emitMu
// serializes its append-then-emit step against history replay so a
// RequestHistory reply is never interleaved with live output.
type forwarder struct {
	emitMu sync.Mutex
}

// handleTerminal upgrades the connection and starts the per-connection
// pumps. The current session list is pushed immediately after connect.
func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		server:     s,
		ctx:        ctx,
		cancel:     cancel,
		forwarders: make(map[string]*forwarder),
	}

	s.addClient(c)

	if env, err := protocol.SessionList(s.registry.List()); err == nil {
		c.enqueue(env)
	}

	go c.writePump()
	go c.readPump()
}

// readPump reads client events until the transport fails, then tears the
// connection down. Cancelling the context stops the forwarders and the
// writer; the send channel is never closed, so a broadcast racing with
// teardown lands in a dead buffer instead of panicking.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.cancel()
		c.wg.Wait()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read error: %v", err)
			}
			return
		}
		c.handleEvent(raw)
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleEvent validates one frame and dispatches it. Validation failures
// and unknown sessions produce Error events; the loop always continues.
func (c *client) handleEvent(raw []byte) {
	env, err := protocol.ValidateClientEvent(raw)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	switch env.Type {
	case protocol.TypeSendInput:
		var p protocol.SendInputData
		json.Unmarshal(env.Data, &p)
		c.handleSendInput(p)

	case protocol.TypeRequestHistory:
		var p protocol.RequestHistoryData
		json.Unmarshal(env.Data, &p)
		c.handleRequestHistory(p)

	case protocol.TypeResize:
		var p protocol.ResizeData
		json.Unmarshal(env.Data, &p)
		if err := c.server.registry.Resize(p.SessionID, p.Cols, p.Rows); err != nil {
			c.sendError(err.Error())
		}

	case protocol.TypeCreateSession, protocol.TypeCloseSession:
		c.sendError(rejectManagementMsg)

	default:
		// Unreachable after validation.
		c.sendError("unknown event type: " + env.Type)
	}
}

func (c *client) handleSendInput(p protocol.SendInputData) {
	if !c.server.mirror.Exists(p.SessionID) {
		c.sendError("session " + p.SessionID + " not found")
		return
	}

	if err := c.server.registry.WriteInput(p.SessionID, []byte(p.Input)); err != nil {
		c.sendError(err.Error())
		return
	}

	c.ensureForwarder(p.SessionID)
}

func (c *client) handleRequestHistory(p protocol.RequestHistoryData) {
	if !c.server.mirror.Exists(p.SessionID) {
		c.sendError("session " + p.SessionID + " not found")
		return
	}

	f := c.ensureForwarder(p.SessionID)

	// Replay atomically with respect to the forwarder's append-then-emit,
	// so every live event lands entirely before or after the replay.
	f.emitMu.Lock()
	defer f.emitMu.Unlock()

	chunks, err := c.server.registry.Output(p.SessionID)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	for _, chunk := range chunks {
		if env, err := protocol.TerminalOutput(p.SessionID, chunk); err == nil {
			c.enqueue(env)
		}
	}
}

// ensureForwarder starts the output forwarder for a session on first use.
// A forwarder that has stopped removes itself from the map, so a later
// event for the same session starts a fresh one.
func (c *client) ensureForwarder(sessionID string) *forwarder {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.forwarders[sessionID]; ok {
		return f
	}
	f := &forwarder{}
	c.forwarders[sessionID] = f

	c.wg.Add(1)
	go c.forward(sessionID, f)
	return f
}

// forward continuously drains the session's PTY and emits terminal output.
// Reads are bounded waits at the adapter, so this is not a tight spin. The
// loop ends on connection teardown, on session close, or when the child's
// PTY reaches end of stream.
func (c *client) forward(sessionID string, f *forwarder) {
	defer func() {
		c.mu.Lock()
		delete(c.forwarders, sessionID)
		c.mu.Unlock()
		c.wg.Done()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		data, err := c.server.registry.ReadAvailable(sessionID)
		if err != nil {
			// Closed sessions and exited children end the forwarder
			// quietly; only genuine I/O failures are reported. The
			// connection itself stays up either way.
			if !isEndOfStream(err) {
				c.sendError(err.Error())
			}
			return
		}
		if len(data) == 0 {
			continue
		}

		f.emitMu.Lock()
		chunk := string(data)
		c.server.registry.AppendOutput(sessionID, chunk)
		if env, err := protocol.TerminalOutput(sessionID, chunk); err == nil {
			c.enqueue(env)
		}
		f.emitMu.Unlock()
	}
}

// enqueue marshals an event onto the send queue. A slow client's full
// buffer drops frames rather than stalling producers.
func (c *client) enqueue(env protocol.Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case <-c.ctx.Done():
	case c.send <- frame:
	default:
	}
}

func (c *client) sendError(message string) {
	if env, err := protocol.ErrorEvent(message); err == nil {
		c.enqueue(env)
	}
}

// isEndOfStream reports whether a read failure just means there is nothing
// left to forward: the session is gone or the child's PTY has closed.
func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, session.ErrNotFound)
}
