// Package server is the local presentation bridge: a JSON API over the sync
// core plus a WebSocket stream that pushes every session change to the UI.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/digitaldrywood/timesheet/internal/timesheet"
	"github.com/digitaldrywood/timesheet/internal/tracker"
)

// Core is the part of the sync core the bridge drives.
type Core interface {
	Snapshot() tracker.Snapshot
	Subscribe(fn func(tracker.Snapshot)) func()
	CommitDay(ctx context.Context, index int, value string) error
	Save(ctx context.Context) error
	Reload(ctx context.Context) error
	ChangePeriod(ctx context.Context, p timesheet.Period) error
	ChangeMonth(ctx context.Context, month int) error
	ChangeYear(ctx context.Context, year int) error
	PinPeriod(ctx context.Context, p timesheet.Period) error
	SignOut(ctx context.Context) error
}

type Analyzer interface {
	Analyze(ctx context.Context, rec timesheet.Record) string
}

type MessageType string

const (
	MessageTypeSnapshot MessageType = "snapshot"
)

// Message is one WebSocket frame.
type Message struct {
	Type      MessageType      `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Snapshot  tracker.Snapshot `json:"snapshot"`
}

type Config struct {
	Core     Core
	Analyzer Analyzer
	// MetricsEnabled mounts /metrics.
	MetricsEnabled bool
	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

type Server struct {
	core           Core
	analyzer       Analyzer
	metricsEnabled bool
	logger         *log.Logger
	now            func() time.Time

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast   chan Message
	unsubscribe func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New subscribes to the core and starts broadcasting its changes.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		core:           cfg.Core,
		analyzer:       cfg.Analyzer,
		metricsEnabled: cfg.MetricsEnabled,
		logger:         cfg.Logger,
		now:            time.Now,
		clients:        make(map[*websocket.Conn]bool),
		broadcast:      make(chan Message, 100),
		ctx:            ctx,
		cancel:         cancel,
	}

	s.wg.Add(1)
	go s.broadcastLoop()
	s.unsubscribe = cfg.Core.Subscribe(s.Broadcast)
	return s
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// No write timeout: save and reload wait on the spreadsheet.
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Printf("Listening on http://%s", ln.Addr())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

// Close stops broadcasting and disconnects every client.
func (s *Server) Close() {
	s.unsubscribe()
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	s.wg.Wait()
}

// Broadcast queues snap for every connected client.
func (s *Server) Broadcast(snap tracker.Snapshot) {
	msg := Message{Type: MessageTypeSnapshot, Timestamp: s.now(), Snapshot: snap}
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: broadcast channel full, dropping snapshot")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Printf("Client connected (total: %d)", clientCount)

	// The first frame is the current session so a new client never waits for a change.
	welcome, _ := json.Marshal(Message{Type: MessageTypeSnapshot, Timestamp: s.now(), Snapshot: s.core.Snapshot()})
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	_ = conn.Write(ctx, websocket.MessageText, welcome)
	cancel()

	go s.readLoop(conn)
}

// readLoop keeps the connection open until the client leaves.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
