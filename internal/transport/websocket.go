package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/synheart/synheart-monitor/internal/encoding"
	"github.com/synheart/synheart-monitor/internal/models"
)

// StreamPath is the endpoint clients connect to on both stream servers
const StreamPath = "/frames"

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local bedside displays
	},
}

// WebSocketServer broadcasts frames to WebSocket clients. A client may pass
// ?patient=<id> to receive a single patient's frames.
type WebSocketServer struct {
	host    string
	port    int
	encoder encoding.Encoder
	clients map[*websocket.Conn]string
	mu      sync.RWMutex
	server  *http.Server
	log     zerolog.Logger
}

// NewWebSocketServer creates a new WebSocket server
func NewWebSocketServer(host string, port int, encoder encoding.Encoder, logger zerolog.Logger) *WebSocketServer {
	return &WebSocketServer{
		host:    host,
		port:    port,
		encoder: encoder,
		clients: make(map[*websocket.Conn]string),
		log:     logger.With().Str("component", "websocket").Logger(),
	}
}

// Handler returns the server's routes
func (s *WebSocketServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(StreamPath, s.handleWebSocket)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start serves until ctx is cancelled
func (s *WebSocketServer) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("address", s.GetAddress()).Msg("WebSocket server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("WebSocket server failed: %w", err)
		}
		return nil
	}
}

func (s *WebSocketServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "Synheart Monitor Frame Stream\n\n")
	fmt.Fprintf(w, "WebSocket endpoint: %s\n", s.GetAddress())
	fmt.Fprintf(w, "Connected clients: %d\n", s.GetClientCount())
}

func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	patient := r.URL.Query().Get("patient")
	s.mu.Lock()
	s.clients[conn] = patient
	clientCount := len(s.clients)
	s.mu.Unlock()

	s.log.Info().Str("remote", r.RemoteAddr).Str("patient_id", patient).Int("total", clientCount).Msg("client connected")

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.mu.Unlock()

		conn.Close()
		s.log.Info().Int("total", clientCount).Msg("client disconnected")
	}()

	// drain control frames until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Broadcast sends a frame to every client subscribed to its patient
func (s *WebSocketServer) Broadcast(frame models.Frame) error {
	if s.GetClientCount() == 0 {
		return nil
	}

	data, err := s.encoder.Encode(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	msgType := websocket.TextMessage
	if s.encoder.Binary() {
		msgType = websocket.BinaryMessage
	}

	// Broadcast is only called from BroadcastFromChannel, so writes are serialized
	s.mu.RLock()
	defer s.mu.RUnlock()

	for client, patient := range s.clients {
		if patient != "" && patient != frame.PatientID {
			continue
		}
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(msgType, data); err != nil {
			s.log.Debug().Err(err).Msg("failed to send to client")
		}
	}
	return nil
}

// BroadcastFromChannel reads frames from a channel and broadcasts them
func (s *WebSocketServer) BroadcastFromChannel(ctx context.Context, frames <-chan models.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := s.Broadcast(frame); err != nil {
				s.log.Warn().Err(err).Msg("broadcast error")
			}
		}
	}
}

// GetClientCount returns the number of connected clients
func (s *WebSocketServer) GetClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown closes all clients and stops the server
func (s *WebSocketServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clients = make(map[*websocket.Conn]string)
	s.mu.Unlock()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// GetAddress returns the stream URL
func (s *WebSocketServer) GetAddress() string {
	return fmt.Sprintf("ws://%s:%d%s", s.host, s.port, StreamPath)
}
