package transport

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/synheart/synheart-monitor/internal/encoding"
	"github.com/synheart/synheart-monitor/internal/models"
)

type sseClient struct {
	patient string
	ch      chan []byte
}

// SSEServer broadcasts frames via Server-Sent Events. Binary encodings are
// sent base64-encoded.
type SSEServer struct {
	host    string
	port    int
	encoder encoding.Encoder
	clients map[*sseClient]bool
	mu      sync.RWMutex
	server  *http.Server
	log     zerolog.Logger
}

// NewSSEServer creates a new SSE server
func NewSSEServer(host string, port int, encoder encoding.Encoder, logger zerolog.Logger) *SSEServer {
	return &SSEServer{
		host:    host,
		port:    port,
		encoder: encoder,
		clients: make(map[*sseClient]bool),
		log:     logger.With().Str("component", "sse").Logger(),
	}
}

// Handler returns the server's routes
func (s *SSEServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(StreamPath, s.handleSSE)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start serves until ctx is cancelled
func (s *SSEServer) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("address", s.GetAddress()).Msg("SSE server listening")
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
			return fmt.Errorf("SSE server failed: %w", err)
		}
		return nil
	}
}

func (s *SSEServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "Synheart Monitor SSE Stream\n\nEndpoint: %s\n", s.GetAddress())
}

func (s *SSEServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	client := &sseClient{patient: r.URL.Query().Get("patient"), ch: make(chan []byte, 100)}
	s.addClient(client)
	defer s.removeClient(client)

	// headers go out before the first frame so clients see the stream open
	flusher.Flush()
	s.log.Info().Str("patient_id", client.patient).Int("total", s.GetClientCount()).Msg("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-client.ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: frame\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *SSEServer) addClient(c *sseClient) {
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
}

func (s *SSEServer) removeClient(c *sseClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clients[c]; exists {
		delete(s.clients, c)
		close(c.ch)
		s.log.Info().Int("total", len(s.clients)).Msg("SSE client disconnected")
	}
}

// Broadcast sends a frame to every client subscribed to its patient
func (s *SSEServer) Broadcast(frame models.Frame) error {
	if s.GetClientCount() == 0 {
		return nil
	}

	data, err := s.encoder.Encode(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if s.encoder.Binary() {
		data = []byte(base64.StdEncoding.EncodeToString(data))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for c := range s.clients {
		if c.patient != "" && c.patient != frame.PatientID {
			continue
		}
		select {
		case c.ch <- data:
		default:
		}
	}
	return nil
}

// BroadcastFromChannel reads frames and broadcasts them
func (s *SSEServer) BroadcastFromChannel(ctx context.Context, frames <-chan models.Frame) error {
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

// GetClientCount returns connected client count
func (s *SSEServer) GetClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown closes all clients and stops the server
func (s *SSEServer) Shutdown() error {
	s.mu.Lock()
	for c := range s.clients {
		close(c.ch)
	}
	s.clients = make(map[*sseClient]bool)
	s.mu.Unlock()

	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// GetAddress returns the stream URL
func (s *SSEServer) GetAddress() string {
	return fmt.Sprintf("http://%s:%d%s", s.host, s.port, StreamPath)
}
