package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/aegis/internal/coordinator"
	"github.com/aristath/aegis/internal/domain"
)

const (
	streamBuffer       = 100
	streamWriteTimeout = 5 * time.Second
)

// StreamEvent is one frame on the decision stream.
type StreamEvent struct {
	Type      string                     `json:"type"` // "decision" or "message"
	Timestamp time.Time                  `json:"timestamp"`
	Decision  *coordinator.DecisionEntry `json:"decision,omitempty"`
	Message   *domain.Message            `json:"message,omitempty"`
}

type streamClient struct {
	events chan StreamEvent
	types  map[string]bool // nil means everything
}

// DecisionStream fans coordinator activity out to websocket clients. Slow
// clients lose events rather than block the coordinator.
type DecisionStream struct {
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool
	done    chan struct{}
}

// NewDecisionStream creates an empty hub.
func NewDecisionStream(log zerolog.Logger) *DecisionStream {
	return &DecisionStream{
		log:     log.With().Str("component", "decision_stream").Logger(),
		clients: make(map[*streamClient]struct{}),
		done:    make(chan struct{}),
	}
}

// OnDecision implements coordinator.Observer.
func (h *DecisionStream) OnDecision(entry coordinator.DecisionEntry) {
	h.publish(StreamEvent{Type: "decision", Timestamp: entry.Timestamp, Decision: &entry})
}

// OnMessage implements coordinator.Observer.
func (h *DecisionStream) OnMessage(msg domain.Message) {
	h.publish(StreamEvent{Type: "message", Timestamp: msg.Timestamp, Message: &msg})
}

func (h *DecisionStream) publish(evt StreamEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.types != nil && !c.types[evt.Type] {
			continue
		}
		select {
		case c.events <- evt:
		default:
			h.log.Warn().Str("event_type", evt.Type).Msg("Stream client lagging, dropping event")
		}
	}
}

// Clients is the number of connected clients.
func (h *DecisionStream) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *DecisionStream) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
}

func (h *DecisionStream) subscribe(types map[string]bool) (*streamClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &streamClient{events: make(chan StreamEvent, streamBuffer), types: types}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *DecisionStream) unsubscribe(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// ServeHTTP upgrades to a websocket and streams events until either side
// goes away. ?types=decision,message filters the stream.
// GET /api/stream
func (h *DecisionStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var types map[string]bool
	if filter := r.URL.Query().Get("types"); filter != "" {
		types = make(map[string]bool)
		for _, t := range strings.Split(filter, ",") {
			types[strings.TrimSpace(t)] = true
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	client, ok := h.subscribe(types)
	if !ok {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unsubscribe(client)

	h.log.Info().Int("clients", h.Clients()).Msg("Stream client connected")

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer disconnects.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			h.log.Debug().Msg("Stream client disconnected")
			return
		case <-h.done:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case evt := <-client.events:
			if err := h.write(ctx, conn, evt); err != nil {
				h.log.Debug().Err(err).Msg("Stream write failed")
				return
			}
		}
	}
}

func (h *DecisionStream) write(ctx context.Context, conn *websocket.Conn, evt StreamEvent) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, evt)
}
