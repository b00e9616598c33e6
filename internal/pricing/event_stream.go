package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// PositionEvent is pushed by the live engine whenever a position's state
// changes (fill, price move past a threshold, funding). The daemon uses it
// to revalue the affected pool without waiting for the next sweep.
type PositionEvent struct {
	PoolID     string `json:"poolId"`
	PositionID string `json:"positionId"`
	Kind       string `json:"kind"`
}

// StreamConfig configures EventStream behavior.
type StreamConfig struct {
	// ReconnectDelay is initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Buffer is the event channel capacity.
	Buffer int
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		Buffer:            256,
	}
}

// EventStream subscribes to the engine's position event feed over a
// websocket and resubscribes automatically after connection loss. Events are
// advisory: a dropped event only delays a pool's revaluation until the next
// sweep.
type EventStream struct {
	endpoint string
	config   StreamConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	events chan PositionEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewEventStream connects to the engine websocket endpoint and subscribes
// to position events.
func NewEventStream(ctx context.Context, endpoint string, config *StreamConfig) (*EventStream, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}

	s := &EventStream{
		endpoint: endpoint,
		config:   cfg,
		events:   make(chan PositionEvent, cfg.Buffer),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	return s, nil
}

// Events returns the channel position events are delivered on. The channel
// closes when the stream is closed.
func (s *EventStream) Events() <-chan PositionEvent {
	return s.events
}

// Close shuts the stream down and closes the events channel.
func (s *EventStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.events)
	return nil
}

// connect dials the endpoint and sends the subscribe request.
func (s *EventStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	sub := map[string]any{
		"jsonrpc": "2.0",
		"id":      s.requestID.Add(1),
		"method":  "engine.subscribePositions",
	}
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("write subscribe: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

// wsNotification is the engine's push frame.
type wsNotification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// readLoop reads notifications and reconnects with backoff on failure.
func (s *EventStream) readLoop() {
	defer s.wg.Done()

	delay := s.config.ReconnectDelay

	for {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			if !s.waitAndReconnect(&delay) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			conn.Close()
			s.connMu.Lock()
			s.conn = nil
			s.connMu.Unlock()
			continue
		}
		delay = s.config.ReconnectDelay

		var note wsNotification
		if err := json.Unmarshal(data, &note); err != nil {
			continue // subscription ack or malformed frame
		}
		if note.Method != "engine.positionEvent" {
			continue
		}

		var evt PositionEvent
		if err := json.Unmarshal(note.Params, &evt); err != nil || evt.PoolID == "" {
			continue
		}

		select {
		case s.events <- evt:
		case <-s.done:
			return
		default:
			// Drop when the consumer lags; the periodic sweep covers it.
		}
	}
}

// waitAndReconnect sleeps the backoff delay and re-dials. Returns false when
// the stream is shut down.
func (s *EventStream) waitAndReconnect(delay *time.Duration) bool {
	select {
	case <-s.done:
		return false
	case <-time.After(*delay):
	}

	*delay = time.Duration(float64(*delay) * 2)
	if *delay > s.config.MaxReconnectDelay {
		*delay = s.config.MaxReconnectDelay
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.connect(ctx); err != nil {
		return !s.closed.Load()
	}

	// Close may have run between its conn teardown and this reconnect
	// installing a fresh conn; drop the new conn instead of reading from it.
	if s.closed.Load() {
		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.connMu.Unlock()
		return false
	}
	return true
}
