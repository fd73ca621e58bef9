// Package session implements the per-station Session Engine (§4.2): a
// gorilla/websocket client with a pending-request map, a send queue with
// offline de-duplication, and a backoff-driven reconnection controller.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ocppsim/simulator/internal/wire"
	"github.com/ocppsim/simulator/pkg/models"
)

// ServerRequestHandler dispatches an inbound CALL from the CSMS and returns
// the CALL_RESULT payload (or a *wire.OCPPError for CALL_ERROR).
type ServerRequestHandler func(ctx context.Context, action string, payload json.RawMessage) (interface{}, error)

// NonQueueable actions are never retained in the offline send queue;
// BootNotification is re-sent fresh by onOpen on every (re)connect instead
// (§4.2, §8 invariant 6).
var NonQueueable = map[string]bool{
	"BootNotification": true,
}

// appendOnly actions represent a distinct wire event every time they're
// enqueued (a transaction lifecycle step, not a status snapshot) and must
// never collapse onto a previously queued entry for the same action — doing
// so would silently drop e.g. a Started event behind a later Updated one and
// break FIFO-within-connector ordering (§4.2, §5).
var appendOnly = map[string]bool{
	"TransactionEvent":  true,
	"StartTransaction":  true,
	"StopTransaction":   true,
	"MeterValues":       true,
}

// Config bounds Session timeouts and reconnection behavior (§6).
type Config struct {
	MessageTimeout    time.Duration
	ReconnectBase     time.Duration
	ReconnectMaxRetry int // -1 = unlimited
	Exponential       bool
}

// Session owns one station's WebSocket connection, pending-call map, and
// offline send queue.
type Session struct {
	cfg     Config
	url     string
	header  map[string][]string
	onOpen  func(ctx context.Context) error
	handler ServerRequestHandler
	log     zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]*models.PendingRequest
	queue   []queuedMessage
	online  bool
	closed  bool
	tracker *attemptTracker
}

type queuedMessage struct {
	action  string
	payload interface{}
}

// New builds a Session for the given server URL. onOpen is invoked once the
// socket is established and before queue replay — typically used to send
// BootNotification. handler processes inbound server-initiated CALLs.
func New(url string, header map[string][]string, cfg Config, onOpen func(ctx context.Context) error, handler ServerRequestHandler, log zerolog.Logger) *Session {
	return &Session{
		cfg:     cfg,
		url:     url,
		header:  header,
		onOpen:  onOpen,
		handler: handler,
		log:     log,
		pending: make(map[string]*models.PendingRequest),
	}
}

// Online reports whether the underlying WebSocket connection is currently
// established.
func (s *Session) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Close tears down the connection and stops any reconnection attempts.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Call sends a CALL and blocks until its CALL_RESULT/CALL_ERROR arrives, the
// context is cancelled, or the per-message timeout elapses. When offline and
// the action is queueable, the call enqueues and returns an Offline
// OCPPError (wire.OfflineError) immediately rather than blocking — callers
// that need fire-and-forget semantics should use Enqueue directly.
func (s *Session) Call(ctx context.Context, action string, payload interface{}) (interface{}, error) {
	s.mu.Lock()
	if !s.online {
		s.mu.Unlock()
		s.Enqueue(action, payload)
		return nil, wire.NewOCPPError(wire.OfflineError, "station is offline", nil)
	}
	conn := s.conn
	id := uuid.NewString()
	timeout := s.cfg.MessageTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	req := models.NewPendingRequest(id, action, timeout)
	s.pending[id] = req
	s.mu.Unlock()

	frame, err := wire.EncodeCall(id, action, payload)
	if err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-req.Done():
		return req.Result, req.Err
	case <-timer.C:
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		req.Reject(wire.NewOCPPError(wire.Timeout, "no response within timeout", nil))
		return nil, req.Err
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Enqueue sends a fire-and-forget CALL (e.g. StatusNotification,
// MeterValues) when online, or appends it to the offline send queue when
// offline (§4.2). Status-snapshot actions (StatusNotification and similar)
// collapse to the latest payload for the same action; appendOnly actions —
// the transaction lifecycle events — always append, preserving FIFO order
// within a connector. BootNotification is never queued (NonQueueable).
func (s *Session) Enqueue(action string, payload interface{}) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.online && s.conn != nil {
		id := uuid.NewString()
		frame, err := wire.EncodeCall(id, action, payload)
		if err == nil {
			if werr := s.conn.WriteMessage(websocket.TextMessage, frame); werr == nil {
				return
			}
		}
	}

	if NonQueueable[action] {
		return
	}
	if !appendOnly[action] {
		for i, q := range s.queue {
			if q.action == action {
				s.queue[i].payload = payload
				return
			}
		}
	}
	s.queue = append(s.queue, queuedMessage{action: action, payload: payload})
}

// drainQueue flushes the offline send queue in FIFO order after a
// (re)connect. Each message gets a fresh message id.
func (s *Session) drainQueue(ctx context.Context) {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	conn := s.conn
	s.mu.Unlock()

	for _, q := range pending {
		id := uuid.NewString()
		frame, err := wire.EncodeCall(id, q.action, q.payload)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			s.log.Warn().Err(err).Str("action", q.action).Msg("queue drain write failed")
			return
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, raw []byte) {
	call, result, errFrame, err := wire.Decode(raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("discarding malformed frame")
		return
	}

	switch {
	case call != nil:
		s.handleInboundCall(ctx, call)
	case result != nil:
		s.mu.Lock()
		req, ok := s.pending[result.MessageID]
		if ok {
			delete(s.pending, result.MessageID)
		}
		s.mu.Unlock()
		if ok {
			req.Resolve(result.Payload)
		}
	case errFrame != nil:
		s.mu.Lock()
		req, ok := s.pending[errFrame.MessageID]
		if ok {
			delete(s.pending, errFrame.MessageID)
		}
		s.mu.Unlock()
		if ok {
			var details map[string]interface{}
			_ = json.Unmarshal(errFrame.Details, &details)
			req.Reject(wire.NewOCPPError(errFrame.ErrorCode, errFrame.Description, details))
		}
	}
}

func (s *Session) handleInboundCall(ctx context.Context, call *wire.Call) {
	if s.handler == nil {
		frame, _ := wire.EncodeCallError(call.MessageID, wire.NewOCPPError(wire.NotImplemented, "no handler installed", nil))
		s.writeRaw(frame)
		return
	}

	payload, err := s.handler(ctx, call.Action, call.Payload)
	if err != nil {
		ocppErr, ok := err.(*wire.OCPPError)
		if !ok {
			ocppErr = wire.NewOCPPError(wire.InternalError, err.Error(), nil)
		}
		frame, _ := wire.EncodeCallError(call.MessageID, ocppErr)
		s.writeRaw(frame)
		return
	}
	frame, err := wire.EncodeCallResult(call.MessageID, payload)
	if err != nil {
		frame, _ = wire.EncodeCallError(call.MessageID, wire.NewOCPPError(wire.InternalError, err.Error(), nil))
	}
	s.writeRaw(frame)
}

func (s *Session) writeRaw(frame []byte) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		s.log.Warn().Err(err).Msg("write failed")
	}
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.transitionOffline(err)
			return
		}
		s.handleFrame(ctx, data)
	}
}

func (s *Session) transitionOffline(err error) {
	s.mu.Lock()
	s.online = false
	for id, req := range s.pending {
		delete(s.pending, id)
		req.Reject(wire.NewOCPPError(wire.OfflineError, "connection lost", nil))
	}
	s.mu.Unlock()
	if err != nil {
		s.log.Warn().Err(err).Msg("connection lost")
	}
}
