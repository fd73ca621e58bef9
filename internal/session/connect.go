package session

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/ocppsim/simulator/internal/telemetry"
)

// Run dials the server and keeps the connection alive for the lifetime of
// ctx, reconnecting with backoff on every drop (§4.2). It blocks until ctx
// is cancelled or Close is called.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		if err := s.connectOnce(ctx); err != nil {
			s.log.Warn().Err(err).Msg("connect failed")
		}

		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		delay, ok := s.nextBackoff()
		if !ok {
			s.log.Error().Msg("reconnection retries exhausted, giving up")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *Session) newBackoff() backoff.BackOff {
	base := s.cfg.ReconnectBase
	if base <= 0 {
		base = time.Second
	}
	if !s.cfg.Exponential {
		return backoff.NewConstantBackOff(base)
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.MaxElapsedTime = 0 // unbounded; caps are enforced by attempt count, not wall time
	return eb
}

// attemptTracker wraps the backoff policy with a retry-count ceiling so
// ReconnectMaxRetry (-1 = unlimited) can be enforced independently of the
// backoff curve itself.
type attemptTracker struct {
	policy  backoff.BackOff
	attempt int
	max     int // -1 = unlimited
}

func (s *Session) nextBackoff() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker == nil {
		s.tracker = &attemptTracker{policy: s.newBackoff(), max: s.cfg.ReconnectMaxRetry}
	}
	if s.tracker.max >= 0 && s.tracker.attempt >= s.tracker.max {
		return 0, false
	}
	s.tracker.attempt++
	d := s.tracker.policy.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	return d, true
}

func (s *Session) resetBackoff() {
	s.mu.Lock()
	s.tracker = nil
	s.mu.Unlock()
}

func (s *Session) connectOnce(ctx context.Context) error {
	spanCtx, span := telemetry.StartSessionSpan(ctx, "connect", s.url)
	var err error
	defer func() { telemetry.RecordOutcome(span, err) }()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"ocpp2.0.1", "ocpp1.6"},
	}
	header := http.Header(s.header)
	var conn *websocket.Conn
	conn, _, err = dialer.DialContext(spanCtx, s.url, header)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.online = true
	s.mu.Unlock()
	s.resetBackoff()

	if s.onOpen != nil {
		if err := s.onOpen(ctx); err != nil {
			s.log.Warn().Err(err).Msg("onOpen hook failed")
		}
	}
	s.drainQueue(ctx)

	s.readLoop(ctx)
	return nil
}
