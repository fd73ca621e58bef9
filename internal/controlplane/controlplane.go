// Package controlplane implements the control-plane endpoint (§4.8, §6):
// a WebSocket surface (subprotocols ui0.0.1 / ui0.0.2) that accepts
// [id, procedure, payload] request frames, dispatches to the registry, and
// replies [id, {status, hashIdsSucceeded[], hashIdsFailed[], responsesFailed[]}].
// Also exposes a small HTTP surface (health, station listing) adapted from
// the teacher's chi router.
package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ocppsim/simulator/internal/registry"
	"github.com/ocppsim/simulator/internal/telemetry"
	"github.com/ocppsim/simulator/pkg/contracts"
	"github.com/ocppsim/simulator/pkg/models"
)

// Procedure names accepted on the control-plane WebSocket (§6).
const (
	ProcStartChargingStation             = "startChargingStation"
	ProcStopChargingStation              = "stopChargingStation"
	ProcOpenConnection                   = "openConnection"
	ProcCloseConnection                  = "closeConnection"
	ProcStartTransaction                 = "startTransaction"
	ProcStopTransaction                  = "stopTransaction"
	ProcStartAutomaticTransactionGenerator = "startAutomaticTransactionGenerator"
	ProcStopAutomaticTransactionGenerator  = "stopAutomaticTransactionGenerator"
	ProcStatusNotification               = "statusNotification"
)

// requestFrame is [id, procedure, payload].
type requestFrame [3]json.RawMessage

// commandPayload is the generic shape every procedure's payload decodes
// into; unused fields are simply ignored by whichever handler runs.
type commandPayload struct {
	HashIDs       []string `json:"hashIds,omitempty"`
	ConnectorID   int      `json:"connectorId,omitempty"`
	IDTag         string   `json:"idTag,omitempty"`
	TransactionID string   `json:"transactionId,omitempty"`
}

// responsePayload is the {status, hashIdsSucceeded, hashIdsFailed,
// responsesFailed} object of a response frame.
type responsePayload struct {
	Status           string                    `json:"status"`
	HashIDsSucceeded []string                  `json:"hashIdsSucceeded"`
	HashIDsFailed    []string                  `json:"hashIdsFailed"`
	ResponsesFailed  []registry.FailedResponse `json:"responsesFailed,omitempty"`
}

// Server hosts the control-plane WebSocket and HTTP surface over a
// registry.
type Server struct {
	reg      *registry.Registry
	log      zerolog.Logger
	audit    contracts.AuditDriver
	metrics  *telemetry.Metrics
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
}

// New builds a Server over reg. audit and metrics may be nil.
func New(reg *registry.Registry, audit contracts.AuditDriver, log zerolog.Logger, metrics *telemetry.Metrics) *Server {
	return &Server{
		reg:     reg,
		log:     log,
		audit:   audit,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(r *http.Request) bool { return true },
			Subprotocols: []string{"ui0.0.1", "ui0.0.2"},
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Router builds the HTTP handler: health, station listing, metrics, and the
// /ui WebSocket endpoint. Adapted from the teacher's chi-based router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(tracingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/stations", s.handleListStations)
	r.Get("/ui", s.handleWebSocket)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func corsOrigins() []string {
	if v := os.Getenv("OCPPSIM_CORS_ORIGINS"); v != "" {
		var out []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []string{"*"}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "service": "ocpp-simulator"})
}

func (s *Server) handleListStations(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"hashIds": s.reg.List()})
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code and
// bytes written, adapted from the teacher's middleware.responseWriter.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func newLoggingResponseWriter(w http.ResponseWriter) *loggingResponseWriter {
	return &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *loggingResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// requestLogger is adapted from the teacher's middleware.Logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newLoggingResponseWriter(w)
		next.ServeHTTP(rw, r)

		event := s.log.Info()
		if rw.statusCode >= 400 {
			event = s.log.Warn()
		}
		if rw.statusCode >= 500 {
			event = s.log.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Int("bytes", rw.bytes).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("control-plane request")
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("control-plane websocket upgrade failed")
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	events, unsub := s.reg.Subscribe(64)
	defer unsub()
	go s.streamEvents(conn, events)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		resp := s.handleFrame(r.Context(), raw)
		if resp == nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
			return
		}
	}
}

func (s *Server) streamEvents(conn *websocket.Conn, events <-chan contracts.StationEvent) {
	for evt := range events {
		frame := []interface{}{"", "stationEvent", evt}
		b, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, raw []byte) []byte {
	var frame requestFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return encodeResponse(json.RawMessage(`""`), responsePayload{Status: "Rejected"})
	}
	var id json.RawMessage = frame[0]
	var procedure string
	if err := json.Unmarshal(frame[1], &procedure); err != nil {
		return encodeResponse(id, responsePayload{Status: "Rejected"})
	}
	var payload commandPayload
	_ = json.Unmarshal(frame[2], &payload)

	result := s.dispatch(ctx, procedure, payload)
	s.recordAudit(ctx, procedure, payload, result)
	if s.metrics != nil {
		s.metrics.ControlPlaneCommandsTotal.WithLabelValues(procedure, status(result)).Inc()
	}
	return encodeResponse(id, responsePayload{
		Status:           status(result),
		HashIDsSucceeded: nonNil(result.HashIDsSucceeded),
		HashIDsFailed:    nonNil(result.HashIDsFailed),
		ResponsesFailed:  result.ResponsesFailed,
	})
}

func (s *Server) dispatch(ctx context.Context, procedure string, p commandPayload) registry.AggregateResult {
	switch procedure {
	case ProcStartChargingStation, ProcOpenConnection:
		return s.reg.StartStation(ctx, p.HashIDs)
	case ProcStopChargingStation, ProcCloseConnection:
		return s.reg.StopStation(ctx, p.HashIDs, models.StopReasonRemote)
	case ProcStartAutomaticTransactionGenerator:
		return s.reg.StartATG(ctx, p.HashIDs, []int{p.ConnectorID})
	case ProcStopAutomaticTransactionGenerator:
		return s.reg.StopATG(ctx, p.HashIDs)
	case ProcStartTransaction:
		return s.reg.Dispatch(ctx, p.HashIDs, func(ctx context.Context, e *registry.Entry) error {
			return e.Station.RemoteStartForControlPlane(ctx, p.ConnectorID, p.IDTag)
		})
	case ProcStopTransaction:
		return s.reg.Dispatch(ctx, p.HashIDs, func(ctx context.Context, e *registry.Entry) error {
			return e.Station.RemoteStopForControlPlane(ctx, p.TransactionID)
		})
	case ProcStatusNotification:
		return s.reg.Dispatch(ctx, p.HashIDs, func(ctx context.Context, e *registry.Entry) error {
			return nil
		})
	default:
		return registry.AggregateResult{HashIDsFailed: p.HashIDs}
	}
}

func (s *Server) recordAudit(ctx context.Context, procedure string, p commandPayload, result registry.AggregateResult) {
	if s.audit == nil {
		return
	}
	record := contracts.AuditRecord{
		ID:           "",
		Procedure:    procedure,
		HashIDs:      p.HashIDs,
		Succeeded:    result.HashIDsSucceeded,
		Failed:       result.HashIDsFailed,
		DispatchedAt: time.Now().UTC(),
	}
	if err := s.audit.RecordCommand(ctx, record); err != nil {
		s.log.Warn().Err(err).Str("procedure", procedure).Msg("command audit record failed")
	}
}

func status(r registry.AggregateResult) string {
	if len(r.HashIDsFailed) == 0 {
		return "Accepted"
	}
	if len(r.HashIDsSucceeded) == 0 {
		return "Rejected"
	}
	return "Partial"
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func encodeResponse(id json.RawMessage, payload responsePayload) []byte {
	frame := []interface{}{id, payload}
	b, err := json.Marshal(frame)
	if err != nil {
		return nil
	}
	return b
}
