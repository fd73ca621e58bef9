// Package station implements the Station State Machine (§4.3): boot and
// heartbeat lifecycle, connector/transaction tracking, and the
// server-initiated command handlers dispatched over a Session.
package station

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ocppsim/simulator/internal/configkeys"
	"github.com/ocppsim/simulator/internal/meter"
	"github.com/ocppsim/simulator/internal/session"
	"github.com/ocppsim/simulator/internal/telemetry"
	"github.com/ocppsim/simulator/internal/variables"
	"github.com/ocppsim/simulator/internal/wire"
	"github.com/ocppsim/simulator/pkg/contracts"
	"github.com/ocppsim/simulator/pkg/models"
)

// Deps bundles the collaborators a Station needs that are built once at
// registry/process scope and shared (auth chain, certificate manager).
type Deps struct {
	AuthChain   contracts.AuthStrategyChain
	CertManager contracts.CertificateManager
	Events      chan<- contracts.StationEvent
}

// Station owns one simulated charge point's runtime state: its session,
// connectors, transactions, and configuration stores.
type Station struct {
	mu      sync.Mutex
	info    *models.Station
	sess    *session.Session
	vars    *variables.Manager
	cfgKeys *configkeys.Store
	deps    Deps
	log     zerolog.Logger

	heartbeatCancel context.CancelFunc
	meterCancels    map[int]context.CancelFunc
	lastCallAt      time.Time
}

// New builds a Station bound to its persisted/template-resolved state and
// the collaborators it needs for authorization and certificate handling.
func New(info *models.Station, vars *variables.Manager, cfgKeys *configkeys.Store, deps Deps, log zerolog.Logger) *Station {
	return &Station{info: info, vars: vars, cfgKeys: cfgKeys, deps: deps, log: log, meterCancels: make(map[int]context.CancelFunc)}
}

func (s *Station) HashID() string { return s.info.HashID }

// AttachSession wires the Session this station uses to talk to the CSMS.
// Call before Start.
func (s *Station) AttachSession(sess *session.Session) {
	s.sess = sess
}

// SetAuthChain wires the authorization strategy chain once its Remote
// strategy's transport (this station's own session) exists. Call before
// Start.
func (s *Station) SetAuthChain(chain contracts.AuthStrategyChain) {
	s.deps.AuthChain = chain
}

// Start transitions Stopped → Starting, emits BootNotification through the
// session's onOpen hook (wired by the caller via session.New), and is a
// no-op if already started.
func (s *Station) Start(ctx context.Context) {
	s.mu.Lock()
	if s.info.State != models.StationStopped {
		s.mu.Unlock()
		return
	}
	s.info.State = models.StationStarting
	s.mu.Unlock()

	s.emitEvent(contracts.EventStarted, nil)
	go s.sess.Run(ctx)
}

// Stop sends Stop for every active transaction with the given reason,
// marks every connector Unavailable, stops the heartbeat timer, and closes
// the socket (§4.3).
func (s *Station) Stop(ctx context.Context, reason models.StopReason) {
	s.mu.Lock()
	for _, c := range s.info.Connectors {
		if c.Transaction != nil && c.Transaction.Active() {
			s.stopTransactionLocked(ctx, c, reason)
		}
		c.Availability = models.AvailabilityInoperative
		c.Status = models.StatusUnavailable
	}
	if s.heartbeatCancel != nil {
		s.heartbeatCancel()
	}
	s.info.State = models.StationStopped
	s.mu.Unlock()

	_ = s.sess.Close()
	s.emitEvent(contracts.EventStopped, nil)
}

// OnBootResponse applies a BootNotification(.conf) response (§4.3).
func (s *Station) OnBootResponse(ctx context.Context, status string, intervalSeconds int) {
	s.mu.Lock()
	switch status {
	case "Accepted":
		s.info.State = models.StationAccepted
		s.info.Accepted = true
		s.info.HeartbeatInterval = time.Duration(intervalSeconds) * time.Second
		now := time.Now()
		s.info.BootedAt = &now
		hbCtx, cancel := context.WithCancel(ctx)
		s.heartbeatCancel = cancel
		go s.heartbeatLoop(hbCtx)
	case "Pending":
		s.info.State = models.StationPending
	case "Rejected":
		s.info.State = models.StationRejected
	default:
		s.info.State = models.StationRejected
	}
	s.mu.Unlock()

	if status == "Accepted" {
		for _, c := range s.sortedConnectors() {
			s.sendStatusNotification(c)
		}
		s.emitEvent(contracts.EventAccepted, nil)
	}
}

// BootHook sends BootNotification on every (re)connect and applies the
// response, wired as the Session's onOpen hook (§4.3, §8 invariant 6).
func (s *Station) BootHook(ctx context.Context) error {
	s.mu.Lock()
	info := s.info.Info
	s.mu.Unlock()

	var bootErr error
	ctx, span := telemetry.StartStationSpan(ctx, "boot", s.info.HashID, string(info.OCPPVersion))
	defer func() { telemetry.RecordOutcome(span, bootErr) }()

	var payload interface{}
	if info.OCPPVersion == models.OCPPVersion2011 {
		payload = map[string]interface{}{
			"reason": "PowerUp",
			"chargingStation": map[string]interface{}{
				"model":           info.ChargePointModel,
				"vendorName":      info.ChargePointVendor,
				"firmwareVersion": info.FirmwareVersion,
				"serialNumber":    info.ChargeBoxSerialNumber,
			},
		}
	} else {
		payload = map[string]interface{}{
			"chargePointVendor":    info.ChargePointVendor,
			"chargePointModel":     info.ChargePointModel,
			"firmwareVersion":      info.FirmwareVersion,
			"chargeBoxSerialNumber": info.ChargeBoxSerialNumber,
		}
	}

	resp, err := s.sess.Call(ctx, "BootNotification", payload)
	if err != nil {
		bootErr = err
		return bootErr
	}
	m, ok := resp.(map[string]interface{})
	if !ok {
		bootErr = fmt.Errorf("unexpected BootNotification response shape")
		return bootErr
	}
	status, _ := m["status"].(string)
	interval := 300
	if iv, ok := m["interval"].(float64); ok {
		interval = int(iv)
	}
	s.OnBootResponse(ctx, status, interval)
	return nil
}

func (s *Station) sortedConnectors() []*models.ConnectorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ConnectorState, 0, len(s.info.Connectors))
	for _, c := range s.info.Connectors {
		out = append(out, c)
	}
	return out
}

func (s *Station) sendStatusNotification(c *models.ConnectorState) {
	s.sess.Enqueue("StatusNotification", map[string]interface{}{
		"connectorId":     c.ConnectorID,
		"connectorStatus": c.Status,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Station) heartbeatLoop(ctx context.Context) {
	s.mu.Lock()
	interval := s.info.HeartbeatInterval
	s.mu.Unlock()
	if interval <= 0 {
		interval = 300 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			suppress := time.Since(s.lastCallAt) < interval
			s.mu.Unlock()
			if suppress {
				continue
			}
			s.sess.Enqueue("Heartbeat", map[string]interface{}{})
		}
	}
}

// meterInterval reads the ChargingStation TxUpdatedInterval variable,
// falling back to 60s when it is unset or malformed (§4.4).
func (s *Station) meterInterval() time.Duration {
	results := s.vars.GetVariables([]variables.GetVariableDatum{
		{Component: models.Component{Name: "ChargingStation"}, Variable: models.Variable{Name: "TxUpdatedInterval"}},
	})
	if len(results) == 1 && results[0].AttributeStatus == variables.GetAccepted {
		if secs, err := strconv.Atoi(results[0].AttributeValue); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 60 * time.Second
}

// startMeterLoop launches (or restarts) the periodic meter-value sampler
// for connectorID while its transaction is active. Caller holds s.mu. Runs
// off context.Background() rather than the triggering request's context —
// a control-plane-initiated start must not have its sampler cancelled the
// moment the HTTP handler that started it returns.
func (s *Station) startMeterLoop(c *models.ConnectorState) {
	if prev, ok := s.meterCancels[c.ConnectorID]; ok {
		prev()
	}
	interval := s.meterInterval()
	loopCtx, cancel := context.WithCancel(context.Background())
	s.meterCancels[c.ConnectorID] = cancel
	go s.meterLoop(loopCtx, c.ConnectorID, interval)
}

// stopMeterLoop cancels the sampler started for connectorID, if any. Caller
// holds s.mu.
func (s *Station) stopMeterLoop(connectorID int) {
	if cancel, ok := s.meterCancels[connectorID]; ok {
		cancel()
		delete(s.meterCancels, connectorID)
	}
}

func (s *Station) meterLoop(ctx context.Context, connectorID int, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleMeterTick(connectorID, interval)
		}
	}
}

// sampleMeterTick draws one meter sample for connectorID's active
// transaction and emits the OCPP-version-appropriate periodic event
// (2.0.1 TransactionEvent(Updated), 1.6 MeterValues) (§4.3, §4.4).
func (s *Station) sampleMeterTick(connectorID int, interval time.Duration) {
	s.mu.Lock()
	c := s.info.Connectors[connectorID]
	if c == nil || c.Transaction == nil || !c.Transaction.Active() {
		s.mu.Unlock()
		return
	}
	params := meter.Params{
		MaxPower:       s.info.Info.MaxPower,
		NominalVoltage: s.info.Info.NominalVoltage,
		NumberOfPhases: s.info.Info.NumberOfPhases,
		PowerDivider:   c.PowerDivider,
		MeasurandList:  c.MeasurandList,
	}
	mv, newEnergy, err := meter.Sample(params, c.EnergyRegisterWh, interval, nil)
	if err != nil {
		s.mu.Unlock()
		s.log.Warn().Err(err).Int("connectorId", connectorID).Msg("meter sample skipped")
		return
	}
	c.EnergyRegisterWh = newEnergy
	tx := c.Transaction
	tx.MeterNowWh = newEnergy
	version := s.info.Info.OCPPVersion
	seq := 0
	if version != models.OCPPVersion16 {
		seq = tx.NextSeqNo()
	}
	evseID, txIntID, txStringID := c.EvseID, tx.IntID, tx.StringID
	s.mu.Unlock()

	s.sess.Enqueue(meterEventAction(version), meterEventPayload(version, connectorID, evseID, txIntID, txStringID, seq, mv))
}

func meterEventAction(version models.OCPPVersion) string {
	if version == models.OCPPVersion16 {
		return "MeterValues"
	}
	return "TransactionEvent"
}

func meterEventPayload(version models.OCPPVersion, connectorID, evseID, txIntID int, txStringID string, seq int, mv *meter.MeterValue) map[string]interface{} {
	sampled := make([]map[string]interface{}, 0, len(mv.SampledValue))
	for _, sv := range mv.SampledValue {
		entry := map[string]interface{}{"value": sv.Value, "measurand": sv.Measurand}
		if sv.Unit != "" {
			entry["unit"] = sv.Unit
		}
		if sv.Phase != "" {
			entry["phase"] = sv.Phase
		}
		sampled = append(sampled, entry)
	}
	meterValue := map[string]interface{}{
		"timestamp":    mv.Timestamp.UTC().Format(time.RFC3339),
		"sampledValue": sampled,
	}

	if version == models.OCPPVersion16 {
		return map[string]interface{}{
			"connectorId":   connectorID,
			"transactionId": txIntID,
			"meterValue":    []interface{}{meterValue},
		}
	}
	return map[string]interface{}{
		"eventType":       "Updated",
		"timestamp":       meterValue["timestamp"],
		"triggerReason":   "MeterValuePeriodic",
		"seqNo":           seq,
		"transactionInfo": map[string]interface{}{"transactionId": txStringID},
		"evse":            map[string]interface{}{"id": evseID, "connectorId": connectorID},
		"meterValue":      []interface{}{meterValue},
	}
}

func (s *Station) noteCall() {
	s.mu.Lock()
	s.lastCallAt = time.Now()
	s.mu.Unlock()
}

func (s *Station) emitEvent(kind contracts.StationEventKind, payload map[string]interface{}) {
	if s.deps.Events == nil {
		return
	}
	select {
	case s.deps.Events <- contracts.StationEvent{HashID: s.info.HashID, Kind: kind, Timestamp: time.Now(), Payload: payload}:
	default:
	}
}

// HandleServerCall implements session.ServerRequestHandler, dispatching an
// inbound CALL by Action to the matching command handler (§4.3).
func (s *Station) HandleServerCall(ctx context.Context, action string, payload json.RawMessage) (interface{}, error) {
	s.noteCall()
	handler, ok := s.commandTable()[action]
	if !ok {
		return nil, wire.NewOCPPError(wire.NotImplemented, fmt.Sprintf("action %s not implemented", action), nil)
	}
	return handler(ctx, payload)
}

type commandHandler func(ctx context.Context, payload json.RawMessage) (interface{}, error)

func (s *Station) commandTable() map[string]commandHandler {
	return map[string]commandHandler{
		"Reset":                     s.handleReset,
		"UnlockConnector":           s.handleUnlockConnector,
		"RemoteStartTransaction":    s.handleRemoteStart,
		"RequestStartTransaction":   s.handleRemoteStart,
		"RemoteStopTransaction":     s.handleRemoteStop,
		"RequestStopTransaction":    s.handleRemoteStop,
		"ChangeConfiguration":       s.handleChangeConfiguration,
		"GetConfiguration":          s.handleGetConfiguration,
		"SetVariables":              s.handleSetVariables,
		"GetVariables":              s.handleGetVariables,
		"CertificateSigned":         s.handleCertificateSigned,
		"InstallCertificate":        s.handleInstallCertificate,
		"DeleteCertificate":         s.handleDeleteCertificate,
		"SignCertificate":           s.handleSignCertificate,
	}
}

// RemoteStartForControlPlane drives the same start-transaction path as a
// CSMS-initiated RemoteStartTransaction, for use by the control-plane
// endpoint's startTransaction procedure (§6).
func (s *Station) RemoteStartForControlPlane(ctx context.Context, connectorID int, idTag string) error {
	payload, err := json.Marshal(remoteStartRequest{ConnectorID: connectorID, IDTag: idTag})
	if err != nil {
		return err
	}
	resp, err := s.handleRemoteStart(ctx, payload)
	if err != nil {
		return err
	}
	if m, ok := resp.(map[string]interface{}); ok && m["status"] != "Accepted" {
		return fmt.Errorf("start transaction rejected: %v", m["status"])
	}
	return nil
}

// RemoteStopForControlPlane drives the same stop-transaction path as a
// CSMS-initiated RemoteStopTransaction, for use by the control-plane
// endpoint's stopTransaction procedure (§6).
func (s *Station) RemoteStopForControlPlane(ctx context.Context, transactionID string) error {
	idJSON, err := json.Marshal(transactionID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(remoteStopRequest{TransactionID: idJSON})
	if err != nil {
		return err
	}
	resp, err := s.handleRemoteStop(ctx, payload)
	if err != nil {
		return err
	}
	if m, ok := resp.(map[string]interface{}); ok && m["status"] != "Accepted" {
		return fmt.Errorf("stop transaction rejected: %v", m["status"])
	}
	return nil
}

func (s *Station) findConnector(connectorID int) *models.ConnectorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Connectors[connectorID]
}

// StopTransactionOnConnector stops whatever transaction is active on
// connectorID, a no-op if none is. Used by the load generator's
// StopTransaction hook, which only knows the connector it started on.
func (s *Station) StopTransactionOnConnector(ctx context.Context, connectorID int, reason models.StopReason) error {
	c := s.findConnector(connectorID)
	if c == nil {
		return fmt.Errorf("unknown connector %d", connectorID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Transaction == nil || !c.Transaction.Active() {
		return nil
	}
	s.stopTransactionLocked(ctx, c, reason)
	return nil
}

func (s *Station) authorize(ctx context.Context, identifier models.UnifiedIdentifier) (*models.AuthorizationResult, error) {
	if s.deps.AuthChain == nil {
		return &models.AuthorizationResult{Status: models.AuthAccepted}, nil
	}
	s.mu.Lock()
	accepted := s.info.State == models.StationAccepted
	s.mu.Unlock()
	req := contracts.AuthorizeRequest{
		HashID:           s.info.HashID,
		Identifier:       identifier,
		Version:          s.info.Info.OCPPVersion,
		StationOnline:    s.sess != nil && s.sess.Online(),
		StationAccepted:  accepted,
		AllowOffline:     true,
	}
	return s.deps.AuthChain.Authorize(ctx, req)
}
