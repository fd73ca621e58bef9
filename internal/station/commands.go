package station

import (
	"context"
	"encoding/json"

	"github.com/ocppsim/simulator/internal/variables"
	"github.com/ocppsim/simulator/internal/wire"
	"github.com/ocppsim/simulator/pkg/models"
)

// ── Reset ─────────────────────────────────────────────────────

type resetRequest struct {
	Type   string `json:"type"`
	EvseID *int   `json:"evseId,omitempty"`
}

func (s *Station) handleReset(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req resetRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, wire.NewOCPPError(wire.FormatViolation, "malformed Reset payload", nil)
	}

	s.mu.Lock()
	if req.EvseID != nil {
		if !s.info.Info.SupportsEVSEs {
			s.mu.Unlock()
			return map[string]interface{}{"status": "Rejected", "reasonCode": "UnsupportedRequest"}, nil
		}
		if _, ok := s.info.Evses[*req.EvseID]; !ok {
			s.mu.Unlock()
			return map[string]interface{}{"status": "Rejected", "reasonCode": "UnknownEvse"}, nil
		}
	}

	hasActiveTx := false
	for _, c := range s.info.Connectors {
		if c.Transaction != nil && c.Transaction.Active() {
			hasActiveTx = true
			break
		}
	}

	immediate := req.Type == "Immediate" || req.Type == "Hard"
	if !immediate && hasActiveTx {
		s.mu.Unlock()
		return map[string]interface{}{"status": "Scheduled", "reasonCode": "NoError"}, nil
	}

	reason := models.StopReasonHardReset
	if req.Type == "Soft" {
		reason = models.StopReasonSoftReset
	}
	for _, c := range s.info.Connectors {
		if c.Transaction != nil && c.Transaction.Active() {
			s.stopTransactionLocked(ctx, c, reason)
		}
	}
	s.mu.Unlock()
	return map[string]interface{}{"status": "Accepted", "reasonCode": "NoError"}, nil
}

// ── UnlockConnector ───────────────────────────────────────────

type unlockConnectorRequest struct {
	ConnectorID int `json:"connectorId"`
}

func (s *Station) handleUnlockConnector(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req unlockConnectorRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, wire.NewOCPPError(wire.FormatViolation, "malformed UnlockConnector payload", nil)
	}
	if req.ConnectorID == models.ReservedStationWideConnector {
		return map[string]interface{}{"status": "UnlockNotSupported"}, nil
	}

	c := s.findConnector(req.ConnectorID)
	if c == nil {
		return map[string]interface{}{"status": "UnlockNotSupported"}, nil
	}

	s.mu.Lock()
	if c.Transaction != nil && c.Transaction.Active() {
		s.stopTransactionLocked(ctx, c, models.StopReasonUnlockCommand)
	}
	s.mu.Unlock()
	return map[string]interface{}{"status": "Unlocked"}, nil
}

// ── RemoteStart / RequestStartTransaction ────────────────────

type remoteStartRequest struct {
	ConnectorID int    `json:"connectorId"`
	IDTag       string `json:"idTag"`
	EvseID      *int   `json:"evseId"`
	IDToken     *struct {
		IDToken string `json:"idToken"`
	} `json:"idToken"`
}

func (s *Station) handleRemoteStart(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req remoteStartRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, wire.NewOCPPError(wire.FormatViolation, "malformed start-transaction payload", nil)
	}

	connectorID := req.ConnectorID
	if req.EvseID != nil {
		connectorID = *req.EvseID
	}
	if connectorID == 0 {
		connectorID = 1
	}

	idTag := req.IDTag
	if req.IDToken != nil {
		idTag = req.IDToken.IDToken
	}

	c := s.findConnector(connectorID)
	if c == nil {
		return map[string]interface{}{"status": "Rejected"}, nil
	}

	s.mu.Lock()
	available := c.IsAvailableForTransaction()
	s.mu.Unlock()
	if !available {
		return map[string]interface{}{"status": "Rejected"}, nil
	}

	identifier := models.UnifiedIdentifier{Type: models.IdentifierIDTag, Value: idTag, OCPPVersion: s.info.Info.OCPPVersion}
	result, err := s.authorize(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if result == nil || !result.Accepted() {
		return map[string]interface{}{"status": "Rejected"}, nil
	}

	s.mu.Lock()
	tx := s.startTransactionLocked(ctx, c, idTag)
	s.mu.Unlock()

	resp := map[string]interface{}{"status": "Accepted"}
	if s.info.Info.OCPPVersion == models.OCPPVersion16 {
		resp["transactionId"] = tx.IntID
	} else {
		resp["transactionId"] = tx.StringID
	}
	return resp, nil
}

// ── RemoteStop / RequestStopTransaction ──────────────────────

type remoteStopRequest struct {
	TransactionID json.RawMessage `json:"transactionId"`
}

func (s *Station) handleRemoteStop(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req remoteStopRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, wire.NewOCPPError(wire.FormatViolation, "malformed stop-transaction payload", nil)
	}

	var txID string
	var intTxID int
	isString := json.Unmarshal(req.TransactionID, &txID) == nil
	if !isString {
		_ = json.Unmarshal(req.TransactionID, &intTxID)
	}

	if isString {
		if txID == "" || len(txID) > models.MaxIdentifierLength2_0_1 {
			return map[string]interface{}{"status": "Rejected"}, nil
		}
		c := s.findConnectorByTransaction(txID)
		if c == nil {
			return map[string]interface{}{"status": "Rejected"}, nil
		}
		s.mu.Lock()
		s.stopTransactionLocked(ctx, c, models.StopReasonRemote)
		s.mu.Unlock()
		return map[string]interface{}{"status": "Accepted"}, nil
	}

	c := s.findConnectorByIntTransaction(intTxID)
	if c == nil {
		return map[string]interface{}{"status": "Rejected"}, nil
	}
	s.mu.Lock()
	s.stopTransactionLocked(ctx, c, models.StopReasonRemote)
	s.mu.Unlock()
	return map[string]interface{}{"status": "Accepted"}, nil
}

func (s *Station) findConnectorByIntTransaction(id int) *models.ConnectorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.info.Connectors {
		if c.Transaction != nil && c.Transaction.Active() && c.Transaction.IntID == id {
			return c
		}
	}
	return nil
}

// ── ChangeConfiguration / GetConfiguration (1.6) ─────────────

type changeConfigurationRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Station) handleChangeConfiguration(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req changeConfigurationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, wire.NewOCPPError(wire.FormatViolation, "malformed ChangeConfiguration payload", nil)
	}
	status := s.cfgKeys.ChangeConfiguration(req.Key, req.Value)
	return map[string]interface{}{"status": status}, nil
}

type getConfigurationRequest struct {
	Key []string `json:"key,omitempty"`
}

func (s *Station) handleGetConfiguration(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req getConfigurationRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, wire.NewOCPPError(wire.FormatViolation, "malformed GetConfiguration payload", nil)
		}
	}
	result := s.cfgKeys.GetConfiguration(req.Key)
	return map[string]interface{}{
		"configurationKey": result.ConfigurationKey,
		"unknownKey":       result.UnknownKey,
	}, nil
}

// ── SetVariables / GetVariables (2.0.1) ──────────────────────

type variableComponentVariable struct {
	Component     models.Component     `json:"component"`
	Variable      models.Variable      `json:"variable"`
	AttributeType models.AttributeType `json:"attributeType,omitempty"`
}

type setVariablesRequest struct {
	SetVariableData []struct {
		variableComponentVariable
		AttributeValue string `json:"attributeValue"`
	} `json:"setVariableData"`
}

func (s *Station) handleSetVariables(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req setVariablesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, wire.NewOCPPError(wire.FormatViolation, "malformed SetVariables payload", nil)
	}
	data := make([]variables.SetVariableDatum, len(req.SetVariableData))
	for i, d := range req.SetVariableData {
		data[i] = variables.SetVariableDatum{
			Component:      d.Component,
			Variable:       d.Variable,
			AttributeType:  d.AttributeType,
			AttributeValue: d.AttributeValue,
		}
	}
	results := s.vars.SetVariables(data)
	return map[string]interface{}{"setVariableResult": results}, nil
}

type getVariablesRequest struct {
	GetVariableData []variableComponentVariable `json:"getVariableData"`
}

func (s *Station) handleGetVariables(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req getVariablesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, wire.NewOCPPError(wire.FormatViolation, "malformed GetVariables payload", nil)
	}
	data := make([]variables.GetVariableDatum, len(req.GetVariableData))
	for i, d := range req.GetVariableData {
		data[i] = variables.GetVariableDatum{Component: d.Component, Variable: d.Variable, AttributeType: d.AttributeType}
	}
	results := s.vars.GetVariables(data)
	return map[string]interface{}{"getVariableResult": results}, nil
}

// ── Certificate management (2.0.1) ───────────────────────────

type certificateSignedRequest struct {
	CertificateChain string `json:"certificateChain"`
	CertificateType  string `json:"certificateType,omitempty"`
}

func (s *Station) handleCertificateSigned(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req certificateSignedRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, wire.NewOCPPError(wire.FormatViolation, "malformed CertificateSigned payload", nil)
	}
	if s.deps.CertManager == nil {
		return map[string]interface{}{"status": "Rejected"}, nil
	}
	if err := s.deps.CertManager.InstallCertificate(ctx, s.info.HashID, req.CertificateType, req.CertificateChain); err != nil {
		return map[string]interface{}{"status": "Rejected"}, nil
	}
	if req.CertificateType == "ChargingStationCertificate" {
		go func() { _ = s.sess.Close() }()
	}
	return map[string]interface{}{"status": "Accepted"}, nil
}

type installCertificateRequest struct {
	CertificateType string `json:"certificateType"`
	Certificate     string `json:"certificate"`
}

func (s *Station) handleInstallCertificate(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req installCertificateRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, wire.NewOCPPError(wire.FormatViolation, "malformed InstallCertificate payload", nil)
	}
	if s.deps.CertManager == nil {
		return map[string]interface{}{"status": "Rejected"}, nil
	}
	if err := s.deps.CertManager.InstallCertificate(ctx, s.info.HashID, req.CertificateType, req.Certificate); err != nil {
		return map[string]interface{}{"status": "Rejected"}, nil
	}
	return map[string]interface{}{"status": "Accepted"}, nil
}

type signCertificateRequest struct {
	CSR string `json:"csr"`
}

func (s *Station) handleSignCertificate(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req signCertificateRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, wire.NewOCPPError(wire.FormatViolation, "malformed SignCertificate payload", nil)
	}
	if s.deps.CertManager == nil {
		return map[string]interface{}{"status": "Rejected"}, nil
	}
	if _, err := s.deps.CertManager.SignCertificate(ctx, s.info.HashID, req.CSR); err != nil {
		return map[string]interface{}{"status": "Rejected"}, nil
	}
	return map[string]interface{}{"status": "Accepted"}, nil
}

type deleteCertificateRequest struct {
	CertificateHashData map[string]string `json:"certificateHashData"`
}

func (s *Station) handleDeleteCertificate(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req deleteCertificateRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, wire.NewOCPPError(wire.FormatViolation, "malformed DeleteCertificate payload", nil)
	}
	if s.deps.CertManager == nil {
		return map[string]interface{}{"status": "NotFound"}, nil
	}
	if err := s.deps.CertManager.DeleteCertificate(ctx, s.info.HashID, req.CertificateHashData); err != nil {
		return map[string]interface{}{"status": "NotFound"}, nil
	}
	return map[string]interface{}{"status": "Accepted"}, nil
}
