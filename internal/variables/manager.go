package variables

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/ocppsim/simulator/pkg/models"
)

// Limits bounds per-message item/byte counts and per-value sizes (§4.6).
// Zero/negative fields fall back to DefaultLimits.
type Limits struct {
	ItemsPerMessageGetVariables int
	ItemsPerMessageSetVariables int
	BytesPerMessageGetVariables int
	BytesPerMessageSetVariables int
	ConfigurationValueSize      int
	ValueSize                   int
}

// DefaultLimits are the absolute fallbacks used when both the
// configuration- and value-size limits are non-positive (§4.6).
var DefaultLimits = Limits{
	ItemsPerMessageGetVariables: 10,
	ItemsPerMessageSetVariables: 10,
	BytesPerMessageGetVariables: 8192,
	BytesPerMessageSetVariables: 8192,
	ConfigurationValueSize:      1000,
	ValueSize:                   2500,
}

// effectiveValueSize is the min of the two positive configured limits,
// falling back to the absolute default when both are non-positive (§4.6).
func effectiveValueSize(l Limits) int {
	a, b := l.ConfigurationValueSize, l.ValueSize
	switch {
	case a > 0 && b > 0:
		if a < b {
			return a
		}
		return b
	case a > 0:
		return a
	case b > 0:
		return b
	default:
		return DefaultLimits.ValueSize
	}
}

func itemsLimit(configured, fallback int) int {
	if configured > 0 {
		return configured
	}
	return fallback
}

// Manager implements GetVariables / SetVariables against a Registry (§4.6).
type Manager struct {
	registry *Registry
	limits   Limits
}

// NewManager wires a Manager to its registry and per-message limits.
func NewManager(registry *Registry, limits Limits) *Manager {
	return &Manager{registry: registry, limits: limits}
}

// ── GetVariables ─────────────────────────────────────────────

// GetVariableDatum is one request entry for GetVariables.
type GetVariableDatum struct {
	Component     models.Component
	Variable      models.Variable
	AttributeType models.AttributeType // empty defaults to Actual
}

// GetVariableResult is one response entry for GetVariables.
type GetVariableResult struct {
	Component       models.Component
	Variable        models.Variable
	AttributeType   models.AttributeType
	AttributeStatus GetVariableStatus
	AttributeValue  string
	ReasonCode      ReasonCode
}

// MarshalJSON shapes the wire form per the OCPP 2.0.1 GetVariableResult
// schema, nesting ReasonCode under attributeStatusInfo rather than exposing
// the flat Go field.
func (r GetVariableResult) MarshalJSON() ([]byte, error) {
	w := struct {
		AttributeStatus     GetVariableStatus    `json:"attributeStatus"`
		AttributeStatusInfo *statusInfo          `json:"attributeStatusInfo,omitempty"`
		AttributeValue      string               `json:"attributeValue,omitempty"`
		Component           models.Component     `json:"component"`
		Variable            models.Variable      `json:"variable"`
		AttributeType       models.AttributeType `json:"attributeType,omitempty"`
	}{
		AttributeStatus: r.AttributeStatus,
		AttributeValue:  r.AttributeValue,
		Component:       r.Component,
		Variable:        r.Variable,
		AttributeType:   r.AttributeType,
	}
	if r.ReasonCode != "" {
		w.AttributeStatusInfo = &statusInfo{ReasonCode: r.ReasonCode}
	}
	return json.Marshal(w)
}

// GetVariables resolves one result per request, order-preserving (§8
// invariant 3, §4.6 B06.FR.01/FR.02).
func (m *Manager) GetVariables(requests []GetVariableDatum) []GetVariableResult {
	itemsLim := itemsLimit(m.limits.ItemsPerMessageGetVariables, DefaultLimits.ItemsPerMessageGetVariables)
	if len(requests) > itemsLim {
		return blanketGetRejection(requests)
	}

	results := make([]GetVariableResult, len(requests))
	for i, req := range requests {
		results[i] = m.getVariable(req)
	}

	bytesLim := itemsLimit(m.limits.BytesPerMessageGetVariables, DefaultLimits.BytesPerMessageGetVariables)
	if encodedSize(results) > bytesLim {
		return blanketGetRejection(requests)
	}
	return results
}

func blanketGetRejection(requests []GetVariableDatum) []GetVariableResult {
	results := make([]GetVariableResult, len(requests))
	for i, req := range requests {
		attrType := req.AttributeType
		if attrType == "" {
			attrType = models.AttributeActual
		}
		results[i] = GetVariableResult{
			Component:       req.Component,
			Variable:        req.Variable,
			AttributeType:   attrType,
			AttributeStatus: GetRejected,
		}
	}
	return results
}

func (m *Manager) getVariable(req GetVariableDatum) GetVariableResult {
	attrType := req.AttributeType
	if attrType == "" {
		attrType = models.AttributeActual
	}
	result := GetVariableResult{Component: req.Component, Variable: req.Variable, AttributeType: attrType}

	e, componentKnown, variableKnown := m.registry.lookup(req.Component, req.Variable)
	if !variableKnown {
		if componentKnown {
			result.AttributeStatus = GetUnknownVariable
		} else {
			result.AttributeStatus = GetUnknownComponent
		}
		return result
	}

	attr, ok := e.attributes[attrType]
	if !ok {
		// The variable is declared but this attribute type never got a
		// value — self-heal by inserting a default-valued attribute rather
		// than permanently refusing it (§4.6).
		attr = m.registry.selfHeal(req.Component, req.Variable, attrType)
	}

	if attr.Mutability == models.MutabilityWriteOnly {
		result.AttributeStatus = GetRejected
		result.ReasonCode = ReasonUnsupportedParam
		return result
	}

	result.AttributeStatus = GetAccepted
	result.AttributeValue = attr.Value
	return result
}

func encodedSize(v interface{}) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}

// ── SetVariables ─────────────────────────────────────────────

// SetVariableDatum is one request entry for SetVariables.
type SetVariableDatum struct {
	Component     models.Component
	Variable      models.Variable
	AttributeType models.AttributeType // empty defaults to Actual
	AttributeValue string
}

// SetVariableResult is one response entry for SetVariables.
type SetVariableResult struct {
	Component       models.Component
	Variable        models.Variable
	AttributeType   models.AttributeType
	AttributeStatus SetVariableStatus
	ReasonCode      ReasonCode
}

// MarshalJSON shapes the wire form per the OCPP 2.0.1 SetVariableResult
// schema, nesting ReasonCode under attributeStatusInfo.
func (r SetVariableResult) MarshalJSON() ([]byte, error) {
	w := struct {
		AttributeStatus     SetVariableStatus    `json:"attributeStatus"`
		AttributeStatusInfo *statusInfo          `json:"attributeStatusInfo,omitempty"`
		Component           models.Component     `json:"component"`
		Variable            models.Variable      `json:"variable"`
		AttributeType       models.AttributeType `json:"attributeType,omitempty"`
	}{
		AttributeStatus: r.AttributeStatus,
		Component:       r.Component,
		Variable:        r.Variable,
		AttributeType:   r.AttributeType,
	}
	if r.ReasonCode != "" {
		w.AttributeStatusInfo = &statusInfo{ReasonCode: r.ReasonCode}
	}
	return json.Marshal(w)
}

// statusInfo is the shared wire shape for OCPP's statusInfo {reasonCode,
// additionalInfo} object; additionalInfo is never populated here.
type statusInfo struct {
	ReasonCode ReasonCode `json:"reasonCode"`
}

// SetVariables applies one result per request, order-preserving.
func (m *Manager) SetVariables(requests []SetVariableDatum) []SetVariableResult {
	itemsLim := itemsLimit(m.limits.ItemsPerMessageSetVariables, DefaultLimits.ItemsPerMessageSetVariables)
	if len(requests) > itemsLim {
		return blanketSetRejection(requests, ReasonTooManyElements)
	}

	valueSizeLim := effectiveValueSize(m.limits)
	for _, req := range requests {
		if len(req.AttributeValue) > valueSizeLim {
			return blanketSetRejection(requests, ReasonTooLargeElement)
		}
	}

	results := make([]SetVariableResult, len(requests))
	for i, req := range requests {
		results[i] = m.setVariable(req)
	}

	bytesLim := itemsLimit(m.limits.BytesPerMessageSetVariables, DefaultLimits.BytesPerMessageSetVariables)
	if encodedSize(results) > bytesLim {
		return blanketSetRejection(requests, ReasonTooLargeElement)
	}
	return results
}

func blanketSetRejection(requests []SetVariableDatum, reason ReasonCode) []SetVariableResult {
	results := make([]SetVariableResult, len(requests))
	for i, req := range requests {
		attrType := req.AttributeType
		if attrType == "" {
			attrType = models.AttributeActual
		}
		results[i] = SetVariableResult{
			Component:       req.Component,
			Variable:        req.Variable,
			AttributeType:   attrType,
			AttributeStatus: SetRejected,
			ReasonCode:      reason,
		}
	}
	return results
}

func (m *Manager) setVariable(req SetVariableDatum) SetVariableResult {
	attrType := req.AttributeType
	if attrType == "" {
		attrType = models.AttributeActual
	}
	result := SetVariableResult{Component: req.Component, Variable: req.Variable, AttributeType: attrType}

	e, componentKnown, variableKnown := m.registry.lookup(req.Component, req.Variable)
	if !variableKnown {
		if componentKnown {
			result.AttributeStatus = SetUnknownVariable
		} else {
			result.AttributeStatus = SetUnknownComponent
		}
		return result
	}

	attr, ok := e.attributes[attrType]
	if !ok {
		// Declared variable, never-set attribute type: self-heal rather
		// than permanently refusing it (§4.6).
		attr = m.registry.selfHeal(req.Component, req.Variable, attrType)
	}

	if attr.Mutability == models.MutabilityReadOnly {
		result.AttributeStatus = SetRejected
		result.ReasonCode = ReasonReadOnly
		return result
	}

	if attr.Immutable && attr.Value != req.AttributeValue {
		result.AttributeStatus = SetRejected
		result.ReasonCode = ReasonImmutableVariable
		return result
	}

	if attr.Value == req.AttributeValue {
		// Unchanged value is an accepted no-op (§8 invariant 4) — even for
		// attributes that would otherwise be immutable or reboot-required.
		result.AttributeStatus = SetAccepted
		return result
	}

	if attr.Constraints != nil {
		if violation := validateConstraints(req.AttributeValue, attr.DataType, attr.Constraints); violation {
			result.AttributeStatus = SetRejected
			result.ReasonCode = ReasonPropertyConstraintViolation
			return result
		}
	}

	attr.Value = req.AttributeValue

	if attr.RebootRequired {
		result.AttributeStatus = SetRebootRequired
		result.ReasonCode = ReasonChangeRequiresReboot
		return result
	}

	result.AttributeStatus = SetAccepted
	result.ReasonCode = ReasonNoError
	return result
}

func validateConstraints(value string, dataType models.DataType, c *models.VariableConstraints) (violation bool) {
	if c.MaxLength != nil && len(value) > *c.MaxLength {
		return true
	}
	if c.Regex != "" {
		re, err := regexp.Compile(c.Regex)
		if err == nil && !re.MatchString(value) {
			return true
		}
	}
	if len(c.ValidValues) > 0 {
		found := false
		for _, v := range c.ValidValues {
			if v == value {
				found = true
				break
			}
		}
		if !found {
			return true
		}
	}
	if dataType == models.DataTypeInteger || dataType == models.DataTypeDecimal {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return true
		}
		if c.MinValue != nil && f < *c.MinValue {
			return true
		}
		if c.MaxValue != nil && f > *c.MaxValue {
			return true
		}
	}
	return false
}

// SelfHeal exposes registry self-healing for callers that need to insert a
// default-valued attribute on first read of a known-but-unset variable.
func (m *Manager) SelfHeal(component models.Component, variable models.Variable, attrType models.AttributeType) *models.VariableAttribute {
	return m.registry.selfHeal(component, variable, attrType)
}

// ResetRuntimeOverrides restores non-persistent attributes to their
// init-time defaults.
func (m *Manager) ResetRuntimeOverrides() {
	m.registry.ResetRuntimeOverrides()
}
