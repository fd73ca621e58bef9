package variables

import (
	"testing"

	"github.com/ocppsim/simulator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chargingStation() models.Component { return models.Component{Name: "ChargingStation"} }

func newTestManager() *Manager {
	reg := NewRegistry()
	reg.Define(chargingStation(), models.Variable{Name: "HeartbeatInterval"}, []models.VariableAttribute{
		{Type: models.AttributeActual, Value: "60", Mutability: models.MutabilityReadWrite, DataType: models.DataTypeInteger},
	})
	reg.Define(chargingStation(), models.Variable{Name: "WebSocketPingInterval"}, []models.VariableAttribute{
		{Type: models.AttributeActual, Value: "30", Mutability: models.MutabilityReadWrite, DataType: models.DataTypeInteger},
	})
	reg.Define(chargingStation(), models.Variable{Name: "MessageTimeout"}, []models.VariableAttribute{
		{Type: models.AttributeActual, Value: "30", Mutability: models.MutabilityReadWrite, RebootRequired: true, DataType: models.DataTypeInteger},
	})
	reg.Define(chargingStation(), models.Variable{Name: "SecretKey"}, []models.VariableAttribute{
		{Type: models.AttributeActual, Value: "", Mutability: models.MutabilityWriteOnly, DataType: models.DataTypeString},
	})
	return NewManager(reg, Limits{})
}

// S2 (2.0.1 GetVariables mixed)
func TestGetVariablesScenarioS2(t *testing.T) {
	m := newTestManager()
	requests := []GetVariableDatum{
		{Component: chargingStation(), Variable: models.Variable{Name: "HeartbeatInterval"}},
		{Component: chargingStation(), Variable: models.Variable{Name: "WebSocketPingInterval"}},
		{Component: chargingStation(), Variable: models.Variable{Name: "InvalidVariable"}},
		{Component: models.Component{Name: "InvalidComponent"}, Variable: models.Variable{Name: "HeartbeatInterval"}},
	}

	results := m.GetVariables(requests)
	require.Len(t, results, 4)
	assert.Equal(t, GetAccepted, results[0].AttributeStatus)
	assert.Equal(t, "60", results[0].AttributeValue)
	assert.Equal(t, GetAccepted, results[1].AttributeStatus)
	assert.Equal(t, "30", results[1].AttributeValue)
	assert.Equal(t, GetUnknownVariable, results[2].AttributeStatus)
	assert.Empty(t, results[2].AttributeValue)
	assert.Equal(t, GetUnknownComponent, results[3].AttributeStatus)
	assert.Empty(t, results[3].AttributeValue)
}

// S3 (2.0.1 SetVariables reboot flag)
func TestSetVariablesScenarioS3(t *testing.T) {
	m := newTestManager()
	results := m.SetVariables([]SetVariableDatum{
		{Component: chargingStation(), Variable: models.Variable{Name: "MessageTimeout"}, AttributeValue: "35"},
	})
	require.Len(t, results, 1)
	assert.Equal(t, SetRebootRequired, results[0].AttributeStatus)
	assert.Equal(t, ReasonChangeRequiresReboot, results[0].ReasonCode)

	getResults := m.GetVariables([]GetVariableDatum{
		{Component: chargingStation(), Variable: models.Variable{Name: "MessageTimeout"}},
	})
	assert.Equal(t, "35", getResults[0].AttributeValue)
}

func TestSetVariablesUnchangedValueIsNoOp(t *testing.T) {
	m := newTestManager()
	results := m.SetVariables([]SetVariableDatum{
		{Component: chargingStation(), Variable: models.Variable{Name: "HeartbeatInterval"}, AttributeValue: "60"},
	})
	assert.Equal(t, SetAccepted, results[0].AttributeStatus)
}

func TestGetVariablesWriteOnlyRejected(t *testing.T) {
	m := newTestManager()
	results := m.GetVariables([]GetVariableDatum{
		{Component: chargingStation(), Variable: models.Variable{Name: "SecretKey"}},
	})
	assert.Equal(t, GetRejected, results[0].AttributeStatus)
	assert.Equal(t, ReasonUnsupportedParam, results[0].ReasonCode)
	assert.Empty(t, results[0].AttributeValue)
}

func TestGetVariablesCountAndOrderPreserved(t *testing.T) {
	m := newTestManager()
	requests := make([]GetVariableDatum, 0)
	for i := 0; i < 5; i++ {
		requests = append(requests, GetVariableDatum{Component: chargingStation(), Variable: models.Variable{Name: "HeartbeatInterval"}})
	}
	results := m.GetVariables(requests)
	assert.Len(t, results, len(requests))
	for _, r := range results {
		assert.NotEqual(t, "", r.AttributeValue)
	}
}

func TestSetVariablesReadOnlyRejected(t *testing.T) {
	reg := NewRegistry()
	reg.Define(chargingStation(), models.Variable{Name: "SerialNumber"}, []models.VariableAttribute{
		{Type: models.AttributeActual, Value: "ABC123", Mutability: models.MutabilityReadOnly, DataType: models.DataTypeString},
	})
	m := NewManager(reg, Limits{})

	results := m.SetVariables([]SetVariableDatum{
		{Component: chargingStation(), Variable: models.Variable{Name: "SerialNumber"}, AttributeValue: "XYZ"},
	})
	assert.Equal(t, SetRejected, results[0].AttributeStatus)
	assert.Equal(t, ReasonReadOnly, results[0].ReasonCode)
}

func TestSetVariablesImmutableRejected(t *testing.T) {
	reg := NewRegistry()
	reg.Define(models.Component{Name: "ClockCtrlr"}, models.Variable{Name: "DateTime"}, []models.VariableAttribute{
		{Type: models.AttributeActual, Value: "2024-01-01T00:00:00Z", Mutability: models.MutabilityReadWrite, Immutable: true, DataType: models.DataTypeDateTime},
	})
	m := NewManager(reg, Limits{})

	results := m.SetVariables([]SetVariableDatum{
		{Component: models.Component{Name: "ClockCtrlr"}, Variable: models.Variable{Name: "DateTime"}, AttributeValue: "2025-01-01T00:00:00Z"},
	})
	assert.Equal(t, SetRejected, results[0].AttributeStatus)
	assert.Equal(t, ReasonImmutableVariable, results[0].ReasonCode)
}

func TestGetVariablesBlanketRejectionOnTooManyItems(t *testing.T) {
	m := newTestManager()
	requests := make([]GetVariableDatum, DefaultLimits.ItemsPerMessageGetVariables+1)
	for i := range requests {
		requests[i] = GetVariableDatum{Component: chargingStation(), Variable: models.Variable{Name: "HeartbeatInterval"}}
	}
	results := m.GetVariables(requests)
	for _, r := range results {
		assert.Equal(t, GetRejected, r.AttributeStatus)
	}
}

func TestSetVariablesBlanketRejectionOnTooLargeValue(t *testing.T) {
	m := newTestManager()
	oversized := make([]byte, DefaultLimits.ValueSize+1)
	for i := range oversized {
		oversized[i] = 'a'
	}
	results := m.SetVariables([]SetVariableDatum{
		{Component: chargingStation(), Variable: models.Variable{Name: "HeartbeatInterval"}, AttributeValue: string(oversized)},
		{Component: chargingStation(), Variable: models.Variable{Name: "WebSocketPingInterval"}, AttributeValue: "30"},
	})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, SetRejected, r.AttributeStatus)
		assert.Equal(t, ReasonTooLargeElement, r.ReasonCode)
	}
}

func TestSelfHealingInsertsDefaultOnUnsetRead(t *testing.T) {
	reg := NewRegistry()
	m := NewManager(reg, Limits{})
	attr := m.SelfHeal(chargingStation(), models.Variable{Name: "NewKey"}, models.AttributeActual)
	assert.Equal(t, "", attr.Value)

	results := m.GetVariables([]GetVariableDatum{
		{Component: chargingStation(), Variable: models.Variable{Name: "NewKey"}},
	})
	assert.Equal(t, GetAccepted, results[0].AttributeStatus)
}

func TestGetVariablesSelfHealsUndeclaredAttributeType(t *testing.T) {
	m := newTestManager()
	results := m.GetVariables([]GetVariableDatum{
		{Component: chargingStation(), Variable: models.Variable{Name: "HeartbeatInterval"}, AttributeType: models.AttributeTarget},
	})
	require.Len(t, results, 1)
	assert.Equal(t, GetAccepted, results[0].AttributeStatus)
	assert.Empty(t, results[0].AttributeValue)
}

func TestSetVariablesSelfHealsUndeclaredAttributeType(t *testing.T) {
	m := newTestManager()
	results := m.SetVariables([]SetVariableDatum{
		{Component: chargingStation(), Variable: models.Variable{Name: "HeartbeatInterval"}, AttributeType: models.AttributeTarget, AttributeValue: "120"},
	})
	require.Len(t, results, 1)
	assert.Equal(t, SetAccepted, results[0].AttributeStatus)
}

func TestResetRuntimeOverridesRestoresNonPersistent(t *testing.T) {
	reg := NewRegistry()
	reg.Define(chargingStation(), models.Variable{Name: "TxUpdatedInterval"}, []models.VariableAttribute{
		{Type: models.AttributeActual, Value: "30", Mutability: models.MutabilityReadWrite, Persistent: false, DataType: models.DataTypeInteger},
	})
	m := NewManager(reg, Limits{})

	m.SetVariables([]SetVariableDatum{
		{Component: chargingStation(), Variable: models.Variable{Name: "TxUpdatedInterval"}, AttributeValue: "60"},
	})
	results := m.GetVariables([]GetVariableDatum{{Component: chargingStation(), Variable: models.Variable{Name: "TxUpdatedInterval"}}})
	assert.Equal(t, "60", results[0].AttributeValue)

	m.ResetRuntimeOverrides()
	results = m.GetVariables([]GetVariableDatum{{Component: chargingStation(), Variable: models.Variable{Name: "TxUpdatedInterval"}}})
	assert.Equal(t, "30", results[0].AttributeValue)
}
