package variables

import (
	"testing"

	"github.com/ocppsim/simulator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A freshly seeded registry is what every launched station actually gets
// (pkg/server.LaunchStation), so GetVariables must resolve against it
// without any prior CSMS configuration — scenarios S2 and S3.
func TestSeedDefaultsResolvesHeartbeatIntervalScenarioS2(t *testing.T) {
	reg := NewRegistry()
	reg.SeedDefaults(DefaultLimits)
	m := NewManager(reg, DefaultLimits)

	results := m.GetVariables([]GetVariableDatum{
		{Component: chargingStation(), Variable: models.Variable{Name: "HeartbeatInterval"}},
	})
	require.Len(t, results, 1)
	assert.Equal(t, GetAccepted, results[0].AttributeStatus)
	assert.Equal(t, "60", results[0].AttributeValue)
}

func TestSeedDefaultsMessageTimeoutIsRebootRequiredScenarioS3(t *testing.T) {
	reg := NewRegistry()
	reg.SeedDefaults(DefaultLimits)
	m := NewManager(reg, DefaultLimits)

	results := m.SetVariables([]SetVariableDatum{
		{Component: chargingStation(), Variable: models.Variable{Name: "MessageTimeout"}, AttributeValue: "45"},
	})
	require.Len(t, results, 1)
	assert.Equal(t, SetRebootRequired, results[0].AttributeStatus)
	assert.Equal(t, ReasonChangeRequiresReboot, results[0].ReasonCode)
}
