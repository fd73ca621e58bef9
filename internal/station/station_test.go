package station

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocppsim/simulator/internal/configkeys"
	"github.com/ocppsim/simulator/internal/variables"
	"github.com/ocppsim/simulator/pkg/models"
)

func newTestStation() *Station {
	info := &models.Station{
		HashID: "CP-1",
		Info:   models.StationInfo{OCPPVersion: models.OCPPVersion2011},
		State:  models.StationAccepted,
		Connectors: map[int]*models.ConnectorState{
			1: {ConnectorID: 1, EvseID: 1, Availability: models.AvailabilityOperative, Status: models.StatusAvailable},
		},
	}
	vars := variables.NewManager(variables.NewRegistry(), variables.Limits{})
	cfgKeys := configkeys.NewStore()
	return New(info, vars, cfgKeys, Deps{}, zerolog.Nop())
}

// S4 (RemoteStop unknown tx): empty / 37-char / nonexistent transactionId
// must all be Rejected, with no TransactionEvent emitted (no active
// transaction mutated).
func TestHandleRemoteStopScenarioS4(t *testing.T) {
	s := newTestStation()
	ctx := context.Background()

	cases := []string{"", string(make([]byte, 37)), "nonexistent"}
	for _, txID := range cases {
		payload, _ := json.Marshal(map[string]interface{}{"transactionId": txID})
		resp, err := s.handleRemoteStop(ctx, payload)
		require.NoError(t, err)
		m := resp.(map[string]interface{})
		assert.Equal(t, "Rejected", m["status"], "txID=%q", txID)
	}
}

func TestHandleResetImmediateTerminatesActiveTransaction(t *testing.T) {
	s := newTestStation()
	ctx := context.Background()

	c := s.info.Connectors[1]
	s.mu.Lock()
	s.startTransactionLocked(ctx, c, "TAG1")
	s.mu.Unlock()
	require.NotNil(t, c.Transaction)

	payload, _ := json.Marshal(map[string]interface{}{"type": "Immediate"})
	resp, err := s.handleReset(ctx, payload)
	require.NoError(t, err)
	m := resp.(map[string]interface{})
	assert.Equal(t, "Accepted", m["status"])
	assert.Equal(t, "NoError", m["reasonCode"])
	assert.Nil(t, c.Transaction)
}

func TestHandleResetOnIdleWithActiveTransactionIsScheduled(t *testing.T) {
	s := newTestStation()
	ctx := context.Background()

	c := s.info.Connectors[1]
	s.mu.Lock()
	s.startTransactionLocked(ctx, c, "TAG1")
	s.mu.Unlock()

	payload, _ := json.Marshal(map[string]interface{}{"type": "OnIdle"})
	resp, err := s.handleReset(ctx, payload)
	require.NoError(t, err)
	m := resp.(map[string]interface{})
	assert.Equal(t, "Scheduled", m["status"])
	assert.Equal(t, "NoError", m["reasonCode"])
	assert.NotNil(t, c.Transaction)
}

func TestHandleUnlockConnectorReservedIDNotSupported(t *testing.T) {
	s := newTestStation()
	payload, _ := json.Marshal(map[string]interface{}{"connectorId": 0})
	resp, err := s.handleUnlockConnector(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, "UnlockNotSupported", resp.(map[string]interface{})["status"])
}

func TestHandleUnlockConnectorStopsActiveTransaction(t *testing.T) {
	s := newTestStation()
	ctx := context.Background()
	c := s.info.Connectors[1]
	s.mu.Lock()
	s.startTransactionLocked(ctx, c, "TAG1")
	s.mu.Unlock()

	payload, _ := json.Marshal(map[string]interface{}{"connectorId": 1})
	resp, err := s.handleUnlockConnector(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, "Unlocked", resp.(map[string]interface{})["status"])
	assert.Nil(t, c.Transaction)
}

func TestHandleRemoteStartRejectsOccupiedConnector(t *testing.T) {
	s := newTestStation()
	ctx := context.Background()
	c := s.info.Connectors[1]
	s.mu.Lock()
	s.startTransactionLocked(ctx, c, "TAG1")
	s.mu.Unlock()

	payload, _ := json.Marshal(map[string]interface{}{"evseId": 1, "idToken": map[string]interface{}{"idToken": "TAG2"}})
	resp, err := s.handleRemoteStart(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, "Rejected", resp.(map[string]interface{})["status"])
}

func TestHandleRemoteStartAcceptsAvailableConnector(t *testing.T) {
	s := newTestStation()
	ctx := context.Background()

	payload, _ := json.Marshal(map[string]interface{}{"evseId": 1, "idToken": map[string]interface{}{"idToken": "TAG1"}})
	resp, err := s.handleRemoteStart(ctx, payload)
	require.NoError(t, err)
	m := resp.(map[string]interface{})
	assert.Equal(t, "Accepted", m["status"])
	assert.NotEmpty(t, m["transactionId"])
	assert.NotNil(t, s.info.Connectors[1].Transaction)
}

func TestHandleChangeConfigurationAndGetConfiguration(t *testing.T) {
	s := newTestStation()
	s.cfgKeys.Define(models.ConfigurationKey{Key: "HeartbeatInterval", Value: "60", Visible: true})

	payload, _ := json.Marshal(changeConfigurationRequest{Key: "HeartbeatInterval", Value: "120"})
	resp, err := s.handleChangeConfiguration(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, configkeys.ChangeAccepted, resp.(map[string]interface{})["status"])

	getPayload, _ := json.Marshal(getConfigurationRequest{Key: []string{"HeartbeatInterval"}})
	getResp, err := s.handleGetConfiguration(context.Background(), getPayload)
	require.NoError(t, err)
	keys := getResp.(map[string]interface{})["configurationKey"].([]models.ConfigurationKey)
	require.Len(t, keys, 1)
	assert.Equal(t, "120", keys[0].Value)
}
