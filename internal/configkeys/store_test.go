package configkeys

import (
	"testing"

	"github.com/ocppsim/simulator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populatedStore() *Store {
	s := NewStore()
	s.Define(models.ConfigurationKey{Key: "HeartbeatInterval", Value: "60", Visible: true})
	s.Define(models.ConfigurationKey{Key: "ConnectionTimeOut", Value: "30", Visible: true})
	s.Define(models.ConfigurationKey{Key: "SecretKey", Value: "sekrit", Visible: false})
	s.Define(models.ConfigurationKey{Key: "NumberOfConnectors", Value: "2", ReadOnly: true, Visible: true})
	s.Define(models.ConfigurationKey{Key: "StopTxnAlignedData", Value: "", Reboot: true, Visible: true})
	return s
}

func TestGetConfigurationAllOmitsHiddenKeys(t *testing.T) {
	s := populatedStore()
	result := s.GetConfiguration(nil)
	require.Len(t, result.ConfigurationKey, 4)
	for _, ck := range result.ConfigurationKey {
		assert.NotEqual(t, "SecretKey", ck.Key)
	}
	assert.Equal(t, "HeartbeatInterval", result.ConfigurationKey[0].Key)
	assert.Equal(t, "ConnectionTimeOut", result.ConfigurationKey[1].Key)
}

func TestGetConfigurationNamedHiddenKeyStillReturned(t *testing.T) {
	s := populatedStore()
	result := s.GetConfiguration([]string{"SecretKey"})
	require.Len(t, result.ConfigurationKey, 1)
	assert.Equal(t, "SecretKey", result.ConfigurationKey[0].Key)
}

func TestGetConfigurationUnknownKeyReported(t *testing.T) {
	s := populatedStore()
	result := s.GetConfiguration([]string{"HeartbeatInterval", "DoesNotExist"})
	require.Len(t, result.ConfigurationKey, 1)
	require.Len(t, result.UnknownKey, 1)
	assert.Equal(t, "DoesNotExist", result.UnknownKey[0])
}

func TestChangeConfigurationReadOnlyRejected(t *testing.T) {
	s := populatedStore()
	status := s.ChangeConfiguration("NumberOfConnectors", "4")
	assert.Equal(t, ChangeRejected, status)
}

func TestChangeConfigurationUnknownKeyNotSupported(t *testing.T) {
	s := populatedStore()
	status := s.ChangeConfiguration("DoesNotExist", "x")
	assert.Equal(t, ChangeNotSupported, status)
}

func TestChangeConfigurationRebootRequired(t *testing.T) {
	s := populatedStore()
	status := s.ChangeConfiguration("StopTxnAlignedData", "Energy.Active.Import.Register")
	assert.Equal(t, ChangeRebootRequired, status)
}

func TestChangeConfigurationAcceptedWithoutReboot(t *testing.T) {
	s := populatedStore()
	status := s.ChangeConfiguration("HeartbeatInterval", "120")
	assert.Equal(t, ChangeAccepted, status)
	result := s.GetConfiguration([]string{"HeartbeatInterval"})
	assert.Equal(t, "120", result.ConfigurationKey[0].Value)
}

func TestChangeConfigurationUnchangedValueNoReboot(t *testing.T) {
	s := populatedStore()
	status := s.ChangeConfiguration("StopTxnAlignedData", "")
	assert.Equal(t, ChangeAccepted, status)
}

func TestSnapshotPreservesOrder(t *testing.T) {
	s := populatedStore()
	snap := s.Snapshot()
	require.Len(t, snap, 5)
	assert.Equal(t, "HeartbeatInterval", snap[0].Key)
	assert.Equal(t, "StopTxnAlignedData", snap[4].Key)
}
