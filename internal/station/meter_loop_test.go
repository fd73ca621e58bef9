package station

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocppsim/simulator/internal/configkeys"
	"github.com/ocppsim/simulator/internal/session"
	"github.com/ocppsim/simulator/internal/variables"
	"github.com/ocppsim/simulator/pkg/models"
)

// recordingServer accepts every inbound CALL unconditionally and forwards
// each decoded action/payload onto frames for the test to inspect.
func recordingServer(t *testing.T, frames chan<- map[string]interface{}) *httptest.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame []json.RawMessage
			require.NoError(t, json.Unmarshal(data, &frame))
			var msgID, action string
			json.Unmarshal(frame[1], &msgID)
			var resp interface{} = map[string]interface{}{"status": "Accepted", "interval": 60}
			if len(frame) >= 4 {
				json.Unmarshal(frame[2], &action)
				var payload map[string]interface{}
				json.Unmarshal(frame[3], &payload)
				payload["_action"] = action
				select {
				case frames <- payload:
				default:
				}
			}
			out, _ := json.Marshal([]interface{}{3, msgID, resp})
			conn.WriteMessage(websocket.TextMessage, out)
		}
	}))
}

func newMeteredStation(t *testing.T, srv *httptest.Server) *Station {
	info := &models.Station{
		HashID: "CP-METER",
		Info:   models.StationInfo{OCPPVersion: models.OCPPVersion2011, MaxPower: 3600, NominalVoltage: 230, NumberOfPhases: 1},
		State:  models.StationStopped,
		Connectors: map[int]*models.ConnectorState{
			1: {ConnectorID: 1, Availability: models.AvailabilityOperative, Status: models.StatusAvailable, PowerDivider: 1},
		},
	}
	reg := variables.NewRegistry()
	reg.Define(models.Component{Name: "ChargingStation"}, models.Variable{Name: "TxUpdatedInterval"}, []models.VariableAttribute{
		{Type: models.AttributeActual, Value: "1", Mutability: models.MutabilityReadWrite, DataType: models.DataTypeInteger},
	})
	vars := variables.NewManager(reg, variables.Limits{})
	s := New(info, vars, configkeys.NewStore(), Deps{}, zerolog.Nop())

	sess := session.New(wsURL(srv), nil, session.Config{MessageTimeout: 2 * time.Second, ReconnectBase: 50 * time.Millisecond}, s.BootHook, s.HandleServerCall, zerolog.Nop())
	s.AttachSession(sess)
	return s
}

// S5: an active transaction must emit periodic Updated(MeterValuePeriodic)
// events driven by TxUpdatedInterval, with strictly increasing seqNo.
func TestActiveTransactionEmitsPeriodicMeterUpdates(t *testing.T) {
	frames := make(chan map[string]interface{}, 16)
	srv := recordingServer(t, frames)
	defer srv.Close()

	s := newMeteredStation(t, srv)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.sess.Run(ctx)

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.info.State == models.StationAccepted
	}, 2*time.Second, 10*time.Millisecond)

	c := s.info.Connectors[1]
	s.mu.Lock()
	s.startTransactionLocked(ctx, c, "TAG1")
	s.mu.Unlock()

	var updates []map[string]interface{}
	require.Eventually(t, func() bool {
		for len(frames) > 0 {
			f := <-frames
			if f["_action"] == "TransactionEvent" && f["eventType"] == "Updated" {
				updates = append(updates, f)
			}
		}
		return len(updates) >= 2
	}, 4*time.Second, 20*time.Millisecond)

	require.GreaterOrEqual(t, len(updates), 2)
	assert.Equal(t, "MeterValuePeriodic", updates[0]["triggerReason"])
	seq0, _ := updates[0]["seqNo"].(float64)
	seq1, _ := updates[1]["seqNo"].(float64)
	assert.Less(t, seq0, seq1)

	require.NoError(t, s.StopTransactionOnConnector(ctx, 1, models.StopReasonLocal))
}
