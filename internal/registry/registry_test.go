package registry

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocppsim/simulator/internal/configkeys"
	"github.com/ocppsim/simulator/internal/station"
	"github.com/ocppsim/simulator/internal/variables"
	"github.com/ocppsim/simulator/pkg/contracts"
	"github.com/ocppsim/simulator/pkg/models"
)

func newTestEntry(r *Registry, hashID string) *station.Station {
	info := &models.Station{
		HashID: hashID,
		Info:   models.StationInfo{OCPPVersion: models.OCPPVersion2011},
		State:  models.StationAccepted,
		Connectors: map[int]*models.ConnectorState{
			1: {ConnectorID: 1, Availability: models.AvailabilityOperative, Status: models.StatusAvailable},
		},
	}
	s := station.New(info, variables.NewManager(variables.NewRegistry(), variables.Limits{}), configkeys.NewStore(),
		station.Deps{Events: r.EventsChan()}, zerolog.Nop())
	return s
}

func TestRegisterAndGet(t *testing.T) {
	r := New(zerolog.Nop(), nil)
	s := newTestEntry(r, "CP-1")
	r.Register("CP-1", s, nil)

	entry := r.Get("CP-1")
	require.NotNil(t, entry)
	assert.Equal(t, "CP-1", entry.Station.HashID())
	assert.ElementsMatch(t, []string{"CP-1"}, r.List())
}

func TestDispatchAggregatesSuccessAndFailure(t *testing.T) {
	r := New(zerolog.Nop(), nil)
	r.Register("CP-1", newTestEntry(r, "CP-1"), nil)
	r.Register("CP-2", newTestEntry(r, "CP-2"), nil)

	result := r.Dispatch(context.Background(), []string{"CP-1", "CP-2", "CP-unknown"},
		func(ctx context.Context, e *Entry) error {
			if e.Station.HashID() == "CP-2" {
				return assert.AnError
			}
			return nil
		})

	assert.ElementsMatch(t, []string{"CP-1"}, result.HashIDsSucceeded)
	assert.ElementsMatch(t, []string{"CP-2", "CP-unknown"}, result.HashIDsFailed)
	assert.Len(t, result.ResponsesFailed, 2)
}

func TestDispatchWithNoHashIDsTargetsAll(t *testing.T) {
	r := New(zerolog.Nop(), nil)
	r.Register("CP-1", newTestEntry(r, "CP-1"), nil)
	r.Register("CP-2", newTestEntry(r, "CP-2"), nil)

	result := r.Dispatch(context.Background(), nil, func(ctx context.Context, e *Entry) error { return nil })
	assert.Len(t, result.HashIDsSucceeded, 2)
}

func TestSubscribeReceivesStationEvents(t *testing.T) {
	r := New(zerolog.Nop(), nil)
	ch, unsub := r.Subscribe(4)
	defer unsub()

	r.EventsChan() <- contracts.StationEvent{HashID: "CP-1", Kind: contracts.EventStarted, Timestamp: time.Now()}

	select {
	case evt := <-ch:
		assert.Equal(t, "CP-1", evt.HashID)
		assert.Equal(t, contracts.EventStarted, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for station event")
	}
}

func TestUnregisterRemovesStation(t *testing.T) {
	r := New(zerolog.Nop(), nil)
	r.Register("CP-1", newTestEntry(r, "CP-1"), nil)
	r.Unregister("CP-1")
	assert.Nil(t, r.Get("CP-1"))
}
