package station

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ocppsim/simulator/pkg/models"
)

// startTransactionLocked begins a transaction on an available connector and
// emits the version-appropriate start event. Caller holds s.mu.
func (s *Station) startTransactionLocked(ctx context.Context, c *models.ConnectorState, idTag string) *models.Transaction {
	tx := &models.Transaction{
		ConnectorID:  c.ConnectorID,
		EvseID:       c.EvseID,
		IDTag:        idTag,
		StartedAt:    time.Now(),
		MeterStartWh: c.EnergyRegisterWh,
		MeterNowWh:   c.EnergyRegisterWh,
	}
	if s.info.Info.OCPPVersion == models.OCPPVersion16 {
		tx.IntID = int(time.Now().UnixNano() % 1_000_000_000)
	} else {
		tx.StringID = uuid.NewString()
	}
	c.Transaction = tx
	c.Status = models.StatusCharging
	c.AuthorizedIDTag = idTag
	c.EvseEmitted = false
	c.IDTokenEmitted = false

	seq := tx.NextSeqNo()
	if s.info.Info.OCPPVersion == models.OCPPVersion16 {
		s.sess.Enqueue("StartTransaction", map[string]interface{}{
			"connectorId":   c.ConnectorID,
			"idTag":         idTag,
			"meterStart":    int(tx.MeterStartWh),
			"timestamp":     tx.StartedAt.UTC().Format(time.RFC3339),
		})
	} else {
		evt := map[string]interface{}{
			"eventType":     "Started",
			"timestamp":     tx.StartedAt.UTC().Format(time.RFC3339),
			"triggerReason": "RemoteStart",
			"seqNo":         seq,
			"transactionInfo": map[string]interface{}{"transactionId": tx.StringID},
			"evse":          map[string]interface{}{"id": c.EvseID, "connectorId": c.ConnectorID},
			"idToken":       map[string]interface{}{"idToken": idTag},
		}
		c.EvseEmitted = true
		c.IDTokenEmitted = true
		s.sess.Enqueue("TransactionEvent", evt)
	}
	s.sendStatusNotification(c)
	s.startMeterLoop(c)
	return tx
}

// stopTransactionLocked ends the active transaction on c with the given
// reason and emits the version-appropriate stop event. Caller holds s.mu.
func (s *Station) stopTransactionLocked(ctx context.Context, c *models.ConnectorState, reason models.StopReason) {
	tx := c.Transaction
	if tx == nil || !tx.Active() {
		return
	}
	s.stopMeterLoop(c.ConnectorID)
	now := time.Now()
	tx.StoppedAt = &now
	tx.StopReason = reason
	stopVal := c.EnergyRegisterWh
	tx.MeterStopWh = &stopVal

	seq := tx.NextSeqNo()
	if s.info.Info.OCPPVersion == models.OCPPVersion16 {
		s.sess.Enqueue("StopTransaction", map[string]interface{}{
			"transactionId": tx.IntID,
			"idTag":         tx.IDTag,
			"meterStop":     int(stopVal),
			"timestamp":     now.UTC().Format(time.RFC3339),
			"reason":        reason,
		})
	} else {
		s.sess.Enqueue("TransactionEvent", map[string]interface{}{
			"eventType":     "Ended",
			"timestamp":     now.UTC().Format(time.RFC3339),
			"triggerReason": "Remote",
			"seqNo":         seq,
			"transactionInfo": map[string]interface{}{"transactionId": tx.StringID, "stoppedReason": reason},
			"evse":          map[string]interface{}{"id": c.EvseID, "connectorId": c.ConnectorID},
		})
	}

	c.Transaction = nil
	c.Status = models.StatusAvailable
	c.AuthorizedIDTag = ""
	s.sendStatusNotification(c)
}

// findConnectorByTransaction locates the connector currently running the
// given transaction id (either 1.6 int form or 2.0.1 string form). Returns
// nil if no active transaction matches.
func (s *Station) findConnectorByTransaction(transactionID string) *models.ConnectorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.info.Connectors {
		tx := c.Transaction
		if tx == nil || !tx.Active() {
			continue
		}
		if tx.StringID == transactionID {
			return c
		}
		if tx.StringID == "" && strconv.Itoa(tx.IntID) == transactionID {
			return c
		}
	}
	return nil
}
