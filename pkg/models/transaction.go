package models

import "time"

// StopReason enumerates why a transaction ended, shared vocabulary across
// 1.6 StopTransaction.reason and 2.0.1 TransactionEvent.stoppedReason.
type StopReason string

const (
	StopReasonLocal        StopReason = "Local"
	StopReasonRemote       StopReason = "Remote"
	StopReasonHardReset    StopReason = "HardReset"
	StopReasonSoftReset    StopReason = "SoftReset"
	StopReasonUnlockCommand StopReason = "UnlockCommand"
	StopReasonDeAuthorized StopReason = "DeAuthorized"
	StopReasonEVDisconnected StopReason = "EVDisconnected"
	StopReasonPowerLoss    StopReason = "PowerLoss"
	StopReasonOther        StopReason = "Other"
)

// TransactionEventKind is the OCPP 2.0.1 TransactionEvent.eventType.
type TransactionEventKind string

const (
	TxEventStarted TransactionEventKind = "Started"
	TxEventUpdated TransactionEventKind = "Updated"
	TxEventEnded   TransactionEventKind = "Ended"
)

// Transaction is the metered charging session record (§3). ID is the
// integer transactionId under 1.6 and the string transactionId (UUID) under
// 2.0.1; both are carried so the station can answer either protocol.
type Transaction struct {
	IntID        int       `json:"transactionId,omitempty"`
	StringID     string    `json:"transactionIdString,omitempty"`
	ConnectorID  int       `json:"connectorId"`
	EvseID       int       `json:"evseId,omitempty"`
	IDTag        string    `json:"idTag"`
	StartedAt    time.Time `json:"startedAt"`
	MeterStartWh float64   `json:"meterStartWh"`
	MeterNowWh   float64   `json:"meterNowWh"`
	MeterStopWh  *float64  `json:"meterStopWh,omitempty"`
	SeqNo        int       `json:"seqNo"`
	StoppedAt    *time.Time `json:"stoppedAt,omitempty"`
	StopReason   StopReason `json:"stopReason,omitempty"`
}

// NextSeqNo returns the sequence number for the next emitted event and
// advances the counter. The first call (for the Started event) returns 0.
func (t *Transaction) NextSeqNo() int {
	n := t.SeqNo
	t.SeqNo++
	return n
}

// Active reports whether the transaction has not yet been stopped.
func (t *Transaction) Active() bool {
	return t.StoppedAt == nil
}

// ── Pending Request ──────────────────────────────────────────

// PendingRequest correlates an outbound CALL with its eventual CALL_RESULT
// or CALL_ERROR (§3). Continuations are channel-based rather than callback
// closures, matching Go's concurrency idiom: the session engine reads from
// resultCh/errCh instead of invoking callbacks directly.
type PendingRequest struct {
	MessageID string
	Action    string
	SentAt    time.Time
	Timeout   time.Duration

	// done is closed exactly once, by whichever of resolve/reject/expire
	// runs first; callers select on it alongside a context to await
	// completion without busy-polling the map.
	done chan struct{}

	Result interface{}
	Err    error
}

// NewPendingRequest creates an armed, unresolved request.
func NewPendingRequest(messageID, action string, timeout time.Duration) *PendingRequest {
	return &PendingRequest{
		MessageID: messageID,
		Action:    action,
		SentAt:    time.Now(),
		Timeout:   timeout,
		done:      make(chan struct{}),
	}
}

// Done returns a channel closed when the request resolves, rejects, or
// times out.
func (p *PendingRequest) Done() <-chan struct{} { return p.done }

// Resolve completes the request successfully exactly once.
func (p *PendingRequest) Resolve(result interface{}) {
	select {
	case <-p.done:
		return
	default:
	}
	p.Result = result
	close(p.done)
}

// Reject completes the request with an error exactly once.
func (p *PendingRequest) Reject(err error) {
	select {
	case <-p.done:
		return
	default:
	}
	p.Err = err
	close(p.done)
}
