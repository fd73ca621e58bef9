package models

import "time"

// ── OCPP Version ─────────────────────────────────────────────

type OCPPVersion string

const (
	OCPPVersion16   OCPPVersion = "1.6"
	OCPPVersion2011 OCPPVersion = "2.0.1"
)

// StationState is the station state machine's current state (§4.3).
type StationState string

const (
	StationStopped     StationState = "Stopped"
	StationStarting    StationState = "Starting"
	StationRegistering StationState = "Registering"
	StationAccepted    StationState = "Accepted"
	StationPending     StationState = "Pending"
	StationRejected    StationState = "Rejected"
)

// ── StationInfo ──────────────────────────────────────────────

// StationInfo is the immutable (per boot cycle) identity and network
// configuration carried by a Station, derived from its Template.
type StationInfo struct {
	HashID           string      `json:"hashId" db:"hash_id"`
	ChargePointModel string      `json:"chargePointModel"`
	ChargePointVendor string     `json:"chargePointVendor"`
	FirmwareVersion  string      `json:"firmwareVersion,omitempty"`
	ChargeBoxSerialNumber string `json:"chargeBoxSerialNumber,omitempty"`
	SupervisionURL   string      `json:"supervisionUrl"`
	OCPPVersion      OCPPVersion `json:"ocppVersion"`
	OCPPStrictCompliance bool    `json:"ocppStrictCompliance"`
	AuthorizationKey string      `json:"authorizationKey,omitempty"`
	BasicAuthUser    string      `json:"basicAuthUser,omitempty"`
	BasicAuthPassword string     `json:"basicAuthPassword,omitempty"`
	MaxPower         float64     `json:"maxPower"`
	NominalVoltage   float64     `json:"nominalVoltage"`
	NumberOfPhases   int         `json:"numberOfPhases"`
	SupportsEVSEs    bool        `json:"supportsEvses"`
}

// ── Station ──────────────────────────────────────────────────

// Station is the persisted/runtime aggregate described in §3. The actor
// implementation (internal/station) wraps this with behavior; this type
// carries only the serializable state.
type Station struct {
	HashID            string                    `json:"hashId" db:"hash_id"`
	TemplateName      string                    `json:"templateName"`
	Index             int                       `json:"index"`
	Info              StationInfo               `json:"stationInfo"`
	State             StationState              `json:"state"`
	Accepted          bool                      `json:"accepted"`
	HeartbeatInterval time.Duration             `json:"heartbeatInterval"`
	ConfigurationKeys []ConfigurationKey        `json:"configurationKeys,omitempty"`
	VariableAttributes []VariableAttributeEntry `json:"variableAttributes,omitempty"`
	Connectors        map[int]*ConnectorState   `json:"connectors,omitempty"`
	Evses             map[int]*Evse             `json:"evses,omitempty"`
	ConfigurationHash string                    `json:"configurationHash,omitempty"`
	BootedAt          *time.Time                `json:"bootedAt,omitempty"`
}

// Evse groups local connector ids under an EVSE id, per the 2.0.1 data
// model where EVSEs replace flat connectors (§3 invariant).
type Evse struct {
	ID         int   `json:"evseId"`
	ConnectorIDs []int `json:"connectorIds"`
}

// IsOperational reports whether the station may emit heartbeats, status
// notifications, transactions, and meter values (§4.3).
func (s *Station) IsOperational() bool {
	return s.State == StationAccepted
}

// ReservedStationWideConnector is the OCPP 1.6 connector id reserved for
// station-wide status; it must never start a transaction.
const ReservedStationWideConnector = 0
