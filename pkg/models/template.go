package models

// IDTagDistribution selects how the ATG chooses an identifier per cycle
// (§4.7).
type IDTagDistribution string

const (
	DistributionRandom          IDTagDistribution = "RANDOM"
	DistributionRoundRobin      IDTagDistribution = "ROUND_ROBIN"
	DistributionConnectorAffinity IDTagDistribution = "CONNECTOR_AFFINITY"
)

// ATGParams configures the Automatic Transaction Generator for a template
// (§4.7).
type ATGParams struct {
	Enable                       bool              `json:"enable"`
	MinDelayBetweenTwoTransactions int             `json:"minDelayBetweenTwoTransactions"`
	MaxDelayBetweenTwoTransactions int             `json:"maxDelayBetweenTwoTransactions"`
	ProbabilityOfStart           float64           `json:"probabilityOfStart"`
	MinDurationSecs              int               `json:"minDurationSecs"`
	MaxDurationSecs              int               `json:"maxDurationSecs"`
	RequireAuthorize             bool              `json:"requireAuthorize"`
	IDTagDistribution            IDTagDistribution `json:"idTagDistribution"`
	StopAfterHours               float64           `json:"stopAfterHours"`
	StopAbsoluteDuration         bool              `json:"stopAbsoluteDuration"`
	StopOnConnectionFailure      bool              `json:"stopOnConnectionFailure"`
}

// FirmwareUpgrade describes an optional firmware-upgrade simulation
// descriptor carried by a template.
type FirmwareUpgrade struct {
	VersionUpgrade      string `json:"versionUpgrade,omitempty"`
	ConfigurationKey    string `json:"configurationKey,omitempty"`
	FailureStatusCount  int    `json:"failureStatusCount,omitempty"`
}

// TemplateConnector describes one connector slot in a Template's connector
// map (before per-station instantiation).
type TemplateConnector struct {
	ConnectorID   int      `json:"connectorId"`
	MeasurandList []string `json:"measurandList,omitempty"`
	PowerDivider  int      `json:"powerDivider,omitempty"`
}

// Template is the immutable station-prototype input described in §3. It is
// content-hashed and cached by internal/cache.
type Template struct {
	BaseName         string               `json:"baseName"`
	MaxPower         float64              `json:"maxPower"`
	NominalVoltage   float64              `json:"nominalVoltage"`
	NumberOfPhases   int                  `json:"numberOfPhases"`
	Connectors       []TemplateConnector  `json:"connectors"`
	EvseCount        int                  `json:"evseCount,omitempty"`
	ConnectorsPerEvse int                 `json:"connectorsPerEvse,omitempty"`
	OCPPVersion      OCPPVersion          `json:"ocppVersion"`
	SupervisionURLs  []string             `json:"supervisionUrls"`
	ATG              ATGParams            `json:"automaticTransactionGenerator"`
	FirmwareUpgrade  *FirmwareUpgrade     `json:"firmwareUpgrade,omitempty"`
	SupportedCommands []string            `json:"commandsSupported,omitempty"`

	// ContentHash is computed by internal/cache over the canonical JSON
	// encoding of the template and used as its LRU key.
	ContentHash string `json:"-"`
}

// ── Persisted Station Configuration (§6 external interface) ───

// ChargingStationConfiguration is the JSON document an external
// loader/saver persists per station (§6). The core treats the
// load/save boundary as an external collaborator (contracts.ConfigurationStore).
type ChargingStationConfiguration struct {
	StationInfo       StationInfo               `json:"stationInfo"`
	ConfigurationKeys []ConfigurationKey        `json:"configurationKey,omitempty"`
	VariableAttributes []VariableAttributeEntry `json:"variableAttributes,omitempty"`
	ConnectorsStatus  []ConnectorState          `json:"connectorsStatus,omitempty"`
	EvsesStatus       []Evse                    `json:"evsesStatus,omitempty"`
	ATGStatus         *ATGStatus                `json:"automaticTransactionGeneratorStatuses,omitempty"`
	ConfigurationHash string                    `json:"configurationHash"`
}

// ATGStatus is the persisted per-connector counters described in §4.7.
type ATGStatus struct {
	Started                   bool `json:"started"`
	StartDate                 int64 `json:"startDate,omitempty"`
	SkippedTransactions       int  `json:"skippedTransactions"`
	RejectedAuthorizeRequests int  `json:"rejectedAuthorizeRequests"`
	TransactionsStarted       int  `json:"transactionsStarted"`
	TransactionsStopped       int  `json:"transactionsStopped"`
}
