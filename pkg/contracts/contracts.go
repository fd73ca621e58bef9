// Package contracts defines the boundary interfaces between the simulator
// core and its external collaborators — the pieces §1 explicitly marks as
// out of scope: template/config file loaders, the certificate cryptography
// primitives, and the worker-pool execution unit a Station runs inside.
//
// Swapping a community implementation for another backend (e.g. a
// Postgres-backed ConfigurationStore instead of the local-file one) is a
// single line change in pkg/server wiring.
package contracts

import (
	"context"
	"time"

	"github.com/ocppsim/simulator/pkg/models"
)

// ── Template & Configuration Loaders (§6) ───────────────────

// TemplateLoader resolves a template path to a parsed Template. The core
// never touches the filesystem directly; it only consumes this contract.
type TemplateLoader interface {
	LoadTemplate(path string) (*models.Template, error)
}

// ConfigurationStore persists and retrieves a station's configuration
// document (§6): `load(hashId) -> ChargingStationConfiguration | null`,
// `save(hashId, ChargingStationConfiguration)`.
type ConfigurationStore interface {
	Load(ctx context.Context, hashID string) (*models.ChargingStationConfiguration, error)
	Save(ctx context.Context, hashID string, cfg *models.ChargingStationConfiguration) error
}

// IDTagListLoader resolves an external id-tag list file into UnifiedIdentifiers,
// consumed by the LocalList authorization strategy.
type IDTagListLoader interface {
	LoadIDTagList(path string) ([]models.UnifiedIdentifier, error)
}

// ── Certificate Manager (§4.3) ───────────────────────────────

// CertificateManager performs CSR generation, hashing, and storage for the
// 2.0.1 CertificateSigned / InstallCertificate / DeleteCertificate /
// SignCertificate handlers. The actual cryptography primitives are an
// external collaborator per §1; the core only calls this contract.
type CertificateManager interface {
	SignCertificate(ctx context.Context, hashID string, csr string) (certChain string, err error)
	InstallCertificate(ctx context.Context, hashID string, certType string, cert string) error
	DeleteCertificate(ctx context.Context, hashID string, certificateHashData map[string]string) error
	GetInstalledCertificateIDs(ctx context.Context, hashID string, certTypes []string) ([]string, error)
}

// CertificateAuthProvider validates a presented certificate for the
// Certificate authorization strategy (§4.5 priority 40).
type CertificateAuthProvider interface {
	ValidateCertificate(ctx context.Context, hashID string, certificate string) (*models.AuthorizationResult, error)
}

// ── Execution Unit (§1, §9) ──────────────────────────────────

// ExecutionUnit is the capability interface a Station runs inside, per the
// §9 design note recasting "the worker-pool abstraction" as the minimal
// surface the core actually needs: receive commands, emit events. The
// concrete pool (goroutine, OS process, container) is external.
type ExecutionUnit interface {
	// Dispatch delivers a control-plane command to whatever runs the
	// station and returns once accepted (not necessarily completed).
	Dispatch(ctx context.Context, hashID string, command string, payload interface{}) error

	// Events returns the channel the execution unit uses to emit station
	// lifecycle events back to the registry.
	Events() <-chan StationEvent
}

// StationEventKind enumerates the events streamed to control-plane
// subscribers (§4.8).
type StationEventKind string

const (
	EventStarted               StationEventKind = "started"
	EventStopped                StationEventKind = "stopped"
	EventRegistered             StationEventKind = "registered"
	EventAccepted                StationEventKind = "accepted"
	EventUpdated                 StationEventKind = "updated"
	EventConnectorStatusChanged StationEventKind = "connectorStatusChanged"
)

// StationEvent is a single notification emitted by a station's execution
// unit toward the registry/control-plane broadcast.
type StationEvent struct {
	HashID    string                 `json:"hashId"`
	Kind      StationEventKind       `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// ── Audit / Archive Driver ───────────────────────────────────

// AuditDriver persists control-plane command audit records. OSS ships a
// ring-buffer + local JSONL implementation; a Postgres-backed driver is
// wired optionally when DATABASE_URL is configured.
type AuditDriver interface {
	Kind() string
	RecordCommand(ctx context.Context, record AuditRecord) error
	HealthCheck(ctx context.Context) error
}

// AuditRecord is one control-plane command dispatch, purely additive
// observability per SPEC_FULL.md's supplemented features.
type AuditRecord struct {
	ID          string                 `json:"id"`
	Procedure   string                 `json:"procedure"`
	HashIDs     []string               `json:"hashIds,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Succeeded   []string               `json:"succeeded,omitempty"`
	Failed      []string               `json:"failed,omitempty"`
	DispatchedAt time.Time             `json:"dispatchedAt"`
}
