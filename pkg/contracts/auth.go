// Package contracts — Authorization Pipeline interfaces for the pluggable
// strategy chain described in §4.5.
package contracts

import (
	"context"

	"github.com/ocppsim/simulator/pkg/models"
)

// ── Authorization Request ───────────────────────────────────

// AuthorizeRequest carries everything a strategy needs to decide, without
// coupling strategies to the station or session internals.
type AuthorizeRequest struct {
	HashID       string
	Identifier   models.UnifiedIdentifier
	Version      models.OCPPVersion
	StationOnline bool
	StationAccepted bool
	AllowOffline bool
}

// ── AuthStrategy ─────────────────────────────────────────────

// AuthStrategy implements one authorization strategy in the chain (§4.5):
// LocalList, Cache, Remote, Certificate. Dispatch contract, mirroring the
// chain-of-responsibility pattern used throughout this codebase:
//
//	(*AuthorizationResult, nil) -> this strategy decided, stop the chain
//	(nil, nil)                 -> abstain, try the next strategy
//	(nil, err)                 -> hard failure, stop the chain and propagate
type AuthStrategy interface {
	// Name returns the strategy identifier ("localList", "cache", "remote",
	// "certificate").
	Name() string

	// Priority orders strategies in the chain; lower runs first (§4.5).
	Priority() int

	// CanHandle reports whether this strategy is configured/applicable for
	// the request. Authorize still may abstain even when CanHandle is true
	// (e.g. a cache miss).
	CanHandle(ctx context.Context, req AuthorizeRequest) bool

	// Authorize executes the strategy.
	Authorize(ctx context.Context, req AuthorizeRequest) (*models.AuthorizationResult, error)
}

// AuthStrategyChain tries registered strategies in priority order until one
// decides. Mirrors the provider-chain pattern used for HTTP authentication,
// generalized to the OCPP authorization pipeline.
type AuthStrategyChain interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*models.AuthorizationResult, error)
	RegisterStrategy(strategy AuthStrategy)
	ListStrategies() []string
}

// RemoteAuthTransport is what the Remote strategy uses to actually reach
// the CSMS: send an OCPP 1.6 Authorize or 2.0.1 TransactionEvent(Started)
// and await the result. Implemented by internal/session so internal/authchain
// never imports the session engine directly (breaks the cyclic reference
// per the §9 design note).
type RemoteAuthTransport interface {
	SendAuthorize(ctx context.Context, hashID string, identifier models.UnifiedIdentifier) (*models.AuthorizationResult, error)
}
