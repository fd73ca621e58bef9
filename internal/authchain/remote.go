package authchain

import (
	"context"
	"time"

	"github.com/ocppsim/simulator/pkg/contracts"
	"github.com/ocppsim/simulator/pkg/models"
)

// RemoteStrategy is priority 30 (§4.5): sends an OCPP Authorize (1.6) or
// TransactionEvent(Started, Authorized) (2.0.1) via an injected transport,
// breaking the station <-> auth-chain cyclic reference per the §9 design
// note (the chain only ever sees contracts.RemoteAuthTransport).
type RemoteStrategy struct {
	transport contracts.RemoteAuthTransport
}

// NewRemoteStrategy wires the remote strategy to a station's session
// engine via the RemoteAuthTransport contract.
func NewRemoteStrategy(transport contracts.RemoteAuthTransport) *RemoteStrategy {
	return &RemoteStrategy{transport: transport}
}

func (s *RemoteStrategy) Name() string  { return "remote" }
func (s *RemoteStrategy) Priority() int { return 30 }

// CanHandle returns true when the station is Accepted or allowOffline is
// false; when offline and allowOffline is true, it abstains so a weaker
// strategy (or UNKNOWN) decides instead (§4.5).
func (s *RemoteStrategy) CanHandle(_ context.Context, req contracts.AuthorizeRequest) bool {
	if req.StationAccepted {
		return true
	}
	return !req.AllowOffline
}

func (s *RemoteStrategy) Authorize(ctx context.Context, req contracts.AuthorizeRequest) (*models.AuthorizationResult, error) {
	if !req.StationOnline {
		if req.AllowOffline {
			return nil, nil // abstain while offline and allowed
		}
		return &models.AuthorizationResult{
			Status:    models.AuthInvalid,
			Method:    s.Name(),
			Timestamp: time.Now(),
			IsOffline: true,
		}, nil
	}

	result, err := s.transport.SendAuthorize(ctx, req.HashID, req.Identifier)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &models.AuthorizationResult{Status: models.AuthUnknown, Timestamp: time.Now()}
	}
	result.Method = s.Name()
	return result, nil
}
