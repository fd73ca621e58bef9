package authchain

import (
	"context"
	"time"

	"github.com/ocppsim/simulator/pkg/contracts"
	"github.com/ocppsim/simulator/pkg/models"
)

// CertificateStrategy is priority 40 (§4.5): validates a presented
// certificate via an injected CertificateAuthProvider (external
// collaborator — the cryptography primitives are out of scope per §1).
type CertificateStrategy struct {
	provider contracts.CertificateAuthProvider
}

// NewCertificateStrategy wires the certificate strategy to its provider.
func NewCertificateStrategy(provider contracts.CertificateAuthProvider) *CertificateStrategy {
	return &CertificateStrategy{provider: provider}
}

func (s *CertificateStrategy) Name() string  { return "certificate" }
func (s *CertificateStrategy) Priority() int { return 40 }

// CanHandle reports whether a certificate was presented (carried in
// AdditionalInfo["certificate"] by convention).
func (s *CertificateStrategy) CanHandle(_ context.Context, req contracts.AuthorizeRequest) bool {
	if s.provider == nil {
		return false
	}
	_, ok := req.Identifier.AdditionalInfo["certificate"]
	return ok
}

func (s *CertificateStrategy) Authorize(ctx context.Context, req contracts.AuthorizeRequest) (*models.AuthorizationResult, error) {
	cert, ok := req.Identifier.AdditionalInfo["certificate"]
	if !ok {
		return nil, nil // abstain
	}
	result, err := s.provider.ValidateCertificate(ctx, req.HashID, cert)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &models.AuthorizationResult{Status: models.AuthInvalid, Timestamp: time.Now()}
	}
	result.Method = s.Name()
	return result, nil
}
