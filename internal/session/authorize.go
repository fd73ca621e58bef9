package session

import (
	"context"
	"fmt"
	"time"

	"github.com/ocppsim/simulator/pkg/models"
)

// SendAuthorize implements contracts.RemoteAuthTransport by issuing an OCPP
// Authorize CALL over this session and mapping the response onto a unified
// AuthorizationResult (§4.5 Remote strategy, priority 30).
func (s *Session) SendAuthorize(ctx context.Context, _ string, identifier models.UnifiedIdentifier) (*models.AuthorizationResult, error) {
	var payload interface{}
	if identifier.OCPPVersion == models.OCPPVersion2011 {
		payload = map[string]interface{}{
			"idToken": map[string]interface{}{
				"idToken": identifier.Value,
				"type":    identifier.Type,
			},
		}
	} else {
		payload = map[string]interface{}{"idTag": identifier.Value}
	}

	resp, err := s.Call(ctx, "Authorize", payload)
	if err != nil {
		return nil, err
	}
	m, ok := resp.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected Authorize response shape")
	}

	status, parentID := extractAuthorizeStatus(m)
	return &models.AuthorizationResult{
		Status:    models.AuthorizationStatus(status),
		Method:    "remote",
		Timestamp: time.Now().UTC(),
		ParentID:  parentID,
	}, nil
}

// extractAuthorizeStatus handles both the 1.6 flat idTagInfo shape and the
// 2.0.1 nested idTokenInfo shape.
func extractAuthorizeStatus(m map[string]interface{}) (status, parentID string) {
	if info, ok := m["idTagInfo"].(map[string]interface{}); ok {
		status, _ = info["status"].(string)
		parentID, _ = info["parentIdTag"].(string)
		return status, parentID
	}
	if info, ok := m["idTokenInfo"].(map[string]interface{}); ok {
		status, _ = info["status"].(string)
		if group, ok := info["groupIdToken"].(map[string]interface{}); ok {
			parentID, _ = group["idToken"].(string)
		}
		return status, parentID
	}
	return "UNKNOWN", ""
}
