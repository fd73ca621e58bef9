package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocppsim/simulator/pkg/models"
)

// authorizeServer replies to Authorize CALLs with the given response shape
// (1.6 idTagInfo or 2.0.1 idTokenInfo, chosen by the caller).
func authorizeServer(t *testing.T, resp map[string]interface{}) *httptest.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame []json.RawMessage
			require.NoError(t, json.Unmarshal(data, &frame))
			var msgID string
			json.Unmarshal(frame[1], &msgID)

			out, _ := json.Marshal([]interface{}{3, msgID, resp})
			conn.WriteMessage(websocket.TextMessage, out)
		}
	})
	return httptest.NewServer(handler)
}

func TestSendAuthorizeHandles16FlatIdTagInfo(t *testing.T) {
	srv := authorizeServer(t, map[string]interface{}{
		"idTagInfo": map[string]interface{}{"status": "Accepted", "parentIdTag": "PARENT1"},
	})
	defer srv.Close()

	s := New(wsURL(srv), nil, Config{MessageTimeout: 2 * time.Second, ReconnectBase: 50 * time.Millisecond}, nil, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	waitOnline(t, s)

	result, err := s.SendAuthorize(ctx, "CP-1", models.UnifiedIdentifier{Type: models.IdentifierIDTag, Value: "TAG1", OCPPVersion: models.OCPPVersion16})
	require.NoError(t, err)
	assert.True(t, result.Accepted())
	assert.Equal(t, "PARENT1", result.ParentID)
}

func TestSendAuthorizeHandles201NestedIdTokenInfo(t *testing.T) {
	srv := authorizeServer(t, map[string]interface{}{
		"idTokenInfo": map[string]interface{}{
			"status":       "Blocked",
			"groupIdToken": map[string]interface{}{"idToken": "GROUP1"},
		},
	})
	defer srv.Close()

	s := New(wsURL(srv), nil, Config{MessageTimeout: 2 * time.Second, ReconnectBase: 50 * time.Millisecond}, nil, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	waitOnline(t, s)

	result, err := s.SendAuthorize(ctx, "CP-1", models.UnifiedIdentifier{Type: models.IdentifierIDTag, Value: "TAG1", OCPPVersion: models.OCPPVersion2011})
	require.NoError(t, err)
	assert.False(t, result.Accepted())
	assert.Equal(t, models.AuthBlocked, result.Status)
	assert.Equal(t, "GROUP1", result.ParentID)
}
