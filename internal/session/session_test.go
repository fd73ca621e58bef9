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
)

// echoServer replies to every BootNotification CALL with a fixed Accepted
// response and otherwise echoes CALL_RESULT with an empty payload.
func echoServer(t *testing.T) *httptest.Server {
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
			var action string
			json.Unmarshal(frame[2], &action)

			var resp interface{}
			if action == "BootNotification" {
				resp = map[string]interface{}{"status": "Accepted", "interval": 30}
			} else {
				resp = map[string]interface{}{}
			}
			out, _ := json.Marshal([]interface{}{3, msgID, resp})
			conn.WriteMessage(websocket.TextMessage, out)
		}
	})
	return httptest.NewServer(handler)
}

func wsURL(s *httptest.Server) string {
	return "ws" + s.URL[len("http"):]
}

func TestSessionBootNotificationRoundTrip(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	s := New(wsURL(srv), nil, Config{MessageTimeout: 2 * time.Second, ReconnectBase: 50 * time.Millisecond}, nil, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx)
	waitOnline(t, s)

	result, err := s.Call(ctx, "BootNotification", map[string]interface{}{"reason": "PowerUp"})
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func waitOnline(t *testing.T, s *Session) {
	deadline := time.After(2 * time.Second)
	for {
		if s.Online() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("session never came online")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSessionCallTimesOutWithNoResponse(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			// never respond
		}
	}))
	defer srv.Close()

	s := New(wsURL(srv), nil, Config{MessageTimeout: 100 * time.Millisecond}, nil, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	waitOnline(t, s)

	_, err := s.Call(ctx, "Heartbeat", map[string]interface{}{})
	require.Error(t, err)
}

func TestEnqueueCollapsesSameActionWhileOffline(t *testing.T) {
	s := New("ws://unused", nil, Config{}, nil, nil, zerolog.Nop())
	s.Enqueue("StatusNotification", map[string]interface{}{"status": "Available"})
	s.Enqueue("StatusNotification", map[string]interface{}{"status": "Occupied"})
	assert.Len(t, s.queue, 1)
	assert.Equal(t, "Occupied", s.queue[0].payload.(map[string]interface{})["status"])
}

func TestEnqueueNeverQueuesBootNotification(t *testing.T) {
	s := New("ws://unused", nil, Config{}, nil, nil, zerolog.Nop())
	s.Enqueue("BootNotification", map[string]interface{}{})
	assert.Len(t, s.queue, 0)
}

func TestEnqueueAppendsTransactionEventsInsteadOfCollapsing(t *testing.T) {
	s := New("ws://unused", nil, Config{}, nil, nil, zerolog.Nop())
	s.Enqueue("TransactionEvent", map[string]interface{}{"eventType": "Started", "seqNo": 0})
	s.Enqueue("TransactionEvent", map[string]interface{}{"eventType": "Updated", "seqNo": 1})
	s.Enqueue("TransactionEvent", map[string]interface{}{"eventType": "Updated", "seqNo": 2})
	require.Len(t, s.queue, 3)
	assert.Equal(t, 0, s.queue[0].payload.(map[string]interface{})["seqNo"])
	assert.Equal(t, 1, s.queue[1].payload.(map[string]interface{})["seqNo"])
	assert.Equal(t, 2, s.queue[2].payload.(map[string]interface{})["seqNo"])
}
