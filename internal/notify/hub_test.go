package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexguard/dexguard/internal/event"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub never reached %d clients", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastReachesClient(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	conn := dialHub(t, hub)
	waitForClients(t, hub, 1)

	alert := Alert{
		ID:       "al-1",
		Type:     "circuit-breaker-triggered",
		Severity: event.SeverityHigh,
		Payload:  map[string]any{"breaker": "ETH-uniswap"},
	}
	hub.Broadcast(alert)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Alert
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "al-1", got.ID)
	assert.Equal(t, "circuit-breaker-triggered", got.Type)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub()

	conn := dialHub(t, hub)
	waitForClients(t, hub, 1)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
