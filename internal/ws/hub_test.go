package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *httptest.Server, uuid.UUID) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub()
	go hub.Run(ctx)

	userID := uuid.New()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(conn, hub, userID).Run(r.Context())
	}))
	t.Cleanup(srv.Close)

	return hub, srv, userID
}

func TestHub_PushDeliversToConnectedUser(t *testing.T) {
	hub, srv, userID := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Online(userID) }, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Push(userID, "task.completed", map[string]string{"task_id": "42"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, "task.completed", event.Type)
	assert.Equal(t, "42", event.Data["task_id"])
}

func TestHub_PushToOfflineUserIsNoop(t *testing.T) {
	hub, _, _ := startHub(t)

	assert.False(t, hub.Online(uuid.New()))
	assert.NoError(t, hub.Push(uuid.New(), "wallet.funded", nil))
}

func TestHub_ClientRemovedAfterDisconnect(t *testing.T) {
	hub, srv, userID := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Online(userID) }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return !hub.Online(userID) }, 2*time.Second, 10*time.Millisecond)
}
