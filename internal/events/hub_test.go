package events

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jgivc/netfshare/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*hub, string) {
	t.Helper()

	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})))
	srv := httptest.NewServer(http.HandlerFunc(h.HandleConnection))
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})

	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readEvent(t *testing.T, conn *websocket.Conn) entity.Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev entity.Event
	require.NoError(t, json.Unmarshal(data, &ev))

	return ev
}

func TestHubReplayAndBroadcast(t *testing.T) {
	h, url := newTestHub(t)

	h.Publish(entity.EventReconcile, map[string]int{"inserted": 2})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	ev := readEvent(t, conn)
	assert.Equal(t, entity.EventReconcile, ev.Kind)

	h.Publish(entity.EventDownload, entity.AuditEntry{Kind: entity.AuditKindDownload, Address: "10.0.0.2", Path: "music"})

	ev = readEvent(t, conn)
	assert.Equal(t, entity.EventDownload, ev.Kind)
	payload, ok := ev.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "music", payload["path"])
}

func TestHubUnsubscribeOnClose(t *testing.T) {
	h, url := newTestHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Publishing without subscribers is fine.
	h.Publish(entity.EventSweep, entity.SweepResult{Active: 1})
}

func TestHubClose(t *testing.T) {
	h, url := newTestHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	h.Close()
	assert.Zero(t, h.Subscribers())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
