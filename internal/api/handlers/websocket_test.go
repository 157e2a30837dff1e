package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/jobs"
	"github.com/anstrom/portsweep/internal/logging"
)

type jobMessage struct {
	Type string     `json:"type"`
	Data jobs.Event `json:"data"`
}

func dialHub(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_BroadcastsEvents(t *testing.T) {
	hub := NewHub(logging.NewNop())
	defer hub.Close()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	conn := dialHub(t, server, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	id := uuid.New()
	hub.Publish(jobs.Event{JobID: id, Status: db.JobRunning, Completed: 5, Total: 10, Progress: 50})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg jobMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "job_update", msg.Type)
	assert.Equal(t, id, msg.Data.JobID)
	assert.Equal(t, 50, msg.Data.Progress)
}

func TestHub_FiltersByJob(t *testing.T) {
	hub := NewHub(logging.NewNop())
	defer hub.Close()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	wanted := uuid.New()
	conn := dialHub(t, server, "?job_id="+wanted.String())
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(jobs.Event{JobID: uuid.New(), Status: db.JobRunning})
	hub.Publish(jobs.Event{JobID: wanted, Status: db.JobCompleted, Progress: 100})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg jobMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, wanted, msg.Data.JobID)
	assert.Equal(t, db.JobCompleted, msg.Data.Status)
}

func TestHub_RejectsBadJobID(t *testing.T) {
	hub := NewHub(logging.NewNop())
	defer hub.Close()

	rec := httptest.NewRecorder()
	hub.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/ws?job_id=zzz", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewHub(logging.NewNop())
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	conn := dialHub(t, server, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Close()
	hub.Close()
	hub.Publish(jobs.Event{JobID: uuid.New()})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
