package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hubrunner/domain/task"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReadsUntilStopped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/events", r.URL.Path)
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.CloseNow()

		ctx := r.Context()
		wsjson.Write(ctx, conn, Event{Type: "snapshot", Tasks: []task.Task{{ID: "tsk_1"}}})
		wsjson.Write(ctx, conn, Event{Type: "updated", Task: &task.Task{ID: "tsk_1", Status: task.StatusRunning}})
		wsjson.Write(ctx, conn, Event{Type: "updated", Task: &task.Task{ID: "tsk_1", Status: task.StatusSuccess}})
		conn.Read(ctx)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var seen []string
	err := NewHTTPClient(server.URL, "").Watch(ctx, func(ev Event) error {
		seen = append(seen, ev.Type)
		if ev.Task != nil && ev.Task.Status.IsTerminal() {
			return ErrStopWatching
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"snapshot", "updated", "updated"}, seen)
}

func TestWatch_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	err := NewHTTPClient(server.URL, "").Watch(context.Background(), func(Event) error { return nil })

	assert.Error(t, err)
}
