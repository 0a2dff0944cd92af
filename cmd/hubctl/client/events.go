package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"hubrunner/domain/task"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Event is one message of the server's task event stream.
type Event struct {
	Type  string      `json:"type"`
	Task  *task.Task  `json:"task,omitempty"`
	Tasks []task.Task `json:"tasks,omitempty"`
}

// Watch streams task events to fn until ctx ends, the server closes the
// stream, or fn returns an error.
func (c *HTTPClient) Watch(ctx context.Context, fn func(Event) error) error {
	header := http.Header{}
	if c.apiKey != "" {
		header.Set(headerAPIKey, c.apiKey)
	}

	conn, _, err := websocket.Dial(ctx, c.baseURL+"/api/v1/events", &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer conn.CloseNow()

	for {
		var ev Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("event stream: %w", err)
		}
		if err := fn(ev); err != nil {
			if errors.Is(err, ErrStopWatching) {
				conn.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			return err
		}
	}
}

// ErrStopWatching ends Watch without error when returned by its callback.
var ErrStopWatching = errors.New("stop watching")
