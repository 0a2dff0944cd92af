// Package events streams task changes over a WebSocket.
package events

import (
	"context"
	"sync"
	"time"

	"hubrunner/app/services/taskstore"
	"hubrunner/domain/task"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const (
	MessageSnapshot = "snapshot"

	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

type Source interface {
	List(filters task.TaskFilters) []task.Task
	Subscribe(fn taskstore.Listener) func()
}

// Message is what clients receive. The first message on every connection is
// a snapshot of all tasks; later ones carry a single store event.
type Message struct {
	Type  string      `json:"type"`
	Task  *task.Task  `json:"task,omitempty"`
	Tasks []task.Task `json:"tasks,omitempty"`
}

type Handler struct {
	source Source
}

func NewHandler(source Source) *Handler {
	return &Handler{source: source}
}

func (h Handler) Stream(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.WithError(err).Warn("websocket accept failed")
		return nil
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(c.Request().Context())
	logger := log.WithField("remote", c.RealIP())

	// Subscribe before the snapshot so nothing falls in between.
	events := make(chan taskstore.Event, sendBuffer)
	overflow := make(chan struct{})
	var once sync.Once
	unsubscribe := h.source.Subscribe(func(ev taskstore.Event) {
		select {
		case events <- ev:
		default:
			once.Do(func() { close(overflow) })
		}
	})
	defer unsubscribe()

	logger.Info("event stream connected")
	if err := write(ctx, conn, Message{Type: MessageSnapshot, Tasks: h.source.List(task.TaskFilters{})}); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("event stream disconnected")
			return nil
		case <-overflow:
			logger.Warn("event stream client too slow, closing")
			conn.Close(websocket.StatusPolicyViolation, "client too slow")
			return nil
		case ev := <-events:
			msg := Message{Type: string(ev.Type)}
			if ev.Type != taskstore.EventCleared {
				t := ev.Task
				msg.Task = &t
			}
			if err := write(ctx, conn, msg); err != nil {
				logger.WithError(err).Debug("event stream write failed")
				return nil
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.Stream)
}
