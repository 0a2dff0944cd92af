// Package tasks handles the task routes
package tasks

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"hubrunner/app/services/orchestrator"
	"hubrunner/domain/task"

	"github.com/labstack/echo/v4"
)

const HeaderAPIKey = "X-API-Key"

// Service is the slice of the orchestrator the handlers need.
type Service interface {
	Submit(req orchestrator.SubmitRequest) (task.Task, error)
	SubmitBatch(ctx context.Context, req orchestrator.BatchRequest) ([]task.Task, error)
	Get(id string) (task.Task, error)
	List(filters task.TaskFilters) []task.Task
	Stats() orchestrator.Stats
	Cancel(id string) (task.Task, error)
	Remove(id string) error
	RemoveOutput(id string, index int) (task.Task, bool, error)
	ClearTerminal() int
}

type (
	Handler struct {
		svc           Service
		defaultAPIKey string
	}
	TaskRequest struct {
		AppID    string          `json:"app_id" validate:"required"`
		AppName  string          `json:"app_name"`
		WebappID string          `json:"webapp_id" validate:"required"`
		APIKey   string          `json:"api_key"`
		Params   []task.NodeInfo `json:"params" validate:"dive"`
	}
	BatchRequest struct {
		AppID     string            `json:"app_id" validate:"required"`
		AppName   string            `json:"app_name"`
		WebappID  string            `json:"webapp_id" validate:"required"`
		APIKey    string            `json:"api_key"`
		ParamSets [][]task.NodeInfo `json:"param_sets" validate:"required,min=1,dive,dive"`
	}
	// BatchResponse reports a partial batch with Truncated set and the
	// reason in Error.
	BatchResponse struct {
		BatchID   string      `json:"batch_id"`
		Tasks     []task.Task `json:"tasks"`
		Requested int         `json:"requested"`
		Truncated bool        `json:"truncated,omitempty"`
		Error     string      `json:"error,omitempty"`
	}
	RemoveOutputResponse struct {
		Task    *task.Task `json:"task,omitempty"`
		Deleted bool       `json:"deleted"`
	}
	ClearResponse struct {
		Cleared int `json:"cleared"`
	}
)

func NewHandler(svc Service, defaultAPIKey string) *Handler {
	return &Handler{svc: svc, defaultAPIKey: defaultAPIKey}
}

// apiKey prefers the request header, then the body, then the server default.
func (h Handler) apiKey(c echo.Context, fromBody string) string {
	if key := c.Request().Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	if fromBody != "" {
		return fromBody
	}
	return h.defaultAPIKey
}

func (h Handler) Create(c echo.Context) error {
	var req TaskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if err := c.Validate(&req); err != nil {
		return err
	}

	created, err := h.svc.Submit(orchestrator.SubmitRequest{
		AppID:       req.AppID,
		AppName:     req.AppName,
		Credentials: task.Credentials{APIKey: h.apiKey(c, req.APIKey), WebappID: req.WebappID},
		Params:      req.Params,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to submit task: " + err.Error(),
		})
	}

	return c.JSON(http.StatusCreated, created)
}

func (h Handler) CreateBatch(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	if err := c.Validate(&req); err != nil {
		return err
	}

	created, err := h.svc.SubmitBatch(c.Request().Context(), orchestrator.BatchRequest{
		AppID:       req.AppID,
		AppName:     req.AppName,
		Credentials: task.Credentials{APIKey: h.apiKey(c, req.APIKey), WebappID: req.WebappID},
		ParamSets:   req.ParamSets,
	})
	if err != nil && len(created) == 0 {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to submit batch: " + err.Error(),
		})
	}

	resp := BatchResponse{Tasks: created, Requested: len(req.ParamSets)}
	if len(created) > 0 {
		resp.BatchID = created[0].BatchID
	}
	if err != nil {
		resp.Truncated = true
		resp.Error = err.Error()
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h Handler) Index(c echo.Context) error {
	var filters task.TaskFilters

	if raw := c.QueryParam("status"); raw != "" {
		status, ok := parseStatus(raw)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "Invalid status: " + raw,
			})
		}
		filters.Status = &status
	}

	return c.JSON(http.StatusOK, h.svc.List(filters))
}

func (h Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Stats())
}

func (h Handler) Get(c echo.Context) error {
	t, err := h.svc.Get(c.Param("id"))
	if err != nil {
		return notFound(c)
	}

	return c.JSON(http.StatusOK, t)
}

func (h Handler) Cancel(c echo.Context) error {
	t, err := h.svc.Cancel(c.Param("id"))
	switch {
	case errors.Is(err, orchestrator.ErrTaskNotFound):
		return notFound(c)
	case errors.Is(err, orchestrator.ErrNotCancellable):
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "Task is already finished",
		})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, t)
}

func (h Handler) Delete(c echo.Context) error {
	if err := h.svc.Remove(c.Param("id")); err != nil {
		return notFound(c)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h Handler) DeleteOutput(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid output index"})
	}

	t, deleted, err := h.svc.RemoveOutput(c.Param("id"), index)
	switch {
	case errors.Is(err, orchestrator.ErrTaskNotFound):
		return notFound(c)
	case errors.Is(err, orchestrator.ErrOutputIndex):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Output index out of range"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	resp := RemoveOutputResponse{Deleted: deleted}
	if !deleted {
		resp.Task = &t
	}
	return c.JSON(http.StatusOK, resp)
}

func (h Handler) ClearHistory(c echo.Context) error {
	return c.JSON(http.StatusOK, ClearResponse{Cleared: h.svc.ClearTerminal()})
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Create)
	g.POST("/batch", h.CreateBatch)
	g.GET("", h.Index)
	g.GET("/stats", h.Stats)
	g.DELETE("/history", h.ClearHistory)
	g.GET("/:id", h.Get)
	g.POST("/:id/cancel", h.Cancel)
	g.DELETE("/:id", h.Delete)
	g.DELETE("/:id/outputs/:index", h.DeleteOutput)
}

func notFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, map[string]string{
		"error": "Task not found",
	})
}

func parseStatus(raw string) (task.Status, bool) {
	s := task.Status(strings.ToUpper(raw))
	switch s {
	case task.StatusPending, task.StatusQueued, task.StatusRunning, task.StatusSuccess, task.StatusFailed:
		return s, true
	}
	return "", false
}
