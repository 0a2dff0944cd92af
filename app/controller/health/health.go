// Package health is for the health route
package health

import (
	"context"
	"net/http"

	"hubrunner/version"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type (
	Handler struct {
		db Pinger
	}
	OkResponse struct {
		Ok       bool   `json:"ok"`
		Version  string `json:"version"`
		Database string `json:"database"`
	}
)

func NewHandler(db Pinger) *Handler {
	return &Handler{db: db}
}

func (h Handler) GET(c echo.Context) error {
	resp := OkResponse{
		Ok:       true,
		Version:  version.Version,
		Database: "ok",
	}
	if h.db == nil {
		resp.Database = "disabled"
	} else if err := h.db.PingContext(c.Request().Context()); err != nil {
		resp.Ok = false
		resp.Database = err.Error()
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func Register(g *echo.Group, db Pinger) {
	h := NewHandler(db)

	g.GET("/health", h.GET)
}
