// Package apps exposes remote application lookups, account status and input
// uploads.
package apps

import (
	"context"
	"errors"
	"io"
	"net/http"

	"hubrunner/app/services/appcatalog"
	"hubrunner/app/services/assetupload"
	"hubrunner/internal/remotejob"

	"github.com/labstack/echo/v4"
)

const HeaderAPIKey = "X-API-Key"

type Catalog interface {
	WebappDetail(ctx context.Context, apiKey, webappID string) (*remotejob.WebappDetail, error)
	AccountStatus(ctx context.Context, apiKey string) (*remotejob.AccountStatus, error)
}

type Uploader interface {
	Upload(ctx context.Context, apiKey, fileName string, r io.Reader) (*remotejob.UploadResult, error)
}

type Handler struct {
	catalog       Catalog
	uploader      Uploader
	defaultAPIKey string
}

func NewHandler(catalog Catalog, uploader Uploader, defaultAPIKey string) *Handler {
	return &Handler{catalog: catalog, uploader: uploader, defaultAPIKey: defaultAPIKey}
}

func (h Handler) apiKey(c echo.Context) string {
	if key := c.Request().Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	return h.defaultAPIKey
}

func (h Handler) Show(c echo.Context) error {
	detail, err := h.catalog.WebappDetail(c.Request().Context(), h.apiKey(c), c.Param("webappId"))
	if err != nil {
		return remoteError(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h Handler) Account(c echo.Context) error {
	status, err := h.catalog.AccountStatus(c.Request().Context(), h.apiKey(c))
	if err != nil {
		return remoteError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

func (h Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing file"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unreadable file"})
	}
	defer f.Close()

	result, err := h.uploader.Upload(c.Request().Context(), h.apiKey(c), fh.Filename, f)
	if err != nil {
		return remoteError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

func remoteError(c echo.Context, err error) error {
	var apiErr *remotejob.APIError
	switch {
	case errors.Is(err, appcatalog.ErrMissingAPIKey), errors.Is(err, assetupload.ErrMissingAPIKey):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, appcatalog.ErrMissingWebappID), errors.Is(err, assetupload.ErrMissingName):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, assetupload.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
	case errors.As(err, &apiErr):
		return c.JSON(http.StatusBadGateway, map[string]any{"error": apiErr.Message, "code": apiErr.Code})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/apps/:webappId", h.Show)
	g.GET("/account", h.Account)
	g.POST("/uploads", h.Upload)
}
