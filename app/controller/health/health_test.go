package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"hubrunner/version"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func get(t *testing.T, db Pinger) (*httptest.ResponseRecorder, OkResponse) {
	t.Helper()
	e := echo.New()
	Register(e.Group(""), db)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp OkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestHealth_OK(t *testing.T) {
	rec, resp := get(t, pingFunc(func(context.Context) error { return nil }))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Ok)
	assert.Equal(t, version.Version, resp.Version)
	assert.Equal(t, "ok", resp.Database)
}

func TestHealth_DatabaseDown(t *testing.T) {
	rec, resp := get(t, pingFunc(func(context.Context) error { return errors.New("connection refused") }))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Ok)
	assert.Equal(t, "connection refused", resp.Database)
}

func TestHealth_NoDatabase(t *testing.T) {
	rec, resp := get(t, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "disabled", resp.Database)
}
