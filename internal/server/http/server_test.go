package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/config"
	"github.com/Additional-Code/atelier/pkg/errorbank"
)

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

type envelope struct {
	Success bool `json:"success"`
	Error   struct {
		Kind string `json:"kind"`
	} `json:"error"`
	Meta map[string]any `json:"meta"`
}

func serve(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthReflectsDatabase(t *testing.T) {
	ok := newRouter(config.Config{}, nil, pinger{}, zap.NewNop())
	assert.Equal(t, http.StatusOK, serve(ok, http.MethodGet, "/health").Code)

	down := newRouter(config.Config{}, nil, pinger{err: errors.New("refused")}, zap.NewNop())
	assert.Equal(t, http.StatusServiceUnavailable, serve(down, http.MethodGet, "/health").Code)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	e := newRouter(config.Config{}, nil, nil, zap.NewNop())

	rec := serve(e, http.MethodGet, "/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, string(errorbank.KindNotFound), body.Error.Kind)
	assert.NotEmpty(t, body.Meta["request_id"])
}

func TestEscapedAppErrorKeepsKind(t *testing.T) {
	e := newRouter(config.Config{}, nil, nil, zap.NewNop())
	e.GET("/conflict", func(echo.Context) error { return errorbank.Conflict("already paid") })
	e.GET("/panic", func(echo.Context) error { panic("boom") })

	assert.Equal(t, http.StatusConflict, serve(e, http.MethodGet, "/conflict").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(e, http.MethodGet, "/panic").Code)
}
