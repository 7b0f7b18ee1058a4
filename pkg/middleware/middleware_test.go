package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unibrain/erpconsole/pkg/errors"
	"github.com/unibrain/erpconsole/pkg/response"
	"go.uber.org/zap"
)

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler, DisableStartupMessage: true})
	app.Use(Recovery(), RequestID(), AccessLog(zap.NewNop()))
	app.Get("/panic", func(c *fiber.Ctx) error { panic("boom") })
	app.Get("/denied", func(c *fiber.Ctx) error { return errors.ErrUnauthorized })
	app.Get("/superseded", func(c *fiber.Ctx) error {
		return errors.Wrap(errors.ErrStorage, errors.ErrSessionSuperseded)
	})
	app.Get("/id", func(c *fiber.Ctx) error { return c.SendString(GetRequestID(c)) })
	return app
}

func decode(t *testing.T, resp *http.Response) response.Response {
	t.Helper()
	defer resp.Body.Close()
	var out response.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestRecovery(t *testing.T) {
	resp, err := newApp().Test(httptest.NewRequest(http.MethodGet, "/panic", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, response.CodeServerError, decode(t, resp).Code)
}

func TestRequestIDGeneratedOrEchoed(t *testing.T) {
	app := newApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/id", nil))
	require.NoError(t, err)
	assert.Len(t, resp.Header.Get("X-Request-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}

func TestErrorHandlerMapsAppErrors(t *testing.T) {
	app := newApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/denied", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, errors.ErrUnauthorized.Message, decode(t, resp).Message)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/superseded", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
