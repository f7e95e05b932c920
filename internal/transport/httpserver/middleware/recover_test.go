package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	promdto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"favorites-sync-service/internal/metrics"
)

func panicCount(t *testing.T, route string) float64 {
	t.Helper()

	var m promdto.Metric
	require.NoError(t, metrics.HTTPPanics.WithLabelValues(route).Write(&m))

	return m.GetCounter().GetValue()
}

// TestRecover_Panic tests that a panicking handler yields a 500 carrying the
// request id, is logged with its route and is counted.
func TestRecover_Panic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	route := "/recover-test/:provider"
	before := panicCount(t, route)

	app := fiber.New()
	app.Use(requestid.New())
	app.Use(Recover(zap.New(core)))
	app.Get(route, func(c *fiber.Ctx) error {
		_, _ = c.WriteString("partial")
		panic("snapshot holder missing")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/recover-test/jm", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out struct {
		Code    string       `json:"code"`
		Details PanicDetails `json:"details"`
	}
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	assert.Equal(t, "PANIC", out.Code)
	assert.NotEmpty(t, out.Details.RequestID)
	assert.Equal(t, resp.Header.Get(fiber.HeaderXRequestID), out.Details.RequestID)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "snapshot holder missing", fields["panic"])
	assert.Equal(t, route, fields["route"])
	assert.Equal(t, "jm", fields["provider"])

	assert.Equal(t, before+1, panicCount(t, route))
}

// TestRecover_PassesErrors tests that ordinary handler errors are untouched.
func TestRecover_PassesErrors(t *testing.T) {
	app := fiber.New()
	app.Use(Recover(zap.NewNop()))
	app.Get("/teapot", func(*fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short and stout")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/teapot", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)
}
