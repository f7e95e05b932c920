package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"favorites-sync-service/internal/metrics"
	"favorites-sync-service/internal/transport/httpserver/dto"
)

// PanicDetails is returned in the body of a recovered request so the caller
// can hand the request id over when reporting the failure.
type PanicDetails struct {
	RequestID string `json:"request_id,omitempty"`
}

// Recover returns a middleware that turns handler panics into a 500.
//
// The panic is logged with its stack, the matched route and the provider
// path parameter, and counted per route in metrics.HTTPPanics. Panics raised
// while the response was already streamed still replace the body.
func Recover(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			route := c.Route().Path
			requestID := c.GetRespHeader(fiber.HeaderXRequestID)
			metrics.HTTPPanics.WithLabelValues(route).Inc()

			logger.Error("panic recovered",
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()),
				zap.String("route", route),
				zap.String("path", c.Path()),
				zap.String("provider", c.Params("provider")),
				zap.String("request_id", requestID),
			)

			c.Response().ResetBody()
			err = c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
				Error:   "internal server error",
				Code:    "PANIC",
				Details: PanicDetails{RequestID: requestID},
			})
		}()

		return c.Next()
	}
}
