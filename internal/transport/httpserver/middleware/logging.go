package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// quietPaths are scraped often and only logged at debug level.
var quietPaths = map[string]bool{"/metrics": true, "/livez": true, "/readyz": true}

// Logger returns a middleware that logs HTTP requests.
func Logger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", c.IP()),
			zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
		}
		if provider := c.Params("provider"); provider != "" {
			fields = append(fields, zap.String("provider", provider))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}

		switch {
		case status >= 500:
			logger.Error("request failed", fields...)
		case status >= 400:
			logger.Warn("request error", fields...)
		case quietPaths[c.Path()]:
			logger.Debug("health check served", fields...)
		case c.Method() == fiber.MethodPost:
			logger.Info("request completed", fields...)
		default:
			logger.Debug("request completed", fields...)
		}

		return err
	}
}
