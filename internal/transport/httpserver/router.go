// Package httpserver provides HTTP server and routing.
package httpserver

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"favorites-sync-service/internal/app/service"
	"favorites-sync-service/internal/transport/httpserver/dto"
	"favorites-sync-service/internal/transport/httpserver/handler"
	"favorites-sync-service/internal/transport/httpserver/middleware"
	"favorites-sync-service/internal/validator"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port      int
	BodyLimit int
	Debug     bool
}

// Server wraps Fiber app with handlers.
type Server struct {
	App    *fiber.App
	Logger *zap.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(
	cfg ServerConfig,
	syncSvc *service.SyncService,
	gallerySvc *service.GalleryService,
	ready middleware.ReadinessFunc,
	v *validator.Validator,
	logger *zap.Logger,
) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "favorites-sync-service",
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          errorHandler(logger),
		DisableStartupMessage: !cfg.Debug,
	})

	// Health check middleware MUST be registered BEFORE other middleware
	// for Kubernetes probes to work even during high load
	app.Use(middleware.NewHealthCheck(ready))

	app.Use(requestid.New())
	app.Use(middleware.Recover(logger))
	app.Use(middleware.Logger(logger))
	app.Use(compress.New())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	registerRoutes(app,
		handler.NewSyncHandler(syncSvc, v, logger),
		handler.NewGalleryHandler(gallerySvc, v, logger),
	)

	return &Server{
		App:    app,
		Logger: logger,
	}
}

// registerRoutes sets up all API routes.
func registerRoutes(app *fiber.App, syncHandler *handler.SyncHandler, galleryHandler *handler.GalleryHandler) {
	// Health checks are handled by middleware (/livez, /readyz)

	v1 := app.Group("/api/v1")

	sync := v1.Group("/sync")
	sync.Get("/status", syncHandler.Status)
	sync.Get("/history", syncHandler.History)
	sync.Get("/providers", syncHandler.GetProviders)
	sync.Post("/", syncHandler.SyncAll)
	sync.Post("/:provider", syncHandler.SyncProvider)

	gallery := v1.Group("/gallery")
	gallery.Get("/:provider", galleryHandler.List)
	gallery.Get("/:provider/stats", galleryHandler.Stats)
	gallery.Get("/:provider/quarterly-stats", galleryHandler.Quarterly)
	gallery.Get("/:provider/top-tags", galleryHandler.TopTags)
	gallery.Get("/:provider/items/:id", galleryHandler.Get)
}

// errorHandler returns a custom error handler that logs based on HTTP status code.
// 404s are logged at DEBUG level (expected client behavior), 4xx at WARN, 5xx at ERROR.
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		errCode := "UNHANDLED_ERROR"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		switch {
		case code == fiber.StatusNotFound:
			errCode = "NOT_FOUND"
			logger.Debug("resource not found",
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
			)
		case code >= 500:
			logger.Error("server error",
				zap.Error(err),
				zap.Int("status", code),
				zap.String("path", c.Path()),
			)
		default:
			logger.Warn("client error",
				zap.Error(err),
				zap.Int("status", code),
				zap.String("path", c.Path()),
			)
		}

		return c.Status(code).JSON(dto.ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
	}
}

// Start starts the HTTP server.
func (s *Server) Start(port int) error {
	s.Logger.Info("starting HTTP server", zap.Int("port", port))

	return s.App.Listen(fmt.Sprintf(":%d", port))
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.Logger.Info("shutting down HTTP server")

	return s.App.Shutdown()
}
