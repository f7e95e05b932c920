// Package handler provides HTTP handlers for the API.
package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"favorites-sync-service/internal/app/service"
	"favorites-sync-service/internal/domain"
	"favorites-sync-service/internal/transport/httpserver/dto"
	"favorites-sync-service/internal/validator"
)

// SyncHandler handles sync trigger, status and history requests.
type SyncHandler struct {
	syncService *service.SyncService
	validator   *validator.Validator
	logger      *zap.Logger
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(syncSvc *service.SyncService, v *validator.Validator, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		syncService: syncSvc,
		validator:   v,
		logger:      logger,
	}
}

// SyncAll handles POST /api/v1/sync
func (h *SyncHandler) SyncAll(c *fiber.Ctx) error {
	h.logger.Info("manual sync triggered")

	results := h.syncService.SyncAll(c.UserContext())

	return c.JSON(dto.FromSyncResults(results))
}

// SyncProvider handles POST /api/v1/sync/:provider
//
// With ?async=true the lock is taken synchronously and 202 is returned while
// the run continues in the background.
func (h *SyncHandler) SyncProvider(c *fiber.Ctx) error {
	name := c.Params("provider")

	var req dto.SyncRequest
	if err := c.QueryParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid query parameters",
			Code:  "INVALID_PARAMS",
		})
	}

	h.logger.Info("manual provider sync triggered",
		zap.String("provider", name),
		zap.Bool("async", req.Async),
	)

	var result service.SyncResult
	if req.Async {
		result = h.syncService.StartAsync(c.UserContext(), name)
	} else {
		result = h.syncService.Start(c.UserContext(), name)
	}

	return c.Status(syncStatusCode(result)).JSON(dto.FromSyncResult(result))
}

// Status handles GET /api/v1/sync/status
func (h *SyncHandler) Status(c *fiber.Ctx) error {
	return c.JSON(dto.FromStatus(h.syncService.IsRunning(), h.syncService.Status()))
}

// History handles GET /api/v1/sync/history
func (h *SyncHandler) History(c *fiber.Ctx) error {
	var req dto.HistoryRequest
	if err := c.QueryParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid query parameters",
			Code:  "INVALID_PARAMS",
		})
	}
	if err := h.validator.Validate(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Code:    "VALIDATION_ERROR",
			Details: err,
		})
	}

	runs, err := h.syncService.History(c.UserContext(), req.Provider, req.Limit)
	if err != nil {
		h.logger.Error("loading sync history failed", zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: "failed to load history",
			Code:  "INTERNAL_ERROR",
		})
	}

	return c.JSON(dto.FromSyncRuns(runs))
}

// GetProviders handles GET /api/v1/sync/providers
func (h *SyncHandler) GetProviders(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"providers": h.syncService.GetProviderNames(),
	})
}

func syncStatusCode(r service.SyncResult) int {
	switch r.Status {
	case domain.SyncStatusSuccess:
		return fiber.StatusOK
	case domain.SyncStatusAccepted:
		return fiber.StatusAccepted
	case domain.SyncStatusConflict:
		return fiber.StatusConflict
	}
	if r.ErrorKind == "not_found" {
		return fiber.StatusNotFound
	}

	return fiber.StatusInternalServerError
}
