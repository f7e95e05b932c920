package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"favorites-sync-service/internal/app/service"
	"favorites-sync-service/internal/domain"
	"favorites-sync-service/internal/transport/httpserver/dto"
	"favorites-sync-service/internal/validator"
)

// GalleryHandler serves read-only queries over the loaded snapshots.
type GalleryHandler struct {
	service   *service.GalleryService
	validator *validator.Validator
	logger    *zap.Logger
}

// NewGalleryHandler creates a new GalleryHandler.
func NewGalleryHandler(svc *service.GalleryService, v *validator.Validator, logger *zap.Logger) *GalleryHandler {
	return &GalleryHandler{
		service:   svc,
		validator: v,
		logger:    logger,
	}
}

// List handles GET /api/v1/gallery/:provider
func (h *GalleryHandler) List(c *fiber.Ctx) error {
	provider := c.Params("provider")

	var req dto.GalleryRequest
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

	page, err := h.service.List(c.UserContext(), req.ToGalleryQuery(provider))
	if err != nil {
		return h.fail(c, provider, err)
	}

	return c.JSON(dto.FromGalleryPage(provider, page))
}

// Get handles GET /api/v1/gallery/:provider/items/:id
func (h *GalleryHandler) Get(c *fiber.Ctx) error {
	provider, id := c.Params("provider"), c.Params("id")

	rec, err := h.service.Get(c.UserContext(), provider, id)
	if err != nil {
		return h.fail(c, provider, err)
	}
	if rec == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "item not found",
			Code:  "NOT_FOUND",
		})
	}

	return c.JSON(rec)
}

// Stats handles GET /api/v1/gallery/:provider/stats
func (h *GalleryHandler) Stats(c *fiber.Ctx) error {
	provider := c.Params("provider")

	stats, err := h.service.Stats(c.UserContext(), provider)
	if err != nil {
		return h.fail(c, provider, err)
	}

	return c.JSON(dto.StatsResponse{
		Provider:      provider,
		Total:         stats.Total,
		Categories:    stats.Categories,
		Subcategories: stats.Subcategories,
	})
}

// Quarterly handles GET /api/v1/gallery/:provider/quarterly-stats
func (h *GalleryHandler) Quarterly(c *fiber.Ctx) error {
	provider := c.Params("provider")

	quarters, err := h.service.Quarterly(c.UserContext(), provider)
	if err != nil {
		return h.fail(c, provider, err)
	}

	return c.JSON(dto.QuarterlyResponse{Provider: provider, Data: quarters})
}

// TopTags handles GET /api/v1/gallery/:provider/top-tags
func (h *GalleryHandler) TopTags(c *fiber.Ctx) error {
	provider := c.Params("provider")

	var req dto.TopTagsRequest
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

	tags, err := h.service.TopTags(c.UserContext(), provider, req.Limit(), req.Type)
	if err != nil {
		return h.fail(c, provider, err)
	}

	return c.JSON(dto.TopTagsResponse{Provider: provider, TopTags: tags})
}

func (h *GalleryHandler) fail(c *fiber.Ctx, provider string, err error) error {
	if errors.Is(err, domain.ErrProviderNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "provider not found",
			Code:  "PROVIDER_NOT_FOUND",
		})
	}

	h.logger.Error("gallery query failed", zap.String("provider", provider), zap.Error(err))

	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
		Error: "query failed",
		Code:  "INTERNAL_ERROR",
	})
}
