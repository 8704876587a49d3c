package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/voxhub/notify-engine/internal/service"
)

type StatsService interface {
	Stats(ctx context.Context, from, to time.Time) (*service.DeliveryStats, error)
}

type StatsHandler struct {
	service StatsService
}

func NewStatsHandler(service StatsService) (*StatsHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("stats service is required")
	}
	return &StatsHandler{service: service}, nil
}

func RegisterStatsRoutes(router fiber.Router, service StatsService) error {
	h, err := NewStatsHandler(service)
	if err != nil {
		return err
	}

	router.Get("/v1/admin/delivery-stats", h.DeliveryStats)
	return nil
}

func (h *StatsHandler) DeliveryStats(c *fiber.Ctx) error {
	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return toHTTPError(err)
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return toHTTPError(err)
	}

	var fromTime, toTime time.Time
	if from != nil {
		fromTime = *from
	}
	if to != nil {
		toTime = *to
	}

	stats, err := h.service.Stats(c.UserContext(), fromTime, toTime)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}
