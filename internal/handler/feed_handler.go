package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/voxhub/notify-engine/internal/domain"
	"github.com/voxhub/notify-engine/internal/repository"
)

type FeedReader interface {
	Feed(ctx context.Context, params repository.FeedParams) ([]domain.Notification, int64, error)
	MarkRead(ctx context.Context, recipientID, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Archive(ctx context.Context, recipientID, id string) error
	Delete(ctx context.Context, recipientID, id string) error
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	Preferences(ctx context.Context, recipientID string) ([]domain.NotificationPreference, error)
	SetPreference(ctx context.Context, pref *domain.NotificationPreference) error
}

type FeedHandler struct {
	service FeedReader
}

func NewFeedHandler(service FeedReader) (*FeedHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("feed service is required")
	}
	return &FeedHandler{service: service}, nil
}

func RegisterFeedRoutes(router fiber.Router, service FeedReader) error {
	h, err := NewFeedHandler(service)
	if err != nil {
		return err
	}

	recipients := router.Group("/v1/recipients/:recipientId")
	recipients.Get("/feed", h.Feed)
	recipients.Get("/feed/unread-count", h.UnreadCount)
	recipients.Post("/feed/read-all", h.MarkAllRead)
	recipients.Post("/notifications/:id/read", h.MarkRead)
	recipients.Post("/notifications/:id/archive", h.Archive)
	recipients.Delete("/notifications/:id", h.DeleteNotification)
	recipients.Get("/preferences", h.Preferences)
	recipients.Put("/preferences", h.SetPreference)

	return nil
}

type preferenceRequest struct {
	Category string `json:"category"`
	Channel  string `json:"channel"`
	Enabled  bool   `json:"enabled"`
}

type preferenceResponse struct {
	RecipientID string    `json:"recipientId"`
	Category    string    `json:"category"`
	Channel     string    `json:"channel"`
	Enabled     bool      `json:"enabled"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (h *FeedHandler) Feed(c *fiber.Ctx) error {
	params, err := parseFeedParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	notifications, total, err := h.service.Feed(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data: toNotificationResponses(notifications),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *FeedHandler) UnreadCount(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))
	count, err := h.service.CountUnread(c.UserContext(), recipientID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"recipientId": recipientID,
		"unread":      count,
	})
}

func (h *FeedHandler) MarkRead(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.MarkRead(c.UserContext(), recipientID, id); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *FeedHandler) MarkAllRead(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))
	count, err := h.service.MarkAllRead(c.UserContext(), recipientID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"recipientId": recipientID,
		"marked":      count,
	})
}

func (h *FeedHandler) Archive(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Archive(c.UserContext(), recipientID, id); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *FeedHandler) DeleteNotification(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Delete(c.UserContext(), recipientID, id); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *FeedHandler) Preferences(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))
	preferences, err := h.service.Preferences(c.UserContext(), recipientID)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]preferenceResponse, 0, len(preferences))
	for _, pref := range preferences {
		responses = append(responses, preferenceResponse{
			RecipientID: pref.RecipientID,
			Category:    pref.Category.String(),
			Channel:     pref.Channel.String(),
			Enabled:     pref.Enabled,
			UpdatedAt:   pref.UpdatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func (h *FeedHandler) SetPreference(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))

	var req preferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	category, err := domain.ParseCategoryFromString(req.Category)
	if err != nil {
		return toHTTPError(err)
	}
	channel, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return toHTTPError(err)
	}

	pref := &domain.NotificationPreference{
		RecipientID: recipientID,
		Category:    category,
		Channel:     channel,
		Enabled:     req.Enabled,
	}
	if err := h.service.SetPreference(c.UserContext(), pref); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(preferenceResponse{
		RecipientID: pref.RecipientID,
		Category:    pref.Category.String(),
		Channel:     pref.Channel.String(),
		Enabled:     pref.Enabled,
		UpdatedAt:   pref.UpdatedAt,
	})
}

func parseFeedParams(c *fiber.Ctx) (repository.FeedParams, error) {
	params := repository.FeedParams{
		RecipientID:     strings.TrimSpace(c.Params("recipientId")),
		UnreadOnly:      c.QueryBool("unreadOnly", false),
		IncludeArchived: c.QueryBool("includeArchived", false),
		Page:            c.QueryInt("page", defaultPage),
		PageSize:        c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.FeedParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.FeedParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawCategory := strings.TrimSpace(c.Query("category")); rawCategory != "" {
		category, err := domain.ParseCategoryFromString(rawCategory)
		if err != nil {
			return repository.FeedParams{}, err
		}
		params.Category = &category
	}

	return params, nil
}
