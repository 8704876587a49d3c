package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/voxhub/notify-engine/internal/domain"
	"github.com/voxhub/notify-engine/internal/repository"
	"github.com/voxhub/notify-engine/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type EventService interface {
	EnqueueEvent(ctx context.Context, event *domain.Event) (*service.EnqueueResult, error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	Cancel(ctx context.Context, id string) error
	List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
}

type EventHandler struct {
	service EventService
}

func NewEventHandler(service EventService) (*EventHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("event service is required")
	}
	return &EventHandler{service: service}, nil
}

func RegisterEventRoutes(router fiber.Router, service EventService) error {
	h, err := NewEventHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/events", h.SubmitEvent)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Post("/notifications/:id/cancel", h.CancelNotification)
	v1.Get("/notifications", h.ListNotifications)

	return nil
}

type submitEventRequest struct {
	EventID      string          `json:"eventId"`
	Category     string          `json:"category"`
	RecipientIDs []string        `json:"recipientIds"`
	Title        string          `json:"title"`
	Body         string          `json:"body"`
	Link         *string         `json:"link,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	DedupeKey    *string         `json:"dedupeKey,omitempty"`
	ScheduledAt  *time.Time      `json:"scheduledAt,omitempty"`
	MaxRetries   int             `json:"maxRetries,omitempty"`
}

type submitEventResponse struct {
	EventID    string                 `json:"eventId"`
	Created    []notificationResponse `json:"created"`
	Duplicates int                    `json:"duplicates"`
}

type notificationResponse struct {
	ID             string          `json:"id"`
	EventID        string          `json:"eventId"`
	IdempotencyKey *string         `json:"idempotencyKey,omitempty"`
	RecipientID    string          `json:"recipientId"`
	Category       string          `json:"category"`
	Title          string          `json:"title"`
	Body           string          `json:"body"`
	Link           *string         `json:"link,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Status         string          `json:"status"`
	Suppressed     bool            `json:"suppressed"`
	RetryCount     int             `json:"retryCount"`
	MaxRetries     int             `json:"maxRetries"`
	LastError      *string         `json:"lastError,omitempty"`
	ScheduledAt    *time.Time      `json:"scheduledAt,omitempty"`
	NextRetryAt    *time.Time      `json:"nextRetryAt,omitempty"`
	DeliveredAt    *time.Time      `json:"deliveredAt,omitempty"`
	ReadAt         *time.Time      `json:"readAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt,omitempty"`
}

type listNotificationsResponse struct {
	Data []notificationResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *EventHandler) SubmitEvent(c *fiber.Ctx) error {
	var req submitEventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	event, err := requestToDomainEvent(req)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.service.EnqueueEvent(c.UserContext(), event)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(submitEventResponse{
		EventID:    result.EventID,
		Created:    toNotificationResponses(result.Created),
		Duplicates: result.Duplicates,
	})
}

func (h *EventHandler) GetNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	notification, err := h.service.GetByID(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func (h *EventHandler) CancelNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Cancel(c.UserContext(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"notificationId": id,
		"status":         domain.StatusCanceled.String(),
	})
}

func (h *EventHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	notifications, total, err := h.service.List(c.UserContext(), params)
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

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	if rawCategory := strings.TrimSpace(c.Query("category")); rawCategory != "" {
		category, err := domain.ParseCategoryFromString(rawCategory)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Category = &category
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func requestToDomainEvent(req submitEventRequest) (*domain.Event, error) {
	category, err := domain.ParseCategoryFromString(req.Category)
	if err != nil {
		return nil, err
	}

	recipients := make([]string, 0, len(req.RecipientIDs))
	for _, id := range req.RecipientIDs {
		recipients = append(recipients, strings.TrimSpace(id))
	}

	return &domain.Event{
		ID:           strings.TrimSpace(req.EventID),
		Category:     category,
		RecipientIDs: recipients,
		Title:        strings.TrimSpace(req.Title),
		Body:         req.Body,
		Link:         req.Link,
		Payload:      req.Payload,
		DedupeKey:    req.DedupeKey,
		ScheduledAt:  req.ScheduledAt,
		MaxRetries:   req.MaxRetries,
	}, nil
}

func toNotificationResponses(notifications []domain.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, notification := range notifications {
		n := notification
		responses = append(responses, toNotificationResponse(&n))
	}
	return responses
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:             n.ID,
		EventID:        n.EventID,
		IdempotencyKey: n.IdempotencyKey,
		RecipientID:    n.RecipientID,
		Category:       n.Category.String(),
		Title:          n.Title,
		Body:           n.Body,
		Link:           n.Link,
		Payload:        n.Payload,
		Status:         n.Status.String(),
		Suppressed:     n.Suppressed,
		RetryCount:     n.RetryCount,
		MaxRetries:     n.MaxRetries,
		LastError:      n.LastError,
		ScheduledAt:    n.ScheduledAt,
		NextRetryAt:    n.NextRetryAt,
		DeliveredAt:    n.DeliveredAt,
		ReadAt:         n.ReadAt,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
