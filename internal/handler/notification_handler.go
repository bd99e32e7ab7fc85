package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/lead-notify/internal/domain"
	"github.com/kursadbilgin/lead-notify/internal/repository"
	"github.com/kursadbilgin/lead-notify/internal/service"
)

// NotificationHandler exposes the delivery audit log and the manual
// operator actions over HTTP.
type NotificationHandler struct {
	admin *service.AdminService
}

func NewNotificationHandler(admin *service.AdminService) *NotificationHandler {
	return &NotificationHandler{admin: admin}
}

func (h *NotificationHandler) RegisterRoutes(router fiber.Router) {
	group := router.Group("/v1/notifications")

	// Static paths first so they are not captured by the :id parameter.
	group.Get("/health", h.Health)
	group.Get("/stats", h.Stats)
	group.Post("/test", h.SendTest)

	group.Get("/", h.List)
	group.Get("/:id", h.GetByID)
	group.Post("/:id/retry", h.Retry)
}

type notificationResponse struct {
	ID                     string         `json:"id"`
	LeadID                 *string        `json:"leadId,omitempty"`
	Email                  string         `json:"email"`
	Type                   string         `json:"type"`
	Title                  string         `json:"title"`
	Message                string         `json:"message"`
	Payload                map[string]any `json:"payload,omitempty"`
	Status                 string         `json:"status"`
	AttemptNumber          int            `json:"attemptNumber"`
	AttemptedAt            time.Time      `json:"attemptedAt"`
	CompletedAt            *time.Time     `json:"completedAt,omitempty"`
	NextRetryAt            *time.Time     `json:"nextRetryAt,omitempty"`
	ProviderNotificationID *string        `json:"providerNotificationId,omitempty"`
	RecipientsTotal        *int           `json:"recipientsTotal,omitempty"`
	RecipientsSuccessful   *int           `json:"recipientsSuccessful,omitempty"`
	RecipientsFailed       *int           `json:"recipientsFailed,omitempty"`
	ErrorCode              *string        `json:"errorCode,omitempty"`
	ErrorMessage           *string        `json:"errorMessage,omitempty"`
	ErrorDetail            *string        `json:"errorDetail,omitempty"`
	ResponseLatencyMs      *int64         `json:"responseLatencyMs,omitempty"`
	ProcessingLatencyMs    *int64         `json:"processingLatencyMs,omitempty"`
	Metadata               map[string]any `json:"metadata,omitempty"`
	CreatedAt              time.Time      `json:"createdAt"`
	UpdatedAt              time.Time      `json:"updatedAt"`
}

func toNotificationResponse(l *domain.NotificationLog) notificationResponse {
	return notificationResponse{
		ID:                     l.ID,
		LeadID:                 l.LeadID,
		Email:                  l.Email,
		Type:                   l.Type,
		Title:                  l.Title,
		Message:                l.Message,
		Payload:                l.Payload,
		Status:                 l.Status.String(),
		AttemptNumber:          l.AttemptNumber,
		AttemptedAt:            l.AttemptedAt,
		CompletedAt:            l.CompletedAt,
		NextRetryAt:            l.NextRetryAt,
		ProviderNotificationID: l.ProviderNotificationID,
		RecipientsTotal:        l.RecipientsTotal,
		RecipientsSuccessful:   l.RecipientsSuccessful,
		RecipientsFailed:       l.RecipientsFailed,
		ErrorCode:              l.ErrorCode,
		ErrorMessage:           l.ErrorMessage,
		ErrorDetail:            l.ErrorDetail,
		ResponseLatencyMs:      l.ResponseLatencyMs,
		ProcessingLatencyMs:    l.ProcessingLatencyMs,
		Metadata:               l.Metadata,
		CreatedAt:              l.CreatedAt,
		UpdatedAt:              l.UpdatedAt,
	}
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	params := repository.ListParams{
		Email:    c.Query("email"),
		Search:   c.Query("search"),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("pageSize", 50),
	}

	if rawStatus := c.Query("status"); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		params.Status = &status
	}

	from, err := parseTimeQuery(c, "from")
	if err != nil {
		return err
	}
	params.From = from

	to, err := parseTimeQuery(c, "to")
	if err != nil {
		return err
	}
	params.To = to

	logs, total, err := h.admin.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]notificationResponse, 0, len(logs))
	for i := range logs {
		items = append(items, toNotificationResponse(&logs[i]))
	}

	return c.JSON(fiber.Map{
		"items":    items,
		"total":    total,
		"page":     params.Page,
		"pageSize": params.PageSize,
	})
}

func (h *NotificationHandler) GetByID(c *fiber.Ctx) error {
	record, err := h.admin.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(toNotificationResponse(record))
}

type retryRequest struct {
	Actor string `json:"actor"`
}

func (h *NotificationHandler) Retry(c *fiber.Ctx) error {
	var req retryRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	record, err := h.admin.Retry(c.Context(), c.Params("id"), req.Actor)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toNotificationResponse(record))
}

type sendTestRequest struct {
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload"`
}

func (h *NotificationHandler) SendTest(c *fiber.Ctx) error {
	var req sendTestRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	record, err := h.admin.SendTest(c.Context(), req.Title, req.Message, req.Payload)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toNotificationResponse(record))
}

func (h *NotificationHandler) Health(c *fiber.Ctx) error {
	status := h.admin.Health(c.Context())
	return c.JSON(fiber.Map{
		"configured": status.Configured,
		"enabled":    status.Enabled,
		"reachable":  status.Reachable,
		"latencyMs":  status.LatencyMs,
		"error":      status.Error,
	})
}

func (h *NotificationHandler) Stats(c *fiber.Ctx) error {
	from, err := parseTimeQuery(c, "from")
	if err != nil {
		return err
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		return err
	}

	var fromValue, toValue time.Time
	if from != nil {
		fromValue = *from
	}
	if to != nil {
		toValue = *to
	}

	stats, err := h.admin.Stats(c.Context(), fromValue, toValue)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(stats)
}

func parseTimeQuery(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, name+" must be RFC3339")
	}
	return &parsed, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
