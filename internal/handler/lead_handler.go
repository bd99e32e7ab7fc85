package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/lead-notify/internal/service"
)

// LeadHandler is the intake boundary for the lead-creation flow: it accepts
// the lead-submitted fact and hands it to the dispatch pipeline. The response
// reports acceptance, never delivery outcome (fire-and-forget).
type LeadHandler struct {
	dispatch *service.DispatchService
}

func NewLeadHandler(dispatch *service.DispatchService) *LeadHandler {
	return &LeadHandler{dispatch: dispatch}
}

func (h *LeadHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/v1/leads/notify", h.Notify)
}

type leadNotifyRequest struct {
	LeadID      string         `json:"leadId"`
	Email       string         `json:"email"`
	SubmittedAt string         `json:"submittedAt"`
	Payload     map[string]any `json:"payload"`
}

func (h *LeadHandler) Notify(c *fiber.Ctx) error {
	var req leadNotifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	submission := service.LeadSubmission{
		LeadID:    req.LeadID,
		Email:     req.Email,
		UserAgent: c.Get(fiber.HeaderUserAgent),
		ClientIP:  c.IP(),
		Payload:   req.Payload,
	}
	if req.SubmittedAt != "" {
		submittedAt, err := time.Parse(time.RFC3339, req.SubmittedAt)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "submittedAt must be RFC3339")
		}
		submission.SubmittedAt = submittedAt
	}

	record, err := h.dispatch.NotifyLeadSubmitted(c.Context(), submission)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toNotificationResponse(record))
}
