package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketsHandler serves the ticket board and the state machine.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	input, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	page, err := h.service.ListTickets(c.UserContext(), user, input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketListResponse{
		Tickets: page.Tickets,
		Count:   page.Count,
		HasMore: page.HasMore,
	}})
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ContactID <= 0 {
		return apperrors.NewValidationError("contactId required", nil)
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), user, service.CreateTicketInput{
		ContactID:  req.ContactID,
		UserID:     req.UserID,
		QueueID:    req.QueueID,
		WhatsappID: req.WhatsappID,
		Status:     req.Status,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticket})
}

// ShowTicket GET /tickets/:id. Agents allowed to see the audit trail get
// it inline.
func (h *TicketsHandler) ShowTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ticket, err := h.service.ShowTicket(c.UserContext(), id)
	if err != nil {
		return err
	}
	resp := dto.TicketDetailResponse{Ticket: ticket}
	if auth.Can(user.Profile, auth.ActionViewTicketHistory) {
		history, err := h.service.ListHistory(c.UserContext(), user, id)
		if err != nil {
			return err
		}
		resp.History = history
	}
	return c.JSON(fiber.Map{"data": resp})
}

// UpdateTicket PUT /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.UpdateTicket(c.UserContext(), user, id, service.UpdateTicketInput{
		Status:     req.Status,
		UserID:     req.UserID,
		QueueID:    req.QueueID,
		WhatsappID: req.WhatsappID,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticket})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.service.DeleteTicket(c.UserContext(), user, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}

func parseTicketQuery(c *fiber.Ctx) (service.ListTicketsInput, error) {
	input := service.ListTicketsInput{
		Status:             domain.TicketStatus(c.Query("status")),
		SearchParam:        strings.TrimSpace(c.Query("searchParam")),
		ShowAll:            parseBool(c.Query("showAll")),
		Date:               parseDate(c.Query("date")),
		WithUnreadMessages: parseBool(c.Query("withUnreadMessages")),
		PageNumber:         parseInt(c.Query("pageNumber"), 1),
	}
	if input.Status != "" && !input.Status.Valid() {
		return input, apperrors.NewValidationError("invalid status", map[string]any{"status": input.Status})
	}
	if raw := c.Query("queueIds"); raw != "" {
		ids, err := parseIDList(raw)
		if err != nil {
			return input, apperrors.NewValidationError("invalid queueIds", map[string]any{"queueIds": raw})
		}
		input.QueueIDs = ids
	}
	return input, nil
}

// parseIDList accepts "1,2,3" as well as the JSON array form "[1,2,3]".
func parseIDList(raw string) ([]int64, error) {
	raw = strings.Trim(strings.TrimSpace(raw), "[]")
	ids := []int64{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
