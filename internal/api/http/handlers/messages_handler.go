package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// MessagesHandler serves ticket conversations.
type MessagesHandler struct {
	service *service.MessageService
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(messageService *service.MessageService) *MessagesHandler {
	return &MessagesHandler{service: messageService}
}

// ListMessages GET /messages/:ticketId.
func (h *MessagesHandler) ListMessages(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	ticketID, err := paramID(c, "ticketId")
	if err != nil {
		return err
	}
	page, err := h.service.ListMessages(c.UserContext(), user, ticketID, parseInt(c.Query("pageNumber"), 1))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MessageListResponse{
		Messages: page.Messages,
		Ticket:   page.Ticket,
		Count:    page.Count,
		HasMore:  page.HasMore,
	}})
}

// SendMessage POST /messages/:ticketId.
func (h *MessagesHandler) SendMessage(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	ticketID, err := paramID(c, "ticketId")
	if err != nil {
		return err
	}
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	message, err := h.service.SendMessage(c.UserContext(), user, ticketID, service.SendMessageInput{
		Body:        req.Body,
		QuotedMsgID: req.QuotedMsgID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": message})
}

// DeleteMessage DELETE /messages/:messageId revokes a sent message.
func (h *MessagesHandler) DeleteMessage(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	messageID := c.Params("messageId")
	if messageID == "" {
		return apperrors.NewValidationError("messageId required", nil)
	}
	message, err := h.service.DeleteMessage(c.UserContext(), user, messageID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": message})
}
