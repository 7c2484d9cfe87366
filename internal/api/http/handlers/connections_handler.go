package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/service"
)

// ConnectionsHandler drives whatsapp sessions and the contact import that
// reads from them.
type ConnectionsHandler struct {
	connections *service.ConnectionService
	contacts    *service.ContactService
}

// NewConnectionsHandler constructs handler.
func NewConnectionsHandler(connections *service.ConnectionService, contacts *service.ContactService) *ConnectionsHandler {
	return &ConnectionsHandler{connections: connections, contacts: contacts}
}

// StartSession POST /whatsappsession/:whatsappId.
func (h *ConnectionsHandler) StartSession(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "whatsappId")
	if err != nil {
		return err
	}
	wa, err := h.connections.StartSession(c.UserContext(), user, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": wa})
}

// Logout DELETE /whatsappsession/:whatsappId.
func (h *ConnectionsHandler) Logout(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "whatsappId")
	if err != nil {
		return err
	}
	if err := h.connections.Logout(c.UserContext(), user, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "loggedOut": true}})
}

// ImportContacts POST /contacts/import/:whatsappId.
func (h *ConnectionsHandler) ImportContacts(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "whatsappId")
	if err != nil {
		return err
	}
	imported, err := h.contacts.ImportContacts(c.UserContext(), user, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ImportContactsResponse{Imported: imported}})
}
