package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// Action names a gated capability. Values match the keys front-ends use.
type Action string

const (
	ActionViewAdminDrawer   Action = "drawer-admin-items:view"
	ActionShowAllTickets    Action = "tickets-manager:showall"
	ActionEditProfile       Action = "user-modal:editProfile"
	ActionEditQueues        Action = "user-modal:editQueues"
	ActionDeleteTicket      Action = "ticket-options:deleteTicket"
	ActionTransferWhatsapp  Action = "ticket-options:transferWhatsapp"
	ActionDeleteContact     Action = "contacts-page:deleteContact"
	ActionManageConnections Action = "connections-page:actionButtons"
	ActionImportContacts    Action = "contacts-page:import"
	ActionViewTicketHistory Action = "ticket-options:viewHistory"
)

var permissions = map[domain.Profile]map[Action]struct{}{
	domain.ProfileAdmin: {
		ActionViewAdminDrawer:   {},
		ActionShowAllTickets:    {},
		ActionEditProfile:       {},
		ActionEditQueues:        {},
		ActionDeleteTicket:      {},
		ActionTransferWhatsapp:  {},
		ActionDeleteContact:     {},
		ActionManageConnections: {},
		ActionImportContacts:    {},
		ActionViewTicketHistory: {},
	},
	domain.ProfileUser: {},
}

// Can reports whether the profile is allowed to perform action.
func Can(profile domain.Profile, action Action) bool {
	_, ok := permissions[profile][action]
	return ok
}

// RequireAuthenticated ensures a principal is present.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

// RequirePermission rejects callers whose profile cannot perform action.
func RequirePermission(action Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !Can(principal.Profile(), action) {
			return apperrors.NewForbidden("insufficient permissions")
		}
		return c.Next()
	}
}
