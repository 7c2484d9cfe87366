package worker

import (
	"github.com/spec-kit/helpdesk/internal/service"
)

// StartNotificationWorker registers the bus counters and the Kafka export.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
