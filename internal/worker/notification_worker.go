package worker

import (
	"github.com/helpdesk-sla/sla-service/internal/service"
)

// StartNotificationWorker subscribes the notification service to SLA events.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
