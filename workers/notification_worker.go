package workers

import (
	"context"
	"log"

	"github.com/laur2000/padel-tournment-web/services"
)

// DispatchNotifications drains the notification queue until the context is
// cancelled. Delivery is fire-and-forget: a failed email or push is logged by
// the service and never blocks the queue or the operation that enqueued it.
func DispatchNotifications(ctx context.Context, svc *services.NotificationService) {
	log.Println("Starting notification dispatch worker...")

	for {
		select {
		case <-ctx.Done():
			log.Println("Notification dispatch worker stopped.")
			return
		case n, ok := <-svc.Queue():
			if !ok {
				log.Println("Notification queue closed.")
				return
			}
			svc.Deliver(n)
		}
	}
}
