package eventbus

// Event types published by the scheduling facade and the local center.
const (
	PermissionResolved    = "permission.resolved"
	NotificationScheduled = "notification.scheduled"
	NotificationRejected  = "notification.rejected"
	NotificationCancelled = "notification.cancelled"
	NotificationFired     = "notification.fired"
	NotificationExpired   = "notification.expired"
)

// PublishTo is a nil-safe Publish.
func PublishTo(b Bus, typ string, data any) {
	if b == nil {
		return
	}
	b.Publish(Event{Type: typ, Data: data})
}
