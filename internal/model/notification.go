package model

import "time"

// Notification is a message shown to a user inside the application,
// created as a side effect of booking and releasing reservations.
// Delivery is best-effort: a failed insert never fails the booking.
type Notification struct {
	ID        uint64    // notifications.id
	UserID    uint64    // notifications.user_id
	Title     string    // notifications.title
	Body      string    // notifications.body
	IsRead    bool      // notifications.is_read
	CreatedAt time.Time // notifications.created_at
}
