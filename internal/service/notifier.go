package service

import (
	"context"
	"log"
)

// Notifier delivers an in-app notification to a user. Implementations
// must be safe to call from request handlers; delivery is best-effort
// and failures are expected to be swallowed by the caller.
type Notifier interface {
	Notify(ctx context.Context, userID uint64, title, body string)
}

// notificationStore is the persistence surface the DB-backed notifier
// needs. *repository.NotificationRepo satisfies it.
type notificationStore interface {
	Create(ctx context.Context, userID uint64, title, body string) error
}

// DBNotifier stores notifications in the database. Errors are logged
// and dropped so a notification failure never fails a booking or a
// release.
type DBNotifier struct {
	store notificationStore
}

func NewDBNotifier(store notificationStore) *DBNotifier {
	return &DBNotifier{store: store}
}

func (n *DBNotifier) Notify(ctx context.Context, userID uint64, title, body string) {
	if err := n.store.Create(ctx, userID, title, body); err != nil {
		log.Printf("notifier: store notification for user %d failed: %v", userID, err)
	}
}
