package services

import (
	"context"
	"log"
)

const notificationTitle = "Habit League"

// Notifier sends a push notification to a set of members. Delivery is best-effort:
// implementations log failures and never report them to the caller.
type Notifier interface {
	Notify(ctx context.Context, memberIDs []string, title, body string)
}

// NopNotifier drops every notification. Used when no push relay is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(_ context.Context, memberIDs []string, title, _ string) {
	log.Printf("[NOTIFY] relay disabled, dropping %q for %d member(s)", title, len(memberIDs))
}

func othersThan(members []string, exclude string) []string {
	out := make([]string, 0, len(members))
	for _, id := range members {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}
