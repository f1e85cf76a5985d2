// Package notify shows device session status changes as desktop notifications.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/correre-org/devsync/api/device"
	"github.com/correre-org/devsync/api/eventbus"
	"github.com/correre-org/devsync/internal/logging"
)

// Notifier displays a notification.
type Notifier interface {
	Notify(summary, body string) error
	Close() error
}

// Nop is a notifier that discards notifications.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(string, string) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

// Message returns the notification text for ev. Transitions not worth
// interrupting the user for report false.
func Message(ev device.StatusEvent) (summary, body string, ok bool) {
	name := ev.Identity.Name
	if name == "" {
		name = "Device"
	}

	switch ev.Status {
	case device.StatusConnected:
		return name + " connected", fmt.Sprintf("Serial %s", ev.Identity.Serial), true

	case device.StatusAuthFailed:
		body := "Authentication failed"
		if ev.Err != nil {
			body = ev.Err.Error()
		}

		return name + " refused the connection", body, true

	case device.StatusDisconnected:
		if ev.Err != nil {
			return name + " disconnected", ev.Err.Error(), true
		}
	}

	return "", "", false
}

// Watch shows notifications for the status events received on sub until
// ctx is done or the subscription is closed.
func Watch(ctx context.Context, n Notifier, sub eventbus.SubscriberID, logger *zap.Logger) {
	logger = logging.OrNop(logger)
	defer sub.Unsubscribe()

	for {
		ev, err := eventbus.Receive[device.StatusEvent](ctx, &sub)
		if err != nil {
			return
		}

		summary, body, ok := Message(ev)
		if !ok {
			continue
		}

		if err := n.Notify(summary, body); err != nil {
			logger.Debug("Cannot show notification", zap.Error(err))
		}
	}
}
