//go:build linux

package notify

import (
	"context"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"
)

const (
	notificationsName   = "org.freedesktop.Notifications"
	notificationsPath   = "/org/freedesktop/Notifications"
	notificationsMethod = notificationsName + ".Notify"

	expireTimeout int32 = 5000
)

// DBus shows notifications through the freedesktop notification service
// on the session bus. Each notification replaces the previous one.
type DBus struct {
	conn *dbus.Conn
	app  string

	mu       sync.Mutex
	replaces uint32
}

// NewDBus connects to the session bus.
func NewDBus(app string) (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "dbus-connect"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot connect to the session bus"),
		)
	}

	return &DBus{conn: conn, app: app}, nil
}

// Notify shows a notification.
func (d *DBus) Notify(summary, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	call := d.conn.Object(notificationsName, notificationsPath).Call(
		notificationsMethod, 0,
		d.app, d.replaces, "", summary, body,
		[]string{}, map[string]dbus.Variant{}, expireTimeout,
	)
	if call.Err != nil {
		return fault.Wrap(call.Err,
			fctx.With(context.Background(), "error_at", "dbus-notify"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot send notification"),
		)
	}

	return call.Store(&d.replaces)
}

// Close closes the bus connection.
func (d *DBus) Close() error {
	return d.conn.Close()
}
