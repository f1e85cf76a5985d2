//go:build linux

package platform

import (
	"github.com/correre-org/devsync/internal/notify"
)

// Notifier returns a platform-specific notifier. When the session bus is
// unavailable, notifications are discarded.
func Notifier(app string) (notify.Notifier, PlatformInfo) {
	n, err := notify.NewDBus(app)
	if err != nil {
		return notify.Nop{}, NewPlatformInfo(NoNotifications)
	}

	return n, NewPlatformInfo(FreedesktopNotifications)
}
