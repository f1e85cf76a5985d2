//go:build !linux

package platform

import (
	"github.com/correre-org/devsync/internal/notify"
)

// Notifier returns a platform-specific notifier.
func Notifier(string) (notify.Notifier, PlatformInfo) {
	return notify.Nop{}, NewPlatformInfo(NoNotifications)
}
