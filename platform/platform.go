// Package platform selects the operating system specific pieces of the
// device session stack.
package platform

import "runtime"

// NotificationBackend names the desktop notification service in use.
type NotificationBackend string

const (
	FreedesktopNotifications NotificationBackend = "Freedesktop (DBus)"
	NoNotifications          NotificationBackend = "None"
)

// PlatformInfo describes platform-specific information.
type PlatformInfo struct {
	OS            string              `json:"os,omitempty"`
	Notifications NotificationBackend `json:"notifications,omitempty"`
}

// NewPlatformInfo returns a new PlatformInfo.
func NewPlatformInfo(backend NotificationBackend) PlatformInfo {
	return PlatformInfo{
		OS:            runtime.GOOS + " (" + runtime.GOARCH + ")",
		Notifications: backend,
	}
}

// String converts a NotificationBackend to a string.
func (b NotificationBackend) String() string {
	return string(b)
}
