package platform

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPlatformInfo(t *testing.T) {
	info := NewPlatformInfo(NoNotifications)

	assert.True(t, strings.HasPrefix(info.OS, runtime.GOOS))
	assert.Equal(t, "None", info.Notifications.String())
}

func TestNotifierAlwaysUsable(t *testing.T) {
	n, info := Notifier("correre-test")
	defer n.Close()

	assert.NotNil(t, n)
	assert.NotEmpty(t, info.Notifications)
}
