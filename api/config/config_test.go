package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, 5*time.Second, cfg.IdleTimeout)
	assert.Equal(t, DefaultAuthTimeout, cfg.AuthTimeout)
	assert.Equal(t, 0, cfg.AuthRetry.Attempts)
	assert.Equal(t, StoreFile, cfg.Store)
	assert.Equal(t, "correre", filepath.Base(cfg.ProfileDir))
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, New(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "correre.toml")
	content := `
profile_dir = "/var/lib/correre"
store = "sqlite"

[session]
idle_timeout = "250ms"
link_attempts = 2
auth_retries = 3
auth_retry_delay = "1s"

[fake]
base_path = "/srv/device"
wait = "10ms"
auth_fail = true

[log]
level = "debug"
format = "json"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/correre", cfg.ProfileDir)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, 250*time.Millisecond, cfg.IdleTimeout)
	assert.Equal(t, 2, cfg.LinkAttempts)
	assert.Equal(t, AuthRetryPolicy{Attempts: 3, Delay: time.Second}, cfg.AuthRetry)
	assert.Equal(t, "/srv/device", cfg.Fake.BasePath)
	assert.Equal(t, 10*time.Millisecond, cfg.Fake.Wait)
	assert.True(t, cfg.Fake.AuthFail)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, DefaultAuthTimeout, cfg.AuthTimeout)
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()

	bad := map[string]string{
		"duration.toml": "[session]\nidle_timeout = \"soon\"\n",
		"store.toml":    "store = \"floppy\"\n",
		"syntax.toml":   "store = \n",
	}
	for name, content := range bad {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		_, err := Load(path)
		assert.Error(t, err, name)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FAKE_GARMIN":               "1",
		"FAKE_GARMIN_TIME":          "5",
		"FAKE_GARMIN_BASE_PATH":     "/tmp/fake",
		"FAKE_GARMIN_NO_ACTIVITIES": "1",
	}

	cfg := New()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, DriverFake, cfg.Driver)
	assert.Equal(t, 5*time.Millisecond, cfg.Fake.Wait)
	assert.Equal(t, "/tmp/fake", cfg.FakeBasePath())
	assert.True(t, cfg.Fake.NoActivities)
	assert.False(t, cfg.Fake.AuthFail)

	env["FAKE_GARMIN_TIME"] = "later"
	assert.Error(t, cfg.ApplyEnv(func(k string) string { return env[k] }))
}

func TestValidate(t *testing.T) {
	cfg := New()
	cfg.IdleTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = New()
	cfg.LinkAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg = New()
	cfg.Driver = "usb"
	assert.Error(t, cfg.Validate())
}
