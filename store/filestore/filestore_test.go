package filestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correre-org/devsync/api/device"
	"github.com/correre-org/devsync/api/errorkinds"
)

const serial device.Serial = 3868484997

func TestGetUnknownDevice(t *testing.T) {
	record, err := New(t.TempDir(), nil).Get(serial)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestPutCreatesProfileLayout(t *testing.T) {
	base := t.TempDir()
	s := New(base, nil)

	require.NoError(t, s.Put(serial, device.Record{
		Name:          "Forerunner 405",
		Credential:    []byte{1, 2, 3, 4},
		LayoutVersion: device.LayoutVersion,
	}))

	profile := filepath.Join(base, "3868484997")
	for _, dir := range device.Directories {
		assert.DirExists(t, filepath.Join(profile, dir))
	}

	version, err := os.ReadFile(filepath.Join(profile, VersionFile))
	require.NoError(t, err)
	assert.Equal(t, "1", string(version))

	record, err := s.Get(serial)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, serial, record.Serial)
	assert.Equal(t, "Forerunner 405", record.Name)
	assert.Equal(t, []byte{1, 2, 3, 4}, record.Credential)
	assert.Equal(t, device.LayoutVersion, record.LayoutVersion)
}

func TestClearCredential(t *testing.T) {
	s := New(t.TempDir(), nil)
	require.NoError(t, s.Put(serial, device.Record{Name: "watch", Credential: []byte("key")}))

	require.NoError(t, s.ClearCredential(serial))
	require.NoError(t, s.ClearCredential(serial))

	record, err := s.Get(serial)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.False(t, record.Paired())
	assert.Equal(t, "watch", record.Name)
	assert.NoFileExists(t, filepath.Join(s.Path(serial), PasskeyFile))
}

func TestPutWithoutCredentialRemovesAuthfile(t *testing.T) {
	s := New(t.TempDir(), nil)
	require.NoError(t, s.Put(serial, device.Record{Credential: []byte("key")}))
	require.NoError(t, s.Put(serial, device.Record{}))

	record, err := s.Get(serial)
	require.NoError(t, err)
	assert.False(t, record.Paired())
}

func TestMissingVersionFileIsCurrent(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "3868484997"), 0o755))

	record, err := New(base, nil).Get(serial)
	require.NoError(t, err)
	assert.Equal(t, device.LayoutVersion, record.LayoutVersion)
}

func TestVersionMismatch(t *testing.T) {
	tests := []struct {
		name    string
		content string
		message string
	}{
		{name: "older", content: "0", message: "too old"},
		{name: "garbage", content: "abc", message: "too old"},
		{name: "newer", content: "2", message: "too new"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			profile := filepath.Join(base, "3868484997")
			require.NoError(t, os.MkdirAll(profile, 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(profile, VersionFile), []byte(tt.content), 0o644))

			_, err := New(base, nil).Get(serial)
			require.ErrorIs(t, err, errorkinds.ErrProfileVersionMismatch)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestPutKeepsExistingVersion(t *testing.T) {
	base := t.TempDir()
	s := New(base, nil)
	require.NoError(t, s.Put(serial, device.Record{}))

	versionPath := filepath.Join(s.Path(serial), VersionFile)
	require.NoError(t, os.WriteFile(versionPath, []byte("2"), 0o644))
	require.NoError(t, s.Put(serial, device.Record{LayoutVersion: device.LayoutVersion}))

	version, err := os.ReadFile(versionPath)
	require.NoError(t, err)
	assert.Equal(t, "2", string(version))
}
