package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correre-org/devsync/api/device"
	"github.com/correre-org/devsync/api/errorkinds"
)

func openStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func TestGetUnknown(t *testing.T) {
	record, err := openStore(t).Get(1)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestPutGetClear(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Put(3868484997, device.Record{
		Name:          "Forerunner 405",
		Credential:    []byte{9, 8, 7},
		LayoutVersion: device.LayoutVersion,
	}))

	record, err := s.Get(3868484997)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, device.Serial(3868484997), record.Serial)
	assert.Equal(t, "Forerunner 405", record.Name)
	assert.Equal(t, []byte{9, 8, 7}, record.Credential)

	require.NoError(t, s.ClearCredential(3868484997))

	record, err = s.Get(3868484997)
	require.NoError(t, err)
	assert.False(t, record.Paired())
	assert.Equal(t, "Forerunner 405", record.Name)
}

func TestPutReplaces(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Put(5, device.Record{Name: "old", Credential: []byte("a")}))
	require.NoError(t, s.Put(5, device.Record{Name: "new", Credential: []byte("b")}))

	record, err := s.Get(5)
	require.NoError(t, err)
	assert.Equal(t, "new", record.Name)
	assert.Equal(t, []byte("b"), record.Credential)
}

func TestVersionMismatch(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Put(5, device.Record{LayoutVersion: device.LayoutVersion + 1}))

	_, err := s.Get(5)
	require.ErrorIs(t, err, errorkinds.ErrProfileVersionMismatch)
	assert.Contains(t, err.Error(), "too new")
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.db")

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(5, device.Record{Name: "watch", Credential: []byte("k")}))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	record, err := s.Get(5)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "watch", record.Name)
}
