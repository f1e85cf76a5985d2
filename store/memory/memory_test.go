package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correre-org/devsync/api/device"
	"github.com/correre-org/devsync/api/errorkinds"
)

func TestGetUnknown(t *testing.T) {
	record, err := New().Get(1)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestPutGetCopies(t *testing.T) {
	s := New()
	credential := []byte("secret")

	require.NoError(t, s.Put(7, device.Record{Name: "watch", Credential: credential, LayoutVersion: device.LayoutVersion}))
	credential[0] = 'X'

	record, err := s.Get(7)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, device.Serial(7), record.Serial)
	assert.Equal(t, "secret", string(record.Credential))

	record.Credential[0] = 'Y'
	again, err := s.Get(7)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(again.Credential))
}

func TestClearCredential(t *testing.T) {
	s := New()
	require.NoError(t, s.Put(7, device.Record{Name: "watch", Credential: []byte("secret"), LayoutVersion: device.LayoutVersion}))

	require.NoError(t, s.ClearCredential(7))
	require.NoError(t, s.ClearCredential(8))

	record, err := s.Get(7)
	require.NoError(t, err)
	assert.False(t, record.Paired())
	assert.Equal(t, "watch", record.Name)

	unknown, err := s.Get(8)
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestVersionMismatch(t *testing.T) {
	s := New()
	require.NoError(t, s.Put(7, device.Record{LayoutVersion: device.LayoutVersion + 1}))

	_, err := s.Get(7)
	assert.ErrorIs(t, err, errorkinds.ErrProfileVersionMismatch)
}
