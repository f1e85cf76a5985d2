package device

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusString(t *testing.T) {
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "authentication failed", StatusAuthFailed.String())
	assert.Equal(t, "unknown", Status(42).String())
}

func TestStatusTransitions(t *testing.T) {
	allowed := [][2]Status{
		{StatusNone, StatusConnecting},
		{StatusConnecting, StatusAuthenticating},
		{StatusAuthenticating, StatusAuthFailed},
		{StatusAuthenticating, StatusConnected},
		{StatusAuthFailed, StatusDisconnected},
		{StatusConnected, StatusDisconnected},
		{StatusConnecting, StatusDisconnected},
		{StatusNone, StatusDisconnected},
	}
	for _, tr := range allowed {
		assert.True(t, tr[0].CanTransition(tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]Status{
		{StatusConnected, StatusConnecting},
		{StatusAuthFailed, StatusConnected},
		{StatusDisconnected, StatusConnecting},
		{StatusDisconnected, StatusDisconnected},
		{StatusNone, StatusConnected},
	}
	for _, tr := range denied {
		assert.False(t, tr[0].CanTransition(tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestFilenameRoundTrip(t *testing.T) {
	f := File{
		Index:  7,
		Type:   FileTypeActivity,
		Number: 12,
		Date:   time.Date(2015, 3, 14, 9, 26, 53, 0, time.UTC),
	}

	assert.Equal(t, "2015-03-14_09-26-53_4_12.fit", f.Filename())
	assert.Equal(t, filepath.Join("base", "activities", f.Filename()), f.Path("base"))

	parsed, err := ParseFilename(f.Filename())
	require.NoError(t, err)
	assert.Equal(t, f.Type, parsed.Type)
	assert.Equal(t, f.Number, parsed.Number)
	assert.True(t, f.Date.Equal(parsed.Date))

	_, err = ParseFilename("not-a-fit-file.fit")
	assert.Error(t, err)
}

func TestNewFileSet(t *testing.T) {
	older := File{Index: 1, Type: FileTypeActivity, Date: time.Unix(100, 0)}
	newer := File{Index: 2, Type: FileTypeActivity, Date: time.Unix(200, 0)}
	course := File{Index: 3, Type: FileTypeCourse}
	unknown := File{Index: 4, Type: FileType(200)}

	set := NewFileSet([]File{older, course, newer, unknown})

	assert.Len(t, set, len(Directories))
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, []File{newer, older}, set.Activities())
	assert.Empty(t, set[FileTypeWeight])

	f, ok := set.Find(3)
	assert.True(t, ok)
	assert.Equal(t, course, f)

	_, ok = set.Find(4)
	assert.False(t, ok)
}

func TestRecordPaired(t *testing.T) {
	var missing *Record
	assert.False(t, missing.Paired())
	assert.False(t, (&Record{}).Paired())
	assert.True(t, (&Record{Credential: []byte{1}}).Paired())
}

func TestAuthTimeout(t *testing.T) {
	timeout := NewAuthTimeout(context.Background(), time.Millisecond)
	defer timeout.Cancel()

	select {
	case <-timeout.Done():
	case <-time.After(time.Second):
		t.Fatal("auth timeout did not expire")
	}
	assert.ErrorIs(t, timeout.Err(), context.DeadlineExceeded)
	assert.NoError(t, DefaultAuthorizer{}.AuthorizePairing(timeout, Identity{}))
}
