package errorkinds

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/stretchr/testify/assert"
)

func TestIsHandshakeFatal(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{ErrLinkFailed, true},
		{fmt.Errorf("pair: %w", ErrAuthRejected), true},
		{fault.Wrap(ErrCredentialInvalid, fmsg.With("authenticate")), true},
		{ErrProfileVersionMismatch, true},
		{ErrTransport, false},
		{errors.New("boom"), false},
		{nil, false},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, IsHandshakeFatal(c.err), "%v", c.err)
	}
}

func TestIsAuthFailure(t *testing.T) {
	assert.True(t, IsAuthFailure(fault.Wrap(ErrAuthRejected, fmsg.With("pairing"))))
	assert.True(t, IsAuthFailure(ErrCredentialInvalid))
	assert.False(t, IsAuthFailure(ErrLinkFailed))
	assert.False(t, IsAuthFailure(ErrProfileVersionMismatch))
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(fmt.Errorf("download: %w", ErrSessionStop)))
	assert.False(t, IsCancelled(ErrTransport))
}

func TestIsTaskLocal(t *testing.T) {
	assert.True(t, IsTaskLocal(fmt.Errorf("%w: short read", ErrTransport)))
	assert.True(t, IsTaskLocal(fault.Wrap(ErrFileNotFound, fmsg.With("lookup"))))
	assert.True(t, IsTaskLocal(fmt.Errorf("%w: boom", ErrTaskPanic)))
	assert.False(t, IsTaskLocal(fmt.Errorf("%w: %w", ErrSessionStop, ErrTransport)))
	assert.False(t, IsTaskLocal(ErrLinkFailed))
	assert.False(t, IsTaskLocal(nil))
}
