package device

import (
	"context"
	"time"
)

// PairingAuthorizer is asked before a session pairs with a device that has
// no credential on file. Returning an error refuses the pairing.
type PairingAuthorizer interface {
	AuthorizePairing(timeout AuthTimeout, identity Identity) error
}

// AuthTimeout describes an authentication timeout duration.
// The context value is created with 'context.WithTimeout()'.
type AuthTimeout struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewAuthTimeout returns a new authentication timeout token derived from parent.
func NewAuthTimeout(parent context.Context, timeout time.Duration) AuthTimeout {
	ctx, cancel := context.WithTimeout(parent, timeout)

	return AuthTimeout{ctx, cancel}
}

// Done returns the inner context's Done() channel.
func (a *AuthTimeout) Done() <-chan struct{} {
	return a.ctx.Done()
}

// Err returns the inner context's error.
func (a *AuthTimeout) Err() error {
	return a.ctx.Err()
}

// Cancel cancels the inner context.
func (a *AuthTimeout) Cancel() {
	a.cancel()
}

// DefaultAuthorizer describes a default authentication handler.
type DefaultAuthorizer struct{}

// AuthorizePairing accepts all pairing authorization requests.
func (DefaultAuthorizer) AuthorizePairing(AuthTimeout, Identity) error {
	return nil
}

// AuthorizerFunc adapts a function to a PairingAuthorizer.
type AuthorizerFunc func(timeout AuthTimeout, identity Identity) error

// AuthorizePairing calls f.
func (f AuthorizerFunc) AuthorizePairing(timeout AuthTimeout, identity Identity) error {
	return f(timeout, identity)
}
