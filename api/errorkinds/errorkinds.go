// Package errorkinds holds the sentinel errors shared by the device session
// layers. Wrapped errors are classified with errors.Is against these values.
package errorkinds

import "errors"

var (
	// ErrSessionNotExist is returned when an operation needs a live session
	// and none exists.
	ErrSessionNotExist = errors.New("session does not exist")

	// ErrSessionStop is returned to an in-flight operation when the session
	// is stopped underneath it.
	ErrSessionStop = errors.New("session was stopped")

	// ErrMethodCall is returned when a call is made with invalid arguments.
	ErrMethodCall = errors.New("invalid method call")

	// ErrNotSupported is returned when a driver does not implement an operation.
	ErrNotSupported = errors.New("operation is not supported")

	// ErrLinkFailed is returned when the transport link cannot be established.
	ErrLinkFailed = errors.New("cannot establish link with device")

	// ErrAuthRejected is returned when the device rejects pairing or
	// authentication without declaring the stored credential invalid.
	ErrAuthRejected = errors.New("authentication rejected by device")

	// ErrCredentialInvalid is returned by a driver when the device reports
	// that the credential presented to it is no longer valid.
	ErrCredentialInvalid = errors.New("device credential is invalid")

	// ErrProfileVersionMismatch is returned by a device store when the
	// on-disk layout version differs from the expected one.
	ErrProfileVersionMismatch = errors.New("device profile version mismatch")

	// ErrTransport is returned by a driver when a device exchange fails.
	ErrTransport = errors.New("device transport error")

	// ErrUnrecoverable marks a driver error that must not be retried.
	ErrUnrecoverable = errors.New("unrecoverable device error")

	// ErrTaskPanic is returned to a task whose device call panicked.
	ErrTaskPanic = errors.New("device operation panicked")

	// ErrFileNotFound is returned when a file index is unknown to the device.
	ErrFileNotFound = errors.New("file not found on device")
)

// IsHandshakeFatal reports whether err ends a session during its handshake.
func IsHandshakeFatal(err error) bool {
	return errors.Is(err, ErrLinkFailed) ||
		errors.Is(err, ErrAuthRejected) ||
		errors.Is(err, ErrCredentialInvalid) ||
		errors.Is(err, ErrProfileVersionMismatch) ||
		errors.Is(err, ErrUnrecoverable)
}

// IsAuthFailure reports whether err is a rejection by the device during
// authentication, as opposed to a link or storage problem.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthRejected) || errors.Is(err, ErrCredentialInvalid)
}

// IsCancelled reports whether err comes from a stopped session.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrSessionStop)
}

// IsTaskLocal reports whether err fails a single task while the session
// stays usable.
func IsTaskLocal(err error) bool {
	if err == nil || IsCancelled(err) || IsHandshakeFatal(err) {
		return false
	}

	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrFileNotFound) ||
		errors.Is(err, ErrTaskPanic) ||
		errors.Is(err, ErrNotSupported)
}
