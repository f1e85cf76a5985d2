// Package device describes the device a session talks to: its lifecycle
// states, its directory of files, the driver performing the blocking
// protocol exchange and the store persisting its pairing.
package device

import "context"

// ProgressFunc receives the fraction (0..1) of a transfer completed so far.
type ProgressFunc func(fraction float64)

// Driver describes the blocking protocol exchange with one device connection.
//
// Every call blocks the calling goroutine and is only ever made from a
// session's worker. Calls should return as soon as possible once ctx is
// cancelled.
type Driver interface {
	// Link attempts to establish the transport link with the device.
	// Errors wrapping errorkinds.ErrUnrecoverable are not retried.
	Link(ctx context.Context) error

	// Identify returns the serial number and name of the linked device.
	Identify(ctx context.Context) (Identity, error)

	// Authenticate presents a stored credential to the device, or pairs with
	// it when credential is nil. It returns the credential the device accepted.
	Authenticate(ctx context.Context, credential []byte) ([]byte, error)

	// ListFiles returns the device directory.
	ListFiles(ctx context.Context) (FileSet, error)

	// DownloadFile transfers a file from the device. Progress is reported
	// synchronously, in order, before DownloadFile returns.
	DownloadFile(ctx context.Context, index uint16, progress ProgressFunc) ([]byte, error)

	// DeleteFile erases a file from the device, and reports whether the
	// device accepted the request.
	DeleteFile(ctx context.Context, index uint16) (bool, error)

	// Disconnect tears down the link.
	Disconnect(ctx context.Context) error
}

// DriverFactory returns a new driver for one session.
type DriverFactory func() (Driver, error)
