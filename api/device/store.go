package device

import (
	"path/filepath"
	"strconv"
)

// LayoutVersion is the device profile layout this code reads and writes.
const LayoutVersion = 1

// Serial is the serial number reported by a device.
type Serial uint32

// String converts a Serial to a string.
func (s Serial) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// Identity describes a device as reported during authentication.
type Identity struct {
	Serial Serial `json:"serial"`
	Name   string `json:"name"`
}

// Record is the persisted identity of a device.
type Record struct {
	Serial        Serial
	Name          string
	Credential    []byte
	LayoutVersion int
}

// Paired reports whether the record holds a pairing credential.
func (r *Record) Paired() bool {
	return r != nil && len(r.Credential) > 0
}

// Store persists device records keyed by serial number.
//
// Get returns nil, nil for a device that was never stored. A record whose
// layout version differs from LayoutVersion is reported as an error wrapping
// errorkinds.ErrProfileVersionMismatch and is never migrated.
type Store interface {
	Get(serial Serial) (*Record, error)
	Put(serial Serial, record Record) error
	ClearCredential(serial Serial) error
}

// ProfilePath returns the profile directory of a device below base.
func ProfilePath(base string, serial Serial) string {
	return filepath.Join(base, serial.String())
}
