// Package memory is an in-process device store.
package memory

import (
	"context"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/correre-org/devsync/api/device"
	"github.com/correre-org/devsync/api/errorkinds"
)

// Store keeps device records in memory. Records are copied in and out.
type Store struct {
	records *xsync.MapOf[device.Serial, device.Record]
}

// New returns an empty store.
func New() *Store {
	return &Store{records: xsync.NewMapOf[device.Serial, device.Record]()}
}

// Get returns the record of serial, or nil if it is unknown.
func (s *Store) Get(serial device.Serial) (*device.Record, error) {
	record, ok := s.records.Load(serial)
	if !ok {
		return nil, nil
	}

	if record.LayoutVersion != device.LayoutVersion {
		return nil, fault.Wrap(errorkinds.ErrProfileVersionMismatch,
			fctx.With(context.Background(), "error_at", "get-record", "serial", serial.String()),
			ftag.With(ftag.Internal),
			fmsg.With("Device profile has an incompatible layout version"),
		)
	}

	record.Credential = clone(record.Credential)

	return &record, nil
}

// Put stores record under serial.
func (s *Store) Put(serial device.Serial, record device.Record) error {
	record.Serial = serial
	record.Credential = clone(record.Credential)
	s.records.Store(serial, record)

	return nil
}

// ClearCredential removes the credential of serial, if it is known.
func (s *Store) ClearCredential(serial device.Serial) error {
	s.records.Compute(serial, func(record device.Record, loaded bool) (device.Record, bool) {
		if !loaded {
			return record, true
		}

		record.Credential = nil
		return record, false
	})

	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}

	return append([]byte(nil), b...)
}
