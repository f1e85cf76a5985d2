// Package filestore keeps device records in per-device profile directories.
//
// Each device gets a directory named after its serial number below the base
// directory, holding a version file, an authfile with the pairing credential,
// a name file and one sub-directory per file type for downloaded files.
package filestore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"go.uber.org/zap"

	"github.com/correre-org/devsync/api/device"
	"github.com/correre-org/devsync/api/errorkinds"
	"github.com/correre-org/devsync/internal/logging"
)

// Profile file names.
const (
	VersionFile = "version"
	PasskeyFile = "authfile"
	NameFile    = "name"
)

// Store is a device store on the local filesystem.
type Store struct {
	base   string
	logger *zap.Logger

	mu sync.Mutex
}

// New returns a store rooted at base.
func New(base string, logger *zap.Logger) *Store {
	return &Store{
		base:   base,
		logger: logging.OrNop(logger),
	}
}

// Path returns the profile directory of serial.
func (s *Store) Path(serial device.Serial) string {
	return device.ProfilePath(s.base, serial)
}

// Get loads the profile of serial. An absent profile directory is an
// unknown device.
func (s *Store) Get(serial device.Serial) (*device.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(serial)
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, storeError(err, serial, "stat-profile", "Cannot access device profile")
		}

		return nil, nil
	}

	version := readVersion(path)
	if err := checkVersion(version, serial); err != nil {
		return nil, err
	}

	record := &device.Record{
		Serial:        serial,
		LayoutVersion: version,
	}

	name, err := os.ReadFile(filepath.Join(path, NameFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, storeError(err, serial, "read-name", "Cannot read device name")
	}
	record.Name = strings.TrimSpace(string(name))

	credential, err := os.ReadFile(filepath.Join(path, PasskeyFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Cannot read device credential", zap.Stringer("serial", serial), zap.Error(err))
	}
	if len(credential) > 0 {
		record.Credential = credential
	}

	return record, nil
}

// Put creates or updates the profile of serial.
func (s *Store) Put(serial device.Serial, record device.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(serial)
	for _, dir := range device.Directories {
		if err := os.MkdirAll(filepath.Join(path, dir), 0o755); err != nil {
			return storeError(err, serial, "create-profile", "Cannot create device profile")
		}
	}

	versionPath := filepath.Join(path, VersionFile)
	if _, err := os.Stat(versionPath); errors.Is(err, fs.ErrNotExist) {
		version := record.LayoutVersion
		if version == 0 {
			version = device.LayoutVersion
		}

		if err := writeFile(versionPath, []byte(strconv.Itoa(version)), 0o644); err != nil {
			return storeError(err, serial, "write-version", "Cannot write profile version")
		}
	}

	if record.Name != "" {
		if err := writeFile(filepath.Join(path, NameFile), []byte(record.Name), 0o644); err != nil {
			return storeError(err, serial, "write-name", "Cannot write device name")
		}
	}

	if record.Credential == nil {
		return removeFile(filepath.Join(path, PasskeyFile), serial)
	}

	if err := writeFile(filepath.Join(path, PasskeyFile), record.Credential, 0o600); err != nil {
		return storeError(err, serial, "write-credential", "Cannot write device credential")
	}

	return nil
}

// ClearCredential removes the authfile of serial.
func (s *Store) ClearCredential(serial device.Serial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return removeFile(filepath.Join(s.Path(serial), PasskeyFile), serial)
}

// readVersion returns the layout version of a profile. A missing file is
// the current version and an unreadable one is version 0.
func readVersion(path string) int {
	data, err := os.ReadFile(filepath.Join(path, VersionFile))
	if errors.Is(err, fs.ErrNotExist) {
		return device.LayoutVersion
	}
	if err != nil {
		return 0
	}

	version, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}

	return version
}

func checkVersion(version int, serial device.Serial) error {
	var msg string
	switch {
	case version < device.LayoutVersion:
		msg = "Version on disk is too old"

	case version > device.LayoutVersion:
		msg = "Version on disk is too new"

	default:
		return nil
	}

	return fault.Wrap(errorkinds.ErrProfileVersionMismatch,
		fctx.With(context.Background(),
			"error_at", "check-version",
			"serial", serial.String(),
			"version", strconv.Itoa(version),
		),
		ftag.With(ftag.Internal),
		fmsg.With(msg),
	)
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}

	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(name, perm); err != nil {
		return err
	}

	return os.Rename(name, path)
}

func removeFile(path string, serial device.Serial) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storeError(err, serial, "remove-credential", "Cannot remove device credential")
	}

	return nil
}

func storeError(err error, serial device.Serial, at, msg string) error {
	return fault.Wrap(err,
		fctx.With(context.Background(), "error_at", at, "serial", serial.String()),
		ftag.With(ftag.Internal),
		fmsg.With(msg),
	)
}
