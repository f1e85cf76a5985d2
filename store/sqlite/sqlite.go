// Package sqlite keeps device records in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"go.uber.org/zap"

	// Pure-Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/correre-org/devsync/api/device"
	"github.com/correre-org/devsync/api/errorkinds"
	"github.com/correre-org/devsync/internal/logging"
)

const currentSchemaVersion = 1

// Store is a device store backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	mu sync.RWMutex
}

// Open opens or creates the database at path. Use ":memory:" for a
// throwaway database.
func Open(path string, logger *zap.Logger) (*Store, error) {
	logger = logging.OrNop(logger)

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.Debug("Device database ready",
		zap.String("path", path),
		zap.Int("schema_version", currentSchemaVersion),
	)

	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the record of serial, or nil if it is unknown.
func (s *Store) Get(serial device.Serial) (*device.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record := device.Record{Serial: serial}

	var credential []byte
	err := s.db.QueryRow(
		"SELECT name, credential, layout_version FROM devices WHERE serial = ?",
		int64(serial),
	).Scan(&record.Name, &credential, &record.LayoutVersion)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil

	case err != nil:
		return nil, storeError(err, serial, "get-device", "Cannot read device record")
	}

	if record.LayoutVersion != device.LayoutVersion {
		msg := "Version on disk is too old"
		if record.LayoutVersion > device.LayoutVersion {
			msg = "Version on disk is too new"
		}

		return nil, fault.Wrap(errorkinds.ErrProfileVersionMismatch,
			fctx.With(context.Background(),
				"error_at", "check-version",
				"serial", serial.String(),
				"version", strconv.Itoa(record.LayoutVersion),
			),
			ftag.With(ftag.Internal),
			fmsg.With(msg),
		)
	}

	if len(credential) > 0 {
		record.Credential = credential
	}

	return &record, nil
}

// Put creates or replaces the record of serial.
func (s *Store) Put(serial device.Serial, record device.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := record.LayoutVersion
	if version == 0 {
		version = device.LayoutVersion
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO devices (serial, name, credential, layout_version, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		int64(serial),
		record.Name,
		record.Credential,
		version,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return storeError(err, serial, "put-device", "Cannot write device record")
	}

	return nil
}

// ClearCredential removes the credential of serial, if it is known.
func (s *Store) ClearCredential(serial device.Serial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"UPDATE devices SET credential = NULL, updated_at = ? WHERE serial = ?",
		time.Now().UTC().Format(time.RFC3339),
		int64(serial),
	)
	if err != nil {
		return storeError(err, serial, "clear-credential", "Cannot clear device credential")
	}

	return nil
}

func (s *Store) initSchema() error {
	const schemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	if version < 1 {
		if err := s.migrateToV1(); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	return nil
}

// migrateToV1 creates the devices table.
func (s *Store) migrateToV1() error {
	s.logger.Info("Applying device database migration", zap.Int("version", 1))

	const devicesTable = `
		CREATE TABLE IF NOT EXISTS devices (
			serial INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			credential BLOB,
			layout_version INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(devicesTable); err != nil {
		return fmt.Errorf("create devices table: %w", err)
	}

	_, err := s.db.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		1,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
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
