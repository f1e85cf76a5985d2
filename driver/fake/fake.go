// Package fake simulates a device whose directory is a folder on the host.
//
// The folder is laid out like a device profile: one sub-directory per file
// type holding files named after device.File.Filename. An optional
// device.json file overrides the reported identity, and the credential the
// simulated device was paired with is kept in a .passkey file.
package fake

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"github.com/correre-org/devsync/api/config"
	"github.com/correre-org/devsync/api/device"
	"github.com/correre-org/devsync/api/errorkinds"
	"github.com/correre-org/devsync/internal/serde"
)

const (
	// DefaultSerial is reported when neither device.json nor the base path
	// name provide a serial number.
	DefaultSerial device.Serial = 3868484997

	// DefaultName is the reported device name.
	DefaultName = "Forerunner 405"

	identityFile = "device.json"
	passkeyFile  = ".passkey"
	passkeyLen   = 8

	progressSteps = 4
)

// Driver is a simulated device backed by a directory.
type Driver struct {
	opts config.FakeDevice

	mu            sync.Mutex
	linked        bool
	authenticated bool
	paths         map[uint16]string
}

// New returns a new fake driver.
func New(opts config.FakeDevice) *Driver {
	return &Driver{opts: opts}
}

// Factory returns a driver factory creating fake drivers with opts.
func Factory(opts config.FakeDevice) device.DriverFactory {
	return func() (device.Driver, error) {
		if opts.BasePath == "" {
			return nil, fault.Wrap(errorkinds.ErrUnrecoverable,
				fctx.With(context.Background(), "error_at", "fake-driver"),
				ftag.With(ftag.InvalidArgument),
				fmsg.With("No base path for the fake device"),
			)
		}

		return New(opts), nil
	}
}

// Link waits for the simulated latency and links the device.
func (d *Driver) Link(ctx context.Context) error {
	if err := d.wait(ctx); err != nil {
		return err
	}

	info, err := os.Stat(d.opts.BasePath)
	if err != nil || !info.IsDir() {
		return fault.Wrap(errorkinds.ErrUnrecoverable,
			fctx.With(ctx, "error_at", "link", "path", d.opts.BasePath),
			ftag.With(ftag.NotFound),
			fmsg.With("Fake device directory does not exist"),
		)
	}

	d.mu.Lock()
	d.linked = true
	d.mu.Unlock()

	return nil
}

// Identify returns the identity from device.json, or one derived from the
// base path.
func (d *Driver) Identify(ctx context.Context) (device.Identity, error) {
	if err := d.ready(ctx, false); err != nil {
		return device.Identity{}, err
	}

	identity := device.Identity{Serial: DefaultSerial, Name: DefaultName}
	if serial, err := strconv.ParseUint(filepath.Base(d.opts.BasePath), 10, 32); err == nil {
		identity.Serial = device.Serial(serial)
	}

	data, err := os.ReadFile(filepath.Join(d.opts.BasePath, identityFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return identity, nil

	case err != nil:
		return device.Identity{}, transportError(ctx, err, "identify")
	}

	if err := serde.UnmarshalJson(data, &identity); err != nil {
		return device.Identity{}, transportError(ctx, err, "identify")
	}

	return identity, nil
}

// Authenticate pairs with the device when credential is nil, or checks
// credential against the one the device was paired with.
func (d *Driver) Authenticate(ctx context.Context, credential []byte) ([]byte, error) {
	if err := d.ready(ctx, false); err != nil {
		return nil, err
	}

	if err := d.wait(ctx); err != nil {
		return nil, err
	}

	if d.opts.AuthFail {
		return nil, fault.Wrap(errorkinds.ErrAuthRejected,
			fctx.With(ctx, "error_at", "authenticate"),
			ftag.With(ftag.Unauthenticated),
			fmsg.With("Device refused authentication"),
		)
	}

	path := filepath.Join(d.opts.BasePath, passkeyFile)

	if credential == nil {
		passkey := make([]byte, passkeyLen)
		if _, err := rand.Read(passkey); err != nil {
			return nil, transportError(ctx, err, "pair")
		}

		if err := os.WriteFile(path, passkey, 0o600); err != nil {
			return nil, transportError(ctx, err, "pair")
		}

		d.setAuthenticated()

		return passkey, nil
	}

	stored, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(stored, credential) {
		return nil, fault.Wrap(errorkinds.ErrCredentialInvalid,
			fctx.With(ctx, "error_at", "authenticate"),
			ftag.With(ftag.Unauthenticated),
			fmsg.With("Device does not know this passkey"),
		)
	}

	d.setAuthenticated()

	return credential, nil
}

// ListFiles scans the type directories of the device.
func (d *Driver) ListFiles(ctx context.Context) (device.FileSet, error) {
	if err := d.ready(ctx, true); err != nil {
		return nil, err
	}

	if err := d.wait(ctx); err != nil {
		return nil, err
	}

	files, err := d.scan(ctx)
	if err != nil {
		return nil, err
	}

	return device.NewFileSet(files), nil
}

// DownloadFile reads a file, reporting progress in a few steps.
func (d *Driver) DownloadFile(ctx context.Context, index uint16, progress device.ProgressFunc) ([]byte, error) {
	path, err := d.lookup(ctx, index)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, transportError(ctx, err, "download-file")
	}

	for step := 1; step <= progressSteps; step++ {
		if err := sleep(ctx, d.opts.Wait/progressSteps); err != nil {
			return nil, err
		}

		if progress != nil {
			progress(float64(step) / progressSteps)
		}
	}

	return data, nil
}

// DeleteFile removes a file. It reports false if the file is already gone.
func (d *Driver) DeleteFile(ctx context.Context, index uint16) (bool, error) {
	path, err := d.lookup(ctx, index)
	if err != nil {
		return false, err
	}

	if err := d.wait(ctx); err != nil {
		return false, err
	}

	err = os.Remove(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil

	case err != nil:
		return false, transportError(ctx, err, "delete-file")
	}

	d.mu.Lock()
	delete(d.paths, index)
	d.mu.Unlock()

	return true, nil
}

// Disconnect unlinks the device.
func (d *Driver) Disconnect(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.linked = false
	d.authenticated = false
	d.paths = nil

	return nil
}

// scan lists every parsable file, assigning indices in directory order.
func (d *Driver) scan(ctx context.Context) ([]device.File, error) {
	types := make([]device.FileType, 0, len(device.Directories))
	for t := range device.Directories {
		if t == device.FileTypeActivity && d.opts.NoActivities {
			continue
		}
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var (
		files []device.File
		index uint16
	)
	paths := make(map[uint16]string)

	for _, t := range types {
		dir := filepath.Join(d.opts.BasePath, t.Directory())

		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, transportError(ctx, err, "list-files")
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			f, err := device.ParseFilename(entry.Name())
			if err != nil || f.Type != t {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				continue
			}

			index++
			f.Index = index
			f.Size = uint32(info.Size())

			files = append(files, f)
			paths[index] = filepath.Join(dir, entry.Name())
		}
	}

	d.mu.Lock()
	d.paths = paths
	d.mu.Unlock()

	return files, nil
}

func (d *Driver) lookup(ctx context.Context, index uint16) (string, error) {
	if err := d.ready(ctx, true); err != nil {
		return "", err
	}

	d.mu.Lock()
	scanned := d.paths != nil
	d.mu.Unlock()

	if !scanned {
		if _, err := d.scan(ctx); err != nil {
			return "", err
		}
	}

	d.mu.Lock()
	path, ok := d.paths[index]
	d.mu.Unlock()

	if !ok {
		return "", fault.Wrap(errorkinds.ErrFileNotFound,
			fctx.With(ctx, "error_at", "lookup", "index", strconv.Itoa(int(index))),
			ftag.With(ftag.NotFound),
			fmsg.With("No such file on the device"),
		)
	}

	return path, nil
}

func (d *Driver) ready(ctx context.Context, authenticated bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.linked || (authenticated && !d.authenticated) {
		return fault.Wrap(errorkinds.ErrSessionNotExist,
			fctx.With(ctx, "error_at", "fake-driver"),
			ftag.With(ftag.Internal),
			fmsg.With("Device is not connected"),
		)
	}

	return nil
}

func (d *Driver) setAuthenticated() {
	d.mu.Lock()
	d.authenticated = true
	d.mu.Unlock()
}

func (d *Driver) wait(ctx context.Context) error {
	return sleep(ctx, d.opts.Wait)
}

func sleep(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()

	case <-timer.C:
		return nil
	}
}

func transportError(ctx context.Context, err error, at string) error {
	return fault.Wrap(fmt.Errorf("%w: %w", errorkinds.ErrTransport, err),
		fctx.With(ctx, "error_at", at),
		ftag.With(ftag.Internal),
		fmsg.With("Fake device exchange failed"),
	)
}
