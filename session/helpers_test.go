package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/correre-org/devsync/api/config"
	"github.com/correre-org/devsync/api/device"
	"github.com/correre-org/devsync/api/dispatch"
	"github.com/correre-org/devsync/store/memory"
)

const testSerial device.Serial = 3868484997

// testDevice scripts the behaviour of every driver created for a queue.
type testDevice struct {
	mu          sync.Mutex
	created     int
	links       int
	auths       int
	disconnects int
	calls       []string

	linkErr  func(attempt int) error
	authErr  func(attempt int, credential []byte) error
	list     func(ctx context.Context) (device.FileSet, error)
	download func(ctx context.Context, index uint16, progress device.ProgressFunc) ([]byte, error)
	remove   func(ctx context.Context, index uint16) (bool, error)
}

func (d *testDevice) factory() device.DriverFactory {
	return func() (device.Driver, error) {
		d.mu.Lock()
		d.created++
		d.mu.Unlock()

		return &testDriver{d}, nil
	}
}

func (d *testDevice) sessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.created
}

func (d *testDevice) linkCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.links
}

func (d *testDevice) disconnectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.disconnects
}

func (d *testDevice) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

type testDriver struct {
	d *testDevice
}

func (t *testDriver) Link(ctx context.Context) error {
	t.d.mu.Lock()
	t.d.links++
	attempt := t.d.links
	fn := t.d.linkErr
	t.d.mu.Unlock()

	if fn != nil {
		return fn(attempt)
	}

	return ctx.Err()
}

func (t *testDriver) Identify(context.Context) (device.Identity, error) {
	return device.Identity{Serial: testSerial, Name: "Forerunner 405"}, nil
}

func (t *testDriver) Authenticate(ctx context.Context, credential []byte) ([]byte, error) {
	t.d.mu.Lock()
	t.d.auths++
	attempt := t.d.auths
	fn := t.d.authErr
	t.d.mu.Unlock()

	if fn != nil {
		if err := fn(attempt, credential); err != nil {
			return nil, err
		}
	}

	if credential == nil {
		return []byte("paired"), nil
	}

	return credential, nil
}

func (t *testDriver) ListFiles(ctx context.Context) (device.FileSet, error) {
	t.d.record("list")
	if t.d.list != nil {
		return t.d.list(ctx)
	}

	return device.NewFileSet([]device.File{{Index: 1, Type: device.FileTypeActivity, Number: 1}}), nil
}

func (t *testDriver) DownloadFile(ctx context.Context, index uint16, progress device.ProgressFunc) ([]byte, error) {
	t.d.record(fmt.Sprintf("download %d", index))
	if t.d.download != nil {
		return t.d.download(ctx, index, progress)
	}

	progress(0.5)
	progress(1)

	return []byte("fit"), nil
}

func (t *testDriver) DeleteFile(ctx context.Context, index uint16) (bool, error) {
	t.d.record(fmt.Sprintf("delete %d", index))
	if t.d.remove != nil {
		return t.d.remove(ctx, index)
	}

	return true, nil
}

func (t *testDriver) Disconnect(context.Context) error {
	t.d.mu.Lock()
	t.d.disconnects++
	t.d.mu.Unlock()

	return nil
}

// harness runs a queue whose callbacks and notifications are delivered to a
// loop pumped by the test goroutine, and records them in order.
type harness struct {
	t      *testing.T
	q      *Queue
	dev    *testDevice
	store  *memory.Store
	loop   *dispatch.Loop
	events []string
	status []device.StatusEvent
}

func testConfig() config.Configuration {
	cfg := config.New()
	cfg.IdleTimeout = 50 * time.Millisecond
	cfg.LinkAttempts = 3
	cfg.LinkInterval = time.Millisecond
	cfg.AuthTimeout = time.Second
	cfg.AuthRetry = config.AuthRetryPolicy{}

	return cfg
}

func newHarness(t *testing.T, dev *testDevice, cfg config.Configuration, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		dev:   dev,
		store: memory.New(),
		loop:  dispatch.NewLoop(),
	}
	h.q = NewQueue(dev.factory(), h.store, cfg, opts...)

	cancel := h.q.Subscribe(h.loop, Listener{
		Status: func(ev device.StatusEvent) {
			h.status = append(h.status, ev)
			h.events = append(h.events, ev.Status.String())
		},
	})

	t.Cleanup(func() {
		cancel()
		h.q.Shutdown()

		ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		defer stop()
		_ = h.q.Wait(ctx)
	})

	return h
}

// pump runs posted functions on the test goroutine until done holds.
func (h *harness) pump(done func() bool) {
	h.t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		h.loop.RunPending()
		if done() {
			return
		}

		if time.Now().After(deadline) {
			h.t.Fatalf("timed out, events so far: %v", h.events)
		}

		time.Sleep(time.Millisecond)
	}
}

func (h *harness) pumpFor(d time.Duration) {
	end := time.Now().Add(d)
	for time.Now().Before(end) {
		h.loop.RunPending()
		time.Sleep(time.Millisecond)
	}
	h.loop.RunPending()
}

func (h *harness) count(event string) int {
	n := 0
	for _, e := range h.events {
		if e == event {
			n++
		}
	}

	return n
}

func (h *harness) has(event string) func() bool {
	return func() bool {
		return h.count(event) > 0
	}
}

func (h *harness) lastStatus() device.StatusEvent {
	require.NotEmpty(h.t, h.status)
	return h.status[len(h.status)-1]
}

func (h *harness) list(name string) {
	h.t.Helper()

	_, err := h.q.ListFiles(h.loop, func(_ device.FileSet, err error) {
		h.events = append(h.events, result(name, err))
	})
	require.NoError(h.t, err)
}

func result(name string, err error) string {
	if err != nil {
		return name + ":error"
	}

	return name + ":ok"
}
