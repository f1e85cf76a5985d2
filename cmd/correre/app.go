package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/correre-org/devsync/api/config"
	"github.com/correre-org/devsync/api/device"
	"github.com/correre-org/devsync/api/dispatch"
	"github.com/correre-org/devsync/api/errorkinds"
	"github.com/correre-org/devsync/api/eventbus"
	"github.com/correre-org/devsync/driver/fake"
	"github.com/correre-org/devsync/internal/metrics"
	"github.com/correre-org/devsync/internal/notify"
	"github.com/correre-org/devsync/platform"
	"github.com/correre-org/devsync/session"
	"github.com/correre-org/devsync/store/filestore"
	"github.com/correre-org/devsync/store/memory"
	"github.com/correre-org/devsync/store/sqlite"
)

const shutdownTimeout = 5 * time.Second

type app struct {
	cfg    config.Configuration
	logger *zap.Logger
	out    io.Writer
	errOut io.Writer

	store device.Store
	queue *session.Queue

	closers []func() error
}

func newApp(ctx context.Context, cfg config.Configuration, logger *zap.Logger, out, errOut io.Writer) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		out:    out,
		errOut: errOut,
	}

	store, err := a.openStore()
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = store

	drivers, err := driverFactory(cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	a.queue = session.NewQueue(drivers, store, cfg, session.WithLogger(logger))

	if cfg.MetricsAddr != "" {
		if err := a.serveMetrics(ctx); err != nil {
			a.close()
			return nil, err
		}
	}

	return a, nil
}

func (a *app) openStore() (device.Store, error) {
	switch a.cfg.Store {
	case config.StoreMemory:
		return memory.New(), nil

	case config.StoreSQLite:
		if err := os.MkdirAll(a.cfg.ProfileDir, 0o755); err != nil {
			return nil, fmt.Errorf("create profile directory: %w", err)
		}

		s, err := sqlite.Open(filepath.Join(a.cfg.ProfileDir, "devices.db"), a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)

		return s, nil
	}

	return filestore.New(a.cfg.ProfileDir, a.logger), nil
}

func driverFactory(cfg config.Configuration) (device.DriverFactory, error) {
	switch cfg.Driver {
	case config.DriverFake:
		opts := cfg.Fake
		opts.BasePath = cfg.FakeBasePath()

		return fake.Factory(opts), nil
	}

	return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
}

func (a *app) serveMetrics(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.MetricsAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	a.logger.Info("Serving metrics", zap.String("addr", ln.Addr().String()))
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()

		return srv.Shutdown(ctx)
	})

	return nil
}

func (a *app) startNotifications(ctx context.Context) {
	n, info := platform.Notifier(a.cfg.ProductName)
	a.logger.Debug("Desktop notifications",
		zap.String("os", info.OS),
		zap.Stringer("backend", info.Notifications),
	)

	go notify.Watch(ctx, n, eventbus.Subscribe(eventbus.StatusChanged), a.logger)
	a.closers = append(a.closers, n.Close)
}

// close stops the device session and releases every resource.
func (a *app) close() {
	if a.queue != nil {
		a.queue.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.queue.Wait(ctx); err != nil {
			a.logger.Warn("Device session did not stop in time", zap.Error(err))
		}
		cancel()
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Debug("Cannot release resource", zap.Error(err))
		}
	}
	a.closers = nil
}

// call runs operations queued by start and waits for them on the calling
// goroutine. start receives the loop to queue operations on and a finish
// function that ends the wait. A session that gives up on the device ends
// the wait with its error.
func (a *app) call(ctx context.Context, start func(dc dispatch.Context, identity func() device.Identity, finish func(error)) error) error {
	loop := dispatch.NewLoop()

	var (
		result       error
		finished     bool
		authFailures int
		identity     device.Identity
	)
	finish := func(err error) {
		if finished {
			return
		}

		finished = true
		result = err
		loop.Close()
	}

	unsubscribe := a.queue.Subscribe(loop, session.Listener{
		Status: func(ev device.StatusEvent) {
			if ev.Identity.Serial != 0 {
				identity = ev.Identity
			}

			fmt.Fprintf(a.errOut, "%s\n", ev.Status)

			switch ev.Status {
			case device.StatusAuthFailed:
				authFailures++

			case device.StatusDisconnected:
				if ev.Err == nil {
					return
				}

				if errorkinds.IsAuthFailure(ev.Err) && authFailures <= a.cfg.AuthRetry.Attempts {
					return
				}

				finish(ev.Err)
			}
		},
	})
	defer unsubscribe()

	if err := start(loop, func() device.Identity { return identity }, finish); err != nil {
		return err
	}

	if err := loop.Run(ctx); err != nil {
		a.queue.Shutdown()
		return err
	}

	return result
}
