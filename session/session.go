package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/correre-org/devsync/api/device"
	"github.com/correre-org/devsync/api/dispatch"
	"github.com/correre-org/devsync/api/errorkinds"
	"github.com/correre-org/devsync/api/eventbus"
	"github.com/correre-org/devsync/internal/metrics"
)

// DisconnectTimeout bounds the driver's Disconnect call, which also runs
// after the session context has been cancelled.
const DisconnectTimeout = 5 * time.Second

// Session is one connect, authenticate, transact and disconnect cycle with
// the device. It is created by a Queue and runs on its own worker goroutine,
// which owns the driver and the idle timer.
type Session struct {
	id     uuid.UUID
	q      *Queue
	prev   *Session
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	wake chan struct{}
	done chan struct{}

	driver   device.Driver
	identity device.Identity
	status   device.Status
}

func newSession(q *Queue, prev *Session) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New()

	return &Session{
		id:     id,
		q:      q,
		prev:   prev,
		logger: q.logger.With(zap.Stringer("session", id)),
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// ID returns the identifier of the session.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// signal wakes the worker if it is waiting for tasks. Called with the
// queue mutex held.
func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drainSignal discards a pending wakeup. Called with the queue mutex held.
func (s *Session) drainSignal() {
	select {
	case <-s.wake:
	default:
	}
}

func (s *Session) stop() {
	s.cancel()
}

func (s *Session) run() {
	defer close(s.done)

	if s.prev != nil {
		<-s.prev.done
		s.prev = nil
	}

	metrics.RecordSessionStart()
	defer metrics.RecordSessionEnd()

	if s.ctx.Err() != nil {
		s.finish(nil)
		return
	}

	s.setStatus(device.StatusConnecting, nil)
	if err := s.link(); err != nil {
		s.abort(err)
		return
	}

	s.setStatus(device.StatusAuthenticating, nil)
	if err := s.authenticate(); err != nil {
		s.abort(err)
		return
	}

	s.q.connected(s)
	s.setStatus(device.StatusConnected, nil)

	s.work()
	s.finish(nil)
}

// link creates the driver and establishes the transport link, retrying
// with exponential backoff.
func (s *Session) link() error {
	driver, err := s.q.drivers()
	if err != nil {
		return fault.Wrap(classify(err, errorkinds.ErrLinkFailed),
			fctx.With(s.ctx, "error_at", "create-driver"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot create device driver"),
		)
	}
	s.driver = driver

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.q.cfg.LinkInterval
	policy.MaxElapsedTime = 0

	b := backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(s.q.cfg.LinkAttempts-1)),
		s.ctx,
	)

	attempt := 0
	err = backoff.RetryNotify(func() error {
		attempt++
		metrics.RecordLinkAttempt()

		err := s.driver.Link(s.ctx)
		if errors.Is(err, errorkinds.ErrUnrecoverable) {
			return backoff.Permanent(err)
		}

		return err
	}, b, func(err error, wait time.Duration) {
		s.logger.Debug("Link attempt failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return fault.Wrap(classify(err, errorkinds.ErrLinkFailed),
			fctx.With(s.ctx, "error_at", "link"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot establish link with device"),
		)
	}

	return nil
}

// authenticate identifies the device, then presents the stored credential
// or pairs with it. The accepted credential is stored before it returns.
func (s *Session) authenticate() error {
	identity, err := s.driver.Identify(s.ctx)
	if err != nil {
		return authError(s.ctx, err, "identify", "Cannot identify device")
	}
	s.identity = identity
	s.logger = s.logger.With(zap.Stringer("serial", identity.Serial))

	record, err := s.q.store.Get(identity.Serial)
	if err != nil {
		return fault.Wrap(err,
			fctx.With(s.ctx, "error_at", "load-profile"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot load device profile"),
		)
	}

	var credential []byte
	if record.Paired() {
		credential = record.Credential
	} else {
		timeout := device.NewAuthTimeout(s.ctx, s.q.cfg.AuthTimeout)
		err := s.q.authorizer.AuthorizePairing(timeout, identity)
		timeout.Cancel()
		if err != nil {
			return authError(s.ctx, classify(err, errorkinds.ErrAuthRejected),
				"authorize-pairing", "Pairing was not authorized")
		}

		s.logger.Info("Pairing with device", zap.String("name", identity.Name))
	}

	accepted, err := s.driver.Authenticate(s.ctx, credential)
	if err != nil {
		if errors.Is(err, errorkinds.ErrCredentialInvalid) && record != nil {
			if cerr := s.q.store.ClearCredential(identity.Serial); cerr != nil {
				s.logger.Error("Cannot clear device credential", zap.Error(cerr))
			} else {
				s.logger.Info("Cleared rejected device credential")
			}
		}

		return authError(s.ctx, err, "authenticate", "Device authentication failed")
	}

	name := identity.Name
	if name == "" && record != nil {
		name = record.Name
	}

	err = s.q.store.Put(identity.Serial, device.Record{
		Serial:        identity.Serial,
		Name:          name,
		Credential:    accepted,
		LayoutVersion: device.LayoutVersion,
	})
	if err != nil {
		return fault.Wrap(err,
			fctx.With(s.ctx, "error_at", "store-credential"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot store device credential"),
		)
	}

	return nil
}

// abort ends a session whose handshake failed.
func (s *Session) abort(err error) {
	switch {
	case s.ctx.Err() != nil:
		s.finish(nil)

	case errors.Is(err, errorkinds.ErrProfileVersionMismatch):
		s.logger.Error("Incompatible device profile", zap.Error(err))
		s.q.failPending(s, err)
		s.finish(err)

	case errorkinds.IsAuthFailure(err):
		s.logger.Warn("Device authentication failed", zap.Error(err))
		s.q.retire(s, true)
		s.setStatus(device.StatusAuthFailed, err)
		s.finish(err)

	case errorkinds.IsHandshakeFatal(err):
		s.logger.Warn("Device session handshake failed", zap.Error(err))
		s.finish(err)

	default:
		s.logger.Error("Device session handshake failed unexpectedly", zap.Error(err))
		s.finish(err)
	}
}

// work runs queued tasks until the session is stopped or has been idle for
// the idle timeout.
func (s *Session) work() {
	for {
		t, owner := s.q.next(s)
		if !owner {
			return
		}

		if t != nil {
			s.execute(t)
			continue
		}

		if !s.idle() {
			return
		}
	}
}

// idle waits for a task with the idle timer armed. It reports false when
// the session must disconnect.
func (s *Session) idle() bool {
	timer := time.NewTimer(s.q.cfg.IdleTimeout)
	defer timer.Stop()

	select {
	case <-s.wake:
		return true

	case <-s.ctx.Done():
		return false

	case <-timer.C:
		if s.q.expire(s) {
			s.logger.Debug("Session idle timeout", zap.Duration("after", s.q.cfg.IdleTimeout))
			return false
		}

		return true
	}
}

// execute runs t on the driver and posts its result. A panic in the driver
// fails only t.
func (s *Session) execute(t *task) {
	start := time.Now()
	result := Result{Task: t.id, Op: t.req.Op}

	var (
		mu       sync.Mutex
		finished bool
	)
	progress := func(fraction float64) {
		mu.Lock()
		defer mu.Unlock()

		if finished {
			return
		}

		ev := device.ProgressEvent{Session: s.id, Task: t.id, Index: t.req.Index, Fraction: fraction}
		if t.req.Progress != nil {
			dispatch.Dispatch(t.dc, t.req.Progress, fraction)
		}
		s.q.notifyProgress(ev)
		eventbus.Publish(eventbus.TransferProgress, ev)
	}

	err := s.call(t, &result, progress)

	mu.Lock()
	finished = true
	mu.Unlock()

	duration := time.Since(start)
	if err != nil {
		result = Result{Task: t.id, Op: t.req.Op, Err: s.taskError(t, err)}
	}

	metrics.RecordTask(t.req.Op.String(), duration, result.Err == nil)
	if t.req.Op == OpDownloadFile && result.Err == nil {
		metrics.RecordDownload(len(result.Data))
	}

	logger := s.logger.With(zap.Uint64("task", t.id), zap.Stringer("op", t.req.Op))
	switch {
	case result.Err == nil:
		logger.Debug("Task completed", zap.Duration("duration", duration))

	case errorkinds.IsTaskLocal(result.Err):
		logger.Warn("Task failed", zap.Duration("duration", duration), zap.Error(result.Err))

	default:
		logger.Info("Task ended", zap.Duration("duration", duration), zap.Error(result.Err))
	}

	eventbus.Publish(eventbus.TaskCompleted, device.TaskEvent{
		Session:  s.id,
		Task:     t.id,
		Op:       t.req.Op.String(),
		Err:      result.Err,
		Duration: duration,
	})

	dispatch.Dispatch(t.dc, t.cb, result)
}

func (s *Session) call(t *task, result *Result, progress device.ProgressFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errorkinds.ErrTaskPanic, r)
		}
	}()

	switch t.req.Op {
	case OpListFiles:
		result.Files, err = s.driver.ListFiles(s.ctx)

	case OpDownloadFile:
		result.Data, err = s.driver.DownloadFile(s.ctx, t.req.Index, progress)

	case OpDeleteFile:
		result.Deleted, err = s.driver.DeleteFile(s.ctx, t.req.Index)

	default:
		err = errorkinds.ErrNotSupported
	}

	return err
}

func (s *Session) taskError(t *task, err error) error {
	tag := ftag.Internal
	msg := "Device operation failed"

	switch {
	case s.ctx.Err() != nil:
		if !errors.Is(err, errorkinds.ErrSessionStop) {
			err = fmt.Errorf("%w: %w", errorkinds.ErrSessionStop, err)
		}
		tag, msg = ftag.Cancelled, "Device session was stopped"

	case errors.Is(err, errorkinds.ErrFileNotFound):
		tag, msg = ftag.NotFound, "File does not exist on device"

	case errors.Is(err, errorkinds.ErrTaskPanic):
		msg = "Device operation panicked"
	}

	return fault.Wrap(err,
		fctx.With(s.ctx, "error_at", t.req.Op.String()),
		ftag.With(tag),
		fmsg.With(msg),
	)
}

// finish disconnects the driver and reports the session as disconnected.
func (s *Session) finish(err error) {
	if s.driver != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), DisconnectTimeout)
		if derr := s.driver.Disconnect(ctx); derr != nil {
			s.logger.Debug("Cannot disconnect device", zap.Error(derr))
		}
		cancel()
	}

	s.q.retire(s, false)
	s.setStatus(device.StatusDisconnected, err)
	s.cancel()
}

// setStatus reports a transition to every listener and the event bus
// before returning.
func (s *Session) setStatus(status device.Status, err error) {
	if !s.status.CanTransition(status) {
		s.logger.Error("Invalid session transition",
			zap.Stringer("from", s.status),
			zap.Stringer("to", status),
		)

		return
	}
	s.status = status

	ev := device.StatusEvent{
		Session:  s.id,
		Status:   status,
		Identity: s.identity,
		Err:      err,
		At:       time.Now(),
	}

	s.q.setStatus(status)
	s.q.notifyStatus(ev)
	eventbus.Publish(eventbus.StatusChanged, ev)
	metrics.RecordTransition(status.String())

	fields := []zap.Field{zap.Stringer("status", status)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Info("Device session status changed", fields...)
}

// classify makes err match kind with errors.Is, unless it already does or
// is a context error.
func classify(err, kind error) error {
	if err == nil || errors.Is(err, kind) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("%w: %w", kind, err)
}

func authError(ctx context.Context, err error, at, msg string) error {
	if !errorkinds.IsAuthFailure(err) {
		err = classify(err, errorkinds.ErrAuthRejected)
	}

	return fault.Wrap(err,
		fctx.With(ctx, "error_at", at),
		ftag.With(ftag.Unauthenticated),
		fmsg.With(msg),
	)
}
