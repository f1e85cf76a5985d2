// Package session serializes device operations onto a single worker
// session that connects, authenticates, runs queued tasks in order and
// disconnects again once it has been idle for a while.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/correre-org/devsync/api/config"
	"github.com/correre-org/devsync/api/device"
	"github.com/correre-org/devsync/api/dispatch"
	"github.com/correre-org/devsync/api/errorkinds"
	"github.com/correre-org/devsync/internal/logging"
	"github.com/correre-org/devsync/internal/metrics"
)

// Listener receives session notifications on its own dispatch context.
// Either function may be nil.
type Listener struct {
	Status   func(device.StatusEvent)
	Progress func(device.ProgressEvent)
}

type listenerEntry struct {
	dc dispatch.Context
	l  Listener
}

// Option configures a Queue.
type Option func(q *Queue)

// WithLogger sets the logger of the queue and its sessions.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) {
		q.logger = logging.OrNop(l)
	}
}

// WithAuthorizer sets the handler asked before pairing with a new device.
func WithAuthorizer(a device.PairingAuthorizer) Option {
	return func(q *Queue) {
		if a != nil {
			q.authorizer = a
		}
	}
}

// Queue accepts device operations from any goroutine and runs them, in
// submission order, on at most one live Session.
//
// The queue mutex is the only synchronisation point between callers and the
// session worker: task submission, task removal, idle expiry and shutdown
// all observe the task list under it.
type Queue struct {
	drivers    device.DriverFactory
	store      device.Store
	cfg        config.Configuration
	authorizer device.PairingAuthorizer
	logger     *zap.Logger

	ids         *xsync.Counter
	listenerIDs *xsync.Counter
	listeners   *xsync.MapOf[int64, listenerEntry]

	mu          sync.Mutex
	tasks       []*task
	session     *Session
	last        *Session
	status      device.Status
	authRetries int
	retryGen    uint64
	retryTimer  *time.Timer
}

// NewQueue returns a new queue creating one driver per session with drivers.
func NewQueue(drivers device.DriverFactory, store device.Store, cfg config.Configuration, opts ...Option) *Queue {
	q := &Queue{
		drivers:     drivers,
		store:       store,
		cfg:         cfg,
		authorizer:  device.DefaultAuthorizer{},
		logger:      zap.NewNop(),
		ids:         xsync.NewCounter(),
		listenerIDs: xsync.NewCounter(),
		listeners:   xsync.NewMapOf[int64, listenerEntry](),
	}

	if q.cfg.IdleTimeout <= 0 {
		q.cfg.IdleTimeout = config.DefaultIdleTimeout
	}
	if q.cfg.AuthTimeout <= 0 {
		q.cfg.AuthTimeout = config.DefaultAuthTimeout
	}
	if q.cfg.LinkAttempts <= 0 {
		q.cfg.LinkAttempts = 1
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Enqueue appends an operation to the queue and returns immediately.
// cb is called exactly once on dc with the result, unless the task is
// dropped by Shutdown before it starts. A session is started if none is live.
func (q *Queue) Enqueue(dc dispatch.Context, req Request, cb func(Result)) (TaskID, error) {
	switch {
	case dc == nil:
		return 0, invalidCall("enqueue", "No dispatch context was provided")

	case cb == nil:
		return 0, invalidCall("enqueue", "No callback was provided")

	case !req.Op.Valid():
		return 0, invalidCall("enqueue", "Unknown operation")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.ids.Inc()
	t := &task{
		id:       TaskID(q.ids.Value()),
		req:      req,
		dc:       dc,
		cb:       cb,
		enqueued: time.Now(),
	}
	q.tasks = append(q.tasks, t)
	metrics.SetTasksQueued(len(q.tasks))

	q.logger.Debug("Task queued",
		zap.Uint64("task", t.id),
		zap.Stringer("op", req.Op),
		zap.Int("pending", len(q.tasks)),
	)

	q.stopRetryLocked()
	if q.session == nil {
		q.startLocked()
	} else {
		q.session.signal()
	}

	return t.id, nil
}

// ListFiles queues a directory listing.
func (q *Queue) ListFiles(dc dispatch.Context, cb func(device.FileSet, error)) (TaskID, error) {
	if cb == nil {
		return 0, invalidCall("list-files", "No callback was provided")
	}

	return q.Enqueue(dc, Request{Op: OpListFiles}, func(r Result) {
		cb(r.Files, r.Err)
	})
}

// DownloadFile queues a file download. progress may be nil.
func (q *Queue) DownloadFile(dc dispatch.Context, index uint16, progress device.ProgressFunc, cb func([]byte, error)) (TaskID, error) {
	if cb == nil {
		return 0, invalidCall("download-file", "No callback was provided")
	}

	return q.Enqueue(dc, Request{Op: OpDownloadFile, Index: index, Progress: progress}, func(r Result) {
		cb(r.Data, r.Err)
	})
}

// DeleteFile queues a file deletion.
func (q *Queue) DeleteFile(dc dispatch.Context, index uint16, cb func(bool, error)) (TaskID, error) {
	if cb == nil {
		return 0, invalidCall("delete-file", "No callback was provided")
	}

	return q.Enqueue(dc, Request{Op: OpDeleteFile, Index: index}, func(r Result) {
		cb(r.Deleted, r.Err)
	})
}

// Shutdown drops every task that has not started yet, without calling their
// callbacks, and asks the live session to disconnect immediately. A task
// already running receives its callback with a cancellation error.
// The queue stays usable: a later Enqueue starts a new session.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	dropped := len(q.tasks)
	q.tasks = nil
	q.stopRetryLocked()
	q.authRetries = 0
	q.session = nil
	last := q.last
	q.mu.Unlock()

	metrics.SetTasksQueued(0)
	q.logger.Info("Shutting down device session", zap.Int("dropped", dropped))

	if last != nil {
		last.stop()
	}
}

// Subscribe registers l. Its functions are posted onto dc by the session
// worker before the worker moves on, so on a shared context the connected
// notification of a session precedes every task callback of that session.
// The returned function removes the listener.
func (q *Queue) Subscribe(dc dispatch.Context, l Listener) func() {
	if dc == nil {
		return func() {}
	}

	q.mu.Lock()
	q.listenerIDs.Inc()
	id := q.listenerIDs.Value()
	q.mu.Unlock()

	q.listeners.Store(id, listenerEntry{dc, l})

	var once sync.Once
	return func() {
		once.Do(func() {
			q.listeners.Delete(id)
		})
	}
}

// Status returns the last status reported by a session.
func (q *Queue) Status() device.Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.status
}

// Pending returns the number of tasks that have not started yet.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// Wait blocks until no session is live or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		s := q.last
		q.mu.Unlock()

		if s == nil {
			return nil
		}

		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}

		q.mu.Lock()
		settled := q.last == s
		q.mu.Unlock()

		if settled {
			return nil
		}
	}
}

// startLocked creates a session that runs once the previous one has finished.
func (q *Queue) startLocked() {
	s := newSession(q, q.last)
	q.session = s
	q.last = s

	go s.run()
}

// next removes the head of the queue for s. It reports false if s no longer
// owns the queue. When the queue is empty a stale wakeup is discarded, so a
// later signal always means a task was added afterwards.
func (q *Queue) next(s *Session) (t *task, owner bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.session != s || s.ctx.Err() != nil {
		return nil, false
	}

	if len(q.tasks) == 0 {
		s.drainSignal()
		return nil, true
	}

	t = q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	metrics.SetTasksQueued(len(q.tasks))

	return t, true
}

// expire is called when the idle timer of s fires. It reports whether s
// must disconnect: false means a task arrived and the session continues.
func (q *Queue) expire(s *Session) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.session != s {
		return true
	}

	if len(q.tasks) > 0 {
		return false
	}

	q.session = nil

	return true
}

// connected resets the automatic retry budget once s is connected.
func (q *Queue) connected(s *Session) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.session == s {
		q.authRetries = 0
	}
}

// retire detaches s from the queue. After an authentication failure with
// tasks still pending, a new session is scheduled if the retry policy allows.
func (q *Queue) retire(s *Session, authFailed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.session != s {
		return
	}
	q.session = nil

	policy := q.cfg.AuthRetry
	if !authFailed || policy.Attempts <= 0 || len(q.tasks) == 0 {
		return
	}

	if q.authRetries >= policy.Attempts {
		q.logger.Warn("Giving up automatic session restarts",
			zap.Int("attempts", q.authRetries),
			zap.Int("pending", len(q.tasks)),
		)

		return
	}

	q.authRetries++
	q.retryGen++
	gen := q.retryGen
	q.retryTimer = time.AfterFunc(policy.Delay, func() {
		q.retry(gen)
	})

	q.logger.Info("Scheduling session restart",
		zap.Int("attempt", q.authRetries),
		zap.Duration("delay", policy.Delay),
	)
}

func (q *Queue) retry(gen uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if gen != q.retryGen {
		return
	}
	q.retryTimer = nil

	if q.session == nil && len(q.tasks) > 0 {
		q.startLocked()
	}
}

func (q *Queue) stopRetryLocked() {
	q.retryGen++
	if q.retryTimer != nil {
		q.retryTimer.Stop()
		q.retryTimer = nil
	}
}

// failPending detaches s and fails every pending task with err.
func (q *Queue) failPending(s *Session, err error) {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	if q.session == s {
		q.session = nil
	}
	q.mu.Unlock()

	metrics.SetTasksQueued(0)

	for _, t := range tasks {
		dispatch.Dispatch(t.dc, t.cb, Result{Task: t.id, Op: t.req.Op, Err: err})
	}
}

func (q *Queue) setStatus(status device.Status) {
	q.mu.Lock()
	q.status = status
	q.mu.Unlock()
}

func (q *Queue) notifyStatus(ev device.StatusEvent) {
	q.listeners.Range(func(_ int64, e listenerEntry) bool {
		if e.l.Status != nil {
			dispatch.Dispatch(e.dc, e.l.Status, ev)
		}

		return true
	})
}

func (q *Queue) notifyProgress(ev device.ProgressEvent) {
	q.listeners.Range(func(_ int64, e listenerEntry) bool {
		if e.l.Progress != nil {
			dispatch.Dispatch(e.dc, e.l.Progress, ev)
		}

		return true
	})
}

func invalidCall(at, msg string) error {
	return fault.Wrap(errorkinds.ErrMethodCall,
		fctx.With(context.Background(), "error_at", at),
		ftag.With(ftag.InvalidArgument),
		fmsg.With(msg),
	)
}
