package looper

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/Joe-Bi-2016/golooper/internal/gid"
	"github.com/Joe-Bi-2016/golooper/internal/osthread"
	"github.com/google/uuid"
)

// registry is the thread-local-storage emulation described in
// SPEC_FULL.md §10: a goroutine-id-keyed map standing in for what the
// original implements with a real compiler-supported thread_local.
var registry struct {
	mu sync.RWMutex
	m  map[uint64]*Looper
}

func init() {
	registry.m = make(map[uint64]*Looper)
}

func gidCurrent() uint64 { return gid.Current() }

func lookupLooper(id uint64) *Looper {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return registry.m[id]
}

func storeLooper(id uint64, l *Looper) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.m[id] = l
}

func dropLooper(id uint64) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.m, id)
}

// Looper is the per-goroutine owner of exactly one MessageQueue, pumping
// it via Loop. It is obtained with Prepare (idempotent per goroutine)
// and retrieved from elsewhere on the same goroutine with MyLooper.
type Looper struct {
	id       uuid.UUID
	queue    *MessageQueue
	threadID uint64
	gid      uint64

	mu                 sync.Mutex // handshake-only, per spec §9's resolved Open Question
	exited             bool
	raisePriorityOnExit bool

	logger Logger
}

// Prepare installs a Looper on the calling goroutine if one doesn't
// already exist there, and returns it. Idempotent: calling it again from
// the same goroutine returns the same instance.
func Prepare(opts ...Option) *Looper {
	g := gidCurrent()
	if l := lookupLooper(g); l != nil {
		return l
	}

	cfg := resolveOptions(opts)
	id := uuid.New()
	tid := osthread.ID()
	name := fmt.Sprintf("Thread_%d_MsgQueue", tid)

	logger := cfg.logger
	if logger == nil {
		logger = NewNopLogger()
	}

	queueOpts := []Option{WithLogger(logger), WithInstanceID(id.String())}
	if cfg.metricsEnabled {
		queueOpts = append(queueOpts, WithMetrics(true))
	}
	if cfg.testWaitMs > 0 {
		queueOpts = append(queueOpts, WithTestWaitTime(cfg.testWaitMs))
	}

	l := &Looper{
		id:       id,
		queue:    NewMessageQueue(name, cfg.poolMaxSize, queueOpts...),
		threadID: tid,
		gid:      g,
		logger:   logger,
	}
	storeLooper(g, l)
	return l
}

// MyLooper returns the Looper prepared on the calling goroutine, or
// ErrNoLooperOnThread if Prepare was never called there.
func MyLooper() (*Looper, error) {
	if l := lookupLooper(gidCurrent()); l != nil {
		return l, nil
	}
	return nil, ErrNoLooperOnThread
}

// Queue returns the Looper's MessageQueue.
func (l *Looper) Queue() *MessageQueue { return l.queue }

// ID returns the UUID-based diagnostic instance id stamped at Prepare
// time (SPEC_FULL.md §12). It is also carried by the Looper's queue
// (see WithInstanceID), so it shows up in that queue's log lines and in
// DumpPending/DumpPool output, not just here.
func (l *Looper) ID() uuid.UUID { return l.id }

// GetThreadId returns the (real or synthetic) OS thread id captured at
// Prepare time.
func (l *Looper) GetThreadId() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.threadID
}

// HadExit reports whether Quit has completed for this Looper.
func (l *Looper) HadExit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exited
}

// SetTestWaitTime plumbs to the underlying queue's outTimeTest hook.
func (l *Looper) SetTestWaitTime(ms int64) {
	l.queue.SetTestWaitTime(ms)
}

// Loop is the dispatch driver (spec §4.3): it must be called from the
// same goroutine that called Prepare. It blocks, repeatedly pulling the
// next due message and dispatching it, until the queue returns the quit
// sentinel.
//
// Per spec §9's resolved Open Question, Loop does not hold l.mu for its
// body at all — only Quit, HadExit and GetThreadId briefly take it for
// bookkeeping. The queue's own mutex is the sole synchronization point
// during steady state.
func (l *Looper) Loop() {
	for {
		msg, err := l.queue.next()
		if err != nil {
			// ErrWaitTimeoutExit covers both the real quit sentinel and
			// the outTimeTest hook; either way the loop returns.
			return
		}
		if msg.target == nil {
			logError(l.queue, "dispatched message has no target handler", nil)
			l.queue.recycleMsg(msg)
			continue
		}
		l.dispatchAndRecycle(msg)
	}
}

// dispatchAndRecycle calls the target handler's dispatch, guaranteeing
// the message is recycled exactly once even if the callback panics
// (spec §7 UserCallbackFault: "the loop MUST still recycle the message
// ... before re-raising or logging").
func (l *Looper) dispatchAndRecycle(msg *Message) {
	target := msg.target
	defer func() {
		if r := recover(); r != nil {
			logError(l.queue, fmt.Sprintf("recovered panic in dispatch: %v", r), ErrUserCallbackFault)
		}
	}()
	// Deferred last so it runs first: the message is recycled before a
	// recovered panic is logged.
	defer l.queue.recycleMsg(msg)
	target.dispatchMessage(msg)
}

// Quit forwards to the queue and marks the Looper exited. When safely is
// true it also makes a best-effort attempt to raise the scheduling
// priority of the OS thread that calls Quit, a no-op if unsupported or
// unprivileged (spec §4.3, §9). That is the loop's own thread only when
// Quit is called from a callback running on the loop; a Quit from any
// other goroutine does not change the loop thread's priority.
func (l *Looper) Quit(safely bool) {
	l.queue.Quit(safely)
	if safely {
		l.mu.Lock()
		l.raisePriorityOnExit = true
		l.mu.Unlock()
		osthread.RaisePriority()
	}
	l.mu.Lock()
	l.exited = true
	l.mu.Unlock()
	dropLooper(l.gid)
}

// lockOSThreadForLoop pins the calling goroutine to its current OS
// thread for the remainder of the loop's lifetime, making the best-effort
// thread name/priority operations and the Linux Gettid id meaningful.
// Only LooperThread's spawned goroutines call this; a Prepare() from an
// arbitrary goroutine (e.g. the main goroutine) does not, matching spec
// §4.3's "the main thread may opt in explicitly" without forcing OS
// thread affinity on every caller.
func lockOSThreadForLoop() {
	runtime.LockOSThread()
}
