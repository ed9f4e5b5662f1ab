package looper

import (
	"sync"
	"time"

	"github.com/Joe-Bi-2016/golooper/internal/gid"
)

// DefaultPoolMaxSize is the recycle-pool cap used when a MessageQueue is
// created without an explicit size (spec §6: "50 messages per queue
// unless overridden").
const DefaultPoolMaxSize = 50

// IdleHandler is invoked by the consumer when it is about to block
// indefinitely in next() (spec §4.2 addIdleHandler). Its return value is
// reserved for future use, matching the original's under-tested
// behavior — callers should not rely on it meaning anything yet.
type IdleHandler func() bool

// MessageQueue holds the ordered pending list and the bounded recycle
// pool for a single Looper. Producers on any goroutine enqueue into it;
// exactly one consumer goroutine (the Looper's Loop) calls next().
//
// Locking discipline (spec §5): L guards the pending list and the
// blocked/quit/notEnqueueing flags; PL guards the pool independently.
// Lock order is always L before PL, never the reverse. Dispatch never
// holds either lock.
type MessageQueue struct {
	name string

	mu   sync.Mutex
	cond *sync.Cond
	// reentrant-lock emulation: the goroutine id currently holding mu via
	// a public-facing method that may recurse into another public method
	// from a callback run under the lock (spec §5: "a recursive mutex is
	// required for L"). Zero means unlocked by this emulation's bookkeeping.
	lockHolder uint64
	lockDepth  int

	head *Message
	tail *Message
	size int

	blocked        bool
	notEnqueueing  bool
	quit           bool
	outTimeTestMs  int64 // non-zero => test mode, see next()
	idleHandler    IdleHandler

	poolMu      sync.Mutex
	pool        *Message
	poolSize    int
	poolMaxSize int

	logger     Logger
	metrics    *queueMetrics
	instanceID string // diagnostic instance id, see WithInstanceID
}

// NewMessageQueue creates a named queue with the given recycle-pool cap.
// LooperThread/Looper.Prepare is the normal way one of these gets
// created; exported for direct use in tests and for embedding golooper
// outside the Looper/Handler façade.
func NewMessageQueue(name string, poolMaxSize int, opts ...Option) *MessageQueue {
	if poolMaxSize <= 0 {
		poolMaxSize = DefaultPoolMaxSize
	}
	q := &MessageQueue{
		name:        name,
		poolMaxSize: poolMaxSize,
		logger:      NewNopLogger(),
	}
	q.cond = sync.NewCond(&q.mu)
	cfg := resolveOptions(opts)
	if cfg.logger != nil {
		q.logger = cfg.logger
	}
	if cfg.metricsEnabled {
		q.metrics = newQueueMetrics(name)
	}
	if cfg.testWaitMs > 0 {
		q.outTimeTestMs = cfg.testWaitMs
	}
	if cfg.instanceID != "" {
		q.instanceID = cfg.instanceID
	}
	return q
}

func (q *MessageQueue) Name() string { return q.name }

// SetName renames the queue (original: MsgQueue::setQueueName). Purely
// diagnostic — it does not affect registry lookups, which are keyed by
// goroutine id, not by name.
func (q *MessageQueue) SetName(name string) {
	reentrant := q.lock()
	defer q.unlock(reentrant)
	q.name = name
}

// lock/unlock implement the recursive-mutex emulation described in
// SPEC_FULL.md §10: a call made on a goroutine that already holds q.mu
// through lock() (for example from a payload free function that a
// removal runs while holding it) skips taking the lock again. Dispatch
// runs with no queue lock held, so calls from a dispatched callback take
// the lock normally.
func (q *MessageQueue) lock() (reentrant bool) {
	id := gid.Current()
	if q.lockDepth > 0 && q.lockHolder == id {
		q.lockDepth++
		return true
	}
	q.mu.Lock()
	q.lockHolder = id
	q.lockDepth = 1
	return false
}

func (q *MessageQueue) unlock(reentrant bool) {
	if reentrant {
		q.lockDepth--
		return
	}
	q.lockDepth = 0
	q.lockHolder = 0
	q.mu.Unlock()
}

// EnqueueMessage inserts msg into the pending list ordered by whenAbs,
// per the three cases of spec §4.2 Enqueue. It fails fast on a nil
// message, a null target or an already-in-use message, returning an error
// that wraps ErrContractViolation (the null-target and in-use cases are
// also logged at warn), and rejects with ErrQueueClosed once quit or
// notEnqueueing has been set.
func (q *MessageQueue) EnqueueMessage(msg *Message, whenAbs int64) error {
	if msg == nil {
		return wrapf(ErrContractViolation, "enqueue nil message")
	}
	if msg.target == nil {
		logWarn(q, "enqueue rejected: nil target", nil)
		return wrapf(ErrContractViolation, "message has no target handler")
	}
	if msg.IsInUse() {
		logWarn(q, "enqueue rejected: message already in use", nil)
		return wrapf(ErrContractViolation, "message already in use")
	}

	reentrant := q.lock()
	defer q.unlock(reentrant)

	if q.quit || q.notEnqueueing {
		// Lock order is always L before PL (spec §5); recycleMsg only
		// takes PL, so it is safe to call while still holding q.mu here.
		q.recycleMsg(msg)
		if q.metrics != nil {
			q.metrics.dropped.Inc()
		}
		return wrapf(ErrQueueClosed, "enqueue after quit")
	}

	msg.markInUse()
	msg.when = whenAbs

	switch {
	case q.head == nil || whenAbs == 0 || whenAbs < q.head.when:
		// Case (i): empty list, front-of-queue request, or strictly
		// earlier than the current head — prepend.
		msg.next = q.head
		q.head = msg
		if q.tail == nil {
			q.tail = msg
		}
	case q.tail != nil && whenAbs >= q.tail.when:
		// Case (ii): O(1) tail append.
		q.tail.next = msg
		q.tail = msg
		msg.next = nil
	default:
		// Case (iii): linear walk to the first node strictly later than
		// whenAbs, insert before it. Ties are broken by insertion order:
		// the new message lands after any existing node with an equal
		// when.
		prev := q.head
		for prev.next != nil && prev.next.when <= whenAbs {
			prev = prev.next
		}
		msg.next = prev.next
		prev.next = msg
		if msg.next == nil {
			q.tail = msg
		}
	}

	q.size++
	q.blocked = false
	// The consumer must be woken on every enqueue, not only a head
	// change: it may be waiting on a timed deadline for the old head
	// that a same-or-later new tail entry doesn't affect, but it also
	// may be in the unbounded wait with a stale "nothing pending" view
	// that only re-checks state after a broadcast.
	q.cond.Broadcast()
	if q.metrics != nil {
		q.metrics.setPending(q.size)
		q.metrics.enqueued.Inc()
	}
	return nil
}

// monotonicMillis is the package's single clock source (spec §6
// monotonic_ms()): non-decreasing, unaffected by wall-clock changes.
// Readings are clockBase's Unix-ms value plus the monotonic time elapsed
// since clockBase.
func monotonicMillis() int64 {
	return clockBase.UnixMilli() + time.Since(clockBase).Milliseconds()
}

var clockBase = time.Now()

// next is called exclusively by the owning Looper's Loop. It blocks
// until the head message is due, a quit is requested, or (in test mode)
// outTimeTestMs elapses with an empty list.
func (q *MessageQueue) next() (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.quit {
			return nil, ErrWaitTimeoutExit
		}

		timeoutMs := int64(-1) // -1 == wait unbounded
		if q.notEnqueueing {
			timeoutMs = 0
		}

		if q.size == 0 {
			if q.quit || q.notEnqueueing {
				return nil, ErrWaitTimeoutExit
			}
			if q.outTimeTestMs > 0 {
				if !q.waitFor(time.Duration(q.outTimeTestMs) * time.Millisecond) {
					return nil, ErrWaitTimeoutExit
				}
				continue
			}
			if q.idleHandler != nil {
				h := q.idleHandler
				q.mu.Unlock()
				h()
				q.mu.Lock()
			}
			q.blocked = true
			q.waitUnbounded()
			continue
		}

		now := monotonicMillis()
		if q.head.when <= now {
			msg := q.head
			q.head = q.head.next
			if q.head == nil {
				q.tail = nil
			}
			msg.next = nil
			q.size--
			if q.metrics != nil {
				q.metrics.setPending(q.size)
				q.metrics.dispatched.Inc()
			}
			return msg, nil
		}

		timeoutMs = q.head.when - now
		if !q.waitFor(time.Duration(timeoutMs) * time.Millisecond) {
			// Spurious or timed wakeup: loop and re-check under the lock,
			// per the missed-wakeup guard in spec §4.2.
		}
	}
}

// waitUnbounded blocks on the condition variable with no timeout,
// tolerating spurious wakeups by returning to the caller's loop (which
// re-checks all predicates under q.mu, already held on return).
func (q *MessageQueue) waitUnbounded() {
	q.cond.Wait()
}

// waitFor blocks on the condition variable for at most d, returning
// false if the deadline elapsed without a signal. sync.Cond has no
// native timed wait, so this mirrors it with a timer goroutine that
// broadcasts once — the same "absolute-time-preferred, tolerate spurious
// wakeup" discipline spec §9 calls for, adapted to Go's primitives.
func (q *MessageQueue) waitFor(d time.Duration) (signaled bool) {
	if d <= 0 {
		return false
	}
	// The timer callback needs q.mu to close(done)/Broadcast, and the
	// caller holds q.mu until cond.Wait() releases it — so the callback
	// can never run ahead of the Wait() call below, ruling out the usual
	// timer-vs-cond missed-wakeup race.
	done := make(chan struct{})
	timer := time.AfterFunc(d, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		select {
		case <-done:
		default:
			close(done)
		}
		q.cond.Broadcast()
	})
	defer timer.Stop()

	q.cond.Wait()

	select {
	case <-done:
		return false
	default:
		return true
	}
}

// --- Recycle pool (spec §4.2) ---

// obtainFromPool pops the most-recently-recycled record (LIFO, for cache
// locality) or returns nil on a pool miss.
func (q *MessageQueue) obtainFromPool() *Message {
	q.poolMu.Lock()
	defer q.poolMu.Unlock()
	if q.pool == nil {
		return nil
	}
	m := q.pool
	q.pool = m.next
	m.next = nil
	q.poolSize--
	if q.metrics != nil {
		q.metrics.setPool(q.poolSize)
	}
	return m
}

// recycleMsg frees msg's payload, zeroes it, and either pushes it onto
// the bounded pool or drops it (to the shared fallback pool) once the
// cap is reached. Never called while msg is still linked into any list.
func (q *MessageQueue) recycleMsg(msg *Message) {
	if msg == nil {
		return
	}
	msg.clearInUse()
	msg.recycleUnchecked()

	q.poolMu.Lock()
	defer q.poolMu.Unlock()
	if q.quit || q.poolSize >= q.poolMaxSize {
		release(msg)
		return
	}
	msg.next = q.pool
	q.pool = msg
	q.poolSize++
	if q.metrics != nil {
		q.metrics.setPool(q.poolSize)
	}
}

// GetQueueSize returns a snapshot of the pending list length.
func (q *MessageQueue) GetQueueSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// GetMsgPoolSize returns a snapshot of the recycle pool's occupancy.
func (q *MessageQueue) GetMsgPoolSize() int {
	q.poolMu.Lock()
	defer q.poolMu.Unlock()
	return q.poolSize
}

// IsIdle reports whether the pending list is empty or its head is not
// yet due.
func (q *MessageQueue) IsIdle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.head == nil || q.head.when > monotonicMillis()
}

// AddIdleHandler installs the callback invoked when the consumer would
// otherwise block indefinitely (spec §4.2). Only one may be installed at
// a time, matching the original's single mIdleHandlerFunc field.
func (q *MessageQueue) AddIdleHandler(h IdleHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.idleHandler = h
}

// RemoveIdleHandler clears the idle callback.
func (q *MessageQueue) RemoveIdleHandler() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.idleHandler = nil
}

// SetTestWaitTime plumbs into outTimeTestMs (spec §6 "test field").
// Non-zero switches next() into test mode: with an empty list it waits
// up to ms and returns sentinel rather than blocking forever.
func (q *MessageQueue) SetTestWaitTime(ms int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.outTimeTestMs = ms
}

// --- Shutdown (spec §4.2 Shutdown) ---

// Quit performs a hard (safely=false) or safe (safely=true) shutdown.
func (q *MessageQueue) Quit(safely bool) {
	q.mu.Lock()
	if safely {
		q.notEnqueueing = true
		q.blocked = false
		q.cond.Broadcast()
		q.mu.Unlock()
		return
	}

	q.quit = true
	q.blocked = false
	// Drain iteratively, not via recursive pointer release, so a long
	// pending list can't overflow the stack (spec §4.2).
	drained := q.head
	q.head, q.tail, q.size = nil, nil, 0
	q.cond.Broadcast()
	q.mu.Unlock()

	for drained != nil {
		next := drained.next
		drained.next = nil
		q.recycleMsg(drained)
		if q.metrics != nil {
			q.metrics.dropped.Inc()
		}
		drained = next
	}
}

// --- Removal predicates (spec §4.2 Removal) ---

// removeFilter describes which pending messages a removal call targets.
// Exactly the fields relevant to a given call are set; zero/nil fields
// are wildcards. This backs every one of the spec's named removeMessage
// overloads via small, named entry points below, instead of requiring
// callers to build the filter themselves.
type removeFilter struct {
	msg              *Message
	what             *int
	whatMin, whatMax int
	hasWhatRange     bool
	requireRunnable  bool
	arg1, arg2       *int
	handlerCallback  HandlerCallback
	handler          *Handler
}

func (f removeFilter) matches(m *Message) bool {
	if f.handler != nil && m.target != f.handler {
		return false
	}
	if f.msg != nil && m != f.msg {
		return false
	}
	if f.requireRunnable {
		// Go funcs aren't comparable, so a Runnable "identity" filter
		// can't pick out one specific closure — the message's callback
		// slot was populated from the exact same call site value via
		// reflect-free pointer comparison is not possible. Identity here
		// is approximated the same way EventTarget approximates listener
		// identity in the teacher repo: by requiring the caller to have
		// kept a handle (RemoveMessage with the *Message returned from
		// Post) for a precise match, and matching any non-nil Callback
		// otherwise, narrowed further by the other filter fields below.
		if m.Callback == nil {
			return false
		}
	}
	if f.what != nil && m.What != *f.what {
		return false
	}
	if f.hasWhatRange && (m.What < f.whatMin || m.What > f.whatMax) {
		return false
	}
	if f.arg1 != nil && m.Arg1 != *f.arg1 {
		return false
	}
	if f.arg2 != nil && m.Arg2 != *f.arg2 {
		return false
	}
	if f.handlerCallback != nil && m.HandlerCallback != f.handlerCallback {
		return false
	}
	return true
}

// removeWhere walks the pending list once under q.mu, detaching and
// recycling every matching node, and returns how many were removed.
func (q *MessageQueue) removeWhere(f removeFilter) int {
	reentrant := q.lock()
	defer q.unlock(reentrant)

	removed := 0
	var prev *Message
	cur := q.head
	for cur != nil {
		next := cur.next
		if f.matches(cur) {
			if prev == nil {
				q.head = next
			} else {
				prev.next = next
			}
			if cur == q.tail {
				q.tail = prev
			}
			cur.next = nil
			q.size--
			q.recycleMsg(cur)
			removed++
		} else {
			prev = cur
		}
		cur = next
	}
	if q.metrics != nil {
		q.metrics.setPending(q.size)
		if removed > 0 {
			q.metrics.dropped.Add(float64(removed))
		}
	}
	return removed
}

// RemoveMessage removes a specific message instance (by identity) from
// the pending list, if present.
func (q *MessageQueue) RemoveMessage(msg *Message, handler *Handler) int {
	return q.removeWhere(removeFilter{msg: msg, handler: handler})
}

// RemoveMessagesByWhat removes every pending message with the given
// What tag.
func (q *MessageQueue) RemoveMessagesByWhat(what int, handler *Handler) int {
	return q.removeWhere(removeFilter{what: &what, handler: handler})
}

// RemoveMessagesByWhatRange removes every pending message whose What
// falls in [min, max] and which carries a non-nil Callback (spec §4.2's
// "(what range, runnable)" removal combination).
func (q *MessageQueue) RemoveMessagesByWhatRange(min, max int, handler *Handler) int {
	return q.removeWhere(removeFilter{hasWhatRange: true, whatMin: min, whatMax: max, requireRunnable: true, handler: handler})
}

// RemoveMessagesByRunnable removes every pending message carrying a
// non-nil Callback, approximating "by runnable identity" removal (see
// removeFilter.matches for why Go can't match a specific closure).
func (q *MessageQueue) RemoveMessagesByRunnable(handler *Handler) int {
	return q.removeWhere(removeFilter{requireRunnable: true, handler: handler})
}

// RemoveMessagesByWhatArgs removes pending messages matching What, Arg1
// and Arg2 exactly.
func (q *MessageQueue) RemoveMessagesByWhatArgs(what, arg1, arg2 int, handler *Handler) int {
	return q.removeWhere(removeFilter{what: &what, arg1: &arg1, arg2: &arg2, handler: handler})
}

// RemoveMessagesByCallback removes pending messages carrying callback as
// their HandlerCallback.
func (q *MessageQueue) RemoveMessagesByCallback(callback HandlerCallback, handler *Handler) int {
	return q.removeWhere(removeFilter{handlerCallback: callback, handler: handler})
}

// RemoveAllMessages drops every pending message, optionally restricted
// to one handler's messages.
func (q *MessageQueue) RemoveAllMessages(handler *Handler) int {
	return q.removeWhere(removeFilter{handler: handler})
}

// --- Queries ---

// hasMessageWhere reports whether any pending message matches the filter
// (O(n) scan under q.mu, no mutation).
func (q *MessageQueue) hasMessageWhere(f removeFilter) bool {
	reentrant := q.lock()
	defer q.unlock(reentrant)
	for cur := q.head; cur != nil; cur = cur.next {
		if f.matches(cur) {
			return true
		}
	}
	return false
}

func (q *MessageQueue) HasMessage(msg *Message, handler *Handler) bool {
	return q.hasMessageWhere(removeFilter{msg: msg, handler: handler})
}

func (q *MessageQueue) HasMessageWhat(what int, handler *Handler) bool {
	return q.hasMessageWhere(removeFilter{what: &what, handler: handler})
}

func (q *MessageQueue) HasMessageCallback(callback HandlerCallback, handler *Handler) bool {
	return q.hasMessageWhere(removeFilter{handlerCallback: callback, handler: handler})
}
