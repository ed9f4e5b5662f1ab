package looper

import "sync"

// Runnable is a unit of deferred work posted via Handler.Post. It
// receives the handler's opaque context pointer, matching the original
// messageCallback(msg, context) signature.
type Runnable func(msg *Message, context any)

// HandlerCallback is the polymorphic dispatch capability from spec §4.1:
// a message carrying one of these is dispatched by invoking OnHandler
// instead of going through the handler's own resolution chain.
type HandlerCallback interface {
	OnHandler(msg *Message)
}

// HandlerCallbackFunc adapts a plain function to HandlerCallback.
type HandlerCallbackFunc func(msg *Message)

func (f HandlerCallbackFunc) OnHandler(msg *Message) { f(msg) }

// paramFreeFunc releases a message's opaque payload exactly once.
type paramFreeFunc func(ptr any, bytes int)

// Message flags. Only FlagInUse is enforced; FlagAsync is declared but
// never consulted anywhere in the runtime (spec §9 Open Questions:
// "intent unclear — preserve the field but document as reserved").
const (
	FlagInUse = 1 << iota
	FlagAsync
)

// Message is the unit of work carried by a MessageQueue. It is move-only
// in spirit: once obtained it belongs to exactly one list (the queue's
// pending list, its pool, or the dispatcher's stack) at a time. Callers
// must never retain a pointer to a Message after handing it to
// MessageQueue.EnqueueMessage or after Handler dispatch completes, since it may
// be recycled and handed back out to an unrelated caller immediately
// after.
type Message struct { // betteralign:ignore
	What int
	Arg1 int
	Arg2 int

	// Callback, if set, takes dispatch precedence over everything else
	// (spec §4.4 step 1).
	Callback Runnable

	// HandlerCallback, if set, takes precedence over the handler's own
	// defaults (spec §4.4 step 2).
	HandlerCallback HandlerCallback

	// target is the Handler bound to receive this message's dispatch.
	// Stamped by Handler at send time, never by a caller directly.
	target *Handler

	// when is the absolute monotonic-ms due time, assigned by the queue
	// on enqueue.
	when int64

	flags int

	// next is the intrusive singly-linked-list pointer shared by both
	// the queue's pending list and its recycle pool. A Message is a
	// member of at most one such list at a time.
	next *Message

	paramPtr   any
	paramBytes int
	paramFree  paramFreeFunc
}

// IsInUse reports whether the message currently sits in a queue (pending
// list) and is therefore ineligible for recycling.
func (m *Message) IsInUse() bool {
	return m.flags&FlagInUse != 0
}

func (m *Message) markInUse()   { m.flags |= FlagInUse }
func (m *Message) clearInUse()  { m.flags &^= FlagInUse }
func (m *Message) When() int64  { return m.when }
func (m *Message) Target() *Handler { return m.target }

// SetParam transfers ownership of an opaque payload to the message.
// freeFn, if non-nil, is invoked exactly once — on dispatch-triggered
// recycle, on explicit removal, or at shutdown drain — whichever comes
// first. Calling SetParam again before that release runs is a caller
// bug (the previous freeFn is simply overwritten and never invoked);
// spec.md does not define that case, so this mirrors the original C++
// setParam, which has the same property.
func (m *Message) SetParam(ptr any, bytes int, freeFn func(ptr any, bytes int)) {
	m.paramPtr = ptr
	m.paramBytes = bytes
	if freeFn != nil {
		m.paramFree = freeFn
	} else {
		m.paramFree = nil
	}
}

// Param returns the opaque payload set by SetParam.
func (m *Message) Param() (ptr any, bytes int) {
	return m.paramPtr, m.paramBytes
}

// recycleUnchecked releases the payload and zeroes every field. Called
// with no regard for IsInUse — callers (MessageQueue) are responsible
// for only calling this once a message has been fully detached from
// whatever list held it.
func (m *Message) recycleUnchecked() {
	if m.paramFree != nil {
		m.paramFree(m.paramPtr, m.paramBytes)
	}
	m.What, m.Arg1, m.Arg2 = 0, 0, 0
	m.Callback = nil
	m.HandlerCallback = nil
	m.target = nil
	m.when = 0
	m.flags = 0
	m.paramPtr = nil
	m.paramBytes = 0
	m.paramFree = nil
	// m.next is intentionally left alone: whichever list unlinked this
	// message already owns clearing (or reusing) that pointer.
}

// messagePool is the process-wide fallback allocator used when the
// caller's goroutine has no Looper (and therefore no queue-local pool)
// to consult. Every MessageQueue also keeps its own bounded recycle
// pool (spec §4.2, implemented in queue.go); this one only backs the
// queue-agnostic Obtain* family's allocation-on-miss path.
var messagePool = sync.Pool{New: func() any { return &Message{} }}

// Obtain returns a blank message. It consults the calling goroutine's
// current Looper's queue pool first (spec §4.1: "obtain factories
// consult the current thread's queue pool first"); on miss, or if no
// Looper is prepared on this goroutine, it allocates via the shared
// fallback pool.
func Obtain() *Message {
	if l := lookupLooper(gidCurrent()); l != nil {
		if m := l.queue.obtainFromPool(); m != nil {
			return m
		}
	}
	return messagePool.Get().(*Message)
}

// ObtainWhat returns a message pre-populated with What.
func ObtainWhat(what int) *Message {
	m := Obtain()
	m.What = what
	return m
}

// ObtainArgs returns a message pre-populated with What, Arg1 and Arg2.
func ObtainArgs(what, arg1, arg2 int) *Message {
	m := Obtain()
	m.What, m.Arg1, m.Arg2 = what, arg1, arg2
	return m
}

// ObtainRunnable returns a message carrying r as its Callback.
func ObtainRunnable(r Runnable) *Message {
	m := Obtain()
	m.Callback = r
	return m
}

// ObtainForHandler returns a message, preferring h's own queue pool —
// the "Handler-qualified obtain" of spec §4.1. It never stamps target;
// Handler.sendMessageAtTime does that at send time.
func ObtainForHandler(h *Handler) *Message {
	if h != nil {
		if m := h.queue.obtainFromPool(); m != nil {
			return m
		}
	}
	return messagePool.Get().(*Message)
}

// release returns a spent record to the shared fallback pool. Queue
// pools (bounded, LIFO, spec §4.2) fall back to this once their own cap
// is exceeded, so allocation pressure never grows unbounded even under
// bursty cross-queue traffic.
func release(m *Message) {
	messagePool.Put(m)
}
