// Package looper implements a Handler/Looper/MessageQueue message-loop
// runtime: a goroutine parks in Loop, pulling due messages off an
// ordered MessageQueue and dispatching them to the Handler each message
// targets, the same pattern Android's android.os namespace popularizes
// for single-threaded-by-convention work queues.
//
// # Architecture
//
// A MessageQueue holds a time-ordered pending list and a bounded
// recycle pool of spent Message records. Exactly one goroutine (the
// one that called Prepare) ever consumes a given queue, via Loop; any
// number of goroutines may produce into it through a Handler's Post/
// Send family.
//
// LooperThread packages the common "spawn a goroutine, pin it to an OS
// thread, prepare a Looper on it, run Loop" sequence used when a
// caller wants a dedicated worker rather than driving Loop on its own
// goroutine.
//
// # Thread-local emulation
//
// Go has no thread-local storage, and goroutines are not OS threads, so
// Prepare/MyLooper key a process-wide registry by the calling
// goroutine's id (internal/gid) rather than relying on language-level
// TLS. See SPEC_FULL.md §10 for the full mapping of the original's
// primitives onto Go's.
package looper
