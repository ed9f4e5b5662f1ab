package looper

import (
	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger is the structured logging type used throughout this package,
// following the teacher's "external integration with logging frameworks"
// design: a generic logiface.Logger bound to izerolog's zerolog-backed
// event type. Every ContractViolation, UserCallbackFault and diagnostic
// dump in the spec goes through one of these.
type Logger = *logiface.Logger[*izerolog.Event]

// NewNopLogger returns a Logger with no writer configured. logiface
// reports such a logger as disabled at every level, so all calls are a
// single branch and allocate nothing — the correct default for a
// library that must not be noisy unless a caller opts in.
func NewNopLogger() Logger {
	return logiface.New[*izerolog.Event]()
}

// NewLogger wraps an existing zerolog.Logger for use by MessageQueue,
// Looper and Handler.
func NewLogger(z zerolog.Logger) Logger {
	return logiface.New[*izerolog.Event](izerolog.WithZerolog(z))
}

// logWarn/logError/logDebug are small helpers so call sites read like the
// spec's "log at warn/error and drop" language instead of repeating the
// logiface chain at every site. They take the MessageQueue itself, not
// just its logger, so every line also carries q's diagnostic instance id
// (SPEC_FULL.md §12) when one was stamped via WithInstanceID.
func logWarn(q *MessageQueue, msg string, err error) {
	if q.logger == nil {
		return
	}
	b := q.logger.Warning().Str("queue", q.name)
	if q.instanceID != "" {
		b = b.Str("looper", q.instanceID)
	}
	if err != nil {
		b = b.Str("error", err.Error())
	}
	b.Log(msg)
}

func logError(q *MessageQueue, msg string, err error) {
	if q.logger == nil {
		return
	}
	b := q.logger.Err().Str("queue", q.name)
	if q.instanceID != "" {
		b = b.Str("looper", q.instanceID)
	}
	if err != nil {
		b = b.Str("error", err.Error())
	}
	b.Log(msg)
}

func logDebug(q *MessageQueue, msg string) {
	if q.logger == nil {
		return
	}
	b := q.logger.Debug().Str("queue", q.name)
	if q.instanceID != "" {
		b = b.Str("looper", q.instanceID)
	}
	b.Log(msg)
}
