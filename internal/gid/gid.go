// Package gid gives the calling goroutine a stable numeric identity.
//
// The teacher monorepo reserves a module for exactly this
// (github.com/joeycumines/goroutineid) but never implements it — its
// directory holds nothing but a go.mod. golooper needs the real thing:
// Looper is specified as thread-local, and Go has no TLS primitive, so
// a goroutine-id-keyed registry stands in for it.
package gid

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

var stackBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64)
		return &b
	},
}

// Current returns a unique, stable id for the calling goroutine, parsed
// out of its runtime stack trace header ("goroutine 123 [running]: ...").
// This is the standard low-overhead trick used by most goroutine-id
// shims; it is not a Go language guarantee, but the format has been
// stable across Go releases for over a decade.
func Current() uint64 {
	buf := stackBufPool.Get().(*[]byte)
	defer stackBufPool.Put(buf)

	n := runtime.Stack(*buf, false)
	b := (*buf)[:n]

	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]

	sp := bytes.IndexByte(b, ' ')
	if sp < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:sp]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
