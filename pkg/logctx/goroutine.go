package logctx

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID recovers the calling goroutine's numeric id from its stack
// trace header ("goroutine 123 [running]:"). The runtime exposes no public
// accessor for this, and nothing in the retrieval pack implements
// goroutine-local storage, so this is the one place in the Task Context
// substrate that falls back to a small hand-rolled mechanism rather than a
// pack-grounded library (see DESIGN.md) — it stands in for the thread-local
// "current context" cell spec.md §4.1 describes.
// GoroutineID exports goroutineID for other packages that need the same
// "current thread" identity (e.g. pkg/db's transaction binding).
func GoroutineID() uint64 { return goroutineID() }

func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
