// Package goid exposes the id of the calling goroutine.
//
// Resolution in habitat is synchronous and call-stack recursive, so the
// goroutine id identifies one resolution chain. It is also what goroutine
// bound scopes key their active instance on.
package goid

import (
	"runtime"
	"strconv"
	"strings"
)

// Get returns the current goroutine ID.
func Get() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	idField := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))[0]
	id, _ := strconv.ParseInt(idField, 10, 64)
	return id
}
