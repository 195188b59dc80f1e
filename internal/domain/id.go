package domain

import (
	"strconv"
	"sync"
	"time"
)

var idMu struct {
	sync.Mutex
	last int64
}

// NewActivityID returns a unique, monotonically increasing identifier derived
// from the current time in milliseconds. Two calls within the same
// millisecond still yield distinct, ordered ids.
func NewActivityID() string {
	idMu.Lock()
	defer idMu.Unlock()

	now := time.Now().UnixMilli()
	if now <= idMu.last {
		now = idMu.last + 1
	}
	idMu.last = now
	return strconv.FormatInt(now, 10)
}
