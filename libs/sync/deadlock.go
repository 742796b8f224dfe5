//go:build deadlock
// +build deadlock

package sync

import (
	deadlock "github.com/sasha-s/go-deadlock"
)

// A Mutex is a mutual exclusion lock that reports lock-order inversions and
// long waits when built with the deadlock tag.
type Mutex struct {
	deadlock.Mutex
}

// An RWMutex is a reader/writer mutual exclusion lock that reports
// lock-order inversions and long waits when built with the deadlock tag.
type RWMutex struct {
	deadlock.RWMutex
}
