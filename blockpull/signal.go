package blockpull

import (
	"context"
	"time"

	cmtsync "github.com/stratis-go/fullnode/libs/sync"
)

// signal wakes every goroutine currently waiting on it. A wake only means
// that something changed: waiters re-check their condition every time.
//
// Waiters must call wait before checking their condition, otherwise a
// broadcast in between is lost.
type signal struct {
	mtx cmtsync.Mutex
	ch  chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

func (s *signal) wait() <-chan struct{} {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.ch
}

func (s *signal) broadcast() {
	s.mtx.Lock()
	close(s.ch)
	s.ch = make(chan struct{})
	s.mtx.Unlock()
}

// sleep returns when ch fires or timeout elapses, whichever is first, or
// ctx.Err() once ctx is done.
func sleep(ctx context.Context, ch <-chan struct{}, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
