package catalog

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrTriggerClosed is returned by Trigger.Wait after Close. A waiting
// synchronizer must treat it as an instruction to stop its loop.
var ErrTriggerClosed = errors.New("trigger closed")

// Trigger is a single-slot refresh mailbox connecting a timer to a
// synchronizer loop. Signal requests a refresh and never blocks: if a
// request is already pending, the new one is dropped. This bounds a
// slow consumer to at most one outstanding wake, so refreshes slower
// than the tick interval cannot accumulate a backlog.
type Trigger struct {
	ch        chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewTrigger creates a Trigger with an empty slot.
func NewTrigger() *Trigger {
	return &Trigger{
		ch:   make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Signal requests a refresh. It is a no-op if a request is already
// pending or the trigger has been closed.
func (t *Trigger) Signal() {
	select {
	case <-t.done:
		return
	default:
	}
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until a refresh has been requested. A request that was
// pending before Close is still delivered; once the slot is empty and
// the trigger is closed, Wait returns ErrTriggerClosed.
func (t *Trigger) Wait() error {
	// Drain a pending request first so Close never discards work.
	select {
	case <-t.ch:
		return nil
	default:
	}
	select {
	case <-t.ch:
		return nil
	case <-t.done:
		return ErrTriggerClosed
	}
}

// Close permanently shuts down the trigger. Subsequent Signal calls
// are no-ops and Wait returns ErrTriggerClosed once the slot is empty.
// Close is idempotent.
func (t *Trigger) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
	})
}
