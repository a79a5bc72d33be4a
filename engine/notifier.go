// Package engine holds the active components of the node: the consensus
// output sequencer and the checkpoint execution pipeline, plus the small
// concurrency primitives they share.
package engine

// Notifier is a concurrency primitive for informing worker routines about the
// arrival of new work units. It has the same semantics as a boolean semaphore:
// notifications are idempotent and no notification is lost, but repeated
// notifications before the consumer wakes up collapse into one.
type Notifier struct {
	notifier chan struct{}
}

// NewNotifier instantiates a Notifier. Notifiers must NOT be copied.
func NewNotifier() Notifier {
	// the 1-buffer channel is both the wakeup signal and the pending flag
	return Notifier{make(chan struct{}, 1)}
}

// Notify sends a notification. Non-blocking.
func (n Notifier) Notify() {
	select {
	// to prevent from getting blocked by dropping the notification if
	// there is no handler subscribing the channel.
	case n.notifier <- struct{}{}:
	default:
	}
}

// Channel returns a channel for receiving notifications.
func (n Notifier) Channel() <-chan struct{} {
	return n.notifier
}
