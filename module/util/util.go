package util

import (
	"context"
	"sync"
)

// AllClosed returns a channel that is closed when all input channels are
// closed.
func AllClosed(channels ...<-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	var wg sync.WaitGroup

	for _, ch := range channels {
		wg.Add(1)
		go func(ch <-chan struct{}) {
			<-ch
			wg.Done()
		}(ch)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	return done
}

// WaitClosed waits for either a signal/close on the channel or for the
// context to be cancelled. Returns nil if the channel was signalled/closed
// before returning, otherwise returns the context error.
func WaitClosed(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ctx.Done():
		select {
		case <-ch:
			return nil
		default:
		}
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// WaitError waits for either an error on the error channel or the done
// channel to close. Returns an error if one is received, nil otherwise.
//
// This handles a race where when the done channel closes because of an error,
// the error might be read only after the done signal. Checking the error
// channel first guarantees the error is returned in that case.
func WaitError(errChan <-chan error, done <-chan struct{}) error {
	select {
	case err := <-errChan:
		return err
	default:
	}
	select {
	case err := <-errChan:
		return err
	case <-done:
		// an error could still have been thrown at the very moment done
		// closed; give it priority
		select {
		case err := <-errChan:
			return err
		default:
		}
		return nil
	}
}
