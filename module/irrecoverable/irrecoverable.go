// Package irrecoverable provides the escalation path for violated safety
// invariants. Components never call panic or log.Fatal directly; they throw
// the error on their SignalerContext, and the process owner turns it into a
// clean abort with full diagnostic context.
package irrecoverable

import (
	"context"
	"log"
	"runtime"

	"go.uber.org/atomic"
)

// Signaler sends the error out.
type Signaler struct {
	errChan   chan error
	errThrown *atomic.Bool
}

func NewSignaler() (*Signaler, <-chan error) {
	errChan := make(chan error, 1)
	return &Signaler{
		errChan:   errChan,
		errThrown: atomic.NewBool(false),
	}, errChan
}

// Throw reports the error and terminates the calling goroutine. It is a
// narrow drop-in replacement for panic or log.Fatal anywhere a signaler is
// connected. Only the first error is delivered; later ones are logged and
// dropped, since the first violation is the one that matters for diagnosis.
func (s *Signaler) Throw(err error) {
	defer runtime.Goexit()
	if s.errThrown.CAS(false, true) {
		s.errChan <- err
		close(s.errChan)
	} else {
		log.Printf("dropping irrecoverable error, signaler already fired: %v", err)
	}
}

// SignalerContext is a drop-in replacement for context.Context which
// additionally carries the throw path for irrecoverable errors, including in
// interfaces that compose it.
type SignalerContext interface {
	context.Context
	Throw(err error) // delegates to the signaler
	sealed()         // private, to constrain construction to WithSignaler
}

type signalerCtx struct {
	context.Context
	*Signaler
}

func (sc *signalerCtx) sealed() {}

// WithSignaler is the only way of building a SignalerContext. The returned
// error channel yields at most one error: the first thrown.
func WithSignaler(parent context.Context) (SignalerContext, <-chan error) {
	sig, errChan := NewSignaler()
	return &signalerCtx{parent, sig}, errChan
}

// Throw enables throwing through a plain context.Context, provided the
// context was derived from a SignalerContext up the chain. If it was not,
// nothing can be done but exit the process: swallowing an irrecoverable
// error is never an option.
func Throw(ctx context.Context, err error) {
	signalerAbleContext, ok := ctx.(SignalerContext)
	if ok {
		signalerAbleContext.Throw(err)
	}
	log.Fatalf("irrecoverable error signaler not found for context, please implement! Unhandled irrecoverable error: %v", err)
}
