package component

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/atlasnet/atlas-go/module"
	"github.com/atlasnet/atlas-go/module/irrecoverable"
	"github.com/atlasnet/atlas-go/module/util"
)

// Component represents a component which can be started and stopped, and
// exposes channels that close when startup and shutdown have completed.
// Once Start has been called, the channel returned by Done must close
// eventually, whether because of a graceful shutdown or an irrecoverable
// error.
type Component interface {
	module.Startable
	module.ReadyDoneAware
}

// ReadyFunc is called within a ComponentWorker function to indicate that the
// worker is ready. The ComponentManager's Ready channel is closed when all
// workers are ready.
type ReadyFunc func()

// ComponentWorker represents a worker routine of a component. It takes a
// SignalerContext which can be used to throw any irrecoverable errors it
// encounters, as well as a ReadyFunc which must be called to signal that it
// is ready.
type ComponentWorker func(ctx irrecoverable.SignalerContext, ready ReadyFunc)

// ComponentManagerBuilder provides a mechanism for building a
// ComponentManager.
type ComponentManagerBuilder interface {
	// AddWorker adds a worker routine for the ComponentManager.
	AddWorker(ComponentWorker) ComponentManagerBuilder

	// Build builds and returns a new ComponentManager instance.
	Build() *ComponentManager
}

type componentManagerBuilder struct {
	workers []ComponentWorker
}

// NewComponentManagerBuilder returns a new ComponentManagerBuilder.
func NewComponentManagerBuilder() ComponentManagerBuilder {
	return &componentManagerBuilder{}
}

// AddWorker adds a worker routine. All workers run in parallel once the
// ComponentManager is started. Not concurrency-safe; call from a single
// goroutine while building.
func (c *componentManagerBuilder) AddWorker(worker ComponentWorker) ComponentManagerBuilder {
	c.workers = append(c.workers, worker)
	return c
}

func (c *componentManagerBuilder) Build() *ComponentManager {
	return &ComponentManager{
		started:        atomic.NewBool(false),
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
		workersDone:    make(chan struct{}),
		shutdownSignal: make(chan struct{}),
		workers:        c.workers,
	}
}

var _ Component = (*ComponentManager)(nil)

// ComponentManager manages the worker routines of a Component and implements
// the Component interface on their behalf. Ready() closes when all workers
// have called their ReadyFunc; Done() closes after all workers have returned.
//
// Shutdown is signalled by cancelling the SignalerContext passed to Start().
// The same context carries irrecoverable errors: all thrown errors are
// considered fatal and propagate to the caller of Start().
type ComponentManager struct {
	started        *atomic.Bool
	ready          chan struct{}
	done           chan struct{}
	workersDone    chan struct{}
	shutdownSignal chan struct{}

	workers []ComponentWorker
}

// Start launches all worker routines. It must only be called once and panics
// otherwise.
func (c *ComponentManager) Start(parent irrecoverable.SignalerContext) {
	if !c.started.CAS(false, true) {
		panic(module.ErrMultipleStartup)
	}

	ctx, cancel := context.WithCancel(parent)
	signalerCtx, errChan := irrecoverable.WithSignaler(ctx)

	go func() {
		<-ctx.Done()
		close(c.shutdownSignal)
	}()

	// propagate any irrecoverable error to the parent; closing done only
	// after workersDone guarantees the error wins the race against a caller
	// that is merely waiting for Done
	go func() {
		defer func() {
			<-c.workersDone
			close(c.done)
		}()

		if err := util.WaitError(errChan, c.workersDone); err != nil {
			cancel() // shut down all workers
			parent.Throw(err)
		}
	}()

	var workersReady sync.WaitGroup
	var workersDone sync.WaitGroup
	workersReady.Add(len(c.workers))
	workersDone.Add(len(c.workers))

	for _, worker := range c.workers {
		worker := worker
		go func() {
			defer workersDone.Done()
			var readyOnce sync.Once
			worker(signalerCtx, func() {
				readyOnce.Do(workersReady.Done)
			})
		}()
	}

	go func() {
		workersReady.Wait()
		close(c.ready)
	}()
	go func() {
		workersDone.Wait()
		close(c.workersDone)
	}()
}

// Ready returns a channel which is closed once all worker routines have been
// launched and are ready. If any worker exits before signalling readiness,
// the channel never closes.
func (c *ComponentManager) Ready() <-chan struct{} {
	return c.ready
}

// Done returns a channel which is closed once all worker routines have shut
// down (either gracefully or by throwing an error).
func (c *ComponentManager) Done() <-chan struct{} {
	return c.done
}

// ShutdownSignal returns a channel that is closed when shutdown has
// commenced, either because the context was cancelled or because a worker
// threw an irrecoverable error. Returns nil if called before Start.
func (c *ComponentManager) ShutdownSignal() <-chan struct{} {
	return c.shutdownSignal
}
