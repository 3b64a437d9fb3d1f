package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"modelkit/internal/goid"
)

var (
	// ErrLoopStopped is returned when work is handed to a stopped loop.
	ErrLoopStopped = errors.New("tracking: main loop stopped")
	// ErrLoopRunning is returned when Run is called on a loop already running.
	ErrLoopRunning = errors.New("tracking: main loop already running")
)

// DefaultLoopBuffer is the task buffer used when NewMainLoop gets a
// non-positive size.
const DefaultLoopBuffer = 64

// MainLoop runs posted functions one at a time on the goroutine that called
// Run. It stands in for a UI thread: trackers and bindings are touched only
// from functions executed by the loop.
type MainLoop struct {
	tasks    chan func()
	stop     chan struct{}
	started  chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
	owner    atomic.Uint64
}

// NewMainLoop constructs a loop with room for buffer pending tasks.
func NewMainLoop(buffer int) *MainLoop {
	if buffer <= 0 {
		buffer = DefaultLoopBuffer
	}
	return &MainLoop{
		tasks:   make(chan func(), buffer),
		stop:    make(chan struct{}),
		started: make(chan struct{}),
	}
}

// Run executes tasks until ctx is done or Stop is called. A task that panics
// brings the loop down with it, the way a panic on a UI thread would.
func (l *MainLoop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	l.owner.Store(goid.Current())
	close(l.started)
	defer l.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Started is closed once Run has claimed its goroutine.
func (l *MainLoop) Started() <-chan struct{} { return l.started }

// Goroutine returns the id of the goroutine running the loop, or 0 before Run.
func (l *MainLoop) Goroutine() uint64 { return l.owner.Load() }

// OnLoop reports whether the caller is the loop goroutine.
func (l *MainLoop) OnLoop() bool {
	owner := l.owner.Load()
	return owner != 0 && owner == goid.Current()
}

// Post enqueues fn without waiting for it to run. It blocks while the buffer
// is full and returns ErrLoopStopped once the loop has stopped.
func (l *MainLoop) Post(fn func()) error {
	if fn == nil {
		return nil
	}
	select {
	case <-l.stop:
		return ErrLoopStopped
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.stop:
		return ErrLoopStopped
	}
}

// Call runs fn on the loop and waits for it to finish. Called from the loop
// goroutine itself, fn runs inline. A panic inside fn is re-raised on the
// caller's goroutine.
func (l *MainLoop) Call(ctx context.Context, fn func()) error {
	if l.OnLoop() {
		fn()
		return nil
	}
	done := make(chan any, 1)
	err := l.Post(func() {
		defer func() { done <- recover() }()
		fn()
	})
	if err != nil {
		return err
	}
	select {
	case r := <-done:
		if r != nil {
			panic(r)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stop:
		// The task may have completed right before the stop.
		select {
		case r := <-done:
			if r != nil {
				panic(r)
			}
			return nil
		default:
			return fmt.Errorf("call abandoned: %w", ErrLoopStopped)
		}
	}
}

// Stop ends Run after the task currently executing. Pending tasks are dropped.
func (l *MainLoop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
