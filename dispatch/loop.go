package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/native-bridge/errors"
)

// DefaultQueueSize is the task queue capacity used when LoopOptions leaves
// QueueSize at zero.
const DefaultQueueSize = 1024

// DefaultOfferTimeout is used when LoopOptions leaves OfferTimeout at zero.
const DefaultOfferTimeout = 5 * time.Second

// LoopOptions configures a Loop.
type LoopOptions struct {
	// Logger overrides the package logger.
	Logger *zap.Logger

	// QueueSize is the task queue capacity.
	QueueSize int

	// OfferTimeout bounds how long Schedule waits for queue space.
	// Negative never waits.
	OfferTimeout time.Duration
}

// Loop is a single-consumer host execution context. Tasks run one at a time
// on the goroutine that called Run, in the order they were scheduled.
type Loop struct {
	log       *zap.Logger
	tasks     chan Task
	closed    chan struct{}
	done      chan struct{}
	timeout   time.Duration
	closeOnce sync.Once
	running   atomic.Bool
}

// NewLoop creates a loop. It does nothing until Run or Start is called.
func NewLoop(opts LoopOptions) *Loop {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	timeout := opts.OfferTimeout
	if timeout == 0 {
		timeout = DefaultOfferTimeout
	}
	log := opts.Logger
	if log == nil {
		log = Logger()
	}
	return &Loop{
		log:     log,
		tasks:   make(chan Task, size),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
		timeout: timeout,
	}
}

// Schedule enqueues t. It returns Dropped when the loop is closed or the
// queue stays full past the offer timeout.
func (l *Loop) Schedule(t Task) Outcome {
	select {
	case <-l.closed:
		return Dropped
	default:
	}

	if l.timeout < 0 {
		select {
		case l.tasks <- t:
		default:
			return Dropped
		}
	} else {
		timer := time.NewTimer(l.timeout)
		defer timer.Stop()
		select {
		case l.tasks <- t:
		case <-l.closed:
			return Dropped
		case <-timer.C:
			return Dropped
		}
	}

	// A send can win the race against Close; the queue is drained again
	// so the task is discarded rather than stranded.
	select {
	case <-l.closed:
		l.drain()
	default:
	}
	return Delivered
}

// Run consumes tasks on the calling goroutine until ctx is done or the loop
// is closed. Only one Run may be active at a time. When ctx ends Run closes
// the loop, so tasks still queued are discarded instead of stranded with no
// consumer.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New(errors.PhaseSchedule, errors.KindInvalidInput).
			Detail("loop is already running").
			Build()
	}
	defer l.running.Store(false)

	for {
		if err := ctx.Err(); err != nil {
			l.Close()
			return err
		}
		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.closed:
			l.drain()
			return nil
		case t := <-l.tasks:
			if l.Closed() {
				t.Discard()
				continue
			}
			l.run(t)
		}
	}
}

// Start runs the loop on its own goroutine. Done is closed when it exits.
func (l *Loop) Start() {
	go func() {
		defer close(l.done)
		if err := l.Run(context.Background()); err != nil {
			l.log.Warn("loop exited", zap.Error(err))
		}
	}()
}

// Done is closed when a loop started with Start exits.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Close stops accepting tasks and discards those still queued. A task
// already running finishes normally. Close may be called from a task.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.closed)
		n := l.drain()
		l.log.Debug("loop closed", zap.Int("discarded", n))
	})
}

// Closed reports whether Close has been called.
func (l *Loop) Closed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	return len(l.tasks)
}

func (l *Loop) drain() int {
	n := 0
	for {
		select {
		case t := <-l.tasks:
			t.Discard()
			n++
		default:
			return n
		}
	}
}

func (l *Loop) run(t Task) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Warn("recovered task panic", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	t.Run()
}
