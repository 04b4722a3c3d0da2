package dispatch

// Outcome reports what happened to a native completion.
type Outcome uint8

const (
	// Delivered means the host context accepted the work.
	Delivered Outcome = iota
	// Dropped means the host context refused the work; its resources were released.
	Dropped
	// Stale means no pending request matched the completion.
	Stale
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Dropped:
		return "dropped"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Task is a unit of work bound for the host execution context. Exactly one
// of Run or Discard is called, once.
type Task interface {
	// Run executes the task on the host context.
	Run()
	// Discard releases the task's resources without running it.
	Discard()
}

// Scheduler hands tasks to the host execution context. Schedule must not
// run the task inline. A scheduler that returns Dropped has not taken
// ownership; the caller discards the task. A scheduler that accepted a task
// and later cannot run it calls Discard itself.
type Scheduler interface {
	Schedule(Task) Outcome
}

// SchedulerFunc adapts a function to Scheduler, for embedding the bridge
// into a foreign event loop.
type SchedulerFunc func(Task) Outcome

// Schedule calls f(t).
func (f SchedulerFunc) Schedule(t Task) Outcome {
	return f(t)
}

type funcTask struct {
	run     func()
	discard func()
}

func (t funcTask) Run() {
	if t.run != nil {
		t.run()
	}
}

func (t funcTask) Discard() {
	if t.discard != nil {
		t.discard()
	}
}

// NewTask builds a Task from functions. Either may be nil.
func NewTask(run, discard func()) Task {
	return funcTask{run: run, discard: discard}
}
