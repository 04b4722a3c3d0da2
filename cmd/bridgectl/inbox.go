package main

import (
	"context"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/wippyai/native-bridge/dispatch"
)

// hostTask is one delivery handed to the program. It is claimed exactly
// once: by Update to run it, or by the inbox to give it back.
type hostTask struct {
	task    dispatch.Task
	claimed atomic.Bool
}

// taskMsg carries a bridge delivery into Update, which makes the program
// goroutine the host execution context.
type taskMsg struct {
	task *hostTask
}

// inbox schedules bridge deliveries onto a bubbletea program. Send does
// not report whether the program accepted a message, so every task stays
// tracked until it is claimed.
type inbox struct {
	ctx     context.Context
	send    func(tea.Msg)
	pending *xsync.MapOf[*hostTask, struct{}]
}

// newInbox creates an inbox that is open until ctx ends. ctx must be
// cancelled once the program has returned.
func newInbox(ctx context.Context, send func(tea.Msg)) *inbox {
	return &inbox{
		ctx:     ctx,
		send:    send,
		pending: xsync.NewMapOf[*hostTask, struct{}](),
	}
}

// Schedule implements dispatch.Scheduler. A task handed over after the
// program stopped is reported Dropped so the dispatcher discards it.
func (in *inbox) Schedule(t dispatch.Task) dispatch.Outcome {
	if in.ctx.Err() != nil {
		return dispatch.Dropped
	}
	ht := &hostTask{task: t}
	in.pending.Store(ht, struct{}{})
	in.send(taskMsg{task: ht})
	if in.ctx.Err() != nil && in.take(ht) {
		return dispatch.Dropped
	}
	return dispatch.Delivered
}

// run executes ht on the calling goroutine unless it was already taken.
func (in *inbox) run(ht *hostTask) {
	if in.take(ht) {
		ht.task.Run()
	}
}

// discardPending discards every task the program never ran and returns
// how many there were.
func (in *inbox) discardPending() int {
	n := 0
	in.pending.Range(func(ht *hostTask, _ struct{}) bool {
		if in.take(ht) {
			ht.task.Discard()
			n++
		}
		return true
	})
	return n
}

func (in *inbox) take(ht *hostTask) bool {
	if !ht.claimed.CompareAndSwap(false, true) {
		return false
	}
	in.pending.Delete(ht)
	return true
}
