// Package engine implements the simulator's event engine: the simulation
// clock, a container/heap-ordered timer priority queue, a deferred-callback
// registry used exclusively to coalesce dispatch requests within one
// simulated instant, and an optional energy tracker. Grounded on
// original_source/schedsim/src/engine.hpp (the `future_list`/`past_list`
// event engine) and the timer-heap idiom of
// joeycumines-go-utilpkg/eventloop/loop.go.
package engine

import (
	"container/heap"
	"log"

	"github.com/halvorsen/schedsim-go/pkg/job"
	"github.com/halvorsen/schedsim-go/pkg/simtime"
	"github.com/halvorsen/schedsim-go/pkg/trace"
)

// ArrivalHandler routes a scheduled job arrival to whichever scheduler owns
// the task. Installed once by the simulation's top-level wiring.
type ArrivalHandler func(task *job.Task, when simtime.TimePoint, wcet simtime.Duration)

// Engine is the simulation's single-threaded cooperative driver. No
// operation blocks on external I/O during Run; the only suspension point
// is popping the next timer.
type Engine struct {
	now      simtime.TimePoint
	heap     timerHeap
	seq      uint64
	timers   map[TimerID]*timerEntry
	nextTID  TimerID
	deferred *deferredRegistry

	Energy *EnergyTracker
	Sink   trace.Sink

	arrival ArrivalHandler

	log *log.Logger
}

// New constructs an Engine with trace sink `sink` (use trace.NopSink{} if
// unused) and energy accounting enabled or not.
func New(sink trace.Sink, energyEnabled bool) *Engine {
	if sink == nil {
		sink = trace.NopSink{}
	}
	return &Engine{
		timers:   make(map[TimerID]*timerEntry),
		deferred: newDeferredRegistry(),
		Energy:   NewEnergyTracker(energyEnabled),
		Sink:     sink,
		log:      log.New(log.Writer(), "[engine] ", log.Lmicroseconds),
	}
}

// SetArrivalHandler installs the callback used by ScheduleJobArrival.
func (e *Engine) SetArrivalHandler(h ArrivalHandler) { e.arrival = h }

// Time returns the current simulation time. Monotonic non-decreasing.
func (e *Engine) Time() simtime.TimePoint { return e.now }

// AddTimer schedules a one-shot callback at `fireAt` with the given
// priority. Among equal (fireAt, priority), insertion order is preserved.
func (e *Engine) AddTimer(fireAt simtime.TimePoint, priority Priority, cb Callback) TimerID {
	e.nextTID++
	id := e.nextTID
	e.seq++
	entry := &timerEntry{id: id, fireAt: fireAt, priority: priority, seq: e.seq, cb: cb}
	e.timers[id] = entry
	heap.Push(&e.heap, entry)
	return id
}

// CancelTimer is idempotent: cancelling a fired or unknown timer is a no-op.
func (e *Engine) CancelTimer(id TimerID) {
	if entry, ok := e.timers[id]; ok {
		entry.cancelled = true
		delete(e.timers, id)
	}
}

// RegisterDeferred registers a callback that only runs when requested via
// RequestDeferred, at the end of the simulated instant in which it was
// requested.
func (e *Engine) RegisterDeferred(cb func()) DeferredID {
	return e.deferred.register(cb)
}

// RequestDeferred marks a deferred callback to run at the end of the
// current simulated instant. Multiple requests within one instant coalesce
// to a single invocation.
func (e *Engine) RequestDeferred(id DeferredID) {
	e.deferred.request(id)
}

// ScheduleJobArrival arms a timer that calls the installed ArrivalHandler.
func (e *Engine) ScheduleJobArrival(task *job.Task, when simtime.TimePoint, wcet simtime.Duration) TimerID {
	return e.AddTimer(when, PriorityTimerDefault, func(now simtime.TimePoint) {
		if e.arrival == nil {
			e.log.Printf("job arrival for task %d dropped: no arrival handler installed", task.ID)
			return
		}
		e.arrival(task, now, wcet)
	})
}

// Trace stamps `rec` with the current time (if unset) and forwards it to
// the configured Sink.
func (e *Engine) Trace(rec trace.Record) {
	if rec.Time == 0 {
		rec.Time = e.now
	}
	e.Sink.Write(rec)
}

// Run pops and dispatches timers in (fire_at, priority, insertion) order,
// draining deferred callbacks after every batch of timers sharing an
// instant, and stops when the queue is empty or `until` is reached. Pass a
// nil `until` to run to completion.
func (e *Engine) Run(until *simtime.TimePoint) {
	for e.heap.Len() > 0 {
		next := e.heap[0]
		if next.cancelled {
			// Tombstones never advance the clock.
			heap.Pop(&e.heap)
			continue
		}
		if until != nil && next.fireAt.After(*until) {
			break
		}
		instant := next.fireAt
		e.now = instant

		for e.heap.Len() > 0 && e.heap[0].fireAt == instant {
			entry := heap.Pop(&e.heap).(*timerEntry)
			if entry.cancelled {
				continue
			}
			delete(e.timers, entry.id)
			entry.cb(instant)
		}

		e.deferred.drain()
	}
	if until != nil {
		e.now = simtime.Max(e.now, *until)
	}
}
