package engine

import "github.com/halvorsen/schedsim-go/pkg/simtime"

// Priority orders callbacks that fire at the same simulated instant.
// Deadline misses must be observed before job completions so policies can
// react before the processor is reported idle.
type Priority int

const (
	PriorityDeadlineMiss Priority = iota
	PriorityJobCompletion
	PriorityProcessorAvailable
	PriorityTimerDefault
)

// TimerID identifies a scheduled one-shot callback.
type TimerID uint64

// Callback is invoked with the simulated instant it fires at.
type Callback func(now simtime.TimePoint)

type timerEntry struct {
	id        TimerID
	fireAt    simtime.TimePoint
	priority  Priority
	seq       uint64
	cancelled bool
	cb        Callback
}

// timerHeap is a min-heap ordered by (fireAt, priority, insertion order),
// the same container/heap idiom used by eventloop.timerHeap in the
// retrieved corpus (joeycumines-go-utilpkg/eventloop/loop.go).
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.fireAt != b.fireAt {
		return a.fireAt < b.fireAt
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.seq < b.seq
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*timerEntry))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
