// Package job defines the immutable Task description and the mutable Job
// instance executed against it, grounded on the original simulator's
// schedsim/core/include/schedsim/core/{task,job}.hpp.
package job

import "github.com/halvorsen/schedsim-go/pkg/simtime"

// TaskID stably identifies a Task within a platform for the lifetime of a
// simulation run.
type TaskID uint64

// Task is immutable after platform finalization: a period, a relative
// deadline, a worst-case execution time, and a stable ID.
type Task struct {
	ID               TaskID
	Period           simtime.Duration
	RelativeDeadline simtime.Duration
	WCET             simtime.Duration
}

// Utilization returns WCET/Period, used only for reporting; CBS servers
// carry their own (possibly different) bandwidth reservation Q/T.
func (t Task) Utilization() float64 {
	if t.Period <= 0 {
		return 0
	}
	return float64(t.WCET) / float64(t.Period)
}

// JobID identifies a Job instance within its owning server's job counter.
type JobID uint64

// Job is one instance ("activation") of a Task: an amount of work to
// execute and an absolute deadline. Jobs are owned by the allocator that
// created them and are moved into/out of CbsServer job queues.
type Job struct {
	ID              JobID
	Task            *Task
	TotalWork       simtime.Duration
	RemainingWork   simtime.Duration
	AbsoluteDeadline simtime.TimePoint
	ArrivalTime     simtime.TimePoint
}

// NewJob constructs a Job for the given task, arriving at `arrival` with the
// given amount of work (wcet is in reference work units, identical to the
// wall-clock duration at speed 1.0).
func NewJob(id JobID, task *Task, arrival simtime.TimePoint, work simtime.Duration) Job {
	return Job{
		ID:               id,
		Task:             task,
		TotalWork:        work,
		RemainingWork:    work,
		AbsoluteDeadline: arrival.Add(task.RelativeDeadline),
		ArrivalTime:      arrival,
	}
}

// ConsumeWork subtracts delta from the remaining work, clamped at zero.
func (j *Job) ConsumeWork(delta simtime.Duration) {
	j.RemainingWork = simtime.ClampNonNegative(j.RemainingWork - delta)
}

// Done reports whether the job has no remaining work (within epsilon).
func (j *Job) Done() bool {
	return j.RemainingWork <= simtime.ZeroEpsilon
}
