// Package cbs implements the Constant Bandwidth Server state machine of
// spec.md 3/4.4, grounded directly on
// original_source/schedsim/algo/include/schedsim/algo/cbs_server.hpp and
// src/cbs_server.cpp.
package cbs

import (
	"github.com/halvorsen/schedsim-go/pkg/job"
	"github.com/halvorsen/schedsim-go/pkg/simerrors"
	"github.com/halvorsen/schedsim-go/pkg/simtime"
)

// State is a CbsServer's position in the four-state CBS automaton.
type State int

const (
	Inactive State = iota
	Ready
	Running
	NonContending
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case NonContending:
		return "NonContending"
	default:
		return "Unknown"
	}
}

// OverrunPolicy governs what happens when a job arrives for a Running
// server that already has one enqueued.
type OverrunPolicy int

const (
	// Queue enqueues the new job behind the current one (default).
	Queue OverrunPolicy = iota
	// Skip silently drops the new job; it never receives a job counter slot.
	Skip
	// Abort discards the current head job and enqueues the new one.
	Abort
)

// ServerID identifies a server, used for deterministic EDF tie-breaking.
type ServerID uint64

// Server is a bandwidth reservation for one task: a FIFO job queue plus the
// CBS deadline/virtual-time/budget bookkeeping.
type Server struct {
	ID            ServerID
	Budget        simtime.Duration // Q
	Period        simtime.Duration // T
	Utilization   float64          // Q / T
	OverrunPolicy OverrunPolicy

	State           State
	Deadline        simtime.TimePoint
	VirtualTime     simtime.TimePoint
	RemainingBudget simtime.Duration

	jobCounter        uint64
	lastEnqueuedJobID uint64
	// queue holds pointers so a Platform processor dispatched the head job
	// keeps a stable reference across later appends (OverrunPolicy Queue)
	// reallocating the backing array.
	queue []*job.Job

	TaskID job.TaskID
}

// NewServer constructs a CBS server for the given bandwidth reservation.
// Panics (a configuration bug, caught at admission time by callers) if
// 0 < Q <= T does not hold.
func NewServer(id ServerID, taskID job.TaskID, budget, period simtime.Duration, policy OverrunPolicy) *Server {
	if budget <= 0 || period <= 0 || budget > period {
		panic("cbs: budget and period must satisfy 0 < Q <= T")
	}
	return &Server{
		ID:              id,
		TaskID:          taskID,
		Budget:          budget,
		Period:          period,
		Utilization:     float64(budget) / float64(period),
		OverrunPolicy:   policy,
		State:           Inactive,
		RemainingBudget: budget,
	}
}

// HasPendingJobs reports whether the FIFO queue is non-empty.
func (s *Server) HasPendingJobs() bool { return len(s.queue) > 0 }

// QueueLen returns the number of jobs waiting (including the one at the
// head, whether or not it has been dispatched to a processor).
func (s *Server) QueueLen() int { return len(s.queue) }

// CurrentJob returns a pointer to the job at the head of the queue, or nil.
func (s *Server) CurrentJob() *job.Job {
	if len(s.queue) == 0 {
		return nil
	}
	return s.queue[0]
}

// LastEnqueuedJobID returns the ID most recently assigned to an enqueued
// job (0 if none has ever been enqueued).
func (s *Server) LastEnqueuedJobID() uint64 { return s.lastEnqueuedJobID }

// EnqueueJob appends j to the FIFO queue, applying the server's
// OverrunPolicy when a job is already active.
func (s *Server) EnqueueJob(j job.Job) {
	if s.State == Running && len(s.queue) > 0 {
		switch s.OverrunPolicy {
		case Queue:
			// fall through to append
		case Skip:
			return
		case Abort:
			s.queue = s.queue[1:]
		}
	}
	s.jobCounter++
	j.ID = job.JobID(s.jobCounter)
	s.queue = append(s.queue, &j)
	s.lastEnqueuedJobID = s.jobCounter
}

// DequeueJob removes and returns the job at the head of the queue. Panics
// if the queue is empty — a programmer error, never reachable through
// normal EDF/CBS control flow.
func (s *Server) DequeueJob() job.Job {
	if len(s.queue) == 0 {
		panic("cbs: dequeue from empty queue")
	}
	j := s.queue[0]
	s.queue = s.queue[1:]
	return *j
}

// AbortQueuedJob removes the head job without executing it, used by the
// queued-deadline-miss handler.
func (s *Server) AbortQueuedJob() {
	if len(s.queue) == 0 {
		return
	}
	s.queue = s.queue[1:]
	if len(s.queue) == 0 {
		s.State = Inactive
	}
}

// Activate transitions Inactive -> Ready, initializing the deadline and
// virtual time from the current simulation time.
func (s *Server) Activate(now simtime.TimePoint) {
	if s.State != Inactive {
		simerrors.Panic("CbsServer", s.State.String(), "activate")
	}
	if len(s.queue) == 0 {
		simerrors.Panic("CbsServer", s.State.String(), "activate: empty queue")
	}
	s.VirtualTime = now
	s.Deadline = now.Add(s.Period)
	s.RemainingBudget = s.Budget
	s.State = Ready
}

// Dispatch transitions Ready -> Running.
func (s *Server) Dispatch() {
	if s.State != Ready {
		simerrors.Panic("CbsServer", s.State.String(), "dispatch")
	}
	s.State = Running
}

// Preempt transitions Running -> Ready.
func (s *Server) Preempt() {
	if s.State != Running {
		simerrors.Panic("CbsServer", s.State.String(), "preempt")
	}
	s.State = Ready
}

// CompleteJob transitions Running -> Ready (if more jobs are queued) or
// Running -> Inactive (if the queue is now empty). The caller must have
// already dequeued the finished job.
func (s *Server) CompleteJob() {
	if s.State != Running {
		simerrors.Panic("CbsServer", s.State.String(), "complete_job")
	}
	if len(s.queue) > 0 {
		s.State = Ready
	} else {
		s.State = Inactive
	}
}

// ExhaustBudget postpones the deadline, replenishes the budget, and
// transitions Running -> Ready.
func (s *Server) ExhaustBudget() {
	if s.State != Running {
		simerrors.Panic("CbsServer", s.State.String(), "exhaust_budget")
	}
	s.PostponeDeadline()
	s.State = Ready
}

// ResumeWithDonatedBudget transitions Running -> Ready on a budget
// exhaustion covered entirely by reclaimed slack: unlike ExhaustBudget, the
// deadline is not postponed, since the server's own reservation wasn't
// actually overrun against its period.
func (s *Server) ResumeWithDonatedBudget(extra simtime.Duration) {
	if s.State != Running {
		simerrors.Panic("CbsServer", s.State.String(), "resume_with_donated_budget")
	}
	s.RemainingBudget = extra
	s.State = Ready
}

// EnterNonContending transitions Running -> NonContending: a GRUB-style
// early completion that keeps the server's bandwidth reserved until its
// deadline expires.
func (s *Server) EnterNonContending() {
	if s.State != Running {
		simerrors.Panic("CbsServer", s.State.String(), "enter_non_contending")
	}
	s.State = NonContending
}

// ReactivateFromNonContending transitions NonContending -> Ready: a new job
// arrived while the server awaited its deadline.
func (s *Server) ReactivateFromNonContending() {
	if s.State != NonContending {
		simerrors.Panic("CbsServer", s.State.String(), "reactivate_from_non_contending")
	}
	s.State = Ready
}

// ReachDeadline transitions NonContending -> Inactive: the server's
// deadline expired while it awaited a new job.
func (s *Server) ReachDeadline() {
	if s.State != NonContending {
		simerrors.Panic("CbsServer", s.State.String(), "reach_deadline")
	}
	s.State = Inactive
}

// UpdateVirtualTime advances virtual time by execution_time / U, the
// standard (non-reclaiming) CBS formula. Reclamation policies override this
// with their own arithmetic by calling SetVirtualTime directly.
func (s *Server) UpdateVirtualTime(executionTime simtime.Duration) {
	s.VirtualTime = s.VirtualTime.Add(executionTime.Div(s.Utilization))
}

// SetVirtualTime is used by reclamation policies (GRUB, CASH) that compute
// virtual time externally.
func (s *Server) SetVirtualTime(vt simtime.TimePoint) { s.VirtualTime = vt }

// PostponeDeadline advances the deadline by one period and resets the
// remaining budget to the full reservation.
func (s *Server) PostponeDeadline() {
	s.Deadline = s.Deadline.Add(s.Period)
	s.RemainingBudget = s.Budget
}

// ConsumeBudget subtracts amount from the remaining budget, clamped at
// zero.
func (s *Server) ConsumeBudget(amount simtime.Duration) {
	s.RemainingBudget = simtime.ClampNonNegative(s.RemainingBudget - amount)
}

// AddBudget tops up the remaining budget. The EDF scheduler's CASH path
// uses ResumeWithDonatedBudget instead.
func (s *Server) AddBudget(amount simtime.Duration) {
	s.RemainingBudget += amount
}
