package cbs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/halvorsen/schedsim-go/pkg/job"
	"github.com/halvorsen/schedsim-go/pkg/simtime"
)

type ServerTestSuite struct {
	suite.Suite
	task *job.Task
}

func (s *ServerTestSuite) SetupTest() {
	s.task = &job.Task{ID: 1, Period: 10, RelativeDeadline: 10, WCET: 2}
}

func TestServerTestSuite(t *testing.T) { suite.Run(t, new(ServerTestSuite)) }

func (s *ServerTestSuite) TestNewServerRejectsBadBandwidth() {
	assert.Panics(s.T(), func() { NewServer(1, s.task.ID, 0, 10, Queue) })
	assert.Panics(s.T(), func() { NewServer(1, s.task.ID, 5, 0, Queue) })
	assert.Panics(s.T(), func() { NewServer(1, s.task.ID, 11, 10, Queue) })
}

func (s *ServerTestSuite) TestActivateRequiresQueuedJob() {
	srv := NewServer(1, s.task.ID, 2, 10, Queue)
	assert.Panics(s.T(), func() { srv.Activate(0) }, "activating with an empty queue is a programmer error")
}

func (s *ServerTestSuite) TestLifecycleHappyPath() {
	srv := NewServer(1, s.task.ID, 2, 10, Queue)
	j := job.NewJob(0, s.task, 0, 2)
	srv.EnqueueJob(j)
	require.Equal(s.T(), 1, srv.QueueLen())

	srv.Activate(0)
	assert.Equal(s.T(), Ready, srv.State)
	assert.Equal(s.T(), simtime.TimePoint(10), srv.Deadline)
	assert.Equal(s.T(), simtime.Duration(2), srv.RemainingBudget)

	srv.Dispatch()
	assert.Equal(s.T(), Running, srv.State)

	srv.ConsumeBudget(2)
	assert.Equal(s.T(), simtime.Duration(0), srv.RemainingBudget)

	dequeued := srv.DequeueJob()
	assert.Equal(s.T(), job.JobID(1), dequeued.ID)
	srv.CompleteJob()
	assert.Equal(s.T(), Inactive, srv.State)
}

func (s *ServerTestSuite) TestCompleteJobGoesReadyWhenMoreQueued() {
	srv := NewServer(1, s.task.ID, 2, 10, Queue)
	srv.EnqueueJob(job.NewJob(0, s.task, 0, 2))
	srv.Activate(0)
	srv.Dispatch()
	srv.EnqueueJob(job.NewJob(0, s.task, 1, 2))
	srv.DequeueJob()
	srv.CompleteJob()
	assert.Equal(s.T(), Ready, srv.State)
}

func (s *ServerTestSuite) TestExhaustBudgetPostponesDeadlineAndReplenishes() {
	srv := NewServer(1, s.task.ID, 2, 10, Queue)
	srv.EnqueueJob(job.NewJob(0, s.task, 0, 5))
	srv.Activate(0)
	srv.Dispatch()
	srv.ConsumeBudget(2)
	srv.ExhaustBudget()
	assert.Equal(s.T(), Ready, srv.State)
	assert.Equal(s.T(), simtime.TimePoint(20), srv.Deadline)
	assert.Equal(s.T(), simtime.Duration(2), srv.RemainingBudget)
}

func (s *ServerTestSuite) TestNonContendingRoundTrip() {
	srv := NewServer(1, s.task.ID, 2, 10, Queue)
	srv.EnqueueJob(job.NewJob(0, s.task, 0, 1))
	srv.Activate(0)
	srv.Dispatch()
	srv.DequeueJob()
	srv.EnterNonContending()
	assert.Equal(s.T(), NonContending, srv.State)

	srv.ReactivateFromNonContending()
	assert.Equal(s.T(), Ready, srv.State)

	srv2 := NewServer(2, s.task.ID, 2, 10, Queue)
	srv2.EnqueueJob(job.NewJob(0, s.task, 0, 1))
	srv2.Activate(0)
	srv2.Dispatch()
	srv2.DequeueJob()
	srv2.EnterNonContending()
	srv2.ReachDeadline()
	assert.Equal(s.T(), Inactive, srv2.State)
}

func (s *ServerTestSuite) TestOverrunPolicyQueueKeepsBoth() {
	srv := NewServer(1, s.task.ID, 2, 10, Queue)
	srv.EnqueueJob(job.NewJob(0, s.task, 0, 2))
	srv.Activate(0)
	srv.Dispatch()
	srv.EnqueueJob(job.NewJob(0, s.task, 1, 2))
	assert.Equal(s.T(), 2, srv.QueueLen())
}

func (s *ServerTestSuite) TestOverrunPolicySkipDropsNewArrival() {
	srv := NewServer(1, s.task.ID, 2, 10, Skip)
	srv.EnqueueJob(job.NewJob(0, s.task, 0, 2))
	srv.Activate(0)
	srv.Dispatch()
	lastID := srv.LastEnqueuedJobID()
	srv.EnqueueJob(job.NewJob(0, s.task, 1, 2))
	assert.Equal(s.T(), 1, srv.QueueLen())
	assert.Equal(s.T(), lastID, srv.LastEnqueuedJobID(), "a skipped arrival must not consume a job ID")
}

func (s *ServerTestSuite) TestOverrunPolicyAbortDiscardsCurrent() {
	srv := NewServer(1, s.task.ID, 2, 10, Abort)
	srv.EnqueueJob(job.NewJob(0, s.task, 0, 2))
	srv.Activate(0)
	srv.Dispatch()
	srv.EnqueueJob(job.NewJob(0, s.task, 1, 2))
	require.Equal(s.T(), 1, srv.QueueLen())
	assert.Equal(s.T(), job.JobID(2), srv.CurrentJob().ID)
}

func (s *ServerTestSuite) TestCurrentJobPointerSurvivesQueueGrowth() {
	// Regression test: the queue used to hold job.Job by value, so a
	// pointer taken from CurrentJob() could be invalidated by a later
	// append reallocating the backing array.
	srv := NewServer(1, s.task.ID, 2, 10, Queue)
	srv.EnqueueJob(job.NewJob(0, s.task, 0, 2))
	srv.Activate(0)
	srv.Dispatch()
	head := srv.CurrentJob()
	head.ConsumeWork(1)

	for i := 0; i < 8; i++ {
		srv.EnqueueJob(job.NewJob(0, s.task, simtime.TimePoint(i+1), 1))
	}

	assert.Equal(s.T(), simtime.Duration(1), head.RemainingWork, "pointer to dispatched job must remain valid after queue growth")
	assert.Same(s.T(), head, srv.CurrentJob())
}

func (s *ServerTestSuite) TestConsumeAndAddBudget() {
	srv := NewServer(1, s.task.ID, 5, 10, Queue)
	srv.RemainingBudget = 3
	srv.ConsumeBudget(10)
	assert.Equal(s.T(), simtime.Duration(0), srv.RemainingBudget, "budget must clamp at zero")

	srv.AddBudget(2)
	assert.Equal(s.T(), simtime.Duration(2), srv.RemainingBudget)
}

func (s *ServerTestSuite) TestUpdateVirtualTimeUsesUtilization() {
	srv := NewServer(1, s.task.ID, 5, 10, Queue)
	srv.VirtualTime = 0
	srv.UpdateVirtualTime(1)
	assert.InDelta(s.T(), 2.0, float64(srv.VirtualTime), 1e-9, "dt/U with U=0.5 doubles elapsed execution")
}

func (s *ServerTestSuite) TestInvalidTransitionsPanic() {
	srv := NewServer(1, s.task.ID, 2, 10, Queue)
	assert.Panics(s.T(), func() { srv.Dispatch() }, "dispatch requires Ready")
	assert.Panics(s.T(), func() { srv.Preempt() }, "preempt requires Running")
	assert.Panics(s.T(), func() { srv.CompleteJob() }, "complete_job requires Running")
	assert.Panics(s.T(), func() { srv.ExhaustBudget() }, "exhaust_budget requires Running")
	assert.Panics(s.T(), func() { srv.EnterNonContending() }, "enter_non_contending requires Running")
	assert.Panics(s.T(), func() { srv.ReactivateFromNonContending() }, "reactivate requires NonContending")
	assert.Panics(s.T(), func() { srv.ReachDeadline() }, "reach_deadline requires NonContending")
}
