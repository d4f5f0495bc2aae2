package reclaim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/halvorsen/schedsim-go/pkg/cbs"
	"github.com/halvorsen/schedsim-go/pkg/job"
	"github.com/halvorsen/schedsim-go/pkg/simtime"
)

func newServer(id cbs.ServerID, budget, period simtime.Duration) *cbs.Server {
	return cbs.NewServer(id, job.TaskID(id), budget, period, cbs.Queue)
}

type ReclaimTestSuite struct {
	suite.Suite
}

func TestReclaimTestSuite(t *testing.T) { suite.Run(t, new(ReclaimTestSuite)) }

func (s *ReclaimTestSuite) TestNoneAdvancesVirtualTimeByExecOverUtilization() {
	p := NewNone()
	srv := newServer(1, 2, 10) // U = 0.2
	vt := p.ComputeVirtualTime(srv, 0, 1)
	assert.InDelta(s.T(), 5.0, float64(vt), 1e-9)
}

func (s *ReclaimTestSuite) TestNoneTracksActiveUtilizationAcrossLifecycle() {
	p := NewNone()
	srv := newServer(1, 5, 10) // U = 0.5
	assert.Equal(s.T(), 0.0, p.ActiveUtilization())
	p.OnServerStateChange(srv, Activated)
	assert.Equal(s.T(), 0.5, p.ActiveUtilization())
	p.OnServerStateChange(srv, Deactivated)
	assert.Equal(s.T(), 0.0, p.ActiveUtilization())
}

func (s *ReclaimTestSuite) TestGRUBScalesVirtualTimeByActiveBandwidthOverM() {
	p := NewGRUB(2)
	srvA := newServer(1, 5, 10) // U = 0.5
	srvB := newServer(2, 3, 10) // U = 0.3
	p.OnServerStateChange(srvA, Activated)
	p.OnServerStateChange(srvB, Activated)
	// active_bw = 0.8, m = 2 -> scale factor 0.4
	vt := p.ComputeVirtualTime(srvA, 0, 1)
	assert.InDelta(s.T(), 0.4, float64(vt), 1e-9)
}

func (s *ReclaimTestSuite) TestGRUBFallsBackWithZeroProcessors() {
	p := NewGRUB(0)
	srv := newServer(1, 2, 10)
	vt := p.ComputeVirtualTime(srv, 0, 1)
	assert.InDelta(s.T(), 5.0, float64(vt), 1e-9, "degenerate m<=0 falls back to the standard exec/U formula")
}

func (s *ReclaimTestSuite) TestGRUBPermitsNonContendingOnEarlyCompletion() {
	p := NewGRUB(1)
	srv := newServer(1, 5, 10)
	assert.True(s.T(), p.OnEarlyCompletion(srv, 2))
	assert.False(s.T(), p.OnEarlyCompletion(srv, 0))
}

func (s *ReclaimTestSuite) TestNoneNeverEntersNonContending() {
	p := NewNone()
	srv := newServer(1, 5, 10)
	assert.False(s.T(), p.OnEarlyCompletion(srv, 2), "standard CBS deactivates immediately on early completion, never idles")
	assert.False(s.T(), p.OnEarlyCompletion(srv, 0))
}

func (s *ReclaimTestSuite) TestCASHNeverEntersNonContending() {
	p := NewCASH()
	srv := newServer(1, 5, 10)
	srv.Deadline = 10
	assert.False(s.T(), p.OnEarlyCompletion(srv, 2), "CASH donates slack instead of idling")
}

func (s *ReclaimTestSuite) TestCASHDonationUsableByLaterDeadline() {
	p := NewCASH()
	donor := newServer(1, 5, 10)
	donor.Deadline = 10
	p.OnEarlyCompletion(donor, 3)

	requester := newServer(2, 2, 10)
	requester.Deadline = 20 // later than donor's deadline
	extra := p.OnBudgetExhausted(requester)
	assert.Equal(s.T(), simtime.Duration(3), extra)

	// Donation consumed: a second request finds nothing left.
	extra2 := p.OnBudgetExhausted(requester)
	assert.Equal(s.T(), simtime.Duration(0), extra2)
}

func (s *ReclaimTestSuite) TestCASHDonationNotUsableByEarlierDeadline() {
	p := NewCASH()
	donor := newServer(1, 5, 10)
	donor.Deadline = 20
	p.OnEarlyCompletion(donor, 3)

	requester := newServer(2, 2, 10)
	requester.Deadline = 5 // earlier than donor's deadline
	extra := p.OnBudgetExhausted(requester)
	assert.Equal(s.T(), simtime.Duration(0), extra, "a donation may only be drawn by a server whose deadline is no earlier than the donor's")
}

func (s *ReclaimTestSuite) TestCASHPartialDrainKeepsUnusedDonations() {
	p := NewCASH()
	early := newServer(1, 5, 10)
	early.Deadline = 5
	p.OnEarlyCompletion(early, 2)

	late := newServer(2, 5, 10)
	late.Deadline = 30
	p.OnEarlyCompletion(late, 4)

	requester := newServer(3, 2, 10)
	requester.Deadline = 10 // only the early donation qualifies
	extra := p.OnBudgetExhausted(requester)
	assert.Equal(s.T(), simtime.Duration(2), extra)

	requester2 := newServer(4, 2, 10)
	requester2.Deadline = 40
	extra2 := p.OnBudgetExhausted(requester2)
	assert.Equal(s.T(), simtime.Duration(4), extra2, "the later donation survives the first drain and is claimable by a wider deadline")
}
