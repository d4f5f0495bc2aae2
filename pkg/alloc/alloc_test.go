package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvorsen/schedsim-go/pkg/simtime"
)

// fakeScheduler is a minimal Scheduler double driven entirely by fields, to
// exercise SelectTarget's fit strategies without constructing a real
// platform/engine.
type fakeScheduler struct {
	name          string
	utilization   float64
	admits        bool
	reschedCalled int
}

func (f *fakeScheduler) RequestResched()   { f.reschedCalled++ }
func (f *fakeScheduler) Utilization() float64 { return f.utilization }
func (f *fakeScheduler) CanAdmit(budget, period simtime.Duration) bool { return f.admits }

func TestIdentityGrantsEveryRequest(t *testing.T) {
	s := &fakeScheduler{admits: true}
	Identity{}.CallResched(s)
	assert.Equal(t, 1, s.reschedCalled)
}

func TestMultiClusterCallReschedAlwaysGrants(t *testing.T) {
	s := &fakeScheduler{admits: true}
	m := NewMultiCluster([]Scheduler{s}, FirstFit)
	m.CallResched(s)
	assert.Equal(t, 1, s.reschedCalled)
}

func TestSelectTargetFirstFitPicksFirstAdmitting(t *testing.T) {
	a := &fakeScheduler{name: "a", admits: false}
	b := &fakeScheduler{name: "b", admits: true}
	c := &fakeScheduler{name: "c", admits: true}
	m := NewMultiCluster([]Scheduler{a, b, c}, FirstFit)

	target, err := m.SelectTarget(2, 10)
	require.NoError(t, err)
	assert.Same(t, b, target)
}

func TestSelectTargetWorstFitPicksLowestUtilization(t *testing.T) {
	a := &fakeScheduler{name: "a", admits: true, utilization: 0.8}
	b := &fakeScheduler{name: "b", admits: true, utilization: 0.1}
	c := &fakeScheduler{name: "c", admits: true, utilization: 0.5}
	m := NewMultiCluster([]Scheduler{a, b, c}, WorstFit)

	target, err := m.SelectTarget(2, 10)
	require.NoError(t, err)
	assert.Same(t, b, target, "WorstFit spreads load onto the least-utilized admissible candidate")
}

func TestSelectTargetCapacityAdaptivePacksHighestUtilization(t *testing.T) {
	a := &fakeScheduler{name: "a", admits: true, utilization: 0.8}
	b := &fakeScheduler{name: "b", admits: true, utilization: 0.1}
	c := &fakeScheduler{name: "c", admits: true, utilization: 0.5}
	m := NewMultiCluster([]Scheduler{a, b, c}, CapacityAdaptive)

	target, err := m.SelectTarget(2, 10)
	require.NoError(t, err)
	assert.Same(t, a, target, "CapacityAdaptive packs into the admissible candidate with the highest current utilization")
}

func TestSelectTargetReturnsErrNoFitWhenNoneAdmit(t *testing.T) {
	a := &fakeScheduler{admits: false}
	b := &fakeScheduler{admits: false}
	m := NewMultiCluster([]Scheduler{a, b}, FirstFit)

	_, err := m.SelectTarget(5, 10)
	require.Error(t, err)
	var noFit ErrNoFit
	require.ErrorAs(t, err, &noFit)
	assert.Equal(t, simtime.Duration(5), noFit.Budget)
	assert.Equal(t, simtime.Duration(10), noFit.Period)
}

func TestSelectTargetBreaksTiesByPoolOrder(t *testing.T) {
	a := &fakeScheduler{name: "a", admits: true, utilization: 0.3}
	b := &fakeScheduler{name: "b", admits: true, utilization: 0.3}
	m := NewMultiCluster([]Scheduler{a, b}, WorstFit)

	target, err := m.SelectTarget(1, 10)
	require.NoError(t, err)
	assert.Same(t, a, target, "a stable sort must keep the earlier pool member on a utilization tie")
}
