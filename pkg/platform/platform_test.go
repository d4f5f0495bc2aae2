package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/halvorsen/schedsim-go/pkg/engine"
	"github.com/halvorsen/schedsim-go/pkg/job"
	"github.com/halvorsen/schedsim-go/pkg/simtime"
	"github.com/halvorsen/schedsim-go/pkg/trace"
)

type PlatformTestSuite struct {
	suite.Suite
}

func TestPlatformTestSuite(t *testing.T) { suite.Run(t, new(PlatformTestSuite)) }

func (s *PlatformTestSuite) buildSingleProcessor(csDelay simtime.Duration) (*engine.Engine, *Platform, ProcessorID) {
	eng := engine.New(&trace.MemorySink{}, false)
	b := NewBuilder()
	pt := b.AddProcessorType("big", 1.0, csDelay)
	b.AddClockDomain(ClockDomain{ID: 1, FreqMin: 1000, FreqMax: 2000, FreqEff: 2000, Current: 2000})
	b.AddPowerDomain(PowerDomain{ID: 1, CStates: map[int]CState{1: {Level: 1, WakeLatency: 0.001, SleepPower: 10}}})
	id := b.AddProcessor(pt, 1, 1)
	plat, err := b.Finalize(eng)
	require.NoError(s.T(), err)
	return eng, plat, id
}

func (s *PlatformTestSuite) TestFinalizeRejectsEmptyCategories() {
	eng := engine.New(&trace.MemorySink{}, false)
	_, err := NewBuilder().Finalize(eng)
	assert.Error(s.T(), err)
}

func (s *PlatformTestSuite) TestFinalizeRejectsDanglingProcessorReference() {
	eng := engine.New(&trace.MemorySink{}, false)
	b := NewBuilder()
	b.AddClockDomain(ClockDomain{ID: 1, FreqMin: 1000, FreqMax: 1000, Current: 1000})
	b.AddPowerDomain(PowerDomain{ID: 1})
	b.AddProcessorType("t", 1.0, 0)
	b.AddProcessor(99, 1, 1) // unknown type ID
	_, err := b.Finalize(eng)
	assert.Error(s.T(), err)
}

func (s *PlatformTestSuite) TestAssignRunsToCompletionWithoutContextSwitch() {
	eng, plat, pid := s.buildSingleProcessor(0)
	task := &job.Task{ID: 1, Period: 10, RelativeDeadline: 10, WCET: 2}
	j := job.NewJob(1, task, 0, 2)

	plat.Assign(pid, &j, 0)
	assert.Equal(s.T(), Running, plat.State(pid))

	eng.Run(nil)
	assert.Equal(s.T(), 2.0, float64(eng.Time()), "engine should stop exactly at the job's completion instant")
}

func (s *PlatformTestSuite) TestAssignGoesThroughContextSwitchingWhenDelayed() {
	eng, plat, pid := s.buildSingleProcessor(0.5)
	task := &job.Task{ID: 1, Period: 10, RelativeDeadline: 10, WCET: 2}
	j := job.NewJob(1, task, 0, 2)

	plat.Assign(pid, &j, 0)
	assert.Equal(s.T(), ContextSwitching, plat.State(pid))

	eng.Run(nil)
	assert.Equal(s.T(), Idle, plat.State(pid))
	assert.Equal(s.T(), 2.5, float64(eng.Time()))
}

func (s *PlatformTestSuite) TestClearFromRunningAccountsPartialWork() {
	eng, plat, pid := s.buildSingleProcessor(0)
	task := &job.Task{ID: 1, Period: 10, RelativeDeadline: 10, WCET: 2}
	j := job.NewJob(1, task, 0, 2)
	plat.Assign(pid, &j, 0)

	// advance 1s worth of simulated time manually, then clear
	eng.AddTimer(1, engine.PriorityTimerDefault, func(t simtime.TimePoint) {
		plat.Clear(pid, t)
	})
	eng.Run(nil)

	assert.Equal(s.T(), Idle, plat.State(pid))
	assert.InDelta(s.T(), 1.0, float64(j.RemainingWork), 1e-9)
}

func (s *PlatformTestSuite) TestRequestCStateAndWake() {
	eng, plat, pid := s.buildSingleProcessor(0)
	plat.RequestCState(pid, 1, 0)
	assert.Equal(s.T(), Sleep, plat.State(pid))
	assert.Equal(s.T(), 1, plat.CState(pid))

	woke := false
	plat.RegisterISR(pid, ISR{OnAvailable: func(ProcessorID, simtime.TimePoint) { woke = true }})
	plat.WakeProcessor(pid, 0)
	eng.Run(nil)

	assert.True(s.T(), woke)
	assert.Equal(s.T(), Idle, plat.State(pid))
	assert.Equal(s.T(), 0, plat.CState(pid))
}

func (s *PlatformTestSuite) TestSetFrequencyNoOpAtSameFrequency() {
	eng, plat, pid := s.buildSingleProcessor(0)
	_ = pid
	cd := plat.ClockDomain(1)
	before := cd.Current
	sink := &trace.MemorySink{}
	eng.Sink = sink
	plat.SetFrequency(1, before, 0)
	assert.Empty(s.T(), sink.ByType(trace.FrequencyUpdate), "no-op frequency request must not emit a trace")
}

func (s *PlatformTestSuite) TestSetFrequencyRoundsUpToMode() {
	eng := engine.New(&trace.MemorySink{}, false)
	b := NewBuilder()
	pt := b.AddProcessorType("t", 1.0, 0)
	b.AddClockDomain(ClockDomain{ID: 1, FreqMin: 1000, FreqMax: 2000, Modes: []Frequency{1000, 1500, 2000}, Current: 1000})
	b.AddPowerDomain(PowerDomain{ID: 1})
	b.AddProcessor(pt, 1, 1)
	plat, err := b.Finalize(eng)
	require.NoError(s.T(), err)

	plat.SetFrequency(1, 1200, 0)
	assert.Equal(s.T(), Frequency(1500), plat.ClockDomain(1).Current)
}

func (s *PlatformTestSuite) TestSpeedScalesWithFrequencyAndPerf() {
	eng := engine.New(&trace.MemorySink{}, false)
	b := NewBuilder()
	fast := b.AddProcessorType("fast", 2.0, 0)
	slow := b.AddProcessorType("slow", 1.0, 0)
	b.AddClockDomain(ClockDomain{ID: 1, FreqMin: 1000, FreqMax: 2000, Current: 2000})
	b.AddPowerDomain(PowerDomain{ID: 1})
	fastID := b.AddProcessor(fast, 1, 1)
	slowID := b.AddProcessor(slow, 1, 1)
	plat, err := b.Finalize(eng)
	require.NoError(s.T(), err)

	assert.InDelta(s.T(), 1.0, plat.Speed(fastID), 1e-9, "reference perf is the max score, so the fastest type hits speed 1.0")
	assert.InDelta(s.T(), 0.5, plat.Speed(slowID), 1e-9)
}
