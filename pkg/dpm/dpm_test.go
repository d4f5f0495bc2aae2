package dpm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/halvorsen/schedsim-go/pkg/engine"
	"github.com/halvorsen/schedsim-go/pkg/platform"
	"github.com/halvorsen/schedsim-go/pkg/trace"
)

type stubScheduler struct {
	plat *platform.Platform
}

func (s *stubScheduler) Platform() *platform.Platform      { return s.plat }
func (s *stubScheduler) Processors() []platform.ProcessorID { return s.plat.ProcessorIDs() }

func build(t *testing.T, initialFreq, freqMax platform.Frequency) *stubScheduler {
	eng := engine.New(&trace.MemorySink{}, false)
	b := platform.NewBuilder()
	pt := b.AddProcessorType("core", 1.0, 0)
	b.AddClockDomain(platform.ClockDomain{ID: 1, FreqMin: 500, FreqMax: freqMax, Current: initialFreq})
	b.AddPowerDomain(platform.PowerDomain{ID: 1, CStates: map[int]platform.CState{2: {Level: 2, WakeLatency: 0, SleepPower: 5}}})
	b.AddProcessor(pt, 1, 1)
	plat, err := b.Finalize(eng)
	require.NoError(t, err)
	return &stubScheduler{plat: plat}
}

type DPMTestSuite struct {
	suite.Suite
}

func TestDPMTestSuite(t *testing.T) { suite.Run(t, new(DPMTestSuite)) }

func (s *DPMTestSuite) TestSleepsIdleProcessorBelowPeakFrequency() {
	sched := build(s.T(), 1000, 2000)
	d := NewBasicDpm(2)
	d.OnProcessorIdle(sched, 1, 0)
	assert.Equal(s.T(), platform.Sleep, sched.plat.State(1))
	assert.Equal(s.T(), 2, sched.plat.CState(1))
}

func (s *DPMTestSuite) TestDoesNotSleepAtPeakFrequency() {
	sched := build(s.T(), 2000, 2000)
	d := NewBasicDpm(2)
	d.OnProcessorIdle(sched, 1, 0)
	assert.Equal(s.T(), platform.Idle, sched.plat.State(1), "at peak frequency there is no power budget argument for sleeping")
}

func (s *DPMTestSuite) TestIgnoresNonIdleProcessor() {
	sched := build(s.T(), 1000, 2000)
	d := NewBasicDpm(2)
	// RequestCState already puts the processor in Sleep; a second call
	// to OnProcessorIdle must find it not Idle and do nothing.
	sched.plat.RequestCState(1, 2, 0)
	require.Equal(s.T(), platform.Sleep, sched.plat.State(1))
	d.OnProcessorIdle(sched, 1, 0)
	assert.Equal(s.T(), platform.Sleep, sched.plat.State(1))
}

func (s *DPMTestSuite) TestOnProcessorNeededWakesEverySleepingProcessor() {
	sched := build(s.T(), 1000, 2000)
	d := NewBasicDpm(2)
	d.OnProcessorIdle(sched, 1, 0)
	require.Equal(s.T(), platform.Sleep, sched.plat.State(1))

	d.OnProcessorNeeded(sched, 0)
	assert.Equal(s.T(), platform.Idle, sched.plat.State(1), "waking is instantaneous when wake latency resolves at t=now inline")
}
