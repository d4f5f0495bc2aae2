// Package dvfs implements the three frequency/core-scaling policies of
// spec.md 4.7 (PowerAware, FFA, CSF) plus their periodic "timer variant"
// flavors. Like pkg/reclaim, original_source's dvfs_policy.hpp family is
// only forward-declared from edf_scheduler.{hpp,cpp} and
// dvfs_integration_test.cpp/csf_policy_test.cpp in the retrieved tree —
// the formulas below are ported from spec.md 4.7 directly.
package dvfs

import (
	"math"

	"github.com/halvorsen/schedsim-go/pkg/platform"
	"github.com/halvorsen/schedsim-go/pkg/simtime"
)

// SchedulerView is the slice of an EDF scheduler a DVFS policy needs:
// utilization figures and the ability to schedule its own periodic
// recompute timers. Defined here (not in pkg/edf) so dvfs has no
// dependency on edf, and edf.Scheduler simply satisfies this interface.
type SchedulerView interface {
	ActiveUtilization() float64
	MaxServerUtilization() float64
	Platform() *platform.Platform
	ProcessorsInDomain(domain platform.ClockDomainID) []platform.ProcessorID
	AddTimer(at simtime.TimePoint, cb func(simtime.TimePoint))
}

// Policy is a pluggable DVFS strategy.
type Policy interface {
	OnUtilizationChanged(sched SchedulerView, domain platform.ClockDomainID, now simtime.TimePoint)
	OnProcessorActive(sched SchedulerView, proc platform.ProcessorID, now simtime.TimePoint)
	OnProcessorIdle(sched SchedulerView, proc platform.ProcessorID, now simtime.TimePoint)
}

// cooldown gates frequency changes per clock domain: a request less than
// `window` after the domain's last change is dropped.
type cooldown struct {
	window simtime.Duration
	last   map[platform.ClockDomainID]simtime.TimePoint
}

func newCooldown(window simtime.Duration) cooldown {
	return cooldown{window: window, last: make(map[platform.ClockDomainID]simtime.TimePoint)}
}

func (c *cooldown) allow(domain platform.ClockDomainID, now simtime.TimePoint) bool {
	last, ok := c.last[domain]
	if ok && now.Sub(last) < c.window {
		return false
	}
	return true
}

func (c *cooldown) record(domain platform.ClockDomainID, now simtime.TimePoint) {
	c.last[domain] = now
}

// sleepIdleBeyond puts any Idle processor beyond the first `activeCount`
// (in platform processor-ID order) of the domain's processor list to
// sleep at C-state level 1 — the lightest documented sleep level — and
// wakes any processor within that budget that is currently asleep.
func sleepIdleBeyond(sched SchedulerView, domain platform.ClockDomainID, activeCount int, now simtime.TimePoint) {
	procs := sched.ProcessorsInDomain(domain)
	p := sched.Platform()
	for i, id := range procs {
		if i < activeCount {
			if p.State(id) == platform.Sleep {
				p.WakeProcessor(id, now)
			}
			continue
		}
		if p.State(id) == platform.Idle {
			p.RequestCState(id, 1, now)
		}
	}
}

// PowerAware chooses the lowest frequency mode satisfying
// sum(U_i) * (f_max/f_min) <= m, i.e. f_min = f_max * U_active / m.
type PowerAware struct {
	cd cooldown
}

func NewPowerAware(window simtime.Duration) *PowerAware {
	return &PowerAware{cd: newCooldown(window)}
}

func (p *PowerAware) OnUtilizationChanged(sched SchedulerView, domain platform.ClockDomainID, now simtime.TimePoint) {
	if !p.cd.allow(domain, now) {
		return
	}
	cd := sched.Platform().ClockDomain(domain)
	if cd == nil || cd.Locked {
		return
	}
	m := float64(len(sched.ProcessorsInDomain(domain)))
	if m <= 0 {
		return
	}
	uActive := sched.ActiveUtilization()
	fMin := platform.Frequency(float64(cd.FreqMax) * uActive / m)
	if fMin < cd.FreqMin {
		fMin = cd.FreqMin
	}
	sched.Platform().SetFrequency(domain, fMin, now)
	p.cd.record(domain, now)
}

func (p *PowerAware) OnProcessorActive(sched SchedulerView, proc platform.ProcessorID, now simtime.TimePoint) {
}

func (p *PowerAware) OnProcessorIdle(sched SchedulerView, proc platform.ProcessorID, now simtime.TimePoint) {
}

// FFA (Feedback-based Frequency Adaptation) trades idle cores for
// frequency headroom: f_min = f_max * (U_active + (m-1)*U_max) / m. If
// that falls below the domain's effective frequency, it instead pins the
// frequency at freq_eff and shrinks the active core count to
// ceil(m*f_min/freq_eff), sleeping the remainder.
type FFA struct {
	cd     cooldown
	timer  simtime.Duration // 0 disables the periodic recompute variant
}

func NewFFA(window simtime.Duration) *FFA { return &FFA{cd: newCooldown(window)} }

// NewFFATimer builds the periodic-recompute variant: in addition to
// reacting to utilization changes, it recomputes every `period`.
func NewFFATimer(window, period simtime.Duration) *FFA {
	return &FFA{cd: newCooldown(window), timer: period}
}

func (p *FFA) OnUtilizationChanged(sched SchedulerView, domain platform.ClockDomainID, now simtime.TimePoint) {
	p.recompute(sched, domain, now)
	p.armTimer(sched, domain, now)
}

func (p *FFA) armTimer(sched SchedulerView, domain platform.ClockDomainID, now simtime.TimePoint) {
	if p.timer <= 0 {
		return
	}
	sched.AddTimer(now.Add(p.timer), func(t simtime.TimePoint) {
		p.recompute(sched, domain, t)
		p.armTimer(sched, domain, t)
	})
}

func (p *FFA) recompute(sched SchedulerView, domain platform.ClockDomainID, now simtime.TimePoint) {
	if !p.cd.allow(domain, now) {
		return
	}
	cd := sched.Platform().ClockDomain(domain)
	if cd == nil || cd.Locked {
		return
	}
	m := len(sched.ProcessorsInDomain(domain))
	if m <= 0 {
		return
	}
	uActive := sched.ActiveUtilization()
	uMax := sched.MaxServerUtilization()
	fMin := platform.Frequency(float64(cd.FreqMax) * (uActive + float64(m-1)*uMax) / float64(m))

	if fMin < cd.FreqEff {
		active := int(math.Ceil(float64(m) * float64(fMin) / float64(cd.FreqEff)))
		if active < 1 {
			active = 1
		}
		if active > m {
			active = m
		}
		sched.Platform().SetFrequency(domain, cd.FreqEff, now)
		sleepIdleBeyond(sched, domain, active, now)
	} else {
		rounded := cd.RoundUpToMode(fMin)
		sched.Platform().SetFrequency(domain, rounded, now)
		sleepIdleBeyond(sched, domain, m, now)
	}
	p.cd.record(domain, now)
}

func (p *FFA) OnProcessorActive(sched SchedulerView, proc platform.ProcessorID, now simtime.TimePoint) {
}

func (p *FFA) OnProcessorIdle(sched SchedulerView, proc platform.ProcessorID, now simtime.TimePoint) {
}

// CSF (Cluster Sleep Frequency) goes further than FFA: it first computes
// the minimum number of active cores m_min = ceil((U_active - U_max) /
// (1 - U_max)), clamped to [1, m] (m_min = m if U_max >= 1), then applies
// FFA's frequency formula using m_min instead of m.
type CSF struct {
	cd    cooldown
	timer simtime.Duration
}

func NewCSF(window simtime.Duration) *CSF { return &CSF{cd: newCooldown(window)} }

func NewCSFTimer(window, period simtime.Duration) *CSF {
	return &CSF{cd: newCooldown(window), timer: period}
}

func (p *CSF) OnUtilizationChanged(sched SchedulerView, domain platform.ClockDomainID, now simtime.TimePoint) {
	p.recompute(sched, domain, now)
	p.armTimer(sched, domain, now)
}

func (p *CSF) armTimer(sched SchedulerView, domain platform.ClockDomainID, now simtime.TimePoint) {
	if p.timer <= 0 {
		return
	}
	sched.AddTimer(now.Add(p.timer), func(t simtime.TimePoint) {
		p.recompute(sched, domain, t)
		p.armTimer(sched, domain, t)
	})
}

func (p *CSF) recompute(sched SchedulerView, domain platform.ClockDomainID, now simtime.TimePoint) {
	if !p.cd.allow(domain, now) {
		return
	}
	cd := sched.Platform().ClockDomain(domain)
	if cd == nil || cd.Locked {
		return
	}
	m := len(sched.ProcessorsInDomain(domain))
	if m <= 0 {
		return
	}
	uActive := sched.ActiveUtilization()
	uMax := sched.MaxServerUtilization()

	mMin := m
	if uMax < 1 {
		mMin = int(math.Ceil((uActive - uMax) / (1 - uMax)))
		if mMin < 1 {
			mMin = 1
		}
		if mMin > m {
			mMin = m
		}
	}

	fMin := platform.Frequency(float64(cd.FreqMax) * (uActive + float64(mMin-1)*uMax) / float64(mMin))

	if fMin < cd.FreqEff {
		active := int(math.Ceil(float64(mMin) * float64(fMin) / float64(cd.FreqEff)))
		if active < 1 {
			active = 1
		}
		if active > m {
			active = m
		}
		sched.Platform().SetFrequency(domain, cd.FreqEff, now)
		sleepIdleBeyond(sched, domain, active, now)
	} else {
		rounded := cd.RoundUpToMode(fMin)
		sched.Platform().SetFrequency(domain, rounded, now)
		sleepIdleBeyond(sched, domain, mMin, now)
	}
	p.cd.record(domain, now)
}

func (p *CSF) OnProcessorActive(sched SchedulerView, proc platform.ProcessorID, now simtime.TimePoint) {
}

func (p *CSF) OnProcessorIdle(sched SchedulerView, proc platform.ProcessorID, now simtime.TimePoint) {
}
