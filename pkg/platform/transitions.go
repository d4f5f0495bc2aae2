package platform

import (
	"github.com/halvorsen/schedsim-go/pkg/engine"
	"github.com/halvorsen/schedsim-go/pkg/job"
	"github.com/halvorsen/schedsim-go/pkg/simerrors"
	"github.com/halvorsen/schedsim-go/pkg/simtime"
	"github.com/halvorsen/schedsim-go/pkg/trace"
)

// Assign transitions a processor into execution of j. Permitted from Idle
// (directly to Running, or via ContextSwitching when the processor type has
// a non-zero context-switch delay) or from Sleep (wakes first, then
// recursively assigns once Idle). Any other source state is a programmer
// error.
func (p *Platform) Assign(id ProcessorID, j *job.Job, now simtime.TimePoint) {
	proc := p.mustProc(id)
	switch proc.state {
	case Sleep:
		proc.pendingJob = j
		p.wake(proc, now, func(t simtime.TimePoint) {
			pending := proc.pendingJob
			proc.pendingJob = nil
			p.Assign(id, pending, t)
		})
	case Idle:
		proc.currentJob = j
		pt := p.types[proc.typeID]
		if pt.ContextSwitchDelay > 0 {
			proc.state = ContextSwitching
			proc.hasTransitionTimer = true
			proc.transitionTimer = p.eng.AddTimer(now.Add(pt.ContextSwitchDelay), engine.PriorityTimerDefault, func(t simtime.TimePoint) {
				proc.hasTransitionTimer = false
				proc.state = Running
				proc.lastUpdate = t
				p.scheduleCompletion(id, t)
				p.scheduleDeadline(id, t)
			})
		} else {
			proc.state = Running
			proc.lastUpdate = now
			p.scheduleCompletion(id, now)
			p.scheduleDeadline(id, now)
		}
	default:
		simerrors.Panic("Processor", proc.state.String(), "assign")
	}
}

// Clear releases whatever job a processor is executing. Permitted from
// Running (cancels timers, accounts consumed work, -> Idle), from
// ContextSwitching (cancels the pending transition, -> Idle, no work was
// consumed since execution never began) or from Changing (deferred: sets
// pending_clear, acted on when the DVFS transition ends). Illegal from Idle
// or Sleep.
func (p *Platform) Clear(id ProcessorID, now simtime.TimePoint) {
	proc := p.mustProc(id)
	switch proc.state {
	case Running:
		p.accountElapsed(proc, now)
		p.cancelTimer(&proc.completionTimer, &proc.hasCompletionTimer)
		p.cancelTimer(&proc.deadlineTimer, &proc.hasDeadlineTimer)
		proc.state = Idle
		proc.currentJob = nil
	case ContextSwitching:
		p.cancelTimer(&proc.transitionTimer, &proc.hasTransitionTimer)
		p.cancelTimer(&proc.deadlineTimer, &proc.hasDeadlineTimer)
		proc.state = Idle
		proc.currentJob = nil
	case Changing:
		proc.pendingClear = true
	default:
		simerrors.Panic("Processor", proc.state.String(), "clear")
	}
}

// RequestCState transitions an Idle processor into the given sleep level,
// or updates the level of one already in Sleep. Forbidden from any active
// state.
func (p *Platform) RequestCState(id ProcessorID, level int, now simtime.TimePoint) {
	proc := p.mustProc(id)
	switch proc.state {
	case Idle:
		if level == 0 {
			proc.cstate = 0
			return
		}
		pd := p.powerDomains[proc.powerDomainID]
		cs, ok := pd.byLevel(level)
		if !ok {
			simerrors.Panic("Processor", proc.state.String(), "request_cstate: unknown level")
		}
		proc.state = Sleep
		proc.cstate = level
		p.eng.Energy.Notify(engine.ProcessorKey(id), now, cs.SleepPower)
		p.eng.Trace(trace.Record{Time: now, Type: trace.ProcSleep, Fields: map[string]any{"processor": int(id), "level": level}})
	case Sleep:
		pd := p.powerDomains[proc.powerDomainID]
		cs, ok := pd.byLevel(level)
		if !ok {
			simerrors.Panic("Processor", proc.state.String(), "request_cstate: unknown level")
		}
		proc.cstate = level
		p.eng.Energy.Notify(engine.ProcessorKey(id), now, cs.SleepPower)
	default:
		simerrors.Panic("Processor", proc.state.String(), "request_cstate")
	}
}

// WakeProcessor proactively wakes a sleeping processor, e.g. in response to
// DPM's on_processor_needed, invoking its OnAvailable ISR once Idle. A no-op
// if the processor is not currently asleep.
func (p *Platform) WakeProcessor(id ProcessorID, now simtime.TimePoint) {
	proc := p.mustProc(id)
	if proc.state != Sleep {
		return
	}
	p.wake(proc, now, func(t simtime.TimePoint) {
		if proc.isr.OnAvailable != nil {
			proc.isr.OnAvailable(id, t)
		}
	})
}

func (p *Platform) wake(proc *processor, now simtime.TimePoint, then func(simtime.TimePoint)) {
	pd := p.powerDomains[proc.powerDomainID]
	cs, ok := pd.byLevel(proc.cstate)
	latency := simtime.Duration(0)
	if ok {
		latency = cs.WakeLatency
	}
	wakeAt := now.Add(latency)
	cb := func(t simtime.TimePoint) {
		proc.hasTransitionTimer = false
		proc.state = Idle
		proc.cstate = 0
		p.eng.Energy.Notify(engine.ProcessorKey(proc.id), t, p.activePower(proc))
		p.eng.Trace(trace.Record{Time: t, Type: trace.ProcActivated, Fields: map[string]any{"processor": int(proc.id)}})
		then(t)
	}
	if latency <= 0 {
		cb(now)
		return
	}
	proc.hasTransitionTimer = true
	proc.transitionTimer = p.eng.AddTimer(wakeAt, engine.PriorityTimerDefault, cb)
}

func (p *Platform) accountElapsed(proc *processor, now simtime.TimePoint) {
	if proc.currentJob == nil {
		return
	}
	elapsed := now.Sub(proc.lastUpdate)
	if elapsed <= 0 {
		return
	}
	speed := p.Speed(proc.id)
	proc.currentJob.ConsumeWork(elapsed.Scale(speed))
	proc.lastUpdate = now
}

func (p *Platform) cancelTimer(id *engine.TimerID, has *bool) {
	if *has {
		p.eng.CancelTimer(*id)
		*has = false
	}
}

func (p *Platform) scheduleCompletion(id ProcessorID, now simtime.TimePoint) {
	proc := p.mustProc(id)
	j := proc.currentJob
	speed := p.Speed(id)
	var wall simtime.Duration
	if j.RemainingWork > simtime.ZeroEpsilon {
		wall = j.RemainingWork.Div(speed)
	}
	proc.hasCompletionTimer = true
	proc.completionTimer = p.eng.AddTimer(now.Add(wall), engine.PriorityJobCompletion, func(t simtime.TimePoint) {
		proc.hasCompletionTimer = false
		if proc.isr.OnCompletion != nil {
			proc.isr.OnCompletion(id, t)
		}
		// A finished job always leaves the processor Idle, whether or not
		// the completion ISR cleared it.
		if proc.state == Running && proc.currentJob == j {
			p.accountElapsed(proc, t)
			p.cancelTimer(&proc.deadlineTimer, &proc.hasDeadlineTimer)
			proc.state = Idle
			proc.currentJob = nil
		}
	})
}

func (p *Platform) scheduleDeadline(id ProcessorID, now simtime.TimePoint) {
	proc := p.mustProc(id)
	j := proc.currentJob
	fireAt := simtime.Max(j.AbsoluteDeadline, now)
	proc.hasDeadlineTimer = true
	proc.deadlineTimer = p.eng.AddTimer(fireAt, engine.PriorityDeadlineMiss, func(t simtime.TimePoint) {
		proc.hasDeadlineTimer = false
		if proc.isr.OnDeadlineMiss != nil {
			proc.isr.OnDeadlineMiss(id, t)
		}
	})
}

// beginDVFS consumes elapsed work at the pre-change speed and transitions a
// Running processor into Changing; other states are unaffected since they
// have no in-flight completion timer to rescale.
func (p *Platform) beginDVFS(proc *processor, now simtime.TimePoint) {
	if proc.state != Running {
		return
	}
	p.accountElapsed(proc, now)
	p.cancelTimer(&proc.completionTimer, &proc.hasCompletionTimer)
	proc.state = Changing
	proc.pendingClear = false
}

// endDVFS resumes a Changing processor at the new speed, applying a
// deferred Clear if one was requested mid-transition.
func (p *Platform) endDVFS(proc *processor, now simtime.TimePoint) {
	if proc.state != Changing {
		return
	}
	if proc.pendingClear {
		proc.pendingClear = false
		p.cancelTimer(&proc.deadlineTimer, &proc.hasDeadlineTimer)
		proc.state = Idle
		proc.currentJob = nil
		return
	}
	proc.state = Running
	proc.lastUpdate = now
	p.scheduleCompletion(proc.id, now)
}

// SetFrequency requests a new frequency for a clock domain. If modes are
// configured the request is rounded up to the next mode. A request that
// resolves to the domain's current frequency is a complete no-op: no
// trace, no timer, no budget reschedule. A locked domain ignores every
// request.
func (p *Platform) SetFrequency(id ClockDomainID, requested Frequency, now simtime.TimePoint) {
	cd := p.clockDomains[id]
	if cd.Locked {
		return
	}
	rounded := cd.RoundUpToMode(requested)
	if rounded == cd.Current {
		return
	}

	for _, pid := range cd.Processors {
		p.beginDVFS(p.processors[pid], now)
	}
	cd.Current = rounded

	p.eng.Trace(trace.Record{Time: now, Type: trace.FrequencyUpdate, Fields: map[string]any{
		"clock_domain":  int(id),
		"frequency_mhz": float64(rounded),
	}})

	newPower := cd.Power(rounded)
	for _, pid := range cd.Processors {
		proc := p.processors[pid]
		if proc.state != Sleep {
			p.eng.Energy.Notify(engine.ProcessorKey(pid), now, newPower)
		}
	}

	if cd.TransitionDelay <= 0 {
		for _, pid := range cd.Processors {
			p.endDVFS(p.processors[pid], now)
		}
	} else {
		endAt := now.Add(cd.TransitionDelay)
		p.eng.AddTimer(endAt, engine.PriorityTimerDefault, func(t simtime.TimePoint) {
			for _, pid := range cd.Processors {
				p.endDVFS(p.processors[pid], t)
			}
		})
	}

	if cd.OnFrequencyChanged != nil {
		cd.OnFrequencyChanged(now)
	}
}

// Lock freezes a clock domain's frequency against further policy action.
func (p *Platform) Lock(id ClockDomainID)   { p.clockDomains[id].Locked = true }
func (p *Platform) Unlock(id ClockDomainID) { p.clockDomains[id].Locked = false }
