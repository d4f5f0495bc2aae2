// Package dpm implements the dynamic power management policy of
// spec.md 4.8: BasicDpm, which puts newly-idle processors to sleep and
// wakes them on demand before dispatch. Grounded on the dpm_policy
// interface surface visible from edf_scheduler.{hpp,cpp}'s
// on_processor_idle/on_processor_needed call sites (dpm_policy.hpp
// itself is not part of the retrieved original_source tree).
package dpm

import (
	"github.com/halvorsen/schedsim-go/pkg/platform"
	"github.com/halvorsen/schedsim-go/pkg/simtime"
)

// SchedulerView is the slice of an EDF scheduler a DPM policy needs.
type SchedulerView interface {
	Platform() *platform.Platform
	Processors() []platform.ProcessorID
}

// Policy decides when idle processors sleep and when sleeping ones wake.
type Policy interface {
	// OnProcessorIdle is called right after a processor transitions to
	// Idle on job completion or budget exhaustion, and when a woken
	// processor becomes available while no server is Ready.
	OnProcessorIdle(sched SchedulerView, proc platform.ProcessorID, now simtime.TimePoint)
	// OnProcessorNeeded is called on every job arrival, before the
	// dispatch pass that arrival requests, so sleeping processors can be
	// woken in time to receive work.
	OnProcessorNeeded(sched SchedulerView, now simtime.TimePoint)
}

// BasicDpm requests targetCState for any processor that goes idle while
// its clock domain sits below its maximum frequency mode (peak
// performance is assumed to mean "no power budget to spare on sleep
// transitions"), and wakes every sleeping processor whenever the
// scheduler signals one might be needed.
type BasicDpm struct {
	targetCState int
}

func NewBasicDpm(targetCState int) *BasicDpm {
	return &BasicDpm{targetCState: targetCState}
}

func (d *BasicDpm) OnProcessorIdle(sched SchedulerView, proc platform.ProcessorID, now simtime.TimePoint) {
	p := sched.Platform()
	if p.State(proc) != platform.Idle {
		return
	}
	cd := p.ClockDomainOf(proc)
	if cd.Current >= cd.FreqMax {
		return
	}
	p.RequestCState(proc, d.targetCState, now)
}

func (d *BasicDpm) OnProcessorNeeded(sched SchedulerView, now simtime.TimePoint) {
	p := sched.Platform()
	for _, id := range sched.Processors() {
		if p.State(id) == platform.Sleep {
			p.WakeProcessor(id, now)
		}
	}
}
