// Package platform implements the platform model (ProcessorType,
// ClockDomain, PowerDomain, Processor) and the processor runtime state
// machine of spec.md 4.2/4.3. Grounded on original_source's
// schedsim/src/platform.hpp, protocols/platform/platform.cpp and
// schedsim/core/src/processor.cpp.
package platform

import (
	"fmt"

	"github.com/halvorsen/schedsim-go/pkg/engine"
	"github.com/halvorsen/schedsim-go/pkg/job"
	"github.com/halvorsen/schedsim-go/pkg/simerrors"
	"github.com/halvorsen/schedsim-go/pkg/simtime"
)

// Platform is the finalized, central hub owning every ProcessorType,
// ClockDomain, PowerDomain and Processor arena, plus the reference
// performance score used to normalize processor speed.
type Platform struct {
	eng *engine.Engine

	types        map[ProcessorTypeID]*ProcessorType
	clockDomains map[ClockDomainID]*ClockDomain
	powerDomains map[PowerDomainID]*PowerDomain
	processors   map[ProcessorID]*processor

	refPerf   float64
	finalized bool
}

// Builder accumulates platform entities before a single Finalize call makes
// the platform's references stable.
type Builder struct {
	types        map[ProcessorTypeID]*ProcessorType
	clockDomains map[ClockDomainID]*ClockDomain
	powerDomains map[PowerDomainID]*PowerDomain
	processors   []processorSpec

	nextTypeID ProcessorTypeID
}

type processorSpec struct {
	typeID  ProcessorTypeID
	clockID ClockDomainID
	powerID PowerDomainID
}

// NewBuilder constructs an empty platform builder.
func NewBuilder() *Builder {
	return &Builder{
		types:        make(map[ProcessorTypeID]*ProcessorType),
		clockDomains: make(map[ClockDomainID]*ClockDomain),
		powerDomains: make(map[PowerDomainID]*PowerDomain),
	}
}

// AddProcessorType registers a processor type and returns its assigned ID.
func (b *Builder) AddProcessorType(name string, perfScore float64, csDelay simtime.Duration) ProcessorTypeID {
	b.nextTypeID++
	id := b.nextTypeID
	b.types[id] = &ProcessorType{ID: id, Name: name, PerfScore: perfScore, ContextSwitchDelay: csDelay}
	return id
}

// AddClockDomain registers a clock domain under the given stable ID
// (clock domains are identified by the config file's own integer ID, per
// spec.md 3).
func (b *Builder) AddClockDomain(cd ClockDomain) {
	c := cd
	if c.Current == 0 {
		c.Current = c.RoundUpToMode(c.FreqMin)
	}
	b.clockDomains[c.ID] = &c
}

// AddPowerDomain registers a power domain under its stable ID.
func (b *Builder) AddPowerDomain(pd PowerDomain) {
	p := pd
	if p.CStates == nil {
		p.CStates = make(map[int]CState)
	}
	b.powerDomains[p.ID] = &p
}

// AddProcessor registers a processor attached to the given type, clock
// domain and power domain, all of which must already be registered.
// Returns the assigned ProcessorID (1-based, insertion order).
func (b *Builder) AddProcessor(typeID ProcessorTypeID, clockID ClockDomainID, powerID PowerDomainID) ProcessorID {
	b.processors = append(b.processors, processorSpec{typeID: typeID, clockID: clockID, powerID: powerID})
	return ProcessorID(len(b.processors))
}

// Finalize validates and freezes the platform, returning a configuration
// error (never a panic) on any dangling reference or missing-category
// violation.
func (b *Builder) Finalize(eng *engine.Engine) (*Platform, error) {
	if len(b.types) == 0 {
		return nil, fmt.Errorf("%w: at least one processor type is required", simerrors.ErrConfiguration)
	}
	if len(b.clockDomains) == 0 {
		return nil, fmt.Errorf("%w: at least one clock domain is required", simerrors.ErrConfiguration)
	}
	if len(b.powerDomains) == 0 {
		return nil, fmt.Errorf("%w: at least one power domain is required", simerrors.ErrConfiguration)
	}
	if len(b.processors) == 0 {
		return nil, fmt.Errorf("%w: at least one processor is required", simerrors.ErrConfiguration)
	}

	refPerf := 0.0
	for _, t := range b.types {
		if t.PerfScore > refPerf {
			refPerf = t.PerfScore
		}
	}

	for _, cd := range b.clockDomains {
		if cd.FreqMin > cd.FreqMax {
			return nil, fmt.Errorf("%w: clock domain %d has freq_min > freq_max", simerrors.ErrConfiguration, cd.ID)
		}
		for i := 1; i < len(cd.Modes); i++ {
			if cd.Modes[i] < cd.Modes[i-1] {
				return nil, fmt.Errorf("%w: clock domain %d frequency modes must be ascending", simerrors.ErrConfiguration, cd.ID)
			}
		}
		if cd.Current < cd.FreqMin || cd.Current > cd.FreqMax {
			return nil, fmt.Errorf("%w: clock domain %d initial frequency out of range", simerrors.ErrConfiguration, cd.ID)
		}
	}

	p := &Platform{
		eng:          eng,
		types:        b.types,
		clockDomains: b.clockDomains,
		powerDomains: b.powerDomains,
		processors:   make(map[ProcessorID]*processor),
		refPerf:      refPerf,
		finalized:    true,
	}

	for i, spec := range b.processors {
		id := ProcessorID(i + 1)
		if _, ok := b.types[spec.typeID]; !ok {
			return nil, fmt.Errorf("%w: processor %d references unknown processor type %d", simerrors.ErrConfiguration, id, spec.typeID)
		}
		cd, ok := b.clockDomains[spec.clockID]
		if !ok {
			return nil, fmt.Errorf("%w: processor %d references unknown clock domain %d", simerrors.ErrConfiguration, id, spec.clockID)
		}
		if _, ok := b.powerDomains[spec.powerID]; !ok {
			return nil, fmt.Errorf("%w: processor %d references unknown power domain %d", simerrors.ErrConfiguration, id, spec.powerID)
		}
		p.processors[id] = &processor{
			id:            id,
			typeID:        spec.typeID,
			clockDomainID: spec.clockID,
			powerDomainID: spec.powerID,
			state:         Idle,
		}
		cd.Processors = append(cd.Processors, id)
	}

	for id, proc := range p.processors {
		cd := p.clockDomains[proc.clockDomainID]
		p.eng.Energy.Notify(engine.ProcessorKey(id), eng.Time(), cd.Power(cd.Current))
	}

	return p, nil
}

func (p *Platform) mustProc(id ProcessorID) *processor {
	proc, ok := p.processors[id]
	if !ok {
		panic(fmt.Sprintf("schedsim: unknown processor id %d", id))
	}
	return proc
}

// ProcessorIDs returns every processor ID in insertion order.
func (p *Platform) ProcessorIDs() []ProcessorID {
	ids := make([]ProcessorID, 0, len(p.processors))
	for i := 1; i <= len(p.processors); i++ {
		ids = append(ids, ProcessorID(i))
	}
	return ids
}

// ProcessorType returns the type a processor was built with.
func (p *Platform) ProcessorType(id ProcessorID) *ProcessorType {
	return p.types[p.mustProc(id).typeID]
}

// ClockDomainOf returns the clock domain a processor belongs to.
func (p *Platform) ClockDomainOf(id ProcessorID) *ClockDomain {
	return p.clockDomains[p.mustProc(id).clockDomainID]
}

// ClockDomain returns a clock domain by its stable ID.
func (p *Platform) ClockDomain(id ClockDomainID) *ClockDomain { return p.clockDomains[id] }

// ClockDomainIDs returns every registered clock domain ID.
func (p *Platform) ClockDomainIDs() []ClockDomainID {
	ids := make([]ClockDomainID, 0, len(p.clockDomains))
	for id := range p.clockDomains {
		ids = append(ids, id)
	}
	return ids
}

// PowerDomainOf returns the power domain a processor belongs to.
func (p *Platform) PowerDomainOf(id ProcessorID) *PowerDomain {
	return p.powerDomains[p.mustProc(id).powerDomainID]
}

// State returns a processor's current state machine position.
func (p *Platform) State(id ProcessorID) State { return p.mustProc(id).state }

// CurrentJob returns the job currently referenced by a processor, or nil.
func (p *Platform) CurrentJob(id ProcessorID) *job.Job { return p.mustProc(id).currentJob }

// CState returns the processor's current C-state level (0 means active).
func (p *Platform) CState(id ProcessorID) int { return p.mustProc(id).cstate }

// RegisterISR installs the scheduler callbacks a processor invokes on job
// completion, deadline miss and (after DPM wakes it) availability.
func (p *Platform) RegisterISR(id ProcessorID, isr ISR) {
	p.mustProc(id).isr = isr
}

// Speed returns the dimensionless execution speed of a processor:
// (f_current/f_max) * (perf/perf_ref). 1.0 means one reference work unit
// per wall-clock second.
func (p *Platform) Speed(id ProcessorID) float64 {
	proc := p.mustProc(id)
	cd := p.clockDomains[proc.clockDomainID]
	pt := p.types[proc.typeID]
	if cd.FreqMax == 0 || p.refPerf == 0 {
		return 0
	}
	return (float64(cd.Current) / float64(cd.FreqMax)) * (pt.PerfScore / p.refPerf)
}

func (p *Platform) activePower(proc *processor) simtime.Power {
	cd := p.clockDomains[proc.clockDomainID]
	return cd.Power(cd.Current)
}
