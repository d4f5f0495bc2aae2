package platform

import "github.com/halvorsen/schedsim-go/pkg/simtime"

// ProcessorTypeID, ClockDomainID, PowerDomainID and ProcessorID are stable
// handles into a finalized Platform's arenas.
type ProcessorTypeID int
type ClockDomainID int
type PowerDomainID int
type ProcessorID int

// ProcessorType is immutable: a name, a performance score relative to a
// reference score of 1.0, and a context-switch latency.
type ProcessorType struct {
	ID                 ProcessorTypeID
	Name               string
	PerfScore          float64
	ContextSwitchDelay simtime.Duration
}

// CStateScope distinguishes a C-state level that affects only the one
// processor requesting it from one that is shared across the whole power
// domain.
type CStateScope int

const (
	PerProcessor CStateScope = iota
	DomainWide
)

// CState describes one sleep level, level 0 ("active", not sleeping) is
// implicit and never stored explicitly.
type CState struct {
	Level       int
	Scope       CStateScope
	WakeLatency simtime.Duration
	SleepPower  simtime.Power
}

// PowerDomain holds the ordered set of C-state levels a processor in it may
// request, excluding the always-present level 0.
type PowerDomain struct {
	ID      PowerDomainID
	CStates map[int]CState
}

func (pd *PowerDomain) byLevel(level int) (CState, bool) {
	if level == 0 {
		return CState{}, false
	}
	cs, ok := pd.CStates[level]
	return cs, ok
}

// ClockDomain groups processors sharing a frequency setting, discrete
// frequency modes, a power model P(f) = c0 + c1*f + c2*f^2 + c3*f^3 (f in
// GHz), and a transition delay.
type ClockDomain struct {
	ID              ClockDomainID
	FreqMin         Frequency
	FreqMax         Frequency
	Modes           []Frequency // ascending, optional
	FreqEff         Frequency
	C0, C1, C2, C3  float64
	TransitionDelay simtime.Duration
	Locked          bool
	Current         Frequency
	Processors      []ProcessorID

	// OnFrequencyChanged is invoked synchronously by SetFrequency, right
	// after the new frequency takes effect and its trace is emitted, so the
	// owning scheduler can recompute active budget timers at the new speed.
	// Registered by the EDF scheduler, not part of the platform's own state.
	OnFrequencyChanged func(now simtime.TimePoint)
}

// Frequency is re-exported from simtime for package-local readability.
type Frequency = simtime.Frequency

// Power returns the instantaneous power draw at frequency f (MHz).
func (cd *ClockDomain) Power(f Frequency) simtime.Power {
	ghz := float64(f) / 1000.0
	return simtime.Power(cd.C0 + cd.C1*ghz + cd.C2*ghz*ghz + cd.C3*ghz*ghz*ghz)
}

// RoundUpToMode rounds a requested frequency up to the next configured
// discrete mode, returning FreqMax if the request exceeds every mode. With
// no modes configured, the request is simply clamped to [FreqMin, FreqMax].
func (cd *ClockDomain) RoundUpToMode(f Frequency) Frequency {
	if len(cd.Modes) == 0 {
		if f < cd.FreqMin {
			return cd.FreqMin
		}
		if f > cd.FreqMax {
			return cd.FreqMax
		}
		return f
	}
	for _, m := range cd.Modes {
		if f <= m {
			return m
		}
	}
	return cd.FreqMax
}

// State is a Processor's current position in its state machine.
type State int

const (
	Idle State = iota
	Running
	ContextSwitching
	Changing
	Sleep
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case ContextSwitching:
		return "ContextSwitching"
	case Changing:
		return "Changing"
	case Sleep:
		return "Sleep"
	default:
		return "Unknown"
	}
}

// ISR holds the callbacks a scheduler installs on a processor it owns.
type ISR struct {
	OnCompletion   func(proc ProcessorID, now simtime.TimePoint)
	OnDeadlineMiss func(proc ProcessorID, now simtime.TimePoint)
	OnAvailable    func(proc ProcessorID, now simtime.TimePoint)
}
