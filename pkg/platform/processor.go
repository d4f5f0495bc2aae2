package platform

import (
	"github.com/halvorsen/schedsim-go/pkg/engine"
	"github.com/halvorsen/schedsim-go/pkg/job"
	"github.com/halvorsen/schedsim-go/pkg/simtime"
)

// processor is the internal, mutable per-processor record. Exported
// accessors live on Platform so callers never hold a bare pointer across a
// Finalize boundary.
type processor struct {
	id            ProcessorID
	typeID        ProcessorTypeID
	clockDomainID ClockDomainID
	powerDomainID PowerDomainID

	state        State
	currentJob   *job.Job
	cstate       int
	pendingClear bool
	pendingJob   *job.Job
	lastUpdate   simtime.TimePoint

	completionTimer    engine.TimerID
	hasCompletionTimer bool
	deadlineTimer      engine.TimerID
	hasDeadlineTimer   bool
	transitionTimer    engine.TimerID
	hasTransitionTimer bool

	isr ISR
}

// ProcessorID returns the stable ID for a processor record.
func (p *processor) ID() ProcessorID { return p.id }
