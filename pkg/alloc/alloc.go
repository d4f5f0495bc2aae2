// Package alloc is the allocator boundary of spec.md 4.9: schedulers never
// invoke themselves directly, they call allocator.CallResched(self).
// Single-scheduler deployments use Identity; multi-cluster deployments use
// MultiCluster, which additionally chooses a target scheduler for each new
// job by a fit strategy. Grounded on pkg/decision's filter-then-score
// target-selection shape (decision_engine.go's filterTargets/scoreTargets
// split), adapted from offload-target scoring to scheduler-capacity fit.
package alloc

import (
	"fmt"
	"sort"

	"github.com/halvorsen/schedsim-go/pkg/simtime"
)

// Scheduler is the minimal view an allocator needs of a pkg/edf.Scheduler:
// enough to route a reschedule request and, for multi-cluster allocators,
// to judge fit for a new server. edf.Scheduler satisfies this structurally;
// this package never imports pkg/edf.
type Scheduler interface {
	// RequestResched performs the actual deferred reschedule request this
	// allocator decided to grant.
	RequestResched()

	// Utilization returns the scheduler's current total reserved
	// utilization (sum of budget/period across admitted servers).
	Utilization() float64

	// CanAdmit reports whether a server with the given budget and period
	// would still satisfy the scheduler's admission test.
	CanAdmit(budget, period simtime.Duration) bool
}

// Allocator is the boundary interface consumed by a scheduler's internal
// reschedule triggers. Only CallResched is observed by the core.
type Allocator interface {
	CallResched(s Scheduler)
}

// Identity immediately grants every reschedule request. The correct
// allocator for single-scheduler deployments.
type Identity struct{}

func (Identity) CallResched(s Scheduler) { s.RequestResched() }

var _ Allocator = Identity{}

// FitStrategy selects which scheduler in a MultiCluster pool receives a new
// job's server.
type FitStrategy int

const (
	// FirstFit picks the first scheduler (in pool order) that can admit
	// the server.
	FirstFit FitStrategy = iota
	// WorstFit picks the scheduler with the most slack (lowest current
	// utilization) among those that can admit the server, spreading load.
	WorstFit
	// CapacityAdaptive picks the admissible scheduler with the highest
	// current utilization, packing tightly — trading WorstFit's spread for
	// density. Each scheduler's capacity bound is not compared.
	CapacityAdaptive
)

// ErrNoFit is returned by MultiCluster.SelectTarget when no pool member can
// admit the requested server.
type ErrNoFit struct {
	Budget, Period simtime.Duration
}

func (e ErrNoFit) Error() string {
	return fmt.Sprintf("alloc: no scheduler in pool can admit budget=%v period=%v", e.Budget, e.Period)
}

// MultiCluster routes reschedule requests unconditionally (a scheduler
// always reschedules its own processors) but chooses which pool member
// admits each new job via SelectTarget, called by the deployment's
// admission wiring before AddServer.
type MultiCluster struct {
	pool     []Scheduler
	strategy FitStrategy
}

// NewMultiCluster builds an allocator over a fixed pool of schedulers using
// the given fit strategy.
func NewMultiCluster(pool []Scheduler, strategy FitStrategy) *MultiCluster {
	return &MultiCluster{pool: append([]Scheduler(nil), pool...), strategy: strategy}
}

func (m *MultiCluster) CallResched(s Scheduler) { s.RequestResched() }

// SelectTarget picks a pool scheduler to admit a server with the given
// budget and period, per the configured FitStrategy. Ties within a
// strategy break by pool order, keeping selection deterministic.
func (m *MultiCluster) SelectTarget(budget, period simtime.Duration) (Scheduler, error) {
	candidates := make([]Scheduler, 0, len(m.pool))
	for _, s := range m.pool {
		if s.CanAdmit(budget, period) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoFit{Budget: budget, Period: period}
	}

	switch m.strategy {
	case FirstFit:
		return candidates[0], nil

	case WorstFit:
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Utilization() < candidates[j].Utilization()
		})
		return candidates[0], nil

	case CapacityAdaptive:
		// Among admissible candidates, pack into the one with the
		// highest current utilization; ties keep pool order.
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.Utilization() > best.Utilization() {
				best = c
			}
		}
		return best, nil

	default:
		return candidates[0], nil
	}
}

var _ Allocator = (*MultiCluster)(nil)
