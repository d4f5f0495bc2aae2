// Package edf implements the EDF scheduler of spec.md 4.5: admission,
// dispatch/preemption, budget and queued-deadline timers, and the
// deadline-miss failure policies. Grounded on
// original_source/schedsim/algo/src/edf_scheduler.cpp, with the server
// arena modeled as a slice of individually heap-allocated *cbs.Server
// (rather than the original's std::deque<CbsServer>) so interior
// pointers stay stable under append, matching spec.md 5's "append-only,
// never reordered or shrunk" requirement.
package edf

import (
	"fmt"

	"github.com/halvorsen/schedsim-go/pkg/alloc"
	"github.com/halvorsen/schedsim-go/pkg/cbs"
	"github.com/halvorsen/schedsim-go/pkg/dpm"
	"github.com/halvorsen/schedsim-go/pkg/dvfs"
	"github.com/halvorsen/schedsim-go/pkg/engine"
	"github.com/halvorsen/schedsim-go/pkg/job"
	"github.com/halvorsen/schedsim-go/pkg/platform"
	"github.com/halvorsen/schedsim-go/pkg/reclaim"
	"github.com/halvorsen/schedsim-go/pkg/simerrors"
	"github.com/halvorsen/schedsim-go/pkg/simtime"
	"github.com/halvorsen/schedsim-go/pkg/trace"
)

// DeadlineMissPolicy selects what happens when a job's absolute deadline
// fires while it is still on a processor.
type DeadlineMissPolicy int

const (
	Continue DeadlineMissPolicy = iota
	AbortJob
	AbortTask
	StopSimulation
)

// AdmissionTest decides whether a new bandwidth reservation fits.
// `total` and `newUtil` are dimensionless utilizations, `capacity` is the
// processor count m.
type AdmissionTest func(total, capacity, newUtil float64) bool

// CapacityBound is the default admission test: sum(U_i) + new_U <= m.
func CapacityBound(total, capacity, newUtil float64) bool {
	return total+newUtil <= capacity
}

// AdmissionError is returned by AddServer when CapacityBound (or the
// configured AdmissionTest) rejects a new reservation.
type AdmissionError struct {
	Requested float64
	Available float64
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("edf: admission rejected: requested utilization %.4f exceeds available %.4f", e.Requested, e.Available)
}

func (e *AdmissionError) Unwrap() error { return simerrors.ErrAdmission }

// Scheduler is an EDF scheduler over a fixed set of processors, owning
// one CBS server per admitted task and the EDF dispatch loop that
// assigns Ready servers to Idle processors.
type Scheduler struct {
	eng  *engine.Engine
	plat *platform.Platform

	processors []platform.ProcessorID

	servers       []*cbs.Server
	taskToServer  map[job.TaskID]*cbs.Server
	serverByID    map[cbs.ServerID]*cbs.Server
	nextServerID  cbs.ServerID

	serverToProcessor map[cbs.ServerID]platform.ProcessorID
	processorToServer map[platform.ProcessorID]*cbs.Server
	lastDispatchTime  map[cbs.ServerID]simtime.TimePoint

	budgetTimer         map[cbs.ServerID]engine.TimerID
	queuedDeadlineTimer map[cbs.ServerID]engine.TimerID

	reschedDeferred  engine.DeferredID
	totalUtilization float64

	admission          AdmissionTest
	deadlineMissPolicy DeadlineMissPolicy
	deadlineMissHandler func(proc platform.ProcessorID, now simtime.TimePoint)
	queuedDeadlineMissHandler func(server *cbs.Server, now simtime.TimePoint)

	reclaimPolicy reclaim.Policy
	dvfsPolicy    dvfs.Policy
	dpmPolicy     dpm.Policy

	allocator alloc.Allocator
}

// New constructs an EDF scheduler managing the given processors, installs
// their ISR handlers, and registers the deferred dispatch callback. Every
// triggering condition (arrival, completion, preemption opportunity)
// requests this single deferred callback rather than calling dispatch_edf
// directly, so that multiple triggers within one instant collapse to one
// dispatch pass per spec.md 5.
func New(eng *engine.Engine, plat *platform.Platform, processors []platform.ProcessorID) *Scheduler {
	s := &Scheduler{
		eng:                 eng,
		plat:                plat,
		processors:          append([]platform.ProcessorID(nil), processors...),
		taskToServer:        make(map[job.TaskID]*cbs.Server),
		serverByID:          make(map[cbs.ServerID]*cbs.Server),
		serverToProcessor:   make(map[cbs.ServerID]platform.ProcessorID),
		processorToServer:   make(map[platform.ProcessorID]*cbs.Server),
		lastDispatchTime:    make(map[cbs.ServerID]simtime.TimePoint),
		budgetTimer:         make(map[cbs.ServerID]engine.TimerID),
		queuedDeadlineTimer: make(map[cbs.ServerID]engine.TimerID),
		admission:           CapacityBound,
		reclaimPolicy:       reclaim.NewNone(),
		allocator:           alloc.Identity{},
	}
	s.reschedDeferred = eng.RegisterDeferred(s.onResched)

	for _, id := range processors {
		pid := id
		plat.RegisterISR(pid, platform.ISR{
			OnCompletion:   s.onJobCompletion,
			OnDeadlineMiss: s.onDeadlineMiss,
			OnAvailable:    s.onProcessorAvailable,
		})
	}
	return s
}

// --- Configuration ---------------------------------------------------

func (s *Scheduler) SetAdmissionTest(a AdmissionTest)          { s.admission = a }
func (s *Scheduler) SetDeadlineMissPolicy(p DeadlineMissPolicy) { s.deadlineMissPolicy = p }
func (s *Scheduler) SetDeadlineMissHandler(h func(platform.ProcessorID, simtime.TimePoint)) {
	s.deadlineMissHandler = h
}
func (s *Scheduler) SetQueuedDeadlineMissHandler(h func(*cbs.Server, simtime.TimePoint)) {
	s.queuedDeadlineMissHandler = h
}

func (s *Scheduler) SetReclamationPolicy(p reclaim.Policy) { s.reclaimPolicy = p }

// SetDvfsPolicy installs a DVFS policy and wires every managed clock
// domain's OnFrequencyChanged hook to reschedule in-flight budget timers,
// since a frequency change mid-execution invalidates the wall-clock ETA
// a budget timer was armed with.
func (s *Scheduler) SetDvfsPolicy(p dvfs.Policy) {
	s.dvfsPolicy = p
	for _, id := range s.processors {
		domain := s.plat.ClockDomainOf(id)
		domain.OnFrequencyChanged = func(now simtime.TimePoint) {
			s.rescheduleBudgetTimersForDomain(domain, now)
		}
	}
}

func (s *Scheduler) SetDpmPolicy(p dpm.Policy) { s.dpmPolicy = p }

// SetAllocator installs the allocator every internal reschedule trigger
// routes through, per spec.md 4.9: this scheduler never dispatches itself
// directly. Defaults to alloc.Identity, the correct choice for
// single-scheduler deployments. Multi-cluster deployments install an
// alloc.MultiCluster shared across the pool's schedulers instead.
func (s *Scheduler) SetAllocator(a alloc.Allocator) { s.allocator = a }

// EnableGRUB installs the GRUB reclamation policy scaled by this
// scheduler's processor count.
func (s *Scheduler) EnableGRUB() { s.SetReclamationPolicy(reclaim.NewGRUB(len(s.processors))) }

// EnableCASH installs the CASH reclamation policy.
func (s *Scheduler) EnableCASH() { s.SetReclamationPolicy(reclaim.NewCASH()) }

// EnablePowerAwareDVFS installs the PowerAware policy with the given
// cooldown.
func (s *Scheduler) EnablePowerAwareDVFS(cooldown simtime.Duration) {
	s.SetDvfsPolicy(dvfs.NewPowerAware(cooldown))
}

// EnableFFA installs the FFA policy.
func (s *Scheduler) EnableFFA(cooldown simtime.Duration) { s.SetDvfsPolicy(dvfs.NewFFA(cooldown)) }

// EnableFFATimer installs the periodic-recompute FFA variant.
func (s *Scheduler) EnableFFATimer(cooldown, period simtime.Duration) {
	s.SetDvfsPolicy(dvfs.NewFFATimer(cooldown, period))
}

// EnableCSF installs the CSF policy.
func (s *Scheduler) EnableCSF(cooldown simtime.Duration) { s.SetDvfsPolicy(dvfs.NewCSF(cooldown)) }

// EnableCSFTimer installs the periodic-recompute CSF variant.
func (s *Scheduler) EnableCSFTimer(cooldown, period simtime.Duration) {
	s.SetDvfsPolicy(dvfs.NewCSFTimer(cooldown, period))
}

// EnableBasicDPM installs BasicDpm targeting the given C-state level.
func (s *Scheduler) EnableBasicDPM(targetCState int) { s.SetDpmPolicy(dpm.NewBasicDpm(targetCState)) }

// --- dvfs.SchedulerView / dpm.SchedulerView ---------------------------

func (s *Scheduler) Platform() *platform.Platform { return s.plat }
func (s *Scheduler) Processors() []platform.ProcessorID {
	return append([]platform.ProcessorID(nil), s.processors...)
}
func (s *Scheduler) ProcessorsInDomain(domain platform.ClockDomainID) []platform.ProcessorID {
	cd := s.plat.ClockDomain(domain)
	if cd == nil {
		return nil
	}
	return cd.Processors
}
func (s *Scheduler) AddTimer(at simtime.TimePoint, cb func(simtime.TimePoint)) {
	s.eng.AddTimer(at, engine.PriorityTimerDefault, cb)
}

// ActiveUtilization delegates to the active reclamation policy.
func (s *Scheduler) ActiveUtilization() float64 { return s.reclaimPolicy.ActiveUtilization() }

// MaxServerUtilization returns the largest single reservation's
// utilization among every server this scheduler has admitted.
func (s *Scheduler) MaxServerUtilization() float64 {
	max := 0.0
	for _, srv := range s.servers {
		if srv.Utilization > max {
			max = srv.Utilization
		}
	}
	return max
}

// Utilization returns the sum of every admitted server's reserved
// bandwidth.
func (s *Scheduler) Utilization() float64 { return s.totalUtilization }

// CanAdmit reports whether a new Q/T reservation fits under the
// configured admission test.
func (s *Scheduler) CanAdmit(budget, period simtime.Duration) bool {
	newUtil := float64(budget) / float64(period)
	return s.admission(s.totalUtilization, float64(len(s.processors)), newUtil)
}

// FindServer returns the server backing a task, or nil.
func (s *Scheduler) FindServer(taskID job.TaskID) *cbs.Server { return s.taskToServer[taskID] }

// ServerByID returns a server by its scheduler-assigned ID, or nil.
func (s *Scheduler) ServerByID(id cbs.ServerID) *cbs.Server { return s.serverByID[id] }

// Servers returns every admitted server in insertion order, including
// ones detached by AbortTask (whose State remains whatever it was at
// detachment, frozen for trace/inspection purposes).
func (s *Scheduler) Servers() []*cbs.Server {
	return append([]*cbs.Server(nil), s.servers...)
}

// AddServer admits a new bandwidth reservation for task, checking the
// admission test first.
func (s *Scheduler) AddServer(task *job.Task, budget, period simtime.Duration, policy cbs.OverrunPolicy) (*cbs.Server, error) {
	newUtil := float64(budget) / float64(period)
	capacity := float64(len(s.processors))
	if !s.admission(s.totalUtilization, capacity, newUtil) {
		s.eng.Trace(trace.Record{Type: trace.TaskRejected, Fields: map[string]any{"task_id": uint64(task.ID)}})
		return nil, &AdmissionError{Requested: newUtil, Available: capacity - s.totalUtilization}
	}
	return s.addServerUnchecked(task, budget, period, policy), nil
}

// AddServerDefault admits a server reserving the task's own WCET/Period.
func (s *Scheduler) AddServerDefault(task *job.Task) (*cbs.Server, error) {
	return s.AddServer(task, task.WCET, task.Period, cbs.Queue)
}

func (s *Scheduler) addServerUnchecked(task *job.Task, budget, period simtime.Duration, policy cbs.OverrunPolicy) *cbs.Server {
	s.nextServerID++
	srv := cbs.NewServer(s.nextServerID, task.ID, budget, period, policy)
	s.servers = append(s.servers, srv)
	s.serverByID[srv.ID] = srv
	s.taskToServer[task.ID] = srv
	s.totalUtilization += srv.Utilization
	return srv
}

// --- Arrival / ISR handlers --------------------------------------------

// OnJobArrival matches engine.ArrivalHandler: route an arriving job to
// its task's server (auto-creating one with the task's own parameters if
// none was registered yet), enqueue it, activate the server if it was
// idle, and request a dispatch pass.
func (s *Scheduler) OnJobArrival(task *job.Task, when simtime.TimePoint, wcet simtime.Duration) {
	srv := s.FindServer(task.ID)
	if srv == nil {
		srv = s.addServerUnchecked(task, task.WCET, task.Period, cbs.Queue)
	}

	prevState := srv.State
	j := job.NewJob(0, task, when, wcet)
	srv.EnqueueJob(j)

	switch prevState {
	case cbs.Inactive:
		srv.Activate(when)
		s.reclaimPolicy.OnServerStateChange(srv, reclaim.Activated)
	case cbs.NonContending:
		s.cancelQueuedDeadlineTimer(srv.ID)
		srv.ReactivateFromNonContending()
	}

	s.notifyUtilizationChanged(when)

	s.eng.Trace(trace.Record{Time: when, Type: trace.JobArrival, Fields: map[string]any{
		"task_id": uint64(task.ID), "job_id": srv.LastEnqueuedJobID(),
	}})

	if s.dpmPolicy != nil {
		s.dpmPolicy.OnProcessorNeeded(s, when)
	}

	s.requestResched()
}

func (s *Scheduler) onJobCompletion(procID platform.ProcessorID, now simtime.TimePoint) {
	srv := s.processorToServer[procID]
	if srv == nil {
		return
	}
	completedJobID := srv.LastEnqueuedJobID()

	s.cancelBudgetTimer(srv.ID)
	s.accrueExecution(srv, procID, now)
	remaining := srv.RemainingBudget

	s.eng.Trace(trace.Record{Time: now, Type: trace.JobCompletion, Fields: map[string]any{
		"task_id": uint64(srv.TaskID), "job_id": completedJobID, "proc_id": int(procID),
	}})

	if srv.HasPendingJobs() {
		srv.DequeueJob()
	}

	s.plat.Clear(procID, now)

	enterNonContending := remaining > 0 && s.reclaimPolicy.OnEarlyCompletion(srv, remaining)
	if enterNonContending {
		srv.EnterNonContending()
		s.reclaimPolicy.OnServerStateChange(srv, reclaim.EnteredNonContending)
		s.scheduleQueuedDeadlineTimer(srv, now)
	} else {
		srv.CompleteJob()
		if srv.State == cbs.Inactive {
			s.reclaimPolicy.OnServerStateChange(srv, reclaim.Deactivated)
		}
	}

	delete(s.serverToProcessor, srv.ID)
	delete(s.processorToServer, procID)

	if s.dpmPolicy != nil {
		s.dpmPolicy.OnProcessorIdle(s, procID, now)
	}

	s.notifyUtilizationChanged(now)
	s.requestResched()
}

func (s *Scheduler) onDeadlineMiss(procID platform.ProcessorID, now simtime.TimePoint) {
	if s.deadlineMissHandler != nil {
		s.deadlineMissHandler(procID, now)
	}

	s.eng.Trace(trace.Record{Time: now, Type: trace.DeadlineMiss, Fields: map[string]any{"proc_id": int(procID)}})

	switch s.deadlineMissPolicy {
	case Continue:
		return
	case AbortJob:
		if srv := s.processorToServer[procID]; srv != nil {
			s.cancelBudgetTimer(srv.ID)
			if srv.HasPendingJobs() {
				srv.DequeueJob()
			}
			srv.CompleteJob()
			if srv.State == cbs.Inactive {
				s.reclaimPolicy.OnServerStateChange(srv, reclaim.Deactivated)
			}
			delete(s.serverToProcessor, srv.ID)
			delete(s.processorToServer, procID)
			delete(s.lastDispatchTime, srv.ID)
		}
		s.plat.Clear(procID, now)
		s.requestResched()
	case AbortTask:
		if srv := s.processorToServer[procID]; srv != nil {
			s.cancelBudgetTimer(srv.ID)
			delete(s.serverToProcessor, srv.ID)
			delete(s.processorToServer, procID)
			delete(s.lastDispatchTime, srv.ID)
			delete(s.taskToServer, srv.TaskID)
			s.totalUtilization -= srv.Utilization
			if srv.State != cbs.Inactive {
				s.reclaimPolicy.OnServerStateChange(srv, reclaim.Deactivated)
			}
		}
		s.plat.Clear(procID, now)
		s.requestResched()
	case StopSimulation:
		s.plat.Clear(procID, now)
	}
}

func (s *Scheduler) onProcessorAvailable(procID platform.ProcessorID, now simtime.TimePoint) {
	if s.dpmPolicy != nil && s.plat.State(procID) == platform.Idle && len(s.readyServers()) == 0 {
		s.dpmPolicy.OnProcessorIdle(s, procID, now)
	}
	s.requestResched()
}

// --- Deferred dispatch --------------------------------------------------

func (s *Scheduler) onResched() { s.dispatchEDF() }

// requestResched is the only path internal triggers (arrival, completion,
// preemption opportunity, budget exhaustion) use to ask for a dispatch
// pass. It never arms the deferred callback itself; it asks the
// configured allocator, which decides whether and how to grant it.
func (s *Scheduler) requestResched() { s.allocator.CallResched(s) }

// RequestResched is the reschedule grant an Allocator calls back into:
// arming the coalescing deferred callback that runs dispatchEDF once per
// simulated instant. Exported so alloc.Allocator implementations outside
// this package (Identity, MultiCluster) can call it without this package
// depending on theirs.
func (s *Scheduler) RequestResched() { s.eng.RequestDeferred(s.reschedDeferred) }

func (s *Scheduler) readyServers() []*cbs.Server {
	out := make([]*cbs.Server, 0, len(s.servers))
	for _, srv := range s.servers {
		if srv.State == cbs.Ready {
			out = append(out, srv)
		}
	}
	return out
}

func sortByDeadline(servers []*cbs.Server) {
	for i := 1; i < len(servers); i++ {
		for j := i; j > 0; j-- {
			a, b := servers[j-1], servers[j]
			if a.Deadline < b.Deadline || (a.Deadline == b.Deadline && a.ID <= b.ID) {
				break
			}
			servers[j-1], servers[j] = servers[j], servers[j-1]
		}
	}
}

// dispatchEDF is invoked only through the deferred resched callback,
// coalescing every triggering condition within one instant into a single
// pass: gather Ready servers sorted by (deadline, id), preempt any
// Running server with a later deadline than a Ready one, then assign
// available processors to Ready servers in deadline order.
func (s *Scheduler) dispatchEDF() {
	now := s.eng.Time()
	ready := s.readyServers()
	sortByDeadline(ready)

	available := s.availableProcessors()

	for _, procID := range s.processors {
		if s.plat.State(procID) != platform.Running {
			continue
		}
		running := s.processorToServer[procID]
		if running == nil {
			continue
		}
		for _, readySrv := range ready {
			if readySrv.Deadline < running.Deadline {
				s.preemptProcessor(procID, now)
				available = append(available, procID)
				ready = append(ready, running)
				break
			}
		}
	}

	sortByDeadline(ready)

	for _, srv := range ready {
		if len(available) == 0 {
			break
		}
		if srv.State != cbs.Ready {
			continue
		}
		procID := available[len(available)-1]
		available = available[:len(available)-1]
		s.assignServerToProcessor(srv, procID, now)
	}
}

func (s *Scheduler) availableProcessors() []platform.ProcessorID {
	out := make([]platform.ProcessorID, 0, len(s.processors))
	for _, id := range s.processors {
		if s.plat.State(id) == platform.Idle {
			out = append(out, id)
		}
	}
	return out
}

func (s *Scheduler) assignServerToProcessor(srv *cbs.Server, procID platform.ProcessorID, now simtime.TimePoint) {
	j := srv.CurrentJob()
	s.plat.Assign(procID, j, now)
	srv.Dispatch()

	s.serverToProcessor[srv.ID] = procID
	s.processorToServer[procID] = srv
	s.lastDispatchTime[srv.ID] = now

	s.eng.Trace(trace.Record{Time: now, Type: trace.JobStart, Fields: map[string]any{
		"task_id": uint64(srv.TaskID), "job_id": srv.LastEnqueuedJobID(), "proc_id": int(procID),
	}})

	if s.dvfsPolicy != nil {
		s.dvfsPolicy.OnProcessorActive(s, procID, now)
	}

	s.scheduleBudgetTimer(srv, procID, now)
}

func (s *Scheduler) preemptProcessor(procID platform.ProcessorID, now simtime.TimePoint) {
	srv := s.processorToServer[procID]
	if srv == nil {
		return
	}

	s.eng.Trace(trace.Record{Time: now, Type: trace.Preemption, Fields: map[string]any{
		"task_id": uint64(srv.TaskID), "job_id": srv.LastEnqueuedJobID(), "proc_id": int(procID),
	}})

	s.cancelBudgetTimer(srv.ID)
	s.accrueExecution(srv, procID, now)

	srv.Preempt()
	s.plat.Clear(procID, now)

	delete(s.serverToProcessor, srv.ID)
	delete(s.processorToServer, procID)
}

// accrueExecution consumes the wall-clock time elapsed since srv's last
// dispatch, scaled to reference work units by the processor's current
// speed, from both its real budget (always 1:1 with reference work) and
// its policy-defined virtual time (which GRUB/CASH scale differently).
func (s *Scheduler) accrueExecution(srv *cbs.Server, procID platform.ProcessorID, now simtime.TimePoint) {
	dispatchedAt, ok := s.lastDispatchTime[srv.ID]
	if !ok {
		return
	}
	elapsed := now.Sub(dispatchedAt)
	executed := elapsed.Scale(s.plat.Speed(procID))

	srv.SetVirtualTime(s.reclaimPolicy.ComputeVirtualTime(srv, srv.VirtualTime, executed))
	srv.ConsumeBudget(executed)

	delete(s.lastDispatchTime, srv.ID)
}

// --- Budget timers --------------------------------------------------

func (s *Scheduler) scheduleBudgetTimer(srv *cbs.Server, procID platform.ProcessorID, now simtime.TimePoint) {
	speed := s.plat.Speed(procID)
	if speed <= 0 {
		return
	}
	wall := srv.RemainingBudget.Div(speed)
	exhaustAt := now.Add(wall)
	if !exhaustAt.After(now) {
		return
	}
	id := s.eng.AddTimer(exhaustAt, engine.PriorityTimerDefault, func(t simtime.TimePoint) {
		s.onBudgetExhausted(srv, t)
	})
	s.budgetTimer[srv.ID] = id
}

func (s *Scheduler) cancelBudgetTimer(id cbs.ServerID) {
	if tid, ok := s.budgetTimer[id]; ok {
		s.eng.CancelTimer(tid)
		delete(s.budgetTimer, id)
	}
}

func (s *Scheduler) onBudgetExhausted(srv *cbs.Server, now simtime.TimePoint) {
	delete(s.budgetTimer, srv.ID)

	procID, ok := s.serverToProcessor[srv.ID]
	if !ok {
		return
	}

	s.eng.Trace(trace.Record{Time: now, Type: trace.BudgetExhausted, Fields: map[string]any{
		"task_id": uint64(srv.TaskID), "proc_id": int(procID),
	}})

	s.accrueExecution(srv, procID, now)

	extra := s.reclaimPolicy.OnBudgetExhausted(srv)

	s.plat.Clear(procID, now)
	if extra > 0 {
		srv.ResumeWithDonatedBudget(extra)
	} else {
		srv.ExhaustBudget()
	}

	delete(s.serverToProcessor, srv.ID)
	delete(s.processorToServer, procID)

	if s.dpmPolicy != nil {
		s.dpmPolicy.OnProcessorIdle(s, procID, now)
	}

	s.notifyUtilizationChanged(now)
	s.requestResched()
}

func (s *Scheduler) rescheduleBudgetTimersForDomain(domain *platform.ClockDomain, now simtime.TimePoint) {
	for _, procID := range domain.Processors {
		if s.plat.State(procID) != platform.Running {
			continue
		}
		srv := s.processorToServer[procID]
		if srv == nil {
			continue
		}
		s.cancelBudgetTimer(srv.ID)
		s.accrueExecution(srv, procID, now)
		s.lastDispatchTime[srv.ID] = now
		s.scheduleBudgetTimer(srv, procID, now)
	}
}

// --- Queued-deadline timers ------------------------------------------

// scheduleQueuedDeadlineTimer arms a timer at a server's own scheduling
// deadline for a server with no job dispatched to a processor — most
// notably one that just entered NonContending on early completion, which
// must reach_dl -> Inactive at its deadline (spec 4.4) whether or not a
// new job has arrived to queue behind it by then. The default handler
// aborts any queued job when it fires and, for a still-NonContending
// server, completes the reach_dl transition.
func (s *Scheduler) scheduleQueuedDeadlineTimer(srv *cbs.Server, now simtime.TimePoint) {
	id := s.eng.AddTimer(srv.Deadline, engine.PriorityDeadlineMiss, func(t simtime.TimePoint) {
		s.onQueuedDeadlineMiss(srv, t)
	})
	s.queuedDeadlineTimer[srv.ID] = id
}

func (s *Scheduler) cancelQueuedDeadlineTimer(id cbs.ServerID) {
	if tid, ok := s.queuedDeadlineTimer[id]; ok {
		s.eng.CancelTimer(tid)
		delete(s.queuedDeadlineTimer, id)
	}
}

func (s *Scheduler) onQueuedDeadlineMiss(srv *cbs.Server, now simtime.TimePoint) {
	delete(s.queuedDeadlineTimer, srv.ID)

	s.eng.Trace(trace.Record{Time: now, Type: trace.DeadlineMiss, Fields: map[string]any{
		"task_id": uint64(srv.TaskID), "queued": true,
	}})

	if s.queuedDeadlineMissHandler != nil {
		s.queuedDeadlineMissHandler(srv, now)
		return
	}

	if srv.State == cbs.NonContending {
		srv.ReachDeadline()
		s.reclaimPolicy.OnServerStateChange(srv, reclaim.Deactivated)
	}
	srv.AbortQueuedJob()
	s.requestResched()
}

// --- Utilization fan-out ------------------------------------------------

func (s *Scheduler) notifyUtilizationChanged(now simtime.TimePoint) {
	if s.dvfsPolicy == nil {
		return
	}
	notified := make(map[platform.ClockDomainID]bool)
	for _, procID := range s.processors {
		domain := s.plat.ClockDomainOf(procID)
		if notified[domain.ID] {
			continue
		}
		notified[domain.ID] = true
		s.dvfsPolicy.OnUtilizationChanged(s, domain.ID, now)
	}
}
