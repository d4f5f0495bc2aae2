// Package trace defines the out-of-scope trace writer boundary: the
// structured event records the simulator core emits, and the Sink
// interface collaborators implement to persist or render them. Grounded
// on original_source/protocols/src/traces.cpp's record field set.
package trace

import "github.com/halvorsen/schedsim-go/pkg/simtime"

// Type tags the kind of a trace Record. The required set is fixed by the
// specification's external trace file contract.
type Type string

const (
	JobArrival        Type = "job_arrival"
	JobStart          Type = "job_start"
	JobCompletion     Type = "job_completion"
	Preemption        Type = "preemption"
	BudgetExhausted   Type = "budget_exhausted"
	DeadlineMiss      Type = "deadline_miss"
	VirtualTimeUpdate Type = "virtual_time_update"
	FrequencyUpdate   Type = "frequency_update"
	ProcActivated     Type = "proc_activated"
	ProcIdled         Type = "proc_idled"
	ProcSleep         Type = "proc_sleep"
	TaskRejected      Type = "task_rejected"
	Resched           Type = "resched"
	SimFinished       Type = "sim_finished"
)

// Record is one emitted trace entry. Fields is a small key/value bag; using
// map[string]any keeps Sink implementations (JSON, SQL) decoupled from any
// one event's specific shape, matching how the original C++ trace struct
// carried a variant of named fields per event type.
type Record struct {
	Time   simtime.TimePoint `json:"time"`
	Type   Type              `json:"type"`
	Fields map[string]any    `json:"fields,omitempty"`
}

// Sink is the boundary interface consumed by the engine. Implementations
// (NopSink, MemorySink, internal/tracedb.Sink) are collaborators, not part of the
// core's control flow.
type Sink interface {
	Write(Record)
}

// NopSink discards every record; the default when no sink is configured.
type NopSink struct{}

func (NopSink) Write(Record) {}

// MemorySink collects records in memory, used heavily by the core's own
// tests to assert on emitted event order without an I/O dependency.
type MemorySink struct {
	Records []Record
}

func (m *MemorySink) Write(r Record) { m.Records = append(m.Records, r) }

// ByType returns the subsequence of records matching any of the given types.
func (m *MemorySink) ByType(types ...Type) []Record {
	want := make(map[Type]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	out := make([]Record, 0)
	for _, r := range m.Records {
		if want[r.Type] {
			out = append(out, r)
		}
	}
	return out
}
