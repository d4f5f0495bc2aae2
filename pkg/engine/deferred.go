package engine

// DeferredID identifies a registered deferred callback. dispatch_edf is the
// only consumer of this mechanism in the core, but the mechanism itself is
// general.
type DeferredID uint64

type deferredEntry struct {
	id        DeferredID
	requested bool
	cb        func()
}

// deferredRegistry holds the set of deferred callbacks and their requested
// flags, drained once per simulated instant after all timers due at that
// instant have fired.
type deferredRegistry struct {
	next    DeferredID
	entries map[DeferredID]*deferredEntry
	order   []DeferredID // registration order, for deterministic draining
}

func newDeferredRegistry() *deferredRegistry {
	return &deferredRegistry{entries: make(map[DeferredID]*deferredEntry)}
}

func (r *deferredRegistry) register(cb func()) DeferredID {
	r.next++
	id := r.next
	r.entries[id] = &deferredEntry{id: id, cb: cb}
	r.order = append(r.order, id)
	return id
}

func (r *deferredRegistry) request(id DeferredID) {
	if e, ok := r.entries[id]; ok {
		e.requested = true
	}
}

// drain repeatedly invokes every requested callback, in registration order,
// until a full pass finds nothing requested. A single dispatch_edf request
// coalesces to one call; the loop exists so a callback's own side effects
// (another component requesting a different deferred id) still resolve
// before simulated time advances, per the engine's ordering contract.
func (r *deferredRegistry) drain() {
	for {
		var pending []*deferredEntry
		for _, id := range r.order {
			e := r.entries[id]
			if e.requested {
				e.requested = false
				pending = append(pending, e)
			}
		}
		if len(pending) == 0 {
			return
		}
		for _, e := range pending {
			e.cb()
		}
	}
}
