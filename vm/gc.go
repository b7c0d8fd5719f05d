package vm

import (
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Collector: stop-the-world mark/sweep over the runtime's thing table
// ---------------------------------------------------------------------------

// GCReason records what started a collection.
type GCReason string

const (
	ReasonAPI          GCReason = "api"
	ReasonMaybeGC      GCReason = "maybe-gc"
	ReasonAllocTrigger GCReason = "alloc-trigger"
	ReasonLastDitch    GCReason = "last-ditch"
	ReasonZeal         GCReason = "zeal"
	ReasonBackground   GCReason = "background"
)

// GCStatus is the phase reported to GC callbacks.
type GCStatus int

const (
	GCBegin GCStatus = iota
	GCMarkEnd
	GCFinalizeEnd
	GCEnd
)

func (s GCStatus) String() string {
	switch s {
	case GCBegin:
		return "begin"
	case GCMarkEnd:
		return "mark-end"
	case GCFinalizeEnd:
		return "finalize-end"
	case GCEnd:
		return "end"
	default:
		return fmt.Sprintf("gc-status(%d)", int(s))
	}
}

// GCCallback observes collection phases. It runs with the runtime locked
// and must not allocate or call Runtime methods other than
// IsAboutToBeFinalized, LastGCStats and HeapBytes.
type GCCallback func(rt *Runtime, status GCStatus)

// GCStats describes one collection.
type GCStats struct {
	Number       uint64
	Reason       GCReason
	Marked       int
	SweptStrings int
	SweptObjects int
	SweptAtoms   int
	BytesBefore  int64
	BytesAfter   int64
	Duration     time.Duration
	Timestamp    time.Time
}

// Swept returns the total number of reclaimed things.
func (s *GCStats) Swept() int { return s.SweptStrings + s.SweptObjects }

// AddGCCallback registers cb for every later collection.
func (rt *Runtime) AddGCCallback(cb GCCallback) {
	rt.mu.Lock()
	rt.callbacks = append(rt.callbacks, cb)
	rt.mu.Unlock()
}

// LastGCStats returns the most recent collection's statistics, or nil.
func (rt *Runtime) LastGCStats() *GCStats { return rt.lastStats.Load() }

// IsAboutToBeFinalized reports whether thing was left unmarked by the
// collection in progress. Only valid from a GCMarkEnd or GCFinalizeEnd
// callback; at GCFinalizeEnd the unmarked things have already been
// finalized. Mark bits are cleared after the GCFinalizeEnd callbacks.
func (rt *Runtime) IsAboutToBeFinalized(thing GCThing) bool {
	if debugChecks && (!rt.collecting || (rt.phase != GCMarkEnd && rt.phase != GCFinalizeEnd)) {
		contractViolation("IsAboutToBeFinalized", "called outside a GCMarkEnd or GCFinalizeEnd callback")
	}
	return !thing.header().marked
}

// Contains reports whether v references a thing currently allocated in
// rt. It inspects the payload address only and never dereferences it.
func (rt *Runtime) Contains(v Value) bool {
	if !v.IsGCThing() {
		return false
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.containsLocked(uint64(v))
}

func (rt *Runtime) containsLocked(word uint64) bool {
	thing, ok := rt.things[uintptr(word&payloadMask)]
	if !ok {
		return false
	}
	return thing.TraceKind() == TraceKindBits(word)
}

// ContainsKey reports whether k is usable as a key in rt without
// dereferencing it: int keys must carry a 32-bit word, string keys must
// name a live atom and object keys a live object. Sentinels are accepted.
func (rt *Runtime) ContainsKey(k PropertyKey) bool {
	switch {
	case k == KeyVoid || k == KeyEmpty || k == KeyDefaultXMLNamespace:
		return true
	case k.IsInt():
		return uint64(k)>>32 == 0
	case k.IsObject():
		rt.mu.Lock()
		defer rt.mu.Unlock()
		thing, ok := rt.things[uintptr(k)&^keyTypeMask]
		return ok && thing.TraceKind() == TraceObject
	case k.IsString():
		rt.mu.Lock()
		defer rt.mu.Unlock()
		thing, ok := rt.things[uintptr(k)]
		return ok && thing.TraceKind() == TraceString && thing.header().atom
	}
	return false
}

// ValidateRawBits turns bits received from outside the process into a
// Value, rejecting impossible encodings and GC-thing references that do
// not name a live thing of this heap.
func (rt *Runtime) ValidateRawBits(bits uint64) (Value, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.validateRawBitsLocked(bits)
}

func (rt *Runtime) validateRawBitsLocked(bits uint64) (Value, error) {
	if !ValidBits(bits) {
		return Undefined, fmt.Errorf("0x%016x: %w", bits, ErrInvalidBits)
	}
	v := FromRawBits(bits)
	if v.IsGCThing() && !rt.containsLocked(bits) {
		return Undefined, fmt.Errorf("0x%016x: %w", bits, ErrForeignThing)
	}
	if v.IsMagic() && bits&payloadMask >= magicPointerMin {
		return Undefined, fmt.Errorf("0x%016x: magic object payload: %w", bits, ErrForeignThing)
	}
	return v, nil
}

// GC runs a full collection and returns its statistics.
func (cx *Context) GC() *GCStats {
	cx.rt.mu.Lock()
	defer cx.rt.mu.Unlock()
	return cx.rt.collectForLocked(cx, ReasonAPI)
}

// MaybeGC collects if enough has been allocated since the previous
// collection, reporting whether it did.
func (cx *Context) MaybeGC() bool {
	rt := cx.rt
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !rt.opts.Zeal && rt.bytes.Load()-rt.bytesAtLastGC < rt.opts.TriggerBytes {
		return false
	}
	rt.collectForLocked(cx, ReasonMaybeGC)
	return true
}

func (rt *Runtime) collectLocked(reason GCReason) *GCStats {
	if rt.collecting {
		contractViolation("GC", "collection re-entered from a GC callback")
	}
	rt.collecting = true
	defer func() { rt.collecting = false }()

	start := time.Now()
	rt.gcNumber++
	stats := &GCStats{
		Number:      rt.gcNumber,
		Reason:      reason,
		BytesBefore: rt.bytes.Load(),
		Timestamp:   start,
	}
	rt.notify(GCBegin)

	m := &marker{rt: rt}
	rt.traceRoots(m)
	m.drain()
	stats.Marked = m.count
	rt.notify(GCMarkEnd)

	for text, atom := range rt.atoms {
		if !atom.marked {
			delete(rt.atoms, text)
			stats.SweptAtoms++
		}
	}
	for addr, thing := range rt.things {
		h := thing.header()
		if h.marked {
			continue
		}
		switch thing.TraceKind() {
		case TraceString:
			stats.SweptStrings++
		case TraceObject:
			stats.SweptObjects++
		}
		rt.bytes.Add(-h.size)
		thing.finalize()
		delete(rt.things, addr)
	}
	rt.notify(GCFinalizeEnd)

	for _, thing := range rt.things {
		thing.header().marked = false
	}

	stats.BytesAfter = rt.bytes.Load()
	stats.Duration = time.Since(start)
	rt.bytesAtLastGC = stats.BytesAfter
	rt.lastStats.Store(stats)
	rt.notify(GCEnd)

	gcLog.Debugf("gc #%d (%s): marked %d, swept %d strings %d objects, %d -> %d bytes in %s",
		stats.Number, reason, stats.Marked, stats.SweptStrings, stats.SweptObjects,
		stats.BytesBefore, stats.BytesAfter, stats.Duration)
	return stats
}

func (rt *Runtime) notify(status GCStatus) {
	rt.phase = status
	for _, cb := range rt.callbacks {
		cb(rt, status)
	}
}

// traceRoots reports every recognized root: the persistent root table,
// pinned atoms, and the anchor stack of every context.
func (rt *Runtime) traceRoots(trc Tracer) {
	for _, r := range rt.roots {
		r.trace(trc)
	}
	for _, atom := range rt.atoms {
		if atom.pinned {
			MarkString(trc, atom, "interned")
		}
	}
	for cx := range rt.contexts {
		cx.anchorMu.Lock()
		MarkValueRange(trc, cx.anchors, "anchor")
		cx.anchorMu.Unlock()
	}
}

// marker is the collector's Tracer.
type marker struct {
	rt    *Runtime
	stack []GCThing
	count int
}

func (m *marker) TraceThing(thing GCThing, name string) {
	h := thing.header()
	if debugChecks && h.rt != m.rt {
		contractViolation("GC", "%s: %s from another runtime", name, thing.TraceKind())
	}
	if h.marked {
		return
	}
	h.marked = true
	m.count++
	m.stack = append(m.stack, thing)
}

func (m *marker) drain() {
	for len(m.stack) > 0 {
		thing := m.stack[len(m.stack)-1]
		m.stack = m.stack[:len(m.stack)-1]
		thing.traceChildren(m)
	}
}
