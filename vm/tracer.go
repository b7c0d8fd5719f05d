package vm

// Tracer visits the GC-things reachable from a root or a thing's children.
// The collector's marker is one implementation; tests and diagnostics supply
// their own.
type Tracer interface {
	// TraceThing is called once per edge. name describes the edge for
	// diagnostics.
	TraceThing(thing GCThing, name string)
}

// TracerFunc adapts a function to the Tracer interface.
type TracerFunc func(thing GCThing, name string)

// TraceThing implements Tracer.
func (f TracerFunc) TraceThing(thing GCThing, name string) { f(thing, name) }

// MarkValue reports v's referent to trc if v is markable. Non-markable
// values are ignored, so callers may pass any Value.
func MarkValue(trc Tracer, v Value, name string) {
	if !v.IsMarkable() {
		return
	}
	MarkGCThing(trc, v.ToGCThing(), name)
}

// MarkValueRange marks every markable value in vs.
func MarkValueRange(trc Tracer, vs []Value, name string) {
	for _, v := range vs {
		MarkValue(trc, v, name)
	}
}

// MarkKey reports k's referent to trc if k references a heap thing.
func MarkKey(trc Tracer, k PropertyKey, name string) {
	if !k.IsGCThing() {
		return
	}
	MarkGCThing(trc, k.ToGCThing(), name)
}

// MarkKeyRange marks every heap-referencing key in ks.
func MarkKeyRange(trc Tracer, ks []PropertyKey, name string) {
	for _, k := range ks {
		MarkKey(trc, k, name)
	}
}

// MarkGCThing dispatches on the thing's kind.
func MarkGCThing(trc Tracer, thing GCThing, name string) {
	switch t := thing.(type) {
	case *Object:
		MarkObject(trc, t, name)
	case *String:
		MarkString(trc, t, name)
	default:
		contractViolation("MarkGCThing", "unknown thing %T", thing)
	}
}

// MarkString reports s to trc.
func MarkString(trc Tracer, s *String, name string) {
	if debugChecks && s.finalized {
		contractViolation("MarkString", "%s: string was already swept", name)
	}
	trc.TraceThing(s, name)
}

// MarkObject reports obj to trc.
func MarkObject(trc Tracer, obj *Object, name string) {
	if debugChecks && obj.finalized {
		contractViolation("MarkObject", "%s: object was already swept", name)
	}
	trc.TraceThing(obj, name)
}

// TraceChildren reports every edge out of thing.
func TraceChildren(trc Tracer, thing GCThing) {
	thing.traceChildren(trc)
}

// TraceKindOf returns the trace kind of a markable value.
func TraceKindOf(v Value) TraceKind {
	return v.TraceKind()
}
