package vm

// ValueHolder is a Value that roots itself in the persistent root table
// while held. It is meant to live inside longer-lived Go structs where an
// Anchor's strict nesting does not fit. A held ValueHolder must not be
// moved.
type ValueHolder struct {
	rt  *Runtime
	val Value
}

// Hold roots the holder in rt. Holding twice in the same runtime is a
// no-op; holding in a different runtime first releases the old root.
func (h *ValueHolder) Hold(rt *Runtime) {
	if h.rt == rt {
		return
	}
	h.Release()
	rt.AddValueRoot(&h.val, "ValueHolder")
	h.rt = rt
}

// Release unroots the holder and resets it to undefined. A holder that
// was never held keeps its value.
func (h *ValueHolder) Release() {
	if h.rt == nil {
		return
	}
	h.rt.RemoveRoot(&h.val)
	h.rt = nil
	h.val = Undefined
}

// IsHeld reports whether the holder is rooted.
func (h *ValueHolder) IsHeld() bool { return h.rt != nil }

// Get returns the held value.
func (h *ValueHolder) Get() Value { return h.val }

// Set stores v. GC-things may only be stored while held.
func (h *ValueHolder) Set(v Value) {
	if debugChecks && v.IsGCThing() && h.rt == nil {
		contractViolation("ValueHolder.Set", "storing %s in an unheld holder", v.Tag())
	}
	h.val = v
}

// ToObject returns the held object, or nil when the holder does not hold
// one.
func (h *ValueHolder) ToObject() *Object {
	if !h.val.IsObject() {
		return nil
	}
	if debugChecks && h.rt == nil {
		contractViolation("ValueHolder.ToObject", "holder not held")
	}
	return h.val.ToObject()
}

// RootedVector is a growable list of values that is rooted for its whole
// lifetime.
type RootedVector struct {
	rt     *Runtime
	values []Value
}

// NewRootedVector creates an empty vector rooted in rt. Call Release when
// done with it.
func NewRootedVector(rt *Runtime, name string) *RootedVector {
	rv := &RootedVector{rt: rt}
	if name == "" {
		name = callerName(2)
	}
	rt.AddVectorRoot(&rv.values, name)
	return rv
}

// Append adds v to the vector.
func (rv *RootedVector) Append(v Value) {
	if debugChecks && rv.rt == nil {
		contractViolation("RootedVector.Append", "vector released")
	}
	rv.rt.mu.Lock()
	rv.values = append(rv.values, v)
	rv.rt.mu.Unlock()
}

// AppendRawBits validates bits against the vector's runtime and appends
// the resulting value. Validation and rooting happen under one lock, so
// no collection can run in between.
func (rv *RootedVector) AppendRawBits(bits uint64) (Value, error) {
	if debugChecks && rv.rt == nil {
		contractViolation("RootedVector.AppendRawBits", "vector released")
	}
	rv.rt.mu.Lock()
	defer rv.rt.mu.Unlock()
	v, err := rv.rt.validateRawBitsLocked(bits)
	if err != nil {
		return Undefined, err
	}
	rv.values = append(rv.values, v)
	return v, nil
}

// At returns the i'th value.
func (rv *RootedVector) At(i int) Value { return rv.values[i] }

// Len returns the number of values.
func (rv *RootedVector) Len() int { return len(rv.values) }

// Values returns the backing slice. It stays rooted until Release.
func (rv *RootedVector) Values() []Value { return rv.values }

// Release unroots the vector.
func (rv *RootedVector) Release() {
	if rv.rt == nil {
		return
	}
	rv.rt.RemoveRoot(&rv.values)
	rv.rt = nil
	rv.values = nil
}
