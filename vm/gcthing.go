package vm

import (
	"unicode/utf16"
	"unsafe"
)

// ---------------------------------------------------------------------------
// GC-things
// ---------------------------------------------------------------------------

// TraceKind classifies a GC-thing for the tracer.
type TraceKind uint8

const (
	TraceObject TraceKind = iota
	TraceString
)

func (k TraceKind) String() string {
	switch k {
	case TraceObject:
		return "object"
	case TraceString:
		return "string"
	default:
		return "unknown"
	}
}

// GCThing is a heap-allocated, collector-managed referent. *String and
// *Object are the only implementations.
type GCThing interface {
	TraceKind() TraceKind
	header() *thingHeader
	traceChildren(trc Tracer)
	finalize()
	address() uintptr
}

// thingHeader is the collector's per-thing bookkeeping.
type thingHeader struct {
	rt        *Runtime
	size      int64
	marked    bool
	finalized bool
	atom      bool // canonical entry of the intern table
	pinned    bool // interned: the intern table roots it
}

func (h *thingHeader) header() *thingHeader { return h }

// IsFinalized reports whether the collector has reclaimed the thing. Only
// meaningful while the caller holds its own Go reference.
func (h *thingHeader) IsFinalized() bool { return h.finalized }

// addrOf and pointerFromPayload move addresses in and out of payloads. The
// runtime's thing table keeps every allocated thing reachable for Go's own
// collector until our sweep drops it; after that a payload is dangling,
// exactly as a collected GC-thing would be.
func addrOf(p unsafe.Pointer) uint64 {
	return uint64(uintptr(p))
}

func pointerFromPayload(payload uint64) unsafe.Pointer {
	addr := uintptr(payload)
	return *(*unsafe.Pointer)(unsafe.Pointer(&addr))
}

// ---------------------------------------------------------------------------
// String
// ---------------------------------------------------------------------------

// poisonChar overwrites the characters of swept strings.
const poisonChar uint16 = 0xDADA

// String is an immutable UTF-16 string in the GC heap.
type String struct {
	thingHeader
	chars []uint16
}

// TraceKind implements GCThing.
func (s *String) TraceKind() TraceKind { return TraceString }

func (s *String) address() uintptr { return uintptr(unsafe.Pointer(s)) }

func (s *String) traceChildren(Tracer) {}

func (s *String) finalize() {
	for i := range s.chars {
		s.chars[i] = poisonChar
	}
	s.finalized = true
}

// Chars returns the string's character storage. The slice is a derived
// pointer: the collector does not know it belongs to s, so s itself must be
// anchored for as long as the slice is used.
func (s *String) Chars() []uint16 {
	return s.chars
}

// Len returns the length in UTF-16 code units.
func (s *String) Len() int {
	return len(s.chars)
}

// Text decodes the string to Go UTF-8.
func (s *String) Text() string {
	return string(utf16.Decode(s.chars))
}

// Equal compares contents.
func (s *String) Equal(other *String) bool {
	if s == other {
		return true
	}
	if len(s.chars) != len(other.chars) {
		return false
	}
	for i, c := range s.chars {
		if other.chars[i] != c {
			return false
		}
	}
	return true
}

// IsAtom reports whether s is the canonical intern-table entry for its
// contents.
func (s *String) IsAtom() bool {
	return s.atom
}

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

// NativeFunc is the body of a function object. It runs "user code": it may
// allocate, collect, and fail.
type NativeFunc func(cx *Context, this Value, args []Value) (Value, error)

// Object is a GC-heap object. It carries just enough structure to give the
// tracer something to walk: a prototype, ordered own properties and, for
// wrapper objects, a primitive value.
type Object struct {
	thingHeader
	class     string
	proto     *Object
	keys      []PropertyKey
	props     map[PropertyKey]Value
	primitive Value
	call      NativeFunc
}

// TraceKind implements GCThing.
func (o *Object) TraceKind() TraceKind { return TraceObject }

func (o *Object) address() uintptr { return uintptr(unsafe.Pointer(o)) }

func (o *Object) traceChildren(trc Tracer) {
	if o.proto != nil {
		MarkObject(trc, o.proto, "proto")
	}
	for _, k := range o.keys {
		MarkKey(trc, k, "key")
		MarkValue(trc, o.props[k], "slot")
	}
	MarkValue(trc, o.primitive, "primitive")
}

func (o *Object) finalize() {
	o.proto = nil
	o.keys = nil
	o.props = nil
	o.call = nil
	o.finalized = true
}

// Class returns the object's class name.
func (o *Object) Class() string { return o.class }

// Proto returns the prototype, or nil.
func (o *Object) Proto() *Object { return o.proto }

// SetProto replaces the prototype.
func (o *Object) SetProto(proto *Object) { o.proto = proto }

// IsCallable reports whether the object is a function.
func (o *Object) IsCallable() bool { return o.call != nil }

// PrimitiveValue returns the wrapped primitive of a Boolean, Number or
// String wrapper object.
func (o *Object) PrimitiveValue() (Value, bool) {
	if o.primitive == Undefined {
		return Undefined, false
	}
	return o.primitive, true
}

// GetOwn returns an own property.
func (o *Object) GetOwn(key PropertyKey) (Value, bool) {
	v, ok := o.props[key]
	return v, ok
}

// Get looks a property up along the prototype chain.
func (o *Object) Get(key PropertyKey) (Value, bool) {
	for obj := o; obj != nil; obj = obj.proto {
		if v, ok := obj.props[key]; ok {
			return v, true
		}
	}
	return Undefined, false
}

// Set defines or overwrites an own property. key must be a real key.
func (o *Object) Set(key PropertyKey, v Value) {
	if debugChecks && (key.IsVoid() || key.IsEmpty()) {
		contractViolation("Object.Set", "indexing with %s", key)
	}
	if o.props == nil {
		o.props = make(map[PropertyKey]Value)
	}
	if _, ok := o.props[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.props[key] = v
}

// Delete removes an own property, reporting whether it existed.
func (o *Object) Delete(key PropertyKey) bool {
	if _, ok := o.props[key]; !ok {
		return false
	}
	delete(o.props, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// NumProperties returns the number of own properties.
func (o *Object) NumProperties() int { return len(o.keys) }

// PropertyIterator walks an object's own keys in definition order.
type PropertyIterator struct {
	obj  *Object
	next int
}

// NewPropertyIterator starts an iteration over obj's own keys.
func NewPropertyIterator(obj *Object) *PropertyIterator {
	return &PropertyIterator{obj: obj}
}

// Next returns the next key, or KeyVoid once the iteration is exhausted.
// Callers must test for KeyVoid and never index with it.
func (it *PropertyIterator) Next() PropertyKey {
	if it.next >= len(it.obj.keys) {
		return KeyVoid
	}
	k := it.obj.keys[it.next]
	it.next++
	return k
}
