package vm

// ---------------------------------------------------------------------------
// Anchor: scoped rooting guard
// ---------------------------------------------------------------------------
//
// The collector does not scan Go stacks. A GC-thing held only in a Go local
// is invisible to it and may be swept at the next collection point. An
// Anchor publishes the value in its Context's anchor stack, which the
// collector does scan, for as long as the anchor is live:
//
//	a := vm.NewAnchor(cx, str)
//	defer a.Release()
//	chars := a.Get().Chars() // derived pointer, valid until Release
//
// Anchors nest strictly: Release must undo the most recent NewAnchor on the
// same Context. Debug builds check this, which also catches anchors that
// escape the scope that created them.

// AnchorPermitted is the closed set of types that may be anchored.
type AnchorPermitted interface {
	*Object | *String | Value
}

// noCopy makes go vet's copylocks check reject copies of the embedding
// struct.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Anchor keeps one value rooted until Release. It must not be copied.
type Anchor[T AnchorPermitted] struct {
	_    noCopy
	cx   *Context
	slot int
	hold T
}

// NewAnchor roots v on cx's anchor stack. Pair it with a deferred Release.
func NewAnchor[T AnchorPermitted](cx *Context, v T) Anchor[T] {
	return Anchor[T]{cx: cx, slot: cx.pushAnchor(anchorValue(v)), hold: v}
}

// Get returns the anchored value.
func (a *Anchor[T]) Get() T {
	if debugChecks && a.cx == nil {
		contractViolation("Anchor.Get", "anchor already released")
	}
	return a.hold
}

// Set replaces the anchored value; the new value is rooted immediately.
func (a *Anchor[T]) Set(v T) {
	if debugChecks && a.cx == nil {
		contractViolation("Anchor.Set", "anchor already released")
	}
	a.hold = v
	a.cx.setAnchor(a.slot, anchorValue(v))
}

// Clear replaces the anchored value with the zero value of T.
func (a *Anchor[T]) Clear() {
	var zero T
	a.Set(zero)
}

// Release unroots the value. Anchors must be released in reverse order of
// creation.
func (a *Anchor[T]) Release() {
	if debugChecks && a.cx == nil {
		contractViolation("Anchor.Release", "anchor released twice")
	}
	a.cx.popAnchor(a.slot)
	anchorFence(a.hold)
	a.cx = nil
}

func anchorValue[T AnchorPermitted](v T) Value {
	switch x := any(v).(type) {
	case *Object:
		return ObjectOrNullValue(x)
	case *String:
		if x == nil {
			return Undefined
		}
		return StringValue(x)
	case Value:
		return x
	}
	return Undefined
}

// pushAnchor, setAnchor and popAnchor maintain the anchor stack.
func (cx *Context) pushAnchor(v Value) int {
	cx.anchorMu.Lock()
	defer cx.anchorMu.Unlock()
	if debugChecks && cx.destroyed {
		contractViolation("NewAnchor", "context destroyed")
	}
	cx.anchors = append(cx.anchors, v)
	return len(cx.anchors) - 1
}

func (cx *Context) setAnchor(slot int, v Value) {
	cx.anchorMu.Lock()
	cx.anchors[slot] = v
	cx.anchorMu.Unlock()
}

func (cx *Context) popAnchor(slot int) {
	cx.anchorMu.Lock()
	defer cx.anchorMu.Unlock()
	if debugChecks && slot != len(cx.anchors)-1 {
		contractViolation("Anchor.Release", "slot %d released out of order (top is %d)", slot, len(cx.anchors)-1)
	}
	cx.anchors[slot] = Undefined
	cx.anchors = cx.anchors[:slot]
}

// AnchorDepth returns the number of live anchors on cx.
func (cx *Context) AnchorDepth() int {
	cx.anchorMu.Lock()
	defer cx.anchorMu.Unlock()
	return len(cx.anchors)
}
