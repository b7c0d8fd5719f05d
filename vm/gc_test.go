package vm

import (
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Collection basics
// ---------------------------------------------------------------------------

func TestGCSweepsUnrooted(t *testing.T) {
	cx := newTestContext(t, Options{})
	rt := cx.Runtime()
	for i := 0; i < 10; i++ {
		if _, err := cx.NewStringCopy("garbage"); err != nil {
			t.Fatal(err)
		}
	}
	if rt.HeapBytes() == 0 {
		t.Fatal("HeapBytes() = 0 after allocating")
	}
	stats := cx.GC()
	if stats.SweptStrings != 10 {
		t.Errorf("SweptStrings = %d, want 10", stats.SweptStrings)
	}
	if stats.BytesAfter != 0 || rt.HeapBytes() != 0 {
		t.Errorf("heap not empty after sweep: %d", rt.HeapBytes())
	}
	if rt.LastGCStats() != stats {
		t.Error("LastGCStats() is not the latest collection")
	}
	if stats.Reason != ReasonAPI || stats.Number != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestGCTracesObjectGraph(t *testing.T) {
	cx := newTestContext(t, Options{})
	rt := cx.Runtime()
	proto, _ := cx.NewObject("Proto", nil)
	pa := NewAnchor(cx, proto)
	obj, _ := cx.NewObject("Object", proto)
	rt.AddObjectRoot(&obj, "graph")
	name, _ := cx.Atomize("name")
	na := NewAnchor(cx, name)
	val, _ := cx.NewStringCopy("value")
	va := NewAnchor(cx, val)
	keyObj, _ := cx.NewObject("Key", nil)
	ka := NewAnchor(cx, keyObj)

	cx.DefineProperty(obj, KeyFromInterned(cx, name), StringValue(val))
	cx.DefineProperty(obj, KeyFromObject(keyObj), True)

	ka.Release()
	va.Release()
	na.Release()
	pa.Release()

	cx.GC()
	for _, thing := range []GCThing{proto, name, val, keyObj} {
		if thing.header().finalized {
			t.Errorf("%s reachable from a rooted object was swept", thing.TraceKind())
		}
	}

	rt.RemoveRoot(&obj)
	stats := cx.GC()
	if stats.Swept() != 5 {
		t.Errorf("Swept() = %d after dropping the root, want 5", stats.Swept())
	}
	if stats.SweptAtoms != 1 {
		t.Errorf("SweptAtoms = %d, want 1", stats.SweptAtoms)
	}
}

func TestGCZealCollectsOnAllocation(t *testing.T) {
	cx := newTestContext(t, Options{Zeal: true})
	first, _ := cx.NewStringCopy("first")
	if _, err := cx.NewStringCopy("second"); err != nil {
		t.Fatal(err)
	}
	if !first.IsFinalized() {
		t.Error("zeal should collect the unrooted string at the next allocation")
	}
}

func TestMaybeGC(t *testing.T) {
	cx := newTestContext(t, Options{TriggerBytes: 1 << 10})
	if cx.MaybeGC() {
		t.Error("MaybeGC collected an empty heap")
	}
	if _, err := cx.NewStringCopy(strings.Repeat("x", 1<<10)); err != nil {
		t.Fatal(err)
	}
	if !cx.MaybeGC() {
		t.Error("MaybeGC did not collect past the trigger")
	}
	if got := cx.Runtime().LastGCStats().Reason; got != ReasonMaybeGC {
		t.Errorf("Reason = %s, want %s", got, ReasonMaybeGC)
	}
}

func TestOutOfMemory(t *testing.T) {
	cx := newTestContext(t, Options{MaxBytes: 256})
	s, err := cx.NewStringCopy("keep")
	if err != nil {
		t.Fatal(err)
	}
	a := NewAnchor(cx, s)
	defer a.Release()

	_, err = cx.NewStringCopy(strings.Repeat("y", 200))
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("err = %v, want ErrOutOfMemory", err)
	}
	if got := cx.Runtime().LastGCStats().Reason; got != ReasonLastDitch {
		t.Errorf("Reason = %s, want %s", got, ReasonLastDitch)
	}
	if s.IsFinalized() {
		t.Error("last-ditch GC swept a rooted string")
	}
}

func TestLastDitchReclaimsGarbage(t *testing.T) {
	cx := newTestContext(t, Options{MaxBytes: 256})
	if _, err := cx.NewStringCopy(strings.Repeat("z", 80)); err != nil {
		t.Fatal(err)
	}
	if _, err := cx.NewStringCopy(strings.Repeat("z", 80)); err != nil {
		t.Fatalf("allocation after garbage = %v, want success", err)
	}
}

// ---------------------------------------------------------------------------
// Callbacks
// ---------------------------------------------------------------------------

func TestGCCallbacks(t *testing.T) {
	cx := newTestContext(t, Options{})
	rt := cx.Runtime()
	kept, _ := cx.NewStringCopy("kept")
	a := NewAnchor(cx, kept)
	defer a.Release()
	doomed, _ := cx.NewStringCopy("doomed")

	var phases []GCStatus
	dying := map[GCStatus][2]bool{}
	rt.AddGCCallback(func(rt *Runtime, status GCStatus) {
		phases = append(phases, status)
		switch status {
		case GCBegin:
			mustPanic(t, "IsAboutToBeFinalized at GCBegin", func() { rt.IsAboutToBeFinalized(kept) })
		case GCMarkEnd, GCFinalizeEnd:
			dying[status] = [2]bool{rt.IsAboutToBeFinalized(kept), rt.IsAboutToBeFinalized(doomed)}
		}
	})
	cx.GC()

	want := []GCStatus{GCBegin, GCMarkEnd, GCFinalizeEnd, GCEnd}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d = %s, want %s", i, phases[i], want[i])
		}
	}
	for _, status := range []GCStatus{GCMarkEnd, GCFinalizeEnd} {
		got := dying[status]
		if got[0] {
			t.Errorf("at %s: IsAboutToBeFinalized(kept) = true", status)
		}
		if !got[1] {
			t.Errorf("at %s: IsAboutToBeFinalized(doomed) = false", status)
		}
	}
	if kept.IsFinalized() || !doomed.IsFinalized() {
		t.Errorf("after GC: kept finalized=%v, doomed finalized=%v", kept.IsFinalized(), doomed.IsFinalized())
	}

	// Mark bits do not leak into the next collection.
	a.Clear()
	cx.GC()
	if !kept.IsFinalized() {
		t.Error("kept survived a second collection after its anchor was cleared")
	}
	mustPanic(t, "IsAboutToBeFinalized outside GC", func() { rt.IsAboutToBeFinalized(kept) })
}

// ---------------------------------------------------------------------------
// Persistent roots and holders
// ---------------------------------------------------------------------------

func TestValueRoot(t *testing.T) {
	cx := newTestContext(t, Options{})
	rt := cx.Runtime()
	s, _ := cx.NewStringCopy("rooted")
	v := StringValue(s)
	rt.AddValueRoot(&v, "test value")

	cx.GC()
	if s.IsFinalized() {
		t.Fatal("value root did not keep its string")
	}
	rt.RemoveRoot(&v)
	cx.GC()
	if !s.IsFinalized() {
		t.Error("string survived after its root was removed")
	}
}

func TestPointerRoots(t *testing.T) {
	cx := newTestContext(t, Options{})
	rt := cx.Runtime()
	var s *String
	var obj *Object
	rt.AddStringRoot(&s, "str")
	rt.AddObjectRoot(&obj, "obj")
	defer rt.RemoveRoot(&s)
	defer rt.RemoveRoot(&obj)

	s, _ = cx.NewStringCopy("s")
	obj, _ = cx.NewObject("Object", nil)
	cx.GC()
	if s.IsFinalized() || obj.IsFinalized() {
		t.Error("pointer roots did not keep their referents")
	}
}

func TestRootDefaultName(t *testing.T) {
	cx := newTestContext(t, Options{})
	rt := cx.Runtime()
	var v Value
	rt.AddValueRoot(&v, "")
	defer rt.RemoveRoot(&v)

	var names []string
	rt.DumpNamedRoots(func(info RootInfo) { names = append(names, info.Name) })
	if len(names) != 1 || !strings.HasPrefix(names[0], "gc_test.go:") {
		t.Errorf("names = %v, want caller file:line", names)
	}
}

func TestMapGCRoots(t *testing.T) {
	cx := newTestContext(t, Options{})
	rt := cx.Runtime()
	var a, b, c Value
	rt.AddValueRoot(&a, "a")
	rt.AddValueRoot(&b, "b")
	rt.AddValueRoot(&c, "c")

	n := rt.MapGCRoots(func(info RootInfo) RootMapAction {
		if info.Name == "b" {
			return RootMapRemove | RootMapStop
		}
		return RootMapNext
	})
	if n != 2 {
		t.Errorf("MapGCRoots visited %d roots, want 2", n)
	}
	if rt.RootCount() != 2 {
		t.Errorf("RootCount() = %d, want 2", rt.RootCount())
	}

	var names []string
	rt.DumpNamedRoots(func(info RootInfo) { names = append(names, info.Name) })
	if strings.Join(names, ",") != "a,c" {
		t.Errorf("remaining roots = %v, want [a c]", names)
	}
	rt.RemoveRoot(&a)
	rt.RemoveRoot(&c)
}

// The visitor may use the rest of the runtime API.
func TestMapGCRootsReentrant(t *testing.T) {
	cx := newTestContext(t, Options{})
	rt := cx.Runtime()
	s, _ := cx.NewStringCopy("rooted")
	a, b := StringValue(s), Int32Value(1)
	rt.AddValueRoot(&a, "a")
	rt.AddValueRoot(&b, "b")
	var added Value

	n := rt.MapGCRoots(func(info RootInfo) RootMapAction {
		switch info.Name {
		case "a":
			if rt.RootCount() != 2 {
				t.Errorf("RootCount() in visitor = %d, want 2", rt.RootCount())
			}
			rt.AddValueRoot(&added, "added")
			rt.RemoveRoot(&b)
			cx.GC()
			return RootMapRemove
		default:
			t.Errorf("visited %q", info.Name)
			return RootMapNext
		}
	})
	if n != 1 {
		t.Errorf("MapGCRoots visited %d roots, want 1", n)
	}
	if s.IsFinalized() {
		t.Error("string swept while its root was being visited")
	}
	if rt.RootCount() != 1 {
		t.Errorf("RootCount() = %d, want 1", rt.RootCount())
	}
	rt.RemoveRoot(&added)
}

func TestDuplicateRootPanics(t *testing.T) {
	cx := newTestContext(t, Options{})
	rt := cx.Runtime()
	var v Value
	rt.AddValueRoot(&v, "once")
	defer rt.RemoveRoot(&v)
	mustPanic(t, "AddValueRoot twice", func() { rt.AddValueRoot(&v, "twice") })
}

func TestValueHolder(t *testing.T) {
	cx := newTestContext(t, Options{})
	rt := cx.Runtime()
	obj, _ := cx.NewObject("Object", nil)

	var h ValueHolder
	mustPanic(t, "Set on unheld holder", func() { h.Set(ObjectValue(obj)) })

	h.Hold(rt)
	h.Set(ObjectValue(obj))
	if !h.IsHeld() || h.ToObject() != obj {
		t.Fatal("holder does not hold the object")
	}
	cx.GC()
	if obj.IsFinalized() {
		t.Fatal("held object was swept")
	}

	h.Release()
	if h.IsHeld() || !h.Get().IsUndefined() {
		t.Error("Release should unroot and reset the holder")
	}
	cx.GC()
	if !obj.IsFinalized() {
		t.Error("object survived holder release")
	}
}

func TestRootedVector(t *testing.T) {
	cx := newTestContext(t, Options{Zeal: true})
	rt := cx.Runtime()
	rv := NewRootedVector(rt, "vec")
	defer rv.Release()

	for i := 0; i < 4; i++ {
		s, err := cx.NewStringCopy("item")
		if err != nil {
			t.Fatal(err)
		}
		rv.Append(StringValue(s))
	}
	cx.GC()
	for i := 0; i < rv.Len(); i++ {
		if rv.At(i).ToString().IsFinalized() {
			t.Errorf("vector element %d was swept", i)
		}
	}
}

// ---------------------------------------------------------------------------
// Tracing dispatch
// ---------------------------------------------------------------------------

func TestTracerDispatch(t *testing.T) {
	cx := newTestContext(t, Options{})
	s, _ := cx.NewStringCopy("s")
	sa := NewAnchor(cx, s)
	defer sa.Release()
	obj, _ := cx.NewObject("Object", nil)
	oa := NewAnchor(cx, obj)
	defer oa.Release()

	seen := map[TraceKind]int{}
	trc := TracerFunc(func(thing GCThing, name string) { seen[thing.TraceKind()]++ })

	MarkValueRange(trc, []Value{StringValue(s), ObjectValue(obj), Int32Value(1), Null, MagicPayloadValue(obj)}, "range")
	if seen[TraceString] != 1 || seen[TraceObject] != 1 {
		t.Errorf("MarkValueRange saw %v", seen)
	}

	atom, _ := cx.Atomize("k")
	aa := NewAnchor(cx, atom)
	defer aa.Release()
	seen = map[TraceKind]int{}
	MarkKeyRange(trc, []PropertyKey{KeyFromInt(1), KeyFromInterned(cx, atom), KeyFromObject(obj), KeyVoid, KeyEmpty}, "keys")
	if seen[TraceString] != 1 || seen[TraceObject] != 1 {
		t.Errorf("MarkKeyRange saw %v", seen)
	}

	cx.DefineProperty(obj, KeyFromInterned(cx, atom), StringValue(s))
	seen = map[TraceKind]int{}
	TraceChildren(trc, obj)
	if seen[TraceString] != 2 {
		t.Errorf("TraceChildren saw %v, want key and value strings", seen)
	}
}

func TestContains(t *testing.T) {
	cx := newTestContext(t, Options{})
	rt := cx.Runtime()
	s, _ := cx.NewStringCopy("s")
	v := StringValue(s)
	if !rt.Contains(v) {
		t.Error("Contains(live string) = false")
	}
	if rt.Contains(Int32Value(1)) {
		t.Error("Contains(int32) = true")
	}
	other := newTestContext(t, Options{})
	if other.Runtime().Contains(v) {
		t.Error("another runtime claims the string")
	}
	cx.GC()
	if rt.Contains(v) {
		t.Error("Contains(swept string) = true")
	}
}

func TestValidateRawBits(t *testing.T) {
	cx := newTestContext(t, Options{})
	rt := cx.Runtime()
	obj, _ := cx.NewObject("Object", nil)
	a := NewAnchor(cx, obj)
	defer a.Release()

	if v, err := rt.ValidateRawBits(ObjectValue(obj).AsRawBits()); err != nil || v.ToObject() != obj {
		t.Errorf("ValidateRawBits(live object) = %s, %v", v, err)
	}
	if _, err := rt.ValidateRawBits(Encode(TagObject, 0x1000)); !errors.Is(err, ErrForeignThing) {
		t.Errorf("forged object: err = %v, want ErrForeignThing", err)
	}
	if _, err := rt.ValidateRawBits(0x7FF8000000000001); !errors.Is(err, ErrInvalidBits) {
		t.Errorf("non-canonical NaN: err = %v, want ErrInvalidBits", err)
	}
	if v, err := rt.ValidateRawBits(Int32Value(5).AsRawBits()); err != nil || v.ToInt32() != 5 {
		t.Errorf("ValidateRawBits(int32) = %s, %v", v, err)
	}
}
