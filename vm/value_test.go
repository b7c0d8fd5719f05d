package vm

import (
	"math"
	"testing"
	"unsafe"
)

// newTestContext returns a context on a fresh runtime.
func newTestContext(t *testing.T, opts Options) *Context {
	t.Helper()
	rt := NewRuntime(opts)
	cx := rt.NewContext()
	t.Cleanup(cx.Destroy)
	return cx
}

func mustPanic(t *testing.T, what string, f func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("%s should panic", what)
		}
	}()
	f()
}

func predicates(v Value) []bool {
	return []bool{
		v.IsUndefined(),
		v.IsNull(),
		v.IsBoolean(),
		v.IsInt32(),
		v.IsDouble(),
		v.IsString(),
		v.IsObject(),
		v.IsMagic(),
	}
}

// ---------------------------------------------------------------------------
// Double tests
// ---------------------------------------------------------------------------

func TestDoubleRoundTrip(t *testing.T) {
	tests := []float64{
		0.0,
		math.Copysign(0, -1),
		1.0,
		-1.0,
		3.14159265358979,
		-3.14159265358979,
		math.MaxFloat64,
		math.SmallestNonzeroFloat64,
		-math.MaxFloat64,
		-math.SmallestNonzeroFloat64,
		math.Inf(1),
		math.Inf(-1),
	}

	for _, f := range tests {
		v := DoubleValue(f)
		if !v.IsDouble() {
			t.Errorf("DoubleValue(%v).IsDouble() = false, want true", f)
			continue
		}
		got := v.ToDouble()
		if math.Float64bits(got) != math.Float64bits(f) {
			t.Errorf("DoubleValue(%v).ToDouble() = %v, want %v", f, got, f)
		}
		if !v.IsNumber() {
			t.Errorf("DoubleValue(%v).IsNumber() = false, want true", f)
		}
	}
}

func TestDoubleNaNCanonical(t *testing.T) {
	patterns := []uint64{
		0x7FF8000000000000,
		0x7FF8000000000001,
		0x7FF0000000000001, // signaling
		0xFFF8000000000000, // negative quiet
		0xFFFFFFFFFFFFFFFF,
		0x7FFDEADBEEF00000,
	}

	for _, bits := range patterns {
		v := DoubleValue(math.Float64frombits(bits))
		if !v.IsDouble() {
			t.Errorf("DoubleValue(NaN 0x%x).IsDouble() = false, want true", bits)
		}
		if v.AsRawBits() != CanonicalNaNBits {
			t.Errorf("DoubleValue(NaN 0x%x).AsRawBits() = 0x%x, want 0x%x", bits, v.AsRawBits(), CanonicalNaNBits)
		}
		if !math.IsNaN(v.ToDouble()) {
			t.Errorf("DoubleValue(NaN 0x%x).ToDouble() is not NaN", bits)
		}
	}
}

// Two NaNs with different payloads encode to the same word.
func TestDoubleNaNScenario(t *testing.T) {
	a := DoubleValue(math.Float64frombits(0x7FF8000000000001))
	b := DoubleValue(math.Float64frombits(0xFFF4000000000000))
	if a.AsRawBits() != b.AsRawBits() {
		t.Errorf("NaN raw bits differ: 0x%x vs 0x%x", a.AsRawBits(), b.AsRawBits())
	}
}

// ---------------------------------------------------------------------------
// Int32 tests
// ---------------------------------------------------------------------------

func TestInt32RoundTrip(t *testing.T) {
	tests := []int32{0, 1, -1, 42, -42, 1 << 20, math.MaxInt32, math.MinInt32}

	for _, n := range tests {
		v := Int32Value(n)
		if !v.IsInt32() {
			t.Errorf("Int32Value(%d).IsInt32() = false, want true", n)
			continue
		}
		if got := v.ToInt32(); got != n {
			t.Errorf("Int32Value(%d).ToInt32() = %d, want %d", n, got, n)
		}
		if !v.IsSpecificInt32(n) {
			t.Errorf("Int32Value(%d).IsSpecificInt32(%d) = false", n, n)
		}
		if v.IsDouble() {
			t.Errorf("Int32Value(%d).IsDouble() = true, want false", n)
		}
	}
}

func TestInt32Scenario(t *testing.T) {
	v := Int32Value(42)
	if !v.IsNumber() || !v.IsInt32() {
		t.Fatalf("Int32Value(42): IsNumber=%v IsInt32=%v", v.IsNumber(), v.IsInt32())
	}
	if v.ToInt32() != 42 {
		t.Errorf("ToInt32() = %d, want 42", v.ToInt32())
	}
	if v.ToNumber() != 42.0 {
		t.Errorf("ToNumber() = %v, want 42.0", v.ToNumber())
	}
}

func TestSetNumber(t *testing.T) {
	tests := []struct {
		in      float64
		isInt32 bool
	}{
		{0, true},
		{1, true},
		{-7, true},
		{math.MaxInt32, true},
		{math.MinInt32, true},
		{math.MaxInt32 + 1, false},
		{math.MinInt32 - 1, false},
		{0.5, false},
		{math.Copysign(0, -1), false},
		{math.NaN(), false},
		{math.Inf(1), false},
	}

	for _, tt := range tests {
		var v Value
		got := v.SetNumber(tt.in)
		if got != tt.isInt32 {
			t.Errorf("SetNumber(%v) = %v, want %v", tt.in, got, tt.isInt32)
		}
		if tt.isInt32 {
			if !v.IsInt32() || float64(v.ToInt32()) != tt.in {
				t.Errorf("SetNumber(%v) stored %s", tt.in, v)
			}
			continue
		}
		if !v.IsDouble() {
			t.Errorf("SetNumber(%v) stored %s, want double", tt.in, v)
			continue
		}
		d := v.ToDouble()
		if math.IsNaN(tt.in) {
			if !math.IsNaN(d) {
				t.Errorf("SetNumber(NaN).ToDouble() = %v", d)
			}
		} else if math.Float64bits(d) != math.Float64bits(tt.in) {
			t.Errorf("SetNumber(%v).ToDouble() = %v", tt.in, d)
		}
	}
}

func TestSetNumberUint32(t *testing.T) {
	var v Value
	if !v.SetNumberUint32(math.MaxInt32) || v.ToInt32() != math.MaxInt32 {
		t.Errorf("SetNumberUint32(MaxInt32) = %s", v)
	}
	if v.SetNumberUint32(math.MaxUint32) || v.ToDouble() != math.MaxUint32 {
		t.Errorf("SetNumberUint32(MaxUint32) = %s", v)
	}
	if got := Uint32NumberValue(1 << 31); !got.IsDouble() {
		t.Errorf("Uint32NumberValue(1<<31) = %s, want double", got)
	}
}

// ---------------------------------------------------------------------------
// Singletons and booleans
// ---------------------------------------------------------------------------

func TestSingletons(t *testing.T) {
	if !UndefinedValue().IsUndefined() || !Undefined.IsNullOrUndefined() {
		t.Error("undefined predicates")
	}
	if !NullValue().IsNull() || !Null.IsNullOrUndefined() || !Null.IsObjectOrNull() {
		t.Error("null predicates")
	}
	if Null.IsObject() {
		t.Error("null should not be an object")
	}
	if !Null.IsPrimitive() || !Undefined.IsPrimitive() {
		t.Error("null and undefined are primitives")
	}
}

func TestBoolean(t *testing.T) {
	for _, b := range []bool{true, false} {
		v := BooleanValue(b)
		if !v.IsBoolean() {
			t.Errorf("BooleanValue(%v).IsBoolean() = false", b)
		}
		if v.ToBoolean() != b {
			t.Errorf("BooleanValue(%v).ToBoolean() = %v", b, v.ToBoolean())
		}
		if v.IsTrue() != b || v.IsFalse() == b {
			t.Errorf("BooleanValue(%v): IsTrue=%v IsFalse=%v", b, v.IsTrue(), v.IsFalse())
		}
	}
	var v Value
	v.SetBoolean(true)
	if v != True {
		t.Errorf("SetBoolean(true) = %s", v)
	}
}

// ---------------------------------------------------------------------------
// Magic
// ---------------------------------------------------------------------------

func TestMagic(t *testing.T) {
	for why := MagicReason(1); why < magicReasonCount; why++ {
		v := MagicValue(why)
		if !v.IsMagic() {
			t.Errorf("MagicValue(%s).IsMagic() = false", why)
			continue
		}
		if v.WhyMagic() != why {
			t.Errorf("MagicValue(%s).WhyMagic() = %s", why, v.WhyMagic())
		}
		if !v.IsMagicExpecting(why) || !v.IsMagicReason(why) {
			t.Errorf("MagicValue(%s) does not match its own reason", why)
		}
		if v.MagicPayload() != nil {
			t.Errorf("MagicValue(%s).MagicPayload() != nil", why)
		}
	}
	if MagicValue(MagicArrayHole).IsMagicReason(MagicArgsHole) {
		t.Error("IsMagicReason matched the wrong reason")
	}
}

func TestMagicExpectingWrongReasonPanics(t *testing.T) {
	v := MagicValue(MagicArrayHole)
	mustPanic(t, "IsMagicExpecting(wrong reason)", func() {
		v.IsMagicExpecting(MagicNoIterValue)
	})
}

func TestMagicWithPayload(t *testing.T) {
	cx := newTestContext(t, Options{})
	obj, err := cx.NewObject("Object", nil)
	if err != nil {
		t.Fatal(err)
	}
	a := NewAnchor(cx, obj)
	defer a.Release()

	v := MagicPayloadValue(obj)
	if !v.IsMagic() || v.WhyMagic() != MagicObjectPayload {
		t.Fatalf("MagicPayloadValue = %s", v)
	}
	if v.MagicPayload() != obj {
		t.Error("MagicPayload() is not the stored object")
	}
	if v.IsGCThing() {
		t.Error("magic payloads are not traced")
	}
	if got := MagicPayloadValue(nil).WhyMagic(); got != MagicObjectPayload {
		t.Errorf("MagicPayloadValue(nil).WhyMagic() = %s", got)
	}
}

// ---------------------------------------------------------------------------
// GC-thing values
// ---------------------------------------------------------------------------

func TestNewStringCopyInvalidUTF8(t *testing.T) {
	cx := newTestContext(t, Options{})
	s, err := cx.NewStringCopy("a\xffb")
	if err != nil {
		t.Fatal(err)
	}
	want := []uint16{'a', 0xFFFD, 'b'}
	got := s.Chars()
	if len(got) != len(want) {
		t.Fatalf("Chars() = %#v, want %#v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Chars()[%d] = %#x, want %#x", i, got[i], want[i])
		}
	}
	if s.Text() != "a\uFFFDb" {
		t.Errorf("Text() = %q, want %q", s.Text(), "a\uFFFDb")
	}
}

func TestStringAndObjectValues(t *testing.T) {
	cx := newTestContext(t, Options{})
	s, err := cx.NewStringCopy("hello")
	if err != nil {
		t.Fatal(err)
	}
	sa := NewAnchor(cx, s)
	defer sa.Release()
	obj, err := cx.NewObject("Object", nil)
	if err != nil {
		t.Fatal(err)
	}
	oa := NewAnchor(cx, obj)
	defer oa.Release()

	sv := StringValue(s)
	if !sv.IsString() || sv.ToString() != s {
		t.Errorf("StringValue round trip failed: %s", sv)
	}
	if !sv.IsGCThing() || !sv.IsMarkable() || sv.TraceKind() != TraceString {
		t.Errorf("string value GC predicates: %v %v %s", sv.IsGCThing(), sv.IsMarkable(), sv.TraceKind())
	}
	if !sv.IsPrimitive() {
		t.Error("strings are primitives")
	}

	ov := ObjectValue(obj)
	if !ov.IsObject() || ov.ToObject() != obj {
		t.Errorf("ObjectValue round trip failed: %s", ov)
	}
	if ov.TraceKind() != TraceObject || TraceKindOf(ov) != TraceObject {
		t.Errorf("ObjectValue trace kind = %s", ov.TraceKind())
	}
	if ov.ToGCThing() != GCThing(obj) {
		t.Error("ToGCThing() is not the object")
	}
	if ObjectOrNullValue(nil) != Null || ObjectOrNullValue(obj) != ov {
		t.Error("ObjectOrNullValue")
	}
	if ov.ToObjectOrNull() != obj || Null.ToObjectOrNull() != nil {
		t.Error("ToObjectOrNull")
	}

	var v Value
	v.SetObjectOrUndefined(nil)
	if !v.IsUndefined() {
		t.Errorf("SetObjectOrUndefined(nil) = %s", v)
	}
}

// Exactly one primary predicate holds for every constructed value.
func TestPredicatesExclusive(t *testing.T) {
	cx := newTestContext(t, Options{})
	s, _ := cx.NewStringCopy("x")
	sa := NewAnchor(cx, s)
	defer sa.Release()
	obj, _ := cx.NewObject("Object", nil)
	oa := NewAnchor(cx, obj)
	defer oa.Release()

	values := []Value{
		Undefined, Null, True, False,
		Int32Value(0), Int32Value(-5),
		DoubleValue(0.5), DoubleValue(math.NaN()), DoubleValue(math.Inf(-1)),
		StringValue(s), ObjectValue(obj),
		MagicValue(MagicGeneric), MagicPayloadValue(obj),
		PrivateUint32Value(7),
	}

	for _, v := range values {
		n := 0
		for _, p := range predicates(v) {
			if p {
				n++
			}
		}
		if n != 1 {
			t.Errorf("%s: %d predicates hold, want 1", v, n)
		}
	}
}

func TestRawBitsRoundTrip(t *testing.T) {
	cx := newTestContext(t, Options{})
	obj, _ := cx.NewObject("Object", nil)
	oa := NewAnchor(cx, obj)
	defer oa.Release()

	values := []Value{
		Undefined, Null, True, False, Int32Value(math.MinInt32),
		DoubleValue(-2.5), DoubleValue(math.NaN()), ObjectValue(obj),
		MagicValue(MagicThisPoison),
	}
	for _, v := range values {
		got := FromRawBits(v.AsRawBits())
		if got != v || got.Tag() != v.Tag() {
			t.Errorf("FromRawBits(AsRawBits(%s)) = %s", v, got)
		}
		var w Value
		w.SetRawBits(v.AsRawBits())
		if w != v {
			t.Errorf("SetRawBits(%s) = %s", v, w)
		}
	}
}

func TestSameType(t *testing.T) {
	tests := []struct {
		a, b Value
		want bool
	}{
		{Int32Value(1), DoubleValue(1.5), true},
		{True, False, true},
		{Null, Undefined, false},
		{Int32Value(1), True, false},
		{MagicValue(MagicGeneric), MagicValue(MagicArrayHole), true},
	}
	for _, tt := range tests {
		if got := SameType(tt.a, tt.b); got != tt.want {
			t.Errorf("SameType(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestPrivateUint32(t *testing.T) {
	for _, u := range []uint32{0, 1, math.MaxUint32} {
		v := PrivateUint32Value(u)
		if v.IsGCThing() || v.IsMarkable() {
			t.Errorf("PrivateUint32Value(%d) must not be markable", u)
		}
		if got := v.ToPrivateUint32(); got != u {
			t.Errorf("PrivateUint32Value(%d).ToPrivateUint32() = %d", u, got)
		}
	}
}

func TestPayloadAsRawUint32(t *testing.T) {
	if got := Int32Value(-1).PayloadAsRawUint32(); got != math.MaxUint32 {
		t.Errorf("Int32Value(-1).PayloadAsRawUint32() = %d", got)
	}
	if got := True.PayloadAsRawUint32(); got != 1 {
		t.Errorf("True.PayloadAsRawUint32() = %d", got)
	}
}

func TestSwap(t *testing.T) {
	a, b := Int32Value(1), True
	a.Swap(&b)
	if a != True || b != Int32Value(1) {
		t.Errorf("Swap: a=%s b=%s", a, b)
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Undefined, "undefined"},
		{Null, "null"},
		{True, "true"},
		{Int32Value(-3), "-3"},
		{DoubleValue(1.5), "1.5"},
		{MagicValue(MagicArrayHole), "magic(array-hole)"},
		{FromRawBits(0xFFFF800000000000 | 5), "invalid(0xffff800000000005)"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("%#x.String() = %q, want %q", tt.v.AsRawBits(), got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Contract violations
// ---------------------------------------------------------------------------

func TestAccessorPanicsOnWrongTag(t *testing.T) {
	mustPanic(t, "ToInt32 on double", func() { DoubleValue(1.5).ToInt32() })
	mustPanic(t, "ToDouble on int32", func() { Int32Value(1).ToDouble() })
	mustPanic(t, "ToBoolean on null", func() { Null.ToBoolean() })
	mustPanic(t, "ToString on int32", func() { Int32Value(1).ToString() })
	mustPanic(t, "ToObject on null", func() { Null.ToObject() })
	mustPanic(t, "WhyMagic on undefined", func() { Undefined.WhyMagic() })
	mustPanic(t, "ToGCThing on boolean", func() { True.ToGCThing() })
	mustPanic(t, "PayloadAsRawUint32 on double", func() { DoubleValue(2).PayloadAsRawUint32() })
	mustPanic(t, "SetString(nil)", func() {
		var v Value
		v.SetString(nil)
	})
	mustPanic(t, "SetObject(nil)", func() {
		var v Value
		v.SetObject(nil)
	})
}

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

func TestValueSize(t *testing.T) {
	var v Value
	if size := unsafe.Sizeof(v); size != 8 {
		t.Errorf("Value size = %d, want 8", size)
	}
	var k PropertyKey
	if size := unsafe.Sizeof(k); size != unsafe.Sizeof(uintptr(0)) {
		t.Errorf("PropertyKey size = %d, want one word", size)
	}
}

// ---------------------------------------------------------------------------
// Benchmarks
// ---------------------------------------------------------------------------

func BenchmarkIsDouble(b *testing.B) {
	v := DoubleValue(3.14)
	for i := 0; i < b.N; i++ {
		_ = v.IsDouble()
	}
}

func BenchmarkIsGCThing(b *testing.B) {
	v := Int32Value(42)
	for i := 0; i < b.N; i++ {
		_ = v.IsGCThing()
	}
}

func BenchmarkSetNumber(b *testing.B) {
	var v Value
	for i := 0; i < b.N; i++ {
		v.SetNumber(float64(i))
	}
}
