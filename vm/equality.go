package vm

import "math"

// TypeOf implements the typeof operator.
func TypeOf(v Value) JSType {
	switch {
	case v.IsUndefined():
		return TypeVoid
	case v.IsNull():
		return TypeObject
	case v.IsObject():
		if v.ToObject().IsCallable() {
			return TypeFunction
		}
		return TypeObject
	case v.IsString():
		return TypeString
	case v.IsNumber():
		return TypeNumber
	case v.IsBoolean():
		return TypeBoolean
	}
	if debugChecks {
		violation("TypeOf", v)
	}
	return TypeVoid
}

// StrictlyEqual implements ===. NaN is unequal to itself and the zeros
// are equal.
func StrictlyEqual(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return a.ToNumber() == b.ToNumber()
	}
	if a.IsString() && b.IsString() {
		return a.ToString().Equal(b.ToString())
	}
	return a == b
}

// SameValue is StrictlyEqual except that NaN equals NaN and +0 differs
// from -0.
func SameValue(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		x, y := a.ToNumber(), b.ToNumber()
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		if x == 0 && y == 0 {
			return math.Signbit(x) == math.Signbit(y)
		}
		return x == y
	}
	return StrictlyEqual(a, b)
}

// LooselyEqual implements ==. Comparing an object with a primitive runs
// ToPrimitive and is therefore a collection point.
func (cx *Context) LooselyEqual(a, b Value) (bool, error) {
	if SameType(a, b) {
		return StrictlyEqual(a, b), nil
	}
	if a.IsNullOrUndefined() && b.IsNullOrUndefined() {
		return true, nil
	}
	if a.IsNullOrUndefined() || b.IsNullOrUndefined() {
		return false, nil
	}
	switch {
	case a.IsNumber() && b.IsString():
		return a.ToNumber() == StringToNumber(b.ToString().Text()), nil
	case a.IsString() && b.IsNumber():
		return StringToNumber(a.ToString().Text()) == b.ToNumber(), nil
	case a.IsBoolean():
		return cx.LooselyEqual(boolToNumber(a), b)
	case b.IsBoolean():
		return cx.LooselyEqual(a, boolToNumber(b))
	case a.IsObject() && (b.IsNumber() || b.IsString()):
		keep := NewAnchor(cx, b)
		defer keep.Release()
		prim, err := cx.ToPrimitive(a, TypeVoid)
		if err != nil {
			return false, err
		}
		return cx.LooselyEqual(prim, keep.Get())
	case b.IsObject() && (a.IsNumber() || a.IsString()):
		keep := NewAnchor(cx, a)
		defer keep.Release()
		prim, err := cx.ToPrimitive(b, TypeVoid)
		if err != nil {
			return false, err
		}
		return cx.LooselyEqual(keep.Get(), prim)
	}
	return false, nil
}

func boolToNumber(v Value) Value {
	if v.ToBoolean() {
		return Int32Value(1)
	}
	return Int32Value(0)
}
