package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Coercions
// ---------------------------------------------------------------------------
//
// Conversions of objects re-enter user code through valueOf and toString,
// which may allocate and therefore collect. Every operation here is a
// collection point: values the caller holds only in Go locals must be
// anchored across the call, and GC-things returned are unrooted.

// JSType is the target of ConvertTo and the result of TypeOf.
type JSType int

const (
	TypeVoid JSType = iota
	TypeObject
	TypeFunction
	TypeString
	TypeNumber
	TypeBoolean
	TypeNull
)

var jsTypeNames = [...]string{
	TypeVoid:     "undefined",
	TypeObject:   "object",
	TypeFunction: "function",
	TypeString:   "string",
	TypeNumber:   "number",
	TypeBoolean:  "boolean",
	TypeNull:     "null",
}

// String returns the typeof name.
func (t JSType) String() string {
	if t >= 0 && int(t) < len(jsTypeNames) {
		return jsTypeNames[t]
	}
	return fmt.Sprintf("jstype(%d)", int(t))
}

// ConvertTo coerces v to type t. TypeVoid returns v unchanged. v itself is
// never modified; on failure the error is a *ConversionError.
func (v Value) ConvertTo(cx *Context, t JSType) (Value, error) {
	if debugChecks && v.IsMagic() {
		violation("Value.ConvertTo", v)
	}
	switch t {
	case TypeVoid:
		return v, nil
	case TypeObject:
		obj, err := cx.ToObject(v)
		if err != nil {
			return Undefined, conversionError(v, t, err)
		}
		return ObjectValue(obj), nil
	case TypeFunction:
		if !v.IsObject() || !v.ToObject().IsCallable() {
			return Undefined, conversionError(v, t, ErrNotCallable)
		}
		return v, nil
	case TypeString:
		s, err := cx.ToString(v)
		if err != nil {
			return Undefined, conversionError(v, t, err)
		}
		return StringValue(s), nil
	case TypeNumber:
		d, err := cx.ToNumber(v)
		if err != nil {
			return Undefined, conversionError(v, t, err)
		}
		return NumberValue(d), nil
	case TypeBoolean:
		return BooleanValue(ToBoolean(v)), nil
	default:
		return Undefined, conversionError(v, t, ErrBadType)
	}
}

func conversionError(v Value, t JSType, err error) error {
	tag := TagDouble
	if ValidBits(uint64(v)) {
		tag = v.Tag()
	}
	return &ConversionError{From: tag, To: t, Err: err}
}

// ToBoolean implements ECMAScript ToBoolean. It never calls user code.
func ToBoolean(v Value) bool {
	switch {
	case v.IsBoolean():
		return v.ToBoolean()
	case v.IsInt32():
		return v.ToInt32() != 0
	case v.IsDouble():
		d := v.ToDouble()
		return d != 0 && !math.IsNaN(d)
	case v.IsString():
		return v.ToString().Len() > 0
	case v.IsObject():
		return true
	case v.IsMagic():
		if debugChecks {
			violation("ToBoolean", v)
		}
	}
	return false
}

// ToNumber implements ECMAScript ToNumber.
func (cx *Context) ToNumber(v Value) (float64, error) {
	switch {
	case v.IsNumber():
		return v.ToNumber(), nil
	case v.IsUndefined():
		return math.NaN(), nil
	case v.IsNull():
		return 0, nil
	case v.IsBoolean():
		if v.ToBoolean() {
			return 1, nil
		}
		return 0, nil
	case v.IsString():
		return StringToNumber(v.ToString().Text()), nil
	case v.IsObject():
		prim, err := cx.ToPrimitive(v, TypeNumber)
		if err != nil {
			return 0, err
		}
		return cx.ToNumber(prim)
	}
	violation("ToNumber", v)
	return 0, nil
}

// ToInt32 implements ECMAScript ToInt32.
func (cx *Context) ToInt32(v Value) (int32, error) {
	if v.IsInt32() {
		return v.ToInt32(), nil
	}
	d, err := cx.ToNumber(v)
	if err != nil {
		return 0, err
	}
	return DoubleToInt32(d), nil
}

// ToUint32 implements ECMAScript ToUint32.
func (cx *Context) ToUint32(v Value) (uint32, error) {
	if v.IsInt32() {
		return uint32(v.ToInt32()), nil
	}
	d, err := cx.ToNumber(v)
	if err != nil {
		return 0, err
	}
	return DoubleToUint32(d), nil
}

// ToUint16 implements ECMAScript ToUint16.
func (cx *Context) ToUint16(v Value) (uint16, error) {
	d, err := cx.ToNumber(v)
	if err != nil {
		return 0, err
	}
	return DoubleToUint16(d), nil
}

// ToString implements ECMAScript ToString. Constant results come from the
// intern table; numbers allocate a fresh string.
func (cx *Context) ToString(v Value) (*String, error) {
	switch {
	case v.IsString():
		return v.ToString(), nil
	case v.IsNumber():
		return cx.NewStringCopy(NumberToString(v.ToNumber()))
	case v.IsUndefined():
		return cx.InternString("undefined")
	case v.IsNull():
		return cx.InternString("null")
	case v.IsBoolean():
		if v.ToBoolean() {
			return cx.InternString("true")
		}
		return cx.InternString("false")
	case v.IsObject():
		prim, err := cx.ToPrimitive(v, TypeString)
		if err != nil {
			return nil, err
		}
		return cx.ToString(prim)
	}
	violation("ToString", v)
	return nil, nil
}

// ToObject implements ECMAScript ToObject: objects are returned as is,
// primitives are boxed in a fresh wrapper, null and undefined fail with
// ErrNotObjectCoercible.
func (cx *Context) ToObject(v Value) (*Object, error) {
	switch {
	case v.IsObject():
		return v.ToObject(), nil
	case v.IsNullOrUndefined():
		return nil, ErrNotObjectCoercible
	case v.IsBoolean():
		return cx.newWrapper("Boolean", v)
	case v.IsNumber():
		return cx.newWrapper("Number", v)
	case v.IsString():
		a := NewAnchor(cx, v)
		defer a.Release()
		return cx.newWrapper("String", a.Get())
	}
	violation("ToObject", v)
	return nil, nil
}

// ToPrimitive implements the [[DefaultValue]] protocol. hint is
// TypeString, TypeNumber or TypeVoid (no hint, treated as number). The
// object is anchored while its valueOf and toString run.
func (cx *Context) ToPrimitive(v Value, hint JSType) (Value, error) {
	if v.IsPrimitive() {
		return v, nil
	}
	a := NewAnchor(cx, v.ToObject())
	defer a.Release()

	order := [2]string{"valueOf", "toString"}
	if hint == TypeString {
		order = [2]string{"toString", "valueOf"}
	}
	for _, name := range order {
		result, ok, err := cx.callDefaultMethod(a.Get(), name)
		if err != nil {
			return Undefined, err
		}
		if ok && result.IsPrimitive() {
			return result, nil
		}
	}
	return Undefined, fmt.Errorf("%s: %w", a.Get().Class(), ErrNoDefaultValue)
}

// callDefaultMethod runs obj's valueOf or toString. An own or inherited
// callable property wins; otherwise the built-in behavior applies: valueOf
// unwraps wrapper objects and toString yields "[object Class]". A
// non-callable property is skipped.
func (cx *Context) callDefaultMethod(obj *Object, name string) (Value, bool, error) {
	atom, err := cx.InternString(name)
	if err != nil {
		return Undefined, false, err
	}
	if fval, found := obj.Get(KeyFromInterned(cx, atom)); found {
		if !fval.IsObject() || !fval.ToObject().IsCallable() {
			return Undefined, false, nil
		}
		fn := NewAnchor(cx, fval.ToObject())
		defer fn.Release()
		cx.collectionPoint()
		result, err := fn.Get().call(cx, ObjectValue(obj), nil)
		if err != nil {
			return Undefined, false, fmt.Errorf("%s.%s: %w", obj.Class(), name, err)
		}
		return result, true, nil
	}

	switch name {
	case "valueOf":
		if prim, ok := obj.PrimitiveValue(); ok {
			return prim, true, nil
		}
		return ObjectValue(obj), true, nil
	default:
		if prim, ok := obj.PrimitiveValue(); ok {
			s, err := cx.ToString(prim)
			if err != nil {
				return Undefined, false, err
			}
			return StringValue(s), true, nil
		}
		s, err := cx.NewStringCopy("[object " + obj.Class() + "]")
		if err != nil {
			return Undefined, false, err
		}
		return StringValue(s), true, nil
	}
}

// Call invokes a function object.
func (cx *Context) Call(fn Value, this Value, args []Value) (Value, error) {
	if !fn.IsObject() || !fn.ToObject().IsCallable() {
		return Undefined, ErrNotCallable
	}
	cx.collectionPoint()
	return fn.ToObject().call(cx, this, args)
}

// ---------------------------------------------------------------------------
// Value <-> PropertyKey
// ---------------------------------------------------------------------------

// ValueToKey converts v to a property key. Integers in key range and
// canonical index strings become int keys; everything else is converted to
// a string and atomized. The returned key's atom is unrooted.
func (cx *Context) ValueToKey(v Value) (PropertyKey, error) {
	if v.IsInt32() && IntFitsInKey(v.ToInt32()) {
		return KeyFromInt(v.ToInt32()), nil
	}
	if v.IsDouble() {
		if i, ok := DoubleIsInt32(v.ToDouble()); ok && IntFitsInKey(i) {
			return KeyFromInt(i), nil
		}
	}
	s, err := cx.ToString(v)
	if err != nil {
		return KeyVoid, err
	}
	if i, ok := parseIndex(s.chars); ok {
		return KeyFromInt(i), nil
	}
	a := NewAnchor(cx, s)
	defer a.Release()
	atom, err := cx.AtomizeString(a.Get())
	if err != nil {
		return KeyVoid, err
	}
	return KeyFromInterned(cx, atom), nil
}

// KeyToValue converts a real key back to a Value. Sentinel keys have no
// value.
func KeyToValue(k PropertyKey) Value {
	switch {
	case k.IsInt():
		return Int32Value(k.ToInt())
	case k.IsString():
		return StringValue(k.ToString())
	case k.IsObject():
		return ObjectValue(k.ToObject())
	}
	if debugChecks {
		contractViolation("KeyToValue", "sentinel key %s", k)
	}
	return Undefined
}
