package vm

import (
	"fmt"
	"math"
	"strconv"
	"unsafe"
)

// Value represents a dynamic value using NaN-boxing.
//
// A Value is one 64-bit word (see encoding.go) holding exactly one of
// undefined, null, boolean, int32, double, string reference, object
// reference or magic sentinel. It is passed by value and never owns
// anything: String and Object payloads are non-owning references that stay
// valid only while something the collector recognizes as a root reaches
// them (an Anchor, the persistent root table, or the intern table).
//
// Accessors such as ToInt32 require the matching predicate to hold. Debug
// builds panic on a mismatch; release builds return garbage.
type Value uint64

// Pre-defined singleton values
const (
	Undefined Value = Value(shiftedTagUndefined)
	Null      Value = Value(shiftedTagNull)
	False     Value = Value(shiftedTagBoolean)
	True      Value = Value(shiftedTagBoolean | 1)
)

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// UndefinedValue returns undefined.
func UndefinedValue() Value { return Undefined }

// NullValue returns null.
func NullValue() Value { return Null }

// Int32Value creates an int32 Value.
func Int32Value(i int32) Value {
	var v Value
	v.SetInt32(i)
	return v
}

// DoubleValue creates a double Value. Every NaN is stored as
// CanonicalNaNBits.
func DoubleValue(d float64) Value {
	var v Value
	v.SetDouble(d)
	return v
}

// NumberValue creates an int32 Value when d is an integer that int32 holds
// exactly, and a double Value otherwise.
func NumberValue(d float64) Value {
	var v Value
	v.SetNumber(d)
	return v
}

// Uint32NumberValue creates a number Value from a uint32.
func Uint32NumberValue(u uint32) Value {
	var v Value
	v.SetNumberUint32(u)
	return v
}

// BooleanValue creates a boolean Value.
func BooleanValue(b bool) Value {
	if b {
		return True
	}
	return False
}

// StringValue creates a string Value. s must not be nil.
func StringValue(s *String) Value {
	var v Value
	v.SetString(s)
	return v
}

// ObjectValue creates an object Value. obj must not be nil.
func ObjectValue(obj *Object) Value {
	var v Value
	v.SetObject(obj)
	return v
}

// ObjectOrNullValue creates an object Value, or null when obj is nil.
func ObjectOrNullValue(obj *Object) Value {
	var v Value
	v.SetObjectOrNull(obj)
	return v
}

// MagicValue creates a magic sentinel with the given reason.
func MagicValue(why MagicReason) Value {
	var v Value
	v.SetMagic(why)
	return v
}

// MagicPayloadValue creates a magic sentinel carrying an object (or nil).
func MagicPayloadValue(obj *Object) Value {
	var v Value
	v.SetMagicWithPayload(obj)
	return v
}

// PrivateUint32Value stores a uint32 that must never be marked. It reads as
// a (denormal) double and is extracted with ToPrivateUint32.
func PrivateUint32Value(u uint32) Value {
	return Value(uint64(u))
}

// FromRawBits rebuilds a Value from AsRawBits output. The bits carry no
// liveness guarantee: a GC-thing must be re-rooted before the next
// collection point.
func FromRawBits(bits uint64) Value {
	return Value(bits)
}

// ---------------------------------------------------------------------------
// Mutators
// ---------------------------------------------------------------------------
//
// Setters never allocate and cannot trigger a collection.

// SetNull makes v null.
func (v *Value) SetNull() { *v = Null }

// SetUndefined makes v undefined.
func (v *Value) SetUndefined() { *v = Undefined }

// SetInt32 makes v the int32 i.
func (v *Value) SetInt32(i int32) {
	*v = Value(shiftedTagInt32 | uint64(uint32(i)))
}

// SetDouble makes v the double d, canonicalizing NaN.
func (v *Value) SetDouble(d float64) {
	*v = Value(canonicalizeDoubleBits(math.Float64bits(d)))
}

// SetNumber stores d as an int32 when that is lossless (integral, in range,
// not negative zero) and as a double otherwise. Reports whether the int32
// form was chosen.
func (v *Value) SetNumber(d float64) bool {
	if i, ok := DoubleIsInt32(d); ok {
		v.SetInt32(i)
		return true
	}
	v.SetDouble(d)
	return false
}

// SetNumberUint32 stores u as an int32 when it fits and as a double
// otherwise. Reports whether the int32 form was chosen.
func (v *Value) SetNumberUint32(u uint32) bool {
	if u > math.MaxInt32 {
		v.SetDouble(float64(u))
		return false
	}
	v.SetInt32(int32(u))
	return true
}

// SetString makes v reference s. s must not be nil.
func (v *Value) SetString(s *String) {
	if debugChecks && s == nil {
		contractViolation("Value.SetString", "nil string")
	}
	*v = Value(Encode(TagString, addrOf(unsafe.Pointer(s))))
}

// SetObject makes v reference obj. obj must not be nil; use SetObjectOrNull
// for nullable pointers.
func (v *Value) SetObject(obj *Object) {
	if debugChecks && obj == nil {
		contractViolation("Value.SetObject", "nil object")
	}
	*v = Value(Encode(TagObject, addrOf(unsafe.Pointer(obj))))
}

// SetObjectOrNull makes v reference obj, or null when obj is nil.
func (v *Value) SetObjectOrNull(obj *Object) {
	if obj == nil {
		v.SetNull()
		return
	}
	v.SetObject(obj)
}

// SetObjectOrUndefined makes v reference obj, or undefined when obj is nil.
func (v *Value) SetObjectOrUndefined(obj *Object) {
	if obj == nil {
		v.SetUndefined()
		return
	}
	v.SetObject(obj)
}

// SetBoolean makes v the boolean b.
func (v *Value) SetBoolean(b bool) {
	*v = BooleanValue(b)
}

// SetMagic makes v a magic sentinel with the given reason.
func (v *Value) SetMagic(why MagicReason) {
	if debugChecks && uint64(why) >= magicPointerMin {
		contractViolation("Value.SetMagic", "reason %d collides with pointer payloads", why)
	}
	*v = Value(Encode(TagMagic, uint64(why)))
}

// SetMagicWithPayload makes v a magic sentinel carrying obj. The payload is
// not traced; the caller keeps obj alive by other means.
func (v *Value) SetMagicWithPayload(obj *Object) {
	var payload uint64
	if obj != nil {
		payload = addrOf(unsafe.Pointer(obj))
	}
	*v = Value(Encode(TagMagic, payload))
}

// SetRawBits overwrites v with raw bits. See FromRawBits.
func (v *Value) SetRawBits(bits uint64) { *v = Value(bits) }

// Swap exchanges v and other.
func (v *Value) Swap(other *Value) { *v, *other = *other, *v }

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsUndefined returns true if v is undefined.
func (v Value) IsUndefined() bool { return v == Undefined }

// IsNull returns true if v is null.
func (v Value) IsNull() bool { return v == Null }

// IsNullOrUndefined returns true if v is null or undefined.
func (v Value) IsNullOrUndefined() bool { return v == Null || v == Undefined }

// IsInt32 returns true if v holds an int32.
func (v Value) IsInt32() bool {
	return uint64(v)&^payloadMask == shiftedTagInt32
}

// IsSpecificInt32 returns true if v is the int32 i.
func (v Value) IsSpecificInt32(i int32) bool {
	return v == Int32Value(i)
}

// IsDouble returns true if v holds a double.
func (v Value) IsDouble() bool { return IsDoubleBits(uint64(v)) }

// IsNumber returns true if v holds an int32 or a double.
func (v Value) IsNumber() bool { return uint64(v) < shiftedTagUndefined }

// IsString returns true if v references a string.
func (v Value) IsString() bool {
	return uint64(v)&^payloadMask == shiftedTagString
}

// IsObject returns true if v references an object.
func (v Value) IsObject() bool { return uint64(v) >= shiftedTagObject }

// IsObjectOrNull returns true if v references an object or is null.
func (v Value) IsObjectOrNull() bool { return v.IsObject() || v == Null }

// IsPrimitive returns true if v is anything but an object.
func (v Value) IsPrimitive() bool { return uint64(v) < shiftedTagObject }

// IsBoolean returns true if v is true or false.
func (v Value) IsBoolean() bool {
	return uint64(v)&^payloadMask == shiftedTagBoolean
}

// IsTrue returns true if v is the boolean true.
func (v Value) IsTrue() bool { return v == True }

// IsFalse returns true if v is the boolean false.
func (v Value) IsFalse() bool { return v == False }

// IsMagic returns true if v is a magic sentinel.
func (v Value) IsMagic() bool {
	return uint64(v)&^payloadMask == shiftedTagMagic
}

// IsMagicExpecting returns IsMagic, asserting in debug builds that a magic
// v carries the reason why.
func (v Value) IsMagicExpecting(why MagicReason) bool {
	if !v.IsMagic() {
		return false
	}
	if debugChecks && v.WhyMagic() != why {
		contractViolation("Value.IsMagicExpecting", "want %s, have %s", why, v.WhyMagic())
	}
	return true
}

// IsMagicReason returns true if v is a magic sentinel with the reason why.
func (v Value) IsMagicReason(why MagicReason) bool {
	return v.IsMagic() && v.WhyMagic() == why
}

// IsGCThing returns true if v references a heap thing.
func (v Value) IsGCThing() bool { return IsGCThingBits(uint64(v)) }

// IsMarkable returns true if a tracer must mark v's referent. With this
// layout null carries no pointer, so it coincides with IsGCThing.
func (v Value) IsMarkable() bool { return IsGCThingBits(uint64(v)) }

// Tag returns the active variant.
func (v Value) Tag() Tag {
	t, _ := Decode(uint64(v))
	return t
}

// SameType reports whether a and b hold the same variant, treating int32
// and double as one number type.
func SameType(a, b Value) bool {
	if a.IsNumber() {
		return b.IsNumber()
	}
	return uint64(a)&^payloadMask == uint64(b)&^payloadMask
}

// ---------------------------------------------------------------------------
// Payload extraction
// ---------------------------------------------------------------------------

// ToInt32 returns the int32 payload. Requires IsInt32.
func (v Value) ToInt32() int32 {
	if debugChecks && !v.IsInt32() {
		violation("Value.ToInt32", v)
	}
	return int32(uint32(v))
}

// ToDouble returns the double payload. Requires IsDouble.
func (v Value) ToDouble() float64 {
	if debugChecks && !v.IsDouble() {
		violation("Value.ToDouble", v)
	}
	return math.Float64frombits(uint64(v))
}

// ToNumber returns the numeric payload as a float64. Requires IsNumber.
func (v Value) ToNumber() float64 {
	if v.IsDouble() {
		return math.Float64frombits(uint64(v))
	}
	return float64(v.ToInt32())
}

// ToBoolean returns the boolean payload. Requires IsBoolean.
func (v Value) ToBoolean() bool {
	if debugChecks && !v.IsBoolean() {
		violation("Value.ToBoolean", v)
	}
	return uint64(v)&1 == 1
}

// ToString returns the referenced string. Requires IsString.
func (v Value) ToString() *String {
	if debugChecks && !v.IsString() {
		violation("Value.ToString", v)
	}
	return (*String)(pointerFromPayload(uint64(v) & payloadMask))
}

// ToObject returns the referenced object. Requires IsObject.
func (v Value) ToObject() *Object {
	if debugChecks && !v.IsObject() {
		violation("Value.ToObject", v)
	}
	return (*Object)(pointerFromPayload(uint64(v) & payloadMask))
}

// ToObjectOrNull returns the referenced object or nil. Requires
// IsObjectOrNull.
func (v Value) ToObjectOrNull() *Object {
	if v == Null {
		return nil
	}
	return v.ToObject()
}

// ToGCThing returns the referenced heap thing. Requires IsGCThing.
func (v Value) ToGCThing() GCThing {
	if debugChecks && !v.IsGCThing() {
		violation("Value.ToGCThing", v)
	}
	if v.IsObject() {
		return v.ToObject()
	}
	return v.ToString()
}

// TraceKind returns the kind of the referenced heap thing. Requires
// IsMarkable.
func (v Value) TraceKind() TraceKind {
	return TraceKindBits(uint64(v))
}

// WhyMagic returns the reason of a magic sentinel. Requires IsMagic.
func (v Value) WhyMagic() MagicReason {
	if debugChecks && !v.IsMagic() {
		violation("Value.WhyMagic", v)
	}
	payload := uint64(v) & payloadMask
	if payload >= magicPointerMin {
		return MagicObjectPayload
	}
	return MagicReason(payload)
}

// MagicPayload returns the object of a sentinel built by
// SetMagicWithPayload, or nil. Requires IsMagic.
func (v Value) MagicPayload() *Object {
	if debugChecks && !v.IsMagic() {
		violation("Value.MagicPayload", v)
	}
	payload := uint64(v) & payloadMask
	if payload < magicPointerMin {
		return nil
	}
	return (*Object)(pointerFromPayload(payload))
}

// ToPrivateUint32 returns a value stored with PrivateUint32Value.
func (v Value) ToPrivateUint32() uint32 {
	if debugChecks && !v.IsDouble() {
		violation("Value.ToPrivateUint32", v)
	}
	return uint32(v)
}

// PayloadAsRawUint32 returns the low 32 payload bits. Requires !IsDouble.
func (v Value) PayloadAsRawUint32() uint32 {
	if debugChecks && v.IsDouble() {
		violation("Value.PayloadAsRawUint32", v)
	}
	return uint32(v)
}

// AsRawBits returns the encoded word. FromRawBits inverts it bit-exactly.
func (v Value) AsRawBits() uint64 { return uint64(v) }

// ---------------------------------------------------------------------------
// Debugging
// ---------------------------------------------------------------------------

// String formats v for diagnostics. It does not dereference GC-things.
func (v Value) String() string {
	if !ValidBits(uint64(v)) {
		return fmt.Sprintf("invalid(0x%016x)", uint64(v))
	}
	tag, payload := Decode(uint64(v))
	switch tag {
	case TagDouble:
		return strconv.FormatFloat(math.Float64frombits(payload), 'g', -1, 64)
	case TagInt32:
		return strconv.Itoa(int(int32(uint32(payload))))
	case TagUndefined:
		return "undefined"
	case TagNull:
		return "null"
	case TagBoolean:
		return strconv.FormatBool(payload == 1)
	case TagMagic:
		if payload >= magicPointerMin {
			return fmt.Sprintf("magic(object@0x%x)", payload)
		}
		return fmt.Sprintf("magic(%s)", MagicReason(payload))
	case TagString:
		return fmt.Sprintf("string@0x%x", payload)
	default:
		return fmt.Sprintf("object@0x%x", payload)
	}
}

func violation(op string, v Value) {
	contractViolation(op, "value is %s (0x%016x)", v.Tag(), uint64(v))
}
