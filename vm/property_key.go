package vm

import (
	"fmt"
	"unsafe"
)

// PropertyKey identifies a property: an interned string, a small integer or
// an object used as a key. It is one machine word whose low three bits
// discriminate the variant:
//
//	xx1  int, value in the upper bits
//	000  interned string address (non-zero)
//	100  object address, or the bare sentinel KeyEmpty
//	110  KeyDefaultXMLNamespace
//
// The zero word is KeyVoid, so a zero PropertyKey is "no key".
// Equality of keys is word equality.
type PropertyKey uintptr

const (
	keyTypeMask   uintptr = 0x7
	keyTypeString uintptr = 0x0
	keyTypeInt    uintptr = 0x1
	keyTypeObject uintptr = 0x4
	keyTypeXML    uintptr = 0x6

	// KeyMinInt and KeyMaxInt bound the integers a key stores directly.
	KeyMinInt int32 = -(1 << 30)
	KeyMaxInt int32 = 1<<30 - 1
)

// Sentinel keys. None of them may be used to index a property.
const (
	// KeyVoid means "no key", e.g. an exhausted PropertyIterator.
	KeyVoid PropertyKey = 0
	// KeyEmpty marks an unused slot.
	KeyEmpty PropertyKey = PropertyKey(keyTypeObject)
	// KeyDefaultXMLNamespace is the reserved default-namespace key.
	KeyDefaultXMLNamespace PropertyKey = PropertyKey(keyTypeXML)
)

// IntFitsInKey reports whether i can be stored directly in a key.
func IntFitsInKey(i int32) bool {
	return i >= KeyMinInt && i <= KeyMaxInt
}

// KeyFromInt builds an integer key. i must satisfy IntFitsInKey.
func KeyFromInt(i int32) PropertyKey {
	if debugChecks && !IntFitsInKey(i) {
		contractViolation("KeyFromInt", "%d outside [%d, %d]", i, KeyMinInt, KeyMaxInt)
	}
	return PropertyKey(uintptr(uint32(i)<<1) | keyTypeInt)
}

// KeyFromInterned builds a string key. s must be an atom of cx's runtime;
// keys compare by identity, so an uninterned string would never match.
func KeyFromInterned(cx *Context, s *String) PropertyKey {
	if debugChecks {
		if s == nil {
			contractViolation("KeyFromInterned", "nil string")
		}
		if !s.atom {
			contractViolation("KeyFromInterned", "%q is not interned", s.Text())
		}
		if s.rt != cx.rt {
			contractViolation("KeyFromInterned", "%q belongs to another runtime", s.Text())
		}
	}
	return PropertyKey(checkKeyAlignment("KeyFromInterned", uintptr(unsafe.Pointer(s))))
}

// KeyFromObject builds an object key. obj must not be nil.
func KeyFromObject(obj *Object) PropertyKey {
	if debugChecks && obj == nil {
		contractViolation("KeyFromObject", "nil object")
	}
	return PropertyKey(checkKeyAlignment("KeyFromObject", uintptr(unsafe.Pointer(obj))) | keyTypeObject)
}

func checkKeyAlignment(op string, addr uintptr) uintptr {
	if debugChecks && addr&keyTypeMask != 0 {
		contractViolation(op, "address 0x%x is not 8-byte aligned", addr)
	}
	return addr
}

// IsString reports whether k is an interned-string key.
func (k PropertyKey) IsString() bool {
	return uintptr(k)&keyTypeMask == keyTypeString && k != KeyVoid
}

// IsInt reports whether k is an integer key.
func (k PropertyKey) IsInt() bool {
	return uintptr(k)&keyTypeInt != 0
}

// IsObject reports whether k is an object key.
func (k PropertyKey) IsObject() bool {
	return uintptr(k)&keyTypeMask == keyTypeObject && k != KeyEmpty
}

// IsVoid reports whether k is KeyVoid.
func (k PropertyKey) IsVoid() bool { return k == KeyVoid }

// IsEmpty reports whether k is KeyEmpty.
func (k PropertyKey) IsEmpty() bool { return k == KeyEmpty }

// IsDefaultXMLNamespace reports whether k is KeyDefaultXMLNamespace.
func (k PropertyKey) IsDefaultXMLNamespace() bool { return k == KeyDefaultXMLNamespace }

// IsGCThing reports whether k references a heap thing.
func (k PropertyKey) IsGCThing() bool {
	return k.IsString() || k.IsObject()
}

// ToInt returns the integer of an int key. Requires IsInt.
func (k PropertyKey) ToInt() int32 {
	if debugChecks && !k.IsInt() {
		contractViolation("PropertyKey.ToInt", "key %s is not an int", k)
	}
	return int32(uint32(k)) >> 1
}

// ToString returns the atom of a string key. Requires IsString.
func (k PropertyKey) ToString() *String {
	if debugChecks && !k.IsString() {
		contractViolation("PropertyKey.ToString", "key %s is not a string", k)
	}
	return (*String)(pointerFromPayload(uint64(k)))
}

// ToObject returns the object of an object key. Requires IsObject.
func (k PropertyKey) ToObject() *Object {
	if debugChecks && !k.IsObject() {
		contractViolation("PropertyKey.ToObject", "key %s is not an object", k)
	}
	return (*Object)(pointerFromPayload(uint64(uintptr(k) &^ keyTypeMask)))
}

// ToGCThing returns the referenced heap thing. Requires IsGCThing.
func (k PropertyKey) ToGCThing() GCThing {
	if k.IsObject() {
		return k.ToObject()
	}
	return k.ToString()
}

// String formats k for diagnostics without dereferencing it.
func (k PropertyKey) String() string {
	switch {
	case k == KeyVoid:
		return "void"
	case k == KeyEmpty:
		return "empty"
	case k == KeyDefaultXMLNamespace:
		return "default-xml-namespace"
	case k.IsInt():
		return fmt.Sprintf("int(%d)", int32(uint32(k))>>1)
	case k.IsObject():
		return fmt.Sprintf("object@0x%x", uintptr(k)&^keyTypeMask)
	case k.IsString():
		return fmt.Sprintf("atom@0x%x", uintptr(k))
	default:
		return fmt.Sprintf("key(0x%x)", uintptr(k))
	}
}
