package vm

// ---------------------------------------------------------------------------
// Centralized magic reason table
// ---------------------------------------------------------------------------
//
// A magic value is an internal sentinel that never escapes to user code. Its
// payload records why it exists so code that expects one particular sentinel
// can assert it got that one. This file is the single source of truth for
// reason numbers.
//
// IMPORTANT: Once assigned, reason values must NEVER change. They are part of
// the raw-bits wire format.

// MagicReason is the payload of a magic Value.
type MagicReason uint32

const (
	// MagicObjectPayload is reported by WhyMagic for values built with
	// SetMagicWithPayload; the payload is an object address (or null).
	MagicObjectPayload MagicReason = 0

	MagicArrayHole        MagicReason = 1  // hole in a dense array
	MagicArgsHole         MagicReason = 2  // deleted element of an arguments object
	MagicNativeEnumerate  MagicReason = 3  // enumerate hook asked for native iteration
	MagicNoIterValue      MagicReason = 4  // iterator has no further value
	MagicGeneratorClosing MagicReason = 5  // exception value thrown while closing a generator
	MagicNoConstant       MagicReason = 6  // compiler sentinel: not a constant
	MagicThisPoison       MagicReason = 7  // uninitialized this slot
	MagicArgPoison        MagicReason = 8  // uninitialized argument slot
	MagicSerializeNoNode  MagicReason = 9  // serializer has no node to emit
	MagicLazyArguments    MagicReason = 10 // arguments object not materialized yet
	MagicIsConstructing   MagicReason = 11 // this slot of a constructor call
	MagicUnassigned       MagicReason = 12 // not yet assigned
	MagicGeneric          MagicReason = 13 // catch-all

	magicReasonCount = 14
)

// magicPointerMin separates reason payloads from object payloads. No object
// lives below the first page, so any payload at or above it is an address.
const magicPointerMin uint64 = 4096

var magicNames = [magicReasonCount]string{
	"object-payload",
	"array-hole",
	"args-hole",
	"native-enumerate",
	"no-iter-value",
	"generator-closing",
	"no-constant",
	"this-poison",
	"arg-poison",
	"serialize-no-node",
	"lazy-arguments",
	"is-constructing",
	"unassigned",
	"generic",
}

// String returns the reason's name.
func (r MagicReason) String() string {
	if r < magicReasonCount {
		return magicNames[r]
	}
	return "unknown-magic"
}

// Valid reports whether r is a known reason.
func (r MagicReason) Valid() bool { return r < magicReasonCount }
