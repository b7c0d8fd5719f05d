package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// NaN-boxing layout
// ---------------------------------------------------------------------------
//
// Every Value is one 64-bit word. Doubles are stored as their IEEE 754 bits;
// everything else lives in the negative quiet-NaN space above the largest
// word a double may occupy:
//
//	word <= 0xFFF8_0000_0000_0000            double (NaNs canonicalized)
//	(0x1FFF0 | tag) << 47 | payload          tagged non-double, 47-bit payload
//
// Tag order is chosen so the hot predicates are a single compare: numbers
// sit just above the doubles and the GC-things (String, Object) are the two
// highest tags.
//
// IMPORTANT: these constants are part of the raw-bits wire format. Once
// assigned they must never change.

// Tag identifies which variant a Value currently holds.
type Tag uint8

const (
	TagDouble    Tag = 0
	TagInt32     Tag = 1
	TagUndefined Tag = 2
	TagBoolean   Tag = 3
	TagMagic     Tag = 4
	TagNull      Tag = 5
	TagString    Tag = 6
	TagObject    Tag = 7
)

const (
	tagShift = 47

	// Tag field value of the largest double; tags are ORed into it.
	tagMaxDouble uint64 = 0x1FFF0

	payloadMask uint64 = (1 << tagShift) - 1

	shiftedTagMaxDouble uint64 = tagMaxDouble << tagShift // 0xFFF8_0000_0000_0000
	shiftedTagInt32     uint64 = (tagMaxDouble | uint64(TagInt32)) << tagShift
	shiftedTagUndefined uint64 = (tagMaxDouble | uint64(TagUndefined)) << tagShift
	shiftedTagBoolean   uint64 = (tagMaxDouble | uint64(TagBoolean)) << tagShift
	shiftedTagMagic     uint64 = (tagMaxDouble | uint64(TagMagic)) << tagShift
	shiftedTagNull      uint64 = (tagMaxDouble | uint64(TagNull)) << tagShift
	shiftedTagString    uint64 = (tagMaxDouble | uint64(TagString)) << tagShift
	shiftedTagObject    uint64 = (tagMaxDouble | uint64(TagObject)) << tagShift

	// CanonicalNaNBits is the only NaN bit pattern a Value ever stores.
	CanonicalNaNBits uint64 = 0x7FF8000000000000
)

var tagNames = [...]string{
	TagDouble:    "double",
	TagInt32:     "int32",
	TagUndefined: "undefined",
	TagBoolean:   "boolean",
	TagMagic:     "magic",
	TagNull:      "null",
	TagString:    "string",
	TagObject:    "object",
}

// String returns the tag's lower-case name.
func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// IsGCThing reports whether payloads of this tag reference heap memory.
func (t Tag) IsGCThing() bool {
	return t == TagString || t == TagObject
}

// ---------------------------------------------------------------------------
// Encode / decode
// ---------------------------------------------------------------------------

// Encode packs a tag and payload into a word.
//
// Preconditions (asserted in debug builds): Int32 payloads are the uint32
// bits of the integer, Boolean payloads are 0 or 1, Undefined and Null carry
// no payload, and String/Object payloads are non-zero addresses below 2^47.
// Double payloads are float64 bits; any NaN is canonicalized.
func Encode(tag Tag, payload uint64) uint64 {
	switch tag {
	case TagDouble:
		return canonicalizeDoubleBits(payload)
	case TagInt32:
		if debugChecks && payload > math.MaxUint32 {
			contractViolation("Encode", "int32 payload 0x%x wider than 32 bits", payload)
		}
	case TagBoolean:
		if debugChecks && payload > 1 {
			contractViolation("Encode", "boolean payload %d is not 0 or 1", payload)
		}
	case TagUndefined, TagNull:
		if debugChecks && payload != 0 {
			contractViolation("Encode", "%s carries payload 0x%x", tag, payload)
		}
	case TagMagic:
		if debugChecks && payload > payloadMask {
			contractViolation("Encode", "magic payload 0x%x wider than 47 bits", payload)
		}
	case TagString, TagObject:
		if debugChecks && (payload == 0 || payload > payloadMask) {
			contractViolation("Encode", "%s pointer payload 0x%x out of range", tag, payload)
		}
	default:
		contractViolation("Encode", "unknown tag %d", uint8(tag))
	}
	return (tagMaxDouble|uint64(tag))<<tagShift | payload
}

// Decode splits a word into its tag and payload. For doubles the payload is
// the word itself.
func Decode(word uint64) (Tag, uint64) {
	if IsDoubleBits(word) {
		return TagDouble, word
	}
	tag := Tag((word >> tagShift) - tagMaxDouble)
	if debugChecks && !ValidBits(word) {
		contractViolation("Decode", "impossible word 0x%016x", word)
	}
	return tag, word & payloadMask
}

// ValidBits reports whether word is something Encode can produce. It is the
// check behind Decode's debug assertion, exported for boundary code that
// receives raw words from outside the process.
func ValidBits(word uint64) bool {
	if IsDoubleBits(word) {
		// Non-canonical NaNs are never produced by Encode.
		return !isNaNBits(word) || word == CanonicalNaNBits
	}
	field := word >> tagShift
	if field < tagMaxDouble|uint64(TagInt32) || field > tagMaxDouble|uint64(TagObject) {
		return false
	}
	payload := word & payloadMask
	switch Tag(field - tagMaxDouble) {
	case TagInt32:
		return payload <= math.MaxUint32
	case TagBoolean:
		return payload <= 1
	case TagUndefined, TagNull:
		return payload == 0
	case TagString, TagObject:
		return payload != 0
	}
	return true
}

// IsDoubleBits reports whether word holds a double. This is on the
// arithmetic hot path.
func IsDoubleBits(word uint64) bool {
	return word <= shiftedTagMaxDouble
}

// IsGCThingBits reports whether word references a GC-thing.
func IsGCThingBits(word uint64) bool {
	return word >= shiftedTagString
}

// TraceKindBits returns the trace kind of a GC-thing word.
func TraceKindBits(word uint64) TraceKind {
	if debugChecks && !IsGCThingBits(word) {
		contractViolation("TraceKindBits", "word 0x%016x is not a GC-thing", word)
	}
	if word >= shiftedTagObject {
		return TraceObject
	}
	return TraceString
}

func isNaNBits(bits uint64) bool {
	return bits&0x7FF0000000000000 == 0x7FF0000000000000 && bits&0x000FFFFFFFFFFFFF != 0
}

func canonicalizeDoubleBits(bits uint64) uint64 {
	if isNaNBits(bits) {
		return CanonicalNaNBits
	}
	return bits
}
