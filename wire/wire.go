// Package wire moves raw value words between processes. A frame carries
// the 64-bit words of values and property keys in canonical CBOR, so two
// encoders given the same input produce the same bytes.
//
// Words are meaningless outside the heap that produced them. Receive
// checks each one against the receiving runtime and re-roots the
// survivors before returning.
package wire

import (
	"errors"
	"fmt"

	"github.com/chazu/tagval/vm"
	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
)

// Version is the frame format written by Marshal.
const Version = 1

var log = commonlog.GetLogger("tagval.wire")

// ErrVersion is returned for frames written by an unknown format version.
var ErrVersion = errors.New("unsupported frame version")

// Frame is the on-wire form of a batch of values and keys.
type Frame struct {
	Version uint     `cbor:"1,keyasint"`
	Words   []uint64 `cbor:"2,keyasint,omitempty"`
	Keys    []uint64 `cbor:"3,keyasint,omitempty"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes values and keys to a CBOR frame.
func Marshal(values []vm.Value, keys []vm.PropertyKey) ([]byte, error) {
	f := Frame{Version: Version}
	if len(values) > 0 {
		f.Words = make([]uint64, len(values))
		for i, v := range values {
			f.Words[i] = v.AsRawBits()
		}
	}
	if len(keys) > 0 {
		f.Keys = make([]uint64, len(keys))
		for i, k := range keys {
			f.Keys[i] = uint64(k)
		}
	}
	return cborEncMode.Marshal(&f)
}

// Unmarshal deserializes a frame. The words are returned as-is; nothing
// is checked against any heap.
func Unmarshal(data []byte) (*Frame, error) {
	var f Frame
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("wire: unmarshal frame: %w", err)
	}
	if f.Version != Version {
		return nil, fmt.Errorf("wire: frame version %d: %w", f.Version, ErrVersion)
	}
	return &f, nil
}

// Receive decodes a frame and validates every value word against cx's
// runtime. Accepted values come back in a RootedVector the caller must
// Release. The first rejected word fails the whole frame.
func Receive(cx *vm.Context, data []byte) (*vm.RootedVector, error) {
	f, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}

	rv := vm.NewRootedVector(cx.Runtime(), "wire.Receive")
	for i, w := range f.Words {
		if _, err := rv.AppendRawBits(w); err != nil {
			rv.Release()
			log.Warningf("rejected frame: word %d: %s", i, err)
			return nil, fmt.Errorf("wire: word %d: %w", i, err)
		}
	}
	log.Debugf("received %d values", rv.Len())
	return rv, nil
}

// ReceiveKeys returns the frame's keys after checking each against cx's
// runtime. String and object keys are accepted only when they name a live
// atom or object; like FromRawBits results, they are not rooted.
func ReceiveKeys(cx *vm.Context, f *Frame) ([]vm.PropertyKey, error) {
	rt := cx.Runtime()
	keys := make([]vm.PropertyKey, 0, len(f.Keys))
	for i, w := range f.Keys {
		if uint64(uintptr(w)) != w {
			return nil, fmt.Errorf("wire: key %d: 0x%x: %w", i, w, vm.ErrInvalidBits)
		}
		k := vm.PropertyKey(uintptr(w))
		if !rt.ContainsKey(k) {
			return nil, fmt.Errorf("wire: key %d: %s: %w", i, k, vm.ErrForeignThing)
		}
		keys = append(keys, k)
	}
	return keys, nil
}
