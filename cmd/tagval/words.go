package main

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/tagval/vm"
)

// ---------------------------------------------------------------------------
// tagval decode / tagval encode
// ---------------------------------------------------------------------------

// parseWord accepts a 64-bit word in hex, with or without a 0x prefix.
func parseWord(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.ReplaceAll(s, "_", "")
	w, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid word %q: %w", s, err)
	}
	return w, nil
}

// describeWord renders everything the encoding says about w without
// dereferencing it.
func describeWord(w uint64) string {
	if !vm.ValidBits(w) {
		return fmt.Sprintf("0x%016x  invalid", w)
	}
	v := vm.FromRawBits(w)
	tag, _ := vm.Decode(w)
	var b strings.Builder
	fmt.Fprintf(&b, "0x%016x  %-9s %s", w, tag, v)
	switch {
	case v.IsGCThing():
		fmt.Fprintf(&b, "  (gc-thing, trace kind %s)", vm.TraceKindBits(w))
	case v.IsDouble():
		if math.IsNaN(v.ToDouble()) {
			b.WriteString("  (canonical NaN)")
		} else if i, ok := vm.DoubleIsInt32(v.ToDouble()); ok {
			fmt.Fprintf(&b, "  (int32-representable: %d)", i)
		}
	}
	return b.String()
}

func handleDecodeCommand(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: tagval decode <hex-word>...")
	}
	for _, a := range args {
		w, err := parseWord(a)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, describeWord(w))
	}
	return nil
}

// encodeLiteral builds the value for kind/lit. String values are
// allocated in cx and are only meaningful inside that runtime.
func encodeLiteral(cx *vm.Context, kind, lit string) (vm.Value, error) {
	switch kind {
	case "int32":
		i, err := strconv.ParseInt(lit, 10, 32)
		if err != nil {
			return vm.Undefined, fmt.Errorf("invalid int32 %q: %w", lit, err)
		}
		return vm.Int32Value(int32(i)), nil
	case "double":
		d, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return vm.Undefined, fmt.Errorf("invalid double %q: %w", lit, err)
		}
		return vm.DoubleValue(d), nil
	case "number":
		return vm.NumberValue(vm.StringToNumber(lit)), nil
	case "bool":
		b, err := strconv.ParseBool(lit)
		if err != nil {
			return vm.Undefined, fmt.Errorf("invalid bool %q: %w", lit, err)
		}
		return vm.BooleanValue(b), nil
	case "null":
		return vm.Null, nil
	case "undefined":
		return vm.Undefined, nil
	case "magic":
		n, err := strconv.ParseUint(lit, 10, 8)
		if err != nil || n == 0 || !vm.MagicReason(n).Valid() {
			return vm.Undefined, fmt.Errorf("invalid magic reason %q", lit)
		}
		return vm.MagicValue(vm.MagicReason(n)), nil
	case "string":
		s, err := cx.NewStringCopy(lit)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.StringValue(s), nil
	default:
		return vm.Undefined, fmt.Errorf("unknown kind %q", kind)
	}
}

// encodeKey builds an int property key.
func encodeKey(lit string) (vm.PropertyKey, error) {
	i, err := strconv.ParseInt(lit, 10, 32)
	if err != nil || !vm.IntFitsInKey(int32(i)) {
		return vm.KeyVoid, fmt.Errorf("key %q outside [%d, %d]", lit, vm.KeyMinInt, vm.KeyMaxInt)
	}
	return vm.KeyFromInt(int32(i)), nil
}

func handleEncodeCommand(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: tagval encode <kind> [literal]")
	}
	kind, lit := args[0], ""
	if len(args) > 1 {
		lit = args[1]
	}

	if kind == "key" {
		k, err := encodeKey(lit)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "0x%016x  %s\n", uint64(k), k)
		return nil
	}

	cx := vm.NewRuntime(vm.Options{}).NewContext()
	defer cx.Destroy()
	v, err := encodeLiteral(cx, kind, lit)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, describeWord(v.AsRawBits()))
	if v.IsGCThing() {
		fmt.Fprintln(out, "note: GC-thing words are addresses local to this process")
	}
	return nil
}
