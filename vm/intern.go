package vm

import (
	"fmt"
	"unicode/utf16"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Intern table: canonical strings
// ---------------------------------------------------------------------------
//
// Every distinct character sequence has at most one atom per runtime, so
// atoms compare by identity and can back PropertyKeys. Atoms are weak: an
// atom nothing else reaches is swept like any string and its entry dropped.
// Interned atoms are pinned and live as long as the runtime.

// atomKey maps characters to a table key without losing lone surrogates.
func atomKey(chars []uint16) string {
	if len(chars) == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(&chars[0])), 2*len(chars)))
}

// Atomize returns the atom for s. The atom is not rooted; keep it anchored
// while it or a key built from it is in use.
func (cx *Context) Atomize(s string) (*String, error) {
	return cx.atomize(utf16.Encode([]rune(s)), false)
}

// AtomizeUC returns the atom for chars.
func (cx *Context) AtomizeUC(chars []uint16) (*String, error) {
	return cx.atomize(chars, false)
}

// AtomizeString returns the atom with str's contents. str must be rooted
// by the caller; it is returned unchanged if it already is an atom.
func (cx *Context) AtomizeString(str *String) (*String, error) {
	if str.atom {
		return str, nil
	}
	return cx.atomize(str.chars, false)
}

// InternString returns the pinned atom for s. Interned atoms are never
// collected.
func (cx *Context) InternString(s string) (*String, error) {
	return cx.atomize(utf16.Encode([]rune(s)), true)
}

// InternJSString pins and returns the atom with str's contents. str must be
// rooted by the caller.
func (cx *Context) InternJSString(str *String) (*String, error) {
	return cx.atomize(str.chars, true)
}

func (cx *Context) atomize(chars []uint16, pin bool) (*String, error) {
	rt := cx.rt
	key := atomKey(chars)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if atom, ok := rt.atoms[key]; ok {
		if pin {
			atom.pinned = true
		}
		return atom, nil
	}

	atom := &String{chars: append([]uint16(nil), chars...)}
	if err := rt.allocateLocked(cx, atom, stringHeaderBytes+2*int64(len(chars))); err != nil {
		return nil, fmt.Errorf("atomizing %d chars: %w", len(chars), err)
	}
	// Another context may have atomized the same text while allocation
	// waited; the fresh string is then plain garbage.
	if existing, ok := rt.atoms[key]; ok {
		if pin {
			existing.pinned = true
		}
		return existing, nil
	}
	atom.atom = true
	atom.pinned = pin
	rt.atoms[key] = atom
	return atom, nil
}

// LookupAtom returns the existing atom for s without creating one.
func (rt *Runtime) LookupAtom(s string) (*String, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	atom, ok := rt.atoms[atomKey(utf16.Encode([]rune(s)))]
	return atom, ok
}

// StringHasBeenInterned reports whether s is a pinned atom of rt.
func (rt *Runtime) StringHasBeenInterned(s *String) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return s.atom && s.pinned && s.rt == rt
}

// AtomCount returns the number of live atoms.
func (rt *Runtime) AtomCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.atoms)
}
