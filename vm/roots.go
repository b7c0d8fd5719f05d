package vm

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
)

// ---------------------------------------------------------------------------
// Persistent root table
// ---------------------------------------------------------------------------
//
// A root is the address of a location the collector reads at every
// collection. Whatever the location holds at that moment is kept alive.
// Roots are removed explicitly; the table never drops one on its own.

type rootKind uint8

const (
	rootValue rootKind = iota
	rootString
	rootObject
	rootVector
)

func (k rootKind) String() string {
	switch k {
	case rootValue:
		return "value"
	case rootString:
		return "string"
	case rootObject:
		return "object"
	default:
		return "vector"
	}
}

type rootEntry struct {
	kind rootKind
	ptr  any
	name string
}

func (r *rootEntry) trace(trc Tracer) {
	switch p := r.ptr.(type) {
	case *Value:
		MarkValue(trc, *p, r.name)
	case **String:
		if *p != nil {
			MarkString(trc, *p, r.name)
		}
	case **Object:
		if *p != nil {
			MarkObject(trc, *p, r.name)
		}
	case *[]Value:
		MarkValueRange(trc, *p, r.name)
	}
}

// AddValueRoot roots the Value stored at vp. An empty name is replaced by
// the caller's file:line.
func (rt *Runtime) AddValueRoot(vp *Value, name string) {
	rt.addRoot(rootValue, vp, name)
}

// AddStringRoot roots the string pointer stored at sp.
func (rt *Runtime) AddStringRoot(sp **String, name string) {
	rt.addRoot(rootString, sp, name)
}

// AddObjectRoot roots the object pointer stored at op.
func (rt *Runtime) AddObjectRoot(op **Object, name string) {
	rt.addRoot(rootObject, op, name)
}

// AddVectorRoot roots every Value of the slice stored at vp, including
// values appended after registration.
func (rt *Runtime) AddVectorRoot(vp *[]Value, name string) {
	rt.addRoot(rootVector, vp, name)
}

func (rt *Runtime) addRoot(kind rootKind, ptr any, name string) {
	if name == "" {
		name = callerName(3)
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if debugChecks {
		if _, dup := rt.roots[ptr]; dup {
			contractViolation("AddRoot", "%s root %q registered twice", kind, name)
		}
	}
	rt.roots[ptr] = &rootEntry{kind: kind, ptr: ptr, name: name}
	rootsLog.Debugf("added %s root %q", kind, name)
}

// RemoveRoot unregisters the location passed to one of the Add*Root
// methods. Removing an unknown location is a no-op.
func (rt *Runtime) RemoveRoot(ptr any) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if r, ok := rt.roots[ptr]; ok {
		delete(rt.roots, ptr)
		rootsLog.Debugf("removed %s root %q", r.kind, r.name)
	}
}

// RootCount returns the number of registered roots.
func (rt *Runtime) RootCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.roots)
}

// RootInfo describes one registered root.
type RootInfo struct {
	Name  string
	Kind  string
	Value Value // current referent; for vectors, Undefined
	Len   int   // vectors only
}

func (r *rootEntry) info() RootInfo {
	info := RootInfo{Name: r.name, Kind: r.kind.String(), Value: Undefined}
	switch p := r.ptr.(type) {
	case *Value:
		info.Value = *p
	case **String:
		if *p != nil {
			info.Value = StringValue(*p)
		}
	case **Object:
		info.Value = ObjectOrNullValue(*p)
	case *[]Value:
		info.Len = len(*p)
	}
	return info
}

// sortedRoots returns the table ordered by name, then kind.
func (rt *Runtime) sortedRoots() []*rootEntry {
	entries := make([]*rootEntry, 0, len(rt.roots))
	for _, r := range rt.roots {
		entries = append(entries, r)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].name != entries[j].name {
			return entries[i].name < entries[j].name
		}
		return entries[i].kind < entries[j].kind
	})
	return entries
}

// DumpNamedRoots calls fn for every root in name order.
func (rt *Runtime) DumpNamedRoots(fn func(RootInfo)) {
	rt.mu.Lock()
	entries := rt.sortedRoots()
	rt.mu.Unlock()
	for _, r := range entries {
		fn(r.info())
	}
}

// RootMapAction tells MapGCRoots what to do after visiting a root.
type RootMapAction int

const (
	RootMapNext   RootMapAction = 0
	RootMapStop   RootMapAction = 1
	RootMapRemove RootMapAction = 2
)

// MapGCRoots visits roots in name order. fn returns RootMapNext to
// continue, RootMapRemove to drop the visited root, and may OR in
// RootMapStop to end the walk. It returns the number of roots visited.
//
// fn runs without the runtime lock, so it may add or remove roots and
// collect. Roots removed before their turn are skipped; roots added during
// the walk are not visited.
func (rt *Runtime) MapGCRoots(fn func(RootInfo) RootMapAction) int {
	rt.mu.Lock()
	entries := rt.sortedRoots()
	rt.mu.Unlock()

	count := 0
	for _, r := range entries {
		rt.mu.Lock()
		live := rt.roots[r.ptr] == r
		rt.mu.Unlock()
		if !live {
			continue
		}
		count++
		action := fn(r.info())
		if action&RootMapRemove != 0 {
			rt.mu.Lock()
			if rt.roots[r.ptr] == r {
				delete(rt.roots, r.ptr)
				rootsLog.Debugf("mapped out %s root %q", r.kind, r.name)
			}
			rt.mu.Unlock()
		}
		if action&RootMapStop != 0 {
			break
		}
	}
	return count
}

func callerName(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown root"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
