package vm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unicode/utf16"
)

// ---------------------------------------------------------------------------
// Runtime and Context
// ---------------------------------------------------------------------------

// DefaultTriggerBytes is the allocation volume after which MaybeGC and
// allocation start a collection when Options.TriggerBytes is zero.
const DefaultTriggerBytes int64 = 1 << 20

// Approximate sizes charged to the heap.
const (
	stringHeaderBytes int64 = 48
	objectHeaderBytes int64 = 96
	propertyBytes     int64 = 24
)

// Options configures a Runtime.
type Options struct {
	// MaxBytes bounds the heap. Allocation past it runs a last-ditch
	// collection and then fails with ErrOutOfMemory. Zero means unbounded.
	MaxBytes int64

	// TriggerBytes is the allocation volume since the previous collection
	// that makes the next allocation collect.
	TriggerBytes int64

	// Zeal collects at every collection point. Slow; it shakes out missing
	// anchors in tests.
	Zeal bool
}

// Runtime owns a GC heap, its root table, its intern table and its
// contexts. All of its bookkeeping is guarded by mu; a collection runs with
// mu held.
type Runtime struct {
	mu   sync.Mutex
	opts Options

	things        map[uintptr]GCThing
	bytes         atomic.Int64
	bytesAtLastGC int64

	roots    map[any]*rootEntry
	atoms    map[string]*String
	contexts map[*Context]struct{}

	callbacks  []GCCallback
	collecting bool
	phase      GCStatus
	gcNumber   uint64
	lastStats  atomic.Pointer[GCStats]

	// requests counts contexts inside a request and not suspended. It is
	// only modified with mu held; requestCond is signalled whenever it
	// drops or a waiting collection finishes.
	requests    atomic.Int32
	requestCond *sync.Cond
	gcWaiters   int
}

// NewRuntime creates an empty runtime.
func NewRuntime(opts Options) *Runtime {
	if opts.TriggerBytes <= 0 {
		opts.TriggerBytes = DefaultTriggerBytes
	}
	rt := &Runtime{
		opts:     opts,
		things:   make(map[uintptr]GCThing),
		roots:    make(map[any]*rootEntry),
		atoms:    make(map[string]*String),
		contexts: make(map[*Context]struct{}),
	}
	rt.requestCond = sync.NewCond(&rt.mu)
	return rt
}

// Options returns the options the runtime was created with.
func (rt *Runtime) Options() Options { return rt.opts }

// HeapBytes returns the bytes currently charged to the heap.
func (rt *Runtime) HeapBytes() int64 { return rt.bytes.Load() }

// ActiveRequests returns the number of contexts inside a request that is
// not suspended.
func (rt *Runtime) ActiveRequests() int { return int(rt.requests.Load()) }

// Context is a per-goroutine handle on a Runtime. It carries the anchor
// stack the collector scans and is the entry point for every operation
// that may allocate or collect. A Context must not be shared between
// goroutines.
type Context struct {
	rt *Runtime

	anchorMu sync.Mutex
	anchors  []Value

	requestDepth int
	suspended    bool
	destroyed    bool
}

// NewContext creates a context on rt.
func (rt *Runtime) NewContext() *Context {
	cx := &Context{rt: rt, anchors: make([]Value, 0, 64)}
	rt.mu.Lock()
	rt.contexts[cx] = struct{}{}
	rt.mu.Unlock()
	return cx
}

// Runtime returns the runtime cx belongs to.
func (cx *Context) Runtime() *Runtime { return cx.rt }

// Destroy detaches cx from its runtime. Its anchors must all have been
// released.
func (cx *Context) Destroy() {
	if debugChecks {
		if n := cx.AnchorDepth(); n != 0 {
			contractViolation("Context.Destroy", "%d anchors still live", n)
		}
		if cx.requestDepth != 0 {
			contractViolation("Context.Destroy", "inside a request")
		}
	}
	cx.rt.mu.Lock()
	delete(cx.rt.contexts, cx)
	cx.rt.mu.Unlock()
	cx.destroyed = true
}

// BeginRequest marks the start of a window in which cx may hold GC-things
// in Go locals. While any context is inside a request, collections started
// by other contexts wait for it to end, suspend or yield, and the
// background collector skips. A collection cx starts itself still sweeps
// cx's unanchored locals. Requests nest; only the outermost one waits for
// a pending collection to finish.
func (cx *Context) BeginRequest() {
	if debugChecks && cx.suspended {
		contractViolation("Context.BeginRequest", "request suspended")
	}
	if cx.requestDepth == 0 {
		cx.rt.mu.Lock()
		cx.rt.enterRequestLocked()
		cx.rt.mu.Unlock()
	}
	cx.requestDepth++
}

// EndRequest closes the innermost request.
func (cx *Context) EndRequest() {
	if debugChecks {
		if cx.requestDepth == 0 {
			contractViolation("Context.EndRequest", "no request active")
		}
		if cx.suspended {
			contractViolation("Context.EndRequest", "request suspended")
		}
	}
	cx.requestDepth--
	if cx.requestDepth == 0 {
		cx.rt.mu.Lock()
		cx.rt.leaveRequestLocked()
		cx.rt.mu.Unlock()
	}
}

// SuspendRequest lets collections from other contexts run while cx
// blocks outside the heap, e.g. on I/O. The request depth is kept; cx
// must not touch unanchored GC-things until ResumeRequest.
func (cx *Context) SuspendRequest() {
	if debugChecks {
		if cx.requestDepth == 0 {
			contractViolation("Context.SuspendRequest", "no request active")
		}
		if cx.suspended {
			contractViolation("Context.SuspendRequest", "already suspended")
		}
	}
	cx.rt.mu.Lock()
	cx.rt.leaveRequestLocked()
	cx.rt.mu.Unlock()
	cx.suspended = true
}

// ResumeRequest re-enters the request suspended by SuspendRequest,
// waiting for any pending collection to finish first.
func (cx *Context) ResumeRequest() {
	if debugChecks && !cx.suspended {
		contractViolation("Context.ResumeRequest", "not suspended")
	}
	cx.rt.mu.Lock()
	cx.rt.enterRequestLocked()
	cx.rt.mu.Unlock()
	cx.suspended = false
}

// YieldRequest lets a pending collection from another context run, then
// resumes the request. Unanchored locals of cx may be swept.
func (cx *Context) YieldRequest() {
	cx.SuspendRequest()
	cx.ResumeRequest()
}

// InRequest reports whether cx is inside a request that is not suspended.
func (cx *Context) InRequest() bool { return cx.requestDepth > 0 && !cx.suspended }

func (rt *Runtime) enterRequestLocked() {
	for rt.gcWaiters > 0 {
		rt.requestCond.Wait()
	}
	rt.requests.Add(1)
}

func (rt *Runtime) leaveRequestLocked() {
	rt.requests.Add(-1)
	rt.requestCond.Broadcast()
}

// collectForLocked runs a collection on behalf of cx once no other context
// is inside a request. cx's own request, if any, counts as suspended while
// it waits, so two contexts collecting at once cannot deadlock. cx may be
// nil for a collection no context started.
func (rt *Runtime) collectForLocked(cx *Context, reason GCReason) *GCStats {
	if rt.collecting {
		contractViolation("GC", "collection re-entered from a GC callback")
	}
	own := cx != nil && cx.InRequest()
	if own {
		rt.requests.Add(-1)
	}
	rt.gcWaiters++
	for rt.requests.Load() > 0 {
		rt.requestCond.Wait()
	}
	stats := rt.collectLocked(reason)
	rt.gcWaiters--
	rt.requestCond.Broadcast()
	if own {
		rt.enterRequestLocked()
	}
	return stats
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------
//
// Every allocation is a collection point: anything the caller holds only in
// Go locals may be swept before the new thing is returned.

// NewStringCopy allocates a string holding the UTF-16 encoding of s.
// Invalid UTF-8 bytes become U+FFFD, so such input does not round-trip
// through Text; use NewUCString for exact code units.
func (cx *Context) NewStringCopy(s string) (*String, error) {
	return cx.NewUCString(utf16.Encode([]rune(s)))
}

// NewUCString allocates a string holding a copy of chars.
func (cx *Context) NewUCString(chars []uint16) (*String, error) {
	str := &String{chars: append([]uint16(nil), chars...)}
	if err := cx.allocate(str, stringHeaderBytes+2*int64(len(chars))); err != nil {
		return nil, fmt.Errorf("allocating string of %d chars: %w", len(chars), err)
	}
	return str, nil
}

// NewObject allocates an empty object. proto may be nil; otherwise the
// caller must keep it rooted across the call.
func (cx *Context) NewObject(class string, proto *Object) (*Object, error) {
	obj := &Object{class: class, proto: proto, primitive: Undefined}
	if err := cx.allocate(obj, objectHeaderBytes); err != nil {
		return nil, fmt.Errorf("allocating %s object: %w", class, err)
	}
	return obj, nil
}

// NewFunction allocates a callable object whose body is fn.
func (cx *Context) NewFunction(name string, fn NativeFunc) (*Object, error) {
	obj := &Object{class: "Function", primitive: Undefined, call: fn}
	if err := cx.allocate(obj, objectHeaderBytes); err != nil {
		return nil, fmt.Errorf("allocating function %s: %w", name, err)
	}
	return obj, nil
}

// newWrapper allocates a Boolean, Number or String wrapper for prim. A
// string prim must be rooted by the caller.
func (cx *Context) newWrapper(class string, prim Value) (*Object, error) {
	obj := &Object{class: class, primitive: prim}
	if err := cx.allocate(obj, objectHeaderBytes); err != nil {
		return nil, fmt.Errorf("allocating %s wrapper: %w", class, err)
	}
	return obj, nil
}

// DefineProperty sets obj[key] = v, charging the heap for a new slot. The
// object, key and value must be rooted by the caller.
func (cx *Context) DefineProperty(obj *Object, key PropertyKey, v Value) {
	if _, ok := obj.props[key]; !ok {
		cx.rt.bytes.Add(propertyBytes)
		obj.header().size += propertyBytes
	}
	obj.Set(key, v)
}

func (cx *Context) allocate(thing GCThing, size int64) error {
	rt := cx.rt
	if debugChecks && cx.destroyed {
		contractViolation("allocate", "context destroyed")
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.allocateLocked(cx, thing, size)
}

// allocateLocked may wait for other contexts' requests, releasing mu while
// it does. Callers must re-validate anything they looked up under mu.
func (rt *Runtime) allocateLocked(cx *Context, thing GCThing, size int64) error {
	switch {
	case rt.opts.Zeal:
		rt.collectForLocked(cx, ReasonZeal)
	case rt.bytes.Load()-rt.bytesAtLastGC+size > rt.opts.TriggerBytes:
		rt.collectForLocked(cx, ReasonAllocTrigger)
	}
	if rt.opts.MaxBytes > 0 && rt.bytes.Load()+size > rt.opts.MaxBytes {
		rt.collectForLocked(cx, ReasonLastDitch)
		if rt.bytes.Load()+size > rt.opts.MaxBytes {
			gcLog.Warningf("allocation of %d bytes refused: heap at %d of %d", size, rt.bytes.Load(), rt.opts.MaxBytes)
			return ErrOutOfMemory
		}
	}

	h := thing.header()
	h.rt = rt
	h.size = size
	rt.things[thing.address()] = thing
	rt.bytes.Add(size)
	return nil
}

// collectionPoint is reached by operations that may re-enter user code.
func (cx *Context) collectionPoint() {
	if !cx.rt.opts.Zeal {
		return
	}
	cx.rt.mu.Lock()
	cx.rt.collectForLocked(cx, ReasonZeal)
	cx.rt.mu.Unlock()
}
