package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/chazu/tagval/config"
	"github.com/chazu/tagval/journal"
	"github.com/chazu/tagval/vm"
	"github.com/chazu/tagval/wire"
)

// ---------------------------------------------------------------------------
// tagval stress: allocate garbage under the configured heap limits
// ---------------------------------------------------------------------------

type stressResult struct {
	Allocated   int
	Collections uint64
	Swept       int
	Live        int
	HeapBytes   int64
	Elapsed     time.Duration
}

// runStress allocates n string/object pairs, keeping every live'th one in
// a rooted vector, then round-trips the survivors through the wire format
// and checks that each received word is accepted.
func runStress(cfg *config.Config, n, live int, out io.Writer) (*stressResult, error) {
	rt, sched := cfg.NewRuntime()
	if sched != nil {
		defer sched.Stop()
	}

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		defer j.Close()
		j.Attach(rt)
		fmt.Fprintf(out, "journal session %s\n", j.Session())
	}

	var collections atomic.Uint64
	var swept atomic.Int64
	rt.AddGCCallback(func(rt *vm.Runtime, status vm.GCStatus) {
		if status == vm.GCEnd {
			collections.Add(1)
			swept.Add(int64(rt.LastGCStats().Swept()))
		}
	})

	cx := rt.NewContext()
	defer cx.Destroy()
	kept := vm.NewRootedVector(rt, "stress")
	defer kept.Release()

	start := time.Now()
	cx.BeginRequest()
	for i := 0; i < n; i++ {
		obj, err := cx.NewObject("Object", nil)
		if err != nil {
			cx.EndRequest()
			return nil, fmt.Errorf("allocation %d: %w", i, err)
		}
		a := vm.NewAnchor(cx, obj)
		s, err := cx.NewStringCopy("item " + strconv.Itoa(i))
		if err != nil {
			a.Release()
			cx.EndRequest()
			return nil, fmt.Errorf("allocation %d: %w", i, err)
		}
		key, err := cx.ValueToKey(vm.Int32Value(int32(i % 1024)))
		if err == nil {
			cx.DefineProperty(obj, key, vm.StringValue(s))
		}
		if live > 0 && i%live == 0 {
			kept.Append(vm.ObjectValue(obj))
		}
		a.Release()
		if i%64 == 0 {
			cx.MaybeGC()
		}
	}
	cx.EndRequest()
	cx.GC()

	data, err := wire.Marshal(kept.Values(), nil)
	if err != nil {
		return nil, err
	}
	received, err := wire.Receive(cx, data)
	if err != nil {
		return nil, fmt.Errorf("wire round trip: %w", err)
	}
	defer received.Release()
	if received.Len() != kept.Len() {
		return nil, fmt.Errorf("wire round trip: got %d values, want %d", received.Len(), kept.Len())
	}

	return &stressResult{
		Allocated:   2 * n,
		Collections: collections.Load(),
		Swept:       int(swept.Load()),
		Live:        kept.Len(),
		HeapBytes:   rt.HeapBytes(),
		Elapsed:     time.Since(start),
	}, nil
}

func handleStressCommand(args []string, cfg *config.Config, out io.Writer) error {
	fs := flag.NewFlagSet("stress", flag.ContinueOnError)
	n := fs.Int("n", 100000, "Number of objects to allocate")
	live := fs.Int("live", 100, "Keep every Nth object alive (0 keeps none)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n < 0 || *live < 0 {
		return fmt.Errorf("-n and -live must not be negative")
	}

	res, err := runStress(cfg, *n, *live, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "allocated:   %d things\n", res.Allocated)
	fmt.Fprintf(out, "collections: %d\n", res.Collections)
	fmt.Fprintf(out, "swept:       %d things\n", res.Swept)
	fmt.Fprintf(out, "live:        %d objects\n", res.Live)
	fmt.Fprintf(out, "heap:        %d bytes\n", res.HeapBytes)
	fmt.Fprintf(out, "elapsed:     %s\n", res.Elapsed)
	return nil
}
