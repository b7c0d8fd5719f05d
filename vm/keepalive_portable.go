//go:build !amd64 && !arm64

package vm

import "sync/atomic"

var anchorSink atomic.Uint64

// anchorFence publishes the anchored word through an atomic store, which
// the compiler may not elide or reorder before the last use of the value.
func anchorFence[T AnchorPermitted](v T) {
	anchorSink.Store(uint64(anchorValue(v)))
}
