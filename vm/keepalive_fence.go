//go:build amd64 || arm64

package vm

import "runtime"

// anchorFence keeps the anchored value observable until the anchor is
// released, so neither the compiler nor Go's collector can end its lifetime
// early while a derived pointer is still in use.
func anchorFence[T AnchorPermitted](v T) {
	runtime.KeepAlive(v)
}
