//go:build !release

package vm

// debugChecks enables contract assertions. Build with -tags release to
// compile them out.
const debugChecks = true
