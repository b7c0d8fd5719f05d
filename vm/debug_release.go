//go:build release

package vm

const debugChecks = false
