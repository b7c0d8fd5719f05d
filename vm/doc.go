// Package vm implements the tagval value representation.
//
// This package contains:
//   - NaN-boxed Value encoding and the Value façade
//   - PropertyKey, the narrower property index word
//   - Anchor, the scoped rooting guard
//   - GC tracing dispatch and a reference stop-the-world heap
//   - Persistent roots, holders and the intern table
//   - Value coercion (ConvertTo and friends)
package vm
