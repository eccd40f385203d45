// Package equal provides the comparisons the store uses to decide whether a
// proposed slice transition is a no-op.
//
// Identical is the cheap check. Scalars compare by value, except that NaN is
// identical to NaN and +0 is not identical to -0. It compares reference kinds
// (pointers, maps, slices, channels) by identity. Structs and arrays are Go
// values, so they are identical when all of their fields are identical.
//
//	a := map[string]int{"x": 1}
//	b := map[string]int{"x": 1}
//	equal.Identical(a, a)  // true
//	equal.Identical(a, b)  // false: distinct maps
//	equal.Structural(a, b) // true
//
// Structural recurses through maps, slices, arrays, structs, pointers and
// interfaces, failing fast on the first difference. Recursion is guarded by a
// visited set, so cyclic values terminate.
package equal
