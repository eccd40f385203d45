package equal

import (
	"math"
	"reflect"
)

// Func compares two values of the same type.
type Func[T any] func(a, b T) bool

// Identical reports whether a and b are the same value or the same reference.
// Values of different dynamic types are never identical. Functions are only
// identical when both are nil because Go offers no closure identity, so a
// value holding a non-nil func, directly or in a field, is never identical to
// itself.
func Identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	return identical(va, vb)
}

// Structural reports whether a and b are deeply equal: scalars by value,
// maps by key count and then per key, sequences by length and then per
// element, structs per field, pointers and interfaces through their targets.
// Nil and empty maps or slices are equal.
func Structural(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	return deepValue(va, vb, make(map[visit]struct{}))
}

// Identity is Identical typed for use as a comparator.
func Identity[T any](a, b T) bool {
	return Identical(a, b)
}

// Deep is Structural typed for use as a comparator.
func Deep[T any](a, b T) bool {
	return Structural(a, b)
}

// sameFloat treats NaN as NaN and tells signed zeros apart.
func sameFloat(x, y float64) bool {
	if math.IsNaN(x) && math.IsNaN(y) {
		return true
	}
	return x == y && math.Signbit(x) == math.Signbit(y)
}

func identical(a, b reflect.Value) bool {
	switch a.Kind() {
	case reflect.Bool:
		return a.Bool() == b.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() == b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return a.Uint() == b.Uint()
	case reflect.Float32, reflect.Float64:
		return sameFloat(a.Float(), b.Float())
	case reflect.Complex64, reflect.Complex128:
		ca, cb := a.Complex(), b.Complex()
		return sameFloat(real(ca), real(cb)) && sameFloat(imag(ca), imag(cb))
	case reflect.String:
		return a.String() == b.String()
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return a.Pointer() == b.Pointer()
	case reflect.Slice:
		return a.IsNil() == b.IsNil() && a.Pointer() == b.Pointer() && a.Len() == b.Len()
	case reflect.Func:
		return a.IsNil() && b.IsNil()
	case reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() && b.IsNil()
		}
		ea, eb := a.Elem(), b.Elem()
		if ea.Type() != eb.Type() {
			return false
		}
		return identical(ea, eb)
	case reflect.Array:
		for i := 0; i < a.Len(); i++ {
			if !identical(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !identical(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// visit identifies a pair of references already under comparison.
type visit struct {
	a, b uintptr
	n    int
	typ  reflect.Type
}

func deepValue(a, b reflect.Value, seen map[visit]struct{}) bool {
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}
	if a.Type() != b.Type() {
		return false
	}

	switch a.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if a.IsNil() != b.IsNil() {
			// nil and empty collections have the same cardinality
			if a.Kind() != reflect.Pointer && a.Len() == 0 && b.Len() == 0 {
				return true
			}
			return false
		}
		if a.IsNil() {
			return true
		}
		if a.Pointer() == b.Pointer() && (a.Kind() != reflect.Slice || a.Len() == b.Len()) {
			return true
		}
		v := visit{a: a.Pointer(), b: b.Pointer(), typ: a.Type()}
		if a.Kind() == reflect.Slice {
			v.n = a.Len()
		}
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}

	switch a.Kind() {
	case reflect.Float32, reflect.Float64:
		x, y := a.Float(), b.Float()
		return x == y || (math.IsNaN(x) && math.IsNaN(y))
	case reflect.Complex64, reflect.Complex128:
		ca, cb := a.Complex(), b.Complex()
		re := real(ca) == real(cb) || (math.IsNaN(real(ca)) && math.IsNaN(real(cb)))
		im := imag(ca) == imag(cb) || (math.IsNaN(imag(ca)) && math.IsNaN(imag(cb)))
		return re && im
	case reflect.Pointer:
		return deepValue(a.Elem(), b.Elem(), seen)
	case reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() && b.IsNil()
		}
		return deepValue(a.Elem(), b.Elem(), seen)
	case reflect.Map:
		if a.Len() != b.Len() {
			return false
		}
		iter := a.MapRange()
		for iter.Next() {
			bv := b.MapIndex(iter.Key())
			if !bv.IsValid() || !deepValue(iter.Value(), bv, seen) {
				return false
			}
		}
		return true
	case reflect.Slice, reflect.Array:
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !deepValue(a.Index(i), b.Index(i), seen) {
				return false
			}
		}
		return true
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !deepValue(a.Field(i), b.Field(i), seen) {
				return false
			}
		}
		return true
	case reflect.Func:
		return a.IsNil() && b.IsNil()
	default:
		return identical(a, b)
	}
}
