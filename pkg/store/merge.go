package store

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Patch is a shallow partial update. Keys name struct fields (by Go name or
// json tag) or map keys. A nil value sets the target to its zero value.
type Patch map[string]any

// mergeInto returns a new value holding current with patch applied on top.
// current is never mutated; the result is always a fresh composite.
func mergeInto[T any](slice string, current T, patch Patch) (T, error) {
	src := reflect.ValueOf(&current).Elem()
	out, err := mergeValue(slice, src, patch)
	if err != nil {
		return current, err
	}
	return out.Interface().(T), nil
}

func mergeValue(slice string, v reflect.Value, patch Patch) (reflect.Value, error) {
	switch v.Kind() {
	case reflect.Struct:
		return mergeStruct(slice, v, patch)

	case reflect.Pointer:
		if v.IsNil() {
			return v, &MergeError{Slice: slice, Reason: "value is a nil pointer"}
		}
		if v.Elem().Kind() != reflect.Struct {
			return v, &MergeError{Slice: slice, Reason: fmt.Sprintf("%s is not a composite", v.Type())}
		}
		merged, err := mergeStruct(slice, v.Elem(), patch)
		if err != nil {
			return v, err
		}
		p := reflect.New(v.Type().Elem())
		p.Elem().Set(merged)
		return p, nil

	case reflect.Map:
		return mergeMap(slice, v, patch)

	case reflect.Interface:
		if v.IsNil() {
			return v, &MergeError{Slice: slice, Reason: "value is nil"}
		}
		merged, err := mergeValue(slice, v.Elem(), patch)
		if err != nil {
			return v, err
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(merged)
		return out, nil

	default:
		return v, &MergeError{Slice: slice, Reason: fmt.Sprintf("%s is not a composite", v.Type())}
	}
}

func mergeStruct(slice string, v reflect.Value, patch Patch) (reflect.Value, error) {
	out := reflect.New(v.Type()).Elem()
	out.Set(v)
	for name, pv := range patch {
		field, ok := structField(v.Type(), name)
		if !ok {
			return v, &MergeError{Slice: slice, Field: name, Reason: fmt.Sprintf("no such field in %s", v.Type())}
		}
		if !field.IsExported() {
			return v, &MergeError{Slice: slice, Field: name, Reason: "field is unexported"}
		}
		dst, err := writableField(out, field.Index)
		if err != nil {
			return v, &MergeError{Slice: slice, Field: name, Reason: err.Error()}
		}
		val, err := assignable(pv, field.Type)
		if err != nil {
			return v, &MergeError{Slice: slice, Field: name, Reason: err.Error()}
		}
		dst.Set(val)
	}
	return out, nil
}

// writableField walks index from the struct out. An embedded pointer on the
// path is replaced by a pointer to a copy of its target, so the write never
// reaches a struct shared with the committed value.
func writableField(out reflect.Value, index []int) (reflect.Value, error) {
	v := out
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, fmt.Errorf("embedded %s is nil", v.Type())
			}
			if !v.CanSet() {
				return reflect.Value{}, fmt.Errorf("embedded %s is unexported", v.Type())
			}
			cp := reflect.New(v.Type().Elem())
			cp.Elem().Set(v.Elem())
			v.Set(cp)
			v = cp.Elem()
		}
		v = v.Field(x)
	}
	return v, nil
}

// structField finds a field by Go name, then by json tag name.
func structField(t reflect.Type, name string) (reflect.StructField, bool) {
	if f, ok := t.FieldByName(name); ok {
		return f, true
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag != "" && tag != "-" && tag == name {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

func mergeMap(slice string, v reflect.Value, patch Patch) (reflect.Value, error) {
	t := v.Type()
	if t.Key().Kind() != reflect.String {
		return v, &MergeError{Slice: slice, Reason: fmt.Sprintf("%s does not have string keys", t)}
	}
	out := reflect.MakeMapWithSize(t, v.Len()+len(patch))
	iter := v.MapRange()
	for iter.Next() {
		out.SetMapIndex(iter.Key(), iter.Value())
	}
	for name, pv := range patch {
		val, err := assignable(pv, t.Elem())
		if err != nil {
			return v, &MergeError{Slice: slice, Field: name, Reason: err.Error()}
		}
		out.SetMapIndex(reflect.ValueOf(name).Convert(t.Key()), val)
	}
	return out, nil
}

// assignable converts a patch value to t. Only numeric to numeric and string
// to string conversions are applied implicitly.
func assignable(pv any, t reflect.Type) (reflect.Value, error) {
	if pv == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(pv)
	if v.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(v)
		return out, nil
	}
	if numeric(v.Kind()) && numeric(t.Kind()) {
		if err := fits(v, t); err != nil {
			return reflect.Value{}, err
		}
		return v.Convert(t), nil
	}
	if v.Kind() == reflect.String && t.Kind() == reflect.String {
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", v.Type(), t)
}

// fits reports an error when converting the numeric v to t would lose its
// value: overflow, a sign flip or a dropped fraction.
func fits(v reflect.Value, t reflect.Type) error {
	target := reflect.Zero(t)
	lossy := fmt.Errorf("%v does not fit in %s", v.Interface(), t)

	switch {
	case isFloat(t.Kind()):
		var f float64
		switch {
		case isFloat(v.Kind()):
			f = v.Float()
		case isInt(v.Kind()):
			f = float64(v.Int())
		default:
			f = float64(v.Uint())
		}
		if !math.IsInf(f, 0) && !math.IsNaN(f) && target.OverflowFloat(f) {
			return lossy
		}

	case isInt(t.Kind()):
		switch {
		case isFloat(v.Kind()):
			f := v.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return lossy
			}
			if target.OverflowInt(int64(f)) {
				return lossy
			}
		case isInt(v.Kind()):
			if target.OverflowInt(v.Int()) {
				return lossy
			}
		default:
			u := v.Uint()
			if u > math.MaxInt64 || target.OverflowInt(int64(u)) {
				return lossy
			}
		}

	default:
		switch {
		case isFloat(v.Kind()):
			f := v.Float()
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
				return lossy
			}
			if target.OverflowUint(uint64(f)) {
				return lossy
			}
		case isInt(v.Kind()):
			i := v.Int()
			if i < 0 || target.OverflowUint(uint64(i)) {
				return lossy
			}
		default:
			if target.OverflowUint(v.Uint()) {
				return lossy
			}
		}
	}
	return nil
}

func isInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func numeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
