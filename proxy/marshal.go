package proxy

import (
	"fmt"
	"reflect"
	"strings"
	"unsafe"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/realmproxy/realm"
)

// MarshalPolicy decides how values of shared reference types cross the
// realm boundary.
type MarshalPolicy int

const (
	// ByIdentity passes shared values as they are: both sides see the same
	// object and mutations are visible to the caller.
	ByIdentity MarshalPolicy = iota
	// ByCopy deep-copies shared values through CBOR. Only exported fields
	// survive the copy.
	ByCopy
)

func (p MarshalPolicy) String() string {
	switch p {
	case ByIdentity:
		return "identity"
	case ByCopy:
		return "copy"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy parses "identity" or "copy". The empty string is ByIdentity.
func ParsePolicy(s string) (MarshalPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "identity":
		return ByIdentity, nil
	case "copy":
		return ByCopy, nil
	}
	return 0, fmt.Errorf("unknown marshal policy %q (want identity or copy)", s)
}

var copyEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("proxy: failed to create CBOR enc mode: %v", err))
	}
	copyEncMode = em
}

// Marshaler moves values across the boundary of one module. Primitives and
// struct values are copied; slices, arrays and maps are rebuilt element by
// element; shared types follow the policy. Anything else, including a
// container that holds itself, is rejected with ErrNotMarshalable.
type Marshaler struct {
	Policy MarshalPolicy
}

// visit identifies a slice or map being rebuilt.
type visit struct {
	ptr unsafe.Pointer
	typ reflect.Type
}

// path holds the containers between the value being marshaled and the root.
type path map[visit]struct{}

func (p path) enter(v reflect.Value) (visit, error) {
	key := visit{ptr: v.UnsafePointer(), typ: v.Type()}
	if _, ok := p[key]; ok {
		return key, fmt.Errorf("%w: %s contains itself", ErrNotMarshalable, v.Type())
	}
	p[key] = struct{}{}
	return key, nil
}

// In marshals an argument travelling into the realm.
func (m Marshaler) In(mod *realm.Module, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	out, err := m.value(mod, reflect.ValueOf(v), path{})
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

// Out marshals a result travelling back to the caller and checks it against
// the contract's result type.
func (m Marshaler) Out(mod *realm.Module, v any, want reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(want), nil
	}
	out, err := m.value(mod, reflect.ValueOf(v), path{})
	if err != nil {
		return reflect.Value{}, err
	}
	if !out.Type().AssignableTo(want) {
		return reflect.Value{}, fmt.Errorf("%w: result %s is not assignable to %s", realm.ErrContractMismatch, out.Type(), want)
	}
	rv := reflect.New(want).Elem()
	rv.Set(out)
	return rv, nil
}

func (m Marshaler) value(mod *realm.Module, v reflect.Value, seen path) (reflect.Value, error) {
	t := v.Type()
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.String:
		return v, nil

	case reflect.Slice:
		if v.IsNil() {
			return v, nil
		}
		key, err := seen.enter(v)
		if err != nil {
			return reflect.Value{}, err
		}
		defer delete(seen, key)
		out := reflect.MakeSlice(t, v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			e, err := m.element(mod, v.Index(i), seen)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(e)
		}
		return out, nil

	case reflect.Array:
		out := reflect.New(t).Elem()
		for i := 0; i < v.Len(); i++ {
			e, err := m.element(mod, v.Index(i), seen)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(e)
		}
		return out, nil

	case reflect.Map:
		if v.IsNil() {
			return v, nil
		}
		key, err := seen.enter(v)
		if err != nil {
			return reflect.Value{}, err
		}
		defer delete(seen, key)
		out := reflect.MakeMapWithSize(t, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k, err := m.element(mod, iter.Key(), seen)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("map key: %w", err)
			}
			e, err := m.element(mod, iter.Value(), seen)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("map value %v: %w", iter.Key(), err)
			}
			out.SetMapIndex(k, e)
		}
		return out, nil

	case reflect.Pointer, reflect.Struct:
		if mod.Shares(t) {
			if m.Policy == ByIdentity || (t.Kind() == reflect.Pointer && v.IsNil()) {
				return v, nil
			}
			return deepCopy(v)
		}
		if t.Kind() == reflect.Struct {
			return m.structValue(mod, v, seen)
		}
	}
	return reflect.Value{}, fmt.Errorf("%w: %s is not shared by module %s", ErrNotMarshalable, t, mod.Name)
}

// structValue copies a struct value that is not shared. Exported fields are
// marshaled one by one; unexported fields are copied as they are and so may
// only hold plain data.
func (m Marshaler) structValue(mod *realm.Module, v reflect.Value, seen path) (reflect.Value, error) {
	t := v.Type()
	out := reflect.New(t).Elem()
	out.Set(v)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			if !plainData(f.Type) {
				return reflect.Value{}, fmt.Errorf("%w: %s: unexported field %s holds %s", ErrNotMarshalable, t, f.Name, f.Type)
			}
			continue
		}
		e, err := m.element(mod, v.Field(i), seen)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out.Field(i).Set(e)
	}
	return out, nil
}

// plainData reports whether values of t hold no references at all.
func plainData(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.String:
		return true
	case reflect.Array:
		return plainData(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !plainData(t.Field(i).Type) {
				return false
			}
		}
		return true
	}
	return false
}

// element marshals a value held inside a container. Interface-typed slots
// are unwrapped and the result is stored back with the slot's type.
func (m Marshaler) element(mod *realm.Module, v reflect.Value, seen path) (reflect.Value, error) {
	if v.Kind() != reflect.Interface {
		return m.value(mod, v, seen)
	}
	if v.IsNil() {
		return reflect.Zero(v.Type()), nil
	}
	inner, err := m.value(mod, v.Elem(), seen)
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(v.Type()).Elem()
	out.Set(inner)
	return out, nil
}

// deepCopy clones v through a CBOR round trip.
func deepCopy(v reflect.Value) (reflect.Value, error) {
	data, err := copyEncMode.Marshal(v.Interface())
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%w: copying %s: %w", ErrNotMarshalable, v.Type(), err)
	}

	t := v.Type()
	target := reflect.New(t)
	if t.Kind() == reflect.Pointer {
		target.Elem().Set(reflect.New(t.Elem()))
		if err := cbor.Unmarshal(data, target.Elem().Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("%w: copying %s: %w", ErrNotMarshalable, t, err)
		}
		return target.Elem(), nil
	}
	if err := cbor.Unmarshal(data, target.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("%w: copying %s: %w", ErrNotMarshalable, t, err)
	}
	return target.Elem(), nil
}
