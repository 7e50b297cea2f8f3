package realm

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Library is a compiled body of realm-side code linked into the host binary.
// A module file names a library; every load of that module calls Build again,
// so each realm gets its own descriptor tables.
type Library struct {
	Name    string
	Version string
	Build   func(b *Builder)
}

var (
	librariesMu sync.RWMutex
	libraries   = make(map[string]*Library)
)

// RegisterLibrary makes a library available to module files. It panics on a
// nil library, an empty name, or a duplicate name.
func RegisterLibrary(lib *Library) {
	librariesMu.Lock()
	defer librariesMu.Unlock()

	if lib == nil || lib.Build == nil {
		panic("realm: RegisterLibrary with nil library or Build")
	}
	if lib.Name == "" {
		panic("realm: RegisterLibrary with empty name")
	}
	if _, dup := libraries[lib.Name]; dup {
		panic("realm: RegisterLibrary called twice for " + lib.Name)
	}
	libraries[lib.Name] = lib
}

// LookupLibrary finds a registered library by name.
func LookupLibrary(name string) (*Library, bool) {
	librariesMu.RLock()
	defer librariesMu.RUnlock()
	lib, ok := libraries[name]
	return lib, ok
}

// Libraries returns the sorted names of all registered libraries.
func Libraries() []string {
	librariesMu.RLock()
	defer librariesMu.RUnlock()

	names := make([]string, 0, len(libraries))
	for name := range libraries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builder collects the classes and shared types of a library during Build.
type Builder struct {
	lib     *Library
	classes []*ClassBuilder
	shared  []reflect.Type
}

// Library returns the library being built.
func (b *Builder) Library() *Library { return b.lib }

// Shared declares reference types whose values cross the realm boundary by
// identity: both sides see the same Go type.
func (b *Builder) Shared(types ...reflect.Type) {
	b.shared = append(b.shared, types...)
}

// Class starts a class declaration. Type parameters make the class generic;
// it must then be closed with type arguments before construction.
func (b *Builder) Class(name string, typeParams ...TypeParam) *ClassBuilder {
	c := &ClassBuilder{name: name, typeParams: typeParams}
	b.classes = append(b.classes, c)
	return c
}

// ClassBuilder declares the constructors and methods of one class.
type ClassBuilder struct {
	name       string
	typeParams []TypeParam
	ctors      []*MemberSpec
	methods    []*MemberSpec
}

// Constructor adds a constructor. fn is a func returning the instance and
// optionally an error; it may take an Env as its first parameter.
func (c *ClassBuilder) Constructor(fn any) *MemberSpec {
	s := &MemberSpec{name: "new", fn: fn}
	c.ctors = append(c.ctors, s)
	return s
}

// Method adds a method. fn is a method expression (receiver first),
// optionally followed by an Env, returning at most one value and optionally
// an error. Several methods may share a name; the resolver picks by
// parameters.
func (c *ClassBuilder) Method(name string, fn any) *MemberSpec {
	s := &MemberSpec{name: name, fn: fn}
	c.methods = append(c.methods, s)
	return s
}

// MemberSpec overrides what is derived from a member's Go signature.
type MemberSpec struct {
	name       string
	fn         any
	params     []string
	result     string
	typeParams []TypeParam
}

// Params declares parameter type keys, e.g. "T" for a parameter typed by a
// class type parameter. The count must match the Go signature.
func (s *MemberSpec) Params(keys ...string) *MemberSpec {
	s.params = keys
	return s
}

// Returns declares the result type key.
func (s *MemberSpec) Returns(key string) *MemberSpec {
	s.result = key
	return s
}

// TypeParams makes the member a generic method.
func (s *MemberSpec) TypeParams(params ...TypeParam) *MemberSpec {
	s.typeParams = params
	return s
}

// compile turns a spec into a member bound to its Go func.
func (s *MemberSpec) compile(ctor bool) (*Member, error) {
	fv := reflect.ValueOf(s.fn)
	if !fv.IsValid() || fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s: implementation is %T, not a func", s.name, s.fn)
	}
	ft := fv.Type()
	if ft.IsVariadic() {
		return nil, fmt.Errorf("%s: variadic implementations are not supported", s.name)
	}

	m := &Member{
		Name:       s.name,
		TypeParams: s.typeParams,
		fn:         fv,
		ctor:       ctor,
	}

	i := 0
	if !ctor {
		if ft.NumIn() == 0 {
			return nil, fmt.Errorf("%s: method implementation needs a receiver parameter", s.name)
		}
		m.recv = ft.In(0)
		i = 1
	}
	if ft.NumIn() > i && ft.In(i) == envType {
		m.wantsEnv = true
		i++
	}
	for ; i < ft.NumIn(); i++ {
		m.goParams = append(m.goParams, ft.In(i))
	}

	n := ft.NumOut()
	if n > 0 && ft.Out(n-1) == errorType {
		m.hasErr = true
		n--
	}
	switch {
	case n > 1:
		return nil, fmt.Errorf("%s: implementation returns %d values", s.name, n)
	case n == 1:
		m.goResult = ft.Out(0)
	case ctor:
		return nil, fmt.Errorf("%s: constructor returns no instance", s.name)
	}

	if s.params != nil {
		if len(s.params) != len(m.goParams) {
			return nil, fmt.Errorf("%s: %d parameter keys declared for %d parameters", s.name, len(s.params), len(m.goParams))
		}
		m.Params = append([]string(nil), s.params...)
	} else {
		m.Params = make([]string, len(m.goParams))
		for j, p := range m.goParams {
			m.Params[j] = RefOf(p).Key
		}
	}
	if m.goResult != nil {
		m.Result = s.result
		if m.Result == "" {
			m.Result = RefOf(m.goResult).Key
		}
	}
	return m, nil
}
