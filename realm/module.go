package realm

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/chazu/realmproxy/manifest"
)

// Module is a compiled unit loaded into exactly one realm. Its type table is
// built once at load time and never changes afterwards.
type Module struct {
	Path    string
	Name    string
	Library string
	Version string

	realm  *Realm
	types  []*Type
	byName map[string]int
	shared map[reflect.Type]string
}

// Realm returns the realm the module is loaded into.
func (m *Module) Realm() *Realm { return m.realm }

// Types returns the module's types in declaration order.
func (m *Module) Types() []*Type {
	return append([]*Type(nil), m.types...)
}

// Type looks up a type by class name.
func (m *Module) Type(className string) (*Type, bool) {
	i, ok := m.byName[className]
	if !ok {
		return nil, false
	}
	return m.types[i], true
}

// Resolve locates a class and closes it over args.
func (m *Module) Resolve(className string, args TypeArgs) (*BoundType, error) {
	t, ok := m.Type(className)
	if !ok {
		return nil, fmt.Errorf("%w: %s in module %s", ErrTypeNotFound, className, m.Name)
	}
	return t.Close(args)
}

// Shares reports whether values of t cross the boundary as shared reference
// types. A declared struct type also covers pointers to it and vice versa.
func (m *Module) Shares(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if _, ok := m.shared[t]; ok {
		return true
	}
	if t.Kind() == reflect.Pointer {
		_, ok := m.shared[t.Elem()]
		return ok
	}
	_, ok := m.shared[reflect.PointerTo(t)]
	return ok
}

// SharedTypes returns the sorted keys of the module's shared types.
func (m *Module) SharedTypes() []string {
	keys := make([]string, 0, len(m.shared))
	for _, k := range m.shared {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// compileModule builds a fresh descriptor table for desc from lib.
func compileModule(r *Realm, path string, desc *manifest.Module, lib *Library) (*Module, error) {
	b := &Builder{lib: lib}
	lib.Build(b)

	mod := &Module{
		Path:    path,
		Name:    desc.Name,
		Library: lib.Name,
		Version: desc.Version,
		realm:   r,
		byName:  make(map[string]int),
		shared:  make(map[reflect.Type]string),
	}

	exports := make(map[string]bool, len(desc.Exports))
	for _, name := range desc.Exports {
		exports[name] = true
	}

	for _, cb := range b.classes {
		if len(exports) > 0 && !exports[cb.name] {
			continue
		}
		if _, dup := mod.byName[cb.name]; dup {
			return nil, fmt.Errorf("class %s declared twice", cb.name)
		}
		t, err := compileType(mod, cb)
		if err != nil {
			return nil, err
		}
		mod.byName[cb.name] = len(mod.types)
		mod.types = append(mod.types, t)
	}
	for name := range exports {
		if _, ok := mod.byName[name]; !ok {
			return nil, fmt.Errorf("exported class %s not provided by library %s", name, lib.Name)
		}
	}

	declared := make(map[string]reflect.Type, len(b.shared))
	for _, t := range b.shared {
		declared[t.String()] = t
	}
	if len(desc.Shared) > 0 {
		for _, key := range desc.Shared {
			t, ok := declared[key]
			if !ok {
				return nil, fmt.Errorf("shared type %s not declared by library %s", key, lib.Name)
			}
			mod.shared[t] = key
		}
	} else {
		for key, t := range declared {
			mod.shared[t] = key
		}
	}

	return mod, nil
}

func compileType(mod *Module, cb *ClassBuilder) (*Type, error) {
	t := &Type{
		Key:        mod.Library + "." + cb.name,
		Name:       cb.name,
		TypeParams: cb.typeParams,
		module:     mod,
		byName:     make(map[string][]int),
	}
	for _, s := range cb.ctors {
		c, err := s.compile(true)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", cb.name, err)
		}
		c.owner = t
		c.index = len(t.ctors)
		t.ctors = append(t.ctors, c)
	}
	for _, s := range cb.methods {
		m, err := s.compile(false)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", cb.name, err)
		}
		m.owner = t
		m.index = len(t.members)
		t.members = append(t.members, m)
		t.byName[m.Name] = append(t.byName[m.Name], m.index)
	}
	return t, nil
}
