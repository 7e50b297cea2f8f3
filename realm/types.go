package realm

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Type is a class as loaded into one realm. Loading the same library into
// two realms yields two distinct Types with the same Key.
type Type struct {
	Key        string
	Name       string
	TypeParams []TypeParam

	module  *Module
	ctors   []*Member
	members []*Member
	byName  map[string][]int

	mu    sync.Mutex
	bound map[string]*BoundType
}

// Module returns the module the type was loaded from.
func (t *Type) Module() *Module { return t.module }

// Generic reports whether the type must be closed with type arguments.
func (t *Type) Generic() bool { return len(t.TypeParams) > 0 }

// Members returns the type's members in declaration order.
func (t *Type) Members() []*Member {
	return append([]*Member(nil), t.members...)
}

// Constructors returns the type's constructors in declaration order.
func (t *Type) Constructors() []*Member {
	return append([]*Member(nil), t.ctors...)
}

// Close binds the type's parameters to concrete arguments. Closed types are
// cached per argument list.
func (t *Type) Close(args TypeArgs) (*BoundType, error) {
	if err := checkTypeArgs("class "+t.Key, t.TypeParams, args); err != nil {
		return nil, err
	}

	key := args.Key()
	t.mu.Lock()
	defer t.mu.Unlock()

	if bt, ok := t.bound[key]; ok {
		return bt, nil
	}
	bt := &BoundType{
		Type:  t,
		Args:  append(TypeArgs(nil), args...),
		subst: make(map[string]TypeRef, len(args)),
	}
	for i, p := range t.TypeParams {
		bt.subst[p.Name] = args[i]
	}
	if t.bound == nil {
		t.bound = make(map[string]*BoundType)
	}
	t.bound[key] = bt
	return bt, nil
}

// Member is one callable entry in a type's descriptor table.
type Member struct {
	Name string
	// Params holds the declared parameter type keys; they may name class
	// type parameters.
	Params []string
	// Result is the declared result key, empty when the member returns only
	// an error or nothing.
	Result     string
	TypeParams []TypeParam

	owner    *Type
	index    int
	fn       reflect.Value
	recv     reflect.Type
	goParams []reflect.Type
	goResult reflect.Type
	wantsEnv bool
	hasErr   bool
	ctor     bool
}

// Generic reports whether the member takes method-level type arguments.
func (m *Member) Generic() bool { return len(m.TypeParams) > 0 }

// Index is the member's position in its type's table.
func (m *Member) Index() int { return m.index }

// QualifiedName is "library.Class.Member".
func (m *Member) QualifiedName() string {
	if m.owner == nil {
		return m.Name
	}
	return m.owner.Key + "." + m.Name
}

// Signature renders the member like "Name[I any](int, []string) string".
func (m *Member) Signature() string {
	var sb strings.Builder
	sb.WriteString(m.Name)
	if len(m.TypeParams) > 0 {
		ps := make([]string, len(m.TypeParams))
		for i, p := range m.TypeParams {
			ps[i] = p.String()
		}
		sb.WriteString("[" + strings.Join(ps, ", ") + "]")
	}
	sb.WriteString("(" + strings.Join(m.Params, ", ") + ")")
	if m.Result != "" {
		sb.WriteString(" " + m.Result)
	}
	return sb.String()
}

// CheckTypeArgs validates method-level type arguments for one call.
func (m *Member) CheckTypeArgs(args TypeArgs) error {
	return checkTypeArgs("method "+m.QualifiedName(), m.TypeParams, args)
}

// Call runs the member. self is ignored for constructors. Argument problems
// are reported as ErrContractMismatch; errors returned or panics raised by
// the implementation become *TargetInvocationError.
func (m *Member) Call(env Env, self any, args []any) (result any, err error) {
	in, err := m.prepare(env, self, args)
	if err != nil {
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = newFault(env.Realm, m.QualifiedName(), panicError(p))
		}
	}()

	out := m.fn.Call(in)

	if m.hasErr {
		if e := out[len(out)-1]; !e.IsNil() {
			return nil, newFault(env.Realm, m.QualifiedName(), e.Interface().(error))
		}
	}
	if m.goResult == nil {
		return nil, nil
	}
	return out[0].Interface(), nil
}

func (m *Member) prepare(env Env, self any, args []any) ([]reflect.Value, error) {
	if len(args) != len(m.goParams) {
		return nil, fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrContractMismatch, m.QualifiedName(), len(m.goParams), len(args))
	}

	in := make([]reflect.Value, 0, len(args)+2)
	if !m.ctor {
		sv := reflect.ValueOf(self)
		if !sv.IsValid() || !sv.Type().AssignableTo(m.recv) {
			return nil, fmt.Errorf("%w: %s: receiver %T is not %s", ErrContractMismatch, m.QualifiedName(), self, m.recv)
		}
		in = append(in, sv)
	}
	if m.wantsEnv {
		in = append(in, reflect.ValueOf(env))
	}
	for i, a := range args {
		v, err := argValue(a, m.goParams[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: argument %d: %v", ErrContractMismatch, m.QualifiedName(), i, err)
		}
		in = append(in, v)
	}
	return in, nil
}

func argValue(a any, t reflect.Type) (reflect.Value, error) {
	if a == nil {
		if !nillable(t) {
			return reflect.Value{}, fmt.Errorf("nil for %s", t)
		}
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(a)
	if !v.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("%s is not assignable to %s", v.Type(), t)
	}
	return v, nil
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return true
	}
	return false
}
