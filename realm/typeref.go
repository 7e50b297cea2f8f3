package realm

import (
	"fmt"
	"reflect"
	"strings"
)

// TypeRef names a type by a stable string key rather than by Go type
// identity. The key is what crosses the realm boundary; Type is kept so
// constraints can be checked structurally.
type TypeRef struct {
	Key  string
	Type reflect.Type
}

// TypeOf returns the TypeRef for T.
func TypeOf[T any]() TypeRef {
	return RefOf(reflect.TypeFor[T]())
}

// RefOf returns the TypeRef for a reflect.Type.
func RefOf(t reflect.Type) TypeRef {
	if t == nil {
		return TypeRef{}
	}
	return TypeRef{Key: t.String(), Type: t}
}

func (r TypeRef) String() string { return r.Key }

// IsZero reports whether r names no type.
func (r TypeRef) IsZero() bool { return r.Key == "" }

// TypeArgs is an ordered list of concrete type arguments closing a generic
// class or a generic method.
type TypeArgs []TypeRef

// TypeArgsType is the reflect.Type of TypeArgs. A contract method whose first
// parameter has this type is a generic method.
var TypeArgsType = reflect.TypeFor[TypeArgs]()

// Key renders the arguments as "[k1,k2]", or "" when empty.
func (a TypeArgs) Key() string {
	if len(a) == 0 {
		return ""
	}
	keys := make([]string, len(a))
	for i, r := range a {
		keys[i] = r.Key
	}
	return "[" + strings.Join(keys, ",") + "]"
}

func (a TypeArgs) String() string { return a.Key() }

// Constraint restricts which type arguments a type parameter accepts.
type Constraint interface {
	Satisfied(TypeRef) bool
	String() string
}

type anyConstraint struct{}

func (anyConstraint) Satisfied(TypeRef) bool { return true }
func (anyConstraint) String() string         { return "any" }

type comparableConstraint struct{}

func (comparableConstraint) Satisfied(r TypeRef) bool { return r.Type != nil && r.Type.Comparable() }
func (comparableConstraint) String() string           { return "comparable" }

type pointerConstraint struct{}

func (pointerConstraint) Satisfied(r TypeRef) bool {
	return r.Type != nil && r.Type.Kind() == reflect.Pointer
}
func (pointerConstraint) String() string { return "pointer" }

type implementsConstraint struct {
	iface reflect.Type
}

func (c implementsConstraint) Satisfied(r TypeRef) bool {
	return r.Type != nil && r.Type.Implements(c.iface)
}
func (c implementsConstraint) String() string { return c.iface.String() }

var (
	// Any accepts every type argument.
	Any Constraint = anyConstraint{}
	// Comparable accepts types usable as map keys.
	Comparable Constraint = comparableConstraint{}
	// Pointer accepts pointer types, i.e. reference types shared by identity.
	Pointer Constraint = pointerConstraint{}
)

// Implements returns a constraint accepting types that implement interface I.
func Implements[I any]() Constraint {
	t := reflect.TypeFor[I]()
	if t.Kind() != reflect.Interface {
		panic(fmt.Sprintf("realm: Implements needs an interface type, got %s", t))
	}
	return implementsConstraint{iface: t}
}

// TypeParam declares a generic parameter of a class or method.
type TypeParam struct {
	Name       string
	Constraint Constraint
}

func (p TypeParam) String() string {
	c := p.Constraint
	if c == nil {
		c = Any
	}
	return p.Name + " " + c.String()
}

// checkTypeArgs validates args against params: same arity, every argument
// concrete and satisfying its constraint.
func checkTypeArgs(what string, params []TypeParam, args TypeArgs) error {
	if len(params) != len(args) {
		return fmt.Errorf("%w: %s expects %d type argument(s), got %d", ErrContractMismatch, what, len(params), len(args))
	}
	for i, p := range params {
		arg := args[i]
		if arg.IsZero() || arg.Type == nil {
			return fmt.Errorf("%w: %s: type argument %s is empty", ErrContractMismatch, what, p.Name)
		}
		c := p.Constraint
		if c == nil {
			c = Any
		}
		if !c.Satisfied(arg) {
			return fmt.Errorf("%w: %s: %s does not satisfy %s", ErrContractMismatch, what, arg.Key, p)
		}
	}
	return nil
}
