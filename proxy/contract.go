package proxy

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/chazu/realmproxy/realm"
)

// ContractKind tells how a contract's proxies are materialized.
type ContractKind int

const (
	// InterfaceContract is an interface type served by a generated stub.
	InterfaceContract ContractKind = iota
	// FuncsContract is a struct of func fields filled in at run time.
	FuncsContract
)

func (k ContractKind) String() string {
	if k == FuncsContract {
		return "funcs"
	}
	return "interface"
}

var (
	errorType    = reflect.TypeFor[error]()
	instanceType = reflect.TypeFor[*Instance]()
)

// MethodShape is one contract method as seen by the resolver: parameter and
// result types without the trailing error and without the leading
// realm.TypeArgs of generic methods.
type MethodShape struct {
	Name    string
	Params  []reflect.Type
	Result  reflect.Type // nil when the method returns only an error
	Generic bool

	fn reflect.Type
}

func (m MethodShape) String() string {
	var sb strings.Builder
	sb.WriteString(m.Name)
	if m.Generic {
		sb.WriteString("[...]")
	}
	sb.WriteString("(" + typeList(m.Params) + ")")
	if m.Result != nil {
		sb.WriteString(" " + m.Result.String())
	}
	return sb.String()
}

// Contract is the structural description of a contract type. Contracts with
// equal signatures share one ProxyType.
type Contract struct {
	Type    reflect.Type
	Kind    ContractKind
	Arity   int
	Methods []MethodShape

	// Signature is kind, type arguments and methods rendered canonically.
	Signature string
}

// ContractOf inspects t. Only the shape is examined; no realm code runs.
func ContractOf(t reflect.Type) (*Contract, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil contract type", realm.ErrContractMismatch)
	}

	c := &Contract{Type: t}
	switch {
	case t.Kind() == reflect.Interface:
		c.Kind = InterfaceContract
		for i := 0; i < t.NumMethod(); i++ {
			m := t.Method(i)
			if !m.IsExported() {
				return nil, fmt.Errorf("%w: %s: unexported method %s", realm.ErrContractMismatch, t, m.Name)
			}
			shape, err := shapeOf(m.Name, m.Type)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", realm.ErrContractMismatch, t, err)
			}
			c.Methods = append(c.Methods, shape)
		}
	case t.Kind() == reflect.Struct:
		c.Kind = FuncsContract
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || f.Type == instanceType {
				continue
			}
			if f.Type.Kind() != reflect.Func {
				return nil, fmt.Errorf("%w: %s: field %s is %s, not a func", realm.ErrContractMismatch, t, f.Name, f.Type)
			}
			shape, err := shapeOf(f.Name, f.Type)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", realm.ErrContractMismatch, t, err)
			}
			c.Methods = append(c.Methods, shape)
		}
	default:
		return nil, fmt.Errorf("%w: %s is neither an interface nor a struct of funcs", realm.ErrContractMismatch, t)
	}

	sort.Slice(c.Methods, func(i, j int) bool { return c.Methods[i].Name < c.Methods[j].Name })
	if len(c.Methods) == 0 {
		return nil, fmt.Errorf("%w: %s has no methods", realm.ErrContractMismatch, t)
	}

	args := typeArgSection(t.Name())
	c.Arity = countTypeArgs(args)

	var sb strings.Builder
	sb.WriteString(c.Kind.String())
	sb.WriteString("[" + args + "]{")
	for i, m := range c.Methods {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(m.Name + " " + m.fn.String())
	}
	sb.WriteString("}")
	c.Signature = sb.String()
	return c, nil
}

// Method returns the index of the named method.
func (c *Contract) Method(name string) (int, bool) {
	i := sort.Search(len(c.Methods), func(i int) bool { return c.Methods[i].Name >= name })
	if i < len(c.Methods) && c.Methods[i].Name == name {
		return i, true
	}
	return 0, false
}

func shapeOf(name string, ft reflect.Type) (MethodShape, error) {
	s := MethodShape{Name: name, fn: ft}
	if ft.IsVariadic() {
		return s, fmt.Errorf("method %s is variadic", name)
	}

	n := ft.NumOut()
	if n == 0 || ft.Out(n-1) != errorType {
		return s, fmt.Errorf("method %s must return error as its last result", name)
	}
	switch n {
	case 1:
	case 2:
		s.Result = ft.Out(0)
	default:
		return s, fmt.Errorf("method %s returns %d values", name, n)
	}

	i := 0
	if ft.NumIn() > 0 && ft.In(0) == realm.TypeArgsType {
		s.Generic = true
		i = 1
	}
	for ; i < ft.NumIn(); i++ {
		s.Params = append(s.Params, ft.In(i))
	}
	return s, nil
}

// typeArgSection returns the bracketed part of an instantiated generic type
// name, e.g. "int,string" for "Pair[int,string]".
func typeArgSection(name string) string {
	open := strings.IndexByte(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return ""
	}
	return name[open+1 : len(name)-1]
}

// countTypeArgs counts the top-level comma-separated entries of a type
// argument section.
func countTypeArgs(section string) int {
	if section == "" {
		return 0
	}
	n, depth := 1, 0
	for _, r := range section {
		switch r {
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			depth--
		case ',':
			if depth == 0 {
				n++
			}
		}
	}
	return n
}

func typeList(ts []reflect.Type) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.String()
	}
	return strings.Join(names, ", ")
}
