package proxytest

import (
	"github.com/chazu/realmproxy/proxy"
	"github.com/chazu/realmproxy/realm"
)

//go:generate go run github.com/chazu/realmproxy/cmd/realmgen -o contracts_realmproxy.go . ITest IGeneric

// ITest is the contract for the Test class.
type ITest interface {
	GetContextName() (string, error)
	MethodWithGenericTypeParameter(a int, list []string) (int, error)
	MethodWithUserTypeParameter(a int, t *Test2) (int, error)
	ReturnUserType() (*Test2, error)
	SimpleMethod() (int, error)
}

// IGeneric is the contract for GenericClass closed over T.
type IGeneric[T any] interface {
	GetContextName() (string, error)
	MethodWithGenericTypeParameter(a int, list []string) (int, error)
	MethodWithUserTypeParameter(a int, t *Test2) (int, error)
	MethodWithDirectGenericParameters(t T) (string, error)
	GenericMethodTest(targs realm.TypeArgs) (string, error)
}

// TestFuncs is a struct contract for Test, synthesized at run time.
type TestFuncs struct {
	Handle *proxy.Instance

	SimpleMethod                   func() (int, error)
	MethodWithGenericTypeParameter func(a int, list []string) (int, error)
	MethodWithUserTypeParameter    func(a int, t *Test2) (int, error)
	ReturnUserType                 func() (*Test2, error)
	Divide                         func(a, b int) (int, error)
	Explode                        func() error
	Sum                            func(values map[string]int) (int, error)
	Smuggle                        func(v any) (string, error)
}

// GenericFuncs is a struct contract for GenericClass closed over T.
type GenericFuncs[T any] struct {
	Handle *proxy.Instance

	Value      func() (T, error)
	PointerKey func(targs realm.TypeArgs) (string, error)
}

// DescribeFuncs binds Overloaded.Describe, where one overload matches
// exactly.
type DescribeFuncs struct {
	Describe func(t *Test2) (string, error)
}

// PickFuncs binds Overloaded.Pick, where both overloads only match by
// assignability.
type PickFuncs struct {
	Pick func(t *Test2) (string, error)
}

// GateFuncs drives Gate.
type GateFuncs struct {
	Handle *proxy.Instance

	Pass func(key string) (string, error)
}
