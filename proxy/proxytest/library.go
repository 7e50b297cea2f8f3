// Package proxytest is a realm library and a set of contracts for exercising
// proxies end to end. Importing it registers the "proxytest" library.
package proxytest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/chazu/realmproxy/manifest"
	"github.com/chazu/realmproxy/realm"
)

// LibraryName is the name module files use to refer to this library.
const LibraryName = "proxytest"

// Version is the library version.
const Version = "1.0.0"

func init() {
	realm.RegisterLibrary(&realm.Library{Name: LibraryName, Version: Version, Build: build})
}

func build(b *realm.Builder) {
	b.Shared(reflect.TypeFor[*Test2]())

	test := b.Class("Test")
	test.Constructor(NewTest)
	test.Method("GetContextName", (*Test).GetContextName)
	test.Method("MethodWithGenericTypeParameter", (*Test).MethodWithGenericTypeParameter)
	test.Method("MethodWithUserTypeParameter", (*Test).MethodWithUserTypeParameter)
	test.Method("ReturnUserType", (*Test).ReturnUserType)
	test.Method("SimpleMethod", (*Test).SimpleMethod)
	test.Method("Divide", (*Test).Divide)
	test.Method("Explode", (*Test).Explode)
	test.Method("Sum", (*Test).Sum)
	test.Method("Smuggle", (*Test).Smuggle)

	t2 := b.Class("Test2")
	t2.Constructor(NewTest2)
	t2.Constructor(NewTest2At)
	t2.Method("IncrementMutable", (*Test2).IncrementMutable)
	t2.Method("String", (*Test2).String)

	gc := b.Class("GenericClass", realm.TypeParam{Name: "T"})
	gc.Constructor(NewGenericClass)
	gc.Constructor(NewGenericClassWith).Params("T")
	gc.Method("GetContextName", (*GenericClass).GetContextName)
	gc.Method("GenericMethodTest", (*GenericClass).GenericMethodTest).
		TypeParams(realm.TypeParam{Name: "I"})
	gc.Method("PointerKey", (*GenericClass).GenericMethodTest).
		TypeParams(realm.TypeParam{Name: "P", Constraint: realm.Pointer})
	gc.Method("MethodWithGenericTypeParameter", (*GenericClass).MethodWithGenericTypeParameter)
	gc.Method("MethodWithUserTypeParameter", (*GenericClass).MethodWithUserTypeParameter)
	gc.Method("MethodWithDirectGenericParameters", (*GenericClass).MethodWithDirectGenericParameters).
		Params("T")
	gc.Method("Value", (*GenericClass).Value).Returns("T")

	ov := b.Class("Overloaded")
	ov.Constructor(func() *Overloaded { return &Overloaded{} })
	ov.Method("Describe", (*Overloaded).DescribeExact)
	ov.Method("Describe", (*Overloaded).DescribeAny)
	ov.Method("Pick", (*Overloaded).PickStringer)
	ov.Method("Pick", (*Overloaded).PickAny)

	g := b.Class("Gate")
	g.Constructor(func() *Gate { return &Gate{} })
	g.Method("Pass", (*Gate).Pass)
}

// Inner is only ever used as a type argument.
type Inner struct{}

// Test2 is a mutable user type shared with the host.
type Test2 struct {
	MutableMember int
}

// NewTest2 starts the counter at 5.
func NewTest2() *Test2 { return &Test2{MutableMember: 5} }

// NewTest2At starts the counter at start.
func NewTest2At(start int) *Test2 { return &Test2{MutableMember: start} }

// IncrementMutable adds one to the counter.
func (t *Test2) IncrementMutable() { t.MutableMember++ }

func (t *Test2) String() string { return fmt.Sprintf("Test2(%d)", t.MutableMember) }

// Test is a plain class.
type Test struct{}

// NewTest creates a Test.
func NewTest() *Test { return &Test{} }

func (t *Test) GetContextName(env realm.Env) string { return env.Realm }

func (t *Test) MethodWithGenericTypeParameter(a int, list []string) int {
	return a + len(list[0])
}

func (t *Test) MethodWithUserTypeParameter(a int, t2 *Test2) int {
	t2.IncrementMutable()
	return 5
}

func (t *Test) ReturnUserType() *Test2 { return NewTest2() }

func (t *Test) SimpleMethod() int { return 3 }

// ErrDivideByZero is returned by Divide.
var ErrDivideByZero = errors.New("divide by zero")

func (t *Test) Divide(a, b int) (int, error) {
	if b == 0 {
		return 0, ErrDivideByZero
	}
	return a / b, nil
}

func (t *Test) Explode() { panic("boom") }

func (t *Test) Sum(values map[string]int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

func (t *Test) Smuggle(v any) string { return fmt.Sprintf("%T", v) }

var closed atomic.Int64

// Close counts how many Test instances were released.
func (t *Test) Close() error {
	closed.Add(1)
	return nil
}

// ClosedCount returns how many Test instances have been closed.
func ClosedCount() int64 { return closed.Load() }

// GenericClass is closed over one type parameter T.
type GenericClass struct {
	instance string
	value    any
}

// NewGenericClass creates an empty GenericClass.
func NewGenericClass() *GenericClass { return &GenericClass{instance: "testString"} }

// NewGenericClassWith creates a GenericClass holding a T.
func NewGenericClassWith(v any) *GenericClass {
	return &GenericClass{instance: "testString", value: v}
}

func (g *GenericClass) GetContextName(env realm.Env) string { return env.Realm }

// GenericMethodTest reports the key of its method type argument I.
func (g *GenericClass) GenericMethodTest(env realm.Env) string {
	return env.MethodTypeArgs[0].Key
}

func (g *GenericClass) MethodWithGenericTypeParameter(a int, list []string) int {
	return len(g.instance)
}

func (g *GenericClass) MethodWithUserTypeParameter(a int, t2 *Test2) int {
	t2.IncrementMutable()
	return 6
}

func (g *GenericClass) MethodWithDirectGenericParameters(v any) string {
	return fmt.Sprint(v)
}

// Value returns the T given to the constructor.
func (g *GenericClass) Value() any { return g.value }

// Overloaded has members only told apart by parameter types.
type Overloaded struct{}

func (o *Overloaded) DescribeExact(t2 *Test2) string { return "exact" }
func (o *Overloaded) DescribeAny(v any) string { return "any" }
func (o *Overloaded) PickStringer(v fmt.Stringer) string {
	return "stringer"
}
func (o *Overloaded) PickAny(v any) string { return "any" }

// Gate blocks inside a call until released, for tests that need an
// invocation in flight.
type Gate struct{}

type gate struct {
	entered chan struct{}
	release chan struct{}
}

var (
	gates       sync.Map
	gatesClosed atomic.Int64
)

// SetGate arranges for Gate.Pass(key) to signal entered and then wait on
// release.
func SetGate(key string, entered, release chan struct{}) {
	gates.Store(key, gate{entered: entered, release: release})
}

func (g *Gate) Pass(key string) string {
	v, ok := gates.LoadAndDelete(key)
	if !ok {
		return "open"
	}
	gt := v.(gate)
	close(gt.entered)
	<-gt.release
	return "passed"
}

// Close counts released gates.
func (g *Gate) Close() error {
	gatesClosed.Add(1)
	return nil
}

// GatesClosed returns how many Gate instances have been closed.
func GatesClosed() int64 { return gatesClosed.Load() }

// WriteManifest writes a module manifest for this library into dir and
// returns its path.
func WriteManifest(dir, name string) (string, error) {
	path := filepath.Join(dir, name+manifest.ManifestExt)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	m := &manifest.Module{
		Name:    name,
		Version: Version,
		Library: LibraryName,
		Shared:  []string{"*proxytest.Test2"},
	}
	return path, manifest.Write(path, m)
}
