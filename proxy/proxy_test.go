package proxy_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chazu/realmproxy/journal"
	"github.com/chazu/realmproxy/proxy"
	"github.com/chazu/realmproxy/proxy/proxytest"
	"github.com/chazu/realmproxy/realm"
)

const realmName = "sandbox"

type fixture struct {
	host  *proxy.Host
	realm *realm.Realm
	path  string
}

func setup(t *testing.T, opts ...proxy.HostOption) *fixture {
	t.Helper()
	opts = append([]proxy.HostOption{proxy.WithSynthesizer(proxy.NewSynthesizer())}, opts...)
	h := proxy.NewHost(opts...)
	t.Cleanup(func() { h.Close(context.Background()) })

	r, err := h.CreateRealm(realmName, true)
	if err != nil {
		t.Fatal(err)
	}
	path, err := proxytest.WriteManifest(t.TempDir(), "proxytest")
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{host: h, realm: r, path: path}
}

func newTest(t *testing.T, f *fixture) proxytest.ITest {
	t.Helper()
	p, err := proxy.CreateInstance[proxytest.ITest](f.host, f.realm, f.path, "Test")
	if err != nil {
		t.Fatalf("CreateInstance(Test) failed: %v", err)
	}
	return p
}

func TestProxyIsTransparent(t *testing.T) {
	f := setup(t)
	p := newTest(t, f)
	direct := proxytest.NewTest()

	n, err := p.SimpleMethod()
	if err != nil || n != 3 || n != direct.SimpleMethod() {
		t.Errorf("SimpleMethod = %d, %v", n, err)
	}

	list := []string{"hello"}
	n, err = p.MethodWithGenericTypeParameter(2, list)
	if err != nil || n != direct.MethodWithGenericTypeParameter(2, list) {
		t.Errorf("MethodWithGenericTypeParameter = %d, %v", n, err)
	}

	name, err := p.GetContextName()
	if err != nil || name != realmName {
		t.Errorf("GetContextName = %q, %v", name, err)
	}

	t2, err := p.ReturnUserType()
	if err != nil || t2 == nil || t2.MutableMember != 5 {
		t.Errorf("ReturnUserType = %+v, %v", t2, err)
	}

	if f.realm.State() != realm.StateActive {
		t.Errorf("realm state = %s, want active", f.realm.State())
	}
}

func TestSharedTypeByIdentity(t *testing.T) {
	f := setup(t)
	p := newTest(t, f)

	t2 := proxytest.NewTest2()
	n, err := p.MethodWithUserTypeParameter(1, t2)
	if err != nil || n != 5 {
		t.Fatalf("MethodWithUserTypeParameter = %d, %v", n, err)
	}
	if t2.MutableMember != 6 {
		t.Errorf("MutableMember = %d, want 6", t2.MutableMember)
	}
}

func TestSharedTypeByCopy(t *testing.T) {
	f := setup(t, proxy.WithMarshalPolicy(proxy.ByCopy))
	p := newTest(t, f)

	t2 := proxytest.NewTest2()
	if _, err := p.MethodWithUserTypeParameter(1, t2); err != nil {
		t.Fatal(err)
	}
	if t2.MutableMember != 5 {
		t.Errorf("MutableMember = %d, want 5 under copy", t2.MutableMember)
	}
	if f.host.Policy() != proxy.ByCopy {
		t.Errorf("Policy = %s", f.host.Policy())
	}
}

// sameAsITest has the method set of ITest under another name.
type sameAsITest interface {
	GetContextName() (string, error)
	MethodWithGenericTypeParameter(a int, list []string) (int, error)
	MethodWithUserTypeParameter(a int, t *proxytest.Test2) (int, error)
	ReturnUserType() (*proxytest.Test2, error)
	SimpleMethod() (int, error)
}

func TestProxyTypeIsShared(t *testing.T) {
	f := setup(t)
	a := newTest(t, f)
	b := newTest(t, f)

	ia, _ := proxy.InstanceOf(a)
	ib, _ := proxy.InstanceOf(b)
	if ia.ProxyType() != ib.ProxyType() {
		t.Error("two instances of one contract got different proxy types")
	}
	if ia.ID() == ib.ID() {
		t.Error("two instances share a handle")
	}
	if ia.Class() != "proxytest.Test" || ia.Realm() != f.realm {
		t.Errorf("instance class %q realm %v", ia.Class(), ia.Realm())
	}

	c, err := proxy.CreateInstance[sameAsITest](f.host, f.realm, f.path, "Test")
	if err != nil {
		t.Fatalf("CreateInstance(sameAsITest) failed: %v", err)
	}
	ic, _ := proxy.InstanceOf(c)
	if ic.ProxyType() != ia.ProxyType() {
		t.Error("structurally equal contract got a new proxy type")
	}
	if n := f.host.Synthesizer().Count(); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
	if n, err := c.SimpleMethod(); err != nil || n != 3 {
		t.Errorf("SimpleMethod through sameAsITest = %d, %v", n, err)
	}
}

func TestInstancesDispatchIndependently(t *testing.T) {
	f := setup(t)
	a, err := proxy.CreateGenericInstance[proxytest.GenericFuncs[int]](f.host, f.realm, f.path, "GenericClass", []any{1}, realm.TypeOf[int]())
	if err != nil {
		t.Fatal(err)
	}
	b, err := proxy.CreateGenericInstance[proxytest.GenericFuncs[int]](f.host, f.realm, f.path, "GenericClass", []any{2}, realm.TypeOf[int]())
	if err != nil {
		t.Fatal(err)
	}

	va, err := a.Value()
	if err != nil {
		t.Fatal(err)
	}
	vb, err := b.Value()
	if err != nil {
		t.Fatal(err)
	}
	if va != 1 || vb != 2 {
		t.Errorf("Value() = %d, %d, want 1, 2", va, vb)
	}
	if a.Handle.ProxyType() != b.Handle.ProxyType() {
		t.Error("instances got different proxy types")
	}
	if a.Handle.Class() != "proxytest.GenericClass[int]" {
		t.Errorf("Class = %q", a.Handle.Class())
	}
}

func TestGenericContract(t *testing.T) {
	f := setup(t)
	p, err := proxy.CreateGenericInstance[proxytest.IGeneric[int]](f.host, f.realm, f.path, "GenericClass", nil, realm.TypeOf[int]())
	if err != nil {
		t.Fatalf("CreateGenericInstance failed: %v", err)
	}

	key, err := p.GenericMethodTest(realm.TypeArgs{realm.TypeOf[proxytest.Inner]()})
	if err != nil || key != "proxytest.Inner" {
		t.Errorf("GenericMethodTest[Inner] = %q, %v", key, err)
	}

	n, err := p.MethodWithGenericTypeParameter(1, []string{"x"})
	if err != nil || n != 10 {
		t.Errorf("MethodWithGenericTypeParameter = %d, %v", n, err)
	}

	t2 := proxytest.NewTest2()
	if n, err := p.MethodWithUserTypeParameter(1, t2); err != nil || n != 6 || t2.MutableMember != 6 {
		t.Errorf("MethodWithUserTypeParameter = %d, %v (member %d)", n, err, t2.MutableMember)
	}

	s, err := p.MethodWithDirectGenericParameters(42)
	if err != nil || s != "42" {
		t.Errorf("MethodWithDirectGenericParameters = %q, %v", s, err)
	}

	name, err := p.GetContextName()
	if err != nil || name != realmName {
		t.Errorf("GetContextName = %q, %v", name, err)
	}

	if _, err := p.GenericMethodTest(nil); !errors.Is(err, realm.ErrContractMismatch) {
		t.Errorf("GenericMethodTest without type args = %v, want ErrContractMismatch", err)
	}
}

func TestGenericContractOverSharedType(t *testing.T) {
	f := setup(t)
	p, err := proxy.CreateGenericInstance[proxytest.IGeneric[*proxytest.Test2]](f.host, f.realm, f.path, "GenericClass", nil, realm.TypeOf[*proxytest.Test2]())
	if err != nil {
		t.Fatal(err)
	}
	s, err := p.MethodWithDirectGenericParameters(proxytest.NewTest2At(9))
	if err != nil || s != "Test2(9)" {
		t.Errorf("MethodWithDirectGenericParameters = %q, %v", s, err)
	}
}

func TestGenericContractOverValueType(t *testing.T) {
	f := setup(t)
	p, err := proxy.CreateGenericInstance[proxytest.IGeneric[proxytest.Inner]](f.host, f.realm, f.path, "GenericClass", nil, realm.TypeOf[proxytest.Inner]())
	if err != nil {
		t.Fatal(err)
	}
	s, err := p.MethodWithDirectGenericParameters(proxytest.Inner{})
	if err != nil || s != "{}" {
		t.Errorf("MethodWithDirectGenericParameters(Inner{}) = %q, %v", s, err)
	}
}

func TestGenericMethodConstraint(t *testing.T) {
	f := setup(t)
	p, err := proxy.CreateGenericInstance[proxytest.GenericFuncs[int]](f.host, f.realm, f.path, "GenericClass", nil, realm.TypeOf[int]())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.PointerKey(realm.TypeArgs{realm.TypeOf[int]()}); !errors.Is(err, realm.ErrContractMismatch) {
		t.Errorf("PointerKey[int] = %v, want ErrContractMismatch", err)
	}
	key, err := p.PointerKey(realm.TypeArgs{realm.TypeOf[*proxytest.Inner]()})
	if err != nil || key != "*proxytest.Inner" {
		t.Errorf("PointerKey[*Inner] = %q, %v", key, err)
	}

	v, err := p.Value()
	if err != nil || v != 0 {
		t.Errorf("Value of empty GenericClass[int] = %d, %v", v, err)
	}
}

func TestCallThroughInstance(t *testing.T) {
	f := setup(t)
	p, err := proxy.CreateInstance[proxytest.TestFuncs](f.host, f.realm, f.path, "Test")
	if err != nil {
		t.Fatal(err)
	}

	out, err := p.Handle.Call("SimpleMethod", nil)
	if err != nil || out != 3 {
		t.Errorf("Call(SimpleMethod) = %v, %v", out, err)
	}
	if _, err := p.Handle.Call("SimpleMethod", realm.TypeArgs{realm.TypeOf[int]()}); !errors.Is(err, realm.ErrContractMismatch) {
		t.Errorf("type args on a plain method = %v, want ErrContractMismatch", err)
	}
	if _, err := p.Handle.Call("Fly", nil); !errors.Is(err, realm.ErrMemberNotFound) {
		t.Errorf("Call(Fly) = %v, want ErrMemberNotFound", err)
	}
	if _, err := p.Handle.Call("SimpleMethod", nil, 1); !errors.Is(err, realm.ErrContractMismatch) {
		t.Errorf("Call with extra argument = %v, want ErrContractMismatch", err)
	}
}

func TestTargetFaults(t *testing.T) {
	f := setup(t)
	p, err := proxy.CreateInstance[proxytest.TestFuncs](f.host, f.realm, f.path, "Test")
	if err != nil {
		t.Fatal(err)
	}

	if n, err := p.Divide(6, 3); err != nil || n != 2 {
		t.Errorf("Divide(6, 3) = %d, %v", n, err)
	}

	_, err = p.Divide(1, 0)
	var tie *realm.TargetInvocationError
	if !errors.As(err, &tie) {
		t.Fatalf("Divide(1, 0) = %v, want TargetInvocationError", err)
	}
	if !errors.Is(err, proxytest.ErrDivideByZero) {
		t.Errorf("fault does not wrap the target's error: %v", err)
	}
	if tie.Realm != realmName || tie.Member != "proxytest.Test.Divide" {
		t.Errorf("fault = %+v", tie)
	}

	err = p.Explode()
	if !errors.As(err, &tie) || !strings.Contains(tie.Description, "boom") {
		t.Errorf("Explode = %v, want recovered panic", err)
	}

	// The instance survives its own faults.
	if n, err := p.SimpleMethod(); err != nil || n != 3 {
		t.Errorf("SimpleMethod after faults = %d, %v", n, err)
	}
}

func TestMarshalingAtTheBoundary(t *testing.T) {
	f := setup(t)
	p, err := proxy.CreateInstance[proxytest.TestFuncs](f.host, f.realm, f.path, "Test")
	if err != nil {
		t.Fatal(err)
	}

	if n, err := p.Sum(map[string]int{"a": 1, "b": 2}); err != nil || n != 3 {
		t.Errorf("Sum = %d, %v", n, err)
	}
	if s, err := p.Smuggle(proxytest.NewTest2()); err != nil || s != "*proxytest.Test2" {
		t.Errorf("Smuggle(*Test2) = %q, %v", s, err)
	}

	if s, err := p.Smuggle(point{1, 2}); err != nil || s != "proxy_test.point" {
		t.Errorf("Smuggle(point) = %q, %v", s, err)
	}

	for _, v := range []any{func() {}, &proxytest.Inner{}, []any{1, make(chan int)}} {
		if _, err := p.Smuggle(v); !errors.Is(err, proxy.ErrNotMarshalable) {
			t.Errorf("Smuggle(%T) = %v, want ErrNotMarshalable", v, err)
		}
	}
}

type point struct{ X, Y int }

func TestCyclicArgumentLeavesProxyUsable(t *testing.T) {
	f := setup(t)
	p, err := proxy.CreateInstance[proxytest.TestFuncs](f.host, f.realm, f.path, "Test")
	if err != nil {
		t.Fatal(err)
	}

	loop := []any{nil}
	loop[0] = loop
	if _, err := p.Smuggle(loop); !errors.Is(err, proxy.ErrNotMarshalable) {
		t.Errorf("Smuggle(cyclic slice) = %v, want ErrNotMarshalable", err)
	}

	if n, err := p.SimpleMethod(); err != nil || n != 3 {
		t.Errorf("SimpleMethod after rejected call = %d, %v", n, err)
	}
	if f.realm.State() != realm.StateActive || f.realm.Inflight() != 0 {
		t.Errorf("realm left %s with %d in flight", f.realm.State(), f.realm.Inflight())
	}
}

func TestCreateInstanceErrors(t *testing.T) {
	f := setup(t)

	type unstubbed interface {
		Nothing() error
	}
	type missingMember struct {
		Fly func() error
	}
	type wrongResult struct {
		SimpleMethod func() (string, error)
	}

	tests := []struct {
		name   string
		create func() error
		want   error
	}{
		{"no stub", func() error {
			_, err := proxy.CreateInstance[unstubbed](f.host, f.realm, f.path, "Test")
			return err
		}, proxy.ErrNoStub},
		{"bad contract", func() error {
			_, err := proxy.CreateInstance[int](f.host, f.realm, f.path, "Test")
			return err
		}, realm.ErrContractMismatch},
		{"arity", func() error {
			_, err := proxy.CreateGenericInstance[proxytest.ITest](f.host, f.realm, f.path, "Test", nil, realm.TypeOf[int]())
			return err
		}, realm.ErrContractMismatch},
		{"missing type args", func() error {
			_, err := proxy.CreateInstance[proxytest.IGeneric[int]](f.host, f.realm, f.path, "GenericClass")
			return err
		}, realm.ErrContractMismatch},
		{"missing module", func() error {
			_, err := proxy.CreateInstance[proxytest.ITest](f.host, f.realm, "absent.toml", "Test")
			return err
		}, realm.ErrModuleLoad},
		{"missing type", func() error {
			_, err := proxy.CreateInstance[proxytest.ITest](f.host, f.realm, f.path, "Nope")
			return err
		}, realm.ErrTypeNotFound},
		{"missing constructor", func() error {
			_, err := proxy.CreateInstance[proxytest.ITest](f.host, f.realm, f.path, "Test", 1, 2)
			return err
		}, realm.ErrConstructorNotFound},
		{"missing member", func() error {
			_, err := proxy.CreateInstance[missingMember](f.host, f.realm, f.path, "Test")
			return err
		}, realm.ErrMemberNotFound},
		{"result mismatch", func() error {
			_, err := proxy.CreateInstance[wrongResult](f.host, f.realm, f.path, "Test")
			return err
		}, realm.ErrMemberNotFound},
		{"ambiguous", func() error {
			_, err := proxy.CreateInstance[proxytest.PickFuncs](f.host, f.realm, f.path, "Overloaded")
			return err
		}, realm.ErrAmbiguousMember},
		{"unmarshalable constructor argument", func() error {
			_, err := proxy.CreateGenericInstance[proxytest.GenericFuncs[int]](f.host, f.realm, f.path, "GenericClass", []any{func() {}}, realm.TypeOf[int]())
			return err
		}, proxy.ErrNotMarshalable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.create(); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if n := f.host.Registry().Len(); n != 0 {
		t.Errorf("failed creations left %d registry entries", n)
	}
}

func TestExactOverloadWins(t *testing.T) {
	f := setup(t)
	p, err := proxy.CreateInstance[proxytest.DescribeFuncs](f.host, f.realm, f.path, "Overloaded")
	if err != nil {
		t.Fatal(err)
	}
	if s, err := p.Describe(proxytest.NewTest2()); err != nil || s != "exact" {
		t.Errorf("Describe = %q, %v", s, err)
	}
}

func TestSearchDirs(t *testing.T) {
	f := setup(t)
	h := proxy.NewHost(proxy.WithSynthesizer(proxy.NewSynthesizer()), proxy.WithSearchDirs(filepath.Dir(f.path)))
	t.Cleanup(func() { h.Close(context.Background()) })

	r, err := h.CreateRealm("search", true)
	if err != nil {
		t.Fatal(err)
	}
	p, err := proxy.CreateInstance[proxytest.ITest](h, r, filepath.Base(f.path), "Test")
	if err != nil {
		t.Fatalf("CreateInstance by relative path failed: %v", err)
	}
	if name, _ := p.GetContextName(); name != "search" {
		t.Errorf("GetContextName = %q", name)
	}
}

func TestUnloadInvalidatesProxies(t *testing.T) {
	f := setup(t)
	p := newTest(t, f)
	before := proxytest.ClosedCount()

	if err := f.host.UnloadRealm(context.Background(), f.realm); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SimpleMethod(); !errors.Is(err, realm.ErrRealmUnloaded) {
		t.Errorf("call after unload = %v, want ErrRealmUnloaded", err)
	}
	if n := f.host.Registry().LenRealm(f.realm); n != 0 {
		t.Errorf("%d entries survive unload", n)
	}
	if proxytest.ClosedCount() <= before {
		t.Error("backing object was not closed on unload")
	}
	if _, err := proxy.CreateInstance[proxytest.ITest](f.host, f.realm, f.path, "Test"); !errors.Is(err, realm.ErrRealmUnloaded) {
		t.Errorf("CreateInstance in unloaded realm = %v", err)
	}
}

func TestUnloadDrainsCallInFlight(t *testing.T) {
	f := setup(t)
	g, err := proxy.CreateInstance[proxytest.GateFuncs](f.host, f.realm, f.path, "Gate")
	if err != nil {
		t.Fatal(err)
	}

	entered, release := make(chan struct{}), make(chan struct{})
	proxytest.SetGate(t.Name(), entered, release)

	type result struct {
		out string
		err error
	}
	passed := make(chan result, 1)
	go func() {
		out, err := g.Pass(t.Name())
		passed <- result{out, err}
	}()
	<-entered

	unloaded := make(chan error, 1)
	go func() { unloaded <- f.host.UnloadRealm(context.Background(), f.realm) }()

	deadline := time.Now().Add(5 * time.Second)
	for f.realm.State() != realm.StateUnloading {
		if time.Now().After(deadline) {
			t.Fatal("realm never started unloading")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := g.Pass("other"); !errors.Is(err, realm.ErrRealmUnloading) {
		t.Errorf("new call while unloading = %v, want ErrRealmUnloading", err)
	}
	select {
	case err := <-unloaded:
		t.Fatalf("unload finished with a call in flight: %v", err)
	default:
	}

	close(release)
	res := <-passed
	if res.err != nil || res.out != "passed" {
		t.Errorf("in-flight call = %q, %v", res.out, res.err)
	}
	select {
	case err := <-unloaded:
		if err != nil {
			t.Errorf("UnloadRealm = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("unload did not finish after the last call returned")
	}
	if f.realm.State() != realm.StateUnloaded {
		t.Errorf("state = %s", f.realm.State())
	}
}

func TestDispose(t *testing.T) {
	f := setup(t)
	p, err := proxy.CreateInstance[proxytest.TestFuncs](f.host, f.realm, f.path, "Test")
	if err != nil {
		t.Fatal(err)
	}
	keep := newTest(t, f)
	before := proxytest.ClosedCount()
	if n := f.host.Registry().Len(); n != 2 {
		t.Fatalf("Len = %d, want 2", n)
	}

	if err := proxy.Dispose(p); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SimpleMethod(); !errors.Is(err, proxy.ErrInstanceDisposed) {
		t.Errorf("call after Dispose = %v, want ErrInstanceDisposed", err)
	}
	if err := proxy.Dispose(p); err != nil {
		t.Errorf("second Dispose = %v", err)
	}
	if proxytest.ClosedCount() <= before {
		t.Error("backing object was not closed")
	}
	if n := f.host.Registry().Len(); n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}

	// Other instances are unaffected.
	if err := proxy.Dispose(keep); err != nil {
		t.Fatal(err)
	}
	if _, err := keep.SimpleMethod(); !errors.Is(err, proxy.ErrInstanceDisposed) {
		t.Errorf("interface proxy after Dispose = %v", err)
	}

	if err := proxy.Dispose(42); !errors.Is(err, proxy.ErrNotProxy) {
		t.Errorf("Dispose(42) = %v, want ErrNotProxy", err)
	}
}

func TestDisposeWaitsForCallInFlight(t *testing.T) {
	f := setup(t)
	g, err := proxy.CreateInstance[proxytest.GateFuncs](f.host, f.realm, f.path, "Gate")
	if err != nil {
		t.Fatal(err)
	}

	entered, release := make(chan struct{}), make(chan struct{})
	proxytest.SetGate(t.Name(), entered, release)

	type result struct {
		out string
		err error
	}
	passed := make(chan result, 1)
	go func() {
		out, err := g.Pass(t.Name())
		passed <- result{out, err}
	}()
	<-entered

	closedBefore := proxytest.GatesClosed()
	if err := proxy.Dispose(g); err != nil {
		t.Fatal(err)
	}
	if n := f.host.Registry().Len(); n != 1 {
		t.Errorf("Len with a call in flight = %d, want 1", n)
	}
	if n := proxytest.GatesClosed(); n != closedBefore {
		t.Error("backing object closed while a call was in flight")
	}
	if _, err := g.Pass("other"); !errors.Is(err, proxy.ErrInstanceDisposed) {
		t.Errorf("new call after Dispose = %v, want ErrInstanceDisposed", err)
	}

	close(release)
	res := <-passed
	if res.err != nil || res.out != "passed" {
		t.Errorf("in-flight call = %q, %v", res.out, res.err)
	}
	if n := f.host.Registry().Len(); n != 0 {
		t.Errorf("Len after the call returned = %d, want 0", n)
	}
	if n := proxytest.GatesClosed(); n != closedBefore+1 {
		t.Errorf("gates closed = %d, want %d", n, closedBefore+1)
	}
	if _, err := g.Pass("other"); !errors.Is(err, proxy.ErrInstanceDisposed) {
		t.Errorf("call after release = %v, want ErrInstanceDisposed", err)
	}
}

//go:noinline
func createAndDrop(t *testing.T, f *fixture) {
	if _, err := proxy.CreateInstance[proxytest.TestFuncs](f.host, f.realm, f.path, "Test"); err != nil {
		t.Fatal(err)
	}
}

func TestUnreachableProxyIsCollected(t *testing.T) {
	f := setup(t)
	createAndDrop(t, f)
	if n := f.host.Registry().Len(); n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.host.Registry().Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("unreachable proxy was never collected")
		}
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConcurrentSynthesis(t *testing.T) {
	s := proxy.NewSynthesizer()
	typ := reflect.TypeFor[proxytest.TestFuncs]()

	var wg sync.WaitGroup
	got := make([]*proxy.ProxyType, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], _ = s.BuildOrGet(typ)
		}(i)
	}
	wg.Wait()

	for _, pt := range got {
		if pt == nil || pt != got[0] {
			t.Fatal("concurrent BuildOrGet returned different proxy types")
		}
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d, want 1", s.Count())
	}
}

func TestConcurrentCalls(t *testing.T) {
	f := setup(t)
	p := newTest(t, f)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if n, err := p.SimpleMethod(); err != nil || n != 3 {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent call failed: %v", err)
	}
	if f.realm.Inflight() != 0 {
		t.Errorf("Inflight = %d after calls returned", f.realm.Inflight())
	}
}

func TestJournalRecordsLifecycle(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatal(err)
	}
	f := setup(t, proxy.WithJournal(j))
	p := newTest(t, f)

	if err := f.host.UnloadRealm(context.Background(), f.realm); err != nil {
		t.Fatal(err)
	}
	runtime.KeepAlive(p)

	events, err := j.Events(realmName)
	if err != nil {
		t.Fatal(err)
	}
	var kinds []realm.EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	want := []realm.EventKind{
		realm.EventRealmCreated,
		realm.EventModuleLoaded,
		realm.EventInstanceCreated,
		realm.EventRealmUnloading,
		realm.EventRealmUnloaded,
	}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("journal = %v, want %v", kinds, want)
	}
}
