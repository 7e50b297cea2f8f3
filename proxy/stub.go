package proxy

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/chazu/realmproxy/realm"
)

type stubFactory func(*Instance) any

var (
	stubsMu sync.RWMutex
	stubs   = make(map[reflect.Type]stubFactory)
)

// RegisterStub registers the forwarding type for interface contract C.
// Generated code calls it from init; generic contracts register each
// instantiation they need. Registering C again replaces the factory.
func RegisterStub[C any](factory func(*Instance) C) {
	t := reflect.TypeFor[C]()
	if t.Kind() != reflect.Interface {
		panic(fmt.Sprintf("proxy: RegisterStub needs an interface type, got %s", t))
	}

	stubsMu.Lock()
	defer stubsMu.Unlock()
	stubs[t] = func(inst *Instance) any { return factory(inst) }
}

func lookupStub(t reflect.Type) (stubFactory, bool) {
	stubsMu.RLock()
	defer stubsMu.RUnlock()
	f, ok := stubs[t]
	return f, ok
}

// Handle is implemented by generated stubs so Dispose can find the instance
// behind an interface proxy.
type Handle interface {
	ProxyInstance() *Instance
}

// Result converts an untyped call result to the contract's result type.
// Generated stubs wrap Instance.Call with it.
func Result[T any](out any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	v, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("%w: result %T is not %s", realm.ErrContractMismatch, out, reflect.TypeFor[T]())
	}
	return v, nil
}
