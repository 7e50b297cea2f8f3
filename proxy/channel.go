package proxy

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/realmproxy/realm"
)

// Instance is the caller-side handle of one realm-side object. A proxy value
// holds exactly one Instance, and an Instance refers to exactly one realm and
// one backing object.
type Instance struct {
	id    uuid.UUID
	ptype *ProxyType
	realm *realm.Realm
	class string
	host  *Host
}

// ID returns the instance handle.
func (i *Instance) ID() uuid.UUID { return i.id }

// Realm returns the realm the backing object lives in.
func (i *Instance) Realm() *realm.Realm { return i.realm }

// Class returns the key of the closed class, e.g. "proxytest.GenericClass[int]".
func (i *Instance) Class() string { return i.class }

// ProxyType returns the synthesized type the instance was created from.
func (i *Instance) ProxyType() *ProxyType { return i.ptype }

// Call invokes a contract method by name. targs carries method-level type
// arguments and must be nil for non-generic methods.
func (i *Instance) Call(method string, targs realm.TypeArgs, args ...any) (any, error) {
	idx, ok := i.ptype.Contract.Method(method)
	if !ok {
		return nil, fmt.Errorf("%w: contract %s has no method %s", realm.ErrMemberNotFound, i.ptype.Contract.Type, method)
	}
	out, err := i.invoke(idx, targs, args)
	if err != nil || !out.IsValid() {
		return nil, err
	}
	return out.Interface(), nil
}

func (i *Instance) invoke(idx int, targs realm.TypeArgs, args []any) (reflect.Value, error) {
	return i.host.channel.Invoke(i, Request{Method: idx, TypeArgs: targs, Args: args})
}

// Request is one call travelling through the channel.
type Request struct {
	Method   int
	TypeArgs realm.TypeArgs
	Args     []any
}

// Channel carries calls from proxies into realms.
type Channel struct {
	registry *Registry
	marshal  Marshaler
	log      commonlog.Logger
}

// NewChannel creates a channel dispatching through registry.
func NewChannel(registry *Registry, marshal Marshaler) *Channel {
	return &Channel{
		registry: registry,
		marshal:  marshal,
		log:      commonlog.GetLogger("realmproxy.channel"),
	}
}

// Invoke runs req against inst's backing object. The result has the
// contract method's result type, or is invalid for error-only methods.
// Faults raised by the target come back as *realm.TargetInvocationError;
// everything else is a wrapped sentinel.
func (c *Channel) Invoke(inst *Instance, req Request) (reflect.Value, error) {
	if err := inst.realm.Enter(); err != nil {
		return reflect.Value{}, err
	}
	defer inst.realm.Exit()

	e, err := c.registry.acquire(inst.id)
	if err != nil {
		return reflect.Value{}, err
	}
	defer c.registry.release(e)

	if req.Method < 0 || req.Method >= len(e.members) {
		return reflect.Value{}, fmt.Errorf("%w: method index %d out of range", realm.ErrMemberNotFound, req.Method)
	}
	shape := inst.ptype.Contract.Methods[req.Method]
	member := e.members[req.Method]

	if member.Generic() {
		if err := member.CheckTypeArgs(req.TypeArgs); err != nil {
			return reflect.Value{}, err
		}
	} else if len(req.TypeArgs) > 0 {
		return reflect.Value{}, fmt.Errorf("%w: %s is not generic", realm.ErrContractMismatch, member.QualifiedName())
	}

	args := make([]any, len(req.Args))
	for i, a := range req.Args {
		v, err := c.marshal.In(e.module, a)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%s argument %d: %w", shape.Name, i, err)
		}
		args[i] = v
	}

	env := e.bound.Env()
	env.MethodTypeArgs = req.TypeArgs

	if c.log.AllowLevel(commonlog.Debug) {
		c.log.Debugf("invoke %s on %s in %s", member.Signature(), inst.id, env.Realm)
	}

	out, err := member.Call(env, e.backing, args)
	if err != nil {
		return reflect.Value{}, err
	}
	if shape.Result == nil {
		return reflect.Value{}, nil
	}

	rv, err := c.marshal.Out(e.module, out, shape.Result)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%s result: %w", shape.Name, err)
	}
	return rv, nil
}
