// Package proxy creates statically typed proxies for objects living inside
// realms and carries calls through them.
//
// A contract is either an interface type, served by a stub that realmgen
// generates and registers with RegisterStub, or a struct whose exported
// fields are funcs, filled in at run time. Every contract method returns an
// error last; a leading realm.TypeArgs parameter makes it a generic method.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/tliron/commonlog"

	"github.com/chazu/realmproxy/config"
	"github.com/chazu/realmproxy/journal"
	"github.com/chazu/realmproxy/manifest"
	"github.com/chazu/realmproxy/realm"
)

var (
	// ErrInstanceDisposed reports a call through a disposed or collected proxy.
	ErrInstanceDisposed = errors.New("proxy instance disposed")
	// ErrNotMarshalable reports a value that cannot cross the realm boundary.
	ErrNotMarshalable = errors.New("value not marshalable")
	// ErrNoStub reports an interface contract with no registered stub.
	ErrNoStub = errors.New("no stub registered for contract")
	// ErrNotProxy reports a value that did not come from CreateInstance.
	ErrNotProxy = errors.New("not a proxy")
)

// Host ties a realm manager, a synthesizer, a registry and a channel
// together. Most programs need one.
type Host struct {
	manager    *realm.Manager
	synth      *Synthesizer
	registry   *Registry
	channel    *Channel
	marshal    Marshaler
	journal    *journal.Journal
	searchDirs []string
	log        commonlog.Logger

	managerOpts []realm.ManagerOption
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithMarshalPolicy sets how shared reference types cross the boundary.
func WithMarshalPolicy(p MarshalPolicy) HostOption {
	return func(h *Host) { h.marshal.Policy = p }
}

// WithSynthesizer replaces the process-wide synthesizer.
func WithSynthesizer(s *Synthesizer) HostOption {
	return func(h *Host) { h.synth = s }
}

// WithSearchDirs sets the directories searched for relative module paths.
func WithSearchDirs(dirs ...string) HostOption {
	return func(h *Host) { h.searchDirs = append(h.searchDirs, dirs...) }
}

// WithJournal records lifecycle events to j. The host closes j on Close.
func WithJournal(j *journal.Journal) HostOption {
	return func(h *Host) {
		h.journal = j
		h.managerOpts = append(h.managerOpts, realm.WithObserver(j.Observer()))
	}
}

// WithRealmObserver adds a lifecycle observer to the host's manager.
func WithRealmObserver(o realm.Observer) HostOption {
	return func(h *Host) { h.managerOpts = append(h.managerOpts, realm.WithObserver(o)) }
}

// NewHost creates a host with its own realm manager.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		synth: defaultSynthesizer,
		log:   commonlog.GetLogger("realmproxy.proxy"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.manager = realm.NewManager(h.managerOpts...)
	h.registry = NewRegistry(h.manager.Emit)
	h.channel = NewChannel(h.registry, h.marshal)
	return h
}

// Open creates a host from configuration, opening the journal if one is
// configured.
func Open(cfg *config.Config) (*Host, error) {
	policy, err := ParsePolicy(cfg.Marshal)
	if err != nil {
		return nil, err
	}
	opts := []HostOption{
		WithMarshalPolicy(policy),
		WithSearchDirs(cfg.ModulePath...),
	}
	if cfg.Journal != "" {
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithJournal(j))
	}
	return NewHost(opts...), nil
}

// Manager returns the host's realm manager.
func (h *Host) Manager() *realm.Manager { return h.manager }

// Synthesizer returns the synthesizer the host builds proxy types with.
func (h *Host) Synthesizer() *Synthesizer { return h.synth }

// Registry returns the host's instance registry.
func (h *Host) Registry() *Registry { return h.registry }

// Policy returns the marshal policy in use.
func (h *Host) Policy() MarshalPolicy { return h.marshal.Policy }

// CreateRealm creates a realm in the host's manager.
func (h *Host) CreateRealm(name string, collectible bool) (*realm.Realm, error) {
	return h.manager.CreateRealm(name, collectible)
}

// UnloadRealm unloads r and waits for it; see realm.Manager.UnloadRealm.
func (h *Host) UnloadRealm(ctx context.Context, r *realm.Realm) error {
	return h.manager.UnloadRealm(ctx, r)
}

// Close unloads every collectible realm and closes the journal.
func (h *Host) Close(ctx context.Context) error {
	err := h.manager.Close(ctx)
	if h.journal != nil {
		if jerr := h.journal.Close(); jerr != nil && err == nil {
			err = jerr
		}
	}
	return err
}

// createInstance does the work of CreateInstance for contract type t.
// Nothing is registered unless every step succeeds.
func (h *Host) createInstance(t reflect.Type, r *realm.Realm, modulePath, className string, ctorArgs []any, typeArgs realm.TypeArgs) (any, error) {
	pt, err := h.synth.BuildOrGet(t)
	if err != nil {
		return nil, err
	}
	if pt.Contract.Arity != len(typeArgs) {
		return nil, fmt.Errorf("%w: contract %s has %d type argument(s), %d given", realm.ErrContractMismatch, t, pt.Contract.Arity, len(typeArgs))
	}

	path, err := manifest.Locate(modulePath, h.searchDirs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", realm.ErrModuleLoad, err)
	}
	mod, err := h.manager.LoadModule(r, path)
	if err != nil {
		return nil, err
	}
	bt, err := mod.Resolve(className, typeArgs)
	if err != nil {
		return nil, err
	}

	methods := pt.Contract.Methods
	members := make([]*realm.Member, len(methods))
	for i, m := range methods {
		members[i], err = bt.Bind(m.Name, m.Params, m.Result, m.Generic)
		if err != nil {
			return nil, err
		}
	}

	if err := r.Enter(); err != nil {
		return nil, err
	}
	defer r.Exit()

	args := make([]any, len(ctorArgs))
	for i, a := range ctorArgs {
		if args[i], err = h.marshal.In(mod, a); err != nil {
			return nil, fmt.Errorf("constructor argument %d: %w", i, err)
		}
	}
	backing, err := bt.Construct(bt.Env(), args)
	if err != nil {
		return nil, err
	}
	r.Activate()

	inst := h.registry.register(&entry{
		realm:   r,
		module:  mod,
		bound:   bt,
		backing: backing,
		members: members,
	}, pt, h)

	v, err := pt.materialize(inst, t)
	if err != nil {
		h.registry.Dispose(inst.id)
		return nil, err
	}

	h.log.Info("instance created", "realm", r.Name(), "class", bt.Key(), "contract", t.String(), "id", inst.id.String())
	h.manager.Emit(realm.Event{Kind: realm.EventInstanceCreated, Realm: r.Name(), Detail: bt.Key() + " " + inst.id.String()})
	return v, nil
}

// CreateInstance loads the module at modulePath into r (if needed),
// constructs className with ctorArgs inside it and returns a proxy of
// contract type C.
func CreateInstance[C any](h *Host, r *realm.Realm, modulePath, className string, ctorArgs ...any) (C, error) {
	return CreateGenericInstance[C](h, r, modulePath, className, ctorArgs)
}

// CreateGenericInstance is CreateInstance for a generic class, closed over
// typeArgs. The contract must have the same number of type arguments.
func CreateGenericInstance[C any](h *Host, r *realm.Realm, modulePath, className string, ctorArgs []any, typeArgs ...realm.TypeRef) (C, error) {
	var zero C
	v, err := h.createInstance(reflect.TypeFor[C](), r, modulePath, className, ctorArgs, typeArgs)
	if err != nil {
		return zero, err
	}
	return v.(C), nil
}

// InstanceOf returns the Instance behind a proxy value.
func InstanceOf(v any) (*Instance, bool) {
	if hv, ok := v.(Handle); ok {
		inst := hv.ProxyInstance()
		return inst, inst != nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	for i := 0; i < rv.NumField(); i++ {
		if rv.Type().Field(i).IsExported() && rv.Field(i).Type() == instanceType && !rv.Field(i).IsNil() {
			return rv.Field(i).Interface().(*Instance), true
		}
	}
	return nil, false
}

// Dispose releases the realm-side object behind proxy v. Later calls
// through v fail with ErrInstanceDisposed.
func Dispose(v any) error {
	inst, ok := InstanceOf(v)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotProxy, v)
	}
	return inst.host.registry.Dispose(inst.id)
}
