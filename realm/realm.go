package realm

import (
	"fmt"
	"sort"
	"sync"
)

// State is a realm's lifecycle position. Transitions only move forward:
// Created → Loaded → Active → Unloading → Unloaded.
type State int

const (
	StateCreated State = iota
	StateLoaded
	StateActive
	StateUnloading
	StateUnloaded
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateLoaded:
		return "loaded"
	case StateActive:
		return "active"
	case StateUnloading:
		return "unloading"
	case StateUnloaded:
		return "unloaded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Realm is an isolation unit: its own set of modules, and through them its
// own type identities. Everything created inside it becomes invalid once it
// is unloaded.
//
// Unload policy: once unloading begins, new invocations fail immediately with
// ErrRealmUnloading, while invocations already in flight run to completion.
// The realm becomes Unloaded when the last of them exits.
type Realm struct {
	name        string
	collectible bool

	loadMu sync.Mutex // serializes module loads

	mu       sync.Mutex
	state    State
	modules  map[string]*Module
	order    []string
	inflight int
	hooks    []func(*Realm)
	done     chan struct{}
}

func newRealm(name string, collectible bool) *Realm {
	return &Realm{
		name:        name,
		collectible: collectible,
		modules:     make(map[string]*Module),
		done:        make(chan struct{}),
	}
}

// Name returns the realm's name.
func (r *Realm) Name() string { return r.name }

// Collectible reports whether the realm may be unloaded.
func (r *Realm) Collectible() bool { return r.collectible }

// State returns the current lifecycle state.
func (r *Realm) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Done is closed when the realm reaches StateUnloaded.
func (r *Realm) Done() <-chan struct{} { return r.done }

// Inflight returns the number of invocations currently running in the realm.
func (r *Realm) Inflight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inflight
}

// Modules returns the loaded modules in load order.
func (r *Realm) Modules() []*Module {
	r.mu.Lock()
	defer r.mu.Unlock()

	mods := make([]*Module, 0, len(r.order))
	for _, p := range r.order {
		mods = append(mods, r.modules[p])
	}
	return mods
}

// Module returns the module loaded from the resolved path, if any.
func (r *Realm) Module(path string) (*Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[path]
	return m, ok
}

// ModulePaths returns the sorted resolved paths of the loaded modules.
func (r *Realm) ModulePaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := append([]string(nil), r.order...)
	sort.Strings(paths)
	return paths
}

// Enter registers an invocation (or construction) about to run inside the
// realm. Every successful Enter must be paired with Exit.
func (r *Realm) Enter() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.liveLocked(); err != nil {
		return err
	}
	r.inflight++
	return nil
}

// Exit ends an invocation started with Enter. The last exit of an unloading
// realm completes the unload.
func (r *Realm) Exit() {
	r.mu.Lock()
	r.inflight--
	if r.inflight < 0 {
		r.mu.Unlock()
		panic("realm: Exit without Enter in " + r.name)
	}
	finished := r.state == StateUnloading && r.inflight == 0
	var hooks []func(*Realm)
	if finished {
		hooks = r.finishLocked()
	}
	r.mu.Unlock()

	if finished {
		r.complete(hooks)
	}
}

// Activate marks the realm Active after its first instance is constructed.
func (r *Realm) Activate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state < StateActive {
		r.state = StateActive
	}
}

// OnUnload registers fn to run once the realm reaches StateUnloaded. If it
// already has, fn runs immediately.
func (r *Realm) OnUnload(fn func(*Realm)) {
	r.mu.Lock()
	if r.state != StateUnloaded {
		r.hooks = append(r.hooks, fn)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	fn(r)
}

func (r *Realm) liveLocked() error {
	switch r.state {
	case StateUnloading:
		return fmt.Errorf("%w: %s", ErrRealmUnloading, r.name)
	case StateUnloaded:
		return fmt.Errorf("%w: %s", ErrRealmUnloaded, r.name)
	}
	return nil
}

func (r *Realm) addModule(path string, m *Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.liveLocked(); err != nil {
		return err
	}
	r.modules[path] = m
	r.order = append(r.order, path)
	if r.state == StateCreated {
		r.state = StateLoaded
	}
	return nil
}

// beginUnload moves the realm to Unloading and returns a channel closed once
// it is Unloaded. onStart runs once, when the transition happens, and always
// before the unload completes.
func (r *Realm) beginUnload(onStart func()) (<-chan struct{}, error) {
	r.mu.Lock()
	if !r.collectible {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotCollectible, r.name)
	}
	if r.state >= StateUnloading {
		r.mu.Unlock()
		return r.done, nil
	}
	r.state = StateUnloading
	r.inflight++ // held until onStart has run
	r.mu.Unlock()

	onStart()
	r.Exit()
	return r.done, nil
}

func (r *Realm) finishLocked() []func(*Realm) {
	r.state = StateUnloaded
	r.modules = make(map[string]*Module)
	r.order = nil
	hooks := r.hooks
	r.hooks = nil
	return hooks
}

// complete runs the unload hooks, then releases waiters on Done.
func (r *Realm) complete(hooks []func(*Realm)) {
	for _, fn := range hooks {
		fn(r)
	}
	close(r.done)
}
