// Package realm implements isolated, unloadable code realms: the realm
// lifecycle, module loading, and the per-realm type and member tables that
// proxies resolve against.
package realm

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/realmproxy/manifest"
)

// Manager creates realms, loads modules into them, and unloads them.
type Manager struct {
	mu        sync.Mutex
	realms    map[string]*Realm
	observers []Observer
	log       commonlog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithObserver adds a lifecycle observer.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) { m.observers = append(m.observers, o) }
}

// WithLogger replaces the default "realmproxy.realm" logger.
func WithLogger(log commonlog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// NewManager creates an empty realm manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		realms: make(map[string]*Realm),
		log:    commonlog.GetLogger("realmproxy.realm"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateRealm allocates a new realm. Only collectible realms can be unloaded
// later; the rest stay Active until the process exits.
func (m *Manager) CreateRealm(name string, collectible bool) (*Realm, error) {
	m.mu.Lock()
	if _, exists := m.realms[name]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRealmExists, name)
	}
	r := newRealm(name, collectible)
	m.realms[name] = r
	m.mu.Unlock()

	r.OnUnload(func(r *Realm) {
		m.mu.Lock()
		if m.realms[r.name] == r {
			delete(m.realms, r.name)
		}
		m.mu.Unlock()
		m.log.Info("realm unloaded", "realm", r.name)
		m.Emit(Event{Kind: EventRealmUnloaded, Realm: r.name})
	})

	m.log.Info("realm created", "realm", name, "collectible", collectible)
	m.Emit(Event{Kind: EventRealmCreated, Realm: name, Detail: fmt.Sprintf("collectible=%t", collectible)})
	return r, nil
}

// Lookup finds a live realm by name.
func (m *Manager) Lookup(name string) (*Realm, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.realms[name]
	return r, ok
}

// Realms returns the live realms sorted by name.
func (m *Manager) Realms() []*Realm {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Realm, 0, len(m.realms))
	for _, r := range m.realms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// LoadModule loads the module file at path into r. Loading is idempotent per
// (realm, resolved path): a second load, through any symlink to the same
// file, returns the existing module.
func (m *Manager) LoadModule(r *Realm, path string) (*Module, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModuleLoad, path, err)
	}
	abs = filepath.Clean(abs)
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	if mod, ok := r.Module(abs); ok {
		return mod, nil
	}
	if st := r.State(); st >= StateUnloading {
		if st == StateUnloading {
			return nil, fmt.Errorf("%w: %s", ErrRealmUnloading, r.name)
		}
		return nil, fmt.Errorf("%w: %s", ErrRealmUnloaded, r.name)
	}

	desc, err := manifest.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModuleLoad, err)
	}
	lib, ok := LookupLibrary(desc.Library)
	if !ok {
		return nil, fmt.Errorf("%w: %s: unknown library %q", ErrModuleLoad, abs, desc.Library)
	}
	if desc.Version != "" && lib.Version != "" && desc.Version != lib.Version {
		return nil, fmt.Errorf("%w: %s: module wants %s %s, linked library is %s", ErrModuleLoad, abs, lib.Name, desc.Version, lib.Version)
	}

	mod, err := compileModule(r, abs, desc, lib)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModuleLoad, abs, err)
	}
	if err := r.addModule(abs, mod); err != nil {
		return nil, err
	}

	m.log.Info("module loaded", "realm", r.name, "module", mod.Name, "path", abs, "types", len(mod.types))
	m.Emit(Event{Kind: EventModuleLoaded, Realm: r.name, Detail: mod.Name + " " + abs})
	return mod, nil
}

// UnloadRealm starts unloading r and waits until it is Unloaded. New
// invocations fail from the moment this is called; running ones drain. If ctx
// ends first, ctx.Err() is returned and the unload still completes when the
// last invocation exits.
func (m *Manager) UnloadRealm(ctx context.Context, r *Realm) error {
	done, err := r.beginUnload(func() {
		m.log.Info("realm unloading", "realm", r.name, "inflight", r.Inflight()-1)
		m.Emit(Event{Kind: EventRealmUnloading, Realm: r.name})
	})
	if err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close unloads every collectible realm.
func (m *Manager) Close(ctx context.Context) error {
	var firstErr error
	for _, r := range m.Realms() {
		if !r.Collectible() {
			continue
		}
		if err := m.UnloadRealm(ctx, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Emit sends an event to every observer.
func (m *Manager) Emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	m.mu.Lock()
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	for _, o := range observers {
		o(ev)
	}
}
