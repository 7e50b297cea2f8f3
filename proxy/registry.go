package proxy

import (
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/realmproxy/realm"
)

// entry is the registry's record of one proxy instance. It never points back
// at the Instance, so an unreachable proxy can be collected.
type entry struct {
	id      uuid.UUID
	realm   *realm.Realm
	module  *realm.Module
	bound   *realm.BoundType
	backing any
	members []*realm.Member

	inflight int
	disposed bool
}

// Registry maps instance handles to their realm-side state.
type Registry struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry
	byRealm map[*realm.Realm]map[uuid.UUID]struct{}

	notify func(realm.Event)
	log    commonlog.Logger
}

// NewRegistry creates an empty registry. notify, if non-nil, receives an
// instance-disposed event for every entry removed.
func NewRegistry(notify func(realm.Event)) *Registry {
	return &Registry{
		entries: make(map[uuid.UUID]*entry),
		byRealm: make(map[*realm.Realm]map[uuid.UUID]struct{}),
		notify:  notify,
		log:     commonlog.GetLogger("realmproxy.registry"),
	}
}

// Len returns the number of live entries.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// LenRealm returns the number of live entries in r.
func (g *Registry) LenRealm(r *realm.Realm) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.byRealm[r])
}

// register records e and returns the Instance handle bound to it. The
// caller must hold an Enter on e.realm so the realm cannot finish unloading
// in between.
func (g *Registry) register(e *entry, pt *ProxyType, h *Host) *Instance {
	e.id = uuid.New()

	g.mu.Lock()
	g.entries[e.id] = e
	ids, hooked := g.byRealm[e.realm]
	if !hooked {
		ids = make(map[uuid.UUID]struct{})
		g.byRealm[e.realm] = ids
	}
	ids[e.id] = struct{}{}
	g.mu.Unlock()

	if !hooked {
		e.realm.OnUnload(g.dropRealm)
	}

	inst := &Instance{
		id:    e.id,
		ptype: pt,
		realm: e.realm,
		class: e.bound.Key(),
		host:  h,
	}
	runtime.AddCleanup(inst, g.collect, e.id)
	return inst
}

// acquire marks a call in flight on the entry for id.
func (g *Registry) acquire(id uuid.UUID) (*entry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok || e.disposed {
		return nil, fmt.Errorf("%w: %s", ErrInstanceDisposed, id)
	}
	e.inflight++
	return e, nil
}

// release ends a call; the last call out of a disposed entry removes it.
func (g *Registry) release(e *entry) {
	g.mu.Lock()
	e.inflight--
	remove := e.disposed && e.inflight == 0 && g.removeLocked(e)
	g.mu.Unlock()

	if remove {
		g.finalize(e, "disposed")
	}
}

// Dispose invalidates the instance. Calls already running finish first;
// the entry goes away when the last one returns. Disposing twice is a no-op.
func (g *Registry) Dispose(id uuid.UUID) error {
	g.mu.Lock()
	e, ok := g.entries[id]
	if !ok || e.disposed {
		g.mu.Unlock()
		return nil
	}
	e.disposed = true
	remove := e.inflight == 0 && g.removeLocked(e)
	g.mu.Unlock()

	if remove {
		g.finalize(e, "disposed")
	}
	return nil
}

// collect runs when an Instance becomes unreachable.
func (g *Registry) collect(id uuid.UUID) {
	g.mu.Lock()
	e, ok := g.entries[id]
	if !ok {
		g.mu.Unlock()
		return
	}
	e.disposed = true
	remove := e.inflight == 0 && g.removeLocked(e)
	g.mu.Unlock()

	if remove {
		g.finalize(e, "collected")
	}
}

// dropRealm releases every entry of an unloaded realm.
func (g *Registry) dropRealm(r *realm.Realm) {
	g.mu.Lock()
	var dropped []*entry
	for id := range g.byRealm[r] {
		if e, ok := g.entries[id]; ok {
			e.disposed = true
			delete(g.entries, id)
			dropped = append(dropped, e)
		}
	}
	delete(g.byRealm, r)
	g.mu.Unlock()

	for _, e := range dropped {
		g.closeBacking(e)
	}
	if len(dropped) > 0 {
		g.log.Info("released realm instances", "realm", r.Name(), "count", len(dropped))
	}
}

func (g *Registry) removeLocked(e *entry) bool {
	if _, ok := g.entries[e.id]; !ok {
		return false
	}
	delete(g.entries, e.id)
	if ids, ok := g.byRealm[e.realm]; ok {
		delete(ids, e.id)
	}
	return true
}

func (g *Registry) finalize(e *entry, how string) {
	g.closeBacking(e)
	g.log.Debugf("instance %s %s (%s)", e.id, how, e.bound.Key())
	if g.notify != nil {
		g.notify(realm.Event{Kind: realm.EventInstanceDisposed, Realm: e.realm.Name(), Detail: how + " " + e.bound.Key() + " " + e.id.String()})
	}
}

func (g *Registry) closeBacking(e *entry) {
	c, ok := e.backing.(io.Closer)
	e.backing = nil
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		g.log.Warningf("closing %s instance %s: %s", e.bound.Key(), e.id, err.Error())
	}
}
