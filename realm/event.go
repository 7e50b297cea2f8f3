package realm

import "time"

// EventKind names a lifecycle transition worth recording.
type EventKind string

const (
	EventRealmCreated     EventKind = "realm-created"
	EventModuleLoaded     EventKind = "module-loaded"
	EventInstanceCreated  EventKind = "instance-created"
	EventInstanceDisposed EventKind = "instance-disposed"
	EventRealmUnloading   EventKind = "realm-unloading"
	EventRealmUnloaded    EventKind = "realm-unloaded"
)

// Event is one lifecycle transition.
type Event struct {
	Kind   EventKind
	Realm  string
	Detail string
	Time   time.Time
}

// Observer receives lifecycle events. It is called synchronously and must
// not call back into the Manager.
type Observer func(Event)
