package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/model"
)

var (
	// ErrSystemExists is returned when a system name is registered twice.
	ErrSystemExists = errors.New("system already exists")
	// ErrSystemNotFound is returned for lookups of unknown systems.
	ErrSystemNotFound = errors.New("system not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventSystemAdded EventType = iota
	EventEphemerisUpdated
)

func (t EventType) String() string {
	switch t {
	case EventSystemAdded:
		return "system-added"
	case EventEphemerisUpdated:
		return "ephemeris-updated"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is emitted to subscribers when something interesting happens.
// Ephemeris is set for EventEphemerisUpdated and must be treated as read-only.
type Event struct {
	Type      EventType
	System    string
	Ephemeris *model.Ephemeris
}

// KnowledgeBase is an in-memory, thread-safe registry of built systems and
// their most recent ephemeris snapshots. Registered trees are frozen and may
// be shared freely between readers.
type KnowledgeBase struct {
	mu sync.RWMutex

	systems map[string]*core.Node
	latest  map[string]model.Ephemeris

	subs    map[int]func(Event)
	nextSub int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		systems: make(map[string]*core.Node),
		latest:  make(map[string]model.Ephemeris),
		subs:    make(map[int]func(Event)),
	}
}

// AddSystem registers the root of a built system under name.
func (kb *KnowledgeBase) AddSystem(name string, root *core.Node) error {
	if name == "" {
		return fmt.Errorf("system name is empty")
	}
	if root == nil {
		return fmt.Errorf("system %q has no root", name)
	}
	kb.mu.Lock()
	if _, exists := kb.systems[name]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSystemExists, name)
	}
	kb.systems[name] = root
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventSystemAdded, System: name})
	return nil
}

// GetSystem returns the root of the named system.
func (kb *KnowledgeBase) GetSystem(name string) (*core.Node, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	root, ok := kb.systems[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSystemNotFound, name)
	}
	return root, nil
}

// ListSystems returns the registered system names in lexical order.
func (kb *KnowledgeBase) ListSystems() []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]string, 0, len(kb.systems))
	for name := range kb.systems {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// UpdateEphemeris stores eph as the latest snapshot of its system and
// notifies subscribers.
func (kb *KnowledgeBase) UpdateEphemeris(eph model.Ephemeris) error {
	kb.mu.Lock()
	if _, ok := kb.systems[eph.System]; !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSystemNotFound, eph.System)
	}
	kb.latest[eph.System] = eph
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	notify(subs, Event{Type: EventEphemerisUpdated, System: eph.System, Ephemeris: &eph})
	return nil
}

// Latest returns the most recent snapshot stored for the named system.
func (kb *KnowledgeBase) Latest(name string) (model.Ephemeris, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	eph, ok := kb.latest[name]
	return eph, ok
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) snapshotSubsLocked() []func(Event) {
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, kb.subs[id])
	}
	return subs
}

func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
