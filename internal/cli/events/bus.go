package events

import (
	"sync"
	"time"
)

// Name identifies an event channel.
type Name string

// SessionExpired is published whenever the current credential is found to be
// invalid, either locally or by the backend.
const SessionExpired Name = "session.expired"

// Event is a published notification. Only Name is required.
type Event struct {
	Name   Name
	Reason string
	Source string
	At     time.Time
}

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an in-process publish/subscribe channel keyed by event name.
// There is no persistence or replay: a handler subscribed after a publish
// never sees it.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Name][]subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[Name][]subscription),
	}
}

// Subscribe registers h for name and returns a function removing it.
// The returned function may be called any number of times.
func (b *Bus) Subscribe(name Name, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(name, id) })
	}
}

func (b *Bus) remove(name Name, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[name]
	for i, s := range subs {
		if s.id == id {
			b.subs[name] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[name]) == 0 {
		delete(b.subs, name)
	}
}

// Publish delivers ev to every handler subscribed to ev.Name, in
// subscription order, and returns how many handlers ran. The handler list is
// snapshotted first so handlers may subscribe or unsubscribe while running.
func (b *Bus) Publish(ev Event) int {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	handlers := append([]subscription{}, b.subs[ev.Name]...)
	b.mu.RUnlock()

	for _, s := range handlers {
		s.handler(ev)
	}
	return len(handlers)
}

// Subscribers returns the number of handlers registered for name.
func (b *Bus) Subscribers(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}
