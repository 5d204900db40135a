package engine

import (
	"sync"

	"github.com/mwantia/mdquery/data"
)

// Notification names the events a handle posts to its observers.
type Notification int

const (
	// DidFinishGathering is posted once, when the initial result set is complete.
	DidFinishGathering Notification = iota
	// DidUpdate is posted for every batch of live changes after gathering finished.
	DidUpdate
)

func (n Notification) String() string {
	switch n {
	case DidFinishGathering:
		return "DidFinishGathering"
	case DidUpdate:
		return "DidUpdate"
	default:
		return "unknown"
	}
}

// Event is the payload of a notification.
// Results is set for DidFinishGathering, the item lists for DidUpdate.
type Event struct {
	Notification Notification

	Results []*data.Metadata

	Added   []*data.Metadata
	Changed []*data.Metadata
	Removed []*data.Metadata
}

// Observer is called on an engine goroutine and must not block
// or call back into the handle that notifies it.
type Observer func(*Event)

type ObserverID uint64

type registration struct {
	notification Notification
	observer     Observer
}

// center serializes notifications and observer removal: post holds the read
// lock while observers run, so remove returns only once no call is in flight.
type center struct {
	mu        sync.RWMutex
	observers map[ObserverID]registration
	nextID    ObserverID
}

func newCenter() *center {
	return &center{observers: make(map[ObserverID]registration)}
}

func (c *center) add(n Notification, obs Observer) ObserverID {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	c.observers[c.nextID] = registration{notification: n, observer: obs}
	return c.nextID
}

func (c *center) remove(id ObserverID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.observers, id)
}

func (c *center) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.observers)
}

func (c *center) post(event *Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, reg := range c.observers {
		if reg.notification == event.Notification {
			reg.observer(event)
		}
	}
}
