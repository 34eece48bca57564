// Package events supports streaming node activity to connected websocket
// clients.
package events

import (
	"fmt"
	"sync"
)

// Messages are dropped for a subscriber that isn't draining its channel.
// The buffer gives a slow websocket writer room before that happens.
const subscriberBuffer = 100

// Events fans node activity messages out to subscribed clients. Each
// subscriber is identified by a unique id, typically the request trace id.
type Events struct {
	subscribers map[string]chan string
	mu          sync.RWMutex
}

// New constructs an Events value for subscribing and publishing.
func New() *Events {
	return &Events{
		subscribers: make(map[string]chan string),
	}
}

// Shutdown closes and removes every subscriber channel that was handed
// out by Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.subscribers {
		delete(evt.subscribers, id)
		close(ch)
	}
}

// Acquire registers the specified id and returns the channel the
// subscriber receives messages on.
func (evt *Events) Acquire(id string) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if ch, exists := evt.subscribers[id]; exists {
		return ch
	}

	evt.subscribers[id] = make(chan string, subscriberBuffer)
	return evt.subscribers[id]
}

// Release closes and removes the channel that was provided by the call
// to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.subscribers[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.subscribers, id)
	close(ch)
	return nil
}

// Send delivers a message to every subscriber. Send never blocks waiting
// for a receiver.
func (evt *Events) Send(s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
}
