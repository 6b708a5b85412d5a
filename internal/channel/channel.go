package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
)

var ErrClosed = errors.New("channel closed")

// Handler receives the raw data of one event. Handlers run on the channel's
// delivery goroutine, in arrival order, and must not block for long.
type Handler func(data json.RawMessage)

// Channel is the room event channel shared by every view of one client.
type Channel interface {
	Emit(ctx context.Context, event string, payload any) error
	// On subscribes h to event. The returned func removes the subscription.
	On(event string, h Handler) (off func())
}

func Encode(event string, payload any) (types.Envelope, error) {
	env := types.Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return env, fmt.Errorf("encode %s: %w", event, err)
	}
	env.Data = data
	return env, nil
}

type subscription struct {
	id int
	h  Handler
}

// dispatcher fans envelopes out to subscribers in subscription order.
type dispatcher struct {
	mu     sync.Mutex
	nextID int
	subs   map[string][]subscription
}

func (d *dispatcher) On(event string, h Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subs == nil {
		d.subs = make(map[string][]subscription)
	}
	d.nextID++
	id := d.nextID
	d.subs[event] = append(d.subs[event], subscription{id: id, h: h})

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(event, id) })
	}
}

func (d *dispatcher) remove(event string, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subs[event]
	for i, s := range subs {
		if s.id == id {
			d.subs[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(d.subs[event]) == 0 {
		delete(d.subs, event)
	}
}

// dispatch reports whether anyone was subscribed to the event.
func (d *dispatcher) dispatch(env types.Envelope) bool {
	d.mu.Lock()
	subs := append([]subscription(nil), d.subs[env.Event]...)
	d.mu.Unlock()

	for _, s := range subs {
		s.h(env.Data)
	}
	return len(subs) > 0
}
