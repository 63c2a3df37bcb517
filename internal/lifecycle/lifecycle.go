// Package lifecycle delivers foreground/background transitions of the host process.
package lifecycle

import (
	"sync"
)

// Transition is a change of the host's foreground state
type Transition string

const (
	Foreground Transition = "foreground"
	Background Transition = "background"
)

// Source is a stream of transitions. Subscribe returns the function that
// releases the subscription; calling it more than once is safe.
type Source interface {
	Subscribe(fn func(Transition)) (unsubscribe func())
}

// Broadcaster fans transitions out to subscribers
type Broadcaster struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]func(Transition)
	last   Transition
}

// NewBroadcaster creates an empty broadcaster; the host starts in the foreground
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[uint64]func(Transition)),
		last: Foreground,
	}
}

// Subscribe registers fn until the returned function is called
func (b *Broadcaster) Subscribe(fn func(Transition)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers t to every subscriber. Repeated transitions to the same
// state are dropped.
func (b *Broadcaster) Publish(t Transition) {
	b.mu.Lock()
	if t == b.last {
		b.mu.Unlock()
		return
	}
	b.last = t
	fns := make([]func(Transition), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(t)
	}
}

// Current returns the last published state
func (b *Broadcaster) Current() Transition {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Subscribers returns the number of live subscriptions
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

var _ Source = (*Broadcaster)(nil)
