package chat

import "sync"

// Command is a request to show or hide the chat widget, published by any
// part of the host application.
type Command string

const (
	CommandOpen  Command = "open"
	CommandClose Command = "close"
)

// Bus fans commands out to subscribers in subscription order.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]func(Command)
	next int
	ids  []int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Command))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Command)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.ids = append(b.ids, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			for i, v := range b.ids {
				if v == id {
					b.ids = append(b.ids[:i], b.ids[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
		})
	}
}

// Publish delivers cmd synchronously to every current subscriber.
func (b *Bus) Publish(cmd Command) {
	b.mu.RLock()
	fns := make([]func(Command), 0, len(b.ids))
	for _, id := range b.ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(cmd)
	}
}
