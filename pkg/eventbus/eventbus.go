package eventbus

import (
	"sync"
)

// Handler is a function that handles an event of type T.
type Handler[T any] func(event T)

type subscription[T any] struct {
	id      uint64
	handler Handler[T]
}

// Bus provides typed in-process pub/sub.
type Bus[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers []subscription[T]
}

// New creates a new Bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers a handler and returns a function that removes it.
func (b *Bus[T]) Subscribe(handler Handler[T]) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, subscription[T]{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

// SubscribeChan delivers events to a buffered channel. When the buffer is
// full the event is dropped for this subscriber and onDrop is called.
func (b *Bus[T]) SubscribeChan(buffer int, onDrop func()) (<-chan T, func()) {
	ch := make(chan T, buffer)
	var closed bool
	var mu sync.Mutex

	unsub := b.Subscribe(func(event T) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- event:
		default:
			if onDrop != nil {
				onDrop()
			}
		}
	})

	return ch, func() {
		unsub()
		mu.Lock()
		if !closed {
			closed = true
			close(ch)
		}
		mu.Unlock()
	}
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.handlers {
		if s.id == id {
			b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Publish publishes an event to all subscribers asynchronously.
func (b *Bus[T]) Publish(event T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.handlers {
		go s.handler(event)
	}
}

// PublishSync publishes an event synchronously, in subscription order.
func (b *Bus[T]) PublishSync(event T) {
	b.mu.RLock()
	subs := make([]subscription[T], len(b.handlers))
	copy(subs, b.handlers)
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(event)
	}
}

// HasSubscribers returns true if there is at least one subscriber.
func (b *Bus[T]) HasSubscribers() bool {
	return b.SubscriberCount() > 0
}

// SubscriberCount returns the number of subscribers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
