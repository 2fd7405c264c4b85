package telemetry

import (
	"sync"

	"github.com/angeloszaimis/fetch-orchestrator/internal/engine"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 500

// Buffer is a bounded, concurrency-safe FIFO of recent traces.
type Buffer struct {
	mutex       sync.RWMutex
	items       []Trace
	head        int
	size        int
	subscribers map[int]chan Trace
	nextSubID   int
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		items:       make([]Trace, capacity),
		subscribers: make(map[int]chan Trace),
	}
}

// Record appends a trace, evicting the oldest one when the buffer is full.
func (b *Buffer) Record(t Trace) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t = t.Clone()

	b.mutex.Lock()
	defer b.mutex.Unlock()

	idx := (b.head + b.size) % len(b.items)
	if b.size == len(b.items) {
		b.head = (b.head + 1) % len(b.items)
	} else {
		b.size++
	}
	b.items[idx] = t

	for _, ch := range b.subscribers {
		select {
		case ch <- t.Clone():
		default:
		}
	}

	return nil
}

// Recent returns up to n of the newest traces, oldest first.
func (b *Buffer) Recent(n int) []Trace {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if n <= 0 {
		return []Trace{}
	}
	if n > b.size {
		n = b.size
	}

	out := make([]Trace, 0, n)
	for i := b.size - n; i < b.size; i++ {
		out = append(out, b.at(i).Clone())
	}
	return out
}

// Filter returns every buffered trace matching pred, oldest first.
func (b *Buffer) Filter(pred func(Trace) bool) []Trace {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	var out []Trace
	for i := 0; i < b.size; i++ {
		if t := b.at(i); pred(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Last returns the newest trace matching pred.
func (b *Buffer) Last(pred func(Trace) bool) (Trace, bool) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	for i := b.size - 1; i >= 0; i-- {
		if t := b.at(i); pred(t) {
			return t.Clone(), true
		}
	}
	return Trace{}, false
}

func (b *Buffer) LastForEngine(e engine.Engine) (Trace, bool) {
	return b.Last(func(t Trace) bool { return t.Engine == e })
}

func (b *Buffer) Len() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.size
}

func (b *Buffer) Cap() int {
	return len(b.items)
}

// Subscribe registers a feed of newly recorded traces. Traces are dropped
// for a subscriber whose channel is full. The returned func unsubscribes and
// closes the channel.
func (b *Buffer) Subscribe(buffer int) (<-chan Trace, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Trace, buffer)

	b.mutex.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[id] = ch
	b.mutex.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mutex.Lock()
			delete(b.subscribers, id)
			b.mutex.Unlock()
			close(ch)
		})
	}
}

// at returns the i-th oldest trace. Callers hold the lock.
func (b *Buffer) at(i int) Trace {
	return b.items[(b.head+i)%len(b.items)]
}
