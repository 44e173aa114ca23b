package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
)

// LocalPublisher fans messages out to in-process subscribers
type LocalPublisher struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan *DomainChanged
	nextID      uint64
	bufferSize  int
	closed      atomic.Bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

var _ Publisher = (*LocalPublisher)(nil)

// NewLocalPublisher creates a publisher whose subscriber channels hold bufferSize messages
func NewLocalPublisher(bufferSize int) *LocalPublisher {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &LocalPublisher{
		subscribers: make(map[uint64]chan *DomainChanged),
		bufferSize:  bufferSize,
	}
}

// Subscribe returns a channel of messages and a function that ends the subscription
func (p *LocalPublisher) Subscribe() (<-chan *DomainChanged, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	ch := make(chan *DomainChanged, p.bufferSize)
	p.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if sub, ok := p.subscribers[id]; ok {
				delete(p.subscribers, id)
				close(sub)
			}
		})
	}
}

// Publish delivers to every subscriber without blocking; slow subscribers lose messages
func (p *LocalPublisher) Publish(ctx context.Context, msg *DomainChanged) error {
	if p.closed.Load() {
		return ErrClosed
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var full bool
	for _, ch := range p.subscribers {
		select {
		case ch <- msg:
		default:
			p.dropped.Add(1)
			full = true
		}
	}
	p.published.Add(1)
	if full {
		return ErrBufferFull
	}
	return nil
}

// Stats returns published and dropped counts
func (p *LocalPublisher) Stats() (published, dropped uint64) {
	return p.published.Load(), p.dropped.Load()
}

// Close ends every subscription
func (p *LocalPublisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subscribers {
		delete(p.subscribers, id)
		close(ch)
	}
	return nil
}
