package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type key interface {
	comparable
}

type message interface {
	any
}

type Message[K key, M message] struct {
	Key     K
	Message M
}

type Publisher[M message] func(ctx context.Context, msg M)
type Subscriber[K key, M message] func(ctx context.Context) <-chan Message[K, M]

const DefaultBufferSize = 64

type subscription[K key, M message] struct {
	mu     sync.Mutex
	ch     chan Message[K, M]
	closed bool
}

// send never blocks. It reports false when the subscriber is too slow to
// keep up and the message was dropped.
func (s *subscription[K, M]) send(msg Message[K, M]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (s *subscription[K, M]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	close(s.ch)
}

// Bus delivers published messages to every global subscriber and to the
// subscribers of the message key. Delivery order is preserved per
// subscriber; a subscriber with a full buffer loses messages instead of
// stalling the publisher.
type Bus[K key, M message] struct {
	log        *zap.Logger
	bufferSize int
	ready      chan struct{}

	ch         chan Message[K, M]
	keySubs    *xsync.MapOf[K, *xsync.MapOf[*subscription[K, M], struct{}]]
	globalSubs *xsync.MapOf[*subscription[K, M], struct{}]

	dropped atomic.Uint64
}

type Option func(*busOptions)

type busOptions struct {
	bufferSize int
}

func WithBufferSize(n int) Option {
	return func(o *busOptions) {
		o.bufferSize = n
	}
}

func NewBus[K key, M message](logger *zap.Logger, opts ...Option) *Bus[K, M] {
	options := busOptions{bufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&options)
	}
	return &Bus[K, M]{
		log:        logger,
		bufferSize: options.bufferSize,
		ready:      make(chan struct{}),

		ch:         make(chan Message[K, M], options.bufferSize),
		keySubs:    xsync.NewMapOf[K, *xsync.MapOf[*subscription[K, M], struct{}]](),
		globalSubs: xsync.NewMapOf[*subscription[K, M], struct{}](),
	}
}

func (b *Bus[K, M]) Start(ctx context.Context) error {
	if b.bufferSize < 0 {
		return fmt.Errorf("buffer size must not be negative")
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-b.ch:
				b.process(msg)
			}
		}
	}()
	close(b.ready)
	return nil
}

func (b *Bus[K, M]) Ready() <-chan struct{} {
	return b.ready
}

// Dropped returns the number of deliveries lost to slow subscribers.
func (b *Bus[K, M]) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Bus[K, M]) Publish(ctx context.Context, key K, msg M) {
	select {
	case <-ctx.Done():
		return
	case b.ch <- Message[K, M]{key, msg}:
	}
}

func (b *Bus[K, M]) CreatePublisher(key K) Publisher[M] {
	return func(ctx context.Context, msg M) {
		b.Publish(ctx, key, msg)
	}
}

func (b *Bus[K, M]) CreateSubscriber(key ...K) Subscriber[K, M] {
	return func(ctx context.Context) <-chan Message[K, M] {
		return b.Subscribe(ctx, key...)
	}
}

func (b *Bus[K, M]) process(msg Message[K, M]) {
	deliver := func(sub *subscription[K, M], _ struct{}) bool {
		if !sub.send(msg) {
			b.dropped.Inc()
			b.log.Debug("dropped message for slow subscriber", zap.Any("key", msg.Key))
		}
		return true
	}
	b.globalSubs.Range(deliver)
	subs, ok := b.keySubs.Load(msg.Key)
	if !ok {
		return
	}
	subs.Range(deliver)
}

// Subscribe returns a channel receiving messages for the given keys, or all
// messages when no key is given. The channel is closed once ctx is done.
func (b *Bus[K, M]) Subscribe(ctx context.Context, key ...K) <-chan Message[K, M] {
	sub := &subscription[K, M]{
		ch: make(chan Message[K, M], b.bufferSize),
	}
	if len(key) == 0 {
		b.globalSubs.Store(sub, struct{}{})
		go func() {
			<-ctx.Done()
			b.globalSubs.Delete(sub)
			sub.close()
		}()
		return sub.ch
	}
	for _, k := range key {
		subs, _ := b.keySubs.LoadOrCompute(k, func() *xsync.MapOf[*subscription[K, M], struct{}] {
			return xsync.NewMapOf[*subscription[K, M], struct{}]()
		})
		subs.Store(sub, struct{}{})
	}
	go func() {
		<-ctx.Done()
		for _, k := range key {
			if subs, ok := b.keySubs.Load(k); ok {
				subs.Delete(sub)
			}
		}
		sub.close()
	}()
	return sub.ch
}
