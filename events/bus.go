// Package events is the in-process domain event bus. Events sharing a key
// (the order id) are delivered in publish order; handlers are retried, so
// they must be idempotent.
package events

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/logging"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/metrics"
)

type Event interface {
	EventName() string
	// EventKey groups events that must stay in order, usually the order id.
	EventKey() string
}

type Handler func(ctx context.Context, e Event) error

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// All subscribes to every event name.
const All = "*"

var ErrClosed = errors.New("event bus closed")

type Options struct {
	Shards         int
	QueueSize      int
	MaxAttempts    int
	RetryBackoff   time.Duration
	HandlerTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Shards:         8,
		QueueSize:      1024,
		MaxAttempts:    3,
		RetryBackoff:   50 * time.Millisecond,
		HandlerTimeout: 30 * time.Second,
	}
}

type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]Handler
	shards []chan Event
	// closeMu keeps Stop from closing a shard a publisher is sending on.
	closeMu sync.RWMutex

	opts      Options
	startOnce sync.Once
	stopOnce  sync.Once
	closed    atomic.Bool
	pending   atomic.Int64
	wg        sync.WaitGroup

	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewBus(log *zap.Logger, m *metrics.Metrics, opts Options) *Bus {
	def := DefaultOptions()
	if opts.Shards <= 0 {
		opts.Shards = def.Shards
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = 0
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = def.HandlerTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bus{
		subs:    make(map[string][]Handler),
		shards:  make([]chan Event, opts.Shards),
		opts:    opts,
		log:     log.With(zap.String("component", "event_bus")),
		metrics: m,
	}
	for i := range b.shards {
		b.shards[i] = make(chan Event, opts.QueueSize)
	}
	return b
}

func (b *Bus) Subscribe(eventName string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

// Start launches one worker per shard.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		base := context.WithoutCancel(ctx)
		for i, ch := range b.shards {
			b.wg.Add(1)
			go b.run(base, i, ch)
		}
		logging.FromContext(ctx, b.log).Info("event_bus_started", zap.Int("shards", len(b.shards)))
	})
}

// Stop refuses new events, drains what is queued and waits for the
// workers, or gives up when ctx is done.
func (b *Bus) Stop(ctx context.Context) error {
	var err error
	b.stopOnce.Do(func() {
		b.closeMu.Lock()
		b.closed.Store(true)
		for _, ch := range b.shards {
			close(ch)
		}
		b.closeMu.Unlock()

		done := make(chan struct{})
		go func() { b.wg.Wait(); close(done) }()
		select {
		case <-done:
			b.log.Info("event_bus_stopped")
		case <-ctx.Done():
			err = ctx.Err()
			b.log.Warn("event_bus_stop_timeout", zap.Int64("pending", b.pending.Load()))
		}
	})
	return err
}

func (b *Bus) Publish(ctx context.Context, e Event) error {
	if e == nil {
		return nil
	}
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed.Load() {
		return ErrClosed
	}

	ch := b.shards[b.shardFor(e.EventKey())]
	b.pending.Add(1)
	// room in the queue always wins over a cancelled ctx
	select {
	case ch <- e:
		b.enqueued(ctx, e)
		return nil
	default:
	}
	select {
	case ch <- e:
		b.enqueued(ctx, e)
		return nil
	case <-ctx.Done():
		b.pending.Add(-1)
		logging.FromContext(ctx, b.log).Warn("event_enqueue_aborted",
			zap.String("event", e.EventName()), zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (b *Bus) enqueued(ctx context.Context, e Event) {
	b.metrics.EventPublished(e.EventName())
	logging.FromContext(ctx, b.log).Debug("event_enqueued",
		zap.String("event", e.EventName()), zap.String("key", e.EventKey()))
}

// PublishAll publishes in order and returns the first error.
func (b *Bus) PublishAll(ctx context.Context, evs ...Event) error {
	for _, e := range evs {
		if err := b.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Flush blocks until every event accepted so far has been handled.
func (b *Bus) Flush(ctx context.Context) error {
	t := time.NewTicker(2 * time.Millisecond)
	defer t.Stop()
	for b.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func (b *Bus) shardFor(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(b.shards)))
}

func (b *Bus) run(ctx context.Context, shard int, ch <-chan Event) {
	defer b.wg.Done()
	for e := range ch {
		b.dispatch(ctx, e)
		b.pending.Add(-1)
	}
}

// dispatch runs handlers sequentially so per-key order holds across
// subscribers too.
func (b *Bus) dispatch(ctx context.Context, e Event) {
	name := e.EventName()
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[name])+len(b.subs[All]))
	handlers = append(handlers, b.subs[name]...)
	handlers = append(handlers, b.subs[All]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debug("event_dropped_no_subscriber", zap.String("event", name))
		return
	}
	log := b.log.With(zap.String("event", name), zap.String("key", e.EventKey()))
	hctx := logging.ContextWithLogger(ctx, log)
	for _, h := range handlers {
		b.deliver(hctx, log, h, e)
	}
}

func (b *Bus) deliver(ctx context.Context, log *zap.Logger, h Handler, e Event) {
	for attempt := 1; attempt <= b.opts.MaxAttempts; attempt++ {
		err := b.call(ctx, h, e)
		if err == nil {
			return
		}
		b.metrics.HandlerFailed(e.EventName())
		if attempt == b.opts.MaxAttempts {
			log.Error("event_handler_gave_up", zap.Int("attempts", attempt), zap.Error(err))
			return
		}
		log.Warn("event_handler_retry", zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(b.opts.RetryBackoff * time.Duration(attempt))
	}
}

func (b *Bus) call(ctx context.Context, h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event_handler_panic",
				zap.String("event", e.EventName()),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			err = errors.New("event handler panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, b.opts.HandlerTimeout)
	defer cancel()
	return h(ctx, e)
}
