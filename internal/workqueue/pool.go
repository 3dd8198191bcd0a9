// Package workqueue runs fire-and-forget side effects on a fixed set of
// workers behind bounded buffers.
package workqueue

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moneymapper/authcore/internal/metrics"
	"github.com/moneymapper/authcore/pkg/logger"
)

// Pool routes each item to a worker chosen by key, so items sharing a key
// are handled one at a time in submission order. A full buffer drops the
// item instead of blocking the caller.
type Pool[T any] struct {
	name    string
	shards  []chan T
	handler func(T)

	mu     sync.RWMutex
	closed bool

	inflight atomic.Int64
	dropped  atomic.Int64
	done     chan struct{}
}

func New[T any](name string, workers, size int, handler func(T)) *Pool[T] {
	if workers < 1 {
		workers = 1
	}
	perShard := size / workers
	if perShard < 1 {
		perShard = 1
	}

	p := &Pool[T]{
		name:    name,
		shards:  make([]chan T, workers),
		handler: handler,
		done:    make(chan struct{}),
	}

	var wg sync.WaitGroup
	for i := range p.shards {
		p.shards[i] = make(chan T, perShard)
		wg.Add(1)
		go func(ch chan T) {
			defer wg.Done()
			for item := range ch {
				p.handle(item)
			}
		}(p.shards[i])
	}
	go func() {
		wg.Wait()
		close(p.done)
	}()
	return p
}

func (p *Pool[T]) handle(item T) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(p.name+"_worker_panic", fmt.Errorf("%v", r), nil)
		}
		metrics.QueueDepth.WithLabelValues(p.name).Dec()
		p.inflight.Add(-1)
	}()
	p.handler(item)
}

func (p *Pool[T]) shard(key string) chan T {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return p.shards[h.Sum32()%uint32(len(p.shards))]
}

// Submit enqueues item without blocking. It reports false when the item
// was dropped because the buffer was full or the pool closed.
func (p *Pool[T]) Submit(key string, item T) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.dropped.Add(1)
		logger.Warn(p.name+"_queue_closed", map[string]interface{}{
			"dropped": true,
		})
		return false
	}

	// Counted before the send so a fast worker never decrements first.
	p.inflight.Add(1)
	depth := metrics.QueueDepth.WithLabelValues(p.name)
	depth.Inc()
	select {
	case p.shard(key) <- item:
		return true
	default:
		p.inflight.Add(-1)
		depth.Dec()
		p.dropped.Add(1)
		logger.Warn(p.name+"_queue_full", map[string]interface{}{
			"dropped": true,
		})
		return false
	}
}

// Dropped counts items refused since the pool started.
func (p *Pool[T]) Dropped() int64 {
	return p.dropped.Load()
}

// Flush waits until every accepted item has been handled.
func (p *Pool[T]) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for p.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops accepting items and waits for the buffers to drain.
func (p *Pool[T]) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		for _, ch := range p.shards {
			close(ch)
		}
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
