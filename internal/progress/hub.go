package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub.
type Config struct {
	// Buffer is the size of the internal event channel (default 1024).
	Buffer int
	// BatchSize flushes once this many events queue (default 256).
	BatchSize int
	// FlushEvery flushes pending events on this cadence even when the
	// batch is small (default 500ms).
	FlushEvery time.Duration
	// SinkTimeout bounds each sink call during a flush (default 10s).
	SinkTimeout time.Duration
	// Logger is used for drop and sink-failure warnings.
	Logger *zap.Logger
}

const (
	defaultBuffer      = 1024
	defaultBatchSize   = 256
	defaultFlushEvery  = 500 * time.Millisecond
	defaultSinkTimeout = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Buffer <= 0 {
		c.Buffer = defaultBuffer
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = defaultFlushEvery
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = defaultSinkTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Hub aggregates Event streams and fans them out to registered sinks in
// batches. Emit never blocks the caller; a full buffer drops events and
// the drop count is reported with the next flush.
type Hub struct {
	cfg     Config
	sinks   []Sink
	events  chan Event
	stop    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
	dropped atomic.Int64

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the background batching goroutine over the supplied
// sinks. The returned Hub accepts events immediately.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		events: make(chan Event, cfg.Buffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go h.run()
	return h
}

// Emit enqueues an Event for batching. Invalid events are discarded and
// a full buffer drops the event rather than blocking.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.cfg.Logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
	}
}

// Close drains buffered events, flushes the sinks, and waits for the
// background goroutine to exit. Repeated calls are no-ops once shutdown
// begins.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stop)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.done)
	batch := make([]Event, 0, h.cfg.BatchSize)
	ticker := time.NewTicker(h.cfg.FlushEvery)
	defer ticker.Stop()
	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.BatchSize {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-h.stop:
			batch = h.drain(batch)
			if len(batch) > 0 {
				h.flush(batch)
			}
			h.closeSinks()
			return
		}
	}
}

// drain empties whatever is still buffered after stop, flushing full
// batches along the way.
func (h *Hub) drain(batch []Event) []Event {
	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.BatchSize {
				h.flush(batch)
				batch = batch[:0]
			}
		default:
			return batch
		}
	}
}

func (h *Hub) flush(batch []Event) {
	if dropped := h.dropped.Swap(0); dropped > 0 {
		h.cfg.Logger.Warn("progress events dropped due to backpressure",
			zap.Int64("dropped", dropped))
	}
	copyBatch := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, copyBatch); err != nil {
			h.cfg.Logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.cfg.Logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
