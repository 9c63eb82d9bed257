package progress

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wrenlabs/quill/internal/metrics"
)

// Config controls buffering and batching for the Hub.
type Config struct {
	// BufferSize is the internal channel capacity (default 1024).
	BufferSize int
	// MaxBatchEvents flushes once this many events queue (default 256).
	MaxBatchEvents int
	// MaxBatchWait flushes after this duration even for small batches
	// (default 200ms).
	MaxBatchWait time.Duration
	// SinkTimeout bounds each sink call during a flush (default 5s).
	SinkTimeout time.Duration
	Logger      *zap.Logger
}

// Hub aggregates Event streams and fans them out to registered sinks. Emit
// never blocks: under backpressure events are dropped and counted.
type Hub struct {
	cfg     Config
	sinks   []Sink
	events  chan Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger
	dropped atomic.Int64
	closed  atomic.Bool
}

// NewHub starts the background batching goroutine over the supplied sinks.
// The returned Hub accepts events immediately.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = 256
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = 200 * time.Millisecond
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		events: make(chan Event, cfg.BufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
	}
	go h.loop()
	return h
}

// Emit enqueues an event without blocking. Invalid events and events after
// Close are dropped.
func (h *Hub) Emit(e Event) {
	if h.closed.Load() {
		return
	}
	if err := e.Validate(); err != nil {
		h.logger.Warn("invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- e:
	default:
		h.dropped.Add(1)
		metrics.ProgressDropped()
	}
}

// Dropped reports how many events were discarded under backpressure.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close flushes buffered events and stops the hub. Safe to call once.
func (h *Hub) Close() {
	if h.closed.Swap(true) {
		return
	}
	close(h.stopCh)
	<-h.doneCh
}

func (h *Hub) loop() {
	defer close(h.doneCh)
	batch := make([]Event, 0, h.cfg.MaxBatchEvents)
	ticker := time.NewTicker(h.cfg.MaxBatchWait)
	defer ticker.Stop()
	for {
		select {
		case e := <-h.events:
			batch = append(batch, e)
			if len(batch) >= h.cfg.MaxBatchEvents {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-h.stopCh:
			// Drain whatever was buffered before shutdown.
			for {
				select {
				case e := <-h.events:
					batch = append(batch, e)
				default:
					if len(batch) > 0 {
						h.flush(batch)
					}
					return
				}
			}
		}
	}
}

func (h *Hub) flush(batch []Event) {
	for _, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink failed", zap.Error(err))
		}
		cancel()
	}
}
