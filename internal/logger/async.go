package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes and stops a handler that buffers records.
type Closer interface {
	Close()
}

// nopCloser is returned when logging runs synchronously.
type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples log emission from the request path. Records go
// through a bounded queue drained by worker goroutines; when the queue is
// full the record is dropped and counted rather than blocking the caller.
type AsyncHandler struct {
	inner     slog.Handler
	queue     chan slog.Record
	workers   *sync.WaitGroup
	dropCount *atomic.Int64
}

// NewAsyncHandler wraps inner with a queue of queueSize records drained by
// the given number of workers.
func NewAsyncHandler(inner slog.Handler, queueSize, workers int) *AsyncHandler {
	h := &AsyncHandler{
		inner:     inner,
		queue:     make(chan slog.Record, queueSize),
		workers:   &sync.WaitGroup{},
		dropCount: &atomic.Int64{},
	}
	for range workers {
		h.workers.Add(1)
		go h.run()
	}
	return h
}

func (h *AsyncHandler) run() {
	defer h.workers.Done()
	for rec := range h.queue {
		_ = h.inner.Handle(context.Background(), rec)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record without blocking. A full queue drops it.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.queue <- rec:
	default:
		h.dropCount.Add(1)
	}
	return nil
}

// WithAttrs derives a handler sharing the queue and workers.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{
		inner:     h.inner.WithAttrs(attrs),
		queue:     h.queue,
		workers:   h.workers,
		dropCount: h.dropCount,
	}
}

// WithGroup derives a handler sharing the queue and workers.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{
		inner:     h.inner.WithGroup(name),
		queue:     h.queue,
		workers:   h.workers,
		dropCount: h.dropCount,
	}
}

// DroppedCount reports how many records were lost to a full queue.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropCount.Load()
}

// Close stops accepting records and waits for the workers to finish the
// queued ones. Call it once, on shutdown.
func (h *AsyncHandler) Close() {
	close(h.queue)
	h.workers.Wait()
}
