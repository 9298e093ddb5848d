package worker

import (
	"time"

	"github.com/vnFuhung2903/rubyams/internal/domain/dedupe"
	"github.com/vnFuhung2903/rubyams/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDeduper shares a seen-set of tracked hashes between workers.
func WithDeduper(d dedupe.Deduper) Option {
	return func(w *InMemoryWorker) {
		if d != nil {
			w.seen = d
		}
	}
}

// WithDefaultWindow bounds tracking of items that carry no deadline.
func WithDefaultWindow(window time.Duration) Option {
	return func(w *InMemoryWorker) {
		if window > 0 {
			w.window = window
		}
	}
}
