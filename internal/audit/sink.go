package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrSinkDelivery indicates that a record could not be delivered to the
// sink. It is confined to this package: the emitter swallows it after the
// local fallback.
var ErrSinkDelivery = errors.New("audit sink delivery failed")

// Sink delivers one serialized record per call to an external logging
// facility.
type Sink interface {
	// Write delivers one JSON-encoded record.
	Write(ctx context.Context, record []byte) error

	// Close releases the sink's resources.
	Close() error
}

// WriterSink writes newline-delimited records to an io.Writer.
type WriterSink struct {
	mu     sync.Mutex
	writer io.Writer
	closer io.Closer
}

// NewWriterSink creates a sink over an arbitrary writer.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{writer: w}
}

// NewSink creates a sink for the configured destination: "stdout",
// "stderr", or a file path opened in append mode.
func NewSink(output string) (Sink, error) {
	switch output {
	case "stdout":
		return NewWriterSink(os.Stdout), nil
	case "stderr":
		return NewWriterSink(os.Stderr), nil
	default:
		// Path comes from trusted configuration.
		//nolint:gosec // G304: path from config is trusted
		file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit sink file: %w", err)
		}
		return &WriterSink{writer: file, closer: file}, nil
	}
}

// Write delivers one record, appending a newline.
func (s *WriterSink) Write(_ context.Context, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(append(record, '\n')); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkDelivery, err)
	}
	return nil
}

// Close closes the underlying writer when it is closable.
func (s *WriterSink) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// BreakerSink wraps a sink with a circuit breaker. While the breaker is
// open, Write fails fast with ErrSinkDelivery so the emitter falls back to
// the local diagnostic stream without waiting on a dead sink.
type BreakerSink struct {
	next Sink
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerSink creates a breaker-wrapped sink. The breaker trips after
// threshold consecutive failures and stays open for the given timeout.
func NewBreakerSink(next Sink, threshold int, timeout time.Duration) *BreakerSink {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "audit-sink",
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
	}

	return &BreakerSink{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// Write delivers the record through the breaker.
func (s *BreakerSink) Write(ctx context.Context, record []byte) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.Write(ctx, record)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %w", ErrSinkDelivery, err)
		}
		return err
	}
	return nil
}

// State returns the current breaker state.
func (s *BreakerSink) State() gobreaker.State {
	return s.cb.State()
}

// Close closes the wrapped sink.
func (s *BreakerSink) Close() error {
	return s.next.Close()
}

// Ensure implementations satisfy the interface.
var (
	_ Sink = (*WriterSink)(nil)
	_ Sink = (*BreakerSink)(nil)
)
