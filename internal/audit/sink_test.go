package audit

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink retains written records in memory.
type captureSink struct {
	mu      sync.Mutex
	records [][]byte
	err     error
	closed  bool
}

func (s *captureSink) Write(_ context.Context, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := make([]byte, len(record))
	copy(cp, record)
	s.records = append(s.records, cp)
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *captureSink) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func TestWriterSink_Write(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewWriterSink(&buf)

	require.NoError(t, sink.Write(context.Background(), []byte(`{"a":1}`)))
	require.NoError(t, sink.Write(context.Background(), []byte(`{"b":2}`)))

	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", buf.String())
	assert.NoError(t, sink.Close())
}

func TestNewSink_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.log")
	sink, err := NewSink(path)
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), []byte(`{"x":1}`)))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"x\":1}\n", string(data))
}

func TestNewSink_BadPath(t *testing.T) {
	t.Parallel()

	_, err := NewSink(filepath.Join(t.TempDir(), "missing", "audit.log"))
	require.Error(t, err)
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("pipe broken") }

func TestWriterSink_WriteError(t *testing.T) {
	t.Parallel()

	sink := NewWriterSink(failWriter{})
	err := sink.Write(context.Background(), []byte("{}"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSinkDelivery)
}

func TestBreakerSink_TripsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	inner := &captureSink{}
	inner.fail(errors.New("sink down"))

	sink := NewBreakerSink(inner, 3, time.Minute)

	for i := 0; i < 3; i++ {
		require.Error(t, sink.Write(context.Background(), []byte("{}")))
	}
	assert.Equal(t, gobreaker.StateOpen, sink.State())

	// Open breaker fails fast with the sink delivery sentinel.
	err := sink.Write(context.Background(), []byte("{}"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSinkDelivery)
}

func TestBreakerSink_PassesThroughWhenHealthy(t *testing.T) {
	t.Parallel()

	inner := &captureSink{}
	sink := NewBreakerSink(inner, 3, time.Minute)

	require.NoError(t, sink.Write(context.Background(), []byte(`{"ok":true}`)))
	assert.Equal(t, 1, inner.count())
	assert.Equal(t, gobreaker.StateClosed, sink.State())

	require.NoError(t, sink.Close())
	assert.True(t, inner.closed)
}
