package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{
			name: "default config",
			cfg:  DefaultLogConfig(),
		},
		{
			name: "console format",
			cfg:  LogConfig{Level: "debug", Format: "console", Output: "stderr"},
		},
		{
			name:    "invalid level",
			cfg:     LogConfig{Level: "shout", Format: "json"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
		})
	}
}

func TestCorrelationIDContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, CorrelationIDFromContext(ctx))

	ctx = ContextWithCorrelationID(ctx, "abc-123")
	assert.Equal(t, "abc-123", CorrelationIDFromContext(ctx))
}

func TestLogger_WithContext(t *testing.T) {
	t.Parallel()

	logger := NopLogger()

	enriched := logger.WithContext(ContextWithCorrelationID(context.Background(), "abc-123"))
	assert.NotNil(t, enriched)

	// Without a correlation id the same logger is returned.
	same := logger.WithContext(context.Background())
	assert.Equal(t, logger, same)
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NopLogger()
	logger.Debug("debug")
	logger.Info("info", String("k", "v"))
	logger.Warn("warn")
	logger.Error("error", Error(assert.AnError))
	assert.NoError(t, logger.Sync())
}
