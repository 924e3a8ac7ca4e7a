package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watcherConfigV1 = `
server:
  listenAddr: ":8080"
auth:
  secret:
    value: first-secret
  token:
    hmacSecret: "0123456789abcdef0123456789abcdef"
`

const watcherConfigV2 = `
server:
  listenAddr: ":9090"
auth:
  secret:
    value: second-secret
  token:
    hmacSecret: "0123456789abcdef0123456789abcdef"
`

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, watcherConfigV1)

	w, err := NewWatcher(path, nil, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { require.NoError(t, w.Stop()) }()

	cfg := w.LastConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, ":8080", cfg.Server.GetEffectiveListenAddr())
	assert.Equal(t, "first-secret", cfg.Auth.Secret.Value)
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, watcherConfigV1)

	var mu sync.Mutex
	var reloaded *Config
	callback := func(cfg *Config) {
		mu.Lock()
		defer mu.Unlock()
		reloaded = cfg
	}

	w, err := NewWatcher(path, callback, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { require.NoError(t, w.Stop()) }()

	require.NoError(t, os.WriteFile(path, []byte(watcherConfigV2), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reloaded != nil
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ":9090", reloaded.Server.GetEffectiveListenAddr())
	assert.Equal(t, "second-secret", reloaded.Auth.Secret.Value)
}

func TestWatcher_InvalidReloadKeepsLastConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, watcherConfigV1)

	var mu sync.Mutex
	var reloadErr error
	onError := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		reloadErr = err
	}

	w, err := NewWatcher(path, nil,
		WithDebounceDelay(10*time.Millisecond),
		WithErrorCallback(onError),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { require.NoError(t, w.Stop()) }()

	// No shared secret configured: validation must reject the reload.
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listenAddr: \":9999\"\n"), 0o600))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reloadErr != nil
	}, 5*time.Second, 20*time.Millisecond)

	cfg := w.LastConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, ":8080", cfg.Server.GetEffectiveListenAddr())
}

func TestWatcher_ForceReload(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, watcherConfigV1)

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { require.NoError(t, w.Stop()) }()

	require.NoError(t, os.WriteFile(path, []byte(watcherConfigV2), 0o600))
	require.NoError(t, w.ForceReload())
	assert.Equal(t, ":9090", w.LastConfig().Server.GetEffectiveListenAddr())
}

func TestWatcher_StartFailsOnMissingFile(t *testing.T) {
	t.Parallel()

	w, err := NewWatcher(t.TempDir()+"/missing.yaml", nil)
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))

	// Stop after a failed Start must return instead of waiting on a watch
	// goroutine that never launched.
	require.NoError(t, w.Stop())
}

func TestWatcher_RestartAfterFailedStart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "camgate.yaml")

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	require.Error(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte(watcherConfigV1), 0o600))

	require.NoError(t, w.Start(context.Background()))
	require.NotNil(t, w.LastConfig())
	require.NoError(t, w.Stop())
}
