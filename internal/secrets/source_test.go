package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSource(t *testing.T) {
	t.Parallel()

	value, err := NewStaticSource("s3cr3t").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", value)

	_, err = NewStaticSource("").Load(context.Background())
	assert.ErrorIs(t, err, ErrSecretEmpty)
}

func TestEnvSource(t *testing.T) {
	t.Setenv("CAMGATE_TEST_SECRET", "from-env")

	value, err := NewEnvSource("CAMGATE_TEST_SECRET").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)

	_, err = NewEnvSource("CAMGATE_TEST_SECRET_MISSING").Load(context.Background())
	assert.ErrorIs(t, err, ErrSecretNotFound)

	t.Setenv("CAMGATE_TEST_SECRET_EMPTY", "")
	_, err = NewEnvSource("CAMGATE_TEST_SECRET_EMPTY").Load(context.Background())
	assert.ErrorIs(t, err, ErrSecretEmpty)
}

func TestVaultConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *VaultConfig
		wantErr bool
	}{
		{name: "nil config", cfg: nil},
		{name: "valid", cfg: &VaultConfig{Address: "http://127.0.0.1:8200", Path: "camgate/shared-secret"}},
		{name: "missing address", cfg: &VaultConfig{Path: "camgate/shared-secret"}, wantErr: true},
		{name: "missing path", cfg: &VaultConfig{Address: "http://127.0.0.1:8200"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewVaultSource(t *testing.T) {
	t.Parallel()

	_, err := NewVaultSource(nil)
	require.Error(t, err)

	src, err := NewVaultSource(&VaultConfig{
		Address: "http://127.0.0.1:8200",
		Token:   "dev-token",
		Path:    "camgate/shared-secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "secret", src.mount)
	assert.Equal(t, "value", src.field)
}

// flakySource fails until primed.
type flakySource struct {
	value string
	err   error
}

func (s *flakySource) Load(context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.value, nil
}

func TestHolder_ReloadSwapsValue(t *testing.T) {
	t.Parallel()

	src := &flakySource{value: "old"}
	holder, err := NewHolder(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "old", holder.Value())

	src.value = "new"
	require.NoError(t, holder.Reload(context.Background()))
	assert.Equal(t, "new", holder.Value())
}

func TestHolder_FailedReloadKeepsValue(t *testing.T) {
	t.Parallel()

	src := &flakySource{value: "stable"}
	holder, err := NewHolder(context.Background(), src)
	require.NoError(t, err)

	src.err = errors.New("backend down")
	require.Error(t, holder.Reload(context.Background()))
	assert.Equal(t, "stable", holder.Value())
}

func TestHolder_SwapSource(t *testing.T) {
	t.Parallel()

	holder, err := NewHolder(context.Background(), NewStaticSource("old"))
	require.NoError(t, err)

	require.NoError(t, holder.SwapSource(context.Background(), NewStaticSource("new")))
	assert.Equal(t, "new", holder.Value())

	// A failing replacement keeps both the value and the working source.
	require.Error(t, holder.SwapSource(context.Background(), &flakySource{err: errors.New("backend down")}))
	assert.Equal(t, "new", holder.Value())
	require.NoError(t, holder.Reload(context.Background()))
	assert.Equal(t, "new", holder.Value())
}

func TestNewHolder_InitialLoadFailure(t *testing.T) {
	t.Parallel()

	_, err := NewHolder(context.Background(), &flakySource{err: errors.New("backend down")})
	require.Error(t, err)
}
