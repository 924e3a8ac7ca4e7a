package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_Satisfies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role     Role
		required Role
		want     bool
	}{
		{RoleViewer, RoleViewer, true},
		{RoleViewer, RoleAdmin, false},
		{RoleViewer, RoleSystem, false},
		{RoleAdmin, RoleViewer, true},
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleSystem, false},
		{RoleSystem, RoleViewer, true},
		{RoleSystem, RoleAdmin, true},
		{RoleSystem, RoleSystem, true},
		{Role("superuser"), RoleViewer, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.role.Satisfies(tt.required),
			"%s satisfies %s", tt.role, tt.required)
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	for _, valid := range []string{"viewer", "admin", "system"} {
		role, err := ParseRole(valid)
		require.NoError(t, err)
		assert.Equal(t, Role(valid), role)
	}

	for _, invalid := range []string{"", "Admin", "root", "superuser"} {
		_, err := ParseRole(invalid)
		assert.Error(t, err, "role %q", invalid)
	}
}

func TestNewPrincipal(t *testing.T) {
	t.Parallel()

	p, err := NewPrincipal("alice", RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Identity)
	assert.Equal(t, RoleViewer, p.Role)
	assert.Equal(t, SourceBearer, p.Source)

	_, err = NewPrincipal("", RoleViewer)
	assert.Error(t, err)

	_, err = NewPrincipal("alice", Role("root"))
	assert.Error(t, err)
}

func TestSystemPrincipal(t *testing.T) {
	t.Parallel()

	p := SystemPrincipal()
	assert.Equal(t, SystemIdentity, p.Identity)
	assert.Equal(t, RoleSystem, p.Role)
	assert.Equal(t, SourceSharedSecret, p.Source)
	assert.True(t, p.Role.Satisfies(RoleAdmin))
}

func TestPrincipalContext(t *testing.T) {
	t.Parallel()

	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	p := SystemPrincipal()
	ctx := ContextWithPrincipal(context.Background(), p)

	got, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, p, got)
}
