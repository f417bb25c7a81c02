package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_DisabledAlwaysEmpty(t *testing.T) {
	got, err := Resolve(context.Background(), Config{Enabled: false}, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestResolve_ExplicitWins(t *testing.T) {
	ctx := WithTenantID(context.Background(), "from-ctx")
	got, err := Resolve(ctx, Config{Enabled: true}, "explicit")
	require.NoError(t, err)
	assert.Equal(t, "explicit", got)
}

func TestResolve_FallsBackToContext(t *testing.T) {
	ctx := WithTenantID(context.Background(), "from-ctx")
	got, err := Resolve(ctx, Config{Enabled: true}, "")
	require.NoError(t, err)
	assert.Equal(t, "from-ctx", got)
}

func TestResolve_LenientDefaultsWhenMissing(t *testing.T) {
	got, err := Resolve(context.Background(), Config{Enabled: true, Strict: false}, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTenantID, got)
}

func TestResolve_StrictFailsClosedWhenMissing(t *testing.T) {
	_, err := Resolve(context.Background(), Config{Enabled: true, Strict: true}, "")
	assert.Error(t, err)
	var missing ErrMissingTenant
	assert.ErrorAs(t, err, &missing)
}

func TestFromContext_AbsentReturnsFalse(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
