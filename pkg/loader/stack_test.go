package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/modelresolver/pkg/failure"
)

func TestEnterTracksChain(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, Stack(ctx))

	ctx, err := Enter(ctx, "a")
	require.NoError(t, err)
	inner, err := Enter(ctx, "b")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, Stack(inner))
	assert.Equal(t, []string{"a"}, Stack(ctx), "outer context is unchanged")

	// siblings do not see each other
	sibling, err := Enter(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, Stack(sibling))
}

func TestEnterDetectsCycle(t *testing.T) {
	ctx, err := Enter(context.Background(), "a")
	require.NoError(t, err)
	ctx, err = Enter(ctx, "b")
	require.NoError(t, err)

	_, err = Enter(ctx, "a")
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.CodeDependencyCycle))
	assert.Contains(t, err.Error(), "a -> b -> a")
}
