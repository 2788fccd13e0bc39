package memory

import (
	"context"
	"testing"
	"w9-uploads/stores/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storetest.Run(t, NewStore())
}

func TestGet_ReturnsCopy(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "key", []byte("abc")))

	got, err := store.Get(ctx, "key")
	require.NoError(t, err)
	got[0] = 'x'

	again, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}
