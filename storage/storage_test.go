package storage

import (
	"context"
	"testing"

	"github.com/sage-x-project/rings/dht"
	"github.com/sage-x-project/rings/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	priv, err := identity.GenerateSecretKey()
	require.NoError(t, err)
	did := identity.DidFromPrivateKey(priv)

	_, err = s.Get(ctx, did)
	assert.ErrorIs(t, err, ErrNotFound)

	node := dht.VNode{Did: did, Kind: dht.VNodeData, Data: [][]byte{[]byte("a"), []byte("b")}}
	require.NoError(t, s.Put(ctx, node))

	got, err := s.Get(ctx, did)
	require.NoError(t, err)
	assert.Equal(t, node.Data, got.Data)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Delete(ctx, did))
	_, err = s.Get(ctx, did)
	assert.ErrorIs(t, err, ErrNotFound)
}
