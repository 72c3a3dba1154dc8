package dht

import (
	"context"
	"testing"
	"time"

	"github.com/sage-x-project/rings/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNetwork wires a small set of in-memory Rings together and routes
// RemoteRing calls directly to the target's own methods, standing in for
// the router/swarm transport a real deployment would use.
type fakeNetwork struct {
	rings map[identity.Did]*Ring
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{rings: make(map[identity.Did]*Ring)}
}

func (n *fakeNetwork) add(r *Ring) { n.rings[r.Self()] = r }

func (n *fakeNetwork) FindSuccessors(ctx context.Context, target identity.Did, num int, key identity.Did) ([]identity.Did, error) {
	r := n.rings[target]
	succ, err := r.FindSuccessor(ctx, key)
	if err != nil {
		return nil, err
	}
	out := []identity.Did{succ}
	return out, nil
}

func (n *fakeNetwork) GetPredecessor(ctx context.Context, target identity.Did) (identity.Did, bool, error) {
	return n.rings[target].Predecessor()
}

func (n *fakeNetwork) Notify(ctx context.Context, target identity.Did, self identity.Did) ([]identity.Did, error) {
	succs, handoff := n.rings[target].Notify(self)
	if len(handoff) > 0 {
		n.rings[self].SyncWithSuccessor(handoff)
	}
	return succs, nil
}

func newTestDid(t *testing.T) identity.Did {
	t.Helper()
	priv, err := identity.GenerateSecretKey()
	require.NoError(t, err)
	return identity.DidFromPrivateKey(priv)
}

func TestTwoNodeRingConverges(t *testing.T) {
	net := newFakeNetwork()

	d1 := newTestDid(t)
	d2 := newTestDid(t)

	r1 := NewRing(d1, net, Config{NumSuccessors: 3, StabilizeInterval: time.Hour})
	r2 := NewRing(d2, net, Config{NumSuccessors: 3, StabilizeInterval: time.Hour})
	net.add(r1)
	net.add(r2)

	// r1 bootstraps against itself (first node of the ring).
	r1.mu.Lock()
	r1.successors = []identity.Did{d1}
	r1.mu.Unlock()

	require.NoError(t, r2.Join(context.Background(), d1))

	// Run a few stabilize rounds both directions until each is the
	// other's successor and predecessor.
	for i := 0; i < 5; i++ {
		r1.Stabilize(context.Background())
		r2.Stabilize(context.Background())
	}

	s1 := r1.Successors()
	s2 := r2.Successors()
	require.NotEmpty(t, s1)
	require.NotEmpty(t, s2)
	assert.Equal(t, d2, s1[0])
	assert.Equal(t, d1, s2[0])

	p1, ok1 := r1.Predecessor()
	p2, ok2 := r2.Predecessor()
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, d2, p1)
	assert.Equal(t, d1, p2)
}

// TestStoreVNode mirrors the original storage.rs test_store_vnode: a
// VNode stored through one node ends up owned by whichever of the two
// nodes is its successor, and a subsequent lookup from the other node
// resolves to a Forward action pointing at the owner.
func TestStoreVNode(t *testing.T) {
	net := newFakeNetwork()
	d1 := newTestDid(t)
	d2 := newTestDid(t)
	r1 := NewRing(d1, net, Config{NumSuccessors: 3, StabilizeInterval: time.Hour})
	r2 := NewRing(d2, net, Config{NumSuccessors: 3, StabilizeInterval: time.Hour})
	net.add(r1)
	net.add(r2)
	r1.mu.Lock()
	r1.successors = []identity.Did{d1}
	r1.mu.Unlock()
	require.NoError(t, r2.Join(context.Background(), d1))
	for i := 0; i < 5; i++ {
		r1.Stabilize(context.Background())
		r2.Stabilize(context.Background())
	}

	data := []byte("Across the Great Wall we can reach every corner in the world.")
	vid := newTestDid(t)
	vnode := VNode{Did: vid, Data: [][]byte{data}, Kind: VNodeData}

	action, err := r1.VNodeOperate(VNodeOp{Kind: OpOverwrite, Node: vnode})
	require.NoError(t, err)

	owner := r1
	if action.Forward {
		assert.Equal(t, d2, action.Next)
		owner = r2
		_, err = owner.VNodeOperate(VNodeOp{Kind: OpOverwrite, Node: vnode})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, owner.StoredCount())

	lookup, err := r1.VNodeLookup(vid)
	require.NoError(t, err)
	if owner == r1 {
		require.NotNil(t, lookup.Found)
		assert.Equal(t, data, lookup.Found.Data[0])
	} else {
		assert.True(t, lookup.Forward)
		assert.Equal(t, d2, lookup.Next)
		found, err := r2.VNodeLookup(vid)
		require.NoError(t, err)
		require.NotNil(t, found.Found)
		assert.Equal(t, data, found.Found.Data[0])
	}
}

// TestExtendData mirrors test_extend_data: repeated Extend operations
// append to the same VNode's data list in order.
func TestExtendData(t *testing.T) {
	r := NewRing(newTestDid(t), newFakeNetwork(), Config{NumSuccessors: 3, StabilizeInterval: time.Hour})
	vid := newTestDid(t)

	for _, blob := range [][]byte{[]byte("111"), []byte("222"), []byte("333")} {
		_, err := r.VNodeOperate(VNodeOp{Kind: OpExtend, Node: VNode{Did: vid, Data: [][]byte{blob}, Kind: VNodeData}})
		require.NoError(t, err)
	}

	lookup, err := r.VNodeLookup(vid)
	require.NoError(t, err)
	require.NotNil(t, lookup.Found)
	assert.Equal(t, [][]byte{[]byte("111"), []byte("222"), []byte("333")}, lookup.Found.Data)
}

func TestTouchDataDeduplicates(t *testing.T) {
	r := NewRing(newTestDid(t), newFakeNetwork(), Config{NumSuccessors: 3, StabilizeInterval: time.Hour})
	vid := newTestDid(t)

	op := VNodeOp{Kind: OpTouch, Node: VNode{Did: vid, Data: [][]byte{[]byte("a")}, Kind: VNodeData}}
	_, err := r.VNodeOperate(op)
	require.NoError(t, err)
	_, err = r.VNodeOperate(op)
	require.NoError(t, err)

	lookup, err := r.VNodeLookup(vid)
	require.NoError(t, err)
	assert.Len(t, lookup.Found.Data, 1)
}

func TestLocalCacheRoundTrip(t *testing.T) {
	r := NewRing(newTestDid(t), newFakeNetwork(), Config{NumSuccessors: 3, StabilizeInterval: time.Hour})
	vid := newTestDid(t)

	_, ok := r.LocalCacheGet(vid)
	assert.False(t, ok)

	r.LocalCacheSet(VNode{Did: vid, Data: [][]byte{[]byte("cached")}, Kind: VNodeData})
	v, ok := r.LocalCacheGet(vid)
	require.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("cached")}, v.Data)
}
