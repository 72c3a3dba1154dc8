package handlers

import (
	"context"
	"testing"

	"github.com/sage-x-project/rings/dht"
	"github.com/sage-x-project/rings/identity"
	"github.com/sage-x-project/rings/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRing(t *testing.T) (identity.Did, *dht.Ring) {
	t.Helper()
	priv, err := identity.GenerateSecretKey()
	require.NoError(t, err)
	self := identity.DidFromPrivateKey(priv)
	return self, dht.NewRing(self, noopRemote{}, dht.DefaultConfig())
}

type noopRemote struct{}

func (noopRemote) FindSuccessors(ctx context.Context, target identity.Did, n int, key identity.Did) ([]identity.Did, error) {
	return nil, nil
}
func (noopRemote) GetPredecessor(ctx context.Context, target identity.Did) (identity.Did, bool, error) {
	return identity.Did{}, false, nil
}
func (noopRemote) Notify(ctx context.Context, target identity.Did, self identity.Did) ([]identity.Did, error) {
	return nil, nil
}

func mustSigner(t *testing.T) (identity.Did, func([]byte) ([]byte, error)) {
	t.Helper()
	priv, err := identity.GenerateSecretKey()
	require.NoError(t, err)
	did := identity.DidFromPrivateKey(priv)
	return did, func(msg []byte) ([]byte, error) { return identity.Sign(priv, msg) }
}

// TestCustomMessageRoundTrip mirrors S1: a CustomMessage addressed to
// self surfaces through the OnCustomMessage callback and produces no
// builtin events of its own (the router layer appends EventCustomMessage
// separately; the handler itself is a no-op).
func TestCustomMessageRoundTrip(t *testing.T) {
	self, ring := newRing(t)
	from, sign := mustSigner(t)

	var gotFrom identity.Did
	var gotContent []byte
	h := &Handler{Ring: ring, Sign: sign, Callback: Callback{
		OnCustomMessage: func(f identity.Did, c []byte) { gotFrom, gotContent = f, c },
	}}

	p, err := router.NewPayload(from, sign, router.CustomMessage{Content: []byte("hello rings")},
		router.RelayState{Method: router.MethodSend, Destination: self}, 8)
	require.NoError(t, err)

	events, err := h.Handle(context.Background(), self, p)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, from, gotFrom)
	assert.Equal(t, []byte("hello rings"), gotContent)
}

func TestLeaveDHTForgetsPeer(t *testing.T) {
	self, ring := newRing(t)
	other, sign := mustSigner(t)
	ring.InstallSuccessor(other)
	require.Contains(t, ring.Successors(), other)

	h := &Handler{Ring: ring, Sign: sign}
	p, err := router.NewPayload(other, sign, router.LeaveDHT{Did: other},
		router.RelayState{Method: router.MethodSend, Destination: self}, 8)
	require.NoError(t, err)

	events, err := h.Handle(context.Background(), self, p)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NotContains(t, ring.Successors(), other)
}

func TestFindSuccessorSendLocalReport(t *testing.T) {
	self, ring := newRing(t)
	requester, sign := mustSigner(t)

	h := &Handler{Ring: ring, Sign: sign}
	p, err := router.NewPayload(requester, sign, router.FindSuccessorSend{ID: requester, ForInit: true},
		router.RelayState{Method: router.MethodSend, Destination: self}, 8)
	require.NoError(t, err)

	events, err := h.Handle(context.Background(), self, p)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, router.EventSendReportMessage, events[0].Kind)
	rep, ok := events[0].Payload.Data.(router.FindSuccessorReport)
	require.True(t, ok)
	assert.True(t, rep.ForInit)
	assert.Equal(t, self, rep.Succ)
}

func TestFindSuccessorReportInstallsSuccessor(t *testing.T) {
	self, ring := newRing(t)
	succ, sign := mustSigner(t)

	h := &Handler{Ring: ring, Sign: sign}
	p, err := router.NewPayload(succ, sign, router.FindSuccessorReport{Succ: succ, ForInit: true},
		router.RelayState{Method: router.MethodReport, Destination: self}, 8)
	require.NoError(t, err)

	events, err := h.Handle(context.Background(), self, p)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Contains(t, ring.Successors(), succ)
}

func TestOperateVNodeStoresLocally(t *testing.T) {
	self, ring := newRing(t)
	requester, sign := mustSigner(t)

	h := &Handler{Ring: ring, Sign: sign}
	node := dht.VNode{Did: self, Kind: dht.VNodeData, Data: [][]byte{[]byte("payload")}}
	p, err := router.NewPayload(requester, sign, router.OperateVNode{Op: dht.VNodeOp{Kind: dht.OpOverwrite, Node: node}},
		router.RelayState{Method: router.MethodSend, Destination: self}, 8)
	require.NoError(t, err)

	events, err := h.Handle(context.Background(), self, p)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, router.EventStorageStore, events[0].Kind)
	assert.Equal(t, 1, ring.StoredCount())
}

func TestSearchVNodeRepliesWhenFound(t *testing.T) {
	self, ring := newRing(t)
	requester, sign := mustSigner(t)

	node := dht.VNode{Did: self, Kind: dht.VNodeData, Data: [][]byte{[]byte("payload")}}
	_, err := ring.VNodeOperate(dht.VNodeOp{Kind: dht.OpOverwrite, Node: node})
	require.NoError(t, err)

	h := &Handler{Ring: ring, Sign: sign}
	p, err := router.NewPayload(requester, sign, router.SearchVNode{Vid: self},
		router.RelayState{Method: router.MethodSend, Destination: self}, 8)
	require.NoError(t, err)

	events, err := h.Handle(context.Background(), self, p)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, router.EventSendReportMessage, events[0].Kind)
	found, ok := events[0].Payload.Data.(router.FoundVNode)
	require.True(t, ok)
	require.Len(t, found.Data, 1)
	assert.Equal(t, node.Data, found.Data[0].Data)
}

type fakeNegotiator struct {
	answer string
}

func (f fakeNegotiator) HandleOffer(ctx context.Context, from identity.Did, offerWire string) (string, error) {
	return f.answer, nil
}
func (f fakeNegotiator) HandleAnswer(ctx context.Context, from identity.Did, answerWire string) error {
	return nil
}

func TestConnectNodeSendRepliesWithAnswer(t *testing.T) {
	self, ring := newRing(t)
	requester, sign := mustSigner(t)

	h := &Handler{Ring: ring, Sign: sign, Connect: fakeNegotiator{answer: "answer-wire"}}
	p, err := router.NewPayload(requester, sign, router.ConnectNodeSend{HandshakeWire: "offer-wire"},
		router.RelayState{Method: router.MethodSend, Destination: self}, 8)
	require.NoError(t, err)

	events, err := h.Handle(context.Background(), self, p)
	require.NoError(t, err)
	require.Len(t, events, 1)
	rep, ok := events[0].Payload.Data.(router.ConnectNodeReport)
	require.True(t, ok)
	assert.Equal(t, "answer-wire", rep.HandshakeWire)
}
