package swarm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sage-x-project/rings/dht"
	"github.com/sage-x-project/rings/handlers"
	"github.com/sage-x-project/rings/identity"
	"github.com/sage-x-project/rings/router"
	"github.com/sage-x-project/rings/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeTransport feeds everything written to Send into the peer Swarm's
// HandleInbound, wiring two Swarms together without real networking.
type pipeTransport struct {
	peer *Swarm
	self identity.Did
	done chan struct{}
}

func (p *pipeTransport) Send(data []byte) error {
	go p.peer.HandleInbound(context.Background(), p.self, data)
	return nil
}
func (p *pipeTransport) Done() <-chan struct{} { return p.done }
func (p *pipeTransport) Close() error          { return nil }

func newNode(t *testing.T) (identity.Did, func([]byte) ([]byte, error), *dht.Ring, *Swarm) {
	t.Helper()
	priv, err := identity.GenerateSecretKey()
	require.NoError(t, err)
	self := identity.DidFromPrivateKey(priv)
	sign := func(msg []byte) ([]byte, error) { return identity.Sign(priv, msg) }

	ring := dht.NewRing(self, nil, dht.DefaultConfig())
	r := &router.Router{Self: self, Closest: ring.ClosestPrecedingNode}
	sw := New(self, sign, r)
	r.Handler = &handlers.Handler{Ring: ring, Sign: sign}
	return self, sign, ring, sw
}

func wireUp(a, b *Swarm, aDid, bDid identity.Did) {
	a.Register(bDid, &pipeTransport{peer: b, self: aDid, done: make(chan struct{})})
	b.Register(aDid, &pipeTransport{peer: a, self: bDid, done: make(chan struct{})})
}

func TestSwarmNotifyRoundTrip(t *testing.T) {
	aDid, _, _, a := newNode(t)
	bDid, _, bRing, b := newNode(t)
	wireUp(a, b, aDid, bDid)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	succs, err := a.Notify(ctx, bDid, aDid)
	require.NoError(t, err)
	assert.Empty(t, succs) // b had no successors yet

	pred, ok := bRing.Predecessor()
	require.True(t, ok)
	assert.Equal(t, aDid, pred)
}

func TestSwarmFindSuccessorsRoundTrip(t *testing.T) {
	aDid, _, _, a := newNode(t)
	bDid, _, _, b := newNode(t)
	wireUp(a, b, aDid, bDid)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	succs, err := a.FindSuccessors(ctx, bDid, 1, aDid)
	require.NoError(t, err)
	require.Len(t, succs, 1)
	assert.Equal(t, bDid, succs[0]) // b has no ring yet, answers with itself
}

// flakyTransport reports ErrNotReady for the first failUntil sends, then
// succeeds (delivering nothing further — these tests only exercise
// SendPayload's retry bookkeeping, not a real round trip).
type flakyTransport struct {
	failUntil int32
	attempts  int32
	done      chan struct{}
}

func (f *flakyTransport) Send(data []byte) error {
	if atomic.AddInt32(&f.attempts, 1) <= f.failUntil {
		return transport.ErrNotReady
	}
	return nil
}
func (f *flakyTransport) Done() <-chan struct{} { return f.done }
func (f *flakyTransport) Close() error          { return nil }

func TestSendPayloadRetriesThenSucceeds(t *testing.T) {
	aDid, _, _, a := newNode(t)
	bDid, _, _, _ := newNode(t)
	ft := &flakyTransport{failUntil: 2, done: make(chan struct{})}
	a.Register(bDid, ft)

	p, err := router.NewPayload(aDid, a.Sign, router.CustomMessage{Content: []byte("hi")},
		router.RelayState{Method: router.MethodSend, Destination: bDid}, 64)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.SendPayload(ctx, bDid, p))
	assert.Equal(t, int32(3), atomic.LoadInt32(&ft.attempts))
}

func TestSendPayloadEscalatesAfterBudget(t *testing.T) {
	aDid, _, _, a := newNode(t)
	bDid, _, _, _ := newNode(t)
	ft := &flakyTransport{failUntil: 1000, done: make(chan struct{})}
	a.Register(bDid, ft)

	p, err := router.NewPayload(aDid, a.Sign, router.CustomMessage{Content: []byte("hi")},
		router.RelayState{Method: router.MethodSend, Destination: bDid}, 64)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = a.SendPayload(ctx, bDid, p)
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, int32(sendRetryBudget), atomic.LoadInt32(&ft.attempts))
}

func TestSwarmRPCTimeoutWithoutPeer(t *testing.T) {
	aDid, _, _, a := newNode(t)
	unreachable, _, _, _ := newNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := a.FindSuccessors(ctx, unreachable, 1, aDid)
	assert.Error(t, err)
}
