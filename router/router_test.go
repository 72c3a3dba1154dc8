package router

import (
	"context"
	"testing"

	"github.com/sage-x-project/rings/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDid(t *testing.T) (identity.Did, func([]byte) ([]byte, error)) {
	t.Helper()
	priv, err := identity.GenerateSecretKey()
	require.NoError(t, err)
	did := identity.DidFromPrivateKey(priv)
	return did, func(msg []byte) ([]byte, error) { return identity.Sign(priv, msg) }
}

func TestEnvelopeVerification(t *testing.T) {
	did, sign := mustDid(t)
	dest, _ := mustDid(t)

	p, err := NewPayload(did, sign, CustomMessage{Content: []byte("hi")}, RelayState{Method: MethodSend, Destination: dest}, 8)
	require.NoError(t, err)
	require.NoError(t, p.Verify())

	flippedData := *p
	flippedData.Data = CustomMessage{Content: []byte("hJ")}
	assert.Error(t, flippedData.Verify())

	flippedSig := *p
	sig := append([]byte(nil), p.Signature...)
	sig[0] ^= 0xFF
	flippedSig.Signature = sig
	assert.Error(t, flippedSig.Verify())
}

func TestTTLExhausted(t *testing.T) {
	did, sign := mustDid(t)
	dest, _ := mustDid(t)
	p, err := NewPayload(did, sign, CustomMessage{Content: []byte("x")}, RelayState{Method: MethodSend, Destination: dest}, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Verify(), ErrTTLExhausted)
}

type stubHandler struct {
	events []Event
	err    error
}

func (s *stubHandler) Handle(ctx context.Context, self identity.Did, p *Payload) ([]Event, error) {
	return s.events, s.err
}

func TestRouterDispatchesAtDestination(t *testing.T) {
	self, sign := mustDid(t)
	r := &Router{Self: self, Handler: &stubHandler{}, Closest: func(identity.Did) identity.Did { return self }}

	p, err := NewPayload(self, sign, CustomMessage{Content: []byte("hello")}, RelayState{Method: MethodSend, Destination: self}, 8)
	require.NoError(t, err)

	events, err := r.Process(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventCustomMessage, events[0].Kind)
	assert.Equal(t, []byte("hello"), events[0].Custom)
}

func TestRouterForwardsSendTowardDestination(t *testing.T) {
	self, selfSign := mustDid(t)
	dest, _ := mustDid(t)
	next, _ := mustDid(t)

	r := &Router{Self: self, Handler: &stubHandler{}, Closest: func(identity.Did) identity.Did { return next }}
	p, err := NewPayload(self, selfSign, CustomMessage{Content: []byte("x")}, RelayState{Method: MethodSend, Destination: dest}, 8)
	require.NoError(t, err)

	events, err := r.Process(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventForwardPayload, events[0].Kind)
	assert.Equal(t, next, events[0].Payload.Relay.NextHop)
	assert.Contains(t, events[0].Payload.Relay.Path, self)
}

func TestRouterDetectsRoutingLoop(t *testing.T) {
	self, selfSign := mustDid(t)
	a, _ := mustDid(t)
	b, _ := mustDid(t)
	c, _ := mustDid(t)
	dest, _ := mustDid(t)

	r := &Router{Self: self, Handler: &stubHandler{}, Closest: func(identity.Did) identity.Did { return a }}
	relay := RelayState{Method: MethodSend, Destination: dest, Path: []identity.Did{a, b, c, self}}
	p, err := NewPayload(self, selfSign, CustomMessage{Content: []byte("x")}, relay, 8)
	require.NoError(t, err)

	_, err = r.Process(context.Background(), p)
	assert.ErrorIs(t, err, ErrRoutingLoop)
}

func TestReportReversal(t *testing.T) {
	a, _ := mustDid(t)
	b, _ := mustDid(t)
	c, _ := mustDid(t)
	self, selfSign := mustDid(t)

	path := []identity.Did{a, b, c, self}
	relay := Reversed(path, a)

	p, err := NewPayload(self, selfSign, CustomMessage{Content: []byte("report")}, relay, 8)
	require.NoError(t, err)

	r := &Router{Self: self, Handler: &stubHandler{}, Closest: func(identity.Did) identity.Did { return identity.Did{} }}
	events, err := r.Process(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, c, events[0].Payload.Relay.NextHop)

	// Walking it the rest of the way should visit b then a, in order.
	r2 := &Router{Self: c, Handler: &stubHandler{}, Closest: func(identity.Did) identity.Did { return identity.Did{} }}
	events2, err := r2.Process(context.Background(), events[0].Payload)
	require.NoError(t, err)
	require.Len(t, events2, 1)
	assert.Equal(t, b, events2[0].Payload.Relay.NextHop)

	r3 := &Router{Self: b, Handler: &stubHandler{}, Closest: func(identity.Did) identity.Did { return identity.Did{} }}
	events3, err := r3.Process(context.Background(), events2[0].Payload)
	require.NoError(t, err)
	require.Len(t, events3, 1)
	assert.Equal(t, a, events3[0].Payload.Relay.NextHop)
}
